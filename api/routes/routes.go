package routes

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/metalmatze/signal/server/signalhttp"
	"github.com/metricsim/metricsim/api/models"
	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type routes struct {
	mux *http.ServeMux

	dbProvider db.Provider
	config     *config.Config
}

type Option func(*routes)

func WithDBProvider(dbProvider db.Provider) Option {
	return func(r *routes) {
		r.dbProvider = dbProvider
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(r *routes) {
		r.config = cfg
	}
}

// WithHandlers wires the endpoint table. The registry passed here is the
// service registry the simulators write into; it is exposed on
// /service/metrics, the path the bundled Prometheus scrape config targets.
func WithHandlers(registry *prometheus.Registry, isTracingEnabled bool) Option {
	return func(r *routes) {
		i := signalhttp.NewHandlerInstrumenter(registry, []string{"handler"})
		api := func(name string, h http.HandlerFunc) http.Handler {
			handler := i.NewHandler(prometheus.Labels{"handler": name}, h)
			if isTracingEnabled {
				return otelhttp.NewHandler(handler, name)
			}
			return handler
		}

		mux := http.NewServeMux()
		mux.Handle("/", http.HandlerFunc(r.welcome))
		mux.Handle("/service/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/healthz", http.HandlerFunc(r.healthz))
		mux.Handle("/api/v1/jobs", api("/api/v1/jobs", r.jobs))
		mux.Handle("/api/v1/executions", api("/api/v1/executions", r.executions))
		mux.Handle("/api/v1/config", api("/api/v1/config", r.configHandler))
		r.mux = mux
	}
}

func NewRoutes(opts ...Option) (*routes, error) {
	r := &routes{
		config: config.DefaultConfig,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.mux == nil {
		return nil, errors.New("no handlers configured: WithHandlers is required")
	}

	return r, nil
}

func (r *routes) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func writeJSONResponse(req *http.Request, w http.ResponseWriter, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("unable to encode response", "err", err, "path", req.URL.Path)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIError{Error: message})
}

func (r *routes) welcome(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}
	writeJSONResponse(req, w, models.Welcome{
		Message: "Welcome to the metricsim demo with Prometheus metrics!",
	})
}

func (r *routes) healthz(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		slog.Error("unable to write healthz response", "err", err)
	}
}

func (r *routes) jobs(w http.ResponseWriter, req *http.Request) {
	if r.dbProvider == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "execution recording is disabled")
		return
	}

	jobs, err := r.dbProvider.ListJobs(req.Context())
	if err != nil {
		slog.Error("unable to list jobs", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list jobs")
		return
	}

	writeJSONResponse(req, w, models.JobsResponse{Jobs: jobs})
}

func (r *routes) executions(w http.ResponseWriter, req *http.Request) {
	if r.dbProvider == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "execution recording is disabled")
		return
	}

	params := db.ListExecutionsParams{
		Job:       req.FormValue("job"),
		Kind:      req.FormValue("kind"),
		SortBy:    req.FormValue("sortBy"),
		SortOrder: req.FormValue("sortOrder"),
		Page:      intQueryParam(req, "page"),
		PageSize:  intQueryParam(req, "pageSize"),
	}

	result, err := r.dbProvider.ListExecutions(req.Context(), params)
	if err != nil {
		if errors.Is(err, db.ErrInvalidQuery) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("unable to list executions", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to list executions")
		return
	}

	writeJSONResponse(req, w, result)
}

func (r *routes) configHandler(w http.ResponseWriter, req *http.Request) {
	writeJSONResponse(req, w, r.config.GetSanitizedConfig())
}

func intQueryParam(req *http.Request, name string) int {
	v, err := strconv.Atoi(req.FormValue(name))
	if err != nil {
		return 0
	}
	return v
}
