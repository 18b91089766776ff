package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/thanos-io/thanos/pkg/tracing/otlp"
	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig     `yaml:"server,omitempty"`
	Simulation    SimulationConfig `yaml:"simulation,omitempty"`
	Jobs          JobsConfig       `yaml:"jobs,omitempty"`
	Database      DatabaseConfig   `yaml:"database,omitempty"`
	Record        RecordConfig     `yaml:"record,omitempty"`
	Retention     RetentionConfig  `yaml:"retention,omitempty"`
	CORS          CORSConfig       `yaml:"cors,omitempty"`
	Tracing       *otlp.Config     `yaml:"tracing,omitempty"`
	MemlimitRatio float64          `yaml:"memlimit_ratio,omitempty"`
}

type ServerConfig struct {
	InsecureListenAddress string `yaml:"insecure_listen_address,omitempty"`
}

type SimulationConfig struct {
	Request  RequestConfig  `yaml:"request,omitempty"`
	Seasonal SeasonalConfig `yaml:"seasonal,omitempty"`
}

// RequestConfig drives the simulated request traffic whose durations are
// observed into the request duration histogram.
type RequestConfig struct {
	Method        string         `yaml:"method,omitempty"`
	Path          string         `yaml:"path,omitempty"`
	MeanDuration  time.Duration  `yaml:"mean_duration,omitempty"`
	StdDev        time.Duration  `yaml:"std_dev,omitempty"`
	StatusWeights []StatusWeight `yaml:"status_weights,omitempty"`
}

type StatusWeight struct {
	Code   int     `yaml:"code"`
	Weight float64 `yaml:"weight"`
}

// SeasonalConfig drives the sinusoidal counter that produces rhythmic,
// dashboard-friendly traffic shapes.
type SeasonalConfig struct {
	Component    string        `yaml:"component,omitempty"`
	Action       string        `yaml:"action,omitempty"`
	Period       time.Duration `yaml:"period,omitempty"`
	SamplingRate float64       `yaml:"sampling_rate,omitempty"`
	MaxAmplitude float64       `yaml:"max_amplitude,omitempty"`
	Scale        float64       `yaml:"scale,omitempty"`
}

type JobsConfig struct {
	PushgatewayURL       string        `yaml:"pushgateway_url,omitempty"`
	PushTimeout          time.Duration `yaml:"push_timeout,omitempty"`
	FailureRatio         float64       `yaml:"failure_ratio,omitempty"`
	MetricsListenAddress string        `yaml:"metrics_listen_address,omitempty"`
	Specs                []JobSpec     `yaml:"specs,omitempty"`
}

type JobSpec struct {
	Name        string        `yaml:"name"`
	BaseRunTime time.Duration `yaml:"base_run_time"`
	StdDev      time.Duration `yaml:"std_dev"`
}

type DatabaseConfig struct {
	Provider   string           `yaml:"provider,omitempty"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql,omitempty"`
	SQLite     SQLiteConfig     `yaml:"sqlite,omitempty"`
}

type PostgreSQLConfig struct {
	Addr            string        `yaml:"addr,omitempty"`
	Database        string        `yaml:"database,omitempty"`
	DialTimeout     time.Duration `yaml:"dial_timeout,omitempty"`
	Password        string        `yaml:"password,omitempty"`
	Port            int           `yaml:"port,omitempty"`
	SSLMode         string        `yaml:"sslmode,omitempty"`
	User            string        `yaml:"user,omitempty"`
	MaxOpenConns    int           `yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime,omitempty"`
}

type SQLiteConfig struct {
	DatabasePath string `yaml:"database_path,omitempty"`
}

type RecordConfig struct {
	Enabled       bool          `yaml:"enabled,omitempty"`
	BatchSize     int           `yaml:"batch_size,omitempty"`
	BufferSize    int           `yaml:"buffer_size,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
	GracePeriod   time.Duration `yaml:"grace_period,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
}

type RetentionConfig struct {
	Enabled          bool          `yaml:"enabled,omitempty"`
	Interval         time.Duration `yaml:"interval,omitempty"`
	RunTimeout       time.Duration `yaml:"run_timeout,omitempty"`
	ExecutionsMaxAge time.Duration `yaml:"executions_max_age,omitempty"`
}

type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods   []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders   []string `yaml:"allowed_headers,omitempty"`
	AllowCredentials bool     `yaml:"allow_credentials,omitempty"`
	MaxAge           int      `yaml:"max_age,omitempty"`
}

// DefaultStatusWeights mirrors the response distribution of a healthy-ish
// service: mostly 200s with a tail of client and server errors.
func DefaultStatusWeights() []StatusWeight {
	return []StatusWeight{
		{Code: 101, Weight: 1},
		{Code: 200, Weight: 80},
		{Code: 201, Weight: 7.5},
		{Code: 202, Weight: 1.5},
		{Code: 204, Weight: 1},
		{Code: 400, Weight: 2},
		{Code: 405, Weight: 3},
		{Code: 500, Weight: 3},
		{Code: 501, Weight: 0.5},
		{Code: 504, Weight: 0.5},
	}
}

func DefaultJobSpecs() []JobSpec {
	return []JobSpec{
		{Name: "long_running_job", BaseRunTime: 10 * time.Minute, StdDev: 30 * time.Second},
		{Name: "medium_running_job", BaseRunTime: 5 * time.Minute, StdDev: 30 * time.Second},
		{Name: "short_running_job", BaseRunTime: time.Minute, StdDev: 10 * time.Second},
	}
}

var DefaultConfig = &Config{
	Server: ServerConfig{
		InsecureListenAddress: ":18000",
	},
	Simulation: SimulationConfig{
		Request: RequestConfig{
			Method:        "POST",
			Path:          "/magical/method",
			MeanDuration:  300 * time.Millisecond,
			StdDev:        50 * time.Millisecond,
			StatusWeights: DefaultStatusWeights(),
		},
		Seasonal: SeasonalConfig{
			Component:    "front_page",
			Action:       "view",
			Period:       10 * time.Minute,
			SamplingRate: 3,
			MaxAmplitude: 10,
			Scale:        100,
		},
	},
	Jobs: JobsConfig{
		PushgatewayURL:       "http://localhost:19091",
		PushTimeout:          5 * time.Second,
		FailureRatio:         0.1,
		MetricsListenAddress: ":18001",
		Specs:                DefaultJobSpecs(),
	},
	Record: RecordConfig{
		Enabled: true,
	},
	CORS: CORSConfig{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	},
	MemlimitRatio: 0.9,
}

func LoadConfig(path string) error {
	f, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(f, DefaultConfig)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return nil
}

func RegisterSimulationFlags(fs *flag.FlagSet) {
	fs.StringVar(&DefaultConfig.Simulation.Request.Method, "request-method", DefaultConfig.Simulation.Request.Method, "HTTP method label recorded for simulated requests.")
	fs.StringVar(&DefaultConfig.Simulation.Request.Path, "request-path", DefaultConfig.Simulation.Request.Path, "Path label recorded for simulated requests.")
	fs.DurationVar(&DefaultConfig.Simulation.Request.MeanDuration, "request-mean-duration", DefaultConfig.Simulation.Request.MeanDuration, "Mean of the Gaussian request duration distribution.")
	fs.DurationVar(&DefaultConfig.Simulation.Request.StdDev, "request-std-dev", DefaultConfig.Simulation.Request.StdDev, "Standard deviation of the Gaussian request duration distribution.")
	fs.DurationVar(&DefaultConfig.Simulation.Seasonal.Period, "seasonal-period", DefaultConfig.Simulation.Seasonal.Period, "Duration of one full cycle of the seasonal counter.")
	fs.Float64Var(&DefaultConfig.Simulation.Seasonal.SamplingRate, "seasonal-sampling-rate", DefaultConfig.Simulation.Seasonal.SamplingRate, "Seasonal counter increments per second.")
	fs.Float64Var(&DefaultConfig.Simulation.Seasonal.MaxAmplitude, "seasonal-max-amplitude", DefaultConfig.Simulation.Seasonal.MaxAmplitude, "Upper bound (exclusive) of the random wave amplitude.")
}

func RegisterJobsFlags(fs *flag.FlagSet) {
	fs.StringVar(&DefaultConfig.Jobs.PushgatewayURL, "pushgateway-url", DefaultConfig.Jobs.PushgatewayURL, "Base URL of the Pushgateway job status gauges are pushed to.")
	fs.DurationVar(&DefaultConfig.Jobs.PushTimeout, "push-timeout", DefaultConfig.Jobs.PushTimeout, "Timeout for a single push to the Pushgateway.")
	fs.Float64Var(&DefaultConfig.Jobs.FailureRatio, "job-failure-ratio", DefaultConfig.Jobs.FailureRatio, "Probability in [0,1] that a simulated job run ends in failure.")
	fs.StringVar(&DefaultConfig.Jobs.MetricsListenAddress, "jobs-metrics-listen-address", DefaultConfig.Jobs.MetricsListenAddress, "The HTTP address the jobs runner exposes its own metrics on.")
}

func RegisterRecordFlags(fs *flag.FlagSet) {
	fs.BoolVar(&DefaultConfig.Record.Enabled, "record-enabled", DefaultConfig.Record.Enabled, "Persist simulated executions to the configured database.")
	fs.IntVar(&DefaultConfig.Record.BufferSize, "record-buffer-size", 100, "Buffer size for the execution record channel.")
	fs.IntVar(&DefaultConfig.Record.BatchSize, "record-batch-size", 10, "Batch size for inserting executions into the database.")
	fs.DurationVar(&DefaultConfig.Record.Timeout, "record-timeout", 1*time.Second, "Timeout to insert a batch of executions into the database.")
	fs.DurationVar(&DefaultConfig.Record.FlushInterval, "record-flush-interval", 5*time.Second, "Flush interval for inserting executions into the database.")
	fs.DurationVar(&DefaultConfig.Record.GracePeriod, "record-grace-period", 5*time.Second, "Grace period to insert pending executions after program shutdown.")
}

func RegisterRetentionFlags(fs *flag.FlagSet) {
	fs.BoolVar(&DefaultConfig.Retention.Enabled, "retention-enabled", DefaultConfig.Retention.Enabled, "Enable the execution history retention worker.")
	fs.DurationVar(&DefaultConfig.Retention.Interval, "retention-interval", 1*time.Hour, "Interval between retention runs.")
	fs.DurationVar(&DefaultConfig.Retention.RunTimeout, "retention-run-timeout", 5*time.Minute, "Timeout for a single retention run.")
	fs.DurationVar(&DefaultConfig.Retention.ExecutionsMaxAge, "retention-executions-max-age", 7*24*time.Hour, "Delete recorded executions older than this age.")
}

func RegisterMemoryLimitFlags(fs *flag.FlagSet) {
	fs.Float64Var(&DefaultConfig.MemlimitRatio, "auto-gomemlimit-ratio", DefaultConfig.MemlimitRatio, "The ratio of reserved GOMEMLIMIT memory to the detected maximum container or system memory.")
}

// ApplyMemoryLimit sets GOMEMLIMIT from the detected cgroup or system
// memory limit. Detection failures are non-fatal.
func ApplyMemoryLimit() error {
	if DefaultConfig.MemlimitRatio <= 0 || DefaultConfig.MemlimitRatio > 1 {
		return fmt.Errorf("memlimit ratio must be in (0,1], got %f", DefaultConfig.MemlimitRatio)
	}
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(DefaultConfig.MemlimitRatio),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	return err
}

func (c *Config) IsTracingEnabled() bool {
	if c == nil {
		return false
	}
	return c.Tracing != nil
}

func (c *Config) GetTracingServiceName() string {
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		if c == nil || c.Tracing == nil {
			return ""
		}
		return c.Tracing.ServiceName
	}
	return serviceName
}

// GetSanitizedConfig returns a copy of the configuration with credentials
// blanked so it can be exposed over the API.
func (c *Config) GetSanitizedConfig() *Config {
	cp := *c
	cp.Database.PostgreSQL.User = ""
	cp.Database.PostgreSQL.Password = ""
	return &cp
}
