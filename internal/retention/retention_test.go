package retention

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/metricsim/metricsim/internal/config"
	"github.com/metricsim/metricsim/internal/db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	deleteCalls []time.Time
	deleted     int64
	err         error
}

func (f *fakeProvider) DeleteExecutionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.deleteCalls = append(f.deleteCalls, cutoff)
	return f.deleted, f.err
}

func (f *fakeProvider) WithDB(func(*sql.DB))                                 {}
func (f *fakeProvider) Insert(context.Context, []db.Execution) error         { return nil }
func (f *fakeProvider) ListJobs(context.Context) ([]string, error)           { return nil, nil }
func (f *fakeProvider) Close() error                                         { return nil }
func (f *fakeProvider) ListExecutions(context.Context, db.ListExecutionsParams) (*db.PagedResult, error) {
	return nil, nil
}

func retentionConfig() *config.Config {
	return &config.Config{
		Retention: config.RetentionConfig{
			Enabled:          true,
			Interval:         time.Hour,
			RunTimeout:       time.Minute,
			ExecutionsMaxAge: 24 * time.Hour,
		},
	}
}

func TestNewWorker_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero interval", func(c *config.Config) { c.Retention.Interval = 0 }},
		{"zero run timeout", func(c *config.Config) { c.Retention.RunTimeout = 0 }},
		{"zero max age", func(c *config.Config) { c.Retention.ExecutionsMaxAge = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := retentionConfig()
			tt.mutate(cfg)
			_, err := NewWorker(&fakeProvider{}, cfg, prometheus.NewRegistry())
			require.Error(t, err)
		})
	}

	t.Run("nil config", func(t *testing.T) {
		_, err := NewWorker(&fakeProvider{}, nil, prometheus.NewRegistry())
		require.Error(t, err)
	})
}

func TestWorker_RunOnceDeletesWithCutoff(t *testing.T) {
	provider := &fakeProvider{deleted: 42}
	w, err := NewWorker(provider, retentionConfig(), prometheus.NewRegistry())
	require.NoError(t, err)

	before := time.Now().UTC().Add(-24 * time.Hour)
	w.runOnce(context.Background())
	after := time.Now().UTC().Add(-24 * time.Hour)

	require.Len(t, provider.deleteCalls, 1)
	cutoff := provider.deleteCalls[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

func TestWorker_RunOnceSurvivesDeleteError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("disk on fire")}
	w, err := NewWorker(provider, retentionConfig(), prometheus.NewRegistry())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		w.runOnce(context.Background())
	})
	assert.Len(t, provider.deleteCalls, 1)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	provider := &fakeProvider{}
	w, err := NewWorker(provider, retentionConfig(), prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}

	// the initial immediate run must have happened
	assert.GreaterOrEqual(t, len(provider.deleteCalls), 1)
}
