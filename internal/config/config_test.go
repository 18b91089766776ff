package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ValidYAML(t *testing.T) {
	configContent := `
server:
  insecure_listen_address: ":18000"
simulation:
  request:
    method: "GET"
    path: "/checkout"
    mean_duration: "250ms"
    std_dev: "40ms"
  seasonal:
    component: "checkout"
    action: "submit"
    period: "5m"
    sampling_rate: 2
    max_amplitude: 5
    scale: 50
jobs:
  pushgateway_url: "http://pushgateway:9091"
  push_timeout: "3s"
  failure_ratio: 0.2
  specs:
    - name: "nightly_report"
      base_run_time: "2m"
      std_dev: "20s"
database:
  provider: "sqlite"
  sqlite:
    database_path: "test.db"
record:
  enabled: true
  batch_size: 20
  buffer_size: 100
  flush_interval: "5s"
  grace_period: "5s"
  timeout: "1s"
retention:
  enabled: true
  interval: "30m"
  run_timeout: "1m"
  executions_max_age: "48h"
cors:
  allowed_origins: ["*"]
  allowed_methods: ["GET", "POST"]
  allowed_headers: ["Content-Type"]
  allow_credentials: true
  max_age: 300
`

	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpfile.Close()

	// Reset default config
	DefaultConfig = &Config{}

	err = LoadConfig(tmpfile.Name())
	require.NoError(t, err)

	assert.Equal(t, ":18000", DefaultConfig.Server.InsecureListenAddress)
	assert.Equal(t, "GET", DefaultConfig.Simulation.Request.Method)
	assert.Equal(t, "/checkout", DefaultConfig.Simulation.Request.Path)
	assert.Equal(t, 250*time.Millisecond, DefaultConfig.Simulation.Request.MeanDuration)
	assert.Equal(t, 40*time.Millisecond, DefaultConfig.Simulation.Request.StdDev)
	assert.Equal(t, 5*time.Minute, DefaultConfig.Simulation.Seasonal.Period)
	assert.Equal(t, 2.0, DefaultConfig.Simulation.Seasonal.SamplingRate)
	assert.Equal(t, "http://pushgateway:9091", DefaultConfig.Jobs.PushgatewayURL)
	assert.Equal(t, 0.2, DefaultConfig.Jobs.FailureRatio)
	require.Len(t, DefaultConfig.Jobs.Specs, 1)
	assert.Equal(t, "nightly_report", DefaultConfig.Jobs.Specs[0].Name)
	assert.Equal(t, 2*time.Minute, DefaultConfig.Jobs.Specs[0].BaseRunTime)
	assert.Equal(t, "sqlite", DefaultConfig.Database.Provider)
	assert.Equal(t, "test.db", DefaultConfig.Database.SQLite.DatabasePath)
	assert.Equal(t, 20, DefaultConfig.Record.BatchSize)
	assert.True(t, DefaultConfig.Retention.Enabled)
	assert.Equal(t, 48*time.Hour, DefaultConfig.Retention.ExecutionsMaxAge)
	assert.Equal(t, []string{"GET", "POST"}, DefaultConfig.CORS.AllowedMethods)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	err := LoadConfig("does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.Write([]byte("server: [not: a: mapping"))
	require.NoError(t, err)
	tmpfile.Close()

	DefaultConfig = &Config{}

	err = LoadConfig(tmpfile.Name())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal config file")
}

func TestGetSanitizedConfig(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{
			Provider: "postgresql",
			PostgreSQL: PostgreSQLConfig{
				User:     "admin",
				Password: "hunter2",
				Addr:     "localhost",
			},
		},
	}

	sanitized := cfg.GetSanitizedConfig()

	assert.Empty(t, sanitized.Database.PostgreSQL.User)
	assert.Empty(t, sanitized.Database.PostgreSQL.Password)
	assert.Equal(t, "localhost", sanitized.Database.PostgreSQL.Addr)
	// original must keep its credentials
	assert.Equal(t, "admin", cfg.Database.PostgreSQL.User)
}

func TestDefaultStatusWeights(t *testing.T) {
	weights := DefaultStatusWeights()
	require.NotEmpty(t, weights)

	var total float64
	for _, sw := range weights {
		assert.Greater(t, sw.Weight, 0.0)
		total += sw.Weight
	}
	assert.InDelta(t, 100, total, 0.001)
}
