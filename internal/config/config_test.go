package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// chdir mirrors testing.T.Chdir (Go 1.24+): it changes the working directory
// for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, 2*time.Second, cfg.Interval())
	assert.Equal(t, time.Second, cfg.CorrelationWindow())
	assert.Equal(t, 3, cfg.Collector.GraceTicks)
	assert.True(t, cfg.Collector.CPU)
	assert.Equal(t, "./trace_data", cfg.LocalExporter.OutputDir)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "trace_claw.yaml", `
mode: online
collector:
  interval_seconds: 0.5
  network: false
  process_filter_enabled: true
  process_name: openclaw
otel:
  endpoint: http://collector:4318
  service_name: gateway-resources
analyzer:
  correlation_window_seconds: 15
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeOnline, cfg.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.Interval())
	assert.False(t, cfg.Collector.Network)
	assert.True(t, cfg.Collector.CPU, "keys absent from the file keep their defaults")
	assert.Equal(t, "openclaw", cfg.Collector.ProcessName)
	assert.Equal(t, "http://collector:4318", cfg.Otel.Endpoint)
	assert.Equal(t, 15*time.Second, cfg.CorrelationWindow())
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "trace_claw.toml", `
mode = "local"

[collector]
interval_seconds = 5.0
cpu = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Interval())
	assert.False(t, cfg.Collector.CPU)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRACE_CLAW_MODE", "online")
	t.Setenv("TRACE_CLAW_OTEL_ENDPOINT", "http://otel:4318")
	t.Setenv("TRACE_CLAW_COLLECTOR_INTERVAL_SECONDS", "10")
	t.Setenv("TRACE_CLAW_COLLECTOR_PROCESS_FILTER_ENABLED", "true")
	t.Setenv("TRACE_CLAW_COLLECTOR_PROCESS", "gateway")
	t.Setenv("TRACE_CLAW_LOCAL_OUTPUT_DIR", "/tmp/traces")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeOnline, cfg.Mode)
	assert.Equal(t, "http://otel:4318", cfg.Otel.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Interval())
	assert.True(t, cfg.Collector.ProcessFilterEnabled)
	assert.Equal(t, "gateway", cfg.Collector.ProcessName)
	assert.Equal(t, "/tmp/traces", cfg.LocalExporter.OutputDir)
}

func TestLoad_CanonicalEnvWinsOverAlias(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRACE_CLAW_COLLECTOR_INTERVAL", "3")
	t.Setenv("TRACE_CLAW_COLLECTOR_INTERVAL_SECONDS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, cfg.Interval())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{name: "defaults", mutate: func(*Config) {}, valid: true},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "remote" }},
		{name: "zero interval", mutate: func(c *Config) { c.Collector.IntervalSeconds = 0 }},
		{name: "negative interval", mutate: func(c *Config) { c.Collector.IntervalSeconds = -1 }},
		{name: "filter without name", mutate: func(c *Config) {
			c.Collector.ProcessFilterEnabled = true
			c.Collector.ProcessName = " "
		}},
		{name: "online without endpoint", mutate: func(c *Config) {
			c.Mode = ModeOnline
			c.Otel.Endpoint = "localhost"
		}},
		{name: "online with endpoint", mutate: func(c *Config) { c.Mode = ModeOnline }, valid: true},
		{name: "negative grace", mutate: func(c *Config) { c.Collector.GraceTicks = -1 }},
		{name: "local exporter without dir", mutate: func(c *Config) { c.LocalExporter.OutputDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid))
		})
	}
}

func TestLoad_InvalidIsFatal(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "collector:\n  interval_seconds: 0\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Load(writeFile(t, "broken.yaml", "mode: [local"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
