package config

import (
	"github.com/voluzi/traceclaw/internal/environ"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRACE_CLAW"

type override struct {
	path  string
	apply func(c *Config, key string)
}

func stringOpt(path string, field func(*Config) *string) override {
	return override{path, func(c *Config, key string) {
		p := field(c)
		*p = environ.GetString(key, *p)
	}}
}

func boolOpt(path string, field func(*Config) *bool) override {
	return override{path, func(c *Config, key string) {
		p := field(c)
		*p = environ.GetBool(key, *p)
	}}
}

func floatOpt(path string, field func(*Config) *float64) override {
	return override{path, func(c *Config, key string) {
		p := field(c)
		*p = environ.GetFloat64(key, *p)
	}}
}

func intOpt(path string, field func(*Config) *int) override {
	return override{path, func(c *Config, key string) {
		p := field(c)
		*p = environ.GetInt(key, *p)
	}}
}

// overrides lists every option reachable from the environment. The variable
// name is EnvPrefix followed by the upper-cased path with dots replaced by
// underscores.
var overrides = []override{
	stringOpt("mode", func(c *Config) *string { return &c.Mode }),
	boolOpt("collector.enabled", func(c *Config) *bool { return &c.Collector.Enabled }),
	floatOpt("collector.interval_seconds", func(c *Config) *float64 { return &c.Collector.IntervalSeconds }),
	boolOpt("collector.cpu", func(c *Config) *bool { return &c.Collector.CPU }),
	boolOpt("collector.memory", func(c *Config) *bool { return &c.Collector.Memory }),
	boolOpt("collector.network", func(c *Config) *bool { return &c.Collector.Network }),
	stringOpt("collector.network_interface", func(c *Config) *string { return &c.Collector.NetworkInterface }),
	boolOpt("collector.process_filter_enabled", func(c *Config) *bool { return &c.Collector.ProcessFilterEnabled }),
	stringOpt("collector.process_name", func(c *Config) *string { return &c.Collector.ProcessName }),
	intOpt("collector.grace_ticks", func(c *Config) *int { return &c.Collector.GraceTicks }),
	floatOpt("collector.recency_window_seconds", func(c *Config) *float64 { return &c.Collector.RecencyWindowSeconds }),
	floatOpt("collector.read_timeout_seconds", func(c *Config) *float64 { return &c.Collector.ReadTimeoutSeconds }),
	boolOpt("local_exporter.enabled", func(c *Config) *bool { return &c.LocalExporter.Enabled }),
	stringOpt("local_exporter.output_dir", func(c *Config) *string { return &c.LocalExporter.OutputDir }),
	stringOpt("otel.endpoint", func(c *Config) *string { return &c.Otel.Endpoint }),
	stringOpt("otel.service_name", func(c *Config) *string { return &c.Otel.ServiceName }),
	intOpt("otel.export_interval_ms", func(c *Config) *int { return &c.Otel.ExportIntervalMs }),
	stringOpt("prometheus.textfile_path", func(c *Config) *string { return &c.Prometheus.TextfilePath }),
	stringOpt("openclaw.event_log", func(c *Config) *string { return &c.OpenClaw.EventLog }),
	boolOpt("openclaw.create_fifo", func(c *Config) *bool { return &c.OpenClaw.CreateFifo }),
	stringOpt("openclaw.otel_endpoint", func(c *Config) *string { return &c.OpenClaw.OtelEndpoint }),
	stringOpt("openclaw.service_name", func(c *Config) *string { return &c.OpenClaw.ServiceName }),
	stringOpt("analyzer.trace_dir", func(c *Config) *string { return &c.Analyzer.TraceDir }),
	stringOpt("analyzer.summary_output", func(c *Config) *string { return &c.Analyzer.SummaryOutput }),
	floatOpt("analyzer.correlation_window_seconds", func(c *Config) *float64 { return &c.Analyzer.CorrelationWindowSeconds }),
}

// aliases keeps the short variable names of earlier releases working. They
// are applied before the canonical names, which win when both are set.
var aliases = map[string]string{
	"TRACE_CLAW_COLLECTOR_INTERVAL": "collector.interval_seconds",
	"TRACE_CLAW_COLLECTOR_PROCESS":  "collector.process_name",
	"TRACE_CLAW_LOCAL_OUTPUT_DIR":   "local_exporter.output_dir",
}

// ApplyEnv overlays environment variables onto c.
func ApplyEnv(c *Config) {
	byPath := make(map[string]override, len(overrides))
	for _, o := range overrides {
		byPath[o.path] = o
	}
	for key, path := range aliases {
		if environ.Has(key) {
			byPath[path].apply(c, key)
		}
	}
	for _, o := range overrides {
		o.apply(c, environ.KeyFor(EnvPrefix, o.path))
	}
}
