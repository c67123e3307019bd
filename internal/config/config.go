package config

import (
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/voluzi/traceclaw/internal/utils"
)

const (
	ModeLocal  = "local"
	ModeOnline = "online"

	// DefaultFile is read from the working directory when no path is given.
	DefaultFile = "trace_claw.yaml"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.NewPlain("invalid configuration")

type Config struct {
	Mode          string              `yaml:"mode" toml:"mode" json:"mode"`
	Collector     CollectorConfig     `yaml:"collector" toml:"collector" json:"collector"`
	LocalExporter LocalExporterConfig `yaml:"local_exporter" toml:"local_exporter" json:"local_exporter"`
	Otel          OtelConfig          `yaml:"otel" toml:"otel" json:"otel"`
	Prometheus    PrometheusConfig    `yaml:"prometheus" toml:"prometheus" json:"prometheus"`
	OpenClaw      OpenClawConfig      `yaml:"openclaw" toml:"openclaw" json:"openclaw"`
	Analyzer      AnalyzerConfig      `yaml:"analyzer" toml:"analyzer" json:"analyzer"`
}

type CollectorConfig struct {
	Enabled              bool    `yaml:"enabled" toml:"enabled" json:"enabled"`
	IntervalSeconds      float64 `yaml:"interval_seconds" toml:"interval_seconds" json:"interval_seconds"`
	CPU                  bool    `yaml:"cpu" toml:"cpu" json:"cpu"`
	Memory               bool    `yaml:"memory" toml:"memory" json:"memory"`
	Network              bool    `yaml:"network" toml:"network" json:"network"`
	NetworkInterface     string  `yaml:"network_interface" toml:"network_interface" json:"network_interface"`
	ProcessFilterEnabled bool    `yaml:"process_filter_enabled" toml:"process_filter_enabled" json:"process_filter_enabled"`
	ProcessName          string  `yaml:"process_name" toml:"process_name" json:"process_name"`

	// GraceTicks is the number of consecutive ticks a tracked PID may be
	// missing before it is evicted.
	GraceTicks int `yaml:"grace_ticks" toml:"grace_ticks" json:"grace_ticks"`
	// RecencyWindowSeconds bounds how long an evicted identity still counts
	// as the predecessor of a newly appearing PID.
	RecencyWindowSeconds float64 `yaml:"recency_window_seconds" toml:"recency_window_seconds" json:"recency_window_seconds"`
	// ReadTimeoutSeconds bounds each collector's OS queries within a tick.
	ReadTimeoutSeconds float64 `yaml:"read_timeout_seconds" toml:"read_timeout_seconds" json:"read_timeout_seconds"`
}

type LocalExporterConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	OutputDir string `yaml:"output_dir" toml:"output_dir" json:"output_dir"`
}

type OtelConfig struct {
	Endpoint         string            `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	ServiceName      string            `yaml:"service_name" toml:"service_name" json:"service_name"`
	Headers          map[string]string `yaml:"headers" toml:"headers" json:"headers"`
	ExportIntervalMs int               `yaml:"export_interval_ms" toml:"export_interval_ms" json:"export_interval_ms"`
}

type PrometheusConfig struct {
	// TextfilePath enables the textfile sink when set.
	TextfilePath string `yaml:"textfile_path" toml:"textfile_path" json:"textfile_path"`
}

type OpenClawConfig struct {
	// EventLog is an OpenClaw JSONL log followed during collection.
	EventLog        string  `yaml:"event_log" toml:"event_log" json:"event_log"`
	CreateFifo      bool    `yaml:"create_fifo" toml:"create_fifo" json:"create_fifo"`
	ConfigPath      string  `yaml:"config_path" toml:"config_path" json:"config_path"`
	OtelEndpoint    string  `yaml:"otel_endpoint" toml:"otel_endpoint" json:"otel_endpoint"`
	ServiceName     string  `yaml:"service_name" toml:"service_name" json:"service_name"`
	Traces          bool    `yaml:"traces" toml:"traces" json:"traces"`
	Metrics         bool    `yaml:"metrics" toml:"metrics" json:"metrics"`
	Logs            bool    `yaml:"logs" toml:"logs" json:"logs"`
	SampleRate      float64 `yaml:"sample_rate" toml:"sample_rate" json:"sample_rate"`
	FlushIntervalMs int     `yaml:"flush_interval_ms" toml:"flush_interval_ms" json:"flush_interval_ms"`
}

type AnalyzerConfig struct {
	TraceDir      string `yaml:"trace_dir" toml:"trace_dir" json:"trace_dir"`
	SummaryOutput string `yaml:"summary_output" toml:"summary_output" json:"summary_output"`
	// CorrelationWindowSeconds is the half-width of the window used to bind
	// actions to resource samples. Zero derives it from the collection
	// interval.
	CorrelationWindowSeconds float64 `yaml:"correlation_window_seconds" toml:"correlation_window_seconds" json:"correlation_window_seconds"`
}

// Default returns the configuration used when no file or override is present.
func Default() *Config {
	return &Config{
		Mode: ModeLocal,
		Collector: CollectorConfig{
			Enabled:              true,
			IntervalSeconds:      2,
			CPU:                  true,
			Memory:               true,
			Network:              true,
			ProcessName:          "node",
			GraceTicks:           3,
			RecencyWindowSeconds: 30,
			ReadTimeoutSeconds:   1,
		},
		LocalExporter: LocalExporterConfig{
			Enabled:   true,
			OutputDir: "./trace_data",
		},
		Otel: OtelConfig{
			Endpoint:         "http://localhost:4318",
			ServiceName:      "trace-claw-resources",
			ExportIntervalMs: 10000,
		},
		OpenClaw: OpenClawConfig{
			ConfigPath:      "~/.openclaw/openclaw.json",
			OtelEndpoint:    "http://localhost:4318",
			ServiceName:     "openclaw-gateway",
			Traces:          true,
			Metrics:         true,
			Logs:            true,
			SampleRate:      1,
			FlushIntervalMs: 10000,
		},
		Analyzer: AnalyzerConfig{
			TraceDir:      "./trace_data",
			SummaryOutput: "./trace_data/summary",
		},
	}
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. An empty path loads DefaultFile when it exists
// and the defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		undecoded, err := utils.TomlDecodeFile(path, c)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", path)
		}
		if len(undecoded) > 0 {
			log.WithField("keys", undecoded).Warn("ignoring unknown configuration keys")
		}
		return nil

	default:
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "opening %s", path)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(c); err != nil {
			// An empty document keeps the defaults.
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrapf(err, "parsing %s", path)
		}
		return nil
	}
}

// Validate reports every invalid option at once.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, errors.Wrapf(ErrInvalid, format, args...))
	}

	if !slices.Contains([]string{ModeLocal, ModeOnline}, c.Mode) {
		invalid("mode must be %q or %q, got %q", ModeLocal, ModeOnline, c.Mode)
	}
	if c.Collector.IntervalSeconds <= 0 {
		invalid("collector.interval_seconds must be positive, got %v", c.Collector.IntervalSeconds)
	}
	if c.Collector.ProcessFilterEnabled && strings.TrimSpace(c.Collector.ProcessName) == "" {
		invalid("collector.process_name is required when collector.process_filter_enabled is set")
	}
	if c.Collector.GraceTicks < 0 {
		invalid("collector.grace_ticks must not be negative, got %d", c.Collector.GraceTicks)
	}
	if c.Collector.RecencyWindowSeconds < 0 {
		invalid("collector.recency_window_seconds must not be negative, got %v", c.Collector.RecencyWindowSeconds)
	}
	if c.Collector.ReadTimeoutSeconds < 0 {
		invalid("collector.read_timeout_seconds must not be negative, got %v", c.Collector.ReadTimeoutSeconds)
	}
	if c.LocalExporter.Enabled && c.LocalExporter.OutputDir == "" {
		invalid("local_exporter.output_dir is required when the local exporter is enabled")
	}
	if c.Mode == ModeOnline {
		if u, err := url.Parse(c.Otel.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			invalid("otel.endpoint must be an absolute URL in online mode, got %q", c.Otel.Endpoint)
		}
		if c.Otel.ServiceName == "" {
			invalid("otel.service_name is required in online mode")
		}
	}
	if c.Analyzer.CorrelationWindowSeconds < 0 {
		invalid("analyzer.correlation_window_seconds must not be negative, got %v", c.Analyzer.CorrelationWindowSeconds)
	}

	return errors.Combine(errs...)
}

// Interval is the collection cadence.
func (c *Config) Interval() time.Duration {
	return seconds(c.Collector.IntervalSeconds)
}

// ReadTimeout bounds a single collector call.
func (c *Config) ReadTimeout() time.Duration {
	return seconds(c.Collector.ReadTimeoutSeconds)
}

// RecencyWindow is how long an evicted process identity remains a restart
// predecessor.
func (c *Config) RecencyWindow() time.Duration {
	return seconds(c.Collector.RecencyWindowSeconds)
}

// CorrelationWindow defaults to half the collection interval on each side.
func (c *Config) CorrelationWindow() time.Duration {
	if c.Analyzer.CorrelationWindowSeconds > 0 {
		return seconds(c.Analyzer.CorrelationWindowSeconds)
	}
	return c.Interval() / 2
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
