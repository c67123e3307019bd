package openclaw

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/goccy/go-json"

	"github.com/voluzi/traceclaw/internal/utils"
)

const diagnosticsPlugin = "diagnostics-otel"

// DiagnosticsOptions configure OpenClaw's OTLP diagnostics plugin.
type DiagnosticsOptions struct {
	OtelEndpoint    string
	ServiceName     string
	Traces          bool
	Metrics         bool
	Logs            bool
	SampleRate      float64
	FlushIntervalMs int
}

// DiagnosticsConfig returns the openclaw.json fragment enabling the
// diagnostics plugin.
func DiagnosticsConfig(o DiagnosticsOptions) map[string]interface{} {
	return map[string]interface{}{
		"plugins": map[string]interface{}{
			"allow": []interface{}{diagnosticsPlugin},
			"entries": map[string]interface{}{
				diagnosticsPlugin: map[string]interface{}{
					"enabled": true,
				},
			},
		},
		"diagnostics": map[string]interface{}{
			"enabled": true,
			"otel": map[string]interface{}{
				"enabled":         true,
				"endpoint":        o.OtelEndpoint,
				"protocol":        "http/protobuf",
				"serviceName":     o.ServiceName,
				"traces":          o.Traces,
				"metrics":         o.Metrics,
				"logs":            o.Logs,
				"sampleRate":      o.SampleRate,
				"flushIntervalMs": o.FlushIntervalMs,
			},
		},
		"logging": map[string]interface{}{
			"level": "debug",
		},
	}
}

// WriteDiagnosticsConfig writes the diagnostics fragment to path. When base is
// set, the fragment is deep-merged into the JSON document found there and
// the merged document is written instead.
func WriteDiagnosticsConfig(path, base string, o DiagnosticsOptions) error {
	var doc interface{} = DiagnosticsConfig(o)

	if base != "" {
		raw, err := os.ReadFile(base)
		if err != nil {
			return errors.Wrapf(err, "reading %s", base)
		}
		var existing map[string]interface{}
		if err := json.Unmarshal(raw, &existing); err != nil {
			return errors.Wrapf(err, "parsing %s", base)
		}
		if doc, err = utils.Merge(existing, doc); err != nil {
			return errors.Wrapf(err, "merging into %s", base)
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	return errors.Wrapf(os.WriteFile(path, append(out, '\n'), 0o644), "writing %s", path)
}
