package openclaw

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNestedRecord(t *testing.T) {
	in := Event{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 250_000_000, time.UTC),
		Type:      TypeModelUsage,
		SessionID: "s1",
		Payload: Payload{
			Model:        "gpt-4o",
			Provider:     "openai",
			TokensInput:  100,
			TokensOutput: 50,
			TokensTotal:  150,
			CostUSD:      0.005,
			DurationMs:   1200,
			Status:       StatusOK,
		},
	}
	line, err := json.Marshal(in.Record())
	require.NoError(t, err)

	out, err := Decode(line)
	require.NoError(t, err)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.SessionID, out.SessionID)
	assert.Equal(t, in.Payload, out.Payload)
}

func TestDecodeFlatRecord(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		check func(t *testing.T, e Event)
	}{
		{
			name: "model usage",
			line: `{"type":"model.usage","timestamp":1772366400.5,"provider":"anthropic","model":"claude","durationMs":800,"costUsd":0.01,"usage":{"input":10,"output":20,"total":30},"sessionId":"abc","channel":"slack"}`,
			check: func(t *testing.T, e Event) {
				assert.Equal(t, TypeModelUsage, e.Type)
				assert.Equal(t, "abc", e.SessionID)
				assert.Equal(t, int64(30), e.Payload.TokensTotal)
				assert.Equal(t, 800.0, e.Payload.DurationMs)
				assert.Equal(t, "slack", e.Payload.Channel)
				assert.Equal(t, "llm:claude", e.Label())
				assert.Equal(t, StatusOK, e.Status())
				assert.Empty(t, e.Payload.Extra)
			},
		},
		{
			name: "tool call with error",
			line: `{"type":"tool.call","timestamp":"2026-03-01T12:00:01Z","name":"web_search","durationMs":350,"error":"timeout"}`,
			check: func(t *testing.T, e Event) {
				assert.Equal(t, "web_search", e.Payload.Tool)
				assert.Equal(t, "tool:web_search", e.Label())
				assert.True(t, e.IsError())
				assert.Equal(t, StatusError, e.Status())
				assert.Equal(t, "timeout", e.Payload.Error)
			},
		},
		{
			name: "otel style name",
			line: `{"name":"webhook.processed","time":"2026-03-01T12:00:02Z","duration_ms":12,"route":"/hook"}`,
			check: func(t *testing.T, e Event) {
				assert.Equal(t, TypeWebhookProcessed, e.Type)
				assert.Equal(t, 12.0, e.Payload.DurationMs)
				assert.Equal(t, "/hook", e.Payload.Extra["route"])
				assert.NotContains(t, e.Payload.Extra, "name")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Decode([]byte(tt.line))
			require.NoError(t, err)
			tt.check(t, e)
		})
	}
}

func TestDecodeRejectsNonEvents(t *testing.T) {
	_, err := Decode([]byte(`{"timestamp":"2026-03-01T12:00:00Z","category":"system.cpu.usage_percent","cpu_percent":3}`))
	assert.ErrorIs(t, err, ErrNotEvent)

	_, err = Decode([]byte(`{"type":"tool.call"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEventClassification(t *testing.T) {
	tests := []struct {
		event    Event
		action   bool
		terminal bool
		isError  bool
	}{
		{Event{Type: TypeModelUsage}, true, true, false},
		{Event{Type: TypeToolCall, Payload: Payload{Status: StatusError}}, true, true, true},
		{Event{Type: TypeWebhookError}, false, true, true},
		{Event{Type: TypeMessageQueued}, false, false, false},
		{Event{Type: TypeSessionStuck}, false, false, false},
		{Event{Type: "deploy"}, true, true, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.action, tt.event.IsAction(), tt.event.Type)
		assert.Equal(t, tt.terminal, tt.event.IsTerminal(), tt.event.Type)
		assert.Equal(t, tt.isError, tt.event.IsError(), tt.event.Type)
	}

	assert.Equal(t, int64(7), Event{Payload: Payload{TokensInput: 3, TokensOutput: 4}}.Tokens())
	assert.Equal(t, "llm", Event{Type: TypeModelUsage}.Label())
	assert.Equal(t, "deploy", Event{Type: "deploy"}.Label())
}

func TestWriteDiagnosticsConfig(t *testing.T) {
	dir := t.TempDir()
	opts := DiagnosticsOptions{
		OtelEndpoint:    "http://localhost:4318",
		ServiceName:     "openclaw-gateway",
		Traces:          true,
		SampleRate:      1,
		FlushIntervalMs: 10000,
	}

	out := filepath.Join(dir, "nested", "openclaw.diagnostics.json")
	require.NoError(t, WriteDiagnosticsConfig(out, "", opts))

	var doc map[string]interface{}
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	otel := doc["diagnostics"].(map[string]interface{})["otel"].(map[string]interface{})
	assert.Equal(t, "openclaw-gateway", otel["serviceName"])
	assert.Equal(t, false, otel["metrics"])

	base := filepath.Join(dir, "openclaw.json")
	require.NoError(t, os.WriteFile(base, []byte(`{"gateway":{"port":18789},"logging":{"level":"info","file":"/tmp/oc.log"}}`), 0o644))
	merged := filepath.Join(dir, "merged.json")
	require.NoError(t, WriteDiagnosticsConfig(merged, base, opts))

	raw, err = os.ReadFile(merged)
	require.NoError(t, err)
	doc = nil
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 18789.0, doc["gateway"].(map[string]interface{})["port"])
	logging := doc["logging"].(map[string]interface{})
	assert.Equal(t, "debug", logging["level"])
	assert.Equal(t, "/tmp/oc.log", logging["file"])
	assert.Contains(t, doc, "plugins")
}
