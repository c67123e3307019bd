package openclaw

import (
	"fmt"
	"strings"

	"emperror.dev/errors"
	"github.com/goccy/go-json"

	"github.com/voluzi/traceclaw/internal/jsonl"
	"github.com/voluzi/traceclaw/pkg/sample"
)

// ErrNotEvent is returned for JSON objects that carry no event type.
var ErrNotEvent = errors.NewPlain("record is not an event")

// Record is the persisted shape of an event.
type Record struct {
	Timestamp string  `json:"timestamp"`
	EventType string  `json:"event_type"`
	SessionID string  `json:"session_id,omitempty"`
	Payload   Payload `json:"payload"`
}

func (e Event) Record() Record {
	return Record{
		Timestamp: e.Timestamp.UTC().Format(sample.TimeLayout),
		EventType: e.Type,
		SessionID: e.SessionID,
		Payload:   e.Payload,
	}
}

// Decode parses one JSON line into an event.
func Decode(line []byte) (Event, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(line, &m); err != nil {
		return Event{}, err
	}
	return FromMap(m)
}

// EventType returns the event type of a decoded JSON object, looking at the
// keys used by every known producer. Resource records never have one.
func EventType(m map[string]interface{}) string {
	if _, ok := m[sample.KeyCategory]; ok {
		return ""
	}
	for _, key := range []string{"event_type", "type", "name"} {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// FromMap builds an event from a decoded JSON object. Both the nested
// payload shape written by this module and the flat shape of OpenClaw logs
// (type, sessionId, durationMs, costUsd, usage{input,output,total}) are
// understood.
func FromMap(m map[string]interface{}) (Event, error) {
	typ := EventType(m)
	if typ == "" {
		return Event{}, ErrNotEvent
	}

	tsValue, ok := m["timestamp"]
	if !ok {
		tsValue = m["time"]
	}
	ts, err := jsonl.ParseTime(tsValue)
	if err != nil {
		return Event{}, err
	}

	e := Event{
		Timestamp: ts,
		Type:      typ,
		SessionID: str(m, "session_id", "sessionId"),
	}

	consumed := map[string]bool{
		"timestamp": true, "time": true, "event_type": true, "type": true,
		"session_id": true, "sessionId": true, "payload": true,
	}
	if nested, ok := m["payload"].(map[string]interface{}); ok {
		e.Payload = payloadFrom(nested, typ, nil)
	} else {
		// In flat records "name" is either the event type or a tool name.
		if str(m, "event_type", "type") == "" {
			consumed["name"] = true
		}
		e.Payload = payloadFrom(m, typ, consumed)
	}
	if e.SessionID == "" {
		e.SessionID = str(e.Payload.Extra, "session_id", "sessionId")
	}
	return e, nil
}

var payloadKeys = map[string]bool{
	"model": true, "provider": true, "tool": true, "tool_name": true, "toolName": true,
	"channel": true, "session_key": true, "sessionKey": true,
	"tokens_input": true, "tokensInput": true, "tokens_output": true, "tokensOutput": true,
	"tokens_total": true, "tokensTotal": true, "usage": true,
	"cost_usd": true, "costUsd": true, "duration_ms": true, "durationMs": true,
	"status": true, "error": true, "extra": true,
}

func payloadFrom(m map[string]interface{}, typ string, consumed map[string]bool) Payload {
	p := Payload{
		Model:        str(m, "model"),
		Provider:     str(m, "provider"),
		Tool:         str(m, "tool", "tool_name", "toolName"),
		Channel:      str(m, "channel"),
		SessionKey:   str(m, "session_key", "sessionKey"),
		TokensInput:  int64(num(m, "tokens_input", "tokensInput")),
		TokensOutput: int64(num(m, "tokens_output", "tokensOutput")),
		TokensTotal:  int64(num(m, "tokens_total", "tokensTotal")),
		CostUSD:      num(m, "cost_usd", "costUsd"),
		DurationMs:   num(m, "duration_ms", "durationMs"),
		Status:       str(m, "status"),
		Error:        errorText(m["error"]),
	}

	if usage, ok := m["usage"].(map[string]interface{}); ok {
		if p.TokensInput == 0 {
			p.TokensInput = int64(num(usage, "input", "input_tokens", "prompt_tokens"))
		}
		if p.TokensOutput == 0 {
			p.TokensOutput = int64(num(usage, "output", "output_tokens", "completion_tokens"))
		}
		if p.TokensTotal == 0 {
			p.TokensTotal = int64(num(usage, "total", "total_tokens"))
		}
	}

	if p.Tool == "" && typ == TypeToolCall && !consumed["name"] {
		p.Tool = str(m, "name")
	}
	if p.Error != "" && p.Status == "" {
		p.Status = StatusError
	}

	if extra, ok := m["extra"].(map[string]interface{}); ok {
		p.Extra = extra
	}
	for k, v := range m {
		if payloadKeys[k] || consumed[k] || (k == "name" && p.Tool != "") {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]interface{})
		}
		p.Extra[k] = v
	}
	return p
}

func str(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func num(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f
			}
		}
	}
	return 0
}

func errorText(v interface{}) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(e)
	case bool:
		if e {
			return "unknown error"
		}
		return ""
	case map[string]interface{}:
		if msg := str(e, "message", "msg"); msg != "" {
			return msg
		}
		b, _ := json.Marshal(e)
		return string(b)
	default:
		return fmt.Sprint(e)
	}
}
