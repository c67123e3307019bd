package openclaw

import (
	"time"
)

// Event types emitted by OpenClaw diagnostics and by the local event logger.
const (
	TypeModelUsage       = "model.usage"
	TypeToolCall         = "tool.call"
	TypeWebhookReceived  = "webhook.received"
	TypeWebhookProcessed = "webhook.processed"
	TypeWebhookError     = "webhook.error"
	TypeMessageQueued    = "message.queued"
	TypeMessageProcessed = "message.processed"
	TypeSessionState     = "session.state"
	TypeSessionStuck     = "session.stuck"
	TypeQueueLaneEnqueue = "queue.lane.enqueue"
	TypeQueueLaneDequeue = "queue.lane.dequeue"
	TypeRunAttempt       = "run.attempt"
	TypeHeartbeat        = "diagnostic.heartbeat"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// lifecycle event types describe the plumbing around work rather than the
// work itself; they never become action rows.
var lifecycle = map[string]bool{
	TypeWebhookReceived:  true,
	TypeWebhookError:     true,
	TypeMessageQueued:    true,
	TypeSessionState:     true,
	TypeSessionStuck:     true,
	TypeQueueLaneEnqueue: true,
	TypeQueueLaneDequeue: true,
	TypeRunAttempt:       true,
	TypeHeartbeat:        true,
}

// Payload carries the type-specific part of an event. Zero values mean the
// event did not report the quantity.
type Payload struct {
	Model        string  `json:"model,omitempty"`
	Provider     string  `json:"provider,omitempty"`
	Tool         string  `json:"tool,omitempty"`
	Channel      string  `json:"channel,omitempty"`
	SessionKey   string  `json:"session_key,omitempty"`
	TokensInput  int64   `json:"tokens_input,omitempty"`
	TokensOutput int64   `json:"tokens_output,omitempty"`
	TokensTotal  int64   `json:"tokens_total,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
	DurationMs   float64 `json:"duration_ms,omitempty"`
	Status       string  `json:"status,omitempty"`
	Error        string  `json:"error,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Event is one workflow event: a model call, a tool invocation, a webhook or
// message lifecycle step.
type Event struct {
	Timestamp time.Time
	Type      string
	SessionID string
	Payload   Payload
}

// IsAction reports whether the event stands for a unit of work whose
// resource context is worth correlating. Unknown types count as actions so
// that custom events logged locally show up in the action timeline.
func (e Event) IsAction() bool {
	return !lifecycle[e.Type]
}

// IsTerminal reports whether the event carries an outcome.
func (e Event) IsTerminal() bool {
	return e.IsAction() || e.Type == TypeWebhookError
}

func (e Event) IsError() bool {
	return e.Payload.Status == StatusError || e.Payload.Error != "" || e.Type == TypeWebhookError
}

// Status is the reported status, defaulting to ok.
func (e Event) Status() string {
	if e.IsError() {
		return StatusError
	}
	if e.Payload.Status != "" {
		return e.Payload.Status
	}
	return StatusOK
}

// Tokens returns the total token count, deriving it from input and output
// when the total was not reported.
func (e Event) Tokens() int64 {
	if e.Payload.TokensTotal > 0 {
		return e.Payload.TokensTotal
	}
	return e.Payload.TokensInput + e.Payload.TokensOutput
}

// Label names the action: llm:<model>, tool:<name>, or the event type.
func (e Event) Label() string {
	switch e.Type {
	case TypeModelUsage:
		if e.Payload.Model != "" {
			return "llm:" + e.Payload.Model
		}
		return "llm"
	case TypeToolCall:
		if e.Payload.Tool != "" {
			return "tool:" + e.Payload.Tool
		}
		return "tool"
	default:
		return e.Type
	}
}
