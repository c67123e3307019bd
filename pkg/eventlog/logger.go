package eventlog

import (
	"k8s.io/utils/clock"

	"github.com/voluzi/traceclaw/internal/jsonl"
	"github.com/voluzi/traceclaw/pkg/openclaw"
)

// Prefix names the daily event files: events-YYYY-MM-DD.jsonl.
const Prefix = "events"

// Call describes one LLM call or tool invocation.
type Call struct {
	SessionID    string
	Model        string
	Provider     string
	Tool         string
	TokensInput  int64
	TokensOutput int64
	DurationMs   float64
	CostUSD      float64
	Status       string
	Error        string
	Extra        map[string]interface{}
}

// Logger appends workflow events to the trace directory so they can be
// analysed together with the resource samples collected there.
type Logger struct {
	writer *jsonl.DailyWriter
	clock  clock.PassiveClock
}

func New(dir string, clk clock.PassiveClock) (*Logger, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	w, err := jsonl.NewDailyWriter(dir, Prefix, clk)
	if err != nil {
		return nil, err
	}
	return &Logger{writer: w, clock: clk}, nil
}

// LogLLMCall records a model.usage event.
func (l *Logger) LogLLMCall(c Call) (openclaw.Event, error) {
	p := c.payload()
	p.Model = c.Model
	p.Provider = c.Provider
	p.TokensInput = c.TokensInput
	p.TokensOutput = c.TokensOutput
	p.TokensTotal = c.TokensInput + c.TokensOutput
	p.CostUSD = c.CostUSD
	return l.log(openclaw.TypeModelUsage, c.SessionID, p)
}

// LogToolCall records a tool.call event.
func (l *Logger) LogToolCall(c Call) (openclaw.Event, error) {
	p := c.payload()
	p.Tool = c.Tool
	return l.log(openclaw.TypeToolCall, c.SessionID, p)
}

// LogEvent records an event of any other type.
func (l *Logger) LogEvent(eventType string, c Call) (openclaw.Event, error) {
	return l.log(eventType, c.SessionID, c.payload())
}

// Append writes events produced elsewhere, keeping their timestamps.
func (l *Logger) Append(events ...openclaw.Event) error {
	records := make([]interface{}, len(events))
	for i, e := range events {
		records[i] = e.Record()
	}
	return l.writer.Write(records...)
}

// FileName is the file the next event is appended to.
func (l *Logger) FileName() string {
	return l.writer.FileName()
}

func (l *Logger) Close() error {
	return l.writer.Close()
}

func (l *Logger) log(eventType, sessionID string, p openclaw.Payload) (openclaw.Event, error) {
	e := openclaw.Event{
		Timestamp: l.clock.Now(),
		Type:      eventType,
		SessionID: sessionID,
		Payload:   p,
	}
	return e, l.Append(e)
}

func (c Call) payload() openclaw.Payload {
	p := openclaw.Payload{
		DurationMs: c.DurationMs,
		Status:     c.Status,
		Error:      c.Error,
		Extra:      c.Extra,
	}
	if p.Status == "" {
		p.Status = openclaw.StatusOK
	}
	if p.Status == openclaw.StatusError && p.Error == "" {
		p.Error = "unknown error"
	}
	if p.Error != "" {
		p.Status = openclaw.StatusError
	}
	return p
}
