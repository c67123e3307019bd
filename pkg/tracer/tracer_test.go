package tracer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/voluzi/traceclaw/pkg/openclaw"
)

func TestNewEventTracer(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "openclaw.log")

	f, err := os.Create(tracePath)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	f.Close()

	tracer, err := NewEventTracer(tracePath, false, false)
	if err != nil {
		t.Fatalf("NewEventTracer() error = %v", err)
	}
	if tracer.Traces == nil {
		t.Error("NewEventTracer() Traces channel is nil")
	}

	_ = tracer.Stop()
}

func startTracer(t *testing.T) (*os.File, *EventTracer, chan struct{}) {
	t.Helper()
	tracePath := filepath.Join(t.TempDir(), "openclaw.log")

	f, err := os.Create(tracePath)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tracer, err := NewEventTracer(tracePath, false, false)
	if err != nil {
		f.Close()
		t.Fatalf("NewEventTracer() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		tracer.Start()
	}()
	return f, tracer, done
}

func writeLines(t *testing.T, f *os.File, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if _, err := f.WriteString(l + "\n"); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
	}
	_ = f.Sync()
}

func TestEventTracer_ParsesEventsAndSkipsPlainLogs(t *testing.T) {
	f, tracer, done := startTracer(t)

	writeLines(t, f,
		"",
		`{"level":"info","msg":"gateway listening"}`,
		`{"type":"model.usage","timestamp":"2026-03-01T12:00:00Z","model":"claude","usage":{"input":1,"output":2,"total":3}}`,
	)

	select {
	case trace := <-tracer.Traces:
		if trace.Err != nil {
			t.Fatalf("unexpected error: %v", trace.Err)
		}
		if trace.Event.Type != openclaw.TypeModelUsage {
			t.Errorf("expected model.usage, got %q", trace.Event.Type)
		}
		if trace.Event.Payload.TokensTotal != 3 {
			t.Errorf("expected 3 tokens, got %d", trace.Event.Payload.TokensTotal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for trace")
	}

	f.Close()
	_ = tracer.Stop()
	<-done
}

func TestEventTracer_ParseInvalidJSON(t *testing.T) {
	f, tracer, done := startTracer(t)

	writeLines(t, f, "not valid json")

	select {
	case trace := <-tracer.Traces:
		if trace.Err == nil {
			t.Error("expected error for invalid JSON, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for trace")
	}

	f.Close()
	_ = tracer.Stop()
	<-done
}

func TestEventTracer_ChannelClosedOnStop(t *testing.T) {
	f, tracer, done := startTracer(t)
	f.Close()

	time.Sleep(100 * time.Millisecond)
	_ = tracer.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for tracer to stop")
	}

	if _, ok := <-tracer.Traces; ok {
		t.Error("expected channel to be closed after Stop()")
	}
}

type memoryAppender struct {
	mu     sync.Mutex
	events []openclaw.Event
}

func (m *memoryAppender) Append(events ...openclaw.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func TestForward(t *testing.T) {
	f, tracer, done := startTracer(t)
	dst := &memoryAppender{}

	forwarded := make(chan int)
	go func() { forwarded <- Forward(context.Background(), tracer, dst) }()

	writeLines(t, f,
		`{"type":"tool.call","timestamp":1772366400,"name":"web_search"}`,
		`garbage`,
		`{"type":"webhook.processed","timestamp":1772366401,"durationMs":5}`,
	)

	deadline := time.Now().Add(2 * time.Second)
	for {
		dst.mu.Lock()
		n := len(dst.events)
		dst.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 forwarded events, got %d", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	f.Close()
	_ = tracer.Stop()
	<-done

	if n := <-forwarded; n != 2 {
		t.Errorf("Forward() = %d, want 2", n)
	}
	if got := dst.events[0].Label(); got != "tool:web_search" {
		t.Errorf("expected tool:web_search, got %q", got)
	}
}
