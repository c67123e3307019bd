package tracer

import (
	"context"
	"io"
	"strings"
	"syscall"

	"emperror.dev/errors"
	"github.com/containerd/fifo"
	"github.com/nxadm/tail"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/traceclaw/pkg/openclaw"
)

// EventTracer follows an OpenClaw JSONL log, file or FIFO, and emits every
// diagnostic event found in it. Log lines that are valid JSON but carry no
// event type are skipped.
type EventTracer struct {
	tail   *tail.Tail
	Traces chan *Trace
}

type Trace struct {
	Event *openclaw.Event
	Err   error
}

// NewEventTracer follows path. With skipExisting a regular file is read from
// its current end, so restarting the tracer does not emit old events again.
func NewEventTracer(path string, createFifo, skipExisting bool) (*EventTracer, error) {
	if createFifo {
		f, err := fifo.OpenFifo(context.Background(), path, syscall.O_CREAT|syscall.O_RDONLY|syscall.O_NONBLOCK, 0655)
		if err != nil {
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	}

	cfg := tail.Config{
		ReOpen: true,
		Pipe:   createFifo,
		Follow: true,
		Logger: tail.DiscardingLogger,
	}
	if skipExisting && !createFifo {
		cfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}

	t, err := tail.TailFile(path, cfg)
	if err != nil {
		return nil, err
	}

	return &EventTracer{
		tail:   t,
		Traces: make(chan *Trace),
	}, nil
}

func (t *EventTracer) Stop() error {
	return t.tail.Stop()
}

// Start reads lines until the tracer is stopped, then closes Traces.
func (t *EventTracer) Start() {
	defer close(t.Traces)

	for line := range t.tail.Lines {
		if line.Err != nil {
			t.Traces <- &Trace{Err: line.Err}
			continue
		}

		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		event, err := openclaw.Decode([]byte(text))
		switch {
		case errors.Is(err, openclaw.ErrNotEvent):
			continue
		case err != nil:
			t.Traces <- &Trace{Err: err}
		default:
			t.Traces <- &Trace{Event: &event}
		}
	}
}

// Appender stores forwarded events.
type Appender interface {
	Append(events ...openclaw.Event) error
}

// Forward drains the tracer into dst until Traces is closed or ctx is done,
// and returns the number of events stored.
func Forward(ctx context.Context, t *EventTracer, dst Appender) int {
	forwarded := 0
	for {
		select {
		case <-ctx.Done():
			return forwarded
		case trace, ok := <-t.Traces:
			if !ok {
				return forwarded
			}
			if trace.Err != nil {
				log.WithError(trace.Err).Warn("skipping unreadable openclaw log line")
				continue
			}
			if err := dst.Append(*trace.Event); err != nil {
				log.WithError(err).WithField("event_type", trace.Event.Type).Error("failed to store openclaw event")
				continue
			}
			forwarded++
		}
	}
}
