package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/traceclaw/internal/observability"
	"github.com/voluzi/traceclaw/pkg/sample"
)

var (
	ErrAlreadyRunning = errors.NewPlain("collector manager already running")
	ErrNotRunning     = errors.NewPlain("collector manager not running")
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a point-in-time view of a manager.
type Status struct {
	State       string     `json:"state"`
	Interval    string     `json:"interval"`
	Ticks       int64      `json:"ticks"`
	Overruns    int64      `json:"overruns"`
	LastTick    *time.Time `json:"last_tick,omitempty"`
	LastSamples int        `json:"last_samples"`
	Collectors  []string   `json:"collectors"`
	Sinks       []string   `json:"sinks"`
}

// Manager runs collectors on a fixed cadence and hands every batch to all
// sinks. Ticks are scheduled from the logical start of the previous tick, so
// time spent collecting does not accumulate as drift.
type Manager struct {
	interval   time.Duration
	collectors []Collector
	sinks      []Sink
	opts       *options
	metrics    *observability.Metrics

	mu          sync.Mutex
	state       State
	stop        chan struct{}
	done        chan struct{}
	ticks       int64
	overruns    int64
	lastTick    time.Time
	lastSamples int
}

func NewManager(interval time.Duration, collectors []Collector, sinks []Sink, opts ...Option) *Manager {
	o := newOptions(opts)
	if o.metrics == nil {
		o.metrics = observability.New()
	}
	return &Manager{
		interval:   interval,
		collectors: collectors,
		sinks:      sinks,
		opts:       o,
		metrics:    o.metrics,
	}
}

// Start launches the collection loop. Cancelling ctx stops the loop the same
// way Stop does: the tick in flight still runs to completion and is delivered.
func (m *Manager) Start(ctx context.Context) error {
	if m.interval <= 0 {
		return errors.Errorf("collection interval must be positive, got %s", m.interval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return ErrAlreadyRunning
	}

	m.state = StateRunning
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	log.WithFields(log.Fields{
		"interval":   m.interval,
		"collectors": m.collectorNames(),
		"sinks":      m.sinkNames(),
	}).Info("starting collection")

	go m.run(ctx, m.stop, m.done)
	return nil
}

// Stop asks the loop to finish and blocks until the tick in flight, if any,
// has been delivered to every sink.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.state = StateStopping
	close(m.stop)
	done := m.done
	m.mu.Unlock()

	<-done
	log.Info("collection stopped")
	return nil
}

// Wait blocks until the loop exits, either through Stop or because the
// context given to Start was cancelled.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close releases every sink. The manager must not be running.
func (m *Manager) Close() error {
	if m.State() != StateIdle {
		return ErrAlreadyRunning
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "closing sink %s", s.Name()))
		}
	}
	return errors.Combine(errs...)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Metrics() *observability.Metrics {
	return m.metrics
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:       m.state.String(),
		Interval:    m.interval.String(),
		Ticks:       m.ticks,
		Overruns:    m.overruns,
		LastSamples: m.lastSamples,
		Collectors:  m.collectorNames(),
		Sinks:       m.sinkNames(),
	}
	if !m.lastTick.IsZero() {
		last := m.lastTick
		st.LastTick = &last
	}
	return st
}

func (m *Manager) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		m.mu.Lock()
		m.state = StateIdle
		m.mu.Unlock()
		close(done)
	}()

	// Cancellation is only observed between ticks.
	tickCtx := context.WithoutCancel(ctx)
	clk := m.opts.clock
	next := clk.Now()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		start := next
		m.tick(tickCtx)

		next = start.Add(m.interval)
		now := clk.Now()
		if !now.Before(next) {
			if now.After(next) {
				m.recordOverrun(now.Sub(start))
			}
			// Fire right away, but from now: missed ticks are not replayed.
			next = now
			continue
		}

		timer := clk.NewTimer(next.Sub(now))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C():
		}
	}
}

func (m *Manager) recordOverrun(took time.Duration) {
	m.mu.Lock()
	m.overruns++
	m.mu.Unlock()
	m.metrics.TickOverruns.Inc()
	log.WithFields(log.Fields{
		"interval": m.interval,
		"took":     took,
	}).Warn("tick overran the collection interval")
}

func (m *Manager) tick(ctx context.Context) {
	started := m.opts.clock.Now()

	var batch sample.Batch
	for _, c := range m.collectors {
		batch = append(batch, m.collect(ctx, c)...)
	}
	if len(batch) > 0 {
		m.export(ctx, batch)
	}

	m.mu.Lock()
	m.ticks++
	m.lastTick = started
	m.lastSamples = len(batch)
	m.mu.Unlock()

	m.metrics.Ticks.Inc()
	m.metrics.SamplesCollected.Add(float64(len(batch)))
	m.metrics.TickDuration.Observe(m.opts.clock.Since(started).Seconds())
}

func (m *Manager) collect(ctx context.Context, c Collector) (batch sample.Batch) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("collector", c.Name()).Errorf("collector panicked: %v", r)
			m.metrics.Omission(c.Name(), "panic")
			batch = nil
		}
	}()

	if m.opts.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.readTimeout)
		defer cancel()
	}
	return c.Collect(ctx)
}

// export delivers batch to every sink concurrently and waits for all of them.
// A failing sink never affects the others.
func (m *Manager) export(ctx context.Context, batch sample.Batch) {
	var wg sync.WaitGroup
	for _, s := range m.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := m.exportTo(ctx, s, batch); err != nil {
				m.metrics.SinkFailures.WithLabelValues(s.Name()).Inc()
				log.WithField("sink", s.Name()).WithError(err).Error("failed to export samples")
				return
			}
			m.metrics.SinkExports.WithLabelValues(s.Name()).Inc()
		}(s)
	}
	wg.Wait()
}

func (m *Manager) exportTo(ctx context.Context, s Sink, batch sample.Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Export(ctx, batch)
}

func (m *Manager) collectorNames() []string {
	names := make([]string, len(m.collectors))
	for i, c := range m.collectors {
		names[i] = c.Name()
	}
	return names
}

func (m *Manager) sinkNames() []string {
	names := make([]string, len(m.sinks))
	for i, s := range m.sinks {
		names[i] = s.Name()
	}
	return names
}
