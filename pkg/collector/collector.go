package collector

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/voluzi/traceclaw/internal/observability"
	"github.com/voluzi/traceclaw/pkg/sample"
)

// Collector produces the samples of one tick. A reading that cannot be taken
// is left out of the batch; Collect never fails as a whole.
type Collector interface {
	Name() string
	Collect(ctx context.Context) sample.Batch
}

// Sink persists or forwards a batch. The batch is shared with every other
// sink and must not be modified.
type Sink interface {
	Name() string
	Export(ctx context.Context, batch sample.Batch) error
	Close() error
}

type options struct {
	clock       clock.Clock
	metrics     *observability.Metrics
	readTimeout time.Duration
}

func defaultOptions() *options {
	return &options{
		clock:       clock.RealClock{},
		readTimeout: time.Second,
	}
}

type Option func(*options)

// WithClock replaces the wall clock used for timestamps and scheduling.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithReadTimeout bounds each collector call within a tick.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.readTimeout = d
	}
}

func newOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// omit records a reading skipped for this tick.
func (o *options) omit(collector, reading string, err error) {
	log.WithFields(log.Fields{
		"collector": collector,
		"reading":   reading,
	}).WithError(err).Debug("reading unavailable this tick")
	o.metrics.Omission(collector, reading)
}
