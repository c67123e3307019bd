package sink

import (
	"context"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/voluzi/traceclaw/pkg/collector"
	"github.com/voluzi/traceclaw/pkg/sample"
)

const (
	meterName           = "github.com/voluzi/traceclaw"
	otelShutdownTimeout = 5 * time.Second
)

type OTelConfig struct {
	// Endpoint is the base URL of an OTLP/HTTP receiver.
	Endpoint       string
	ServiceName    string
	Headers        map[string]string
	ExportInterval time.Duration
}

// OTel records every sample as a gauge observation and pushes them over
// OTLP/HTTP. Pushing happens on the SDK's own schedule, so a slow or
// unreachable receiver never holds up a tick; push errors are only logged.
type OTel struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mu     sync.Mutex
	gauges map[string]metric.Float64Gauge
}

var _ collector.Sink = (*OTel)(nil)

func NewOTel(ctx context.Context, cfg OTelConfig) (*OTel, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(metricsURL(cfg.Endpoint))}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating otlp metric exporter")
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.ExportInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.ExportInterval))
	}

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.WithError(err).WithField("endpoint", cfg.Endpoint).Error("telemetry push failed")
	}))

	return newOTel(sdkmetric.NewPeriodicReader(exporter, readerOpts...), cfg.ServiceName), nil
}

func newOTel(reader sdkmetric.Reader, serviceName string) *OTel {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	return &OTel{
		provider: provider,
		meter:    provider.Meter(meterName),
		gauges:   make(map[string]metric.Float64Gauge),
	}
}

func (o *OTel) Name() string {
	return "otel"
}

func (o *OTel) Export(ctx context.Context, batch sample.Batch) error {
	var errs []error
	for _, s := range batch {
		attrs := metric.WithAttributes(attributes(s)...)
		for _, field := range s.FieldNames() {
			g, err := o.gauge(MetricName(s, field), s.Unit, s.Description)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			g.Record(ctx, s.Fields[field], attrs)
		}
	}
	return errors.Combine(errs...)
}

// Flush pushes everything recorded so far.
func (o *OTel) Flush(ctx context.Context) error {
	return o.provider.ForceFlush(ctx)
}

func (o *OTel) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
	defer cancel()
	return o.provider.Shutdown(ctx)
}

func (o *OTel) gauge(name, unit, description string) (metric.Float64Gauge, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if g, ok := o.gauges[name]; ok {
		return g, nil
	}
	g, err := o.meter.Float64Gauge(name,
		metric.WithUnit(otelUnit(unit)),
		metric.WithDescription(description),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "creating gauge %s", name)
	}
	o.gauges[name] = g
	return g, nil
}

// MetricName is the pushed name of one field of s: the category itself for
// single-field samples, <category>.<field> otherwise.
func MetricName(s sample.Sample, field string) string {
	if len(s.Fields) == 1 {
		return s.Category
	}
	return s.Category + "." + field
}

func attributes(s sample.Sample) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(s.Labels))
	for _, k := range s.SortedLabelKeys() {
		attrs = append(attrs, attribute.String(k, s.Labels[k]))
	}
	return attrs
}

func otelUnit(unit string) string {
	switch unit {
	case "bytes":
		return "By"
	case "bytes/s":
		return "By/s"
	default:
		return unit
	}
}

// metricsURL appends the OTLP metrics path to a base endpoint unless it is
// already there.
func metricsURL(endpoint string) string {
	const path = "/v1/metrics"
	endpoint = strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(endpoint, path) {
		return endpoint
	}
	return endpoint + path
}
