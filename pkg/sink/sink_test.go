package sink

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/voluzi/traceclaw/internal/observability"
	"github.com/voluzi/traceclaw/pkg/collector"
	"github.com/voluzi/traceclaw/pkg/sample"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testBatch(ts time.Time) sample.Batch {
	return sample.Batch{
		sample.Of(sample.SystemCPUUsage, ts, map[string]string{sample.LabelCPU: sample.CPUTotal}, 37.5).
			WithDescription("Overall CPU usage percentage"),
		sample.Of(sample.ProcessMemoryRSS, ts, map[string]string{sample.LabelPID: "42", sample.LabelProcessName: "node"}, 2048),
	}
}

func readRecords(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestLocalSink(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, clocktesting.NewFakePassiveClock(now))
	require.NoError(t, err)
	assert.Equal(t, "resources-2026-03-01.jsonl", l.FileName())

	require.NoError(t, l.Export(context.Background(), testBatch(now)))
	require.NoError(t, l.Export(context.Background(), testBatch(now.Add(time.Second))))
	require.NoError(t, l.Close())

	recs := readRecords(t, filepath.Join(dir, "resources-2026-03-01.jsonl"))
	require.Len(t, recs, 4)
	assert.Equal(t, "2026-03-01T12:00:00Z", recs[0]["timestamp"])
	assert.Equal(t, sample.SystemCPUUsage, recs[0]["category"])
	assert.Equal(t, map[string]interface{}{"cpu": "total"}, recs[0]["labels"])
	assert.Equal(t, 37.5, recs[0]["cpu_percent"])
	assert.Equal(t, 2048.0, recs[1]["rss_bytes"])
}

func TestLocalSinkFailureIsolatedInManager(t *testing.T) {
	clk := clocktesting.NewFakeClock(now)

	brokenDir := t.TempDir()
	broken, err := NewLocal(brokenDir, clk)
	require.NoError(t, err)
	// A directory where the day file should be makes every append fail.
	require.NoError(t, os.Mkdir(filepath.Join(brokenDir, broken.FileName()), 0o755))

	healthyDir := t.TempDir()
	healthy, err := NewLocal(healthyDir, clk)
	require.NoError(t, err)

	metrics := observability.New()
	src := collectorFunc(func() sample.Batch { return testBatch(clk.Now()) })
	m := collector.NewManager(time.Second, []collector.Collector{src}, []collector.Sink{brokenSink{broken}, healthy},
		collector.WithClock(clk), collector.WithMetrics(metrics))

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, clk.HasWaiters, 5*time.Second, time.Millisecond)
	clk.Step(time.Second)
	require.Eventually(t, clk.HasWaiters, 5*time.Second, time.Millisecond)
	require.NoError(t, m.Stop())
	require.NoError(t, m.Close())

	assert.Len(t, readRecords(t, filepath.Join(healthyDir, healthy.FileName())), 4)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SinkFailures.WithLabelValues("broken")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Ticks))
}

type collectorFunc func() sample.Batch

func (collectorFunc) Name() string { return "func" }

func (f collectorFunc) Collect(context.Context) sample.Batch { return f() }

type brokenSink struct{ *Local }

func (brokenSink) Name() string { return "broken" }

func TestOTelSinkRecordsGauges(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	o := newOTel(reader, "trace-claw-test")
	defer o.Close()

	ctx := context.Background()
	require.NoError(t, o.Export(ctx, testBatch(now)))

	multi := sample.Sample{
		Category: "system.disk",
		Fields:   map[string]float64{"free_bytes": 10, "used_bytes": 30},
		Labels:   map[string]string{"mount": "/"},
		Unit:     "bytes",
	}
	require.NoError(t, o.Export(ctx, sample.Batch{multi}))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	svc, ok := rm.Resource.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "trace-claw-test", svc.AsString())

	gauges := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			gauges[m.Name] = m
		}
	}
	require.Contains(t, gauges, sample.SystemCPUUsage)
	require.Contains(t, gauges, "system.disk.free_bytes")
	require.Contains(t, gauges, "system.disk.used_bytes")
	assert.Equal(t, "By", gauges[sample.ProcessMemoryRSS].Unit)

	cpu, ok := gauges[sample.SystemCPUUsage].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, cpu.DataPoints, 1)
	assert.Equal(t, 37.5, cpu.DataPoints[0].Value)
	label, ok := cpu.DataPoints[0].Attributes.Value(attribute.Key(sample.LabelCPU))
	require.True(t, ok)
	assert.Equal(t, sample.CPUTotal, label.AsString())
}

func TestMetricsURL(t *testing.T) {
	assert.Equal(t, "http://localhost:4318/v1/metrics", metricsURL("http://localhost:4318"))
	assert.Equal(t, "http://localhost:4318/v1/metrics", metricsURL("http://localhost:4318/"))
	assert.Equal(t, "http://collector/v1/metrics", metricsURL("http://collector/v1/metrics"))
}

func TestPromFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "traceclaw.prom")
	p, err := NewPromFile(path, time.Minute)
	require.NoError(t, err)

	require.NoError(t, p.Export(context.Background(), testBatch(now)))

	// The second batch refreshes the cpu series only; rss goes stale.
	later := now.Add(2 * time.Minute)
	cpuOnly := sample.Batch{sample.Of(sample.SystemCPUUsage, later, map[string]string{sample.LabelCPU: sample.CPUTotal}, 50)}
	require.NoError(t, p.Export(context.Background(), cpuOnly))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	require.NoError(t, err)

	require.Contains(t, families, "system_cpu_usage_percent")
	assert.NotContains(t, families, "process_memory_rss_bytes")
	cpu := families["system_cpu_usage_percent"]
	require.Len(t, cpu.Metric, 1)
	assert.Equal(t, 50.0, cpu.Metric[0].GetGauge().GetValue())
	assert.Equal(t, "cpu", cpu.Metric[0].Label[0].GetName())
}

func TestPromName(t *testing.T) {
	assert.Equal(t, "process_io_read_bytes_rate", PromName(sample.ProcessIOReadRate))
	assert.Equal(t, "a_b_c", PromName("a.b-c"))
}
