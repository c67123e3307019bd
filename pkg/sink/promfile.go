package sink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/mitchellh/hashstructure/v2"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/exp/slices"
	"k8s.io/utils/ptr"

	"github.com/voluzi/traceclaw/pkg/collector"
	"github.com/voluzi/traceclaw/pkg/sample"
)

const DefaultStaleAfter = 5 * time.Minute

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

type seriesKey struct {
	Name   string
	Labels map[string]string
}

type series struct {
	name   string
	help   string
	labels map[string]string
	value  float64
	seen   time.Time
}

// PromFile keeps the latest value of every series and rewrites a Prometheus
// textfile after each batch, for node_exporter's textfile collector. Series
// not refreshed within the stale window are dropped.
type PromFile struct {
	path       string
	staleAfter time.Duration

	mu     sync.Mutex
	series map[uint64]*series
}

var _ collector.Sink = (*PromFile)(nil)

func NewPromFile(path string, staleAfter time.Duration) (*PromFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating directory for %s", path)
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &PromFile{
		path:       path,
		staleAfter: staleAfter,
		series:     make(map[uint64]*series),
	}, nil
}

func (p *PromFile) Name() string {
	return "prometheus"
}

func (p *PromFile) Export(_ context.Context, batch sample.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var newest time.Time
	for _, s := range batch {
		if s.Timestamp.After(newest) {
			newest = s.Timestamp
		}
		for _, field := range s.FieldNames() {
			name := PromName(MetricName(s, field))
			key, err := hashstructure.Hash(seriesKey{Name: name, Labels: s.Labels}, hashstructure.FormatV2, nil)
			if err != nil {
				return errors.Wrapf(err, "hashing series %s", name)
			}
			p.series[key] = &series{
				name:   name,
				help:   s.Description,
				labels: s.Labels,
				value:  s.Fields[field],
				seen:   s.Timestamp,
			}
		}
	}

	for key, sr := range p.series {
		if newest.Sub(sr.seen) > p.staleAfter {
			delete(p.series, key)
		}
	}
	return p.write()
}

func (p *PromFile) Close() error {
	return nil
}

func (p *PromFile) write() error {
	var buf bytes.Buffer
	for _, mf := range p.families() {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return errors.Wrapf(err, "encoding %s", mf.GetName())
		}
	}

	// Write to a sibling file and rename so scrapers never see a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(p.path), "."+filepath.Base(p.path)+".*")
	if err != nil {
		return errors.Wrap(err, "creating temporary textfile")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return errors.Wrapf(os.Rename(tmp.Name(), p.path), "replacing %s", p.path)
}

func (p *PromFile) families() []*dto.MetricFamily {
	byName := make(map[string]*dto.MetricFamily)
	for _, sr := range p.series {
		mf, ok := byName[sr.name]
		if !ok {
			mf = &dto.MetricFamily{
				Name: ptr.To(sr.name),
				Type: dto.MetricType_GAUGE.Enum(),
			}
			if sr.help != "" {
				mf.Help = ptr.To(sr.help)
			}
			byName[sr.name] = mf
		}
		mf.Metric = append(mf.Metric, &dto.Metric{
			Label: labelPairs(sr.labels),
			Gauge: &dto.Gauge{Value: ptr.To(sr.value)},
		})
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]*dto.MetricFamily, 0, len(names))
	for _, name := range names {
		mf := byName[name]
		slices.SortFunc(mf.Metric, func(a, b *dto.Metric) int {
			return strings.Compare(labelString(a), labelString(b))
		})
		out = append(out, mf)
	}
	return out
}

func labelPairs(labels map[string]string) []*dto.LabelPair {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]*dto.LabelPair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, &dto.LabelPair{
			Name:  ptr.To(invalidMetricChars.ReplaceAllString(k, "_")),
			Value: ptr.To(labels[k]),
		})
	}
	return pairs
}

func labelString(m *dto.Metric) string {
	var sb strings.Builder
	for _, lp := range m.Label {
		sb.WriteString(lp.GetName())
		sb.WriteByte('=')
		sb.WriteString(lp.GetValue())
		sb.WriteByte(',')
	}
	return sb.String()
}

// PromName turns a dotted category into a valid Prometheus metric name.
func PromName(name string) string {
	return invalidMetricChars.ReplaceAllString(name, "_")
}
