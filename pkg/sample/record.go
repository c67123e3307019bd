package sample

import (
	"fmt"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"golang.org/x/exp/slices"

	"github.com/voluzi/traceclaw/internal/jsonl"
)

// ErrNotResource is returned for records that carry neither a category nor
// a legacy metric name.
var ErrNotResource = errors.NewPlain("record is not a resource sample")

// Reserved keys of a persisted resource record. Every other numeric key is a
// field of the sample.
const (
	KeyTimestamp   = "timestamp"
	KeyCategory    = "category"
	KeyLabels      = "labels"
	KeyUnit        = "unit"
	KeyDescription = "description"
)

// TimeLayout is the timestamp format of persisted records.
const TimeLayout = time.RFC3339Nano

// Record flattens s into the persisted resource record: timestamp, category
// and labels next to one key per field.
func (s Sample) Record() map[string]interface{} {
	rec := make(map[string]interface{}, len(s.Fields)+4)
	for k, v := range s.Fields {
		rec[k] = v
	}
	rec[KeyTimestamp] = s.Timestamp.UTC().Format(TimeLayout)
	rec[KeyCategory] = s.Category
	labels := s.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	rec[KeyLabels] = labels
	if s.Unit != "" {
		rec[KeyUnit] = s.Unit
	}
	return rec
}

// SortedLabelKeys returns the label keys of s in lexical order.
func (s Sample) SortedLabelKeys() []string {
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// IsReserved reports whether key is metadata rather than a field.
func IsReserved(key string) bool {
	switch key {
	case KeyTimestamp, KeyCategory, KeyLabels, KeyUnit, KeyDescription:
		return true
	}
	return false
}

// FromRecord rebuilds a sample from a persisted resource record. Besides the
// shape written by Record it accepts the legacy flat shape
// {"timestamp", "name", "value", "unit", "labels"}.
func FromRecord(m map[string]interface{}) (Sample, error) {
	category, _ := m[KeyCategory].(string)
	legacy := false
	if category == "" {
		category, _ = m["name"].(string)
		legacy = true
	}
	if category == "" {
		return Sample{}, ErrNotResource
	}

	ts, err := jsonl.ParseTime(m[KeyTimestamp])
	if err != nil {
		return Sample{}, err
	}

	s := Sample{
		Category:  category,
		Timestamp: ts,
		Labels:    map[string]string{},
		Fields:    map[string]float64{},
	}
	if labels, ok := m[KeyLabels].(map[string]interface{}); ok {
		for k, v := range labels {
			if str, ok := v.(string); ok {
				s.Labels[k] = str
			} else {
				s.Labels[k] = fmt.Sprint(v)
			}
		}
	}
	s.Unit, _ = m[KeyUnit].(string)
	s.Description, _ = m[KeyDescription].(string)

	if legacy {
		v, ok := number(m["value"])
		if !ok {
			return Sample{}, errors.Errorf("legacy sample %q has no numeric value", category)
		}
		s.Fields[Field(category)] = v
	} else {
		for k, raw := range m {
			if IsReserved(k) {
				continue
			}
			if v, ok := number(raw); ok {
				s.Fields[k] = v
			}
		}
	}
	if len(s.Fields) == 0 {
		return Sample{}, errors.Errorf("sample %q has no numeric fields", category)
	}
	if s.Unit == "" {
		s.Unit = UnitOf(category)
	}
	return s, nil
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
