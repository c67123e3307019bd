package sample

import (
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// Sample is a single timestamped measurement produced by a collector.
// Samples are treated as immutable once created: sinks receive a shared
// reference to the same batch and must not modify labels or fields.
type Sample struct {
	Category    string
	Timestamp   time.Time
	Labels      map[string]string
	Fields      map[string]float64
	Unit        string
	Description string
}

// Batch is the set of samples gathered during one tick.
type Batch []Sample

// New creates a single-field sample.
func New(category string, ts time.Time, labels map[string]string, field string, value float64) Sample {
	if labels == nil {
		labels = map[string]string{}
	}
	return Sample{
		Category:  category,
		Timestamp: ts,
		Labels:    labels,
		Fields:    map[string]float64{field: value},
		Unit:      UnitOf(category),
	}
}

// Of creates a single-field sample for a built-in category using its
// primary field name.
func Of(category string, ts time.Time, labels map[string]string, value float64) Sample {
	return New(category, ts, labels, Field(category), value)
}

// WithDescription returns a copy of s carrying the given description.
func (s Sample) WithDescription(desc string) Sample {
	s.Description = desc
	return s
}

// Label returns the value of a label, or an empty string.
func (s Sample) Label(key string) string {
	return s.Labels[key]
}

// Value returns the primary numeric value of the sample. For single-field
// samples this is the only field; for multi-field samples it is the field
// named after the last segment of the category, if present.
func (s Sample) Value() (float64, bool) {
	if len(s.Fields) == 1 {
		for _, v := range s.Fields {
			return v, true
		}
	}
	if f, ok := PrimaryField[s.Category]; ok {
		v, ok := s.Fields[f]
		return v, ok
	}
	v, ok := s.Fields[s.Category[strings.LastIndex(s.Category, ".")+1:]]
	return v, ok
}

// FieldNames returns the sample's field names in sorted order.
func (s Sample) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
