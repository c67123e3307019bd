package analyzer

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/voluzi/traceclaw/pkg/openclaw"
	"github.com/voluzi/traceclaw/pkg/sample"
)

type EntryKind string

const (
	KindEvent    EntryKind = "event"
	KindResource EntryKind = "resource"
)

// TimelineEntry is one row of the merged timeline. Exactly one of Event and
// Resource is set.
type TimelineEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	RelativeMs float64                `json:"relative_ms"`
	Kind       EntryKind              `json:"kind"`
	Category   string                 `json:"category"`
	Type       string                 `json:"event_type"`
	Label      string                 `json:"label"`
	Value      float64                `json:"value"`
	Unit       string                 `json:"unit,omitempty"`
	DurationMs float64                `json:"duration_ms,omitempty"`
	Status     string                 `json:"status"`
	Details    map[string]interface{} `json:"details,omitempty"`

	Event    *openclaw.Event `json:"-"`
	Resource *sample.Sample  `json:"-"`
}

// displayCategories maps category prefixes to the coarse group shown in the
// timeline. Order matters: the first matching prefix wins.
var displayCategories = []struct{ prefix, name string }{
	{"system.cpu", "cpu"},
	{"system.memory", "memory"},
	{"system.swap", "memory"},
	{"system.network", "network"},
	{"process.", "process"},
}

// DisplayCategory returns the timeline group of a resource category.
func DisplayCategory(category string) string {
	for _, c := range displayCategories {
		if strings.HasPrefix(category, c.prefix) {
			return c.name
		}
	}
	return "resource"
}

// BuildTimeline merges events and resources into one time-ordered sequence.
// Equal timestamps keep events before resources and input order within each
// stream.
func BuildTimeline(events []openclaw.Event, resources []sample.Sample) []TimelineEntry {
	if len(events) == 0 && len(resources) == 0 {
		return nil
	}
	events = sortedEvents(events)
	resources = sortedResources(resources)
	t0 := origin(events, resources)

	entries := make([]TimelineEntry, 0, len(events)+len(resources))
	i, j := 0, 0
	for i < len(events) || j < len(resources) {
		if j == len(resources) || (i < len(events) && !resources[j].Timestamp.Before(events[i].Timestamp)) {
			entries = append(entries, eventEntry(&events[i], t0))
			i++
			continue
		}
		entries = append(entries, resourceEntry(&resources[j], t0))
		j++
	}
	return entries
}

func eventEntry(e *openclaw.Event, t0 time.Time) TimelineEntry {
	label := e.Type
	if e.Payload.Model != "" {
		label += " | " + e.Payload.Model
	} else if e.Payload.Tool != "" {
		label += " | " + e.Payload.Tool
	}

	details := map[string]interface{}{}
	if tokens := e.Tokens(); tokens > 0 {
		details["tokens_total"] = tokens
		details["tokens_input"] = e.Payload.TokensInput
		details["tokens_output"] = e.Payload.TokensOutput
	}
	if e.Payload.CostUSD != 0 {
		details["cost_usd"] = e.Payload.CostUSD
	}
	if e.Payload.Error != "" {
		details["error"] = e.Payload.Error
	}
	if e.SessionID != "" {
		details["session_id"] = e.SessionID
	}
	if len(details) == 0 {
		details = nil
	}

	return TimelineEntry{
		Timestamp:  e.Timestamp,
		RelativeMs: relativeMs(e.Timestamp, t0),
		Kind:       KindEvent,
		Category:   "openclaw",
		Type:       e.Type,
		Label:      label,
		Value:      e.Payload.DurationMs,
		Unit:       "ms",
		DurationMs: e.Payload.DurationMs,
		Status:     e.Status(),
		Details:    details,
		Event:      e,
	}
}

func resourceEntry(s *sample.Sample, t0 time.Time) TimelineEntry {
	label := s.Category
	if keys := s.SortedLabelKeys(); len(keys) > 0 {
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, s.Labels[k]))
		}
		label = fmt.Sprintf("%s (%s)", s.Category, strings.Join(pairs, ", "))
	}
	value, _ := s.Value()

	var details map[string]interface{}
	if len(s.Fields) > 1 {
		details = make(map[string]interface{}, len(s.Fields))
		for k, v := range s.Fields {
			details[k] = v
		}
	}

	return TimelineEntry{
		Timestamp:  s.Timestamp,
		RelativeMs: relativeMs(s.Timestamp, t0),
		Kind:       KindResource,
		Category:   DisplayCategory(s.Category),
		Type:       s.Category,
		Label:      label,
		Value:      value,
		Unit:       s.Unit,
		Status:     openclaw.StatusOK,
		Details:    details,
		Resource:   s,
	}
}

// origin is the earliest timestamp of either stream. Both must be sorted.
func origin(events []openclaw.Event, resources []sample.Sample) time.Time {
	switch {
	case len(events) == 0:
		return resources[0].Timestamp
	case len(resources) == 0:
		return events[0].Timestamp
	case resources[0].Timestamp.Before(events[0].Timestamp):
		return resources[0].Timestamp
	default:
		return events[0].Timestamp
	}
}

func relativeMs(ts, t0 time.Time) float64 {
	return float64(ts.Sub(t0)) / float64(time.Millisecond)
}

func sortedEvents(events []openclaw.Event) []openclaw.Event {
	cmp := func(a, b openclaw.Event) int { return a.Timestamp.Compare(b.Timestamp) }
	if slices.IsSortedFunc(events, cmp) {
		return events
	}
	out := slices.Clone(events)
	slices.SortStableFunc(out, cmp)
	return out
}

func sortedResources(resources []sample.Sample) []sample.Sample {
	cmp := func(a, b sample.Sample) int { return a.Timestamp.Compare(b.Timestamp) }
	if slices.IsSortedFunc(resources, cmp) {
		return resources
	}
	out := slices.Clone(resources)
	slices.SortStableFunc(out, cmp)
	return out
}
