package analyzer

import (
	"time"

	"golang.org/x/exp/slices"
	"k8s.io/utils/ptr"

	"github.com/voluzi/traceclaw/pkg/openclaw"
	"github.com/voluzi/traceclaw/pkg/sample"
)

// DefaultWindow is half of the default two second collection interval.
const DefaultWindow = time.Second

type Options struct {
	// Window is the largest distance, on either side of an action, at which
	// a resource sample is still attached to it. Zero uses DefaultWindow.
	Window time.Duration
}

func (o Options) window() time.Duration {
	if o.Window > 0 {
		return o.Window
	}
	return DefaultWindow
}

// SystemResources holds host readings nearest to an action. Nil means no
// sample fell inside the correlation window.
type SystemResources struct {
	CPUPercent    *float64 `json:"cpu_percent"`
	MemoryPercent *float64 `json:"memory_percent"`
	NetRecvRate   *float64 `json:"net_recv_rate"`
	NetSentRate   *float64 `json:"net_sent_rate"`
}

// ProcessResources holds target process readings nearest to an action,
// summed over every PID sampled at the matched instant.
type ProcessResources struct {
	CPUPercent    *float64 `json:"cpu_percent"`
	RSSBytes      *float64 `json:"rss_bytes"`
	MemoryPercent *float64 `json:"memory_percent"`
}

type ActionTimelineRow struct {
	Timestamp    time.Time `json:"timestamp"`
	RelativeMs   float64   `json:"relative_ms"`
	Action       string    `json:"action"`
	EventType    string    `json:"event_type"`
	SessionID    string    `json:"session_id,omitempty"`
	Status       string    `json:"status"`

	// Nil when the event does not report the value.
	DurationMs   *float64 `json:"duration_ms"`
	TokensInput  *int64   `json:"tokens_input"`
	TokensOutput *int64   `json:"tokens_output"`
	TokensTotal  *int64   `json:"tokens_total"`
	CostUSD      *float64 `json:"cost_usd"`

	System  SystemResources  `json:"system"`
	Process ProcessResources `json:"process"`
}

type point struct {
	at    time.Time
	value float64
}

// series is a time-ordered sequence of distinct instants; samples of one
// category taken at the same instant are summed.
type series []point

func (s series) nearest(at time.Time, window time.Duration) *float64 {
	if len(s) == 0 {
		return nil
	}
	i, found := slices.BinarySearchFunc(s, at, func(p point, t time.Time) int {
		return p.at.Compare(t)
	})
	if found {
		return ptr.To(s[i].value)
	}

	best := -1
	var bestDist time.Duration
	// s[i-1] is before the action, s[i] after it. Earlier wins ties.
	if i > 0 {
		best, bestDist = i-1, at.Sub(s[i-1].at)
	}
	if i < len(s) {
		if d := s[i].at.Sub(at); best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if bestDist > window {
		return nil
	}
	return ptr.To(s[best].value)
}

func indexResources(resources []sample.Sample) map[string]series {
	index := make(map[string]series)
	for _, r := range resources {
		// per-core CPU samples would be summed with the total
		if r.Category == sample.SystemCPUUsage && r.Label(sample.LabelCPU) != sample.CPUTotal {
			continue
		}
		v, ok := r.Value()
		if !ok {
			continue
		}
		s := index[r.Category]
		if n := len(s); n > 0 && s[n-1].at.Equal(r.Timestamp) {
			s[n-1].value += v
			continue
		}
		index[r.Category] = append(s, point{at: r.Timestamp, value: v})
	}
	return index
}

// BuildActionTimeline returns one row per action event, each carrying the
// resource readings nearest to it within the correlation window.
func BuildActionTimeline(events []openclaw.Event, resources []sample.Sample, opts Options) []ActionTimelineRow {
	if len(events) == 0 {
		return nil
	}
	events = sortedEvents(events)
	resources = sortedResources(resources)
	t0 := origin(events, resources)
	window := opts.window()
	index := indexResources(resources)

	nearest := func(category string, at time.Time) *float64 {
		return index[category].nearest(at, window)
	}

	var rows []ActionTimelineRow
	for _, e := range events {
		if !e.IsAction() {
			continue
		}
		rows = append(rows, ActionTimelineRow{
			Timestamp:    e.Timestamp,
			RelativeMs:   relativeMs(e.Timestamp, t0),
			Action:       e.Label(),
			EventType:    e.Type,
			SessionID:    e.SessionID,
			Status:       e.Status(),
			DurationMs:   reported(e.Payload.DurationMs),
			TokensInput:  reported(e.Payload.TokensInput),
			TokensOutput: reported(e.Payload.TokensOutput),
			TokensTotal:  reported(e.Tokens()),
			CostUSD:      reported(e.Payload.CostUSD),
			System: SystemResources{
				CPUPercent:    nearest(sample.SystemCPUUsage, e.Timestamp),
				MemoryPercent: nearest(sample.SystemMemoryUsage, e.Timestamp),
				NetRecvRate:   nearest(sample.SystemNetRecvRate, e.Timestamp),
				NetSentRate:   nearest(sample.SystemNetSentRate, e.Timestamp),
			},
			Process: ProcessResources{
				CPUPercent:    nearest(sample.ProcessCPUUsage, e.Timestamp),
				RSSBytes:      nearest(sample.ProcessMemoryRSS, e.Timestamp),
				MemoryPercent: nearest(sample.ProcessMemoryUsage, e.Timestamp),
			},
		})
	}
	return rows
}

// reported maps a zero payload value to nil. Event payloads omit zero
// values on the wire, so zero and absent cannot be told apart.
func reported[T int64 | float64](v T) *T {
	if v == 0 {
		return nil
	}
	return ptr.To(v)
}
