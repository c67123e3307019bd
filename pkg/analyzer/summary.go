package analyzer

import (
	"math"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/voluzi/traceclaw/pkg/openclaw"
	"github.com/voluzi/traceclaw/pkg/sample"
)

// DefaultSessionID names events logged without a session.
const DefaultSessionID = "default"

// Percentile returns the p-th percentile of values using linear
// interpolation between the closest ranks. It returns 0 for no values.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	p = math.Max(0, math.Min(100, p))

	idx := p / 100 * float64(len(sorted)-1)
	low := int(idx)
	high := low + 1
	if high >= len(sorted) {
		return sorted[low]
	}
	frac := idx - float64(low)
	return sorted[low]*(1-frac) + sorted[high]*frac
}

// Stat describes a set of readings.
type Stat struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
}

func newStat(values []float64) Stat {
	if len(values) == 0 {
		return Stat{}
	}
	st := Stat{Count: len(values), Max: values[0]}
	sum := 0.0
	for _, v := range values {
		sum += v
		st.Max = math.Max(st.Max, v)
	}
	st.Avg = sum / float64(len(values))
	return st
}

type LatencyStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg_ms"`
	P50   float64 `json:"p50_ms"`
	P95   float64 `json:"p95_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

func newLatencyStats(values []float64) LatencyStats {
	st := newStat(values)
	return LatencyStats{
		Count: st.Count,
		Avg:   st.Avg,
		P50:   Percentile(values, 50),
		P95:   Percentile(values, 95),
		P99:   Percentile(values, 99),
		Max:   st.Max,
	}
}

type SystemStats struct {
	CPUPercent    Stat `json:"cpu_percent"`
	MemoryPercent Stat `json:"memory_percent"`
	NetRecvRate   Stat `json:"net_recv_rate"`
}

type ProcessStats struct {
	CPUPercent Stat `json:"cpu_percent"`
	RSSBytes   Stat `json:"rss_bytes"`
	// IOReadBytes and IOWriteBytes are the bytes moved during the window,
	// summed over every process generation.
	IOReadBytes  float64 `json:"io_read_bytes"`
	IOWriteBytes float64 `json:"io_write_bytes"`
	Restarts     int     `json:"restarts"`
}

type SessionSummary struct {
	SessionID     string       `json:"session_id"`
	Start         *time.Time   `json:"start,omitempty"`
	End           *time.Time   `json:"end,omitempty"`
	DurationMs    float64      `json:"duration_ms"`
	EventCount    int          `json:"event_count"`
	ActionCount   int          `json:"action_count"`
	ModelCalls    int          `json:"model_calls"`
	ToolCalls     int          `json:"tool_calls"`
	TokensInput   int64        `json:"tokens_input"`
	TokensOutput  int64        `json:"tokens_output"`
	TokensTotal   int64        `json:"tokens_total"`
	CostUSD       float64      `json:"cost_usd"`
	Latency       LatencyStats `json:"latency"`
	ErrorCount    int          `json:"error_count"`
	TerminalCount int          `json:"terminal_count"`
	ErrorRate     float64      `json:"error_rate"`
	ModelsUsed    []string     `json:"models_used"`
	ProvidersUsed []string     `json:"providers_used"`
	System        SystemStats  `json:"system"`
	Process       ProcessStats `json:"process"`
	Resources     int          `json:"resource_samples"`
}

type MultiSessionSummary struct {
	SessionCount         int              `json:"session_count"`
	Overall              SessionSummary   `json:"overall"`
	AvgSessionDurationMs float64          `json:"avg_session_duration_ms"`
	Sessions             []SessionSummary `json:"sessions"`
}

// Session is the events of one session with the resources sampled while it
// was active.
type Session struct {
	ID        string
	Events    []openclaw.Event
	Resources []sample.Sample
}

// GroupBySession splits events by session id. Each session receives the
// resources sampled between its first and last event, widened by pad on
// both sides. Sessions are ordered by first event.
func GroupBySession(events []openclaw.Event, resources []sample.Sample, pad time.Duration) []Session {
	events = sortedEvents(events)
	resources = sortedResources(resources)

	var sessions []Session
	byID := make(map[string]int)
	for _, e := range events {
		id := e.SessionID
		if id == "" {
			id = DefaultSessionID
		}
		i, ok := byID[id]
		if !ok {
			i = len(sessions)
			byID[id] = i
			sessions = append(sessions, Session{ID: id})
		}
		sessions[i].Events = append(sessions[i].Events, e)
	}

	for i := range sessions {
		from := sessions[i].Events[0].Timestamp.Add(-pad)
		to := sessions[i].Events[len(sessions[i].Events)-1].Timestamp.Add(pad)
		lo, _ := slices.BinarySearchFunc(resources, from, func(s sample.Sample, t time.Time) int {
			// first sample not before from
			if s.Timestamp.Before(t) {
				return -1
			}
			return 1
		})
		hi := lo
		for hi < len(resources) && !resources[hi].Timestamp.After(to) {
			hi++
		}
		sessions[i].Resources = resources[lo:hi]
	}
	return sessions
}

// accumulator gathers the raw values a summary is computed from, so that
// summaries over several sessions are derived from the union of their
// values rather than from per-session aggregates.
type accumulator struct {
	s         SessionSummary
	latencies []float64
	models    map[string]bool
	providers map[string]bool

	cpu, mem, netRecv []float64
	procCPU           map[int64]float64
	procRSS           map[int64]float64
	counters          map[string]*counter
	generations       map[string]bool

	seen map[resourceKey]bool
}

type resourceKey struct {
	category string
	at       int64
	labels   string
}

// counter accumulates growth of one cumulative series. A decrease starts a
// new baseline.
type counter struct {
	category string
	last     float64
	total    float64
}

func newAccumulator(id string) *accumulator {
	return &accumulator{
		s:           SessionSummary{SessionID: id},
		models:      make(map[string]bool),
		providers:   make(map[string]bool),
		procCPU:     make(map[int64]float64),
		procRSS:     make(map[int64]float64),
		counters:    make(map[string]*counter),
		generations: make(map[string]bool),
		seen:        make(map[resourceKey]bool),
	}
}

func (a *accumulator) addEvents(events []openclaw.Event) {
	for _, e := range events {
		a.s.EventCount++
		ts := e.Timestamp
		if a.s.Start == nil || ts.Before(*a.s.Start) {
			a.s.Start = &ts
		}
		if a.s.End == nil || ts.After(*a.s.End) {
			a.s.End = &ts
		}

		if e.IsAction() {
			a.s.ActionCount++
			if e.Payload.DurationMs > 0 {
				a.latencies = append(a.latencies, e.Payload.DurationMs)
			}
		}
		switch e.Type {
		case openclaw.TypeModelUsage:
			a.s.ModelCalls++
		case openclaw.TypeToolCall:
			a.s.ToolCalls++
		}
		a.s.TokensInput += e.Payload.TokensInput
		a.s.TokensOutput += e.Payload.TokensOutput
		a.s.TokensTotal += e.Tokens()
		a.s.CostUSD += e.Payload.CostUSD
		if e.Payload.Model != "" {
			a.models[e.Payload.Model] = true
		}
		if e.Payload.Provider != "" {
			a.providers[e.Payload.Provider] = true
		}

		if e.IsTerminal() {
			a.s.TerminalCount++
			if e.IsError() {
				a.s.ErrorCount++
			}
		}
	}
}

// addResources expects resources sorted by timestamp. Samples already seen
// by this accumulator are ignored.
func (a *accumulator) addResources(resources []sample.Sample) {
	for _, r := range resources {
		labels := labelKey(r)
		key := resourceKey{category: r.Category, at: r.Timestamp.UnixNano(), labels: labels}
		if a.seen[key] {
			continue
		}
		a.seen[key] = true
		a.s.Resources++

		v, ok := r.Value()
		if !ok {
			continue
		}
		switch r.Category {
		case sample.SystemCPUUsage:
			if r.Label(sample.LabelCPU) == sample.CPUTotal {
				a.cpu = append(a.cpu, v)
			}
		case sample.SystemMemoryUsage:
			a.mem = append(a.mem, v)
		case sample.SystemNetRecvRate:
			a.netRecv = append(a.netRecv, v)
		case sample.ProcessCPUUsage:
			a.procCPU[r.Timestamp.UnixNano()] += v
		case sample.ProcessMemoryRSS:
			a.procRSS[r.Timestamp.UnixNano()] += v
		}

		if sample.IsProcess(r.Category) && r.Label(sample.LabelPID) != "" {
			a.generations[r.Label(sample.LabelProcessName)+"/"+r.Label(sample.LabelGeneration)] = true
		}

		if sample.Cumulative[r.Category] {
			// process counters are keyed by pid and generation, host
			// counters by interface
			c, ok := a.counters[r.Category+"|"+labels]
			if !ok {
				a.counters[r.Category+"|"+labels] = &counter{category: r.Category, last: v}
				continue
			}
			if v >= c.last {
				c.total += v - c.last
			}
			c.last = v
		}
	}
}

func labelKey(s sample.Sample) string {
	var b strings.Builder
	for _, k := range s.SortedLabelKeys() {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s.Labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func (a *accumulator) summary() SessionSummary {
	s := a.s
	if s.Start != nil {
		s.DurationMs = relativeMs(*s.End, *s.Start)
	}
	s.Latency = newLatencyStats(a.latencies)
	if s.TerminalCount > 0 {
		s.ErrorRate = float64(s.ErrorCount) / float64(s.TerminalCount)
	}
	s.ModelsUsed = sortedKeys(a.models)
	s.ProvidersUsed = sortedKeys(a.providers)

	s.System = SystemStats{
		CPUPercent:    newStat(a.cpu),
		MemoryPercent: newStat(a.mem),
		NetRecvRate:   newStat(a.netRecv),
	}
	s.Process.CPUPercent = newStat(valuesOf(a.procCPU))
	s.Process.RSSBytes = newStat(valuesOf(a.procRSS))
	for _, c := range a.counters {
		switch c.category {
		case sample.ProcessIOReadBytes:
			s.Process.IOReadBytes += c.total
		case sample.ProcessIOWriteBytes:
			s.Process.IOWriteBytes += c.total
		}
	}
	if n := len(a.generations); n > 1 {
		s.Process.Restarts = n - 1
	}
	return s
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func valuesOf(m map[int64]float64) []float64 {
	values := make([]float64, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	return values
}

// SummarizeSession computes statistics over one session's events and the
// resources sampled while it ran. An empty id uses DefaultSessionID.
func SummarizeSession(events []openclaw.Event, resources []sample.Sample, id string) SessionSummary {
	if id == "" {
		id = DefaultSessionID
	}
	acc := newAccumulator(id)
	acc.addEvents(events)
	acc.addResources(sortedResources(resources))
	return acc.summary()
}

// SummarizeMultiSession summarizes every session and computes the overall
// figures from the union of their raw values. Resources shared by
// overlapping sessions are counted once.
func SummarizeMultiSession(sessions []Session) MultiSessionSummary {
	multi := MultiSessionSummary{
		SessionCount: len(sessions),
		Sessions:     make([]SessionSummary, 0, len(sessions)),
	}
	overall := newAccumulator("all")

	var (
		durations []float64
		union     []sample.Sample
	)
	for _, sess := range sessions {
		s := SummarizeSession(sess.Events, sess.Resources, sess.ID)
		multi.Sessions = append(multi.Sessions, s)
		if s.DurationMs > 0 {
			durations = append(durations, s.DurationMs)
		}
		overall.addEvents(sess.Events)
		union = append(union, sess.Resources...)
	}
	overall.addResources(sortedResources(union))

	multi.Overall = overall.summary()
	multi.AvgSessionDurationMs = newStat(durations).Avg
	return multi
}
