package procident

import (
	"cmp"
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"
)

const (
	DefaultGraceTicks    = 3
	DefaultRecencyWindow = 30 * time.Second
)

// Identity tracks one PID resolved under the target name.
type Identity struct {
	PID        int32     `json:"pid"`
	Name       string    `json:"name"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Generation int       `json:"generation"`
	// Missing counts consecutive ticks the PID was not observed.
	Missing int `json:"missing"`
}

type evicted struct {
	identity   Identity
	at         time.Time
	superseded bool
}

// Reconciliation is the outcome of one tick.
type Reconciliation struct {
	// Live holds identities observed this tick, ordered by PID.
	Live []Identity
	// Added holds identities created this tick.
	Added []Identity
	// Evicted holds identities dropped this tick.
	Evicted []Identity
	// Restarted is set when the new PIDs of this tick replaced a vanished
	// predecessor and therefore started a new generation.
	Restarted bool
}

// Tracker resolves a target name to live PIDs and keeps their identity
// across ticks. It is not safe for concurrent use: it belongs to the
// collector that drives it.
type Tracker struct {
	target        string
	lister        Lister
	clock         clock.PassiveClock
	graceTicks    int
	recencyWindow time.Duration

	identities map[int32]*Identity
	evicted    []*evicted
	// superseded marks tracked-but-missing identities already replaced by a
	// newer generation.
	superseded map[int32]bool

	lastMatches int
	resolved    bool
}

type Option func(*Tracker)

// WithGraceTicks sets how many consecutive missed ticks evict a PID.
func WithGraceTicks(n int) Option {
	return func(t *Tracker) {
		t.graceTicks = n
	}
}

// WithRecencyWindow sets how long an evicted identity still counts as the
// predecessor of a new PID.
func WithRecencyWindow(d time.Duration) Option {
	return func(t *Tracker) {
		t.recencyWindow = d
	}
}

func WithClock(c clock.PassiveClock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

func NewTracker(target string, lister Lister, opts ...Option) *Tracker {
	t := &Tracker{
		target:        target,
		lister:        lister,
		clock:         clock.RealClock{},
		graceTicks:    DefaultGraceTicks,
		recencyWindow: DefaultRecencyWindow,
		identities:    make(map[int32]*Identity),
		superseded:    make(map[int32]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.graceTicks < 1 {
		t.graceTicks = 1
	}
	return t
}

func (t *Tracker) Target() string {
	return t.target
}

// Resolve enumerates live processes and reconciles them against the
// tracked set.
func (t *Tracker) Resolve(ctx context.Context) (Reconciliation, error) {
	procs, err := t.lister.List(ctx)
	if err != nil {
		return Reconciliation{}, err
	}

	var matches []ProcessInfo
	for _, p := range procs {
		if Matches(t.target, p) {
			matches = append(matches, p)
		}
	}
	return t.Reconcile(t.clock.Now(), matches), nil
}

// Reconcile applies one tick's matching processes to the tracked set.
func (t *Tracker) Reconcile(now time.Time, matches []ProcessInfo) Reconciliation {
	var rec Reconciliation

	seen := make(map[int32]ProcessInfo, len(matches))
	for _, p := range matches {
		seen[p.PID] = p
	}

	for pid, id := range t.identities {
		if _, ok := seen[pid]; ok {
			id.LastSeen = now
			id.Missing = 0
			delete(t.superseded, pid)
		} else {
			id.Missing++
		}
	}

	t.pruneEvicted(now)

	var fresh []ProcessInfo
	for pid, p := range seen {
		if _, ok := t.identities[pid]; !ok {
			fresh = append(fresh, p)
		}
	}
	slices.SortFunc(fresh, func(a, b ProcessInfo) int { return cmp.Compare(a.PID, b.PID) })

	var unknown []ProcessInfo
	for _, p := range fresh {
		prev := t.revive(p.PID)
		if prev == nil {
			unknown = append(unknown, p)
			continue
		}
		prev.LastSeen = now
		prev.Missing = 0
		t.identities[p.PID] = prev
		rec.Added = append(rec.Added, *prev)
	}

	if len(unknown) > 0 {
		var generation int
		generation, rec.Restarted = t.nextGeneration()

		for _, p := range unknown {
			id := &Identity{
				PID:        p.PID,
				Name:       p.DisplayName(),
				FirstSeen:  now,
				LastSeen:   now,
				Generation: generation,
			}
			t.identities[p.PID] = id
			rec.Added = append(rec.Added, *id)
		}
	}
	sortByPID(rec.Added)

	for pid, id := range t.identities {
		if id.Missing >= t.graceTicks {
			t.evicted = append(t.evicted, &evicted{
				identity:   *id,
				at:         now,
				superseded: t.superseded[pid],
			})
			delete(t.identities, pid)
			delete(t.superseded, pid)
			rec.Evicted = append(rec.Evicted, *id)
		}
	}
	sortByPID(rec.Evicted)

	for _, id := range t.identities {
		if id.Missing == 0 {
			rec.Live = append(rec.Live, *id)
		}
	}
	sortByPID(rec.Live)

	t.reportAmbiguity(len(rec.Live))
	if rec.Restarted {
		log.WithFields(log.Fields{
			"target": t.target,
			"pids":   pidsOf(rec.Added),
		}).Info("target process restarted")
	}
	return rec
}

// nextGeneration decides the generation shared by the PIDs first seen this
// tick. A vanished predecessor (still in its grace period, or evicted within
// the recency window) means a restart: the new PIDs take the next generation
// and the predecessors are consumed so the restart is counted once.
// Otherwise new PIDs join the generation of the live ones, or start at 0.
func (t *Tracker) nextGeneration() (int, bool) {
	predecessor := -1
	for pid, id := range t.identities {
		if id.Missing > 0 && !t.superseded[pid] && id.Generation > predecessor {
			predecessor = id.Generation
		}
	}
	for _, e := range t.evicted {
		if !e.superseded && e.identity.Generation > predecessor {
			predecessor = e.identity.Generation
		}
	}

	if predecessor >= 0 {
		for pid, id := range t.identities {
			if id.Missing > 0 {
				t.superseded[pid] = true
			}
		}
		for _, e := range t.evicted {
			e.superseded = true
		}
		return predecessor + 1, true
	}

	live := -1
	for _, id := range t.identities {
		if id.Missing == 0 && id.Generation > live {
			live = id.Generation
		}
	}
	if live >= 0 {
		return live, false
	}
	return 0, false
}

// revive returns and forgets a recently evicted identity for pid. A PID
// that comes back within the recency window keeps its generation.
func (t *Tracker) revive(pid int32) *Identity {
	for i, e := range t.evicted {
		if e.identity.PID == pid {
			t.evicted = append(t.evicted[:i], t.evicted[i+1:]...)
			id := e.identity
			return &id
		}
	}
	return nil
}

func (t *Tracker) pruneEvicted(now time.Time) {
	kept := t.evicted[:0]
	for _, e := range t.evicted {
		if now.Sub(e.at) <= t.recencyWindow {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(t.evicted); i++ {
		t.evicted[i] = nil
	}
	t.evicted = kept
}

func (t *Tracker) reportAmbiguity(matches int) {
	fields := log.Fields{"target": t.target, "matches": matches}
	switch {
	case matches == 0 && (t.lastMatches > 0 || !t.resolved):
		log.WithFields(fields).Warn("no process matches target")
	case matches > 1 && matches > t.lastMatches:
		log.WithFields(fields).Warn("several processes match target; collecting all of them")
	case matches > 0 && t.lastMatches == 0 && t.resolved:
		log.WithFields(fields).Info("target process found")
	}
	t.lastMatches = matches
	t.resolved = true
}

// Identities returns a copy of every tracked identity, including those in
// their grace period, ordered by PID.
func (t *Tracker) Identities() []Identity {
	out := make([]Identity, 0, len(t.identities))
	for _, id := range t.identities {
		out = append(out, *id)
	}
	sortByPID(out)
	return out
}

func sortByPID(ids []Identity) {
	slices.SortFunc(ids, func(a, b Identity) int { return cmp.Compare(a.PID, b.PID) })
}

func pidsOf(ids []Identity) []int32 {
	pids := make([]int32, len(ids))
	for i, id := range ids {
		pids[i] = id.PID
	}
	return pids
}
