package procident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func procs(pids ...int32) []ProcessInfo {
	out := make([]ProcessInfo, len(pids))
	for i, pid := range pids {
		out[i] = ProcessInfo{PID: pid, Name: "node", Cmdline: []string{"/usr/bin/node", "gateway.js"}}
	}
	return out
}

func generations(ids []Identity) map[int32]int {
	out := make(map[int32]int, len(ids))
	for _, id := range ids {
		out[id.PID] = id.Generation
	}
	return out
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		target string
		proc   ProcessInfo
		want   bool
	}{
		{"name substring", "node", ProcessInfo{Name: "node"}, true},
		{"case insensitive", "Node", ProcessInfo{Name: "NODE.exe"}, true},
		{"first argument", "openclaw", ProcessInfo{Name: "x", Cmdline: []string{"/opt/OpenClaw/bin/gw"}}, true},
		{"later arguments ignored", "openclaw", ProcessInfo{Name: "node", Cmdline: []string{"node", "openclaw.js"}}, false},
		{"no match", "python", ProcessInfo{Name: "node", Cmdline: []string{"node"}}, false},
		{"empty target", "  ", ProcessInfo{Name: "node"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.target, tt.proc))
		})
	}
}

func TestTrackerRestartIncrementsGenerationOnce(t *testing.T) {
	tr := NewTracker("node", nil, WithGraceTicks(3))

	rec := tr.Reconcile(t0, procs(100))
	require.Len(t, rec.Live, 1)
	assert.Equal(t, 0, rec.Live[0].Generation)
	assert.False(t, rec.Restarted)

	rec = tr.Reconcile(t0.Add(2*time.Second), nil)
	assert.Empty(t, rec.Live)
	assert.Empty(t, rec.Evicted)

	rec = tr.Reconcile(t0.Add(4*time.Second), procs(200))
	assert.True(t, rec.Restarted)
	assert.Equal(t, map[int32]int{200: 1}, generations(rec.Live))

	// A child spawned by the restarted process is a sibling, not a restart.
	// The old PID reaches its grace limit on the same tick.
	rec = tr.Reconcile(t0.Add(6*time.Second), procs(200, 201))
	assert.False(t, rec.Restarted)
	assert.Equal(t, map[int32]int{200: 1, 201: 1}, generations(rec.Live))
	require.Len(t, rec.Evicted, 1)
	assert.Equal(t, int32(100), rec.Evicted[0].PID)

	rec = tr.Reconcile(t0.Add(8*time.Second), procs(200, 201, 202))
	assert.False(t, rec.Restarted)
	assert.Equal(t, 1, generations(rec.Live)[202])
}

func TestTrackerSeveralPIDsRestartTogether(t *testing.T) {
	tr := NewTracker("node", nil, WithGraceTicks(3))

	tr.Reconcile(t0, procs(100, 101))
	tr.Reconcile(t0.Add(time.Second), nil)
	rec := tr.Reconcile(t0.Add(2*time.Second), procs(300, 301))

	assert.True(t, rec.Restarted)
	assert.Equal(t, map[int32]int{300: 1, 301: 1}, generations(rec.Live))
}

func TestTrackerConsecutiveRestarts(t *testing.T) {
	tr := NewTracker("node", nil, WithGraceTicks(1))

	tr.Reconcile(t0, procs(100))
	rec := tr.Reconcile(t0.Add(time.Second), procs(200))
	assert.True(t, rec.Restarted)
	assert.Equal(t, map[int32]int{200: 1}, generations(rec.Live))

	rec = tr.Reconcile(t0.Add(2*time.Second), procs(300))
	assert.True(t, rec.Restarted)
	assert.Equal(t, map[int32]int{300: 2}, generations(rec.Live))
}

func TestTrackerGracePeriod(t *testing.T) {
	tr := NewTracker("node", nil, WithGraceTicks(3))

	first := tr.Reconcile(t0, procs(100))
	tr.Reconcile(t0.Add(time.Second), nil)
	tr.Reconcile(t0.Add(2*time.Second), nil)

	ids := tr.Identities()
	require.Len(t, ids, 1)
	assert.Equal(t, 2, ids[0].Missing)

	rec := tr.Reconcile(t0.Add(3*time.Second), procs(100))
	assert.Empty(t, rec.Added)
	assert.Empty(t, rec.Evicted)
	assert.False(t, rec.Restarted)
	require.Len(t, rec.Live, 1)
	assert.Equal(t, first.Live[0].FirstSeen, rec.Live[0].FirstSeen)
	assert.Equal(t, 0, rec.Live[0].Missing)

	tr.Reconcile(t0.Add(4*time.Second), nil)
	tr.Reconcile(t0.Add(5*time.Second), nil)
	rec = tr.Reconcile(t0.Add(6*time.Second), nil)
	require.Len(t, rec.Evicted, 1)
	assert.Empty(t, tr.Identities())
}

func TestTrackerRevivesRecentlyEvictedPID(t *testing.T) {
	tr := NewTracker("node", nil, WithGraceTicks(1), WithRecencyWindow(30*time.Second))

	tr.Reconcile(t0, procs(100))
	tr.Reconcile(t0.Add(time.Second), procs(100, 200)) // 200 joins generation 0
	rec := tr.Reconcile(t0.Add(2*time.Second), procs(200))
	require.Len(t, rec.Evicted, 1)

	rec = tr.Reconcile(t0.Add(3*time.Second), procs(100, 200))
	assert.False(t, rec.Restarted)
	assert.Equal(t, map[int32]int{100: 0, 200: 0}, generations(rec.Live))
	assert.Equal(t, t0, rec.Live[0].FirstSeen)
}

func TestTrackerRecencyWindow(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		wantGen int
		restart bool
	}{
		{"within window", 10 * time.Second, 1, true},
		{"beyond window", 45 * time.Second, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker("node", nil, WithGraceTicks(1), WithRecencyWindow(30*time.Second))

			tr.Reconcile(t0, procs(100))
			rec := tr.Reconcile(t0.Add(time.Second), nil)
			require.Len(t, rec.Evicted, 1)

			rec = tr.Reconcile(t0.Add(time.Second+tt.gap), procs(200))
			assert.Equal(t, tt.restart, rec.Restarted)
			assert.Equal(t, map[int32]int{200: tt.wantGen}, generations(rec.Live))
		})
	}
}

func TestTrackerGenerationStablePerPID(t *testing.T) {
	tr := NewTracker("node", nil, WithGraceTicks(2), WithRecencyWindow(time.Minute))

	seen := map[int32]int{}
	ticks := [][]int32{
		{1}, {1, 2}, {2}, {}, {3}, {3, 4}, {4}, {}, {}, {5}, {5, 1},
	}
	for i, pids := range ticks {
		rec := tr.Reconcile(t0.Add(time.Duration(i)*time.Second), procs(pids...))
		for _, id := range rec.Live {
			if gen, ok := seen[id.PID]; ok {
				assert.Equal(t, gen, id.Generation, "pid %d at tick %d", id.PID, i)
			}
			seen[id.PID] = id.Generation
		}
	}
}

func TestTrackerWarnsOnAmbiguousMatches(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	tr := NewTracker("node", nil)

	tr.Reconcile(t0, nil)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "no process matches target", hook.LastEntry().Message)

	hook.Reset()
	tr.Reconcile(t0.Add(time.Second), nil)
	assert.Nil(t, hook.LastEntry(), "a persisting zero-match state warns once")

	tr.Reconcile(t0.Add(2*time.Second), procs(1, 2))
	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["matches"] == 2 {
			warned = true
		}
	}
	assert.True(t, warned)
}

type fakeLister struct {
	procs []ProcessInfo
	err   error
}

func (f *fakeLister) List(context.Context) ([]ProcessInfo, error) {
	return f.procs, f.err
}

func TestTrackerResolveFiltersByTarget(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(t0)
	lister := &fakeLister{procs: []ProcessInfo{
		{PID: 1, Name: "systemd"},
		{PID: 10, Name: "node", Cmdline: []string{"node", "server.js"}},
		{PID: 11, Name: "sh", Cmdline: []string{"/usr/local/bin/node"}},
		{PID: 12, Name: "python3"},
	}}
	tr := NewTracker("node", lister, WithClock(clk))

	rec, err := tr.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int32]int{10: 0, 11: 0}, generations(rec.Live))
	assert.Equal(t, t0, rec.Live[0].LastSeen)

	lister.err = errors.New("boom")
	_, err = tr.Resolve(context.Background())
	assert.Error(t, err)
}
