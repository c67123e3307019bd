package collector

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/shirou/gopsutil/process"

	"github.com/voluzi/traceclaw/pkg/procident"
	"github.com/voluzi/traceclaw/pkg/sample"
)

const processHandleTTL = 5 * time.Minute

// ProcessReader reads the resource usage of a single PID.
type ProcessReader interface {
	// CPUSeconds returns user plus system CPU time consumed so far.
	CPUSeconds(ctx context.Context, pid int32) (float64, error)
	Memory(ctx context.Context, pid int32) (*process.MemoryInfoStat, error)
	MemoryPercent(ctx context.Context, pid int32) (float64, error)
	IO(ctx context.Context, pid int32) (*process.IOCountersStat, error)
	// Forget releases anything held for pid.
	Forget(pid int32)
}

// PsReader reads processes through gopsutil, keeping process handles for
// PIDs seen recently.
type PsReader struct {
	handles *ttlcache.Cache[int32, *process.Process]
}

var _ ProcessReader = (*PsReader)(nil)

func NewPsReader() *PsReader {
	return &PsReader{
		handles: ttlcache.New(
			ttlcache.WithTTL[int32, *process.Process](processHandleTTL),
		),
	}
}

func (r *PsReader) handle(ctx context.Context, pid int32) (*process.Process, error) {
	if item := r.handles.Get(pid); item != nil {
		return item.Value(), nil
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	r.handles.Set(pid, p, ttlcache.DefaultTTL)
	return p, nil
}

func (r *PsReader) CPUSeconds(ctx context.Context, pid int32) (float64, error) {
	p, err := r.handle(ctx, pid)
	if err != nil {
		return 0, err
	}
	times, err := p.TimesWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return times.User + times.System, nil
}

func (r *PsReader) Memory(ctx context.Context, pid int32) (*process.MemoryInfoStat, error) {
	p, err := r.handle(ctx, pid)
	if err != nil {
		return nil, err
	}
	return p.MemoryInfoWithContext(ctx)
}

func (r *PsReader) MemoryPercent(ctx context.Context, pid int32) (float64, error) {
	p, err := r.handle(ctx, pid)
	if err != nil {
		return 0, err
	}
	pct, err := p.MemoryPercentWithContext(ctx)
	return float64(pct), err
}

func (r *PsReader) IO(ctx context.Context, pid int32) (*process.IOCountersStat, error) {
	p, err := r.handle(ctx, pid)
	if err != nil {
		return nil, err
	}
	return p.IOCountersWithContext(ctx)
}

func (r *PsReader) Forget(pid int32) {
	r.handles.Delete(pid)
	r.handles.DeleteExpired()
}

type procKey struct {
	pid        int32
	generation int
	reading    string
}

// Process reports CPU, memory and I/O for every live PID the tracker resolves
// for its target. It is the only user of the tracker.
type Process struct {
	tracker   *procident.Tracker
	reader    ProcessReader
	opts      *options
	baselines *rates[procKey]

	// identities is republished after every tick for readers outside the
	// collection loop.
	identities atomic.Pointer[[]procident.Identity]
}

func NewProcess(tracker *procident.Tracker, reader ProcessReader, opts ...Option) *Process {
	if reader == nil {
		reader = NewPsReader()
	}
	return &Process{
		tracker:   tracker,
		reader:    reader,
		opts:      newOptions(opts),
		baselines: newRates[procKey](),
	}
}

func (p *Process) Name() string {
	return "process"
}

// Identities returns the identities tracked as of the last completed tick.
func (p *Process) Identities() []procident.Identity {
	if ids := p.identities.Load(); ids != nil {
		return *ids
	}
	return nil
}

func (p *Process) Collect(ctx context.Context) sample.Batch {
	rec, err := p.tracker.Resolve(ctx)
	if err != nil {
		p.opts.omit(p.Name(), "processes", err)
		return nil
	}
	now := p.opts.clock.Now()

	ids := p.tracker.Identities()
	p.identities.Store(&ids)
	if m := p.opts.metrics; m != nil {
		m.TrackedProcesses.Set(float64(len(rec.Live)))
		if rec.Restarted {
			m.ProcessRestarts.Inc()
		}
	}
	for _, id := range rec.Evicted {
		p.reader.Forget(id.PID)
	}

	target := p.tracker.Target()
	batch := sample.Batch{
		sample.Of(sample.ProcessIdentityCount, now, map[string]string{sample.LabelProcessName: target},
			float64(len(rec.Live))).WithDescription("Live PIDs matching " + target),
	}

	live := make(map[int32]int, len(rec.Live))
	for _, id := range rec.Live {
		live[id.PID] = id.Generation
		batch = append(batch, p.collectPID(ctx, id, target, now)...)
	}

	p.baselines.Retain(func(k procKey) bool {
		gen, ok := live[k.pid]
		return ok && gen == k.generation
	})
	return batch
}

func (p *Process) collectPID(ctx context.Context, id procident.Identity, target string, now time.Time) sample.Batch {
	pid := strconv.Itoa(int(id.PID))
	labels := map[string]string{
		sample.LabelPID:         pid,
		sample.LabelProcessName: target,
		sample.LabelGeneration:  strconv.Itoa(id.Generation),
	}
	suffix := " for " + target + " (pid " + pid + ")"
	var batch sample.Batch

	if secs, err := p.reader.CPUSeconds(ctx, id.PID); err != nil {
		p.opts.omit(p.Name(), "cpu", err)
	} else if rate, ok := p.baselines.Observe(procKey{id.PID, id.Generation, "cpu"}, secs, now); ok {
		batch = append(batch, sample.Of(sample.ProcessCPUUsage, now, labels, rate*100).
			WithDescription("CPU usage"+suffix))
	}

	if mi, err := p.reader.Memory(ctx, id.PID); err != nil {
		p.opts.omit(p.Name(), "memory", err)
	} else {
		batch = append(batch,
			sample.Of(sample.ProcessMemoryRSS, now, labels, float64(mi.RSS)).WithDescription("RSS"+suffix),
			sample.Of(sample.ProcessMemoryVMS, now, labels, float64(mi.VMS)).WithDescription("VMS"+suffix),
		)
	}

	if pct, err := p.reader.MemoryPercent(ctx, id.PID); err != nil {
		p.opts.omit(p.Name(), "memory_percent", err)
	} else {
		batch = append(batch, sample.Of(sample.ProcessMemoryUsage, now, labels, pct).WithDescription("Memory %"+suffix))
	}

	if io, err := p.reader.IO(ctx, id.PID); err != nil {
		p.opts.omit(p.Name(), "io", err)
	} else {
		read, written := float64(io.ReadBytes), float64(io.WriteBytes)
		batch = append(batch,
			sample.Of(sample.ProcessIOReadBytes, now, labels, read).WithDescription("IO read bytes"+suffix),
			sample.Of(sample.ProcessIOWriteBytes, now, labels, written).WithDescription("IO write bytes"+suffix),
		)
		if rate, ok := p.baselines.Observe(procKey{id.PID, id.Generation, "io_read"}, read, now); ok {
			batch = append(batch, sample.Of(sample.ProcessIOReadRate, now, labels, rate).WithDescription("IO read rate"+suffix))
		}
		if rate, ok := p.baselines.Observe(procKey{id.PID, id.Generation, "io_write"}, written, now); ok {
			batch = append(batch, sample.Of(sample.ProcessIOWriteRate, now, labels, rate).WithDescription("IO write rate"+suffix))
		}
	}
	return batch
}
