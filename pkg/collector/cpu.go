package collector

import (
	"context"
	"strconv"

	"github.com/voluzi/traceclaw/pkg/sample"
)

// CPU reports total and per-core utilisation plus load averages.
type CPU struct {
	src  CPUSource
	opts *options
}

func NewCPU(src CPUSource, opts ...Option) *CPU {
	if src == nil {
		src = Host{}
	}
	return &CPU{src: src, opts: newOptions(opts)}
}

func (c *CPU) Name() string {
	return "cpu"
}

func (c *CPU) Collect(ctx context.Context) sample.Batch {
	now := c.opts.clock.Now()
	var batch sample.Batch

	if total, err := c.src.Percent(ctx, false); err != nil || len(total) == 0 {
		c.opts.omit(c.Name(), "total", err)
	} else {
		batch = append(batch, sample.Of(sample.SystemCPUUsage, now,
			map[string]string{sample.LabelCPU: sample.CPUTotal}, total[0]).
			WithDescription("Overall CPU usage percentage"))
	}

	if cores, err := c.src.Percent(ctx, true); err != nil {
		c.opts.omit(c.Name(), "per_core", err)
	} else {
		for i, pct := range cores {
			batch = append(batch, sample.Of(sample.SystemCPUUsage, now,
				map[string]string{sample.LabelCPU: strconv.Itoa(i)}, pct).
				WithDescription("CPU core " + strconv.Itoa(i) + " usage percentage"))
		}
	}

	if avg, err := c.src.LoadAvg(ctx); err != nil {
		c.opts.omit(c.Name(), "load_avg", err)
	} else {
		batch = append(batch,
			sample.Of(sample.SystemLoadAvg1m, now, nil, avg.Load1).WithDescription("Load average 1 minute"),
			sample.Of(sample.SystemLoadAvg5m, now, nil, avg.Load5).WithDescription("Load average 5 minutes"),
			sample.Of(sample.SystemLoadAvg15m, now, nil, avg.Load15).WithDescription("Load average 15 minutes"),
		)
	}
	return batch
}
