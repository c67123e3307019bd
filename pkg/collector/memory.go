package collector

import (
	"context"

	"github.com/voluzi/traceclaw/pkg/sample"
)

// Memory reports virtual memory and swap usage.
type Memory struct {
	src  MemorySource
	opts *options
}

func NewMemory(src MemorySource, opts ...Option) *Memory {
	if src == nil {
		src = Host{}
	}
	return &Memory{src: src, opts: newOptions(opts)}
}

func (m *Memory) Name() string {
	return "memory"
}

func (m *Memory) Collect(ctx context.Context) sample.Batch {
	now := m.opts.clock.Now()
	var batch sample.Batch

	if vm, err := m.src.VirtualMemory(ctx); err != nil {
		m.opts.omit(m.Name(), "virtual", err)
	} else {
		batch = append(batch,
			sample.Of(sample.SystemMemoryUsage, now, nil, vm.UsedPercent).WithDescription("Memory usage percentage"),
			sample.Of(sample.SystemMemoryUsed, now, nil, float64(vm.Used)).WithDescription("Memory used"),
			sample.Of(sample.SystemMemoryAvail, now, nil, float64(vm.Available)).WithDescription("Memory available"),
			sample.Of(sample.SystemMemoryTotal, now, nil, float64(vm.Total)).WithDescription("Total memory"),
		)
	}

	if swap, err := m.src.SwapMemory(ctx); err != nil {
		m.opts.omit(m.Name(), "swap", err)
	} else {
		batch = append(batch, sample.Of(sample.SystemSwapUsage, now, nil, swap.UsedPercent).
			WithDescription("Swap usage percentage"))
	}
	return batch
}
