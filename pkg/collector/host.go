package collector

import (
	"context"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/load"
	"github.com/shirou/gopsutil/mem"
	psnet "github.com/shirou/gopsutil/net"
)

// CPUSource reads host CPU utilisation.
type CPUSource interface {
	// Percent returns utilisation since the previous call, either as a single
	// total or one value per logical core.
	Percent(ctx context.Context, perCore bool) ([]float64, error)
	LoadAvg(ctx context.Context) (*load.AvgStat, error)
}

type MemorySource interface {
	VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error)
}

type NetworkSource interface {
	// IOCounters returns cumulative counters per interface.
	IOCounters(ctx context.Context) ([]psnet.IOCountersStat, error)
}

// Host reads the local machine through gopsutil.
type Host struct{}

var (
	_ CPUSource     = Host{}
	_ MemorySource  = Host{}
	_ NetworkSource = Host{}
)

func (Host) Percent(ctx context.Context, perCore bool) ([]float64, error) {
	return cpu.PercentWithContext(ctx, 0, perCore)
}

func (Host) LoadAvg(ctx context.Context) (*load.AvgStat, error) {
	return load.AvgWithContext(ctx)
}

func (Host) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (Host) SwapMemory(ctx context.Context) (*mem.SwapMemoryStat, error) {
	return mem.SwapMemoryWithContext(ctx)
}

func (Host) IOCounters(ctx context.Context) ([]psnet.IOCountersStat, error) {
	return psnet.IOCountersWithContext(ctx, true)
}
