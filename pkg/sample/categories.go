package sample

import "strings"

// Categories emitted by the built-in collectors.
const (
	SystemCPUUsage       = "system.cpu.usage_percent"
	SystemLoadAvg1m      = "system.cpu.load_avg_1m"
	SystemLoadAvg5m      = "system.cpu.load_avg_5m"
	SystemLoadAvg15m     = "system.cpu.load_avg_15m"
	SystemMemoryUsage    = "system.memory.usage_percent"
	SystemMemoryUsed     = "system.memory.used_bytes"
	SystemMemoryAvail    = "system.memory.available_bytes"
	SystemMemoryTotal    = "system.memory.total_bytes"
	SystemSwapUsage      = "system.swap.usage_percent"
	SystemNetSentTotal   = "system.network.bytes_sent_total"
	SystemNetRecvTotal   = "system.network.bytes_recv_total"
	SystemNetSentRate    = "system.network.bytes_sent_rate"
	SystemNetRecvRate    = "system.network.bytes_recv_rate"
	ProcessCPUUsage      = "process.cpu.usage_percent"
	ProcessMemoryRSS     = "process.memory.rss_bytes"
	ProcessMemoryVMS     = "process.memory.vms_bytes"
	ProcessMemoryUsage   = "process.memory.usage_percent"
	ProcessIOReadBytes   = "process.io.read_bytes"
	ProcessIOWriteBytes  = "process.io.write_bytes"
	ProcessIOReadRate    = "process.io.read_bytes_rate"
	ProcessIOWriteRate   = "process.io.write_bytes_rate"
	ProcessIdentityCount = "process.identity.count"
)

// Label keys.
const (
	LabelCPU         = "cpu"
	LabelInterface   = "interface"
	LabelPID         = "pid"
	LabelProcessName = "process_name"
	LabelGeneration  = "generation"

	CPUTotal = "total"
)

// PrimaryField maps each built-in category to the name of the field that
// carries its value in persisted records.
var PrimaryField = map[string]string{
	SystemCPUUsage:       "cpu_percent",
	SystemLoadAvg1m:      "load_avg_1m",
	SystemLoadAvg5m:      "load_avg_5m",
	SystemLoadAvg15m:     "load_avg_15m",
	SystemMemoryUsage:    "memory_percent",
	SystemMemoryUsed:     "used_bytes",
	SystemMemoryAvail:    "available_bytes",
	SystemMemoryTotal:    "total_bytes",
	SystemSwapUsage:      "swap_percent",
	SystemNetSentTotal:   "bytes_sent",
	SystemNetRecvTotal:   "bytes_recv",
	SystemNetSentRate:    "bytes_sent_rate",
	SystemNetRecvRate:    "bytes_recv_rate",
	ProcessCPUUsage:      "cpu_percent",
	ProcessMemoryRSS:     "rss_bytes",
	ProcessMemoryVMS:     "vms_bytes",
	ProcessMemoryUsage:   "memory_percent",
	ProcessIOReadBytes:   "read_bytes",
	ProcessIOWriteBytes:  "write_bytes",
	ProcessIOReadRate:    "read_bytes_rate",
	ProcessIOWriteRate:   "write_bytes_rate",
	ProcessIdentityCount: "count",
}

// Cumulative lists categories whose values only grow over the lifetime of
// the measured entity and reset when that entity restarts.
var Cumulative = map[string]bool{
	SystemNetSentTotal:  true,
	SystemNetRecvTotal:  true,
	ProcessIOReadBytes:  true,
	ProcessIOWriteBytes: true,
}

// Field returns the primary field name of a category. Unknown categories
// use "value".
func Field(category string) string {
	if f, ok := PrimaryField[category]; ok {
		return f
	}
	return "value"
}

// UnitOf derives the unit of a category from its naming convention.
func UnitOf(category string) string {
	switch {
	case strings.HasSuffix(category, "_percent"):
		return "%"
	case strings.HasSuffix(category, "_rate"):
		return "bytes/s"
	case strings.HasSuffix(category, "_bytes"), strings.HasSuffix(category, "_total"):
		return "bytes"
	default:
		return "1"
	}
}

// IsProcess reports whether the category belongs to the per-process family.
func IsProcess(category string) bool {
	return strings.HasPrefix(category, "process.")
}
