package procident

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/process"
)

// ProcessInfo is what the tracker needs to know about a live process.
type ProcessInfo struct {
	PID     int32
	Name    string
	Cmdline []string
}

// Lister enumerates the processes currently alive on the host.
type Lister interface {
	List(ctx context.Context) ([]ProcessInfo, error)
}

// Matches reports whether p belongs to target: the process name or the
// first launch argument contains target, ignoring case.
func Matches(target string, p ProcessInfo) bool {
	target = strings.ToLower(strings.TrimSpace(target))
	if target == "" {
		return false
	}
	if strings.Contains(strings.ToLower(p.Name), target) {
		return true
	}
	if len(p.Cmdline) > 0 && strings.Contains(strings.ToLower(p.Cmdline[0]), target) {
		return true
	}
	return false
}

// PsLister lists processes through gopsutil. Processes that exit or deny
// access while being inspected are skipped.
type PsLister struct{}

var _ Lister = PsLister{}

func (PsLister) List(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		info := ProcessInfo{PID: p.Pid, Name: name}
		if cmdline, err := p.CmdlineSliceWithContext(ctx); err == nil {
			info.Cmdline = cmdline
		}
		out = append(out, info)
	}
	return out, nil
}

// DisplayName is a short name for logs: the process name, or the base of
// the first launch argument.
func (p ProcessInfo) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if len(p.Cmdline) > 0 {
		return filepath.Base(p.Cmdline[0])
	}
	return ""
}
