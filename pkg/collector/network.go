package collector

import (
	"context"
	"strings"

	psnet "github.com/shirou/gopsutil/net"
	"golang.org/x/exp/slices"

	"github.com/voluzi/traceclaw/pkg/sample"
)

type netKey struct {
	iface     string
	direction string
}

// Network reports cumulative and per-second traffic per interface. Loopback
// interfaces are skipped.
type Network struct {
	src       NetworkSource
	opts      *options
	iface     string
	baselines *rates[netKey]
}

// NewNetwork builds a network collector. A non-empty iface restricts
// collection to that interface when it exists.
func NewNetwork(src NetworkSource, iface string, opts ...Option) *Network {
	if src == nil {
		src = Host{}
	}
	return &Network{
		src:       src,
		opts:      newOptions(opts),
		iface:     iface,
		baselines: newRates[netKey](),
	}
}

func (n *Network) Name() string {
	return "network"
}

func (n *Network) Collect(ctx context.Context) sample.Batch {
	counters, err := n.src.IOCounters(ctx)
	if err != nil {
		n.opts.omit(n.Name(), "io_counters", err)
		return nil
	}
	now := n.opts.clock.Now()

	selected := n.selectInterfaces(counters)
	var batch sample.Batch
	for _, c := range selected {
		labels := map[string]string{sample.LabelInterface: c.Name}
		sent, recv := float64(c.BytesSent), float64(c.BytesRecv)

		batch = append(batch,
			sample.Of(sample.SystemNetSentTotal, now, labels, sent).WithDescription("Total bytes sent on "+c.Name),
			sample.Of(sample.SystemNetRecvTotal, now, labels, recv).WithDescription("Total bytes received on "+c.Name),
		)
		if rate, ok := n.baselines.Observe(netKey{c.Name, "sent"}, sent, now); ok {
			batch = append(batch, sample.Of(sample.SystemNetSentRate, now, labels, rate).WithDescription("Send rate on "+c.Name))
		}
		if rate, ok := n.baselines.Observe(netKey{c.Name, "recv"}, recv, now); ok {
			batch = append(batch, sample.Of(sample.SystemNetRecvRate, now, labels, rate).WithDescription("Receive rate on "+c.Name))
		}
	}

	present := make(map[string]bool, len(selected))
	for _, c := range selected {
		present[c.Name] = true
	}
	n.baselines.Retain(func(k netKey) bool { return present[k.iface] })
	return batch
}

func (n *Network) selectInterfaces(counters []psnet.IOCountersStat) []psnet.IOCountersStat {
	if n.iface != "" {
		for _, c := range counters {
			if c.Name == n.iface {
				return []psnet.IOCountersStat{c}
			}
		}
	}

	out := make([]psnet.IOCountersStat, 0, len(counters))
	for _, c := range counters {
		if isLoopback(c.Name) {
			continue
		}
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b psnet.IOCountersStat) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func isLoopback(name string) bool {
	return name == "lo" || name == "lo0"
}
