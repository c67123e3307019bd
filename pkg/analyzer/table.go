package analyzer

import (
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"k8s.io/utils/ptr"

	"github.com/voluzi/traceclaw/pkg/openclaw"
)

// DefaultMaxRows bounds the rows rendered per table.
const DefaultMaxRows = 200

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle  = cellStyle.Foreground(lipgloss.Color("1"))
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

func render(title string, headers []string, rows [][]string, total, maxRows int, isError func(row int) bool) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case isError != nil && isError(row):
				return errorStyle
			default:
				return cellStyle
			}
		})

	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteByte('\n')
	b.WriteString(t.String())
	b.WriteByte('\n')
	if total > maxRows {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  ... (%d more entries)", total-maxRows)))
		b.WriteByte('\n')
	}
	return b.String()
}

func limit(n, maxRows int) int {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	if n > maxRows {
		return maxRows
	}
	return n
}

// RenderActionTimeline renders at most maxRows action rows.
func RenderActionTimeline(rows []ActionTimelineRow, maxRows int) string {
	n := limit(len(rows), maxRows)
	cells := make([][]string, 0, n)
	for _, r := range rows[:n] {
		tokens := ""
		if r.TokensTotal != nil {
			tokens = fmt.Sprintf("%d/%d", ptr.Deref(r.TokensInput, 0), ptr.Deref(r.TokensOutput, 0))
		}
		cells = append(cells, []string{
			fmt.Sprintf("%.1f", r.RelativeMs),
			r.Action,
			optional("%.1f", r.DurationMs),
			tokens,
			optional("%.4f", r.CostUSD),
			r.Status,
			formatFloat(r.System.CPUPercent),
			formatFloat(r.System.MemoryPercent),
			formatFloat(r.Process.CPUPercent),
			formatBytes(r.Process.RSSBytes),
		})
	}
	return render("Action Timeline",
		[]string{"Offset (ms)", "Action", "Duration (ms)", "Tokens (in/out)", "Cost ($)", "Status", "CPU %", "Mem %", "Proc CPU %", "Proc RSS"},
		cells, len(rows), n,
		func(i int) bool { return rows[i].Status == openclaw.StatusError })
}

// RenderTimeline renders at most maxRows timeline entries.
func RenderTimeline(entries []TimelineEntry, maxRows int) string {
	n := limit(len(entries), maxRows)
	cells := make([][]string, 0, n)
	for _, e := range entries[:n] {
		value := ""
		if e.Value != 0 {
			if e.Unit == "bytes" {
				value = datasize.ByteSize(e.Value).HumanReadable()
			} else {
				value = fmt.Sprintf("%.2f %s", e.Value, e.Unit)
			}
		}
		cells = append(cells, []string{
			fmt.Sprintf("%.1f", e.RelativeMs),
			e.Category,
			e.Label,
			value,
			nonZero("%.1f ms", e.DurationMs),
			e.Status,
		})
	}
	return render("Timeline",
		[]string{"Offset (ms)", "Category", "Event", "Value", "Duration", "Status"},
		cells, len(entries), n,
		func(i int) bool { return entries[i].Status == openclaw.StatusError })
}

// RenderSummary renders the headline figures of a summary.
func RenderSummary(s SessionSummary, stats ParseStats) string {
	rows := [][]string{
		{"Events", fmt.Sprintf("%d (%d actions)", s.EventCount, s.ActionCount)},
		{"Model calls", fmt.Sprintf("%d", s.ModelCalls)},
		{"Tool calls", fmt.Sprintf("%d", s.ToolCalls)},
		{"Total tokens", fmt.Sprintf("%d", s.TokensTotal)},
		{"Total cost", fmt.Sprintf("$%.4f", s.CostUSD)},
		{"Avg latency", fmt.Sprintf("%.1f ms", s.Latency.Avg)},
		{"P95 latency", fmt.Sprintf("%.1f ms", s.Latency.P95)},
		{"Error rate", fmt.Sprintf("%.1f%%", s.ErrorRate*100)},
		{"Avg / max CPU", fmt.Sprintf("%.1f%% / %.1f%%", s.System.CPUPercent.Avg, s.System.CPUPercent.Max)},
		{"Avg / max memory", fmt.Sprintf("%.1f%% / %.1f%%", s.System.MemoryPercent.Avg, s.System.MemoryPercent.Max)},
		{"Peak process RSS", datasize.ByteSize(s.Process.RSSBytes.Max).HumanReadable()},
		{"Process restarts", fmt.Sprintf("%d", s.Process.Restarts)},
		{"Skipped lines", fmt.Sprintf("%d", stats.Skipped())},
	}
	return render("Session Summary", []string{"Metric", "Value"}, rows, len(rows), len(rows), nil)
}

func nonZero(format string, v float64) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf(format, v)
}

func optional(format string, v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf(format, *v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func formatBytes(v *float64) string {
	if v == nil {
		return "-"
	}
	return datasize.ByteSize(*v).HumanReadable()
}
