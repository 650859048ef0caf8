package viz

import (
	"fmt"
	"strings"
	"time"
)

// StatsOverview renders the feed status block shown by `doctor`, the TUI
// footer and the MCP get_status tool.
func StatsOverview(stats FeedStats) string {
	var b strings.Builder

	b.WriteString("Feed Status\n")
	state := "live"
	if stats.Paused {
		state = "paused"
	}
	fmt.Fprintf(&b, "  Polling:  %s\n", state)
	fmt.Fprintf(&b, "  Page:     %d\n", stats.Page+1)
	writeBar(&b, "Rows", stats.Rows, stats.PageSize)
	fmt.Fprintf(&b, "  Polls:    %s (%s failed)\n", formatCount(int(stats.Polls)), formatCount(int(stats.Failures)))
	fmt.Fprintf(&b, "  Updates:  %s\n", formatCount(int(stats.Generation)))
	if !stats.FetchedAt.IsZero() {
		fmt.Fprintf(&b, "  Fetched:  %s\n", stats.FetchedAt.Format(time.RFC3339))
	}
	if stats.LastError != "" {
		fmt.Fprintf(&b, "  Error:    %s\n", Truncate(oneLine(stats.LastError), 60))
	}

	return b.String()
}

func writeBar(b *strings.Builder, label string, count, capacity int) {
	barWidth := 20
	filled := 0
	if capacity > 0 {
		filled = count * barWidth / capacity
	}
	filled = min(max(filled, 0), barWidth)

	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)
	fmt.Fprintf(b, "  %-9s [%s]  %s / %s\n", label+":", bar, formatCount(count), formatCount(capacity))
}

// LMPSummary renders a horizontal bar chart of calls per LMP.
// Width 0 uses 80.
func LMPSummary(lmps []LMPStats, width int) string {
	if len(lmps) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}

	totalCalls, maxCalls, maxNameLen := 0, 0, 0
	for _, l := range lmps {
		totalCalls += l.Calls
		maxCalls = max(maxCalls, l.Calls)
		maxNameLen = max(maxNameLen, len([]rune(l.Name)))
	}
	maxNameLen = min(maxNameLen, 20)

	// name + bar + counts must fit the line
	barBudget := min(20, max(width-maxNameLen-30, 5))

	var b strings.Builder
	fmt.Fprintf(&b, "LMPs (%d programs, %s calls)\n", len(lmps), formatCount(totalCalls))

	for _, l := range lmps {
		name := Truncate(l.Name, maxNameLen)
		padded := name + strings.Repeat(" ", maxNameLen-len([]rune(name)))

		barLen := 0
		if maxCalls > 0 {
			barLen = l.Calls * barBudget / maxCalls
		}
		if barLen < 1 && l.Calls > 0 {
			barLen = 1
		}
		bar := strings.Repeat("#", barLen) + strings.Repeat(" ", barBudget-barLen)

		tokens := ""
		if l.Tokens > 0 {
			tokens = fmt.Sprintf(" (%s tokens)", formatCount(l.Tokens))
		}
		fmt.Fprintf(&b, "  %s  %s  %s calls%s\n", padded, bar, formatCount(l.Calls), tokens)
	}

	return b.String()
}
