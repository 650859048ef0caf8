package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxCallsPerTrace = 50
	maxTraces        = 5
	maxInputCalls    = 500
	defaultBarWidth  = 20
)

// Waterfall renders an ASCII latency waterfall for one or more call trees.
// Calls are grouped under their root; each root starts a new trace block.
// Width controls the total line width; 0 uses 80.
func Waterfall(calls []Call, width int) string {
	if len(calls) == 0 {
		return ""
	}
	if width <= 0 {
		width = 80
	}
	if len(calls) > maxInputCalls {
		calls = calls[:maxInputCalls]
	}

	tree := buildTree(calls)

	overflow := 0
	roots := tree.roots
	if len(roots) > maxTraces {
		overflow = len(roots) - maxTraces
		roots = roots[:maxTraces]
	}

	var b strings.Builder
	for i, root := range roots {
		if i > 0 {
			b.WriteByte('\n')
		}
		renderTrace(&b, tree, root, width)
	}
	if overflow > 0 {
		fmt.Fprintf(&b, "\n... +%d more traces\n", overflow)
	}
	return b.String()
}

type callTree struct {
	byID     map[string]Call
	children map[string][]string
	roots    []string
}

type treeEntry struct {
	call   Call
	depth  int
	isLast []bool // per depth, whether this node is its parent's last child
}

func buildTree(calls []Call) callTree {
	t := callTree{
		byID:     make(map[string]Call, len(calls)),
		children: make(map[string][]string),
	}
	for _, c := range calls {
		t.byID[c.ID] = c
	}

	seen := make(map[string]bool, len(calls))
	for _, c := range calls {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if _, ok := t.byID[c.ParentID]; c.ParentID == "" || !ok {
			// orphans render as roots
			t.roots = append(t.roots, c.ID)
			continue
		}
		t.children[c.ParentID] = append(t.children[c.ParentID], c.ID)
	}

	byStart := func(ids []string) {
		sort.SliceStable(ids, func(i, j int) bool {
			return t.byID[ids[i]].Start.Before(t.byID[ids[j]].Start)
		})
	}
	byStart(t.roots)
	for _, kids := range t.children {
		byStart(kids)
	}
	return t
}

func (t callTree) walk(id string, depth int, isLast []bool, out *[]treeEntry, visiting map[string]bool) {
	c, ok := t.byID[id]
	if !ok || visiting[id] {
		return
	}
	visiting[id] = true
	defer delete(visiting, id)

	*out = append(*out, treeEntry{call: c, depth: depth, isLast: isLast})
	kids := t.children[id]
	for i, kid := range kids {
		childLast := append(append([]bool{}, isLast...), i == len(kids)-1)
		t.walk(kid, depth+1, childLast, out, visiting)
	}
}

func renderTrace(b *strings.Builder, tree callTree, rootID string, width int) {
	var entries []treeEntry
	tree.walk(rootID, 0, []bool{true}, &entries, map[string]bool{})

	minStart := entries[0].call.Start
	maxEnd := minStart
	for _, e := range entries {
		if e.call.Start.Before(minStart) {
			minStart = e.call.Start
		}
	}
	for _, e := range entries {
		if end := callEnd(e.call); end.After(maxEnd) {
			maxEnd = end
		}
	}
	total := maxEnd.Sub(minStart)

	root := entries[0].call
	fmt.Fprintf(b, "Trace %s (%d calls, %s)\n", shortID(root.ID), len(entries), formatDuration(total))

	callOverflow := 0
	if len(entries) > maxCallsPerTrace {
		callOverflow = len(entries) - maxCallsPerTrace
		entries = entries[:maxCallsPerTrace]
	}

	durWidth := 0
	for _, e := range entries {
		durWidth = max(durWidth, len(formatDuration(max(e.call.Latency, 0))))
	}

	for _, e := range entries {
		renderCallRow(b, e, minStart, total, width, durWidth)
	}
	if callOverflow > 0 {
		fmt.Fprintf(b, "  ... +%d more calls\n", callOverflow)
	}
}

func renderCallRow(b *strings.Builder, e treeEntry, minStart time.Time, total time.Duration, width, durWidth int) {
	var prefix strings.Builder
	prefix.WriteString(" ")
	for d := 1; d < e.depth; d++ {
		if e.isLast[d] {
			prefix.WriteString("   ")
		} else {
			prefix.WriteString("│  ")
		}
	}
	if e.depth > 0 {
		if e.isLast[len(e.isLast)-1] {
			prefix.WriteString("└─ ")
		} else {
			prefix.WriteString("├─ ")
		}
	}
	prefixStr := prefix.String()
	prefixCols := utf8.RuneCountInString(prefixStr)

	// prefix + label + " [" + bar + "] " + duration
	fixed := prefixCols + 2 + defaultBarWidth + 2 + durWidth
	budget := max(width-fixed, 8)
	label := Truncate(e.call.Name, budget)
	label += strings.Repeat(" ", budget-utf8.RuneCountInString(label))

	start := e.call.Start.Sub(minStart)
	end := callEnd(e.call).Sub(minStart)
	bar := buildBar(start, end, total, defaultBarWidth)

	fmt.Fprintf(b, "%s%s [%s] %s\n", prefixStr, label, bar, formatDuration(max(e.call.Latency, 0)))
}

func buildBar(start, end, total time.Duration, barWidth int) string {
	if total <= 0 {
		return strings.Repeat("#", barWidth)
	}

	startPos := int(int64(start) * int64(barWidth) / int64(total))
	endPos := int(int64(end) * int64(barWidth) / int64(total))
	startPos = min(max(startPos, 0), barWidth-1)
	endPos = min(max(endPos, startPos+1), barWidth)

	bar := make([]byte, barWidth)
	for i := range bar {
		if i >= startPos && i < endPos {
			bar[i] = '#'
		} else {
			bar[i] = '.'
		}
	}
	return string(bar)
}

func callEnd(c Call) time.Time {
	return c.Start.Add(max(c.Latency, 0))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.0fµs", float64(d)/float64(time.Microsecond))
	}
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
