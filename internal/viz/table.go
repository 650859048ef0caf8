package viz

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxAutoWidth = 40
	indentWidth  = 2
)

// Tree markers for the first column.
const (
	MarkerExpanded  = "▾"
	MarkerCollapsed = "▸"
	MarkerLeaf      = "•"
)

// Marker returns the tree marker for a row.
func Marker(r Row) string {
	switch {
	case !r.HasChildren:
		return MarkerLeaf
	case r.Expanded:
		return MarkerExpanded
	default:
		return MarkerCollapsed
	}
}

// TreeCell prefixes the first cell of a row with its indentation and marker.
func TreeCell(r Row) string {
	first := ""
	if len(r.Cells) > 0 {
		first = r.Cells[0]
	}
	return strings.Repeat(" ", r.Level*indentWidth) + Marker(r) + " " + first
}

// TableText renders rows as a fixed-width text table. Each line starts with
// a focus cursor and a selection box, then the cells padded or truncated to
// the column widths. The first column carries the tree markers.
func TableText(cols []Column, rows []Row) string {
	if len(cols) == 0 {
		return ""
	}

	widths := columnWidths(cols, rows)

	var b strings.Builder
	b.WriteString("      ")
	for i, c := range cols {
		writeCell(&b, c.Header, widths[i], c.AlignRight, i == len(cols)-1)
	}
	b.WriteByte('\n')

	total := 6
	for _, w := range widths {
		total += w + 2
	}
	b.WriteString(strings.Repeat("─", total-2))
	b.WriteByte('\n')

	if len(rows) == 0 {
		b.WriteString("  (no traces)\n")
		return b.String()
	}

	for _, r := range rows {
		cursor := " "
		if r.Focused {
			cursor = ">"
		}
		box := "[ ]"
		if r.Selected {
			box = "[x]"
		}
		fmt.Fprintf(&b, "%s %s  ", cursor, box)

		for i, c := range cols {
			cell := cellAt(r, i)
			writeCell(&b, cell, widths[i], c.AlignRight, i == len(cols)-1)
		}
		b.WriteByte('\n')
	}

	return b.String()
}

func cellAt(r Row, i int) string {
	if i == 0 {
		return TreeCell(r)
	}
	if i < len(r.Cells) {
		return r.Cells[i]
	}
	return ""
}

func columnWidths(cols []Column, rows []Row) []int {
	widths := make([]int, len(cols))
	for i, c := range cols {
		if c.Width > 0 {
			widths[i] = c.Width
			continue
		}
		w := utf8.RuneCountInString(c.Header)
		for _, r := range rows {
			w = max(w, utf8.RuneCountInString(cellAt(r, i)))
		}
		widths[i] = min(w, maxAutoWidth)
	}
	return widths
}

func writeCell(b *strings.Builder, s string, width int, right, last bool) {
	s = Truncate(oneLine(s), width)
	pad := width - utf8.RuneCountInString(s)
	if right {
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(s)
	} else {
		b.WriteString(s)
		if !last {
			b.WriteString(strings.Repeat(" ", pad))
		}
	}
	if !last {
		b.WriteString("  ")
	}
}

// Truncate shortens s to at most width runes, ending in "…" when cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}

func oneLine(s string) string {
	if !strings.ContainsAny(s, "\n\r\t") {
		return s
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(s)
}

func formatCount(n int) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1_000_000, (n%1_000_000)/1000, n%1000)
}

// FormatCount renders n with thousands separators.
func FormatCount(n int) string { return formatCount(n) }
