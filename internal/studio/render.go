package studio

import (
	"time"
	"unicode/utf8"

	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/table"
	"github.com/tobert/trace-studio/internal/viz"
)

// Calls flattens traces into waterfall input, linking each sub-call to the
// invocation that used it.
func Calls(roots []*invocation.Trace) []viz.Call {
	var out []viz.Call
	var visit func(t *invocation.Trace, parent string)
	visit = func(t *invocation.Trace, parent string) {
		out = append(out, viz.Call{
			ID:       t.ID,
			ParentID: parent,
			Name:     t.Name,
			Start:    t.CreatedAt,
			Latency:  time.Duration(t.Latency * float64(time.Second)),
		})
		for _, c := range t.Children {
			visit(c, t.ID)
		}
	}
	for _, t := range roots {
		visit(t, "")
	}
	return out
}

// LMPStats counts calls and tokens per LMP name across every depth, in
// order of first appearance.
func LMPStats(roots []*invocation.Trace) []viz.LMPStats {
	var out []viz.LMPStats
	index := make(map[string]int)
	invocation.Walk(roots, func(t *invocation.Trace, _ int) bool {
		i, ok := index[t.Name]
		if !ok {
			i = len(out)
			index[t.Name] = i
			out = append(out, viz.LMPStats{Name: t.Name})
		}
		out[i].Calls++
		out[i].Tokens += t.TotalTokens
		return true
	})
	return out
}

// cellPx is the pixel width of one monospace cell. Text tables divide the
// column pixel limits by it.
const cellPx = 6

func cellLimit(px int) int {
	if px <= 0 {
		return 0
	}
	return max(px/cellPx, 1)
}

// TextSchema returns the schema with its pixel width limits converted to
// character cells.
func TextSchema(schema table.Schema[*invocation.Trace]) table.Schema[*invocation.Trace] {
	out := table.Schema[*invocation.Trace]{Columns: make([]table.Column[*invocation.Trace], 0, len(schema.Columns))}
	for _, c := range schema.Columns {
		c.MinWidth = cellLimit(c.MinWidth)
		c.MaxWidth = cellLimit(c.MaxWidth)
		out.Columns = append(out.Columns, c)
	}
	return out
}

// TextRows maps the table's visible rows into the text table model. The
// active sort header gets an arrow and the focused trace is marked. Column
// widths come from measuring the visible rows against TextSchema; headers
// are never cut.
func TextRows(t *InvocationsTable) ([]viz.Column, []viz.Row) {
	sortCfg := t.State().SortConfig()
	schema := TextSchema(t.Columns())

	focused := ""
	if sel := t.Selected(); sel != nil {
		focused = sel.ID
	}

	visible := t.Rows()
	rows := make([]viz.Row, 0, len(visible))
	for _, r := range visible {
		cells := make([]string, 0, len(schema.Columns))
		for _, c := range schema.Columns {
			cells = append(cells, c.Cell(r.Item))
		}
		rows = append(rows, viz.Row{
			Level:       r.Level,
			HasChildren: r.HasChildren,
			Expanded:    r.Expanded,
			Selected:    r.Selected,
			Focused:     r.Item.ID == focused,
			Cells:       cells,
		})
	}

	widths := table.Widths{}
	table.ResetWidths(widths, schema)
	table.Measure(widths, schema, visible)
	if len(schema.Columns) > 0 {
		// the first column also carries the tree indent and marker
		first := schema.Columns[0]
		for _, r := range rows {
			widths.Update(first.Key, utf8.RuneCountInString(viz.TreeCell(r)), first.MaxWidth)
		}
	}

	cols := make([]viz.Column, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		header := c.Header
		if c.Sortable && c.Key == sortCfg.Key {
			if sortCfg.Direction == table.Asc {
				header += " ▲"
			} else {
				header += " ▼"
			}
		}
		cols = append(cols, viz.Column{
			Header:     header,
			Width:      max(widths.Get(c.Key, c.MaxWidth), utf8.RuneCountInString(header)),
			AlignRight: c.Key == KeyLatency || c.Key == KeyTotalTokens,
		})
	}
	return cols, rows
}
