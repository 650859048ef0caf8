package viz

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls PrettyTable output.
type Mode int

const (
	ASCII    Mode = iota // box-drawn terminal table
	Markdown             // GitHub-flavoured Markdown
)

// PrettyTable renders rows with go-pretty. The selection box and focus
// cursor are left out; the first column keeps its tree markers.
func PrettyTable(cols []Column, rows []Row, mode Mode) string {
	w := table.NewWriter()
	if mode == ASCII {
		w.SetStyle(table.StyleLight)
	}

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.Header
		configs[i] = table.ColumnConfig{
			Number:           i + 1,
			WidthMax:         c.Width,
			WidthMaxEnforcer: text.Trim,
		}
		if c.AlignRight {
			configs[i].Align = text.AlignRight
		}
	}
	w.AppendHeader(header)
	w.SetColumnConfigs(configs)

	for _, r := range rows {
		row := make(table.Row, len(cols))
		for i := range cols {
			row[i] = oneLine(cellAt(r, i))
		}
		w.AppendRow(row)
	}

	if mode == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}
