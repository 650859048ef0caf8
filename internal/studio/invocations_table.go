package studio

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/table"
)

// TableOptions configures an InvocationsTable.
type TableOptions struct {
	OmitColumns       []string
	ExpandAll         bool
	Now               func() time.Time
	OnSelectionChange func([]*invocation.Trace)
}

// InvocationsTable is the invocation-specific instantiation of the
// hierarchical table: the column set, checkbox selection, and the single
// focused trace that keyboard navigation moves.
type InvocationsTable struct {
	schema  table.Schema[*invocation.Trace]
	state   *table.State[*invocation.Trace]
	omit    []string
	loaded  bool
	focused string
}

// NewInvocationsTable creates an empty (loading) table.
func NewInvocationsTable(opts TableOptions) *InvocationsTable {
	return &InvocationsTable{
		schema: DefaultSchema(opts.Now),
		state: table.NewState[*invocation.Trace](nil, table.Options[*invocation.Trace]{
			InitialSort:       InitialSort,
			ExpandAll:         opts.ExpandAll,
			OnSelectionChange: opts.OnSelectionChange,
		}),
		omit: opts.OmitColumns,
	}
}

// Load maps a fetched page into rows. A nil page keeps the table loading.
func (t *InvocationsTable) Load(invs []invocation.Invocation) {
	if invs == nil {
		t.loaded = false
		t.state.SetData(nil)
		return
	}
	t.loaded = true
	t.state.SetData(invocation.FromInvocations(invs))
	if _, ok := t.state.Find(t.focused); t.focused != "" && !ok {
		t.focused = ""
	}
}

// Loading reports whether no page has been loaded yet.
func (t *InvocationsTable) Loading() bool { return !t.loaded }

// State exposes the underlying table state.
func (t *InvocationsTable) State() *table.State[*invocation.Trace] { return t.state }

// Schema returns the full column set.
func (t *InvocationsTable) Schema() table.Schema[*invocation.Trace] { return t.schema }

// Columns returns the columns to draw right now.
func (t *InvocationsTable) Columns() table.Schema[*invocation.Trace] {
	return table.ColumnsFor(t.schema, t.state, t.omit)
}

// Traces returns the top-level traces in draw order.
func (t *InvocationsTable) Traces() []*invocation.Trace { return t.state.Sorted() }

// Rows returns the visible rows.
func (t *InvocationsTable) Rows() []table.VisibleRow[*invocation.Trace] { return t.state.Visible() }

// Sort applies a header click. Non-sortable keys are ignored.
func (t *InvocationsTable) Sort(key string) bool {
	return table.SortBy(t.schema, t.state, key)
}

// Select focuses a top-level trace. It reports whether the id was found.
func (t *InvocationsTable) Select(id string) bool {
	if t.indexOf(id) < 0 {
		return false
	}
	t.focused = id
	return true
}

// Focus focuses a row at any depth, the way a row click does.
func (t *InvocationsTable) Focus(id string) bool {
	if _, ok := t.state.Find(id); !ok {
		return false
	}
	t.focused = id
	return true
}

// Selected returns the focused trace, or nil.
func (t *InvocationsTable) Selected() *invocation.Trace {
	if t.focused == "" {
		return nil
	}
	tr, _ := t.state.Find(t.focused)
	return tr
}

// ClearSelection drops the focused trace.
func (t *InvocationsTable) ClearSelection() { t.focused = "" }

// MoveSelection moves the focused trace by delta within the top-level list.
// Without a focused trace it does nothing; moves stop at the ends.
func (t *InvocationsTable) MoveSelection(delta int) *invocation.Trace {
	if t.focused == "" {
		return nil
	}
	traces := t.Traces()
	idx := t.indexOf(t.focused)
	if idx < 0 {
		// focus sits on a nested row; moving down lands on the first trace
		if delta > 0 && len(traces) > 0 {
			t.focused = traces[0].ID
			return traces[0]
		}
		return t.Selected()
	}
	next := idx + delta
	if next < 0 || next >= len(traces) {
		return traces[idx]
	}
	t.focused = traces[next].ID
	return traces[next]
}

// RowClass returns the extra class for a row: "selected" for the focused one.
func (t *InvocationsTable) RowClass(tr *invocation.Trace) string {
	if tr != nil && tr.ID == t.focused {
		return "selected"
	}
	return ""
}

// HasNextPage reports whether the page came back full.
func (t *InvocationsTable) HasNextPage(pageSize int) bool {
	return pageSize > 0 && len(t.state.Data()) == pageSize
}

// Pagination builds the page controls for page.
func (t *InvocationsTable) Pagination(page, pageSize int) table.Pagination {
	return table.Pagination{
		CurrentPage: page,
		PageSize:    pageSize,
		HasNextPage: t.HasNextPage(pageSize),
	}
}

func (t *InvocationsTable) indexOf(id string) int {
	for i, tr := range t.Traces() {
		if tr.ID == id {
			return i
		}
	}
	return -1
}

// LMPLink is the route of the LMP page for a trace.
func LMPLink(tr *invocation.Trace) string {
	return fmt.Sprintf("/lmp/%s/%s?i=%s",
		url.PathEscape(tr.Name), url.PathEscape(tr.LMP.LMPID), url.QueryEscape(tr.ID))
}
