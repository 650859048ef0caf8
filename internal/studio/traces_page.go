package studio

import "github.com/tobert/trace-studio/internal/invocation"

// DefaultPageSize is the number of root invocations fetched per page.
const DefaultPageSize = 50

// TracesPage is the page-level state around the invocations table: which
// page is shown, whether live polling is on, and which trace is selected.
type TracesPage struct {
	Table    *InvocationsTable
	PageSize int

	currentPage int
	polling     bool
	pendingID   string
}

// NewTracesPage creates a page with polling enabled.
func NewTracesPage(tbl *InvocationsTable, pageSize int) *TracesPage {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &TracesPage{Table: tbl, PageSize: pageSize, polling: true}
}

// CurrentPage returns the zero-based page index.
func (p *TracesPage) CurrentPage() int { return p.currentPage }

// SetPage moves to page n, clamped at zero. It reports whether it changed.
func (p *TracesPage) SetPage(n int) bool {
	n = max(n, 0)
	if n == p.currentPage {
		return false
	}
	p.currentPage = n
	return true
}

// Polling reports whether live updates are on.
func (p *TracesPage) Polling() bool { return p.polling }

// SetPolling sets the live update flag.
func (p *TracesPage) SetPolling(on bool) { p.polling = on }

// TogglePolling flips live updates and returns the new value.
func (p *TracesPage) TogglePolling() bool {
	p.polling = !p.polling
	return p.polling
}

// PollingLabel is the caption of the pause/resume control.
func (p *TracesPage) PollingLabel() string {
	if p.polling {
		return "Pause Updates"
	}
	return "Resume Updates"
}

// Loading reports whether the table is still waiting for data.
func (p *TracesPage) Loading() bool { return p.Table.Loading() }

// Load pushes a fetched page into the table and resolves a pending
// selection from the URL once its invocation is present.
func (p *TracesPage) Load(invs []invocation.Invocation) {
	p.Table.Load(invs)
	if p.pendingID != "" && p.Table.Select(p.pendingID) {
		p.pendingID = ""
	}
}

// SelectFromQuery handles the ?i=<id> parameter. The id is selected when it
// matches a loaded top-level invocation; otherwise it is remembered and
// retried on the next load.
func (p *TracesPage) SelectFromQuery(id string) bool {
	if id == "" {
		return false
	}
	if p.Table.Select(id) {
		p.pendingID = ""
		return true
	}
	p.pendingID = id
	return false
}

// SelectTrace focuses a row the way a click does and returns the query
// value to push into the URL.
func (p *TracesPage) SelectTrace(id string) (string, bool) {
	if !p.Table.Focus(id) {
		return "", false
	}
	p.pendingID = ""
	return "?i=" + id, true
}

// Selected returns the focused trace.
func (p *TracesPage) Selected() *invocation.Trace { return p.Table.Selected() }
