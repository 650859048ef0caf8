package webui

import (
	"fmt"
	"html/template"
	"slices"
	"sync"
	"time"

	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/storage"
	"github.com/tobert/trace-studio/internal/studio"
	"github.com/tobert/trace-studio/internal/table"
)

// maxViews bounds the number of per-browser views kept in memory. The least
// recently used view is dropped first.
const maxViews = 256

// view is one browser's table state: expanded rows, checkbox selection,
// sort and focus. Page index and polling are shared and live in Controls.
type view struct {
	mu sync.Mutex

	page       *studio.TracesPage
	generation uint64
	synced     bool
	lastUsed   time.Time
}

type viewStore struct {
	mu    sync.Mutex
	views map[string]*view

	omit      []string
	expandAll bool
	pageSize  int
	now       func() time.Time
}

func newViewStore(omit []string, expandAll bool, pageSize int, now func() time.Time) *viewStore {
	return &viewStore{
		views:     make(map[string]*view),
		omit:      omit,
		expandAll: expandAll,
		pageSize:  pageSize,
		now:       now,
	}
}

func (vs *viewStore) get(id string) *view {
	if id == "" {
		return nil
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	v := vs.views[id]
	if v != nil {
		v.lastUsed = vs.now()
	}
	return v
}

func (vs *viewStore) create(id string) *view {
	tbl := studio.NewInvocationsTable(studio.TableOptions{
		OmitColumns: vs.omit,
		ExpandAll:   vs.expandAll,
		Now:         vs.now,
	})
	v := &view{
		page:     studio.NewTracesPage(tbl, vs.pageSize),
		lastUsed: vs.now(),
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()
	if len(vs.views) >= maxViews {
		vs.evictOldest()
	}
	vs.views[id] = v
	return v
}

func (vs *viewStore) evictOldest() {
	var oldestID string
	var oldest time.Time
	for id, v := range vs.views {
		if oldestID == "" || v.lastUsed.Before(oldest) {
			oldestID, oldest = id, v.lastUsed
		}
	}
	delete(vs.views, oldestID)
}

func (vs *viewStore) len() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.views)
}

// sync loads the latest feed snapshot into the view when it changed and
// mirrors the shared page and polling state. Callers hold v.mu.
func (v *view) sync(snap storage.Snapshot, controls Controls) {
	if !v.synced || snap.Generation != v.generation {
		if snap.Loaded {
			v.page.Load(snap.Invocations)
		} else {
			v.page.Load(nil)
		}
		v.generation = snap.Generation
		v.synced = true
	}
	v.page.SetPage(controls.Page())
	v.page.SetPolling(!controls.Paused())
}

// tableData is what the table template renders.
type tableData struct {
	Loading       bool
	Error         string
	Columns       []columnData
	Rows          []rowData
	AllSelected   bool
	SelectedCount int
	Pagination    table.Pagination
	PollingLabel  string
	Paused        bool
	Generation    uint64
	FocusedID     string
}

type columnData struct {
	Key      string
	Header   string
	Sortable bool
	SortDir  string // "asc", "desc" or empty when not the sort column
	Style    template.CSS
	Class    string
}

type rowData struct {
	ID          string
	Level       int
	Indent      int // px
	HasChildren bool
	Expanded    bool
	Selected    bool
	New         bool
	Class       string
	Link        string
	Cells       []cellData
}

type cellData struct {
	Key   string
	Text  string
	Class string
}

// data builds the template model. Callers hold v.mu.
func (v *view) data(snap storage.Snapshot) tableData {
	tbl := v.page.Table
	state := tbl.State()

	out := tableData{
		Loading:      v.page.Loading(),
		Error:        snap.Err,
		Pagination:   tbl.Pagination(v.page.CurrentPage(), v.page.PageSize),
		PollingLabel: v.page.PollingLabel(),
		Paused:       !v.page.Polling(),
		Generation:   snap.Generation,
	}
	if sel := tbl.Selected(); sel != nil {
		out.FocusedID = sel.ID
	}
	if out.Loading {
		return out
	}

	sortCfg := state.SortConfig()
	cols := tbl.Columns().Columns
	for _, c := range cols {
		cd := columnData{
			Key:      c.Key,
			Header:   c.Header,
			Sortable: c.Sortable,
			Style:    widthStyle(c.MinWidth, c.MaxWidth),
			Class:    c.Class,
		}
		if c.Sortable && sortCfg.Key == c.Key {
			cd.SortDir = string(sortCfg.Direction)
		}
		out.Columns = append(out.Columns, cd)
	}

	for _, r := range tbl.Rows() {
		tr := r.Item
		rd := rowData{
			ID:          tr.ID,
			Level:       r.Level,
			Indent:      r.Level * 20,
			HasChildren: r.HasChildren,
			Expanded:    r.Expanded,
			Selected:    r.Selected,
			New:         slices.Contains(snap.NewIDs, tr.ID),
			Class:       tbl.RowClass(tr),
			Link:        studio.LMPLink(tr),
		}
		for _, c := range cols {
			rd.Cells = append(rd.Cells, cellData{Key: c.Key, Text: c.Cell(tr), Class: c.Class})
		}
		out.Rows = append(out.Rows, rd)
	}

	out.AllSelected = state.IsAllSelected()
	out.SelectedCount = len(state.SelectedIDs())
	return out
}

func widthStyle(minWidth, maxWidth int) template.CSS {
	style := ""
	if minWidth > 0 {
		style += fmt.Sprintf("min-width:%dpx;", minWidth)
	}
	if maxWidth > 0 {
		style += fmt.Sprintf("max-width:%dpx;", maxWidth)
	}
	return template.CSS(style)
}

// findTrace looks up a row at any depth in the view's current data.
func (v *view) findTrace(id string) (*invocation.Trace, bool) {
	return v.page.Table.State().Find(id)
}
