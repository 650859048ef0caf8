// Package tui is the terminal traces view: the same hierarchical table the
// web UI draws, driven by the keyboard and refreshed from the shared feed.
package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/storage"
	"github.com/tobert/trace-studio/internal/studio"
	"github.com/tobert/trace-studio/internal/table"
	"github.com/tobert/trace-studio/internal/viz"
)

// Controls is the shared page and polling state, normally *poller.Poller.
type Controls interface {
	Page() int
	SetPage(n int) bool
	PageSize() int
	Paused() bool
	Toggle() bool
	Refresh()
}

// Options configures the model.
type Options struct {
	OmitColumns []string
	ExpandAll   bool
	Now         func() time.Time
	// TickInterval redraws relative start times. Zero means one second.
	TickInterval time.Duration
}

type feedChangedMsg struct{}

type tickMsg time.Time

// Model is the bubbletea model for the traces table.
type Model struct {
	feed     *storage.Feed
	controls Controls
	changes  <-chan struct{}

	page       *studio.TracesPage
	generation uint64
	snap       storage.Snapshot
	cursor     int

	tick     time.Duration
	help     help.Model
	showHelp bool
	width    int
	height   int
}

// New builds a model over feed. changes is the feed subscription that wakes
// the model; nil disables live updates.
func New(feed *storage.Feed, controls Controls, changes <-chan struct{}, opts Options) Model {
	tbl := studio.NewInvocationsTable(studio.TableOptions{
		OmitColumns: opts.OmitColumns,
		ExpandAll:   opts.ExpandAll,
		Now:         opts.Now,
	})
	tick := opts.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	m := Model{
		feed:     feed,
		controls: controls,
		changes:  changes,
		page:     studio.NewTracesPage(tbl, controls.PageSize()),
		tick:     tick,
		help:     help.New(),
	}
	m.sync(true)
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForFeed(m.changes), tickEvery(m.tick))
}

func waitForFeed(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return feedChangedMsg{}
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case feedChangedMsg:
		m.sync(false)
		return m, waitForFeed(m.changes)

	case tickMsg:
		m.sync(false)
		return m, tickEvery(m.tick)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	tbl := m.page.Table
	state := tbl.State()
	rows := tbl.Rows()

	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, keys.Expand):
		if r, ok := m.current(rows); ok && r.HasChildren && !r.Expanded {
			state.SetExpanded(r.Item.ID, true)
		}

	case key.Matches(msg, keys.Collapse):
		r, ok := m.current(rows)
		switch {
		case !ok:
		case r.HasChildren && r.Expanded:
			state.SetExpanded(r.Item.ID, false)
		case r.Level > 0:
			// jump to the parent row
			for i := m.cursor - 1; i >= 0; i-- {
				if rows[i].Level == r.Level-1 {
					m.setCursor(i)
					break
				}
			}
		}

	case key.Matches(msg, keys.Select):
		if r, ok := m.current(rows); ok {
			state.ToggleSelection(r.Item, !r.Selected)
		}

	case key.Matches(msg, keys.SelectAll):
		state.ToggleAllSelection(!state.IsAllSelected())

	case key.Matches(msg, keys.Sort):
		state.SetSort(table.SortConfig{Key: nextSortKey(tbl.Schema(), state.SortConfig().Key), Direction: table.Asc})

	case key.Matches(msg, keys.Reverse):
		cfg := state.SortConfig()
		if cfg.Key != "" {
			cfg.Direction = flip(cfg.Direction)
			state.SetSort(cfg)
		}

	case key.Matches(msg, keys.NextPage):
		if tbl.Pagination(m.controls.Page(), m.controls.PageSize()).CanNext() {
			m.changePage(m.controls.Page() + 1)
		}

	case key.Matches(msg, keys.PrevPage):
		if m.controls.Page() > 0 {
			m.changePage(m.controls.Page() - 1)
		}

	case key.Matches(msg, keys.FirstPage):
		m.changePage(0)

	case key.Matches(msg, keys.Pause):
		m.controls.Toggle()
		m.page.SetPolling(!m.controls.Paused())

	case key.Matches(msg, keys.Refresh):
		m.controls.Refresh()
	}

	m.relocate()
	return m, nil
}

// sync reloads the table when the feed moved on. The cursor follows the
// focused trace across reloads.
func (m *Model) sync(force bool) {
	snap := m.feed.Snapshot()
	if force || snap.Generation != m.generation {
		if snap.Loaded {
			m.page.Load(snap.Invocations)
		} else {
			m.page.Load(nil)
		}
		m.generation = snap.Generation
	}
	m.snap = snap
	m.page.SetPage(m.controls.Page())
	m.page.SetPolling(!m.controls.Paused())
	m.relocate()
}

func (m *Model) changePage(n int) {
	if m.controls.SetPage(n) {
		m.cursor = 0
		m.page.Table.ClearSelection()
		m.sync(false)
	}
}

func (m *Model) moveCursor(delta int) {
	m.setCursor(m.cursor + delta)
}

func (m *Model) setCursor(i int) {
	rows := m.page.Table.Rows()
	if len(rows) == 0 {
		m.cursor = 0
		return
	}
	m.cursor = min(max(i, 0), len(rows)-1)
	m.page.Table.Focus(rows[m.cursor].Item.ID)
}

// relocate puts the cursor back on the focused row, or focuses the row
// under the cursor when focus was lost.
func (m *Model) relocate() {
	rows := m.page.Table.Rows()
	if sel := m.page.Selected(); sel != nil {
		if i := slices.IndexFunc(rows, func(r table.VisibleRow[*invocation.Trace]) bool {
			return r.Item.ID == sel.ID
		}); i >= 0 {
			m.cursor = i
			return
		}
	}
	m.setCursor(m.cursor)
}

func (m Model) current(rows []table.VisibleRow[*invocation.Trace]) (table.VisibleRow[*invocation.Trace], bool) {
	if m.cursor < 0 || m.cursor >= len(rows) {
		return table.VisibleRow[*invocation.Trace]{}, false
	}
	return rows[m.cursor], true
}

// Cursor returns the index of the focused visible row.
func (m Model) Cursor() int { return m.cursor }

// Page returns the page state behind the view.
func (m Model) Page() *studio.TracesPage { return m.page }

func nextSortKey(schema table.Schema[*invocation.Trace], current string) string {
	sortable := schema.SortableKeys()
	if len(sortable) == 0 {
		return ""
	}
	i := slices.Index(sortable, current)
	return sortable[(i+1)%len(sortable)]
}

func flip(d table.Direction) table.Direction {
	if d == table.Asc {
		return table.Desc
	}
	return table.Asc
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	pausedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAB387"))

	liveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))
)

func (m Model) View() string {
	var b strings.Builder

	status := liveStyle.Render("● live")
	if !m.page.Polling() {
		status = pausedStyle.Render("❚❚ paused")
	}
	b.WriteString(titleStyle.Render("trace-studio") + "  " + status)
	if n := len(m.page.Table.State().SelectedIDs()); n > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d selected", n)))
	}
	b.WriteString("\n\n")

	if m.snap.Err != "" {
		b.WriteString(errorStyle.Render("⚠️  "+m.snap.Err) + "\n\n")
	}

	if m.page.Loading() {
		b.WriteString("Loading...\n")
	} else {
		cols, rows := studio.TextRows(m.page.Table)
		b.WriteString(viz.TableText(cols, rows))
	}

	pg := m.page.Table.Pagination(m.controls.Page(), m.controls.PageSize())
	b.WriteString("\n" + dimStyle.Render(pg.Label()) + "\n")

	if sel := m.page.Selected(); sel != nil && !m.page.Loading() {
		width := m.width
		if width <= 0 {
			width = 100
		}
		b.WriteString("\n")
		b.WriteString(viz.Waterfall(studio.Calls([]*invocation.Trace{sel}), width))
	}

	b.WriteString("\n" + m.help.View(keys) + "\n")
	return b.String()
}
