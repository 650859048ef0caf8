package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/storage"
	"github.com/tobert/trace-studio/internal/studio"
	"github.com/tobert/trace-studio/internal/table"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeControls struct {
	page      int
	pageSize  int
	paused    bool
	refreshes int
}

func (c *fakeControls) Page() int     { return c.page }
func (c *fakeControls) PageSize() int { return c.pageSize }
func (c *fakeControls) Paused() bool  { return c.paused }
func (c *fakeControls) Refresh()      { c.refreshes++ }

func (c *fakeControls) SetPage(n int) bool {
	n = max(n, 0)
	if n == c.page {
		return false
	}
	c.page = n
	return true
}

func (c *fakeControls) Toggle() bool {
	c.paused = !c.paused
	return c.paused
}

func fixture() []invocation.Invocation {
	return []invocation.Invocation{
		{
			ID: "a", LMP: &invocation.LMP{Name: "agent", LMPID: "L1"}, CreatedAt: base, LatencyMs: 1200,
			Uses: []invocation.Invocation{
				{ID: "a1", LMP: &invocation.LMP{Name: "search"}, CreatedAt: base.Add(100 * time.Millisecond), LatencyMs: 300},
			},
		},
		{ID: "b", LMP: &invocation.LMP{Name: "classify", LMPID: "L2"}, CreatedAt: base.Add(-time.Minute), LatencyMs: 50},
	}
}

func newModel(t *testing.T) (Model, *storage.Feed, *fakeControls) {
	t.Helper()
	feed := storage.NewFeed()
	feed.Publish(0, 2, fixture(), time.Millisecond, nil)
	controls := &fakeControls{pageSize: 2}
	m := New(feed, controls, nil, Options{Now: func() time.Time { return base.Add(time.Minute) }})
	return m, feed, controls
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func focusedID(m Model) string {
	if sel := m.Page().Selected(); sel != nil {
		return sel.ID
	}
	return ""
}

func TestNewFocusesFirstRow(t *testing.T) {
	m, _, _ := newModel(t)
	assert.False(t, m.Page().Loading())
	assert.Equal(t, 0, m.Cursor())
	assert.Equal(t, "a", focusedID(m))
}

func TestLoadingBeforeFirstFetch(t *testing.T) {
	feed := storage.NewFeed()
	m := New(feed, &fakeControls{pageSize: 2}, nil, Options{})
	assert.True(t, m.Page().Loading())
	assert.Contains(t, m.View(), "Loading...")

	feed.Publish(0, 2, fixture(), time.Millisecond, nil)
	m = press(t, m, feedChangedMsg{})
	assert.False(t, m.Page().Loading())
	assert.Equal(t, "a", focusedID(m))
}

func TestCursorMovement(t *testing.T) {
	m, _, _ := newModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, m.Cursor())
	assert.Equal(t, "b", focusedID(m))

	// stops at the end
	m = press(t, m, runes("j"))
	assert.Equal(t, 1, m.Cursor())

	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 0, m.Cursor())
	assert.Equal(t, "a", focusedID(m))
}

func TestExpandCollapse(t *testing.T) {
	m, _, _ := newModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, m.Page().Table.Rows(), 3)
	assert.True(t, m.Page().Table.State().IsExpanded("a"))

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, "a1", focusedID(m))

	// left on a leaf jumps to its parent
	m = press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	assert.Equal(t, 0, m.Cursor())
	assert.Equal(t, "a", focusedID(m))

	m = press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	assert.False(t, m.Page().Table.State().IsExpanded("a"))
	assert.Len(t, m.Page().Table.Rows(), 2)
}

func TestSelection(t *testing.T) {
	m, _, _ := newModel(t)
	state := m.Page().Table.State()

	m = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	assert.Equal(t, []string{"a"}, state.SelectedIDs())

	m = press(t, m, runes("a"))
	assert.True(t, state.IsAllSelected())

	m = press(t, m, runes("a"))
	assert.Empty(t, state.SelectedIDs())
	assert.Contains(t, m.View(), "[ ]")
}

func TestSortKeys(t *testing.T) {
	m, _, _ := newModel(t)
	state := m.Page().Table.State()
	assert.Equal(t, studio.InitialSort, state.SortConfig())

	m = press(t, m, runes("s"))
	assert.Equal(t, table.SortConfig{Key: studio.KeyVersion, Direction: table.Asc}, state.SortConfig())

	m = press(t, m, runes("S"))
	assert.Equal(t, table.Desc, state.SortConfig().Direction)

	// latency ascending puts b first; the cursor stays on the focused trace
	state.SetSort(table.SortConfig{Key: studio.KeyLatency, Direction: table.Asc})
	m = press(t, m, tickMsg(base))
	assert.Equal(t, "a", focusedID(m))
	assert.Equal(t, 1, m.Cursor())
	assert.Contains(t, m.View(), "Latency ▲")
}

func TestPagingAndPolling(t *testing.T) {
	m, _, controls := newModel(t)

	m = press(t, m, runes("n"))
	assert.Equal(t, 1, controls.page)

	m = press(t, m, runes("p"))
	assert.Equal(t, 0, controls.page)

	// already on the first page
	m = press(t, m, runes("p"))
	assert.Equal(t, 0, controls.page)

	m = press(t, m, runes("P"))
	assert.True(t, controls.paused)
	assert.False(t, m.Page().Polling())
	assert.Contains(t, m.View(), "paused")

	m = press(t, m, runes("r"))
	assert.Equal(t, 1, controls.refreshes)
}

func TestFeedChangeKeepsFocus(t *testing.T) {
	m, feed, _ := newModel(t)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, "b", focusedID(m))

	invs := append([]invocation.Invocation{
		{ID: "c", LMP: &invocation.LMP{Name: "fresh"}, CreatedAt: base.Add(time.Second)},
	}, fixture()...)
	feed.Publish(0, 2, invs, time.Millisecond, nil)

	m = press(t, m, feedChangedMsg{})
	assert.Equal(t, "b", focusedID(m))
	assert.Equal(t, 2, m.Cursor())
}

func TestFeedErrorShown(t *testing.T) {
	m, feed, _ := newModel(t)
	feed.Publish(0, 2, nil, time.Millisecond, assert.AnError)

	m = press(t, m, feedChangedMsg{})
	view := m.View()
	assert.Contains(t, view, assert.AnError.Error())
	// the last good page stays on screen
	assert.Contains(t, view, "agent")
}

func TestViewRendersTable(t *testing.T) {
	m, _, _ := newModel(t)
	m = press(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	view := m.View()
	assert.Contains(t, view, "Start Time ▼")
	assert.Contains(t, view, "> [ ]")
	assert.Contains(t, view, "▸ 1m ago")
	assert.Contains(t, view, "Page 1")
	// waterfall of the focused trace
	assert.Contains(t, view, "agent")
	assert.Contains(t, view, "search")
}

func TestQuit(t *testing.T) {
	m, _, _ := newModel(t)
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}
