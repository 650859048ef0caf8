package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Expand    key.Binding
	Collapse  key.Binding
	Select    key.Binding
	SelectAll key.Binding
	Sort      key.Binding
	Reverse   key.Binding
	NextPage  key.Binding
	PrevPage  key.Binding
	FirstPage key.Binding
	Pause     key.Binding
	Refresh   key.Binding
	Help      key.Binding
	Quit      key.Binding
}

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "up")),
	Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "down")),
	Expand:    key.NewBinding(key.WithKeys("enter", "right", "l"), key.WithHelp("enter", "expand")),
	Collapse:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("left", "collapse")),
	Select:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "select")),
	SelectAll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select all")),
	Sort:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort column")),
	Reverse:   key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "sort direction")),
	NextPage:  key.NewBinding(key.WithKeys("n", "pgdown"), key.WithHelp("n", "next page")),
	PrevPage:  key.NewBinding(key.WithKeys("p", "pgup"), key.WithHelp("p", "prev page")),
	FirstPage: key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "first page")),
	Pause:     key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "pause")),
	Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Expand, k.Select, k.Sort, k.NextPage, k.Pause, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Expand, k.Collapse},
		{k.Select, k.SelectAll, k.Sort, k.Reverse},
		{k.NextPage, k.PrevPage, k.FirstPage},
		{k.Pause, k.Refresh, k.Help, k.Quit},
	}
}
