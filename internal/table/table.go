// Package table implements the state behind a hierarchical table widget:
// expand/collapse, row selection, sorting, and flattening of nested rows
// into the order they are drawn.
package table

import (
	"sort"
	"strings"
	"time"
)

// Row is the contract a row type must satisfy to be placed in a table.
type Row[T any] interface {
	RowID() string
	RowChildren() []T
	SortValue(key string) any
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortConfig names the active sort column and direction.
// An empty Key leaves rows in data order.
type SortConfig struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

// Options configures a new State.
type Options[T Row[T]] struct {
	InitialSort       SortConfig
	ExpandAll         bool
	OnSelectionChange func(selected []T)
}

// VisibleRow is one drawn row: the item plus its rendering flags.
type VisibleRow[T Row[T]] struct {
	Item        T
	Level       int
	HasChildren bool
	Expanded    bool
	Selected    bool
}

// State holds expand/select/sort bookkeeping over a slice of top-level rows.
// It is not safe for concurrent use; callers own one State per view.
type State[T Row[T]] struct {
	data      []T
	expanded  map[string]bool
	selected  map[string]bool
	sort      SortConfig
	expandAll bool
	onChange  func([]T)
}

// NewState creates table state over data.
func NewState[T Row[T]](data []T, opts Options[T]) *State[T] {
	s := &State[T]{
		expanded:  make(map[string]bool),
		selected:  make(map[string]bool),
		sort:      opts.InitialSort,
		expandAll: opts.ExpandAll,
		onChange:  opts.OnSelectionChange,
	}
	if s.sort.Key != "" && s.sort.Direction == "" {
		s.sort.Direction = Asc
	}
	s.SetData(data)
	return s
}

// SetData replaces the rows. Expanded and selected ids that no longer exist
// are dropped; with ExpandAll, rows not seen before are expanded.
func (s *State[T]) SetData(data []T) {
	present := make(map[string]bool)
	walk(data, 0, func(item T, _ int) {
		present[item.RowID()] = true
	})

	for id := range s.expanded {
		if !present[id] {
			delete(s.expanded, id)
		}
	}
	selectionChanged := false
	for id := range s.selected {
		if !present[id] {
			delete(s.selected, id)
			selectionChanged = true
		}
	}

	if s.expandAll {
		known := make(map[string]bool)
		walk(s.data, 0, func(item T, _ int) {
			known[item.RowID()] = true
		})
		walk(data, 0, func(item T, _ int) {
			if len(item.RowChildren()) > 0 && !known[item.RowID()] {
				s.expanded[item.RowID()] = true
			}
		})
	}

	s.data = data
	if selectionChanged {
		s.notify()
	}
}

// Data returns the top-level rows in data order.
func (s *State[T]) Data() []T { return s.data }

// ToggleRow flips the expanded flag of a row.
func (s *State[T]) ToggleRow(id string) {
	if s.expanded[id] {
		delete(s.expanded, id)
		return
	}
	s.expanded[id] = true
}

// SetExpanded sets the expanded flag of a row.
func (s *State[T]) SetExpanded(id string, expanded bool) {
	if expanded {
		s.expanded[id] = true
		return
	}
	delete(s.expanded, id)
}

// IsExpanded reports whether a row is expanded.
func (s *State[T]) IsExpanded(id string) bool { return s.expanded[id] }

// AnyExpanded reports whether at least one row is expanded.
func (s *State[T]) AnyExpanded() bool { return len(s.expanded) > 0 }

// ExpandedIDs returns the expanded ids, sorted.
func (s *State[T]) ExpandedIDs() []string { return keys(s.expanded) }

// ToggleSelection sets the selection membership of item.
func (s *State[T]) ToggleSelection(item T, checked bool) {
	id := item.RowID()
	if checked == s.selected[id] {
		return
	}
	if checked {
		s.selected[id] = true
	} else {
		delete(s.selected, id)
	}
	s.notify()
}

// IsItemSelected reports whether item is selected.
func (s *State[T]) IsItemSelected(item T) bool { return s.selected[item.RowID()] }

// IsAllSelected reports whether there are top-level rows and all are selected.
func (s *State[T]) IsAllSelected() bool {
	if len(s.data) == 0 {
		return false
	}
	for _, item := range s.data {
		if !s.selected[item.RowID()] {
			return false
		}
	}
	return true
}

// ToggleAllSelection selects every top-level row, or clears the selection.
func (s *State[T]) ToggleAllSelection(checked bool) {
	if checked {
		for _, item := range s.data {
			s.selected[item.RowID()] = true
		}
	} else {
		clear(s.selected)
	}
	s.notify()
}

// SelectedIDs returns the selected ids, sorted.
func (s *State[T]) SelectedIDs() []string { return keys(s.selected) }

// Selected returns the selected items in draw order, expanded or not.
func (s *State[T]) Selected() []T {
	var out []T
	walk(s.Sorted(), 0, func(item T, _ int) {
		if s.selected[item.RowID()] {
			out = append(out, item)
		}
	})
	return out
}

func (s *State[T]) notify() {
	if s.onChange != nil {
		s.onChange(s.Selected())
	}
}

// SortConfig returns the active sort.
func (s *State[T]) SortConfig() SortConfig { return s.sort }

// OnSort makes key the sort column. Sorting the active ascending column again
// flips it to descending; anything else starts ascending.
func (s *State[T]) OnSort(key string) {
	if s.sort.Key == key && s.sort.Direction == Asc {
		s.sort.Direction = Desc
		return
	}
	s.sort = SortConfig{Key: key, Direction: Asc}
}

// SetSort replaces the sort config.
func (s *State[T]) SetSort(cfg SortConfig) { s.sort = cfg }

// Sorted returns the top-level rows ordered by the active sort. Children
// keep the order the data supplied.
func (s *State[T]) Sorted() []T {
	out := make([]T, len(s.data))
	copy(out, s.data)
	if s.sort.Key == "" {
		return out
	}

	key, desc := s.sort.Key, s.sort.Direction == Desc
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].SortValue(key), out[j].SortValue(key)
		// nil always sorts last
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		c := Compare(a, b)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// Visible flattens the sorted rows depth-first, descending into children
// only under expanded parents.
func (s *State[T]) Visible() []VisibleRow[T] {
	var rows []VisibleRow[T]
	var visit func(items []T, level int)
	visit = func(items []T, level int) {
		for _, item := range items {
			id := item.RowID()
			children := item.RowChildren()
			row := VisibleRow[T]{
				Item:        item,
				Level:       level,
				HasChildren: len(children) > 0,
				Expanded:    s.expanded[id],
				Selected:    s.selected[id],
			}
			rows = append(rows, row)
			if row.HasChildren && row.Expanded {
				visit(children, level+1)
			}
		}
	}
	visit(s.Sorted(), 0)
	return rows
}

// Find returns the row with id anywhere in the tree.
func (s *State[T]) Find(id string) (T, bool) {
	var found T
	ok := false
	walk(s.data, 0, func(item T, _ int) {
		if !ok && item.RowID() == id {
			found, ok = item, true
		}
	})
	return found, ok
}

// Compare orders two sort values of the same kind. Mixed kinds compare by
// their string form.
func Compare(a, b any) int {
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case int:
		if y, ok := b.(int); ok {
			return cmpOrdered(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmpOrdered(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmpOrdered(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(strings.ToLower(x), strings.ToLower(y))
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(toString(a), toString(b))
}

func cmpOrdered[N int | int64 | float64](a, b N) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func walk[T Row[T]](items []T, level int, fn func(T, int)) {
	for _, item := range items {
		fn(item, level)
		walk(item.RowChildren(), level+1, fn)
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
