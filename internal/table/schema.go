package table

import (
	"fmt"
	"slices"
	"unicode/utf8"
)

// Column describes one table column. MaxWidth of zero means unbounded.
type Column[T any] struct {
	Key      string
	Header   string
	Render   func(item T) string
	MinWidth int
	MaxWidth int
	Sortable bool
	Class    string
}

// Cell renders item for this column, falling back to its sort value.
func (c Column[T]) Cell(item T) string {
	if c.Render != nil {
		return c.Render(item)
	}
	if r, ok := any(item).(interface{ SortValue(string) any }); ok {
		if v := r.SortValue(c.Key); v != nil {
			return toString(v)
		}
	}
	return ""
}

// Schema is the static column configuration of a table.
type Schema[T any] struct {
	Columns []Column[T]
}

// Column looks up a column by key.
func (s Schema[T]) Column(key string) (Column[T], bool) {
	for _, c := range s.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column[T]{}, false
}

// Omit returns a copy of the schema without the named columns.
func (s Schema[T]) Omit(keys ...string) Schema[T] {
	if len(keys) == 0 {
		return s
	}
	out := Schema[T]{Columns: make([]Column[T], 0, len(s.Columns))}
	for _, c := range s.Columns {
		if !slices.Contains(keys, c.Key) {
			out.Columns = append(out.Columns, c)
		}
	}
	return out
}

// SortableKeys returns the keys of sortable columns in schema order.
func (s Schema[T]) SortableKeys() []string {
	var out []string
	for _, c := range s.Columns {
		if c.Sortable {
			out = append(out, c.Key)
		}
	}
	return out
}

// ColumnsFor returns the columns to draw. Omitted columns stay hidden only
// while no row is expanded.
func ColumnsFor[T Row[T]](schema Schema[T], state *State[T], omit []string) Schema[T] {
	if len(omit) > 0 && !state.AnyExpanded() {
		return schema.Omit(omit...)
	}
	return schema
}

// SortBy applies OnSort for key when the schema marks it sortable.
// It reports whether the sort changed.
func SortBy[T Row[T]](schema Schema[T], state *State[T], key string) bool {
	c, ok := schema.Column(key)
	if !ok || !c.Sortable {
		return false
	}
	state.OnSort(key)
	return true
}

// Pagination describes the page controls under a table. TotalItems of zero
// or less means the total is unknown and HasNextPage decides Next.
type Pagination struct {
	CurrentPage int  `json:"current_page"`
	PageSize    int  `json:"page_size"`
	TotalItems  int  `json:"total_items,omitempty"`
	HasNextPage bool `json:"has_next_page"`
}

// TotalPages returns the page count, or -1 when the total is unknown.
func (p Pagination) TotalPages() int {
	if p.TotalItems <= 0 || p.PageSize <= 0 {
		return -1
	}
	return (p.TotalItems + p.PageSize - 1) / p.PageSize
}

// CanFirst reports whether the first-page control is enabled.
func (p Pagination) CanFirst() bool { return p.CurrentPage > 0 }

// CanPrev reports whether the previous-page control is enabled.
func (p Pagination) CanPrev() bool { return p.CurrentPage > 0 }

// CanNext reports whether the next-page control is enabled.
func (p Pagination) CanNext() bool {
	if total := p.TotalPages(); total >= 0 {
		return p.CurrentPage < total-1
	}
	return p.HasNextPage
}

// CanLast reports whether the last-page control is enabled.
func (p Pagination) CanLast() bool {
	total := p.TotalPages()
	return total >= 0 && p.CurrentPage < total-1
}

// LastPage returns the index of the last page, or -1 when unknown.
func (p Pagination) LastPage() int {
	if total := p.TotalPages(); total > 0 {
		return total - 1
	}
	return -1
}

// Label is the 1-based caption between the controls.
func (p Pagination) Label() string {
	return fmt.Sprintf("Page %d", p.CurrentPage+1)
}

// Widths tracks the widest content seen per column, clamped by MaxWidth.
type Widths map[string]int

// ResetWidths zeroes the width of every schema column.
func ResetWidths[T any](w Widths, schema Schema[T]) {
	clear(w)
	for _, c := range schema.Columns {
		w[c.Key] = 0
	}
}

// Update grows the width for key to width, never past maxWidth.
// maxWidth of zero means unbounded.
func (w Widths) Update(key string, width, maxWidth int) {
	next := max(w[key], width)
	if maxWidth > 0 {
		next = min(next, maxWidth)
	}
	w[key] = next
}

// Get returns the tracked width clamped to maxWidth.
func (w Widths) Get(key string, maxWidth int) int {
	if maxWidth > 0 {
		return min(w[key], maxWidth)
	}
	return w[key]
}

// Measure updates widths from the rendered cells of rows and the headers.
// Widths are measured in runes; MinWidth acts as a floor.
func Measure[T Row[T]](w Widths, schema Schema[T], rows []VisibleRow[T]) {
	for _, c := range schema.Columns {
		w.Update(c.Key, max(utf8.RuneCountInString(c.Header), c.MinWidth), c.MaxWidth)
		for _, r := range rows {
			w.Update(c.Key, utf8.RuneCountInString(c.Cell(r.Item)), c.MaxWidth)
		}
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
