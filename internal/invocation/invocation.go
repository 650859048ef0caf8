// Package invocation holds the invocation records returned by the backend
// store and the trace rows the dashboard renders from them.
package invocation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// LMP identifies the language model program that produced an invocation.
type LMP struct {
	Name          string `json:"name"`
	LMPID         string `json:"lmp_id"`
	VersionNumber int    `json:"version_number"`
}

// Invocation is one recorded call as the backend serializes it.
type Invocation struct {
	ID               string       `json:"id"`
	LMPID            string       `json:"lmp_id,omitempty"`
	LMP              *LMP         `json:"lmp,omitempty"`
	Args             []any        `json:"args"`
	Results          []any        `json:"results"`
	CreatedAt        time.Time    `json:"created_at"`
	LatencyMs        float64      `json:"latency_ms"`
	PromptTokens     *int         `json:"prompt_tokens,omitempty"`
	CompletionTokens *int         `json:"completion_tokens,omitempty"`
	Uses             []Invocation `json:"uses,omitempty"`
}

// Trace is the row view model for one invocation and its sub-calls.
type Trace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Input       string    `json:"input"`
	Output      string    `json:"output"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	Latency     float64   `json:"latency"` // seconds
	TotalTokens int       `json:"total_tokens"`
	LMP         LMP       `json:"lmp"`
	Children    []*Trace  `json:"children"`
}

// FromInvocation maps a backend record into a trace row, recursing through
// the invocations it used.
func FromInvocation(inv Invocation) *Trace {
	t := &Trace{
		ID:          inv.ID,
		Name:        "Unknown",
		Input:       CleanStringify(unwrapSingle(inv.Args)),
		Output:      CleanStringify(unwrapSingle(inv.Results)),
		CreatedAt:   inv.CreatedAt,
		Latency:     inv.LatencyMs / 1000,
		TotalTokens: deref(inv.PromptTokens) + deref(inv.CompletionTokens),
		Children:    make([]*Trace, 0, len(inv.Uses)),
	}

	if inv.LMP != nil {
		t.LMP = *inv.LMP
		if inv.LMP.Name != "" {
			t.Name = inv.LMP.Name
		}
		t.Version = inv.LMP.VersionNumber + 1
	} else {
		t.LMP.LMPID = inv.LMPID
		t.Version = 1
	}
	if t.LMP.LMPID == "" {
		t.LMP.LMPID = inv.LMPID
	}

	for _, used := range inv.Uses {
		t.Children = append(t.Children, FromInvocation(used))
	}
	return t
}

// FromInvocations maps a page of records, preserving order.
func FromInvocations(invs []Invocation) []*Trace {
	traces := make([]*Trace, 0, len(invs))
	for _, inv := range invs {
		traces = append(traces, FromInvocation(inv))
	}
	return traces
}

func unwrapSingle(values []any) any {
	if len(values) == 1 {
		return values[0]
	}
	if values == nil {
		return []any{}
	}
	return values
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

// CleanStringify encodes v as compact JSON, replacing every object that
// carries the "__lstr" marker with its content string.
func CleanStringify(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(clean(v)); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func clean(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if _, ok := val["__lstr"]; ok {
			if content, ok := val["content"].(string); ok {
				return content
			}
		}
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = clean(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = clean(inner)
		}
		return out
	default:
		return v
	}
}

// TrimQuotes strips one leading and one trailing double quote.
func TrimQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}

// RowID implements the table row contract.
func (t *Trace) RowID() string { return t.ID }

// RowChildren implements the table row contract.
func (t *Trace) RowChildren() []*Trace { return t.Children }

// SortValue returns the comparable value for a column key, or nil.
func (t *Trace) SortValue(key string) any {
	switch key {
	case "id":
		return t.ID
	case "created_at":
		return t.CreatedAt
	case "version":
		return t.Version
	case "latency":
		return t.Latency
	case "total_tokens":
		return t.TotalTokens
	case "name":
		return t.Name
	case "input":
		return t.Input
	case "output":
		return t.Output
	}
	return nil
}

// Walk visits traces depth-first. Returning false from fn stops the walk.
func Walk(traces []*Trace, fn func(t *Trace, depth int) bool) {
	walk(traces, 0, fn)
}

func walk(traces []*Trace, depth int, fn func(*Trace, int) bool) bool {
	for _, t := range traces {
		if !fn(t, depth) {
			return false
		}
		if !walk(t.Children, depth+1, fn) {
			return false
		}
	}
	return true
}

// Find returns the trace with the given id anywhere in the tree.
func Find(traces []*Trace, id string) *Trace {
	var found *Trace
	Walk(traces, func(t *Trace, _ int) bool {
		if t.ID == id {
			found = t
			return false
		}
		return true
	})
	return found
}

// Count returns the number of rows including descendants.
func Count(traces []*Trace) int {
	n := 0
	Walk(traces, func(*Trace, int) bool {
		n++
		return true
	})
	return n
}

// IDs returns the sorted set of ids in the tree.
func IDs(invs []Invocation) []string {
	var ids []string
	var collect func([]Invocation)
	collect = func(list []Invocation) {
		for _, inv := range list {
			ids = append(ids, inv.ID)
			collect(inv.Uses)
		}
	}
	collect(invs)
	sort.Strings(ids)
	return ids
}
