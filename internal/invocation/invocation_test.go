package invocation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestFromInvocation(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	inv := Invocation{
		ID:               "inv-1",
		LMP:              &LMP{Name: "summarize", LMPID: "lmp-9", VersionNumber: 2},
		Args:             []any{"hello"},
		Results:          []any{"world"},
		CreatedAt:        created,
		LatencyMs:        1530,
		PromptTokens:     intPtr(12),
		CompletionTokens: intPtr(30),
		Uses: []Invocation{
			{ID: "inv-2", LMP: &LMP{Name: "inner"}, Args: []any{1, 2}, Results: []any{}},
		},
	}

	tr := FromInvocation(inv)

	assert.Equal(t, "inv-1", tr.ID)
	assert.Equal(t, "summarize", tr.Name)
	assert.Equal(t, `"hello"`, tr.Input)
	assert.Equal(t, `"world"`, tr.Output)
	assert.Equal(t, 3, tr.Version)
	assert.Equal(t, created, tr.CreatedAt)
	assert.InDelta(t, 1.53, tr.Latency, 1e-9)
	assert.Equal(t, 42, tr.TotalTokens)
	require.Len(t, tr.Children, 1)

	child := tr.Children[0]
	assert.Equal(t, "inner", child.Name)
	assert.Equal(t, "[1,2]", child.Input)
	assert.Equal(t, "[]", child.Output)
	assert.Equal(t, 1, child.Version)
	assert.Equal(t, 0, child.TotalTokens)
	assert.NotNil(t, child.Children)
	assert.Empty(t, child.Children)
}

func TestFromInvocationUnknownLMP(t *testing.T) {
	tr := FromInvocation(Invocation{ID: "x", LMPID: "l1", PromptTokens: intPtr(5)})
	assert.Equal(t, "Unknown", tr.Name)
	assert.Equal(t, "l1", tr.LMP.LMPID)
	assert.Equal(t, 5, tr.TotalTokens)
	assert.Equal(t, "[]", tr.Input)
}

func TestCleanStringify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "plain", `"plain"`},
		{"number", 3.5, "3.5"},
		{"nil", nil, "null"},
		{"lstr", map[string]any{"__lstr": true, "content": "hi <b>"}, `"hi <b>"`},
		{"nested lstr", []any{map[string]any{"msg": map[string]any{"__lstr": true, "content": "x"}}}, `[{"msg":"x"}]`},
		{"sorted keys", map[string]any{"b": 1, "a": 2}, `{"a":2,"b":1}`},
		{"lstr without content", map[string]any{"__lstr": true}, `{"__lstr":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanStringify(tt.in))
		})
	}
}

func TestCleanStringifyFallback(t *testing.T) {
	ch := make(chan int)
	assert.NotEmpty(t, CleanStringify(ch))
}

func TestTrimQuotes(t *testing.T) {
	assert.Equal(t, "abc", TrimQuotes(`"abc"`))
	assert.Equal(t, `a"b`, TrimQuotes(`"a"b"`))
	assert.Equal(t, "[1]", TrimQuotes("[1]"))
}

func TestSortValue(t *testing.T) {
	tr := &Trace{ID: "a", Name: "n", Version: 2, Latency: 0.5, TotalTokens: 9}
	assert.Equal(t, "n", tr.SortValue("name"))
	assert.Equal(t, 2, tr.SortValue("version"))
	assert.Equal(t, 0.5, tr.SortValue("latency"))
	assert.Equal(t, 9, tr.SortValue("total_tokens"))
	assert.Nil(t, tr.SortValue("nope"))
}

func TestWalkFindCount(t *testing.T) {
	traces := FromInvocations([]Invocation{
		{ID: "r1", Uses: []Invocation{{ID: "c1", Uses: []Invocation{{ID: "g1"}}}, {ID: "c2"}}},
		{ID: "r2"},
	})

	assert.Equal(t, 5, Count(traces))
	require.NotNil(t, Find(traces, "g1"))
	assert.Nil(t, Find(traces, "missing"))

	var order []string
	var depths []int
	Walk(traces, func(tr *Trace, depth int) bool {
		order = append(order, tr.ID)
		depths = append(depths, depth)
		return true
	})
	assert.Equal(t, []string{"r1", "c1", "g1", "c2", "r2"}, order)
	assert.Equal(t, []int{0, 1, 2, 1, 0}, depths)
}

func TestInvocationJSON(t *testing.T) {
	raw := `{"id":"i1","lmp":{"name":"f","lmp_id":"L","version_number":0},
		"args":[{"__lstr":true,"content":"q"}],"results":["a"],
		"created_at":"2024-01-02T03:04:05Z","latency_ms":250,
		"prompt_tokens":1,"completion_tokens":null,"uses":[{"id":"i2"}]}`

	var inv Invocation
	require.NoError(t, json.Unmarshal([]byte(raw), &inv))

	tr := FromInvocation(inv)
	assert.Equal(t, `"q"`, tr.Input)
	assert.Equal(t, 1, tr.Version)
	assert.Equal(t, 1, tr.TotalTokens)
	assert.Equal(t, []string{"i1", "i2"}, IDs([]Invocation{inv}))
}
