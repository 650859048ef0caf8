// Package studio instantiates the hierarchical table for invocation traces
// and models the traces page that drives it.
package studio

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/table"
)

// Column keys used by the invocations table.
const (
	KeyCreatedAt   = "created_at"
	KeyVersion     = "version"
	KeyLatency     = "latency"
	KeyTotalTokens = "total_tokens"
	KeyName        = "name"
	KeyInput       = "input"
	KeyOutput      = "output"
)

// InitialSort is newest first.
var InitialSort = table.SortConfig{Key: KeyCreatedAt, Direction: table.Desc}

// DefaultColumns returns the invocations column set. now anchors the
// relative start time; nil means time.Now.
func DefaultColumns(now func() time.Time) []table.Column[*invocation.Trace] {
	if now == nil {
		now = time.Now
	}
	return []table.Column[*invocation.Trace]{
		{
			Header:   "Start Time",
			Key:      KeyCreatedAt,
			Render:   func(t *invocation.Trace) string { return TimeAgo(t.CreatedAt, now()) },
			MaxWidth: 80,
			Sortable: true,
			Class:    "muted",
		},
		{
			Header:   "Version",
			Key:      KeyVersion,
			Render:   func(t *invocation.Trace) string { return fmt.Sprintf("VERSION %d.00", t.Version) },
			MinWidth: 85,
			MaxWidth: 90,
			Sortable: true,
			Class:    "version",
		},
		{
			Header:   "Latency",
			Key:      KeyLatency,
			Render:   func(t *invocation.Trace) string { return fmt.Sprintf("%.2fs", t.Latency) },
			MaxWidth: 50,
			Sortable: true,
			Class:    "latency",
		},
		{
			Header:   "tokens",
			Key:      KeyTotalTokens,
			Render:   func(t *invocation.Trace) string { return strconv.Itoa(t.TotalTokens) },
			MaxWidth: 80,
			Sortable: true,
			Class:    "code",
		},
		{
			Header:   "LMP",
			Key:      KeyName,
			Render:   func(t *invocation.Trace) string { return t.Name },
			MaxWidth: 150,
			Sortable: true,
			Class:    "lmp",
		},
		{
			Header:   "Input",
			Key:      KeyInput,
			Render:   func(t *invocation.Trace) string { return invocation.TrimQuotes(t.Input) },
			MaxWidth: 300,
			Class:    "code",
		},
		{
			Header:   "Output",
			Key:      KeyOutput,
			Render:   func(t *invocation.Trace) string { return invocation.TrimQuotes(t.Output) },
			MaxWidth: 300,
			Class:    "code",
		},
	}
}

// DefaultSchema wraps DefaultColumns.
func DefaultSchema(now func() time.Time) table.Schema[*invocation.Trace] {
	return table.Schema[*invocation.Trace]{Columns: DefaultColumns(now)}
}

// TimeAgo renders t relative to now in the coarsest whole unit.
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	if d < 5*time.Second {
		return "just now"
	}

	const (
		day   = 24 * time.Hour
		month = 30 * day
		year  = 365 * day
	)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < day:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < month:
		return fmt.Sprintf("%dd ago", int(d/day))
	case d < year:
		return fmt.Sprintf("%dmo ago", int(d/month))
	}
	return fmt.Sprintf("%dy ago", int(d/year))
}
