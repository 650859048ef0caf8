package viz

import "time"

// Column describes one rendered column. Width 0 sizes the column to its
// content, capped at maxAutoWidth.
type Column struct {
	Header     string
	Width      int
	AlignRight bool
}

// Row is one drawn line of a hierarchical table. Decoupled from the table
// package so viz stays a pure rendering package.
type Row struct {
	Level       int
	HasChildren bool
	Expanded    bool
	Selected    bool
	Focused     bool
	Cells       []string
}

// Call is the input type for the latency waterfall. An empty ParentID marks
// a root call.
type Call struct {
	ID       string
	ParentID string
	Name     string
	Start    time.Time
	Latency  time.Duration
}

// FeedStats describes the dashboard feed for the status overview.
type FeedStats struct {
	Page       int // zero-based
	PageSize   int
	Rows       int
	Generation uint64
	Polls      uint64
	Failures   uint64
	Paused     bool
	LastError  string
	FetchedAt  time.Time
}

// LMPStats describes one language model program for the summary chart.
type LMPStats struct {
	Name   string
	Calls  int
	Tokens int
}
