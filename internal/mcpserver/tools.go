package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/trace-studio/internal/backend"
	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/storage"
	"github.com/tobert/trace-studio/internal/studio"
	"github.com/tobert/trace-studio/internal/viz"
)

// waterfallWidth is the line width of waterfall text in tool results.
const waterfallWidth = 100

// Tool 1: get_traces

type GetTracesInput struct {
	Page     *int   `json:"page,omitempty" jsonschema:"Zero-based page index (default: the live page)"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"Root invocations per page (default: the dashboard page size)"`
	LMPName  string `json:"lmp_name,omitempty" jsonschema:"Only invocations of this LMP"`
}

type GetTracesOutput struct {
	Page        int        `json:"page" jsonschema:"Zero-based page index"`
	PageSize    int        `json:"page_size" jsonschema:"Page size used"`
	HasNextPage bool       `json:"has_next_page" jsonschema:"True when the page came back full"`
	FromFeed    bool       `json:"from_feed" jsonschema:"True when served from the live polled page"`
	Rows        []TraceRow `json:"rows" jsonschema:"Invocations depth-first; roots have depth 0"`
	RootCount   int        `json:"root_count" jsonschema:"Number of root invocations on the page"`
}

func (s *Server) handleGetTraces(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetTracesInput,
) (*mcp.CallToolResult, GetTracesOutput, error) {
	page := s.controls.Page()
	if input.Page != nil {
		page = *input.Page
	}
	if page < 0 {
		return nil, GetTracesOutput{}, fmt.Errorf("page must not be negative, got %d", page)
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = s.controls.PageSize()
	}

	snap := s.feed.Snapshot()
	live := snap.Loaded && input.LMPName == "" &&
		page == snap.Page && pageSize == snap.PageSize

	var invs []invocation.Invocation
	if live {
		invs = snap.Invocations
	} else {
		var err error
		invs, err = s.source.Invocations(ctx, backend.Query{
			LMPName:  input.LMPName,
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return nil, GetTracesOutput{}, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
	}

	traces := invocation.FromInvocations(invs)
	return &mcp.CallToolResult{}, GetTracesOutput{
		Page:        page,
		PageSize:    pageSize,
		HasNextPage: len(invs) == pageSize,
		FromFeed:    live,
		Rows:        flatten(traces),
		RootCount:   len(traces),
	}, nil
}

// Tool 2: get_trace

type GetTraceInput struct {
	ID string `json:"id" jsonschema:"Invocation id; nested sub-calls are found too"`
}

type GetTraceOutput struct {
	Rows      []TraceRow `json:"rows" jsonschema:"The invocation and its sub-calls depth-first"`
	Waterfall string     `json:"waterfall" jsonschema:"Text latency waterfall of the call tree"`
	FromFeed  bool       `json:"from_feed" jsonschema:"True when found on the live polled page"`
}

func (s *Server) handleGetTrace(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetTraceInput,
) (*mcp.CallToolResult, GetTraceOutput, error) {
	if input.ID == "" {
		return nil, GetTraceOutput{}, fmt.Errorf("id is required")
	}

	tr, fromFeed, err := s.findTrace(ctx, input.ID)
	if err != nil {
		return nil, GetTraceOutput{}, err
	}

	roots := []*invocation.Trace{tr}
	return &mcp.CallToolResult{}, GetTraceOutput{
		Rows:      flatten(roots),
		Waterfall: viz.Waterfall(studio.Calls(roots), waterfallWidth),
		FromFeed:  fromFeed,
	}, nil
}

// findTrace searches the live page at every depth, then asks the source.
func (s *Server) findTrace(ctx context.Context, id string) (*invocation.Trace, bool, error) {
	snap := s.feed.Snapshot()
	if tr := invocation.Find(invocation.FromInvocations(snap.Invocations), id); tr != nil {
		return tr, true, nil
	}

	l, ok := s.source.(lookup)
	if !ok {
		return nil, false, fmt.Errorf("invocation %s not found on the live page", id)
	}
	inv, err := l.Invocation(ctx, id)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, false, fmt.Errorf("invocation %s not found", id)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch invocation %s: %w", id, err)
	}
	return invocation.FromInvocation(*inv), false, nil
}

// Tool 3: get_status

type GetStatusInput struct {
	History int `json:"history,omitempty" jsonschema:"Number of recent polls to include (default 10)"`
}

type GetStatusOutput struct {
	Generation    uint64        `json:"generation" jsonschema:"Feed change counter"`
	Page          int           `json:"page" jsonschema:"Zero-based live page"`
	PageSize      int           `json:"page_size" jsonschema:"Live page size"`
	Loaded        bool          `json:"loaded" jsonschema:"False until the first successful fetch of the page"`
	Rows          int           `json:"rows" jsonschema:"Root invocations on the live page"`
	Paused        bool          `json:"paused" jsonschema:"Whether polling is paused"`
	Polls         uint64        `json:"polls" jsonschema:"Fetch attempts so far"`
	Failures      uint64        `json:"failures" jsonschema:"Failed fetches so far"`
	LastError     string        `json:"last_error,omitempty" jsonschema:"Error of the latest fetch, if it failed"`
	FetchedAt     string        `json:"fetched_at,omitempty" jsonschema:"Time of the latest fetch (RFC 3339)"`
	UptimeSeconds float64       `json:"uptime_seconds" jsonschema:"Seconds since the feed started"`
	History       []PollSummary `json:"history" jsonschema:"Recent polls, oldest first"`
	Overview      string        `json:"overview" jsonschema:"Human-readable feed overview"`
}

// PollSummary is one fetch attempt.
type PollSummary struct {
	At         string  `json:"at" jsonschema:"Time of the fetch (RFC 3339)"`
	Page       int     `json:"page" jsonschema:"Zero-based page fetched"`
	Rows       int     `json:"rows" jsonschema:"Root invocations returned"`
	DurationMs float64 `json:"duration_ms" jsonschema:"Fetch duration in milliseconds"`
	Error      string  `json:"error,omitempty" jsonschema:"Fetch error, if any"`
}

func (s *Server) handleGetStatus(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetStatusInput,
) (*mcp.CallToolResult, GetStatusOutput, error) {
	n := input.History
	if n <= 0 {
		n = 10
	}

	snap := s.feed.Snapshot()
	out := GetStatusOutput{
		Generation:    snap.Generation,
		Page:          s.controls.Page(),
		PageSize:      s.controls.PageSize(),
		Loaded:        snap.Loaded,
		Rows:          len(snap.Invocations),
		Paused:        s.controls.Paused(),
		Polls:         s.feed.Polls(),
		Failures:      s.feed.Failures(),
		LastError:     snap.Err,
		UptimeSeconds: s.feed.UptimeSeconds(),
		History:       pollSummaries(s.feed.History(n)),
		Overview:      viz.StatsOverview(s.feedStats(snap)),
	}
	if !snap.FetchedAt.IsZero() {
		out.FetchedAt = snap.FetchedAt.Format(time.RFC3339)
	}
	return &mcp.CallToolResult{}, out, nil
}

func pollSummaries(records []storage.PollRecord) []PollSummary {
	out := make([]PollSummary, 0, len(records))
	for _, r := range records {
		out = append(out, PollSummary{
			At:         r.At.Format(time.RFC3339),
			Page:       r.Page,
			Rows:       r.Rows,
			DurationMs: float64(r.Duration) / float64(time.Millisecond),
			Error:      r.Err,
		})
	}
	return out
}

func (s *Server) feedStats(snap storage.Snapshot) viz.FeedStats {
	return viz.FeedStats{
		Page:       s.controls.Page(),
		PageSize:   s.controls.PageSize(),
		Rows:       len(snap.Invocations),
		Generation: snap.Generation,
		Polls:      s.feed.Polls(),
		Failures:   s.feed.Failures(),
		Paused:     s.controls.Paused(),
		LastError:  snap.Err,
		FetchedAt:  snap.FetchedAt,
	}
}

// Tool 4: set_polling

type SetPollingInput struct {
	Paused bool `json:"paused" jsonschema:"True pauses live polling; false resumes it"`
}

type SetPollingOutput struct {
	Paused bool `json:"paused" jsonschema:"Polling state after the call"`
}

func (s *Server) handleSetPolling(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetPollingInput,
) (*mcp.CallToolResult, SetPollingOutput, error) {
	if input.Paused {
		s.controls.Pause()
	} else {
		s.controls.Resume()
	}
	if s.verbose {
		log.Printf("⏯️  mcp: polling paused=%v\n", input.Paused)
	}
	return &mcp.CallToolResult{}, SetPollingOutput{Paused: s.controls.Paused()}, nil
}

// Tool 5: set_page

type SetPageInput struct {
	Page int `json:"page" jsonschema:"Zero-based page index for the live dashboard"`
}

type SetPageOutput struct {
	Page    int  `json:"page" jsonschema:"Live page after the call"`
	Changed bool `json:"changed" jsonschema:"False when the dashboard was already on that page"`
}

func (s *Server) handleSetPage(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SetPageInput,
) (*mcp.CallToolResult, SetPageOutput, error) {
	if input.Page < 0 {
		return nil, SetPageOutput{}, fmt.Errorf("page must not be negative, got %d", input.Page)
	}
	changed := s.controls.SetPage(input.Page)
	return &mcp.CallToolResult{}, SetPageOutput{Page: s.controls.Page(), Changed: changed}, nil
}

func (s *Server) registerTools() error {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_traces",
		Description: "List a page of root LMP invocations with their sub-calls flattened depth-first. Without arguments this returns the page the dashboard is polling, newest first. Pass page/page_size/lmp_name to query the invocation store directly without moving the dashboard.",
	}, s.handleGetTraces)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_trace",
		Description: "Get one invocation by id with its full call tree and a text latency waterfall. Searches the live page at every depth first, then the invocation store.",
	}, s.handleGetTrace)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_status",
		Description: "Feed health: live page, polling state, fetch counters, the last error and recent poll history. Answers 'is the dashboard receiving data?'.",
	}, s.handleGetStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_polling",
		Description: "Pause or resume live polling for every dashboard view. Pausing freezes the current page so rows stop moving while you inspect them.",
	}, s.handleSetPolling)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_page",
		Description: "Move the live dashboard to another page. Views show the loading state until the new page is fetched.",
	}, s.handleSetPage)

	return nil
}

// TraceRow is a flattened view of one invocation.
type TraceRow struct {
	ID             string  `json:"id" jsonschema:"Invocation id"`
	ParentID       string  `json:"parent_id,omitempty" jsonschema:"Id of the invocation that used this one"`
	Depth          int     `json:"depth" jsonschema:"Nesting depth; 0 for roots"`
	Name           string  `json:"name" jsonschema:"LMP name"`
	LMPID          string  `json:"lmp_id,omitempty" jsonschema:"LMP id"`
	Version        int     `json:"version" jsonschema:"LMP version number"`
	CreatedAt      string  `json:"created_at" jsonschema:"Start time (RFC 3339)"`
	LatencySeconds float64 `json:"latency_seconds" jsonschema:"Latency in seconds"`
	TotalTokens    int     `json:"total_tokens" jsonschema:"Prompt plus completion tokens"`
	Input          string  `json:"input" jsonschema:"Arguments as compact JSON"`
	Output         string  `json:"output" jsonschema:"Results as compact JSON"`
	Children       int     `json:"children" jsonschema:"Number of direct sub-calls"`
}

func flatten(roots []*invocation.Trace) []TraceRow {
	rows := make([]TraceRow, 0, invocation.Count(roots))
	var visit func(t *invocation.Trace, parent string, depth int)
	visit = func(t *invocation.Trace, parent string, depth int) {
		rows = append(rows, TraceRow{
			ID:             t.ID,
			ParentID:       parent,
			Depth:          depth,
			Name:           t.Name,
			LMPID:          t.LMP.LMPID,
			Version:        t.Version,
			CreatedAt:      t.CreatedAt.Format(time.RFC3339Nano),
			LatencySeconds: t.Latency,
			TotalTokens:    t.TotalTokens,
			Input:          t.Input,
			Output:         t.Output,
			Children:       len(t.Children),
		})
		for _, c := range t.Children {
			visit(c, t.ID, depth+1)
		}
	}
	for _, t := range roots {
		visit(t, "", 0)
	}
	return rows
}
