package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/tobert/trace-studio/internal/backend"
	"github.com/tobert/trace-studio/internal/export"
	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/viz"
	"github.com/tobert/trace-studio/internal/webui"
)

// fakeStore serves the LMP store's paged invocations endpoint, newest first.
func fakeStore(t *testing.T, invs []invocation.Invocation) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/invocations", func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := min(skip+limit, len(invs))
		page := []invocation.Invocation{}
		if skip < len(invs) {
			page = invs[skip:end]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func storeFixture(now time.Time) []invocation.Invocation {
	tokens := 12
	return []invocation.Invocation{
		{
			ID:        "run-3",
			LMP:       &invocation.LMP{Name: "planner", LMPID: "p1", VersionNumber: 1},
			Args:      []any{"plan a trip"},
			Results:   []any{"done"},
			CreatedAt: now.Add(-time.Second),
			LatencyMs: 900,
			Uses: []invocation.Invocation{
				{ID: "run-3a", LMP: &invocation.LMP{Name: "search"}, CreatedAt: now.Add(-900 * time.Millisecond), LatencyMs: 400, PromptTokens: &tokens},
			},
		},
		{ID: "run-2", LMP: &invocation.LMP{Name: "classify"}, CreatedAt: now.Add(-time.Minute), LatencyMs: 30},
		{ID: "run-1", LMP: &invocation.LMP{Name: "classify"}, CreatedAt: now.Add(-time.Hour), LatencyMs: 25},
	}
}

// TestEndToEnd verifies the complete workflow:
// 1. Start a fake LMP store
// 2. Resolve config and open the backend source
// 3. Poll the first page into the feed
// 4. Read it back through the dashboard API
// 5. Print it the way 'list' does
// 6. Export every page as OTLP JSON lines
func TestEndToEnd(t *testing.T) {
	now := time.Now()

	// 1. Fake store with three root invocations
	store := fakeStore(t, storeFixture(now))

	// 2. Config and source, the same path every command takes
	cfg := DefaultConfig()
	cfg.BackendURL = store.URL
	cfg.PageSize = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open source: %v", err)
	}
	defer closeSource()
	if _, ok := source.(*backend.Client); !ok {
		t.Fatalf("expected a backend client, got %T", source)
	}

	// 3. One poll fills the feed
	p, err := newPoller(source, cfg)
	if err != nil {
		t.Fatalf("failed to create poller: %v", err)
	}
	snap := p.FetchNow(ctx)
	if snap.Err != "" || !snap.Loaded {
		t.Fatalf("poll failed: loaded=%v err=%q", snap.Loaded, snap.Err)
	}
	if len(snap.Invocations) != 2 {
		t.Fatalf("expected a full page of 2, got %d", len(snap.Invocations))
	}

	// 4. Dashboard API serves the polled page as trace rows
	ui, err := webui.New(webui.Config{Feed: p.Feed(), Controls: p})
	if err != nil {
		t.Fatalf("failed to create web UI: %v", err)
	}
	web := httptest.NewServer(ui.Handler())
	defer web.Close()

	resp, err := http.Get(web.URL + "/api/traces")
	if err != nil {
		t.Fatalf("GET /api/traces: %v", err)
	}
	defer resp.Body.Close()

	var traces struct {
		Loaded      bool                `json:"loaded"`
		HasNextPage bool                `json:"has_next_page"`
		Traces      []*invocation.Trace `json:"traces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&traces); err != nil {
		t.Fatalf("failed to decode traces: %v", err)
	}
	if !traces.Loaded || !traces.HasNextPage {
		t.Errorf("expected a loaded full page, got loaded=%v next=%v", traces.Loaded, traces.HasNextPage)
	}
	if len(traces.Traces) != 2 || traces.Traces[0].ID != "run-3" {
		t.Fatalf("unexpected traces: %+v", traces.Traces)
	}
	root := traces.Traces[0]
	if root.Name != "planner" || root.Version != 2 || len(root.Children) != 1 {
		t.Errorf("unexpected root row: %+v", root)
	}
	if root.Children[0].TotalTokens != 12 {
		t.Errorf("expected child tokens 12, got %d", root.Children[0].TotalTokens)
	}

	// 5. The list view of the same page
	var listed bytes.Buffer
	err = printPage(&listed, snap.Invocations, listOptions{
		Page:      p.Page(),
		PageSize:  cfg.PageSize,
		Mode:      viz.Markdown,
		ExpandAll: true,
		Summary:   true,
	})
	if err != nil {
		t.Fatalf("printPage: %v", err)
	}
	for _, want := range []string{"planner", "search", "classify", "Page 1 (more with --page 1)", "LMPs"} {
		if !strings.Contains(listed.String(), want) {
			t.Errorf("list output missing %q:\n%s", want, listed.String())
		}
	}

	// 6. Export walks every page and writes one line per root
	roots, err := fetchPages(ctx, source, backendQuery(cfg), 0)
	if err != nil {
		t.Fatalf("fetchPages: %v", err)
	}
	if len(roots) != 3 {
		t.Fatalf("expected all 3 roots, got %d", len(roots))
	}

	var out bytes.Buffer
	n, err := export.WriteJSONL(&out, roots, export.Options{ServiceName: "e2e-test-service"})
	if err != nil || n != 3 {
		t.Fatalf("WriteJSONL wrote %d lines: %v", n, err)
	}

	scanner := bufio.NewScanner(&out)
	if !scanner.Scan() {
		t.Fatal("expected an exported line")
	}
	var td tracepb.TracesData
	if err := protojson.Unmarshal(scanner.Bytes(), &td); err != nil {
		t.Fatalf("exported line is not TracesData: %v", err)
	}
	rs := td.GetResourceSpans()
	if len(rs) != 1 || rs[0].GetResource().GetAttributes()[0].GetValue().GetStringValue() != "e2e-test-service" {
		t.Fatalf("unexpected resource: %v", rs)
	}
	spans := rs[0].GetScopeSpans()[0].GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected root and child span, got %d", len(spans))
	}
	if !bytes.Equal(spans[1].GetParentSpanId(), spans[0].GetSpanId()) {
		t.Error("child span is not parented to its root")
	}
	if spans[0].GetName() != "planner" {
		t.Errorf("unexpected root span name %q", spans[0].GetName())
	}
}
