package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/trace-studio/internal/storage"
)

func readReq(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func readText(t *testing.T, result *mcp.ReadResourceResult) string {
	t.Helper()
	if len(result.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(result.Contents))
	}
	return result.Contents[0].Text
}

func TestStatusResource(t *testing.T) {
	h := newHarness(t)
	result, err := h.srv.handleStatusResource(context.Background(), readReq("traces://status"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := readText(t, result)

	for _, want := range []string{"Feed Status", "Polling:  live", "Page:     1", "Uptime:"} {
		if !strings.Contains(text, want) {
			t.Errorf("status missing %q:\n%s", want, text)
		}
	}
}

func TestLMPsResource(t *testing.T) {
	h := newHarness(t)
	result, err := h.srv.handleLMPsResource(context.Background(), readReq("traces://lmps"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := readText(t, result)

	if !strings.Contains(text, "LMPs (3 programs, 3 calls)") {
		t.Errorf("unexpected summary:\n%s", text)
	}
	for _, name := range []string{"agent", "search", "classify"} {
		if !strings.Contains(text, name) {
			t.Errorf("summary missing %s", name)
		}
	}
}

func TestLMPsResourceLoading(t *testing.T) {
	srv, err := NewServer(&fakeSource{}, storage.NewFeed(), &fakeControls{})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	result, err := srv.handleLMPsResource(context.Background(), readReq("traces://lmps"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := readText(t, result); text != "Loading...\n" {
		t.Errorf("expected loading text, got %q", text)
	}
}

func TestTraceResource(t *testing.T) {
	h := newHarness(t)
	result, err := h.srv.handleTraceResource(context.Background(), readReq("traces://traces/a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := readText(t, result)
	if !strings.Contains(text, "2 calls") {
		t.Errorf("expected the waterfall of a and a1:\n%s", text)
	}
}

func TestTraceResourceNotFound(t *testing.T) {
	h := newHarness(t)
	if _, err := h.srv.handleTraceResource(context.Background(), readReq("traces://traces/nope")); err == nil {
		t.Fatal("expected error for unknown trace")
	}
	if _, err := h.srv.handleTraceResource(context.Background(), readReq("traces://traces/")); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestExtractURIParam(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"traces://traces/abc", "abc", false},
		{"traces://traces/a%2Fb", "a/b", false},
		{"traces://traces/", "", true},
		{"other://abc", "", true},
	}
	for _, tt := range tests {
		got, err := extractURIParam(tt.uri, tracePrefix)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.uri, got, tt.want)
		}
	}
}
