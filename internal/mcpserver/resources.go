package mcpserver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/studio"
	"github.com/tobert/trace-studio/internal/viz"
)

const tracePrefix = "traces://traces/"

// registerResources registers all MCP resources and resource templates.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "traces://status",
		Name:        "status",
		Description: "Live feed overview: page, polling state, fetch counters and the last error.",
		MIMEType:    "text/plain",
	}, s.handleStatusResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "traces://lmps",
		Name:        "lmps",
		Description: "Calls and tokens per LMP on the live page, sub-calls included.",
		MIMEType:    "text/plain",
	}, s.handleLMPsResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: tracePrefix + "{id}",
		Name:        "trace-detail",
		Description: "Latency waterfall for one invocation and its sub-calls.",
		MIMEType:    "text/plain",
	}, s.handleTraceResource)
}

// ─── Resource handlers ──────────────────────────────────────────────────

func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	snap := s.feed.Snapshot()

	var b strings.Builder
	b.WriteString(viz.StatsOverview(s.feedStats(snap)))
	fmt.Fprintf(&b, "  Uptime:   %.0fs\n", s.feed.UptimeSeconds())

	return textResult(req.Params.URI, b.String()), nil
}

func (s *Server) handleLMPsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	snap := s.feed.Snapshot()
	if !snap.Loaded {
		return textResult(req.Params.URI, "Loading...\n"), nil
	}
	stats := studio.LMPStats(invocation.FromInvocations(snap.Invocations))
	return textResult(req.Params.URI, viz.LMPSummary(stats, waterfallWidth)), nil
}

func (s *Server) handleTraceResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id, err := extractURIParam(req.Params.URI, tracePrefix)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	tr, _, err := s.findTrace(ctx, id)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	roots := []*invocation.Trace{tr}
	return textResult(req.Params.URI, viz.Waterfall(studio.Calls(roots), waterfallWidth)), nil
}

// ─── Helpers ────────────────────────────────────────────────────────────

// extractURIParam extracts the parameter value from a URI by stripping the prefix
// and URL-decoding the remainder.
func extractURIParam(uri, prefix string) (string, error) {
	if !strings.HasPrefix(uri, prefix) {
		return "", fmt.Errorf("invalid URI: %s", uri)
	}
	param := strings.TrimPrefix(uri, prefix)
	if param == "" {
		return "", fmt.Errorf("empty parameter in URI: %s", uri)
	}
	decoded, err := url.PathUnescape(param)
	if err != nil {
		return "", fmt.Errorf("invalid encoding in URI: %w", err)
	}
	return decoded, nil
}

// textResult wraps a string in a ReadResourceResult.
func textResult(uri, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}
}
