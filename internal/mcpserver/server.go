package mcpserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/trace-studio/internal/backend"
	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/storage"
)

// Controls is the shared page and polling state, normally *poller.Poller.
type Controls interface {
	Page() int
	SetPage(n int) bool
	PageSize() int
	Paused() bool
	Pause()
	Resume()
}

// lookup is implemented by sources that can fetch a single invocation.
type lookup interface {
	Invocation(ctx context.Context, id string) (*invocation.Invocation, error)
}

// Server exposes the dashboard feed to agents as MCP tools and resources.
type Server struct {
	mcpServer *mcp.Server
	source    backend.Source
	feed      *storage.Feed
	controls  Controls
	verbose   bool
}

// ServerOptions configures the MCP server.
type ServerOptions struct {
	Verbose bool // Enable verbose logging
}

// NewServer creates an MCP server over the live feed. source answers queries
// for pages other than the one being polled.
func NewServer(source backend.Source, feed *storage.Feed, controls Controls, opts ...ServerOptions) (*Server, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if feed == nil {
		return nil, fmt.Errorf("feed cannot be nil")
	}
	if controls == nil {
		return nil, fmt.Errorf("controls cannot be nil")
	}

	var verbose bool
	if len(opts) > 0 {
		verbose = opts[0].Verbose
	}

	s := &Server{
		source:   source,
		feed:     feed,
		controls: controls,
		verbose:  verbose,
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "trace-studio",
		Title:   "LMP Invocation Traces",
		Version: "0.1.0",
	}, &mcp.ServerOptions{
		Instructions: `Language model program invocation traces, polled live from the invocation store.

Workflow: get_status -> get_traces -> get_trace(id) for the call tree and latency waterfall.

Tools: get_traces (page of root invocations), get_trace (one trace at any depth), get_status (feed health), set_polling (pause/resume), set_page (move the live page).
Resources: traces://status, traces://lmps, traces://traces/{id}.`,
	})

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// Run serves MCP on stdio until ctx is cancelled or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for use with alternative transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
