package cli

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tobert/trace-studio/internal/mcpserver"
	"github.com/tobert/trace-studio/internal/webui"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// This command starts the poller and the web dashboard.
func ServeCommand() *cli.Command {
	flags := append(sourceFlags(), pollFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "webui-host",
			Usage: "Dashboard bind address",
			Value: "127.0.0.1",
		},
		&cli.IntFlag{
			Name:  "webui-port",
			Usage: "Dashboard port",
			Value: 4380,
		},
		&cli.StringFlag{
			Name:    "session-secret",
			Usage:   "Secret that signs the per-browser view cookie (random when empty)",
			Sources: cli.EnvVars("TRACE_STUDIO_SESSION_SECRET"),
		},
		&cli.BoolFlag{
			Name:  "mcp-http",
			Usage: "Also serve the MCP tools over streamable HTTP at /mcp",
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Start the traces dashboard",
		Description: `Polls the LMP store (or a directory of JSONL files) and serves the
traces dashboard on http://127.0.0.1:4380. Open traces update live; pause
polling from the page header.`,
		Flags:  flags,
		Action: runServe,
	}
}

// runServe is the action handler for the serve command.
// It wires together the source, the poller, the dashboard and optionally MCP.
func runServe(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		logConfig(cfg)
	}

	ctx, stop := signal.NotifyContext(cliCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Open the invocation source
	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	// 2. Create the poller and its feed
	p, err := newPoller(source, cfg)
	if err != nil {
		return err
	}

	// 3. Create the dashboard
	ui, err := webui.New(webui.Config{
		Feed:          p.Feed(),
		Controls:      p,
		SessionSecret: cfg.SessionSecret,
		OmitColumns:   cfg.OmitColumns,
		ExpandAll:     cfg.ExpandRows(),
		Verbose:       cfg.Verbose,
	})
	if err != nil {
		return fmt.Errorf("failed to create web UI: %w", err)
	}

	// 4. Optionally expose the MCP tools next to the dashboard
	if cfg.MCPHTTP {
		mcpSrv, err := mcpserver.NewServer(source, p.Feed(), p, mcpserver.ServerOptions{Verbose: cfg.Verbose})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return mcpSrv.MCPServer()
		}, nil)
		ui.Mount("/mcp", handler)
		if cfg.Verbose {
			log.Println("✅ MCP tools mounted at /mcp")
		}
	}

	addr := net.JoinHostPort(cfg.WebUIHost, strconv.Itoa(cfg.WebUIPort))
	log.Printf("🌐 Dashboard on http://%s/\n", addr)
	if cfg.SessionSecret == "" && cfg.Verbose {
		log.Println("   No session secret set, browser views reset on restart")
	}

	// 5. Run poller and HTTP server until a signal or the first failure
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		return ui.ListenAndServe(gctx, addr)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	if cfg.Verbose {
		log.Println("📡 Shut down cleanly")
	}
	return nil
}

