package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/tobert/trace-studio/internal/mcpserver"
	"github.com/urfave/cli/v3"
)

// MCPCommand returns the CLI command definition for the 'mcp' subcommand.
// This command runs the poller and serves the MCP tools on stdio.
func MCPCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the traces over MCP on stdio",
		Description: `Starts an MCP server on stdio so an agent can page through traces,
read one trace with its sub-calls and pause or resume polling.`,
		Flags:  append(sourceFlags(), pollFlags()...),
		Action: runMCP,
	}
}

func runMCP(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		logConfig(cfg)
	}

	ctx, stop := signal.NotifyContext(cliCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	p, err := newPoller(source, cfg)
	if err != nil {
		return err
	}

	mcpSrv, err := mcpserver.NewServer(source, p.Feed(), p, mcpserver.ServerOptions{Verbose: cfg.Verbose})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := p.Run(ctx); err != nil {
			log.Printf("⚠️  poller stopped: %v\n", err)
		}
	}()

	// stdout belongs to the protocol, logs stay on stderr
	log.Println("🎯 MCP server ready on stdio")
	if err := mcpSrv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
