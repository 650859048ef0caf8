package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tobert/trace-studio/internal/tui"
	"github.com/urfave/cli/v3"
)

// TUICommand returns the CLI command definition for the 'tui' subcommand.
func TUICommand() *cli.Command {
	flags := append(sourceFlags(), pollFlags()...)
	flags = append(flags, &cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs here while the terminal view is open (verbose only)",
		Value: "trace-studio.log",
	})

	return &cli.Command{
		Name:  "tui",
		Usage: "Browse traces in the terminal",
		Description: `Shows the same hierarchical traces table as the dashboard in the
terminal. Press ? for key bindings.`,
		Flags:  flags,
		Action: runTUI,
	}
}

func runTUI(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// the alternate screen owns the terminal, so logs go to a file or nowhere
	if cfg.Verbose {
		f, err := tea.LogToFile(cmd.String("log-file"), "trace-studio")
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logConfig(cfg)
	} else {
		log.SetOutput(io.Discard)
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

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pollDone := make(chan error, 1)
	go func() {
		pollDone <- p.Run(ctx)
	}()

	err = tui.Run(ctx, p.Feed(), p, tui.Options{
		OmitColumns: cfg.OmitColumns,
		ExpandAll:   cfg.ExpandRows(),
	})
	cancel()
	if pollErr := <-pollDone; pollErr != nil && err == nil {
		err = pollErr
	}
	if err != nil {
		return fmt.Errorf("terminal view error: %w", err)
	}
	return nil
}
