package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/studio"
	"github.com/tobert/trace-studio/internal/viz"
	"github.com/urfave/cli/v3"
)

// ListCommand returns the CLI command definition for the 'list' subcommand.
// It fetches one page and prints it as a table.
func ListCommand() *cli.Command {
	flags := append(sourceFlags(),
		&cli.IntFlag{
			Name:  "page",
			Usage: "Zero-based page to fetch",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Output format: ascii or markdown",
			Value: "ascii",
		},
		&cli.StringSliceFlag{
			Name:  "omit-columns",
			Usage: "Column keys to leave out (e.g. input,output)",
		},
		&cli.BoolFlag{
			Name:  "expand-all",
			Usage: "Include every sub-call as an indented row",
		},
		&cli.BoolFlag{
			Name:  "summary",
			Usage: "Append calls and tokens per LMP",
		},
	)

	return &cli.Command{
		Name:   "list",
		Usage:  "Print one page of traces",
		Flags:  flags,
		Action: runList,
	}
}

func runList(ctx context.Context, cmd *cli.Command) error {
	mode, err := parseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		logConfig(cfg)
	}

	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	p, err := newPoller(source, cfg)
	if err != nil {
		return err
	}
	p.SetPage(cmd.Int("page"))

	snap := p.FetchNow(ctx)
	if snap.Err != "" {
		return fmt.Errorf("failed to fetch invocations: %s", snap.Err)
	}

	return printPage(cmd.Root().Writer, snap.Invocations, listOptions{
		Page:        p.Page(),
		PageSize:    cfg.PageSize,
		Mode:        mode,
		OmitColumns: cfg.OmitColumns,
		ExpandAll:   cfg.ExpandRows(),
		Summary:     cmd.Bool("summary"),
	})
}

type listOptions struct {
	Page        int
	PageSize    int
	Mode        viz.Mode
	OmitColumns []string
	ExpandAll   bool
	Summary     bool
}

func printPage(w io.Writer, invs []invocation.Invocation, opts listOptions) error {
	tbl := studio.NewInvocationsTable(studio.TableOptions{
		OmitColumns: opts.OmitColumns,
		ExpandAll:   opts.ExpandAll,
	})
	tbl.Load(invs)

	if len(invs) == 0 {
		_, err := fmt.Fprintln(w, "No invocations found.")
		return err
	}

	cols, rows := studio.TextRows(tbl)
	if _, err := fmt.Fprintln(w, viz.PrettyTable(cols, rows, opts.Mode)); err != nil {
		return err
	}

	pg := tbl.Pagination(opts.Page, opts.PageSize)
	footer := pg.Label()
	if pg.CanNext() {
		footer += fmt.Sprintf(" (more with --page %d)", opts.Page+1)
	}
	if _, err := fmt.Fprintln(w, footer); err != nil {
		return err
	}

	if opts.Summary {
		stats := studio.LMPStats(tbl.Traces())
		if _, err := fmt.Fprint(w, "\n"+viz.LMPSummary(stats, 80)); err != nil {
			return err
		}
	}
	return nil
}

func parseFormat(s string) (viz.Mode, error) {
	switch s {
	case "", "ascii":
		return viz.ASCII, nil
	case "markdown", "md":
		return viz.Markdown, nil
	default:
		return 0, fmt.Errorf("unknown format %q (want ascii or markdown)", s)
	}
}
