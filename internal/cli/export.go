package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/tobert/trace-studio/internal/backend"
	"github.com/tobert/trace-studio/internal/export"
	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/urfave/cli/v3"
)

// ExportCommand returns the CLI command definition for the 'export' subcommand.
func ExportCommand() *cli.Command {
	flags := append(sourceFlags(),
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write to this file instead of stdout",
		},
		&cli.IntFlag{
			Name:  "pages",
			Usage: "Number of pages to export, starting at the newest (0 for all)",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  "service-name",
			Usage: "service.name resource attribute on exported spans",
			Value: "trace-studio",
		},
	)

	return &cli.Command{
		Name:  "export",
		Usage: "Export invocations as OTLP JSON lines",
		Description: `Converts invocations and their sub-calls to OpenTelemetry spans and
writes one TracesData JSON object per line, the format of the Collector's
file exporter. Import the output with any OTLP file receiver.`,
		Flags:  flags,
		Action: runExport,
	}
}

func runExport(ctx context.Context, cmd *cli.Command) error {
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

	roots, err := fetchPages(ctx, source, backendQuery(cfg), cmd.Int("pages"))
	if err != nil {
		return err
	}

	var w io.Writer = cmd.Root().Writer
	if path := cmd.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := export.WriteJSONL(w, roots, export.Options{ServiceName: cmd.String("service-name")})
	if err != nil {
		return fmt.Errorf("failed to export traces: %w", err)
	}
	if cfg.Verbose || cmd.String("output") != "" {
		log.Printf("✅ Exported %d traces\n", n)
	}
	return nil
}

// fetchPages reads up to pages pages starting at page zero. It stops early
// on a short page. pages <= 0 reads until the source runs out.
func fetchPages(ctx context.Context, source backend.Source, q backend.Query, pages int) ([]invocation.Invocation, error) {
	var all []invocation.Invocation
	for page := 0; pages <= 0 || page < pages; page++ {
		q.Page = page
		invs, err := source.Invocations(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
		}
		all = append(all, invs...)
		if len(invs) < q.PageSize {
			break
		}
	}
	return all, nil
}
