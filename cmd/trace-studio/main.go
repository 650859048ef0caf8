package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tobert/trace-studio/internal/cli"
	cliframework "github.com/urfave/cli/v3"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "trace-studio",
		Usage:   "Live dashboard for LMP invocation traces",
		Version: version,
		Flags: []cliframework.Flag{
			&cliframework.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (JSON, or YAML for .yaml/.yml)",
			},
			&cliframework.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose logging",
			},
		},
		Commands: []*cliframework.Command{
			cli.ServeCommand(),
			cli.TUICommand(),
			cli.ListCommand(),
			cli.ExportCommand(),
			cli.MCPCommand(),
			cli.DoctorCommand(version),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
