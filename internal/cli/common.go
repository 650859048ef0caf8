package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/tobert/trace-studio/internal/backend"
	"github.com/tobert/trace-studio/internal/filesource"
	"github.com/tobert/trace-studio/internal/poller"
	"github.com/tobert/trace-studio/internal/storage"
	"github.com/urfave/cli/v3"
)

// sourceFlags are shared by every command that reads invocations.
func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "backend-url",
			Aliases: []string{"b"},
			Usage:   "LMP store base URL",
			Value:   "http://127.0.0.1:5555",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Read JSONL invocation files from this directory instead of the backend",
		},
		&cli.StringFlag{
			Name:  "lmp-name",
			Usage: "Only show invocations of this LMP",
		},
		&cli.StringFlag{
			Name:  "lmp-id",
			Usage: "Only show invocations of this LMP version id",
		},
		&cli.IntFlag{
			Name:  "page-size",
			Usage: "Traces per page",
			Value: 50,
		},
		&cli.DurationFlag{
			Name:  "request-timeout",
			Usage: "Timeout for a single backend request",
		},
	}
}

// pollFlags are shared by the long-running views.
func pollFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:  "poll-interval",
			Usage: "How often to refetch the current page",
		},
		&cli.StringSliceFlag{
			Name:  "omit-columns",
			Usage: "Column keys hidden while no row is expanded (e.g. input,output)",
		},
		&cli.BoolFlag{
			Name:  "expand-all",
			Usage: "Expand every row with sub-calls on load (--expand-all=false to collapse)",
		},
	}
}

// loadConfig resolves the effective configuration: files first, then any
// flag the user set explicitly. Flag defaults never override a file.
func loadConfig(cmd *cli.Command) (*Config, error) {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	flagCfg := &Config{}
	if cmd.IsSet("backend-url") {
		flagCfg.BackendURL = cmd.String("backend-url")
	}
	if cmd.IsSet("data-dir") {
		flagCfg.DataDir = cmd.String("data-dir")
	}
	if cmd.IsSet("lmp-name") {
		flagCfg.LMPName = cmd.String("lmp-name")
	}
	if cmd.IsSet("lmp-id") {
		flagCfg.LMPID = cmd.String("lmp-id")
	}
	if cmd.IsSet("page-size") {
		flagCfg.PageSize = cmd.Int("page-size")
	}
	if cmd.IsSet("poll-interval") {
		flagCfg.PollInterval = cmd.Duration("poll-interval").String()
	}
	if cmd.IsSet("request-timeout") {
		flagCfg.RequestTimeout = cmd.Duration("request-timeout").String()
	}
	if cmd.IsSet("webui-host") {
		flagCfg.WebUIHost = cmd.String("webui-host")
	}
	if cmd.IsSet("webui-port") {
		flagCfg.WebUIPort = cmd.Int("webui-port")
	}
	if cmd.IsSet("session-secret") {
		flagCfg.SessionSecret = cmd.String("session-secret")
	}
	if cmd.IsSet("omit-columns") {
		flagCfg.OmitColumns = cmd.StringSlice("omit-columns")
	}
	if cmd.IsSet("expand-all") {
		flagCfg.ExpandAll = boolPtr(cmd.Bool("expand-all"))
	}
	cfg = MergeConfigs(cfg, flagCfg)

	// MergeConfigs only carries true bools, so explicit false flags land here.
	if cmd.IsSet("mcp-http") {
		cfg.MCPHTTP = cmd.Bool("mcp-http")
	}
	if cmd.IsSet("verbose") {
		cfg.Verbose = cmd.Bool("verbose")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func logConfig(cfg *Config) {
	log.Println("🔧 Configuration:")
	if cfg.DataDir != "" {
		log.Printf("  Data dir: %s\n", cfg.DataDir)
	} else {
		log.Printf("  Backend: %s\n", cfg.BackendURL)
	}
	if cfg.LMPName != "" || cfg.LMPID != "" {
		log.Printf("  LMP filter: name=%q id=%q\n", cfg.LMPName, cfg.LMPID)
	}
	log.Printf("  Page size: %d\n", cfg.PageSize)
	log.Printf("  Poll interval: %s\n", cfg.PollInterval)
	log.Println()
}

// openSource returns the invocation source the config points at and a
// function that releases it.
func openSource(ctx context.Context, cfg *Config) (backend.Source, func(), error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, nil, err
	}

	if cfg.DataDir != "" {
		fs, err := filesource.New(filesource.Config{
			Directory: cfg.DataDir,
			Verbose:   cfg.Verbose,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file source: %w", err)
		}
		if err := fs.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start file source: %w", err)
		}
		if cfg.Verbose {
			log.Printf("📂 Loaded %d invocations from %s\n", fs.Len(), fs.Directory())
		}
		return fs, fs.Stop, nil
	}

	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.BackendURL,
		Timeout: timeout,
		Verbose: cfg.Verbose,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, func() {}, nil
}

// newPoller builds the shared feed and the poller that fills it.
func newPoller(source backend.Source, cfg *Config) (*poller.Poller, error) {
	interval, err := cfg.PollEvery()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}

	p, err := poller.New(source, storage.NewFeed(), poller.Config{
		Interval:     interval,
		FetchTimeout: timeout,
		PageSize:     cfg.PageSize,
		LMPName:      cfg.LMPName,
		LMPID:        cfg.LMPID,
		Verbose:      cfg.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poller: %w", err)
	}
	return p, nil
}

// backendQuery is the first-page query for the configured filters.
func backendQuery(cfg *Config) backend.Query {
	return backend.Query{LMPName: cfg.LMPName, LMPID: cfg.LMPID, PageSize: cfg.PageSize}
}
