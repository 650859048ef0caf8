package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tobert/trace-studio/internal/backend"
	"github.com/urfave/cli/v3"
)

// DoctorCommand returns the CLI command definition for the 'doctor' subcommand.
// This command runs diagnostic checks to verify trace-studio can reach its data.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Diagnose common setup and configuration issues",
		Description: `Run checks to verify trace-studio is properly configured.

This command checks:
  - Binary location
  - Effective configuration (defaults, config files, flags)
  - The invocation source: backend reachability or the data directory
  - MCP configuration file entry for trace-studio (optional)

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Flags: sourceFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, cfgErr := loadConfig(cmd)
			return runDoctorWithUtils(ctx, version, doctorEnv{
				utils:  &realFsUtils{},
				cfg:    cfg,
				cfgErr: cfgErr,
				ping:   pingBackend,
			})
		},
	}
}

type checkResult struct {
	Name       string
	Status     string // "pass", "warn", "fail"
	Message    string
	Suggestion string
	IsCritical bool
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	ReadDir(name string) ([]os.DirEntry, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)                { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error)      { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)       { return os.ReadFile(name) }
func (r *realFsUtils) ReadDir(name string) ([]os.DirEntry, error) { return os.ReadDir(name) }
func (r *realFsUtils) UserHomeDir() (string, error)               { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                     { return os.Getwd() }

// doctorEnv is everything the checks read. cfg is nil when cfgErr is set.
type doctorEnv struct {
	utils  fsUtils
	cfg    *Config
	cfgErr error
	ping   func(ctx context.Context, cfg *Config) error
}

func pingBackend(ctx context.Context, cfg *Config) error {
	timeout, err := cfg.Timeout()
	if err != nil {
		return err
	}
	client, err := backend.NewClient(backend.ClientConfig{BaseURL: cfg.BackendURL, Timeout: timeout})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx)
}

func runDoctorWithUtils(ctx context.Context, version string, env doctorEnv) error {
	fmt.Printf("🔍 trace-studio doctor v%s\n\n", version)

	checks := []func(ctx context.Context, env doctorEnv) checkResult{
		checkBinaryLocation,
		checkConfig,
		checkSource,
		checkMCPConfig,
	}

	results := make([]checkResult, 0, len(checks))
	for _, check := range checks {
		result := check(ctx, env)
		results = append(results, result)
		printCheckResult(result)
	}

	fmt.Println()
	summary := summarizeResults(results)
	printSummary(summary)

	if summary.FailCount > 0 {
		return fmt.Errorf("found %d issues that need attention", summary.FailCount)
	}

	return nil
}

func printCheckResult(result checkResult) {
	var icon string
	switch result.Status {
	case "pass":
		icon = "✓"
	case "warn":
		icon = "⚠"
	case "fail":
		icon = "✗"
	}

	fmt.Printf("%s %s\n", icon, result.Message)

	if result.Suggestion != "" {
		fmt.Printf("  %s\n", result.Suggestion)
	}
}

type resultSummary struct {
	PassCount int
	WarnCount int
	FailCount int
}

func summarizeResults(results []checkResult) resultSummary {
	var summary resultSummary
	for _, r := range results {
		switch r.Status {
		case "pass":
			summary.PassCount++
		case "warn":
			summary.WarnCount++
		case "fail":
			summary.FailCount++
		}
	}
	return summary
}

func printSummary(summary resultSummary) {
	if summary.FailCount > 0 {
		fmt.Printf("❌ Found %d issue(s) that need attention\n", summary.FailCount)
		if summary.WarnCount > 0 {
			fmt.Printf("⚠️  %d warning(s)\n", summary.WarnCount)
		}
	} else if summary.WarnCount > 0 {
		fmt.Printf("✅ All critical checks passed!\n")
		fmt.Printf("⚠️  %d optional warning(s)\n", summary.WarnCount)
		fmt.Printf("💡 Run 'trace-studio serve' to open the dashboard\n")
	} else {
		fmt.Printf("✅ All checks passed!\n")
		fmt.Printf("💡 Run 'trace-studio serve' to open the dashboard\n")
	}
}

// Check 1: Binary location
func checkBinaryLocation(_ context.Context, env doctorEnv) checkResult {
	executable, err := env.utils.Executable()
	if err != nil {
		return checkResult{
			Name:       "binary_location",
			Status:     "fail",
			Message:    "Could not determine binary location",
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	absPath, err := filepath.Abs(executable)
	if err != nil {
		absPath = executable
	}

	return checkResult{
		Name:    "binary_location",
		Status:  "pass",
		Message: fmt.Sprintf("Binary location: %s", absPath),
	}
}

// Check 2: Effective configuration
func checkConfig(_ context.Context, env doctorEnv) checkResult {
	if env.cfgErr != nil {
		return checkResult{
			Name:       "config",
			Status:     "fail",
			Message:    "Configuration could not be loaded",
			Suggestion: fmt.Sprintf("Error: %v\n  Config files: %s and .trace-studio.json", env.cfgErr, GlobalConfigPath()),
			IsCritical: true,
		}
	}

	return checkResult{
		Name:    "config",
		Status:  "pass",
		Message: fmt.Sprintf("Configuration valid (page size %d, polling every %s)", env.cfg.PageSize, env.cfg.PollInterval),
	}
}

// Check 3: Invocation source
func checkSource(ctx context.Context, env doctorEnv) checkResult {
	if env.cfg == nil {
		return checkResult{
			Name:    "source",
			Status:  "warn",
			Message: "Skipped source check: no valid configuration",
		}
	}

	if dir := env.cfg.DataDir; dir != "" {
		return checkDataDir(env.utils, dir)
	}

	if err := env.ping(ctx, env.cfg); err != nil {
		return checkResult{
			Name:    "source",
			Status:  "fail",
			Message: fmt.Sprintf("Backend not reachable at %s", env.cfg.BackendURL),
			Suggestion: fmt.Sprintf(`Error: %v
  Start the LMP store server, or point trace-studio at it with --backend-url.
  To browse exported JSONL files instead, use --data-dir.`, err),
			IsCritical: true,
		}
	}

	return checkResult{
		Name:    "source",
		Status:  "pass",
		Message: fmt.Sprintf("Backend reachable at %s", env.cfg.BackendURL),
	}
}

func checkDataDir(utils fsUtils, dir string) checkResult {
	info, err := utils.Stat(dir)
	if err != nil || info == nil {
		return checkResult{
			Name:       "source",
			Status:     "fail",
			Message:    fmt.Sprintf("Data dir not found: %s", dir),
			Suggestion: fmt.Sprintf("Run: mkdir -p %s", dir),
			IsCritical: true,
		}
	}
	if !info.IsDir() {
		return checkResult{
			Name:       "source",
			Status:     "fail",
			Message:    fmt.Sprintf("Data dir is not a directory: %s", dir),
			IsCritical: true,
		}
	}

	entries, err := utils.ReadDir(dir)
	if err != nil {
		return checkResult{
			Name:       "source",
			Status:     "fail",
			Message:    fmt.Sprintf("Could not read data dir: %s", dir),
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	files := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			files++
		}
	}
	if files == 0 {
		return checkResult{
			Name:       "source",
			Status:     "warn",
			Message:    fmt.Sprintf("Data dir has no .jsonl files yet: %s", dir),
			Suggestion: "New files are picked up while trace-studio runs",
		}
	}

	return checkResult{
		Name:    "source",
		Status:  "pass",
		Message: fmt.Sprintf("Data dir %s has %d JSONL file(s)", dir, files),
	}
}

// Check 4: MCP configuration. The MCP server is optional, so problems here
// are warnings.
func checkMCPConfig(_ context.Context, env doctorEnv) checkResult {
	utils := env.utils
	configPath := getMCPConfigPath(utils)
	allPaths := getMCPConfigPaths(utils)

	if _, err := utils.Stat(configPath); err != nil {
		executable, _ := utils.Executable()
		absPath, _ := filepath.Abs(executable)

		locationsList := ""
		for _, p := range allPaths {
			locationsList += fmt.Sprintf("  - %s\n", p)
		}

		suggestion := fmt.Sprintf(`Checked:
%s
  To let an agent browse traces, add to your MCP config:
  {
    "mcpServers": {
      "trace-studio": {
        "command": "%s",
        "args": ["mcp"]
      }
    }
  }`, locationsList, absPath)

		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    "Optional: MCP config not found",
			Suggestion: suggestion,
		}
	}

	data, err := utils.ReadFile(configPath)
	if err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    "Optional: could not read MCP config",
			Suggestion: fmt.Sprintf("Error reading %s: %v", configPath, err),
		}
	}

	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    "Optional: MCP config is not valid JSON",
			Suggestion: fmt.Sprintf("Error parsing %s: %v", configPath, err),
		}
	}

	agentName := "MCP agent"
	if strings.Contains(configPath, "claude-code") || strings.Contains(configPath, ".claude") {
		agentName = "Claude Code"
	} else if strings.Contains(configPath, ".gemini") {
		agentName = "Gemini CLI"
	}

	mcpServers, _ := config["mcpServers"].(map[string]any)
	entry, ok := mcpServers["trace-studio"].(map[string]any)
	if !ok {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    fmt.Sprintf("%s config found: %s", agentName, configPath),
			Suggestion: "Config has no 'trace-studio' server entry; add one to browse traces from the agent",
		}
	}

	configuredCommand, _ := entry["command"].(string)
	executable, _ := utils.Executable()
	absExecutable, _ := filepath.Abs(executable)

	if configuredCommand != "" && configuredCommand != absExecutable {
		return checkResult{
			Name:    "mcp_config",
			Status:  "warn",
			Message: fmt.Sprintf("%s config found: %s", agentName, configPath),
			Suggestion: fmt.Sprintf("Config path (%s) differs from current binary (%s)\n  Update config to use current binary if needed",
				configuredCommand, absExecutable),
		}
	}

	return checkResult{
		Name:    "mcp_config",
		Status:  "pass",
		Message: fmt.Sprintf("%s config found: %s", agentName, configPath),
	}
}

// getMCPConfigPaths returns possible MCP config file paths for various agents
func getMCPConfigPaths(utils fsUtils) []string {
	homeDir, err := utils.UserHomeDir()
	if err != nil {
		return nil
	}

	cwd, _ := utils.Getwd()

	var paths []string

	// project-level configs first
	if cwd != "" {
		paths = append(paths,
			filepath.Join(cwd, ".gemini", "settings.json"),
			filepath.Join(cwd, ".claude", "settings.json"),
		)
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		paths = append(paths, filepath.Join(appData, "Claude Code", "mcp_settings.json"))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", "claude-code", "mcp_settings.json"))
	}

	return paths
}

// getMCPConfigPath returns the first existing MCP config file path
func getMCPConfigPath(utils fsUtils) string {
	paths := getMCPConfigPaths(utils)
	for _, path := range paths {
		if _, err := utils.Stat(path); err == nil {
			return path
		}
	}
	if len(paths) > 0 {
		return paths[0]
	}
	return ""
}
