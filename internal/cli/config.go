package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration for trace-studio.
// It can be populated from CLI flags, config files, or both.
type Config struct {
	// Comment field for user documentation (ignored by the application)
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// Where invocations come from: the LMP backend, or a directory of JSONL
	// files when DataDir is set.
	BackendURL string `json:"backend_url,omitempty" yaml:"backend_url,omitempty"`
	DataDir    string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`

	// Optional filters passed through to every query
	LMPName string `json:"lmp_name,omitempty" yaml:"lmp_name,omitempty"`
	LMPID   string `json:"lmp_id,omitempty" yaml:"lmp_id,omitempty"`

	// Polling
	PageSize       int    `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	PollInterval   string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`     // e.g. "2s"
	RequestTimeout string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"` // e.g. "10s"

	// Web UI configuration
	WebUIHost     string `json:"webui_host,omitempty" yaml:"webui_host,omitempty"`
	WebUIPort     int    `json:"webui_port,omitempty" yaml:"webui_port,omitempty"`
	SessionSecret string `json:"session_secret,omitempty" yaml:"session_secret,omitempty"` // random per process when empty
	MCPHTTP       bool   `json:"mcp_http,omitempty" yaml:"mcp_http,omitempty"`             // also serve MCP at /mcp

	// Table presentation
	OmitColumns []string `json:"omit_columns,omitempty" yaml:"omit_columns,omitempty"`
	ExpandAll   *bool    `json:"expand_all,omitempty" yaml:"expand_all,omitempty"` // nil means expanded

	// Logging configuration
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// DefaultConfig returns a Config with sensible default values:
// - the LMP backend on its default local port
// - 50 traces per page, polled every 2 seconds
// - dashboard on localhost:4380
func DefaultConfig() *Config {
	return &Config{
		BackendURL:     "http://127.0.0.1:5555",
		PageSize:       50,
		PollInterval:   "2s",
		RequestTimeout: "10s",
		WebUIHost:      "127.0.0.1",
		WebUIPort:      4380,
		ExpandAll:      boolPtr(true),
		Verbose:        false,
	}
}

// ExpandRows reports whether rows with sub-calls start expanded.
func (c *Config) ExpandRows() bool {
	return c.ExpandAll == nil || *c.ExpandAll
}

func boolPtr(b bool) *bool { return &b }

// Validate checks the fields that cannot be fixed up silently.
func (c *Config) Validate() error {
	if c.DataDir == "" && c.BackendURL == "" {
		return fmt.Errorf("either backend_url or data_dir must be set")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.WebUIPort < 0 || c.WebUIPort > 65535 {
		return fmt.Errorf("webui_port out of range: %d", c.WebUIPort)
	}
	if _, err := c.PollEvery(); err != nil {
		return err
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}

// PollEvery parses PollInterval.
func (c *Config) PollEvery() (time.Duration, error) {
	return parseDuration("poll_interval", c.PollInterval, 2*time.Second)
}

// Timeout parses RequestTimeout.
func (c *Config) Timeout() (time.Duration, error) {
	return parseDuration("request_timeout", c.RequestTimeout, 10*time.Second)
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}

// LoadConfigFromFile loads configuration from the file at the given path.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &config, nil
}

// FindProjectConfig searches for a .trace-studio.json config file.
// It starts in the current directory and walks up looking for the file,
// stopping when it finds a .git directory (project root) or reaches root.
func FindProjectConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return findProjectConfigFrom(dir)
}

func findProjectConfigFrom(dir string) (string, error) {
	for {
		configPath := filepath.Join(dir, ".trace-studio.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// stop at the repo root even if no config was found
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", os.ErrNotExist
}

// GlobalConfigPath returns the path to the global config file.
// This is ~/.config/trace-studio/config.json
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "trace-studio", "config.json")
}

// MergeConfigs merges two configs with the overlay taking precedence.
// Fields in overlay override corresponding fields in base.
// Returns a new Config with the merged values.
func MergeConfigs(base, overlay *Config) *Config {
	if base == nil {
		base = &Config{}
	}
	if overlay == nil {
		return base
	}

	merged := *base

	if overlay.BackendURL != "" {
		merged.BackendURL = overlay.BackendURL
	}
	if overlay.DataDir != "" {
		merged.DataDir = overlay.DataDir
	}
	if overlay.LMPName != "" {
		merged.LMPName = overlay.LMPName
	}
	if overlay.LMPID != "" {
		merged.LMPID = overlay.LMPID
	}

	if overlay.PageSize > 0 {
		merged.PageSize = overlay.PageSize
	}
	if overlay.PollInterval != "" {
		merged.PollInterval = overlay.PollInterval
	}
	if overlay.RequestTimeout != "" {
		merged.RequestTimeout = overlay.RequestTimeout
	}

	if overlay.WebUIHost != "" {
		merged.WebUIHost = overlay.WebUIHost
	}
	if overlay.WebUIPort > 0 {
		merged.WebUIPort = overlay.WebUIPort
	}
	if overlay.SessionSecret != "" {
		merged.SessionSecret = overlay.SessionSecret
	}
	if overlay.MCPHTTP {
		merged.MCPHTTP = overlay.MCPHTTP
	}

	if len(overlay.OmitColumns) > 0 {
		merged.OmitColumns = overlay.OmitColumns
	}
	if overlay.ExpandAll != nil {
		merged.ExpandAll = boolPtr(*overlay.ExpandAll)
	}
	if overlay.Verbose {
		merged.Verbose = overlay.Verbose
	}

	return &merged
}

// LoadEffectiveConfig loads the effective configuration by merging:
// 1. Built-in defaults
// 2. Global config file (if exists)
// 3. Project config file (if exists and configPath is empty)
// 4. Explicit config file (if specified via configPath)
// Later sources override earlier ones. Flags are layered on by the caller.
func LoadEffectiveConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	// the global config is optional and a broken one is ignored
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if globalCfg, err := LoadConfigFromFile(globalPath); err == nil {
			config = MergeConfigs(config, globalCfg)
		}
	}

	if configPath == "" {
		if projectPath, err := FindProjectConfig(); err == nil {
			projectCfg, err := LoadConfigFromFile(projectPath)
			if err != nil {
				return nil, fmt.Errorf("failed to load project config: %w", err)
			}
			config = MergeConfigs(config, projectCfg)
		}
	} else {
		explicitCfg, err := LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		config = MergeConfigs(config, explicitCfg)
	}

	return config, nil
}
