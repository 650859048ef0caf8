package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://127.0.0.1:5555", cfg.BackendURL)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 4380, cfg.WebUIPort)
	assert.True(t, cfg.ExpandRows())
	require.NoError(t, cfg.Validate())

	every, err := cfg.PollEvery()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, every)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "studio.json")
	writeFile(t, jsonPath, `{"backend_url": "http://ell:9000", "page_size": 20, "omit_columns": ["input"]}`)
	cfg, err := LoadConfigFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "http://ell:9000", cfg.BackendURL)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, []string{"input"}, cfg.OmitColumns)

	yamlPath := filepath.Join(dir, "studio.yaml")
	writeFile(t, yamlPath, "data_dir: /tmp/traces\npoll_interval: 500ms\nexpand_all: true\n")
	cfg, err = LoadConfigFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/traces", cfg.DataDir)
	assert.Equal(t, "500ms", cfg.PollInterval)
	require.NotNil(t, cfg.ExpandAll)
	assert.True(t, *cfg.ExpandAll)

	badPath := filepath.Join(dir, "bad.json")
	writeFile(t, badPath, "{not json")
	_, err = LoadConfigFromFile(badPath)
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfigFromFile(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestMergeConfigs(t *testing.T) {
	base := DefaultConfig()
	overlay := &Config{
		DataDir:     "/data",
		PageSize:    10,
		WebUIPort:   8080,
		OmitColumns: []string{"output"},
		Verbose:     true,
	}

	merged := MergeConfigs(base, overlay)
	assert.Equal(t, "/data", merged.DataDir)
	assert.Equal(t, 10, merged.PageSize)
	assert.Equal(t, 8080, merged.WebUIPort)
	assert.Equal(t, []string{"output"}, merged.OmitColumns)
	assert.True(t, merged.Verbose)

	// unset overlay fields keep the base
	assert.Equal(t, base.BackendURL, merged.BackendURL)
	assert.Equal(t, base.PollInterval, merged.PollInterval)

	// base is not modified
	assert.Equal(t, 50, base.PageSize)

	assert.Same(t, base, MergeConfigs(base, nil))
	assert.Equal(t, 10, MergeConfigs(nil, overlay).PageSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"no source", func(c *Config) { c.BackendURL = "" }, "backend_url or data_dir"},
		{"data dir only", func(c *Config) {
			c.BackendURL = ""
			c.DataDir = "/data"
		}, ""},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, "page_size"},
		{"bad port", func(c *Config) { c.WebUIPort = 70000 }, "webui_port"},
		{"bad interval", func(c *Config) { c.PollInterval = "soon" }, "poll_interval"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = "-1s" }, "request_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestFindProjectConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	_, err := findProjectConfigFrom(nested)
	assert.ErrorIs(t, err, os.ErrNotExist)

	want := filepath.Join(root, "a", ".trace-studio.json")
	writeFile(t, want, `{}`)
	got, err := findProjectConfigFrom(nested)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadEffectiveConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeFile(t, filepath.Join(home, ".config", "trace-studio", "config.json"),
		`{"backend_url": "http://global:5555", "page_size": 25}`)

	explicit := filepath.Join(t.TempDir(), "explicit.yml")
	writeFile(t, explicit, "page_size: 5\n")

	cfg, err := LoadEffectiveConfig(explicit)
	require.NoError(t, err)
	assert.Equal(t, "http://global:5555", cfg.BackendURL)
	assert.Equal(t, 5, cfg.PageSize)
	assert.Equal(t, "2s", cfg.PollInterval)

	_, err = LoadEffectiveConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorContains(t, err, "failed to load config file")
}

// runLoadConfig parses args the way the serve command does and returns the
// effective config.
func runLoadConfig(t *testing.T, args ...string) *Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var cfg *Config
	flags := append(sourceFlags(), pollFlags()...)
	flags = append(flags,
		&cli.StringFlag{Name: "config"},
		&cli.BoolFlag{Name: "verbose"},
		&cli.BoolFlag{Name: "mcp-http"},
	)
	cmd := &cli.Command{
		Name:  "trace-studio",
		Flags: flags,
		Action: func(_ context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = loadConfig(cmd)
			return err
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"trace-studio"}, args...)))
	require.NotNil(t, cfg)
	return cfg
}

func TestLoadConfigFalseFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.yaml")
	writeFile(t, path, "expand_all: true\nmcp_http: true\nverbose: true\n")

	cfg := runLoadConfig(t, "--config", path)
	assert.True(t, cfg.ExpandRows())
	assert.True(t, cfg.MCPHTTP)
	assert.True(t, cfg.Verbose)

	cfg = runLoadConfig(t, "--config", path, "--expand-all=false", "--mcp-http=false", "--verbose=false")
	assert.False(t, cfg.ExpandRows())
	assert.False(t, cfg.MCPHTTP)
	assert.False(t, cfg.Verbose)
}

func TestLoadConfigFileCollapsesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.json")
	writeFile(t, path, `{"expand_all": false}`)

	assert.True(t, runLoadConfig(t).ExpandRows())
	assert.False(t, runLoadConfig(t, "--config", path).ExpandRows())
	assert.True(t, runLoadConfig(t, "--config", path, "--expand-all").ExpandRows())
}
