package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env     string
		verbose bool
		want    slog.Level
	}{
		{env: "", want: slog.LevelInfo},
		{env: "DEBUG", want: slog.LevelDebug},
		{env: "warning", want: slog.LevelWarn},
		{env: "error", want: slog.LevelError},
		{env: "error", verbose: true, want: slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv("WIKIEXPORT_LOG_LEVEL", tt.env)
			assert.Equal(t, tt.want, parseLogLevel(tt.verbose))
		})
	}
}

func TestKongParsesFlags(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Bind(&Global{}), kong.Vars{"version": "test"})
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{
		"-c", "cxf.yaml", "-c", "camel.yaml",
		"export", "--force", "--max-parallel", "2", "--page", "CXF:Home: Intro",
	})
	require.NoError(t, err)
	assert.Equal(t, "export", ctx.Command())
	assert.Equal(t, []string{"cxf.yaml", "camel.yaml"}, cli.Config)
	assert.True(t, cli.Export.Force)
	assert.Equal(t, 2, cli.Export.MaxParallel)
	assert.Equal(t, []string{"CXF:Home: Intro"}, cli.Export.Pages)

	cli = CLI{}
	parser, err = kong.New(&cli, kong.Bind(&Global{}), kong.Vars{"version": "test"})
	require.NoError(t, err)
	ctx, err = parser.Parse([]string{"daemon", "--interval", "15m", "--http-addr", ":9000"})
	require.NoError(t, err)
	assert.Equal(t, "daemon", ctx.Command())
	assert.Equal(t, []string{"wikiexport.yaml"}, cli.Config)
	assert.Equal(t, 15*time.Minute, cli.Daemon.Interval)
}

func TestOverridesApply(t *testing.T) {
	cfg := &config.Config{Output: "./site", CacheDir: filepath.Join("./site", config.DefaultCacheDir), MaxParallel: 4}
	require.NoError(t, overrides{Output: "/srv/mirror", MaxParallel: 1}.apply(cfg))
	assert.Equal(t, "/srv/mirror", cfg.Output)
	assert.Equal(t, filepath.Join("/srv/mirror", config.DefaultCacheDir), cfg.CacheDir)
	assert.Equal(t, 1, cfg.MaxParallel)

	cfg = &config.Config{Output: "./site", CacheDir: "/var/cache/wikiexport"}
	require.NoError(t, overrides{Output: "/srv/mirror"}.apply(cfg))
	assert.Equal(t, "/var/cache/wikiexport", cfg.CacheDir)

	err := overrides{MaxParallel: -1}.apply(cfg)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestDaemonFlagsApply(t *testing.T) {
	cfg := &config.Config{Daemon: config.DaemonConfig{Interval: time.Hour, HTTPAddr: ":8089"}}
	cmd := &DaemonCmd{Interval: 5 * time.Minute}
	require.NoError(t, cmd.apply(cfg))
	assert.Equal(t, 5*time.Minute, cfg.Daemon.Interval)
	assert.Equal(t, ":8089", cfg.Daemon.HTTPAddr)
}

func TestParsePages(t *testing.T) {
	pages, err := parsePages([]string{"CXF:Home", "CAMEL:Routes: Advanced"})
	require.NoError(t, err)
	assert.Equal(t, []forcedPage{{space: "CXF", title: "Home"}, {space: "CAMEL", title: "Routes: Advanced"}}, pages)

	for _, bad := range []string{"Home", ":Home", "CXF:"} {
		_, err := parsePages([]string{bad})
		assert.True(t, errors.HasCategory(err, errors.CategoryValidation), bad)
	}
}

func TestExportMissingConfigIsInitializationFailure(t *testing.T) {
	root := &CLI{Config: []string{filepath.Join(t.TempDir(), "missing.yaml")}}
	err := (&ExportCmd{}).Run(&Global{}, root)
	require.Error(t, err)
	assert.True(t, errors.IsInitialization(err))
	assert.Equal(t, 7, errors.NewCLIErrorAdapter(false, slog.Default()).ExitCodeFor(err))
}

func TestOpenStackWiresCollaborators(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Output:   filepath.Join(dir, "site"),
		CacheDir: filepath.Join(dir, "cache"),
		Gateway:  config.GatewayConfig{Endpoints: []string{"https://wiki.example.org/confluence"}, Timeout: time.Second},
		Site:     config.SiteConfig{Host: "https://wiki.example.org", ContextPath: "/confluence"},
		Corpora:  []config.Corpus{{Space: "CXF"}},
		VCS:      config.VCSConfig{Enabled: true, Author: "wikiexport", Email: "wikiexport@localhost"},
		Metrics:  config.MetricsConfig{Enabled: true},
	}

	st, err := openStack(t.Context(), cfg, nil)
	require.NoError(t, err)
	defer st.Close()
	assert.NotNil(t, st.registry)
	assert.NotNil(t, st.recorder)
	assert.FileExists(t, filepath.Join(cfg.CacheDir, eventsDB))

	runner, err := st.newRunner(cfg)
	require.NoError(t, err)
	defer func() { _ = runner.Close() }()
	info, err := os.Stat(filepath.Join(cfg.Output, ".git"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenStackWithoutMetrics(t *testing.T) {
	cfg := &config.Config{CacheDir: filepath.Join(t.TempDir(), "cache")}
	st, err := openStack(t.Context(), cfg, nil)
	require.NoError(t, err)
	defer st.Close()
	assert.Nil(t, st.registry)
	assert.Nil(t, st.recorder)
}
