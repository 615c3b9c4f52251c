package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

// Global carries state shared by subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  []string         `short:"c" help:"Configuration file path; repeat to export several corpora files" default:"wikiexport.yaml"`
	EnvFile []string         `name:"env-file" help:"Load environment variables from these files (default .env, .env.local)"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Export ExportCmd `cmd:"" default:"withargs" help:"Export every configured corpus once"`
	Daemon DaemonCmd `cmd:"" help:"Keep the export current: re-export on an interval and serve status"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply(g *Global) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(c.Verbose)}))
	slog.SetDefault(logger)
	g.Logger = logger
	return nil
}

// parseLogLevel honors --verbose first, then WIKIEXPORT_LOG_LEVEL.
func parseLogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(os.Getenv("WIKIEXPORT_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadConfig loads env files, then the configuration files.
func (c *CLI) loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(c.EnvFile...); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to load env file").Build()
	}
	return config.Load(c.Config...)
}

// overrides are flag values that take precedence over configuration.
type overrides struct {
	Output      string
	MaxParallel int
}

// apply writes the overrides into cfg. The cache directory follows the
// output root unless it was configured explicitly.
func (o overrides) apply(cfg *config.Config) error {
	if o.MaxParallel < 0 {
		return errors.ValidationError("--max-parallel cannot be negative").
			WithContext("max_parallel", o.MaxParallel).Build()
	}
	if o.MaxParallel > 0 {
		cfg.MaxParallel = o.MaxParallel
	}
	if o.Output != "" && o.Output != cfg.Output {
		if cfg.CacheDir == filepath.Join(cfg.Output, config.DefaultCacheDir) {
			cfg.CacheDir = filepath.Join(o.Output, config.DefaultCacheDir)
		}
		cfg.Output = o.Output
	}
	return nil
}
