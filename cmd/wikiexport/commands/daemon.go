package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/daemon"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Output      string        `short:"o" help:"Output root (overrides config)" type:"path"`
	MaxParallel int           `name:"max-parallel" help:"Corpora exported concurrently (0 = all)"`
	Interval    time.Duration `help:"Re-export interval (overrides config)"`
	HTTPAddr    string        `name:"http-addr" help:"Status server address (overrides config)"`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if err := d.apply(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStack(ctx, cfg, g.Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	factory := func(c *config.Config) (daemon.Runner, error) {
		if err := d.apply(c); err != nil {
			return nil, err
		}
		return st.newRunner(c)
	}
	opts := []daemon.Option{daemon.WithHistory(st.projection), daemon.WithLogger(g.Logger)}
	if st.registry != nil {
		opts = append(opts, daemon.WithMetricsHandler(metrics.HTTPHandler(st.registry)))
	}
	dm, err := daemon.New(cfg, root.Config, factory, opts...)
	if err != nil {
		return err
	}

	slog.Info("Starting daemon mode", slog.Duration("interval", cfg.Daemon.Interval))
	if err := dm.Run(ctx); err != nil {
		return err
	}
	slog.Info("Daemon stopped")
	return nil
}

// apply writes the daemon flags into cfg; reloaded configurations get them too.
func (d *DaemonCmd) apply(cfg *config.Config) error {
	if err := (overrides{Output: d.Output, MaxParallel: d.MaxParallel}).apply(cfg); err != nil {
		return err
	}
	if d.Interval > 0 {
		cfg.Daemon.Interval = d.Interval
	}
	if d.HTTPAddr != "" {
		cfg.Daemon.HTTPAddr = d.HTTPAddr
	}
	return nil
}
