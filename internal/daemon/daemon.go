// Package daemon keeps an export current: it re-runs the export on an
// interval, reloads configuration when its files change and serves status
// over HTTP.
package daemon

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/eventstore"
	"git.home.luguber.info/inful/wikiexport/internal/export"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/server"
)

// Daemon states.
const (
	StateStarting = "starting"
	StateIdle     = "idle"
	StateRunning  = "running"
	StateStopping = "stopping"
)

// Runner performs one export run.
type Runner interface {
	Run(ctx context.Context, force bool) (*export.Result, error)
	Close() error
}

// Factory builds a runner for a configuration. It is called once at start
// and again after every configuration reload.
type Factory func(cfg *config.Config) (Runner, error)

// Daemon owns the scheduler, the config watcher and the status server.
type Daemon struct {
	paths   []string
	factory Factory
	load    func(paths ...string) (*config.Config, error)
	history *eventstore.RunHistoryProjection
	metrics http.Handler
	logger  *slog.Logger

	runMu     sync.Mutex
	mu        sync.RWMutex
	cfg       *config.Config
	runner    Runner
	state     string
	startTime time.Time

	trigger   chan bool
	scheduler *Scheduler
	watcher   *ConfigWatcher
	server    *server.Server
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithHistory serves run history from the projection.
func WithHistory(p *eventstore.RunHistoryProjection) Option {
	return func(d *Daemon) { d.history = p }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(d *Daemon) { d.metrics = h } }

// WithLogger sets the daemon logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a daemon for cfg, loaded from paths.
func New(cfg *config.Config, paths []string, factory Factory, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		paths:   paths,
		factory: factory,
		load:    config.Load,
		logger:  slog.Default(),
		cfg:     cfg,
		state:   StateStarting,
		trigger: make(chan bool, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	runner, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	d.runner = runner
	return d, nil
}

// StartTime returns when Run was called.
func (d *Daemon) StartTime() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startTime
}

// State returns the current daemon state.
func (d *Daemon) State() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Interval returns the configured export interval.
func (d *Daemon) Interval() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg.Daemon.Interval
}

// Corpora returns the configured space keys.
func (d *Daemon) Corpora() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	spaces := make([]string, len(d.cfg.Corpora))
	for i, c := range d.cfg.Corpora {
		spaces[i] = c.Space
	}
	return spaces
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Trigger requests a run. A pending request absorbs later ones, so it
// reports false when one is already queued.
func (d *Daemon) Trigger(force bool) bool {
	select {
	case d.trigger <- force:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is done, exporting whenever the schedule or an HTTP
// request asks for it.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()
	d.setState(StateIdle)
	d.mu.Lock()
	d.startTime = time.Now()
	d.mu.Unlock()

	sched, err := NewScheduler(func() { d.Trigger(false) })
	if err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "scheduler setup failed").Build()
	}
	if err := sched.Schedule(cfg.Daemon.Interval); err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "scheduler setup failed").Build()
	}
	d.scheduler = sched
	sched.Start()

	if cfg.Daemon.WatchConfig && len(d.paths) > 0 {
		watcher, err := NewConfigWatcher(d.paths, d.Reload)
		if err != nil {
			d.logger.Warn("Config watcher unavailable", logfields.Error(err))
		} else if err := watcher.Start(ctx); err != nil {
			d.logger.Warn("Config watcher unavailable", logfields.Error(err))
			watcher.Stop()
		} else {
			d.watcher = watcher
		}
	}

	serverErr := make(chan error, 1)
	if cfg.Daemon.HTTPAddr != "" {
		opts := []server.Option{server.WithLogger(d.logger)}
		if d.history != nil {
			opts = append(opts, server.WithHistory(d.history))
		}
		if d.metrics != nil {
			opts = append(opts, server.WithMetrics(d.metrics))
		}
		d.server = server.New(cfg.Daemon.HTTPAddr, d, opts...)
		go func() { serverErr <- d.server.Start() }()
	}

	d.logger.Info("Daemon started",
		slog.Duration("interval", cfg.Daemon.Interval),
		slog.String("http_addr", cfg.Daemon.HTTPAddr),
		logfields.Count(len(cfg.Corpora)))

	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case err := <-serverErr:
			if err != nil {
				_ = d.shutdown()
				return err
			}
		case force := <-d.trigger:
			d.runOnce(ctx, force)
		}
	}
}

func (d *Daemon) runOnce(ctx context.Context, force bool) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()

	d.setState(StateRunning)
	defer d.setState(StateIdle)

	res, err := runner.Run(ctx, force)
	if err != nil {
		d.logger.Error("Export run reported initialization failures", logfields.Error(err))
	}
	if res != nil {
		d.logger.Debug("Export run complete", logfields.RunID(res.RunID), slog.String("status", string(res.Status())))
	}
}

// Reload re-reads the configuration files and swaps in a new runner. The
// previous configuration stays active when loading fails.
func (d *Daemon) Reload(context.Context) error {
	d.logger.Info("Reloading configuration", logfields.Count(len(d.paths)))
	cfg, err := d.load(d.paths...)
	if err != nil {
		return err
	}
	runner, err := d.factory(cfg)
	if err != nil {
		return err
	}

	d.mu.Lock()
	old := d.cfg
	prev := d.runner
	d.cfg = cfg
	d.runner = runner
	d.mu.Unlock()

	if cfg.Daemon.HTTPAddr != old.Daemon.HTTPAddr {
		d.logger.Warn("HTTP address change requires a restart",
			slog.String("current", old.Daemon.HTTPAddr), slog.String("configured", cfg.Daemon.HTTPAddr))
	}
	if d.scheduler != nil {
		if err := d.scheduler.Schedule(cfg.Daemon.Interval); err != nil {
			d.logger.Error("Failed to apply new interval", logfields.Error(err))
		}
	}
	// A run in progress finishes on the runner it started with.
	d.runMu.Lock()
	if err := prev.Close(); err != nil {
		d.logger.Warn("Failed to close previous runner", logfields.Error(err))
	}
	d.runMu.Unlock()
	d.logger.Info("Configuration reloaded", logfields.Count(len(cfg.Corpora)))
	return nil
}

func (d *Daemon) shutdown() error {
	d.setState(StateStopping)
	d.logger.Info("Daemon stopping")

	var errs *multierror.Error
	if d.scheduler != nil {
		if err := d.scheduler.Stop(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	d.mu.RLock()
	runner := d.runner
	d.mu.RUnlock()
	if err := runner.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return errors.WrapError(err, errors.CategoryDaemon, "daemon shutdown incomplete").Build()
	}
	return nil
}

func (d *Daemon) setState(s string) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}
