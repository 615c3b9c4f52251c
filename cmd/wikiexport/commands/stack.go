package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/eventstore"
	"git.home.luguber.info/inful/wikiexport/internal/export"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/gateway"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
	"git.home.luguber.info/inful/wikiexport/internal/notify"
	"git.home.luguber.info/inful/wikiexport/internal/vcs"
)

const (
	eventsDB       = "events.db"
	historyEntries = 50
)

// stack holds the collaborators that outlive a single runner: the event
// journal with its run history, and the metrics registry.
type stack struct {
	store      *eventstore.SQLiteStore
	projection *eventstore.RunHistoryProjection
	journal    *eventstore.Journal
	registry   *prom.Registry
	recorder   metrics.Recorder
	logger     *slog.Logger
}

func openStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, errors.FileSystemError("failed to create cache directory").
			WithCause(err).WithContext("path", cfg.CacheDir).Build()
	}
	store, err := eventstore.NewSQLiteStore(filepath.Join(cfg.CacheDir, eventsDB))
	if err != nil {
		return nil, err
	}
	st := &stack{store: store, logger: logger}
	st.projection = eventstore.NewRunHistoryProjection(store, historyEntries)
	if err := st.projection.Rebuild(ctx); err != nil {
		logger.Warn("Failed to rebuild run history", logfields.Error(err))
	}
	st.journal = eventstore.NewJournal(store, st.projection)
	if cfg.Metrics.Enabled {
		st.registry = prom.NewRegistry()
		st.recorder = metrics.NewPrometheusRecorder(st.registry)
	}
	return st, nil
}

// newRunner wires a runner for cfg.
func (s *stack) newRunner(cfg *config.Config) (*export.Runner, error) {
	gw, err := gateway.NewClient(cfg.Gateway, cfg.Site)
	if err != nil {
		return nil, err
	}
	pub, err := notify.New(cfg.Notify)
	if err != nil {
		return nil, err
	}
	opts := []export.Option{
		export.WithJournal(s.journal),
		export.WithPublisher(pub),
		export.WithLogger(s.logger),
	}
	if s.recorder != nil {
		opts = append(opts, export.WithRecorder(s.recorder))
	}
	if cfg.VCS.Enabled {
		repo, err := vcs.Open(cfg.Output, cfg.VCS)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		opts = append(opts, export.WithVCS(repo))
	}
	return export.NewRunner(cfg, gw, opts...), nil
}

func (s *stack) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("Failed to close event store", logfields.Error(err))
	}
}
