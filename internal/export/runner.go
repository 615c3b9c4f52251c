// Package export drives incremental export runs: every configured corpus is
// loaded, its changed set propagated and rendered, and the run's output
// changes are journaled, committed and announced.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/corpus"
	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/eventstore"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/gateway"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
	"git.home.luguber.info/inful/wikiexport/internal/notify"
	"git.home.luguber.info/inful/wikiexport/internal/render"
	"git.home.luguber.info/inful/wikiexport/internal/rewrite"
)

// Runner exports every configured corpus. Runs are serialized.
type Runner struct {
	cfg       *config.Config
	fs        afero.Fs
	gw        gateway.Gateway
	gateways  map[string]gateway.Gateway
	recorder  metrics.Recorder
	journal   *eventstore.Journal
	vcs       VCS
	publisher notify.Publisher
	logger    *slog.Logger

	runMu  sync.Mutex
	mu     sync.Mutex
	forced map[string][]string
	last   map[string]*Exporter
}

// Option configures a Runner.
type Option func(*Runner)

// WithFs sets the filesystem output, snapshots and templates live on.
func WithFs(fs afero.Fs) Option { return func(r *Runner) { r.fs = fs } }

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithJournal sets the event journal receiving run and change events.
func WithJournal(j *eventstore.Journal) Option { return func(r *Runner) { r.journal = j } }

// WithVCS stages output changes and commits them at the end of each run.
func WithVCS(v VCS) Option { return func(r *Runner) { r.vcs = v } }

// WithPublisher sets where run summaries are published.
func WithPublisher(p notify.Publisher) Option {
	return func(r *Runner) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCorpusGateway serves the corpus of space from gw instead of the
// runner's default gateway.
func WithCorpusGateway(space string, gw gateway.Gateway) Option {
	return func(r *Runner) { r.gateways[space] = gw }
}

// NewRunner returns a runner reading every corpus through gw.
func NewRunner(cfg *config.Config, gw gateway.Gateway, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		fs:        afero.NewOsFs(),
		gw:        gw,
		gateways:  map[string]gateway.Gateway{},
		recorder:  metrics.NoopRecorder{},
		publisher: notify.Noop{},
		logger:    slog.Default(),
		forced:    map[string][]string{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ForcePage re-renders the page with title in space on the next run.
func (r *Runner) ForcePage(space, title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forced[space] = append(r.forced[space], title)
}

// Exporter returns the exporter of space from the last run, or nil.
func (r *Runner) Exporter(space string) *Exporter {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[space]
}

// Run exports every corpus. force discards the snapshots and re-renders
// everything. The error aggregates initialization failures only; the
// result describes everything else.
func (r *Runner) Run(ctx context.Context, force bool) (*Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := r.logger.With(logfields.RunID(res.RunID))
	log.Info("Export started", logfields.Count(len(r.cfg.Corpora)), slog.Bool("force", force))

	spaces := make([]string, len(r.cfg.Corpora))
	for i, c := range r.cfg.Corpora {
		spaces[i] = c.Space
	}
	r.record(ctx, log, func() (eventstore.Event, error) { return eventstore.NewRunStarted(res.RunID, spaces, force) })

	root, err := filepath.Abs(r.cfg.Output)
	if err != nil {
		return nil, errors.ConfigError("invalid output directory").WithCause(err).
			WithContext("output", r.cfg.Output).Build()
	}

	exporters := make([]*Exporter, len(r.cfg.Corpora))
	logs := make([]*changeLog, len(r.cfg.Corpora))
	res.Corpora = make([]*CorpusResult, len(r.cfg.Corpora))
	var links []rewrite.Corpus
	r.mu.Lock()
	forced := r.forced
	r.forced = map[string][]string{}
	r.mu.Unlock()
	for i, c := range r.cfg.Corpora {
		logs[i] = &changeLog{runID: res.RunID, corpus: c.Space, root: root, journal: r.journal, vcs: r.vcs, logger: log}
		e, err := r.newExporter(c, root, force, logs[i])
		if err != nil {
			log.Error("Corpus failed to initialize", logfields.Corpus(c.Space), logfields.Error(err))
			res.Corpora[i] = &CorpusResult{Space: c.Space, Dir: c.Dir, Err: err}
			continue
		}
		e.forced = forced[c.Space]
		exporters[i] = e
		links = append(links, e.linkCorpus())
	}
	for _, e := range exporters {
		if e != nil {
			e.bind(root, links)
		}
	}

	// Every corpus loads before any renders, so cross-corpus links resolve
	// against complete stores.
	r.each(exporters, func(i int, e *Exporter) {
		res.Corpora[i] = e.Load(ctx, force)
	})
	r.each(exporters, func(i int, e *Exporter) {
		if res.Corpora[i].Err == nil {
			e.Render(ctx, res.Corpora[i])
		}
	})

	live := map[string]*Exporter{}
	for i, e := range exporters {
		cr := res.Corpora[i]
		cr.Added, cr.Modified, cr.Removed = logs[i].snapshot()
		if e == nil {
			continue
		}
		live[e.cfg.Space] = e
		if cr.Err != nil {
			r.record(ctx, log, func() (eventstore.Event, error) { return eventstore.NewCorpusFailed(res.RunID, cr.Space, cr.Err) })
			continue
		}
		if err := e.saveSnapshot(); err != nil {
			log.Error("Failed to save corpus snapshot", logfields.Corpus(cr.Space), logfields.Error(err))
		}
	}
	r.mu.Lock()
	r.last = live
	r.mu.Unlock()

	r.commit(log, res)
	res.Duration = time.Since(res.StartedAt)
	status := res.Status()
	r.recorder.ObserveRunDuration(res.Duration)
	r.recorder.IncRunOutcome(status)
	r.record(ctx, log, func() (eventstore.Event, error) {
		return eventstore.NewRunCompleted(res.RunID, string(status), res.Duration, res.Rendered(), res.Failed())
	})
	if err := r.publisher.Publish(ctx, res.Summary()); err != nil {
		log.Warn("Failed to publish run summary", logfields.Error(err))
	}

	added, modified, removed := res.Changes()
	log.Info("Export finished",
		slog.String("status", string(status)),
		slog.Int("rendered", res.Rendered()),
		slog.Int("added", added),
		slog.Int("modified", modified),
		slog.Int("removed", removed),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, res.InitErr()
}

// Close releases the publisher connection.
func (r *Runner) Close() error { return r.publisher.Close() }

// each runs fn for every initialized exporter, at most Parallelism at once,
// and waits for all of them.
func (r *Runner) each(exporters []*Exporter, fn func(int, *Exporter)) {
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Parallelism())
	for i, e := range exporters {
		if e == nil {
			continue
		}
		g.Go(func() error {
			fn(i, e)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) newExporter(c config.Corpus, root string, force bool, changes *changeLog) (*Exporter, error) {
	gw := r.gw
	if alt, ok := r.gateways[c.Space]; ok {
		gw = alt
	}
	if gw == nil {
		return nil, errors.ConfigError("no gateway for corpus").WithContext("space", c.Space).Build()
	}
	renderer, err := render.New(r.fs, c.Template, r.cfg.Notice)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, c.Dir)
	snapshot := filepath.Join(r.cfg.CacheDir, c.SnapshotFile)
	space := docmodel.Space{Key: c.Space}
	store := corpus.New(space)
	if !force {
		store = corpus.Load(r.fs, snapshot, space)
	}
	out := &output{fs: r.fs, dir: dir, log: changes, logger: r.logger}
	return &Exporter{
		cfg:         c,
		site:        r.cfg.Site,
		fs:          r.fs,
		dir:         dir,
		snapshot:    snapshot,
		maxInFlight: r.cfg.MaxInFlight,
		gw:          gw,
		store:       store,
		renderer:    renderer,
		out:         out,
		assets:      newAssetCache(gw, out),
		recorder:    r.recorder,
		logger:      r.logger,
	}, nil
}

func (r *Runner) commit(log *slog.Logger, res *Result) {
	if r.vcs == nil || !r.cfg.VCS.Commit {
		return
	}
	added, modified, removed := res.Changes()
	if added+modified+removed == 0 {
		return
	}
	msg := fmt.Sprintf("Export %s\n\n%d added, %d modified, %d removed", res.RunID, added, modified, removed)
	hash, err := r.vcs.Commit(msg)
	if err != nil {
		log.Warn("Failed to commit output changes", logfields.Error(err))
		return
	}
	res.Commit = hash
}

func (r *Runner) record(ctx context.Context, log *slog.Logger, build func() (eventstore.Event, error)) {
	if r.journal == nil {
		return
	}
	ev, err := build()
	if err == nil {
		err = r.journal.Record(ctx, ev)
	}
	if err != nil {
		log.Warn("Failed to journal run event", logfields.Error(err))
	}
}
