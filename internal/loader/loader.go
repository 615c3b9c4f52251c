// Package loader fetches a corpus from the content service with a bounded
// number of requests in flight and merges the results into the store.
package loader

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"git.home.luguber.info/inful/wikiexport/internal/corpus"
	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/gateway"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
)

// DefaultMaxInFlight bounds concurrent fetches when no limit is configured.
const DefaultMaxInFlight = 15

// Remover deletes the output artifacts of an evicted document.
type Remover interface {
	RemoveArtifacts(ctx context.Context, doc *docmodel.Document) error
}

// Report summarizes one load pass.
type Report struct {
	Added    []string
	Modified []string
	Removed  []*docmodel.Document
	// Failed holds per-document fetch failures; those documents keep their
	// cached state for this pass.
	Failed *multierror.Error
}

// FailedCount returns the number of documents that could not be fetched.
func (r *Report) FailedCount() int {
	if r.Failed == nil {
		return 0
	}
	return len(r.Failed.Errors)
}

// Loader populates a store from a gateway.
type Loader struct {
	gw          gateway.Gateway
	store       *corpus.Store
	remover     Remover
	maxInFlight int64
	inFlight    atomic.Int64
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// New returns a loader with the default in-flight bound.
func New(gw gateway.Gateway, store *corpus.Store) *Loader {
	return &Loader{
		gw:          gw,
		store:       store,
		maxInFlight: DefaultMaxInFlight,
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
}

// WithMaxInFlight sets the fetch bound; values below one keep the default.
func (l *Loader) WithMaxInFlight(n int) *Loader {
	if n > 0 {
		l.maxInFlight = int64(n)
	}
	return l
}

// WithRemover sets the artifact remover used for evicted documents.
func (l *Loader) WithRemover(r Remover) *Loader {
	l.remover = r
	return l
}

// WithRecorder sets the metrics recorder.
func (l *Loader) WithRecorder(r metrics.Recorder) *Loader {
	if r != nil {
		l.recorder = r
	}
	return l
}

// WithLogger sets a custom logger.
func (l *Loader) WithLogger(lg *slog.Logger) *Loader {
	if lg != nil {
		l.logger = lg
	}
	return l
}

func (l *Loader) corpus() string { return l.store.Space().Key }

// LoadBlog lists the space's blog entries, fetches their versions and merges
// them. Only a failing listing is returned as an error.
func (l *Loader) LoadBlog(ctx context.Context) (*Report, error) {
	space := l.corpus()
	summaries, err := l.gw.ListBlogEntries(ctx, space)
	if err != nil {
		return nil, listingError(err, "failed to list blog entries", space)
	}
	l.logger.Info("Loading blog entries", logfields.Corpus(space), logfields.Count(len(summaries)))

	rep := &Report{}
	var mu sync.Mutex
	seen := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		seen[s.ID] = true
	}

	l.fanOut(ctx, len(summaries), func(ctx context.Context, i int) {
		s := summaries[i]
		version, err := l.gw.GetBlogVersion(ctx, s.ID)
		l.recorder.IncFetch(space, err == nil)
		if err != nil {
			l.logger.Warn("Failed to fetch blog entry version",
				logfields.Corpus(space), logfields.DocID(s.ID), logfields.Title(s.Title), logfields.Error(err))
			mu.Lock()
			rep.Failed = multierror.Append(rep.Failed, err)
			mu.Unlock()
			return
		}
		entry := docmodel.NewBlogEntry(s.ID, s.Title, s.URL, s.Published, version)
		res := l.store.MergeBlog(entry)
		l.record(rep, &mu, entry, res)
	})

	for id := range l.store.BlogIDs() {
		if seen[id] {
			continue
		}
		if doc := l.store.RemoveBlog(id); doc != nil {
			l.evict(ctx, rep, doc)
		}
	}
	return rep, nil
}

// LoadPages lists the space's pages, fetches every page body concurrently and
// merges the results. Pages missing from the listing are evicted after all
// fetches have completed.
func (l *Loader) LoadPages(ctx context.Context) (*Report, error) {
	space := l.corpus()
	summaries, err := l.gw.ListPages(ctx, space)
	if err != nil {
		return nil, listingError(err, "failed to list pages", space)
	}
	l.logger.Info("Loading pages", logfields.Corpus(space), logfields.Count(len(summaries)))

	rep := &Report{}
	var mu sync.Mutex
	seen := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		seen[s.ID] = true
	}

	l.fanOut(ctx, len(summaries), func(ctx context.Context, i int) {
		s := summaries[i]
		payload, err := l.gw.GetPage(ctx, s.ID)
		l.recorder.IncFetch(space, err == nil)
		if err != nil {
			l.logger.Warn("Failed to fetch page",
				logfields.Corpus(space), logfields.DocID(s.ID), logfields.Title(s.Title), logfields.Error(err))
			mu.Lock()
			rep.Failed = multierror.Append(rep.Failed, err)
			mu.Unlock()
			return
		}
		fillFromSummary(&payload, s, space)
		page, problems := docmodel.ParsePage(payload)
		for _, p := range problems {
			l.logger.Warn("Malformed page content",
				logfields.Corpus(space), logfields.Title(page.Title), logfields.Error(p))
		}
		res := l.store.MergePage(page)
		l.record(rep, &mu, page, res)
	})

	for id := range l.store.PageIDs() {
		if seen[id] {
			continue
		}
		if doc := l.store.RemovePage(id); doc != nil {
			l.evict(ctx, rep, doc)
		}
	}
	return rep, nil
}

// fanOut runs fn for indexes [0,n) with at most maxInFlight calls active.
// The submitting goroutine blocks on the semaphore until a slot frees up.
func (l *Loader) fanOut(ctx context.Context, n int, fn func(context.Context, int)) {
	sem := semaphore.NewWeighted(l.maxInFlight)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			l.logger.Warn("Load interrupted", logfields.Corpus(l.corpus()), logfields.Error(err))
			break
		}
		l.recorder.SetInFlight(l.corpus(), int(l.inFlight.Add(1)))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() { l.recorder.SetInFlight(l.corpus(), int(l.inFlight.Add(-1))) }()
			start := time.Now()
			fn(ctx, i)
			l.logger.Debug("Fetch finished", logfields.Corpus(l.corpus()),
				logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
		}(i)
	}
	wg.Wait()
}

func (l *Loader) record(rep *Report, mu *sync.Mutex, doc *docmodel.Document, res corpus.MergeResult) {
	if res == corpus.Unchanged {
		return
	}
	l.logger.Debug("Document changed", logfields.Corpus(l.corpus()),
		logfields.Kind(string(doc.Kind)), logfields.Title(doc.Title), slog.String("change", res.String()))
	mu.Lock()
	defer mu.Unlock()
	if res == corpus.Added {
		rep.Added = append(rep.Added, doc.ID)
	} else {
		rep.Modified = append(rep.Modified, doc.ID)
	}
}

func (l *Loader) evict(ctx context.Context, rep *Report, doc *docmodel.Document) {
	rep.Removed = append(rep.Removed, doc)
	l.recorder.IncDeleted(l.corpus())
	l.logger.Info("Document deleted remotely", logfields.Corpus(l.corpus()),
		logfields.Kind(string(doc.Kind)), logfields.Title(doc.Title), logfields.Path(doc.Path()))
	if l.remover == nil {
		return
	}
	if err := l.remover.RemoveArtifacts(ctx, doc); err != nil {
		l.logger.Warn("Failed to remove output of deleted document",
			logfields.Corpus(l.corpus()), logfields.Path(doc.Path()), logfields.Error(err))
	}
}

// fillFromSummary completes a payload with listing metadata the full fetch
// may omit.
func fillFromSummary(p *docmodel.Payload, s gateway.PageSummary, space string) {
	if p.ID == "" {
		p.ID = s.ID
	}
	if p.Title == "" {
		p.Title = s.Title
	}
	if p.URL == "" {
		p.URL = s.URL
	}
	if p.ParentID == "" {
		p.ParentID = s.ParentID
	}
	if p.Space == "" {
		p.Space = space
	}
	if p.Modified.IsZero() {
		p.Modified = s.Modified
	}
}

// listingError keeps the category of a classified cause so that
// authentication failures still abort the corpus as initialization errors.
func listingError(err error, msg, space string) error {
	category := errors.CategoryGateway
	if errors.IsClassified(err) {
		category = errors.GetCategory(err)
	}
	return errors.WrapError(err, category, msg).WithContext("space", space).Build()
}
