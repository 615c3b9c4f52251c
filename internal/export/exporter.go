package export

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/corpus"
	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/gateway"
	"git.home.luguber.info/inful/wikiexport/internal/incremental"
	"git.home.luguber.info/inful/wikiexport/internal/loader"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
	"git.home.luguber.info/inful/wikiexport/internal/render"
	"git.home.luguber.info/inful/wikiexport/internal/rewrite"
)

// Exporter renders one corpus for one run.
type Exporter struct {
	cfg         config.Corpus
	site        config.SiteConfig
	fs          afero.Fs
	dir         string
	snapshot    string
	maxInFlight int
	gw          gateway.Gateway
	store       *corpus.Store
	renderer    *render.Renderer
	rewriter    *rewrite.Rewriter
	out         *output
	assets      *assetCache
	forced      []string
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// Store returns the corpus store the exporter works on.
func (e *Exporter) Store() *corpus.Store { return e.store }

// Dir returns the absolute output directory of the corpus.
func (e *Exporter) Dir() string { return e.dir }

// ForcePage marks the page with title for re-rendering. Unknown titles are
// reported and ignored.
func (e *Exporter) ForcePage(title string) bool {
	p := e.store.FindPage(title)
	if p == nil {
		e.logger.Warn("Forced page not found", logfields.Corpus(e.cfg.Space), logfields.Title(title))
		return false
	}
	e.store.MarkPage(p.ID)
	return true
}

// PageContent returns the rewritten body of the page with title, its
// content wrapper re-tagged with divID.
func (e *Exporter) PageContent(ctx context.Context, title, divID string) (string, error) {
	p := e.store.FindPage(title)
	if p == nil {
		return "", errors.NewError(errors.CategoryNotFound, "page not found").
			WithContext("corpus", e.cfg.Space).WithContext("title", title).Build()
	}
	return e.content(ctx, p, rewrite.Mount{ID: divID})
}

// bind wires the rewriter once every corpus of the run is known.
func (e *Exporter) bind(root string, siblings []rewrite.Corpus) {
	res := rewrite.NewResolver(root, e.linkCorpus(), siblings...).WithLogger(e.logger)
	e.rewriter = rewrite.New(e.site, res).
		WithAssets(e.assets).
		WithRecorder(e.recorder).
		WithLogger(e.logger)
}

func (e *Exporter) linkCorpus() rewrite.Corpus {
	return rewrite.Corpus{Index: e.store, Dir: e.dir}
}

// Load opens the space, merges the remote listing into the store and
// propagates the changed set to its fixed point. The returned result
// carries the abort reason, if any.
func (e *Exporter) Load(ctx context.Context, force bool) *CorpusResult {
	res := &CorpusResult{Space: e.cfg.Space, Dir: e.cfg.Dir}
	log := e.logger.With(logfields.Corpus(e.cfg.Space))

	space, err := e.gw.Space(ctx, e.cfg.Space)
	if err != nil {
		if errors.HasCategory(err, errors.CategoryNotFound) {
			// An unknown space is a configuration mistake.
			err = errors.ConfigError("configured space does not exist").WithCause(err).
				WithContext("space", e.cfg.Space).Build()
		}
		res.Err = err
		log.Error("Could not open space", logfields.Error(err))
		return res
	}
	e.store.SetSpace(space)

	start := time.Now()
	ld := loader.New(e.gw, e.store).
		WithMaxInFlight(e.maxInFlight).
		WithRemover(e.out).
		WithRecorder(e.recorder).
		WithLogger(log)
	blogRep, err := ld.LoadBlog(ctx)
	if err != nil {
		res.Err = err
		log.Error("Blog listing failed", logfields.Error(err))
		return res
	}
	pageRep, err := ld.LoadPages(ctx)
	if err != nil {
		res.Err = err
		log.Error("Page listing failed", logfields.Error(err))
		return res
	}
	res.FetchFailed = blogRep.FailedCount() + pageRep.FailedCount()
	e.recorder.ObserveStageDuration(e.cfg.Space, "load", time.Since(start))

	if force {
		e.store.MarkAllPages()
		e.store.MarkAllBlog()
	}
	for _, title := range slices.Concat(e.cfg.ForcePages, e.forced) {
		e.ForcePage(title)
	}
	res.Changed = e.store.ChangedPageIDs().Len() + e.store.ChangedBlogIDs().Len()

	start = time.Now()
	res.Propagated = incremental.New(e.store, e.cfg.GlobalPages).
		WithRecorder(e.recorder).
		WithLogger(log).
		Propagate(incremental.Removed{Pages: pageRep.Removed, Blog: blogRep.Removed})
	e.recorder.ObserveStageDuration(e.cfg.Space, "propagate", time.Since(start))
	return res
}

// Render writes every document of the changed set and clears it.
func (e *Exporter) Render(ctx context.Context, res *CorpusResult) {
	start := time.Now()
	e.renderChanged(ctx, res)
	e.recorder.ObserveStageDuration(e.cfg.Space, "render", time.Since(start))

	e.logger.Info("Corpus exported",
		logfields.Corpus(e.cfg.Space),
		slog.Int("changed", res.Changed),
		slog.Int("rendered", res.Rendered),
		slog.Int("failed", res.RenderFailed),
		slog.Int("propagated", res.Propagated.Total()),
		slog.Int("fetch_failed", res.FetchFailed))
}

// renderChanged renders the changed blog entries, then the changed pages.
// Documents that fail are dropped from the store so the next run fetches
// and renders them again.
func (e *Exporter) renderChanged(ctx context.Context, res *CorpusResult) {
	if !e.store.HasChanges() {
		e.logger.Debug("Nothing to render", logfields.Corpus(e.cfg.Space))
		return
	}
	var failed []*docmodel.Document
	docs := append(e.store.ChangedBlogEntries(), e.store.ChangedPages()...)
	for _, doc := range docs {
		err := e.renderOne(ctx, doc)
		e.recorder.IncRendered(e.cfg.Space, string(doc.Kind), err == nil)
		if err != nil {
			e.logger.Error("Failed to render document",
				logfields.Corpus(e.cfg.Space), logfields.Kind(string(doc.Kind)),
				logfields.Title(doc.Title), logfields.Error(err))
			res.Errors = multierror.Append(res.Errors, err)
			res.RenderFailed++
			failed = append(failed, doc)
			continue
		}
		res.Rendered++
	}
	e.store.ClearChanged()
	for _, doc := range failed {
		if doc.Kind == docmodel.KindBlog {
			e.store.RemoveBlog(doc.ID)
		} else {
			e.store.RemovePage(doc.ID)
		}
	}
}

func (e *Exporter) renderOne(ctx context.Context, doc *docmodel.Document) error {
	body, err := e.content(ctx, doc, rewrite.Mount{Class: e.cfg.MainDivClass})
	if err != nil {
		return err
	}
	data := render.Data{
		Page:    doc,
		Space:   e.store.Space(),
		Body:    template.HTML(body), // #nosec G203 -- body is backend-rendered markup passed through the rewriter.
		Scripts: docmodel.ScriptsFor(doc, e.store.FindPage),
		RelRoot: strings.Repeat("../", strings.Count(doc.Directory(), "/")),
	}
	if doc.Kind == docmodel.KindBlog {
		data.IsBlogEntry = true
		data.Breadcrumbs = render.BlogBreadcrumbs(doc, e.breadcrumbRoot())
	} else {
		data.Breadcrumbs = render.PageBreadcrumbs(doc, e.store.Ancestors(doc.ID), e.breadcrumbRoot())
		data.Children = e.store.Children(doc.ID)
	}

	var buf bytes.Buffer
	if err := e.renderer.Render(&buf, data); err != nil {
		return err
	}
	if _, err := e.out.write(ctx, doc.Path(), doc.ID, buf.Bytes()); err != nil {
		return err
	}
	e.assets.attachments(ctx, doc)
	return nil
}

// content fetches the backend rendering of doc and rewrites it.
func (e *Exporter) content(ctx context.Context, doc *docmodel.Document, mount rewrite.Mount) (string, error) {
	html, err := e.gw.GetExportHTML(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	return e.rewriter.Rewrite(ctx, doc, "<div id='"+rewrite.ContentID+"'>"+html+"</div>", mount)
}

func (e *Exporter) breadcrumbRoot() string {
	if e.cfg.BreadcrumbRoot == config.SpaceName {
		return e.store.Space().Name
	}
	return e.cfg.BreadcrumbRoot
}

// saveSnapshot persists the store for the next run.
func (e *Exporter) saveSnapshot() error {
	if err := e.store.Save(e.fs, e.snapshot); err != nil {
		return err
	}
	e.logger.Debug("Saved corpus snapshot", logfields.Corpus(e.cfg.Space), logfields.Path(filepath.ToSlash(e.snapshot)))
	return nil
}
