// Package incremental decides which documents of a corpus must be rendered
// again. Seeds are documents whose own content changed; the propagator adds
// every document whose output depends on them until nothing more is added.
package incremental

import (
	"log/slog"

	"git.home.luguber.info/inful/wikiexport/internal/corpus"
	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
	"git.home.luguber.info/inful/wikiexport/internal/util/sets"
)

// Rule names a propagation rule.
type Rule string

const (
	// RuleChildren: a page listing the children of an ancestor of a changed page.
	RuleChildren Rule = "children"
	// RuleIncludes: a page transcluding a changed page.
	RuleIncludes Rule = "includes"
	// RuleBlog: a page aggregating the blog when any blog entry changed.
	RuleBlog Rule = "blog"
	// RuleGlobal: every page, because a configured global page changed.
	RuleGlobal Rule = "global"
)

// Removed lists documents evicted by the last load pass. They no longer live
// in the store but their dependents still need to re-render.
type Removed struct {
	Pages []*docmodel.Document
	Blog  []*docmodel.Document
}

// Result counts the documents each rule added.
type Result struct {
	Added map[Rule]int
}

// Total returns the number of documents added by all rules.
func (r Result) Total() int {
	n := 0
	for _, v := range r.Added {
		n += v
	}
	return n
}

// Propagator computes the changed-set fixed point for one corpus.
type Propagator struct {
	store       *corpus.Store
	globalPages sets.Set[string]
	corpusName  string
	recorder    metrics.Recorder
	logger      *slog.Logger
}

// New returns a propagator over store. Titles in globalPages invalidate the
// whole corpus when they change.
func New(store *corpus.Store, globalPages []string) *Propagator {
	return &Propagator{
		store:       store,
		globalPages: sets.New(globalPages...),
		corpusName:  store.Space().Key,
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (p *Propagator) WithLogger(l *slog.Logger) *Propagator {
	if l != nil {
		p.logger = l
	}
	return p
}

// WithRecorder sets the metrics recorder.
func (p *Propagator) WithRecorder(r metrics.Recorder) *Propagator {
	if r != nil {
		p.recorder = r
	}
	return p
}

// index maps titles to the pages that depend on them.
type index struct {
	listers   map[string][]lister
	includers map[string][]*docmodel.Document
	blogPages []*docmodel.Document
	all       int
}

type lister struct {
	page  *docmodel.Document
	depth int
}

func buildIndex(pages []*docmodel.Document) index {
	ix := index{
		listers:   map[string][]lister{},
		includers: map[string][]*docmodel.Document{},
		all:       len(pages),
	}
	for _, pg := range pages {
		for title, depth := range pg.Facts.ChildrenOf {
			ix.listers[title] = append(ix.listers[title], lister{page: pg, depth: depth})
		}
		for title := range pg.Facts.Includes {
			ix.includers[title] = append(ix.includers[title], pg)
		}
		if pg.Facts.HasBlog {
			ix.blogPages = append(ix.blogPages, pg)
		}
	}
	return ix
}

// Propagate extends the store's changed set to its fixed point. Every page is
// processed at most once, so include cycles terminate.
func (p *Propagator) Propagate(removed Removed) Result {
	res := Result{Added: map[Rule]int{}}
	ix := buildIndex(p.store.Pages())

	var queue []*docmodel.Document
	queued := sets.New[string]()
	enqueue := func(doc *docmodel.Document) {
		if queued.Add(doc.ID) {
			queue = append(queue, doc)
		}
	}
	mark := func(doc *docmodel.Document, rule Rule) {
		if p.store.MarkPage(doc.ID) {
			res.Added[rule]++
			p.logger.Debug("Page needs re-render",
				logfields.Corpus(p.corpusName), logfields.Title(doc.Title), logfields.Rule(string(rule)))
		}
		enqueue(doc)
	}

	for _, doc := range p.store.ChangedPages() {
		enqueue(doc)
	}
	for _, doc := range removed.Pages {
		// Evicted pages are sources only; MarkPage ignores their ids.
		enqueue(doc)
	}

	if p.store.ChangedBlogIDs().Len() > 0 || len(removed.Blog) > 0 {
		for _, pg := range ix.blogPages {
			mark(pg, RuleBlog)
		}
	}

	for i := 0; i < len(queue); i++ {
		src := queue[i]
		if p.globalPages.Has(src.Title) {
			if n := p.store.MarkAllPages(); n > 0 {
				res.Added[RuleGlobal] += n
			}
			p.logger.Info("Global page changed, re-rendering every page",
				logfields.Corpus(p.corpusName), logfields.Title(src.Title))
			break
		}

		// Rule A: listers of any ancestor within their requested depth.
		distance := 1
		seen := sets.New(src.ID)
		for anc := p.store.Page(src.ParentID); anc != nil; anc = p.store.Page(anc.ParentID) {
			if !seen.Add(anc.ID) {
				break
			}
			for _, l := range ix.listers[anc.Title] {
				if l.depth >= distance {
					mark(l.page, RuleChildren)
				}
			}
			distance++
		}

		// Rule B: pages transcluding this one.
		for _, inc := range ix.includers[src.Title] {
			mark(inc, RuleIncludes)
		}
	}

	for rule, n := range res.Added {
		p.recorder.IncPropagated(p.corpusName, string(rule), n)
	}
	if total := res.Total(); total > 0 {
		p.logger.Info("Propagated dependent changes",
			logfields.Corpus(p.corpusName), logfields.Count(total))
	}
	return res
}
