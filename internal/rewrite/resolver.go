package rewrite

import (
	"log/slog"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
)

// Index is the read-only view of a corpus the resolver searches.
// *corpus.Store satisfies it.
type Index interface {
	Space() docmodel.Space
	Page(id string) *docmodel.Document
	FindPageByURL(suffix string) *docmodel.Document
	FindBlogByURL(suffix string) *docmodel.Document
}

// Corpus pairs an index with the absolute directory its documents are
// written to.
type Corpus struct {
	Index Index
	Dir   string
}

// Resolver maps wiki references to paths relative to the linking document.
// It searches its own corpus first, then each sibling in order.
type Resolver struct {
	root     string
	self     Corpus
	siblings []Corpus
	logger   *slog.Logger
}

// NewResolver returns a resolver for documents of self. All corpus
// directories must lie under root.
func NewResolver(root string, self Corpus, siblings ...Corpus) *Resolver {
	return &Resolver{root: root, self: self, siblings: siblings, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (r *Resolver) WithLogger(l *slog.Logger) *Resolver {
	if l != nil {
		r.logger = l
	}
	return r
}

// ResolveURL returns the location of the document whose source URL ends in
// href, or "" when no corpus knows it. A link to a space's own URL resolves
// to that space's index.
func (r *Resolver) ResolveURL(from *docmodel.Document, href string) (string, error) {
	return r.search(from, func(c Corpus) (string, bool) {
		if u := c.Index.Space().URL; u != "" && strings.HasSuffix(u, href) {
			return "index.html", true
		}
		if p := c.Index.FindPageByURL(href); p != nil {
			return p.Path(), true
		}
		if b := c.Index.FindBlogByURL(href); b != nil {
			return b.Path(), true
		}
		return "", false
	})
}

// ResolveID returns the location of the page with the given id, or "".
func (r *Resolver) ResolveID(from *docmodel.Document, id string) (string, error) {
	return r.search(from, func(c Corpus) (string, bool) {
		if p := c.Index.Page(id); p != nil {
			return p.Path(), true
		}
		return "", false
	})
}

func (r *Resolver) search(from *docmodel.Document, find func(Corpus) (string, bool)) (string, error) {
	fromDir := filepath.Join(r.self.Dir, from.Directory())
	for i, c := range r.candidates() {
		target, ok := find(c)
		if !ok {
			continue
		}
		prefix, err := RelPath(r.root, fromDir, c.Dir)
		if err != nil {
			return "", err
		}
		if i > 0 {
			r.logger.Debug("Cross space link",
				logfields.Corpus(c.Index.Space().Key), logfields.Path(prefix+target))
		}
		return prefix + target, nil
	}
	return "", nil
}

func (r *Resolver) candidates() []Corpus {
	out := make([]Corpus, 0, 1+len(r.siblings))
	out = append(out, r.self)
	for _, s := range r.siblings {
		if s.Index == r.self.Index {
			continue
		}
		out = append(out, s)
	}
	return out
}
