// Package rewrite rebinds references in backend-rendered HTML to locations in
// the exported tree. It streams tokens and never builds a document tree.
package rewrite

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
)

// ContentID marks the wrapper element placed around every rendered body.
const ContentID = "ConfluenceContent"

// AssetLoader downloads a binary referenced by a document into the asset
// directory of the given kind and returns the local file name.
type AssetLoader interface {
	LoadAsset(ctx context.Context, doc *docmodel.Document, href, kind string, auth bool) (string, error)
}

// Mount re-tags the content wrapper. A non-empty Class replaces the wrapper
// id with a class; a non-empty ID sets the id.
type Mount struct {
	ID    string
	Class string
}

// Rewriter rewrites rendered bodies of one corpus.
type Rewriter struct {
	site     config.SiteConfig
	resolver *Resolver
	assets   AssetLoader
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New returns a rewriter resolving links through resolver.
func New(site config.SiteConfig, resolver *Resolver) *Rewriter {
	return &Rewriter{
		site:     site,
		resolver: resolver,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
}

// WithAssets sets the loader for avatars and thumbnails. Without one those
// images point at the live host.
func (rw *Rewriter) WithAssets(a AssetLoader) *Rewriter {
	rw.assets = a
	return rw
}

// WithRecorder sets the metrics recorder.
func (rw *Rewriter) WithRecorder(r metrics.Recorder) *Rewriter {
	if r != nil {
		rw.recorder = r
	}
	return rw
}

// WithLogger sets a custom logger.
func (rw *Rewriter) WithLogger(l *slog.Logger) *Rewriter {
	if l != nil {
		rw.logger = l
	}
	return rw
}

// Rewrite transforms body, the rendered HTML of doc, and applies Cleanup to
// the result. Unresolvable references degrade to live-host URLs; only a
// broken output layout fails the document.
func (rw *Rewriter) Rewrite(ctx context.Context, doc *docmodel.Document, body string, mount Mount) (string, error) {
	var out strings.Builder
	out.Grow(len(body))
	p := &pass{rw: rw, ctx: ctx, doc: doc, mount: mount, out: &out}

	z := html.NewTokenizer(strings.NewReader(body))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", errors.WrapError(err, errors.CategoryRender, "failed to tokenize body").
					WithContext("title", doc.Title).Build()
			}
			return Cleanup(out.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			raw := string(z.Raw())
			tok := z.Token()
			if err := p.startTag(tt, tok, raw); err != nil {
				return "", err
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			p.endTag(string(name))
			out.Write(z.Raw())
		default:
			out.Write(z.Raw())
		}
	}
}

func (rw *Rewriter) corpus() string {
	return rw.resolver.self.Index.Space().Key
}

func (rw *Rewriter) stripHost(v string) string {
	if rw.site.Host != "" {
		return strings.TrimPrefix(v, rw.site.Host)
	}
	return v
}

// pass holds the state of one Rewrite call.
type pass struct {
	rw    *Rewriter
	ctx   context.Context
	doc   *docmodel.Document
	mount Mount
	out   *strings.Builder

	// cells counts cells of the innermost open row; rows saves the counts
	// of enclosing rows of nested tables.
	cells int
	rows  []int
}

func (p *pass) startTag(tt html.TokenType, tok html.Token, raw string) error {
	a := &attrs{list: tok.Attr}
	switch tok.Data {
	case "a":
		if err := p.anchor(a); err != nil {
			return err
		}
	case "img":
		p.image(a)
	case "th":
		p.cells++
	case "td":
		p.cells++
		if _, ok := a.get("nowrap"); ok {
			a.set("nowrap", "nowrap")
		}
	case "tr":
		if tt == html.SelfClosingTagToken {
			p.out.WriteString("<tr><td></td></tr>")
			return nil
		}
		p.rows = append(p.rows, p.cells)
		p.cells = 0
	case "div":
		p.div(a)
	case "input":
		if v, ok := a.get("value"); ok && p.rw.site.ContextPath != "" &&
			strings.HasPrefix(v, p.rw.site.ContextPath+"/") {
			a.set("value", p.rw.site.Host+v)
		}
	case "pre":
		p.pre(a)
	}

	if !a.dirty {
		p.out.WriteString(raw)
		return nil
	}
	p.out.WriteString(html.Token{Type: tt, Data: tok.Data, Attr: a.list}.String())
	return nil
}

func (p *pass) endTag(name string) {
	if name != "tr" {
		return
	}
	if p.cells == 0 {
		p.out.WriteString("<td></td>")
	}
	if n := len(p.rows); n > 0 {
		p.cells = p.rows[n-1]
		p.rows = p.rows[:n-1]
	} else {
		p.cells = 0
	}
}

func (p *pass) anchor(a *attrs) error {
	a.remove("data-username")
	href, ok := a.get("href")
	if !ok {
		return nil
	}
	href = strings.TrimSpace(href)
	cp, host := p.rw.site.ContextPath, p.rw.site.Host

	switch {
	case strings.HasPrefix(href, cp+"/display/"):
		target, params := splitParams(href)
		loc, err := p.rw.resolver.ResolveURL(p.doc, target)
		if err != nil {
			return err
		}
		if loc == "" {
			p.linkMiss(target)
			loc = host + target
		}
		a.set("href", loc+params)
	case strings.HasPrefix(href, cp+"/plugins/"):
		a.set("href", host+href)
	case strings.Contains(href, cp+"/pages/viewpage.action"):
		target, params := splitParams(href)
		query, fragment := params, ""
		if i := strings.IndexByte(params, '#'); i >= 0 {
			query, fragment = params[:i], params[i:]
		}
		id := pageIDParam(strings.TrimPrefix(query, "?"))
		loc, err := p.rw.resolver.ResolveID(p.doc, id)
		if err != nil {
			return err
		}
		if loc == "" {
			p.linkMiss(target + query)
			if strings.HasPrefix(href, "/") {
				a.set("href", host+href)
			}
			return nil
		}
		a.set("href", loc+fragment)
	case strings.Contains(href, cp+"/download/attachments"):
		a.set("href", p.doc.AssetDir(docmodel.AssetData)+"/"+lastSegment(stripQuery(href)))
	case strings.Contains(href, cp+"/pages/createpage.action"):
		p.rw.logger.Info("Keeping create-page link on the live site",
			logfields.Title(p.doc.Title), logfields.Href(href))
		if strings.HasPrefix(href, "/") {
			a.set("href", host+href)
		}
	case strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://"):
		p.external(a, href)
	}
	return nil
}

// external drops tracking markers from links into the organization's sites.
func (p *pass) external(a *attrs, href string) {
	u, err := url.Parse(href)
	if err != nil {
		return
	}
	site := p.rw.site
	if site.OrgDomain != "" && strings.Contains(u.Hostname(), site.OrgDomain) {
		a.remove("rel")
	}
	if site.OrgSite != "" && u.Hostname() == site.OrgSite {
		if cls, _ := a.get("class"); cls == "external-link" {
			a.remove("class")
		}
	}
}

func (p *pass) linkMiss(target string) {
	if strings.Contains(target, "~") {
		return
	}
	p.rw.recorder.IncLinkMiss(p.rw.corpus())
	p.rw.logger.Warn("Could not resolve link",
		logfields.Corpus(p.rw.corpus()), logfields.Title(p.doc.Title), logfields.Href(target))
}

func (p *pass) image(a *attrs) {
	if v, ok := a.get("align"); ok && strings.EqualFold(v, "absmiddle") {
		a.set("align", "middle")
	}
	src, ok := a.get("src")
	if !ok {
		return
	}
	src = p.rw.stripHost(src)
	cp, host := p.rw.site.ContextPath, p.rw.site.Host
	cls, hasClass := a.get("class")

	switch {
	case strings.HasPrefix(src, cp+"/images/"):
		a.set("src", "/images"+cp+"/"+strings.TrimPrefix(src, cp+"/images/"))
	case strings.HasPrefix(src, cp+"/download/attachments"):
		switch {
		case !hasClass || strings.Contains(cls, "confluence-embedded-image"):
			name := strings.ReplaceAll(lastSegment(stripQuery(src)), "+", "-")
			a.set("src", p.doc.AssetDir(docmodel.AssetData)+"/"+name)
		case strings.Contains(cls, "userLogo"):
			a.set("src", p.asset(src, docmodel.AssetUserImage, true))
		default:
			a.set("src", host+strings.ReplaceAll(src, "+", "-"))
		}
	case strings.HasPrefix(src, cp+"/download/thumbnails"):
		a.set("src", p.asset(src, docmodel.AssetThumbs, false))
	case cp != "" && strings.HasPrefix(src, cp):
		a.set("src", host+src)
	}
}

// asset downloads href and returns its local reference, or the live URL
// when the download fails.
func (p *pass) asset(href, kind string, auth bool) string {
	if p.rw.assets == nil {
		return p.rw.site.Host + href
	}
	name, err := p.rw.assets.LoadAsset(p.ctx, p.doc, href, kind, auth)
	if err != nil {
		p.rw.logger.Warn("Could not download binary asset",
			logfields.Corpus(p.rw.corpus()), logfields.Title(p.doc.Title),
			logfields.Href(href), slog.String("asset_kind", kind), logfields.Error(err))
		return p.rw.site.Host + href
	}
	return p.doc.AssetDir(kind) + "/" + name
}

func (p *pass) div(a *attrs) {
	if id, _ := a.get("id"); id != ContentID {
		return
	}
	if p.mount.Class != "" {
		a.set("class", p.mount.Class)
		a.remove("id")
	}
	if p.mount.ID != "" {
		a.set("id", p.mount.ID)
	}
}

func (p *pass) pre(a *attrs) {
	if cls, _ := a.get("class"); !strings.EqualFold(cls, "syntaxhighlighter-pre") {
		return
	}
	brush, _ := a.get("data-syntaxhighlighter-params")
	if !strings.HasPrefix(strings.ToLower(brush), "brush") {
		return
	}
	a.remove("data-syntaxhighlighter-params")
	a.remove("data-theme")
	a.set("class", brush)
}

// AssetName derives the local file name of a downloaded binary: the last
// path segment without query, spaces replaced by underscores.
func AssetName(href string) string {
	return strings.ReplaceAll(lastSegment(stripQuery(href)), " ", "_")
}

func stripQuery(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		return href[:i]
	}
	return href
}

func lastSegment(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// splitParams separates a link into its path and its query plus fragment.
func splitParams(href string) (target, params string) {
	var query, fragment string
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href, fragment = href[:i], href[i:]
	}
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href, query = href[:i], href[i:]
	}
	return href, query + fragment
}

func pageIDParam(query string) string {
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get("pageId")
}

// attrs edits a tag's attributes in place, preserving their order.
type attrs struct {
	list  []html.Attribute
	dirty bool
}

func (a *attrs) get(key string) (string, bool) {
	for _, at := range a.list {
		if at.Namespace == "" && at.Key == key {
			return at.Val, true
		}
	}
	return "", false
}

func (a *attrs) set(key, val string) {
	for i, at := range a.list {
		if at.Namespace == "" && at.Key == key {
			if at.Val != val {
				a.list[i].Val = val
				a.dirty = true
			}
			return
		}
	}
	a.list = append(a.list, html.Attribute{Key: key, Val: val})
	a.dirty = true
}

func (a *attrs) remove(key string) {
	for i, at := range a.list {
		if at.Namespace == "" && at.Key == key {
			a.list = append(a.list[:i], a.list[i+1:]...)
			a.dirty = true
			return
		}
	}
}
