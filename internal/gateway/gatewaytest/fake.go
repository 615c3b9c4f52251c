// Package gatewaytest provides an in-memory gateway for tests. It records how
// many page fetches are in flight so callers can assert concurrency bounds.
package gatewaytest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/gateway"
)

// Fake is a scriptable gateway. All setters are safe to call between runs.
type Fake struct {
	mu          sync.Mutex
	space       docmodel.Space
	pages       map[string]docmodel.Payload
	pageOrder   []string
	blog        map[string]gateway.BlogSummary
	blogOrder   []string
	versions    map[string]int
	html        map[string]string
	attachments map[string][]gateway.Attachment
	assets      map[string][]byte
	failPages   map[string]bool
	listErr     error

	// FetchDelay holds each GetPage call open for the given duration.
	FetchDelay time.Duration

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	fetches     atomic.Int64
	downloads   []string
}

var _ gateway.Gateway = (*Fake)(nil)

// New returns an empty fake serving the given space.
func New(space docmodel.Space) *Fake {
	return &Fake{
		space:       space,
		pages:       map[string]docmodel.Payload{},
		blog:        map[string]gateway.BlogSummary{},
		versions:    map[string]int{},
		html:        map[string]string{},
		attachments: map[string][]gateway.Attachment{},
		assets:      map[string][]byte{},
		failPages:   map[string]bool{},
	}
}

// PutPage adds or replaces a page.
func (f *Fake) PutPage(p docmodel.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pages[p.ID]; !ok {
		f.pageOrder = append(f.pageOrder, p.ID)
	}
	if p.Space == "" {
		p.Space = f.space.Key
	}
	f.pages[p.ID] = p
}

// RemovePage deletes a page from the listing.
func (f *Fake) RemovePage(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pages, id)
	f.pageOrder = remove(f.pageOrder, id)
}

// PutBlog adds or replaces a blog entry with the given version.
func (f *Fake) PutBlog(b gateway.BlogSummary, version int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blog[b.ID]; !ok {
		f.blogOrder = append(f.blogOrder, b.ID)
	}
	f.blog[b.ID] = b
	f.versions[b.ID] = version
}

// RemoveBlog deletes a blog entry from the listing.
func (f *Fake) RemoveBlog(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blog, id)
	delete(f.versions, id)
	f.blogOrder = remove(f.blogOrder, id)
}

// SetHTML sets the rendered body of a document.
func (f *Fake) SetHTML(id, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.html[id] = body
}

// SetAttachments sets the attachment listing of a document.
func (f *Fake) SetAttachments(id string, atts ...gateway.Attachment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments[id] = atts
}

// SetAsset registers downloadable content under href.
func (f *Fake) SetAsset(href string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[href] = data
}

// FailPage makes GetPage fail for id.
func (f *Fake) FailPage(id string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPages[id] = fail
}

// FailListing makes the page listing fail with err.
func (f *Fake) FailListing(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// MaxInFlight returns the highest number of concurrent GetPage calls seen.
func (f *Fake) MaxInFlight() int64 { return f.maxInFlight.Load() }

// Fetches returns the number of GetPage calls.
func (f *Fake) Fetches() int64 { return f.fetches.Load() }

// Downloads returns the hrefs passed to Download, in call order.
func (f *Fake) Downloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

func (f *Fake) Space(_ context.Context, key string) (docmodel.Space, error) {
	if key != f.space.Key {
		return docmodel.Space{}, errors.NewError(errors.CategoryNotFound, "unknown space").
			WithContext("space", key).Build()
	}
	return f.space, nil
}

func (f *Fake) ListPages(_ context.Context, _ string) ([]gateway.PageSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]gateway.PageSummary, 0, len(f.pageOrder))
	for _, id := range f.pageOrder {
		p := f.pages[id]
		out = append(out, gateway.PageSummary{ID: p.ID, Title: p.Title, URL: p.URL, ParentID: p.ParentID, Modified: p.Modified})
	}
	return out, nil
}

func (f *Fake) ListBlogEntries(_ context.Context, _ string) ([]gateway.BlogSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gateway.BlogSummary, 0, len(f.blogOrder))
	for _, id := range f.blogOrder {
		out = append(out, f.blog[id])
	}
	return out, nil
}

func (f *Fake) GetPage(ctx context.Context, id string) (docmodel.Payload, error) {
	f.fetches.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.FetchDelay > 0 {
		select {
		case <-time.After(f.FetchDelay):
		case <-ctx.Done():
			return docmodel.Payload{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPages[id] {
		return docmodel.Payload{}, errors.GatewayError("simulated fetch failure").WithContext("page_id", id).Build()
	}
	p, ok := f.pages[id]
	if !ok {
		return docmodel.Payload{}, errors.NewError(errors.CategoryNotFound, "no such page").WithContext("page_id", id).Build()
	}
	return p, nil
}

func (f *Fake) GetBlogVersion(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.versions[id]
	if !ok {
		return 0, errors.NewError(errors.CategoryNotFound, "no such blog entry").WithContext("blog_id", id).Build()
	}
	return v, nil
}

func (f *Fake) GetExportHTML(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.html[id], nil
}

func (f *Fake) ListAttachments(_ context.Context, id string) ([]gateway.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Attachment(nil), f.attachments[id]...), nil
}

func (f *Fake) Download(_ context.Context, href string, _ bool) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, href)
	data, ok := f.assets[href]
	if !ok {
		return nil, errors.NewError(errors.CategoryNotFound, fmt.Sprintf("no asset at %s", href)).Build()
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
