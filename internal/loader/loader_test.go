package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikiexport/internal/corpus"
	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/gateway"
	"git.home.luguber.info/inful/wikiexport/internal/gateway/gatewaytest"
)

var (
	space = docmodel.Space{Key: "CXF", Name: "Apache CXF"}
	t0    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

type recordingRemover struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingRemover) RemoveArtifacts(_ context.Context, doc *docmodel.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, doc.Path())
	return nil
}

func putPage(f *gatewaytest.Fake, id, title string, mod time.Time) {
	f.PutPage(docmodel.Payload{ID: id, Title: title, URL: "http://wiki/display/CXF/" + title, Modified: mod, Dialect: docmodel.DialectLegacy})
}

func TestLoadPagesNeverExceedsBound(t *testing.T) {
	fake := gatewaytest.New(space)
	fake.FetchDelay = 5 * time.Millisecond
	for i := range 60 {
		putPage(fake, fmt.Sprint(i), fmt.Sprintf("Page %d", i), t0)
	}
	store := corpus.New(space)

	rep, err := New(fake, store).WithMaxInFlight(15).LoadPages(t.Context())
	require.NoError(t, err)

	assert.Equal(t, int64(60), fake.Fetches())
	assert.LessOrEqual(t, fake.MaxInFlight(), int64(15))
	assert.Greater(t, fake.MaxInFlight(), int64(1), "fetches should overlap")
	assert.Len(t, rep.Added, 60)
	pages, _ := store.Len()
	assert.Equal(t, 60, pages)
}

func TestLoadPagesClassifiesChanges(t *testing.T) {
	fake := gatewaytest.New(space)
	putPage(fake, "1", "Home", t0)
	putPage(fake, "2", "FAQ", t0)
	store := corpus.New(space)
	l := New(fake, store)

	_, err := l.LoadPages(t.Context())
	require.NoError(t, err)
	store.ClearChanged()

	putPage(fake, "2", "FAQ", t0.Add(time.Hour))
	putPage(fake, "3", "News", t0)
	rep, err := l.LoadPages(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"3"}, rep.Added)
	assert.Equal(t, []string{"2"}, rep.Modified)
	assert.False(t, store.ChangedPageIDs().Has("1"))
	assert.True(t, store.ChangedPageIDs().Has("2"))
	assert.True(t, store.ChangedPageIDs().Has("3"))
}

func TestLoadPagesEvictsDeletedDocuments(t *testing.T) {
	fake := gatewaytest.New(space)
	putPage(fake, "1", "Home", t0)
	putPage(fake, "2", "Old Page", t0)
	store := corpus.New(space)
	remover := &recordingRemover{}
	l := New(fake, store).WithRemover(remover)

	_, err := l.LoadPages(t.Context())
	require.NoError(t, err)
	fake.RemovePage("2")

	rep, err := l.LoadPages(t.Context())
	require.NoError(t, err)

	require.Len(t, rep.Removed, 1)
	assert.Equal(t, "2", rep.Removed[0].ID)
	assert.Nil(t, store.Page("2"))
	assert.Equal(t, []string{"old-page.html"}, remover.paths)
}

func TestLoadPagesIsolatesFetchFailures(t *testing.T) {
	fake := gatewaytest.New(space)
	putPage(fake, "1", "Home", t0)
	putPage(fake, "2", "FAQ", t0)
	store := corpus.New(space)
	l := New(fake, store)
	_, err := l.LoadPages(t.Context())
	require.NoError(t, err)
	store.ClearChanged()

	putPage(fake, "1", "Home", t0.Add(time.Hour))
	putPage(fake, "3", "Broken", t0)
	fake.FailPage("2", true)
	fake.FailPage("3", true)

	rep, err := l.LoadPages(t.Context())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.FailedCount())
	assert.NotNil(t, store.Page("2"), "failed fetch keeps the cached page")
	assert.False(t, store.ChangedPageIDs().Has("2"))
	assert.Nil(t, store.Page("3"), "failed fetch of a new page leaves it absent")
	assert.Equal(t, []string{"1"}, rep.Modified)
	assert.Empty(t, rep.Removed)
}

func TestLoadPagesFailsOnListingError(t *testing.T) {
	fake := gatewaytest.New(space)
	fake.FailListing(stderrors.New("connection refused"))

	_, err := New(fake, corpus.New(space)).LoadPages(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list pages")
}

func TestLoadPagesParsesFacts(t *testing.T) {
	fake := gatewaytest.New(space)
	fake.PutPage(docmodel.Payload{ID: "1", Title: "Index", Modified: t0, Content: "{children:depth=2}{blog-posts}"})
	store := corpus.New(space)

	_, err := New(fake, store).LoadPages(t.Context())
	require.NoError(t, err)

	p := store.Page("1")
	require.NotNil(t, p)
	assert.True(t, p.Facts.ListsChildrenOf("Index", 2))
	assert.True(t, p.Facts.HasBlog)
	assert.Equal(t, "CXF", p.Space)
}

func TestLoadBlogTracksVersions(t *testing.T) {
	fake := gatewaytest.New(space)
	published := time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)
	fake.PutBlog(gateway.BlogSummary{ID: "b1", Title: "Release", URL: "http://wiki/b1", Published: published}, 1)
	fake.PutBlog(gateway.BlogSummary{ID: "b2", Title: "Gone", URL: "http://wiki/b2", Published: published}, 1)
	store := corpus.New(space)
	remover := &recordingRemover{}
	l := New(fake, store).WithRemover(remover)

	rep, err := l.LoadBlog(t.Context())
	require.NoError(t, err)
	assert.Len(t, rep.Added, 2)
	store.ClearChanged()

	fake.PutBlog(gateway.BlogSummary{ID: "b1", Title: "Release", URL: "http://wiki/b1", Published: published}, 2)
	fake.RemoveBlog("b2")
	rep, err = l.LoadBlog(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"b1"}, rep.Modified)
	require.Len(t, rep.Removed, 1)
	assert.Equal(t, []string{"2024/02/03/gone.html"}, remover.paths)
	assert.Equal(t, 2, store.BlogEntry("b1").Version)
}
