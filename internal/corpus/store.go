// Package corpus holds the authoritative in-memory view of one exported space:
// its pages, blog entries and the set of documents that must be re-rendered.
package corpus

import (
	"slices"
	"strings"
	"sync"

	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/util/sets"
)

// MergeResult classifies an incoming document relative to the cached one.
type MergeResult int

const (
	Unchanged MergeResult = iota
	Added
	Modified
)

func (r MergeResult) String() string {
	switch r {
	case Added:
		return "added"
	case Modified:
		return "modified"
	default:
		return "unchanged"
	}
}

// Store is safe for concurrent use. Reads may run alongside loader merges;
// every mutation is individually atomic.
type Store struct {
	mu    sync.RWMutex
	space docmodel.Space

	pages   map[string]*docmodel.Document
	blog    map[string]*docmodel.Document
	byTitle map[string]string

	changedPages sets.Set[string]
	changedBlog  sets.Set[string]
}

// New returns an empty store.
func New(space docmodel.Space) *Store {
	return &Store{
		space:        space,
		pages:        make(map[string]*docmodel.Document),
		blog:         make(map[string]*docmodel.Document),
		byTitle:      make(map[string]string),
		changedPages: sets.New[string](),
		changedBlog:  sets.New[string](),
	}
}

// Space returns the space the store mirrors.
func (s *Store) Space() docmodel.Space {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.space
}

// SetSpace records space metadata fetched from the gateway.
func (s *Store) SetSpace(sp docmodel.Space) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.space = sp
}

// MergePage inserts p unless a cached page is at least as new. Added and
// modified pages join the changed set.
func (s *Store) MergePage(p *docmodel.Document) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.pages[p.ID]
	if !p.Supersedes(old) {
		return Unchanged
	}
	if old != nil && old.Title != p.Title && s.byTitle[old.Title] == old.ID {
		delete(s.byTitle, old.Title)
	}
	s.pages[p.ID] = p
	s.byTitle[p.Title] = p.ID
	s.changedPages.Add(p.ID)
	if old == nil {
		return Added
	}
	return Modified
}

// MergeBlog inserts b unless the cached entry carries the same version.
func (s *Store) MergeBlog(b *docmodel.Document) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.blog[b.ID]
	if !b.Supersedes(old) {
		return Unchanged
	}
	s.blog[b.ID] = b
	s.changedBlog.Add(b.ID)
	if old == nil {
		return Added
	}
	return Modified
}

// RemovePage evicts a page and returns it, or nil when it was unknown.
func (s *Store) RemovePage(id string) *docmodel.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pages[id]
	if p == nil {
		return nil
	}
	delete(s.pages, id)
	if s.byTitle[p.Title] == id {
		delete(s.byTitle, p.Title)
	}
	s.changedPages.Delete(id)
	return p
}

// RemoveBlog evicts a blog entry and returns it, or nil when it was unknown.
func (s *Store) RemoveBlog(id string) *docmodel.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.blog[id]
	if b == nil {
		return nil
	}
	delete(s.blog, id)
	s.changedBlog.Delete(id)
	return b
}

// Page returns the page with id, or nil.
func (s *Store) Page(id string) *docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pages[id]
}

// BlogEntry returns the blog entry with id, or nil.
func (s *Store) BlogEntry(id string) *docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blog[id]
}

// Pages returns every page ordered by id.
func (s *Store) Pages() []*docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedDocs(s.pages)
}

// BlogEntries returns every blog entry ordered by id.
func (s *Store) BlogEntries() []*docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedDocs(s.blog)
}

// PageIDs returns the ids of all known pages.
func (s *Store) PageIDs() sets.Set[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := sets.New[string]()
	for id := range s.pages {
		out.Add(id)
	}
	return out
}

// BlogIDs returns the ids of all known blog entries.
func (s *Store) BlogIDs() sets.Set[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := sets.New[string]()
	for id := range s.blog {
		out.Add(id)
	}
	return out
}

// Len returns the number of pages and blog entries.
func (s *Store) Len() (pages, blog int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages), len(s.blog)
}

// FindPage returns the page titled title, or nil.
func (s *Store) FindPage(title string) *docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byTitle[title]; ok {
		return s.pages[id]
	}
	return nil
}

// FindPageByURL returns a page whose source URL ends with suffix.
func (s *Store) FindPageByURL(suffix string) *docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByURL(s.pages, suffix)
}

// FindBlogByURL returns a blog entry whose source URL ends with suffix.
func (s *Store) FindBlogByURL(suffix string) *docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findByURL(s.blog, suffix)
}

// Children returns the direct children of the page with id, ordered by title.
func (s *Store) Children(id string) []*docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*docmodel.Document
	for _, p := range s.pages {
		if p.ID != id && p.ParentID == id {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *docmodel.Document) int {
		if c := strings.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// HasChildren reports whether any page has id as its parent.
func (s *Store) HasChildren(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pages {
		if p.ID != id && p.ParentID == id {
			return true
		}
	}
	return false
}

// Ancestors returns the parent chain of a page, nearest first. Cycles in the
// parent links are cut at the first repeated id.
func (s *Store) Ancestors(id string) []*docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ancestorsLocked(id)
}

func (s *Store) ancestorsLocked(id string) []*docmodel.Document {
	p := s.pages[id]
	if p == nil {
		return nil
	}
	seen := sets.New(id)
	var out []*docmodel.Document
	for parent := s.pages[p.ParentID]; parent != nil; parent = s.pages[parent.ParentID] {
		if !seen.Add(parent.ID) {
			break
		}
		out = append(out, parent)
	}
	return out
}

// MarkPage adds a page to the changed set and reports whether it was absent.
func (s *Store) MarkPage(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[id]; !ok {
		return false
	}
	return s.changedPages.Add(id)
}

// MarkAllPages puts every page into the changed set and returns the number added.
func (s *Store) MarkAllPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.pages {
		if s.changedPages.Add(id) {
			n++
		}
	}
	return n
}

// MarkAllBlog puts every blog entry into the changed set and returns the number added.
func (s *Store) MarkAllBlog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.blog {
		if s.changedBlog.Add(id) {
			n++
		}
	}
	return n
}

// ChangedPageIDs returns a copy of the page changed set.
func (s *Store) ChangedPageIDs() sets.Set[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changedPages.Clone()
}

// ChangedBlogIDs returns a copy of the blog changed set.
func (s *Store) ChangedBlogIDs() sets.Set[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changedBlog.Clone()
}

// ChangedPages returns the changed pages ordered by id.
func (s *Store) ChangedPages() []*docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pick(s.pages, s.changedPages)
}

// ChangedBlogEntries returns the changed blog entries ordered by id.
func (s *Store) ChangedBlogEntries() []*docmodel.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pick(s.blog, s.changedBlog)
}

// HasChanges reports whether anything needs rendering.
func (s *Store) HasChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.changedPages.Len() > 0 || s.changedBlog.Len() > 0
}

// ClearChanged empties both changed sets.
func (s *Store) ClearChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changedPages = sets.New[string]()
	s.changedBlog = sets.New[string]()
}

func sortedDocs(m map[string]*docmodel.Document) []*docmodel.Document {
	out := make([]*docmodel.Document, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *docmodel.Document) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func pick(m map[string]*docmodel.Document, ids sets.Set[string]) []*docmodel.Document {
	out := make([]*docmodel.Document, 0, ids.Len())
	for _, id := range sets.Sorted(ids) {
		if d := m[id]; d != nil {
			out = append(out, d)
		}
	}
	return out
}

func findByURL(m map[string]*docmodel.Document, suffix string) *docmodel.Document {
	if suffix == "" {
		return nil
	}
	var match *docmodel.Document
	for _, d := range m {
		if strings.HasSuffix(d.URL, suffix) && (match == nil || d.ID < match.ID) {
			match = d
		}
	}
	return match
}
