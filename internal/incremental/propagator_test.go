package incremental

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"git.home.luguber.info/inful/wikiexport/internal/corpus"
	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/util/sets"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type pageSpec struct {
	id, title, parent string
	facts             docmodel.Facts
}

// newStore loads pages with an empty changed set.
func newStore(specs ...pageSpec) *corpus.Store {
	s := corpus.New(docmodel.Space{Key: "CXF"})
	for _, sp := range specs {
		p := docmodel.NewPage(sp.id, sp.title, "", sp.parent, "CXF", t0)
		p.Facts = sp.facts
		s.MergePage(p)
	}
	s.ClearChanged()
	return s
}

func changedTitles(s *corpus.Store) []string {
	titles := sets.New[string]()
	for _, p := range s.ChangedPages() {
		titles.Add(p.Title)
	}
	return sets.Sorted(titles)
}

func TestChildrenPropagationRespectsDepth(t *testing.T) {
	tests := []struct {
		name  string
		depth int
		want  []string
	}{
		{"grandchild within depth", 2, []string{"B", "X"}},
		{"grandchild beyond depth", 1, []string{"B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(
				pageSpec{id: "h", title: "Home"},
				pageSpec{id: "a", title: "A", parent: "h"},
				pageSpec{id: "b", title: "B", parent: "a"},
				pageSpec{id: "x", title: "X", facts: docmodel.Facts{ChildrenOf: map[string]int{"Home": tt.depth}}},
			)
			s.MarkPage("b")

			New(s, nil).Propagate(Removed{})

			if diff := cmp.Diff(tt.want, changedTitles(s)); diff != "" {
				t.Fatalf("changed set (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIncludeCycleTerminates(t *testing.T) {
	for _, seed := range []string{"a", "b"} {
		s := newStore(
			pageSpec{id: "a", title: "A", facts: docmodel.Facts{Includes: sets.New("B")}},
			pageSpec{id: "b", title: "B", facts: docmodel.Facts{Includes: sets.New("A")}},
			pageSpec{id: "c", title: "C"},
		)
		s.MarkPage(seed)

		res := New(s, nil).Propagate(Removed{})

		if diff := cmp.Diff([]string{"A", "B"}, changedTitles(s)); diff != "" {
			t.Fatalf("seed %s: changed set (-want +got):\n%s", seed, diff)
		}
		if res.Added[RuleIncludes] != 1 {
			t.Fatalf("seed %s: includes added %d, want 1", seed, res.Added[RuleIncludes])
		}
	}
}

func TestIncludeChainReachesFixedPoint(t *testing.T) {
	s := newStore(
		pageSpec{id: "1", title: "Snippet"},
		pageSpec{id: "2", title: "Section", facts: docmodel.Facts{Includes: sets.New("Snippet")}},
		pageSpec{id: "3", title: "Book", facts: docmodel.Facts{Includes: sets.New("Section")}},
		pageSpec{id: "4", title: "Overview", parent: "3"},
		pageSpec{id: "5", title: "Toc", facts: docmodel.Facts{ChildrenOf: map[string]int{"Book": 1}, Includes: sets.New("Other")}},
	)
	s.MarkPage("1")

	New(s, nil).Propagate(Removed{})

	if diff := cmp.Diff([]string{"Book", "Section", "Snippet"}, changedTitles(s)); diff != "" {
		t.Fatalf("changed set (-want +got):\n%s", diff)
	}
}

func TestPropagatedPagesFeedChildrenRule(t *testing.T) {
	s := newStore(
		pageSpec{id: "p", title: "Parent"},
		pageSpec{id: "c", title: "Child", parent: "p", facts: docmodel.Facts{Includes: sets.New("Shared")}},
		pageSpec{id: "s", title: "Shared"},
		pageSpec{id: "l", title: "Lister", facts: docmodel.Facts{ChildrenOf: map[string]int{"Parent": 1}}},
	)
	s.MarkPage("s")

	New(s, nil).Propagate(Removed{})

	if diff := cmp.Diff([]string{"Child", "Lister", "Shared"}, changedTitles(s)); diff != "" {
		t.Fatalf("changed set (-want +got):\n%s", diff)
	}
}

func TestBlogChangeInvalidatesOnlyAggregators(t *testing.T) {
	s := newStore(
		pageSpec{id: "1", title: "News", facts: docmodel.Facts{HasBlog: true}},
		pageSpec{id: "2", title: "Home", facts: docmodel.Facts{HasBlog: true}},
		pageSpec{id: "3", title: "FAQ"},
	)
	s.MergeBlog(docmodel.NewBlogEntry("b1", "Release", "", t0, 1))
	s.ClearChanged()
	s.MergeBlog(docmodel.NewBlogEntry("b1", "Release", "", t0, 2))

	res := New(s, nil).Propagate(Removed{})

	if diff := cmp.Diff([]string{"Home", "News"}, changedTitles(s)); diff != "" {
		t.Fatalf("changed set (-want +got):\n%s", diff)
	}
	if res.Added[RuleBlog] != 2 {
		t.Fatalf("blog rule added %d, want 2", res.Added[RuleBlog])
	}
}

func TestNoBlogChangeLeavesAggregatorsAlone(t *testing.T) {
	s := newStore(pageSpec{id: "1", title: "News", facts: docmodel.Facts{HasBlog: true}})

	res := New(s, nil).Propagate(Removed{})

	if res.Total() != 0 || s.HasChanges() {
		t.Fatalf("expected no changes, got %v", changedTitles(s))
	}
}

func TestGlobalPageInvalidatesEverything(t *testing.T) {
	s := newStore(
		pageSpec{id: "1", title: "Navigation"},
		pageSpec{id: "2", title: "Home"},
		pageSpec{id: "3", title: "FAQ"},
	)
	s.MarkPage("1")

	res := New(s, []string{"Navigation", "Index"}).Propagate(Removed{})

	if diff := cmp.Diff([]string{"FAQ", "Home", "Navigation"}, changedTitles(s)); diff != "" {
		t.Fatalf("changed set (-want +got):\n%s", diff)
	}
	if res.Added[RuleGlobal] != 2 {
		t.Fatalf("global rule added %d, want 2", res.Added[RuleGlobal])
	}
}

func TestGlobalPageReachedByPropagation(t *testing.T) {
	s := newStore(
		pageSpec{id: "1", title: "Menu"},
		pageSpec{id: "2", title: "Navigation", facts: docmodel.Facts{Includes: sets.New("Menu")}},
		pageSpec{id: "3", title: "Home"},
	)
	s.MarkPage("1")

	New(s, []string{"Navigation"}).Propagate(Removed{})

	if got := len(changedTitles(s)); got != 3 {
		t.Fatalf("changed %d pages, want all 3", got)
	}
}

func TestRemovedPageTriggersDependents(t *testing.T) {
	s := newStore(
		pageSpec{id: "h", title: "Home", facts: docmodel.Facts{ChildrenOf: map[string]int{"Home": 1}}},
		pageSpec{id: "i", title: "Includer", facts: docmodel.Facts{Includes: sets.New("Gone")}},
		pageSpec{id: "o", title: "Other"},
	)
	gone := docmodel.NewPage("g", "Gone", "", "h", "CXF", t0)

	New(s, nil).Propagate(Removed{Pages: []*docmodel.Document{gone}})

	if diff := cmp.Diff([]string{"Home", "Includer"}, changedTitles(s)); diff != "" {
		t.Fatalf("changed set (-want +got):\n%s", diff)
	}
}

func TestRemovedBlogTriggersAggregators(t *testing.T) {
	s := newStore(pageSpec{id: "1", title: "News", facts: docmodel.Facts{HasBlog: true}})

	New(s, nil).Propagate(Removed{Blog: []*docmodel.Document{docmodel.NewBlogEntry("b", "Old", "", t0, 1)}})

	if !s.ChangedPageIDs().Has("1") {
		t.Fatal("aggregator not invalidated by deleted blog entry")
	}
}

func TestFixedPointIsStable(t *testing.T) {
	s := newStore(
		pageSpec{id: "a", title: "A", facts: docmodel.Facts{Includes: sets.New("B")}},
		pageSpec{id: "b", title: "B", parent: "c"},
		pageSpec{id: "c", title: "C", facts: docmodel.Facts{ChildrenOf: map[string]int{"C": 1}}},
	)
	s.MarkPage("b")
	p := New(s, nil)
	p.Propagate(Removed{})
	first := changedTitles(s)

	res := p.Propagate(Removed{})

	if res.Total() != 0 {
		t.Fatalf("second pass added %d documents", res.Total())
	}
	if diff := cmp.Diff(first, changedTitles(s)); diff != "" {
		t.Fatalf("changed set moved (-first +second):\n%s", diff)
	}
}
