package docmodel

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikiexport/internal/util/sets"
)

func TestNewPageTruncatesModified(t *testing.T) {
	mod := time.Date(2024, 3, 5, 10, 11, 12, 987654321, time.UTC)
	p := NewPage("1", "Home", "http://wiki/display/CXF/Home", "", "CXF", mod)

	assert.Equal(t, time.Date(2024, 3, 5, 10, 11, 12, 0, time.UTC), p.Modified)
	assert.Equal(t, KindPage, p.Kind)
	assert.Equal(t, "", p.Directory())
	assert.Equal(t, "home.html", p.Path())
	assert.Equal(t, "home.data", p.AssetDir(AssetData))
}

func TestBlogEntryDirectory(t *testing.T) {
	b := NewBlogEntry("b1", "Release 1.0 Out", "http://wiki/b1", time.Date(2024, 1, 7, 8, 0, 0, 0, time.UTC), 3)

	assert.Equal(t, "2024/01/07/", b.Directory())
	assert.Equal(t, "2024/01/07/release-1-0-out.html", b.Path())
	assert.Equal(t, "2024/01/07/release-1-0-out.thumbs", b.AssetPath(AssetThumbs))
}

func TestSupersedes(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	old := NewPage("1", "A", "", "", "S", base)

	assert.True(t, NewPage("1", "A", "", "", "S", base).Supersedes(nil), "new ids always supersede")
	assert.False(t, NewPage("1", "A", "", "", "S", base).Supersedes(old), "equal time is unchanged")
	assert.False(t, NewPage("1", "A", "", "", "S", base.Add(-time.Hour)).Supersedes(old), "older is unchanged")
	assert.False(t, NewPage("1", "A", "", "", "S", base.Add(300*time.Millisecond)).Supersedes(old), "sub-second differences are discarded")
	assert.True(t, NewPage("1", "A", "", "", "S", base.Add(time.Second)).Supersedes(old))

	blog := NewBlogEntry("b", "B", "", base, 2)
	assert.True(t, NewBlogEntry("b", "B", "", base, 3).Supersedes(blog))
	assert.True(t, NewBlogEntry("b", "B", "", base, 1).Supersedes(blog), "any version change counts")
	assert.False(t, NewBlogEntry("b", "B", "", base, 2).Supersedes(blog))
}

func TestSetAttachmentLaterWins(t *testing.T) {
	p := NewPage("1", "A", "", "", "S", time.Time{})
	p.SetAttachment("att1", "diagram.png")
	p.SetAttachment("att2", "diagram.png")
	p.SetAttachment("att1", "diagram-v2.png")

	assert.Equal(t, map[string]string{"att1": "diagram-v2.png", "att2": "diagram.png"}, p.Attachments)
}

func TestDocumentJSONKeepsFacts(t *testing.T) {
	p := NewPage("1", "Home", "u", "0", "CXF", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	p.Facts = Facts{
		ChildrenOf: map[string]int{"Home": 2},
		Includes:   sets.New("Nav"),
		HasBlog:    true,
		CodeTypes:  sets.New("xml", "java"),
	}
	p.SetAttachment("a", "x.png")

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(p, &back); diff != "" {
		t.Fatalf("document changed (-want +got):\n%s", diff)
	}
}
