package docmodel

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes pages from blog entries. It selects the directory rule.
type Kind string

const (
	KindPage Kind = "page"
	KindBlog Kind = "blog"
)

// Asset subdirectory suffixes, relative to a document's base name.
const (
	AssetData      = "data"
	AssetUserImage = "userimage"
	AssetThumbs    = "thumbs"
)

// Space describes the remote space a corpus mirrors.
type Space struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Document is a page or blog entry. Identity fields never change after
// construction; the loader replaces whole values on re-fetch.
type Document struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	URL   string `json:"url"`

	// Attachments maps attachment id to the local filename chosen for it.
	Attachments map[string]string `json:"attachments,omitempty"`

	// Page fields.
	ParentID string    `json:"parent_id,omitempty"`
	Space    string    `json:"space,omitempty"`
	Modified time.Time `json:"modified,omitzero"`
	Facts    Facts     `json:"facts,omitzero"`

	// Blog fields.
	Published time.Time `json:"published,omitzero"`
	Version   int       `json:"version,omitempty"`
}

// NewPage builds a page value. The modification time is truncated to whole
// seconds so comparisons against later listings are stable.
func NewPage(id, title, url, parentID, space string, modified time.Time) *Document {
	return &Document{
		ID:       id,
		Kind:     KindPage,
		Title:    title,
		URL:      url,
		ParentID: parentID,
		Space:    space,
		Modified: modified.Truncate(time.Second),
	}
}

// NewBlogEntry builds a blog entry value.
func NewBlogEntry(id, title, url string, published time.Time, version int) *Document {
	return &Document{
		ID:        id,
		Kind:      KindBlog,
		Title:     title,
		URL:       url,
		Published: published,
		Version:   version,
	}
}

// Filename returns the derived output filename.
func (d *Document) Filename() string {
	return DeriveFilename(d.ID, d.Title)
}

// Directory returns the output directory relative to the corpus root, with a
// trailing slash, or "" for the root itself. Blog entries live under their
// publication date.
func (d *Document) Directory() string {
	if d.Kind == KindBlog {
		return fmt.Sprintf("%04d/%02d/%02d/", d.Published.Year(), int(d.Published.Month()), d.Published.Day())
	}
	return ""
}

// Path returns Directory()+Filename().
func (d *Document) Path() string {
	return d.Directory() + d.Filename()
}

// Stem returns the filename without its extension.
func (d *Document) Stem() string {
	name := d.Filename()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// AssetDir returns the asset directory for suffix relative to the document's
// own directory, e.g. "getting-started.data".
func (d *Document) AssetDir(suffix string) string {
	return d.Stem() + "." + suffix
}

// AssetPath returns the asset directory for suffix relative to the corpus root.
func (d *Document) AssetPath(suffix string) string {
	return d.Directory() + d.AssetDir(suffix)
}

// SetAttachment records the local filename of an attachment. Later writers win.
func (d *Document) SetAttachment(id, filename string) {
	if d.Attachments == nil {
		d.Attachments = make(map[string]string)
	}
	d.Attachments[id] = filename
}

// Supersedes reports whether d should replace old as a content change. New
// identifiers always do; pages must be strictly newer, blog entries must carry
// a different version.
func (d *Document) Supersedes(old *Document) bool {
	if old == nil {
		return true
	}
	if d.Kind == KindBlog {
		return d.Version != old.Version
	}
	return d.Modified.After(old.Modified)
}

func (d *Document) String() string {
	return fmt.Sprintf("%s[id=%s,title=%s]", d.Kind, d.ID, d.Title)
}
