package docmodel

import (
	"strings"
	"time"
)

// Dialect names the markup representation of a page payload.
type Dialect string

const (
	// DialectLegacy is inline wiki markup with {macro:params} tags.
	DialectLegacy Dialect = "wiki"
	// DialectStructured is the XHTML storage format with ac:* macro elements.
	DialectStructured Dialect = "storage"
)

// Payload is the raw full-page data returned by the content service.
type Payload struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	ParentID string    `json:"parent_id"`
	Space    string    `json:"space"`
	Modified time.Time `json:"modified"`
	Dialect  Dialect   `json:"dialect"`
	Content  string    `json:"content"`
}

// DetectDialect returns the payload's declared dialect, sniffing the content
// when none was declared.
func (p Payload) DetectDialect() Dialect {
	switch p.Dialect {
	case DialectLegacy, DialectStructured:
		return p.Dialect
	}
	if strings.Contains(p.Content, "<ac:") {
		return DialectStructured
	}
	return DialectLegacy
}

// ParsePage builds a page and its structural facts. The returned problems are
// content warnings; the page is always usable.
func ParsePage(p Payload) (*Document, []error) {
	doc := NewPage(p.ID, p.Title, p.URL, p.ParentID, p.Space, p.Modified)

	var (
		facts    Facts
		problems []error
	)
	switch p.DetectDialect() {
	case DialectStructured:
		facts, problems = ExtractStructuredFacts(p.Title, p.Content)
	default:
		facts, problems = ExtractLegacyFacts(p.Title, p.Content)
	}
	doc.Facts = facts
	return doc, problems
}
