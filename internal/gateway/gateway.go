// Package gateway defines the content-service collaborator the exporter reads
// from, plus an HTTP implementation with retries and endpoint failover.
package gateway

import (
	"context"
	"io"
	"time"

	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
)

// PageSummary is one entry of a space's page listing.
type PageSummary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	ParentID string    `json:"parent_id"`
	Modified time.Time `json:"modified"`
}

// BlogSummary is one entry of a space's blog listing.
type BlogSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
}

// Attachment describes a file attached to a document.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
}

// Gateway fetches listings, page payloads, rendered bodies and binary assets.
// Every method may block on the network; implementations must be safe for
// concurrent use.
type Gateway interface {
	Space(ctx context.Context, key string) (docmodel.Space, error)
	ListPages(ctx context.Context, space string) ([]PageSummary, error)
	ListBlogEntries(ctx context.Context, space string) ([]BlogSummary, error)
	GetPage(ctx context.Context, id string) (docmodel.Payload, error)
	GetBlogVersion(ctx context.Context, id string) (int, error)
	// GetExportHTML returns the backend-rendered HTML fragment of a document.
	GetExportHTML(ctx context.Context, id string) (string, error)
	ListAttachments(ctx context.Context, id string) ([]Attachment, error)
	// Download streams a binary asset. href may be absolute or relative to the
	// live host; auth requests credentialed access.
	Download(ctx context.Context, href string, auth bool) (io.ReadCloser, error)
}
