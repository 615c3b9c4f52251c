package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/eventstore"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/gateway"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
	"git.home.luguber.info/inful/wikiexport/internal/rewrite"
)

// VCS stages output changes for version control.
type VCS interface {
	Add(path string) error
	Remove(path string) error
	Commit(message string) (string, error)
}

// changeLog collects the output changes of one corpus and forwards each to
// the journal and the version-control stage.
type changeLog struct {
	runID   string
	corpus  string
	root    string
	journal *eventstore.Journal
	vcs     VCS
	logger  *slog.Logger

	mu       sync.Mutex
	added    []string
	modified []string
	removed  []string
}

func (c *changeLog) record(ctx context.Context, abs string, change eventstore.Change, docID string) {
	rel, err := filepath.Rel(c.root, abs)
	if err != nil {
		rel = abs
	}
	rel = filepath.ToSlash(rel)

	c.mu.Lock()
	switch change {
	case eventstore.ChangeAdded:
		c.added = append(c.added, rel)
	case eventstore.ChangeModified:
		c.modified = append(c.modified, rel)
	case eventstore.ChangeRemoved:
		c.removed = append(c.removed, rel)
	}
	c.mu.Unlock()

	if ev, err := eventstore.NewArtifactChanged(c.runID, c.corpus, rel, change, docID); err == nil {
		if err := c.journal.Record(ctx, ev); err != nil {
			c.logger.Warn("Failed to journal output change", logfields.Corpus(c.corpus), logfields.Path(rel), logfields.Error(err))
		}
	}
	if c.vcs == nil {
		return
	}
	var vcsErr error
	if change == eventstore.ChangeRemoved {
		vcsErr = c.vcs.Remove(abs)
	} else {
		vcsErr = c.vcs.Add(abs)
	}
	if vcsErr != nil {
		c.logger.Warn("Failed to stage output change", logfields.Corpus(c.corpus), logfields.Path(rel), logfields.Error(vcsErr))
	}
}

// snapshot returns sorted copies of the collected paths.
func (c *changeLog) snapshot() (added, modified, removed []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sorted(c.added), sorted(c.modified), sorted(c.removed)
}

func sorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

// output writes and removes the artifacts of one corpus.
type output struct {
	fs     afero.Fs
	dir    string
	log    *changeLog
	logger *slog.Logger
}

// write stores data at rel below the corpus directory. Identical content is
// left untouched and reported as no change.
func (o *output) write(ctx context.Context, rel, docID string, data []byte) (bool, error) {
	abs := filepath.Join(o.dir, filepath.FromSlash(rel))
	change := eventstore.ChangeAdded
	if old, err := afero.ReadFile(o.fs, abs); err == nil {
		if bytes.Equal(old, data) {
			return false, nil
		}
		change = eventstore.ChangeModified
	}
	if err := o.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return false, errors.FileSystemError("failed to create output directory").
			WithCause(err).WithContext("path", filepath.Dir(abs)).Build()
	}
	if err := afero.WriteFile(o.fs, abs, data, 0o644); err != nil {
		return false, errors.FileSystemError("failed to write output file").
			WithCause(err).WithContext("path", abs).Build()
	}
	o.log.record(ctx, abs, change, docID)
	return true, nil
}

// RemoveArtifacts deletes the page file of doc and its asset directories.
func (o *output) RemoveArtifacts(ctx context.Context, doc *docmodel.Document) error {
	if err := o.remove(ctx, filepath.Join(o.dir, filepath.FromSlash(doc.Path())), doc.ID); err != nil {
		return err
	}
	for _, kind := range []string{docmodel.AssetData, docmodel.AssetUserImage, docmodel.AssetThumbs} {
		dir := filepath.Join(o.dir, filepath.FromSlash(doc.AssetPath(kind)))
		var files []string
		err := afero.Walk(o.fs, dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.FileSystemError("failed to list asset directory").
				WithCause(err).WithContext("path", dir).Build()
		}
		for _, f := range files {
			if err := o.remove(ctx, f, doc.ID); err != nil {
				return err
			}
		}
		if err := o.fs.RemoveAll(dir); err != nil {
			return errors.FileSystemError("failed to remove asset directory").
				WithCause(err).WithContext("path", dir).Build()
		}
	}
	return nil
}

func (o *output) remove(ctx context.Context, abs, docID string) error {
	if err := o.fs.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.FileSystemError("failed to remove output file").
			WithCause(err).WithContext("path", abs).Build()
	}
	o.log.record(ctx, abs, eventstore.ChangeRemoved, docID)
	return nil
}

// assetCache downloads binary assets at most once per run and writes them
// next to the document that references them.
type assetCache struct {
	gw     gateway.Gateway
	out    *output
	mu     sync.Mutex
	loaded map[string]error
}

func newAssetCache(gw gateway.Gateway, out *output) *assetCache {
	return &assetCache{gw: gw, out: out, loaded: map[string]error{}}
}

// LoadAsset implements rewrite.AssetLoader.
func (a *assetCache) LoadAsset(ctx context.Context, doc *docmodel.Document, href, kind string, auth bool) (string, error) {
	name := rewrite.AssetName(href)
	if name == "" {
		return "", errors.ContentError("asset reference has no file name").WithContext("href", href).Build()
	}
	rel := doc.AssetPath(kind) + "/" + name

	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.loaded[rel]; ok {
		return name, err
	}
	err := a.fetch(ctx, href, auth, doc.ID, rel)
	a.loaded[rel] = err
	return name, err
}

func (a *assetCache) fetch(ctx context.Context, href string, auth bool, docID string, rels ...string) error {
	rc, err := a.gw.Download(ctx, href, auth)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return errors.NetworkError("failed to read asset").WithCause(err).WithContext("href", href).Build()
	}
	for _, rel := range rels {
		if _, err := a.out.write(ctx, rel, docID, data); err != nil {
			return err
		}
	}
	return nil
}

// attachments downloads every attachment of doc into its data directory.
// Names containing spaces get a second copy with hyphens, which is what
// rewritten image references point at.
func (a *assetCache) attachments(ctx context.Context, doc *docmodel.Document) int {
	atts, err := a.gw.ListAttachments(ctx, doc.ID)
	if err != nil {
		a.out.logger.Warn("Failed to list attachments", logfields.Title(doc.Title), logfields.Error(err))
		return 0
	}
	n := 0
	for _, att := range atts {
		name := att.Filename
		if name == "" {
			name = rewrite.AssetName(att.DownloadURL)
		}
		if name == "" {
			a.out.logger.Warn("Attachment has no file name", logfields.Title(doc.Title), slog.String("attachment_id", att.ID))
			continue
		}
		doc.SetAttachment(att.ID, name)
		rels := []string{doc.AssetPath(docmodel.AssetData) + "/" + name}
		if strings.Contains(name, " ") {
			rels = append(rels, doc.AssetPath(docmodel.AssetData)+"/"+strings.ReplaceAll(name, " ", "-"))
		}
		if err := a.fetch(ctx, att.DownloadURL, true, doc.ID, rels...); err != nil {
			a.out.logger.Warn("Failed to download attachment", logfields.Title(doc.Title),
				logfields.URL(att.DownloadURL), logfields.Error(err))
			continue
		}
		n++
	}
	return n
}
