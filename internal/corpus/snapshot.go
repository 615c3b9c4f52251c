package corpus

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"git.home.luguber.info/inful/wikiexport/internal/docmodel"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
)

// snapshotVersion is bumped whenever the document shape changes
// incompatibly; older snapshots are discarded.
const snapshotVersion = 1

type snapshot struct {
	Version int                           `json:"version"`
	Saved   time.Time                     `json:"saved"`
	Space   docmodel.Space                `json:"space"`
	Pages   map[string]*docmodel.Document `json:"pages"`
	Blog    map[string]*docmodel.Document `json:"blog"`
}

// Save writes the document maps to path atomically. The changed sets are not
// persisted.
func (s *Store) Save(fs afero.Fs, path string) error {
	s.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		Saved:   time.Now().UTC(),
		Space:   s.space,
		Pages:   s.pages,
		Blog:    s.blog,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return errors.InternalError("failed to marshal corpus snapshot").WithCause(err).Build()
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FileSystemError("failed to create snapshot directory").
			WithCause(err).WithContext("path", path).Build()
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return errors.FileSystemError("failed to write snapshot").
			WithCause(err).WithContext("path", tmp).Build()
	}
	if err := fs.Rename(tmp, path); err != nil {
		return errors.FileSystemError("failed to replace snapshot").
			WithCause(err).WithContext("path", path).Build()
	}
	return nil
}

// Load restores a store from path. A missing snapshot yields an empty store;
// an unreadable or incompatible one is discarded with a warning so the next
// run rebuilds from scratch.
func Load(fs afero.Fs, path string, space docmodel.Space) *Store {
	st := New(space)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Discarding unreadable corpus snapshot", logfields.Path(path), logfields.Error(err))
		}
		return st
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("Discarding corrupt corpus snapshot", logfields.Path(path), logfields.Error(err))
		return st
	}
	if snap.Version != snapshotVersion {
		slog.Warn("Discarding corpus snapshot with unknown version",
			logfields.Path(path), slog.Int("version", snap.Version))
		return st
	}
	if space.Key == "" {
		st.space = snap.Space
	}
	for id, p := range snap.Pages {
		if p == nil {
			continue
		}
		st.pages[id] = p
		st.byTitle[p.Title] = id
	}
	for id, b := range snap.Blog {
		if b != nil {
			st.blog[id] = b
		}
	}
	return st
}
