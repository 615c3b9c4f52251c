package vcs

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/wikiexport/internal/config"
	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/logfields"
)

// Repo stages output changes in a git worktree rooted at the output directory.
// It is safe for concurrent use by the corpora of one run.
type Repo struct {
	mu     sync.Mutex
	root   string
	repo   *git.Repository
	wt     *git.Worktree
	author string
	email  string
	staged int
}

// Open opens the repository at root, initializing it when missing.
func Open(root string, cfg config.VCSConfig) (*Repo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.VCSError("could not resolve output directory").WithCause(err).
			WithContext("path", root).Build()
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.FileSystemError("could not create output directory").WithCause(err).
			WithContext("path", abs).Build()
	}
	repository, err := git.PlainOpen(abs)
	if stderrors.Is(err, git.ErrRepositoryNotExists) {
		slog.Info("Initializing output repository", logfields.Path(abs))
		repository, err = git.PlainInit(abs, false)
	}
	if err != nil {
		return nil, errors.VCSError("could not open output repository").WithCause(err).
			WithContext("path", abs).Build()
	}
	wt, err := repository.Worktree()
	if err != nil {
		return nil, errors.VCSError("output repository has no worktree").WithCause(err).
			WithContext("path", abs).Build()
	}
	return &Repo{root: abs, repo: repository, wt: wt, author: cfg.Author, email: cfg.Email}, nil
}

// Root returns the absolute worktree root.
func (r *Repo) Root() string { return r.root }

// Add stages a written file. path may be absolute or relative to the root.
func (r *Repo) Add(path string) error {
	rel, err := r.relative(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.wt.Add(rel); err != nil {
		return errors.VCSError("failed to stage file").WithCause(err).WithContext("path", rel).Build()
	}
	r.staged++
	return nil
}

// Remove stages the removal of a file. Files that were never tracked are
// ignored.
func (r *Repo) Remove(path string) error {
	rel, err := r.relative(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.wt.Remove(rel); err != nil {
		if stderrors.Is(err, index.ErrEntryNotFound) {
			return nil
		}
		return errors.VCSError("failed to stage removal").WithCause(err).WithContext("path", rel).Build()
	}
	r.staged++
	return nil
}

// Commit records the staged changes and returns the new commit hash. It
// returns an empty hash when the worktree is clean.
func (r *Repo) Commit(message string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, err := r.wt.Status()
	if err != nil {
		return "", errors.VCSError("failed to read worktree status").WithCause(err).Build()
	}
	if !hasStaged(status) {
		slog.Debug("Nothing to commit", logfields.Path(r.root))
		r.staged = 0
		return "", nil
	}
	hash, err := r.wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: r.author, Email: r.email, When: time.Now()},
	})
	if err != nil {
		return "", errors.VCSError("failed to commit output changes").WithCause(err).Build()
	}
	slog.Info("Committed output changes",
		slog.String("commit", hash.String()[:8]),
		logfields.Count(r.staged),
		logfields.Path(r.root))
	r.staged = 0
	return hash.String(), nil
}

// Head returns the current HEAD commit hash, or "" before the first commit.
func (r *Repo) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if stderrors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", errors.VCSError("failed to resolve HEAD").WithCause(err).Build()
	}
	return ref.Hash().String(), nil
}

// relative maps path onto the worktree, rejecting paths outside it.
func (r *Repo) relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.PathError("file is outside the output repository").
			WithContext("path", path).WithContext("root", r.root).Build()
	}
	return filepath.ToSlash(rel), nil
}

func hasStaged(status git.Status) bool {
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			return true
		}
	}
	return false
}
