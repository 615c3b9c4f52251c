package export

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
	"git.home.luguber.info/inful/wikiexport/internal/incremental"
	"git.home.luguber.info/inful/wikiexport/internal/metrics"
	"git.home.luguber.info/inful/wikiexport/internal/notify"
)

// CorpusResult summarizes one corpus of a run.
type CorpusResult struct {
	Space string
	Dir   string
	// Err is set when the corpus aborted before rendering.
	Err error
	// Changed counts documents new, modified or forced before propagation.
	Changed      int
	Rendered     int
	RenderFailed int
	FetchFailed  int
	Propagated   incremental.Result
	// Errors aggregates per-document render failures.
	Errors   *multierror.Error
	Added    []string
	Modified []string
	Removed  []string
}

// Result summarizes a run over every configured corpus.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Commit    string
	Corpora   []*CorpusResult
}

// Status classifies the run: fatal when a corpus aborted, warning when any
// document failed, success otherwise.
func (r *Result) Status() metrics.ResultLabel {
	status := metrics.ResultSuccess
	for _, c := range r.Corpora {
		if c.Err != nil {
			return metrics.ResultFatal
		}
		if c.RenderFailed > 0 || c.FetchFailed > 0 {
			status = metrics.ResultWarning
		}
	}
	return status
}

// Rendered returns the number of documents rendered across corpora.
func (r *Result) Rendered() int {
	n := 0
	for _, c := range r.Corpora {
		n += c.Rendered
	}
	return n
}

// Failed returns the number of documents that could not be fetched or
// rendered across corpora.
func (r *Result) Failed() int {
	n := 0
	for _, c := range r.Corpora {
		n += c.RenderFailed + c.FetchFailed
	}
	return n
}

// Changes returns the number of output files added, modified and removed.
func (r *Result) Changes() (added, modified, removed int) {
	for _, c := range r.Corpora {
		added += len(c.Added)
		modified += len(c.Modified)
		removed += len(c.Removed)
	}
	return added, modified, removed
}

// InitErr aggregates the initialization failures of the run, the only
// failures that make the process exit non-zero.
func (r *Result) InitErr() error {
	var merr *multierror.Error
	for _, c := range r.Corpora {
		if c.Err != nil && errors.IsInitialization(c.Err) {
			merr = multierror.Append(merr, c.Err)
		}
	}
	return merr.ErrorOrNil()
}

// Summary converts the result into the published notification.
func (r *Result) Summary() *notify.Summary {
	s := &notify.Summary{
		RunID:      r.RunID,
		Status:     string(r.Status()),
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
		Commit:     r.Commit,
	}
	for _, c := range r.Corpora {
		cs := notify.CorpusSummary{
			Space:    c.Space,
			Dir:      c.Dir,
			Added:    c.Added,
			Modified: c.Modified,
			Removed:  c.Removed,
			Failed:   c.RenderFailed + c.FetchFailed,
		}
		if c.Err != nil {
			cs.Error = c.Err.Error()
		}
		s.Corpora = append(s.Corpora, cs)
	}
	return s
}
