package eventstore

import (
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

// Event type names.
const (
	TypeRunStarted      = "RunStarted"
	TypeArtifactChanged = "ArtifactChanged"
	TypeCorpusFailed    = "CorpusFailed"
	TypeRunCompleted    = "RunCompleted"
)

// Change classifies what happened to an output artifact.
type Change string

const (
	ChangeAdded    Change = "added"
	ChangeModified Change = "modified"
	ChangeRemoved  Change = "removed"
)

// RunStarted is emitted when an export run begins.
type RunStarted struct {
	BaseEvent
	Corpora []string `json:"corpora"`
	Force   bool     `json:"force"`
}

// NewRunStarted creates a RunStarted event.
func NewRunStarted(runID string, corpora []string, force bool) (*RunStarted, error) {
	ev := &RunStarted{Corpora: corpora, Force: force}
	return ev, ev.init(runID, TypeRunStarted, ev)
}

// ArtifactChanged is emitted for every file written to or removed from the
// output tree.
type ArtifactChanged struct {
	BaseEvent
	Corpus string `json:"corpus"`
	Path   string `json:"path"`
	Change Change `json:"change"`
	DocID  string `json:"doc_id,omitempty"`
}

// NewArtifactChanged creates an ArtifactChanged event.
func NewArtifactChanged(runID, corpus, path string, change Change, docID string) (*ArtifactChanged, error) {
	ev := &ArtifactChanged{Corpus: corpus, Path: path, Change: change, DocID: docID}
	return ev, ev.init(runID, TypeArtifactChanged, ev)
}

// CorpusFailed is emitted when a corpus aborts before rendering.
type CorpusFailed struct {
	BaseEvent
	Corpus string `json:"corpus"`
	Error  string `json:"error"`
}

// NewCorpusFailed creates a CorpusFailed event.
func NewCorpusFailed(runID, corpus string, cause error) (*CorpusFailed, error) {
	ev := &CorpusFailed{Corpus: corpus, Error: cause.Error()}
	return ev, ev.init(runID, TypeCorpusFailed, ev)
}

// RunCompleted is emitted when every corpus of a run has finished.
type RunCompleted struct {
	BaseEvent
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Rendered   int    `json:"rendered"`
	Failed     int    `json:"failed"`
}

// NewRunCompleted creates a RunCompleted event.
func NewRunCompleted(runID, status string, duration time.Duration, rendered, failed int) (*RunCompleted, error) {
	ev := &RunCompleted{Status: status, DurationMS: duration.Milliseconds(), Rendered: rendered, Failed: failed}
	return ev, ev.init(runID, TypeRunCompleted, ev)
}

// init fills the base fields, marshaling body as the payload.
func (e *BaseEvent) init(runID, eventType string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.WrapError(err, errors.CategoryEventStore, "failed to marshal event payload").
			WithContext("run_id", runID).WithContext("event_type", eventType).Build()
	}
	e.EventRunID = runID
	e.EventType = eventType
	e.EventTimestamp = time.Now()
	e.EventPayload = payload
	return nil
}
