package eventstore

import (
	stderrors "errors"
	"testing"
	"time"
)

func mustEvent[E Event](t *testing.T, ev E, err error) E {
	t.Helper()
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return ev
}

func TestRunHistoryProjection_ApplyEvents(t *testing.T) {
	projection := NewRunHistoryProjection(newStore(t), 10)

	started, err := NewRunStarted(testRunID, []string{"CXF", "CAMEL"}, true)
	projection.Apply(mustEvent(t, started, err))
	summary, ok := projection.GetRun(testRunID)
	if !ok {
		t.Fatal("expected run to exist")
	}
	if summary.Status != "running" || !summary.Force || len(summary.Corpora) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if projection.GetActiveRun() == nil {
		t.Fatal("expected an active run")
	}

	changedA, err := NewArtifactChanged(testRunID, "CXF", "a.html", ChangeAdded, "1")
	projection.Apply(mustEvent(t, changedA, err))
	changedB, err := NewArtifactChanged(testRunID, "CXF", "b.html", ChangeAdded, "2")
	projection.Apply(mustEvent(t, changedB, err))
	changedC, err := NewArtifactChanged(testRunID, "CXF", "c.html", ChangeRemoved, "3")
	projection.Apply(mustEvent(t, changedC, err))
	failed, err := NewCorpusFailed(testRunID, "CAMEL", stderrors.New("login rejected"))
	projection.Apply(mustEvent(t, failed, err))
	completed, err := NewRunCompleted(testRunID, "fatal", time.Second, 2, 1)
	projection.Apply(mustEvent(t, completed, err))

	summary, _ = projection.GetRun(testRunID)
	if summary.Changes[ChangeAdded] != 2 || summary.Changes[ChangeRemoved] != 1 {
		t.Errorf("unexpected change counts %v", summary.Changes)
	}
	if summary.FailedCorpus["CAMEL"] != "login rejected" {
		t.Errorf("unexpected failed corpora %v", summary.FailedCorpus)
	}
	if summary.Status != "fatal" || summary.CompletedAt == nil || summary.Rendered != 2 {
		t.Errorf("unexpected completion %+v", summary)
	}
	if projection.GetActiveRun() != nil {
		t.Error("expected no active run")
	}
	if last := projection.GetLastCompletedRun(); last == nil || last.RunID != testRunID {
		t.Errorf("unexpected last run %+v", last)
	}
}

func TestRunHistoryProjection_RebuildFromJournal(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	journal := NewJournal(store, nil)

	for _, id := range []string{"run-a", "run-b", "run-c"} {
		started, err := NewRunStarted(id, []string{"CXF"}, false)
		if err := journal.Record(ctx, mustEvent(t, started, err)); err != nil {
			t.Fatal(err)
		}
		completed, err := NewRunCompleted(id, "success", time.Millisecond, 1, 0)
		if err := journal.Record(ctx, mustEvent(t, completed, err)); err != nil {
			t.Fatal(err)
		}
	}

	projection := NewRunHistoryProjection(store, 2)
	if err := projection.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	history := projection.GetHistory()
	if len(history) != 2 {
		t.Fatalf("expected bounded history of 2, got %d", len(history))
	}
	if history[0].RunID != "run-c" {
		t.Errorf("expected newest run first, got %s", history[0].RunID)
	}
	if _, ok := projection.GetRun("run-a"); ok {
		t.Error("pruned run still tracked")
	}
	if projection.LastSyncTime().IsZero() {
		t.Error("expected sync time")
	}
}

func TestNilJournalDiscards(t *testing.T) {
	var j *Journal
	started, err := NewRunStarted("x", nil, false)
	if err := j.Record(t.Context(), mustEvent(t, started, err)); err != nil {
		t.Fatalf("nil journal returned %v", err)
	}
	if j.Projection() != nil {
		t.Fatal("nil journal has a projection")
	}
}
