package eventstore

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

const testRunID = "run-1"

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	payload := []byte(`{"test": "data"}`)

	if err := store.Append(ctx, testRunID, "TestEvent", payload, map[string]string{"key": "value"}); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}
	if err := store.Append(ctx, "other-run", "TestEvent", payload, nil); err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByRunID(ctx, testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.RunID() != testRunID || event.Type() != "TestEvent" {
		t.Errorf("unexpected event %s/%s", event.RunID(), event.Type())
	}
	if !bytes.Equal(event.Payload(), payload) {
		t.Errorf("expected payload %s, got %s", payload, event.Payload())
	}
	if event.Metadata()["key"] != "value" {
		t.Errorf("expected metadata key=value, got %v", event.Metadata())
	}
}

func TestEventStoreGetRange(t *testing.T) {
	store := newStore(t)
	ctx := t.Context()
	now := time.Now()

	for range 3 {
		if err := store.Append(ctx, testRunID, "Event", []byte("data"), nil); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	events, err := store.GetRange(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to get range: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].ID() <= events[i-1].ID() {
			t.Fatalf("events out of order: %d after %d", events[i].ID(), events[i-1].ID())
		}
	}

	none, err := store.GetRange(ctx, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("failed to get range: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no events in the future, got %d", len(none))
	}
}

func TestTypedEventPayloads(t *testing.T) {
	ev, err := NewArtifactChanged(testRunID, "CXF", "docs/faq.html", ChangeModified, "42")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(ev.Payload(), &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"corpus": "CXF", "path": "docs/faq.html", "change": "modified", "doc_id": "42"}
	if len(got) != len(want) {
		t.Fatalf("payload %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("payload[%s] = %v, want %v", k, got[k], v)
		}
	}
	if ev.Type() != TypeArtifactChanged || ev.RunID() != testRunID {
		t.Errorf("unexpected base fields %s/%s", ev.Type(), ev.RunID())
	}
}
