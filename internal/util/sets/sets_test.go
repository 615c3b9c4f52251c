package sets

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetBasics(t *testing.T) {
	s := New("b", "a")
	if !s.Add("c") {
		t.Fatal("expected c to be added")
	}
	if s.Add("a") {
		t.Fatal("a was already present")
	}
	if n := s.Union(New("c", "d")); n != 1 {
		t.Fatalf("Union added %d, want 1", n)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, Sorted(s)); diff != "" {
		t.Fatalf("Sorted mismatch (-want +got):\n%s", diff)
	}
	c := s.Clone()
	c.Delete("a")
	if !s.Has("a") || c.Has("a") {
		t.Fatal("Clone must not share storage")
	}
	var nilSet Set[int]
	if nilSet.Len() != 0 || nilSet.Has(1) {
		t.Fatal("nil set must behave as empty")
	}
}

func TestSetJSON(t *testing.T) {
	data, err := json.Marshal(New("xml", "java"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["java","xml"]` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var back Set[string]
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Has("java") || !back.Has("xml") || back.Len() != 2 {
		t.Fatalf("unexpected decoded set %v", back)
	}
	var absent Set[string]
	if err := json.Unmarshal([]byte("null"), &absent); err != nil || absent != nil {
		t.Fatalf("null should decode to nil set, got %v (%v)", absent, err)
	}
}
