package unionmerge

import (
	"testing"

	"github.com/untoldecay/bones/internal/event"
)

func mkEvent(ts int64, agent, hash string) *event.Event {
	return &event.Event{
		WallTSUs:  ts,
		Agent:     agent,
		ITC:       "itc:AQA",
		EventType: event.ItemCreate,
		ItemID:    "bn-abc",
		Data:      map[string]any{"title": "t", "kind": "task"},
		EventHash: hash,
	}
}

func TestMergeDedupAndSortOrder(t *testing.T) {
	e1 := mkEvent(1, "alice", "blake3:e1")
	e2 := mkEvent(2, "alice", "blake3:e2")
	e3 := mkEvent(3, "bob", "blake3:e3")

	ours := []*event.Event{e1, e2}
	theirs := []*event.Event{e2, e3}

	result := Merge(nil, ours, theirs)
	if len(result.Events) != 3 {
		t.Fatalf("expected 3 merged events, got %d", len(result.Events))
	}
	if result.DuplicatesSkipped != 1 {
		t.Fatalf("expected 1 duplicate skipped, got %d", result.DuplicatesSkipped)
	}
	want := []string{"blake3:e1", "blake3:e2", "blake3:e3"}
	for i, w := range want {
		if result.Events[i].EventHash != w {
			t.Fatalf("position %d: got %s want %s", i, result.Events[i].EventHash, w)
		}
	}
}

func TestMergeCommutativeInSides(t *testing.T) {
	e1 := mkEvent(1, "alice", "blake3:e1")
	e2 := mkEvent(2, "bob", "blake3:e2")

	a := Merge(nil, []*event.Event{e1}, []*event.Event{e2})
	b := Merge(nil, []*event.Event{e2}, []*event.Event{e1})

	if len(a.Events) != len(b.Events) {
		t.Fatalf("expected same length, got %d vs %d", len(a.Events), len(b.Events))
	}
	for i := range a.Events {
		if a.Events[i].EventHash != b.Events[i].EventHash {
			t.Fatalf("merge not commutative at %d: %s vs %s", i, a.Events[i].EventHash, b.Events[i].EventHash)
		}
	}
}

func TestMergeIdempotentUnderRemerge(t *testing.T) {
	e1 := mkEvent(1, "alice", "blake3:e1")
	e2 := mkEvent(2, "bob", "blake3:e2")

	first := Merge(nil, []*event.Event{e1}, []*event.Event{e2})
	again := Merge(nil, first.Events, first.Events)

	if len(again.Events) != len(first.Events) {
		t.Fatalf("re-merge changed event count: %d vs %d", len(again.Events), len(first.Events))
	}
}
