package dag

import (
	"testing"

	"github.com/untoldecay/bones/internal/event"
)

func mkEvent(hash string, parents ...string) *event.Event {
	return &event.Event{
		WallTSUs:  1,
		Agent:     "alice",
		ITC:       "itc:AQA",
		EventType: event.ItemCreate,
		ItemID:    "bn-abc",
		Data:      map[string]any{"title": "t", "kind": "task"},
		Parents:   parents,
		EventHash: hash,
	}
}

func TestFindLCASelf(t *testing.T) {
	idx := BuildIndex([]*event.Event{mkEvent("a")})
	got, ok := FindLCA(idx, "a", "a")
	if !ok || got != "a" {
		t.Fatalf("lca(a,a) = %q, %v; want a, true", got, ok)
	}
}

func TestFindLCAAncestor(t *testing.T) {
	events := []*event.Event{
		mkEvent("root"),
		mkEvent("b", "root"),
	}
	idx := BuildIndex(events)
	got, ok := FindLCA(idx, "root", "b")
	if !ok || got != "root" {
		t.Fatalf("lca(root,b) = %q, %v; want root, true", got, ok)
	}
}

func TestFindLCADiverge(t *testing.T) {
	events := []*event.Event{
		mkEvent("root"),
		mkEvent("left", "root"),
		mkEvent("right", "root"),
	}
	idx := BuildIndex(events)
	got, ok := FindLCA(idx, "left", "right")
	if !ok || got != "root" {
		t.Fatalf("lca(left,right) = %q, %v; want root, true", got, ok)
	}
}

func TestVerifyChainDetectsUnknownParent(t *testing.T) {
	e := mkEvent("b", "missing")
	h, err := e.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	e.EventHash = h
	err = VerifyChain([]*event.Event{e})
	if err == nil {
		t.Fatal("expected unknown_parent error")
	}
}

func TestVerifyChainDetectsHashMismatch(t *testing.T) {
	e := mkEvent("deadbeef")
	err := VerifyChain([]*event.Event{e})
	if err == nil {
		t.Fatal("expected hash_mismatch error")
	}
}

func TestFindAllLCAsCrissCross(t *testing.T) {
	// root -> a1, a2 (both children of root)
	// left = merge(a1,a2), right = merge(a1,a2) -- criss-cross: both a1,a2
	// are common ancestors of left/right but neither is "lowest" once both
	// appear in the merge.
	events := []*event.Event{
		mkEvent("root"),
		mkEvent("a1", "root"),
		mkEvent("a2", "root"),
		mkEvent("left", "a1", "a2"),
		mkEvent("right", "a1", "a2"),
	}
	idx := BuildIndex(events)
	all := FindAllLCAs(idx, "left", "right")
	if len(all) != 2 {
		t.Fatalf("expected 2 criss-cross LCAs, got %v", all)
	}
}
