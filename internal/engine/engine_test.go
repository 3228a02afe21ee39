package engine

import (
	"context"
	"testing"

	"github.com/untoldecay/bones/internal/config"
	"github.com/untoldecay/bones/internal/event"
	"github.com/untoldecay/bones/internal/itc"
	"github.com/untoldecay/bones/internal/store"
)

func setupEngine(t *testing.T) *Engine {
	t.Helper()
	if err := config.Initialize(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	e, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestAppendCreateThenGetItem(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	created, err := e.Append(ctx, Draft{
		Agent: "alice", EventType: event.ItemCreate, ItemID: "bn-abc123",
		Data: map[string]any{"title": "Hello", "kind": "task"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if created.EventHash == "" {
		t.Fatal("expected a computed event hash")
	}

	item, err := e.GetItem(ctx, "bn-abc123")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.Title != "Hello" || item.State != "open" {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestReplayLinesMatchesAppendedEvent(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	ev, err := e.Append(ctx, Draft{
		Agent: "alice", EventType: event.ItemCreate, ItemID: "bn-abc123",
		Data: map[string]any{"title": "Hello", "kind": "task"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	lines, err := e.ReplayLines()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 event line, got %d", len(lines))
	}
	if lines[0].Event.EventHash != ev.EventHash {
		t.Fatalf("replayed event hash mismatch: %s vs %s", lines[0].Event.EventHash, ev.EventHash)
	}
}

func TestIncrementalApplyAfterAppend(t *testing.T) {
	e := setupEngine(t)
	ctx := context.Background()

	if _, err := e.Append(ctx, Draft{
		Agent: "alice", EventType: event.ItemCreate, ItemID: "bn-abc123",
		Data: map[string]any{"title": "Hello", "kind": "task"},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	report, err := e.IncrementalApply(ctx)
	if err != nil {
		t.Fatalf("incremental apply: %v", err)
	}
	if report.EventCount != 1 {
		t.Fatalf("expected the appended event to be re-read past the cursor (Append does not move it), got %+v", report)
	}

	items, err := e.ListItems(ctx, store.ListItemsFilter{})
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

// TestSequentialEnginesProduceDominatingITCStamps exercises the fork/tick/join
// lifecycle across two Engine handles opened one after another against the
// same repo — the way two successive `bn` invocations share one .bones dir.
// The second handle forks its identity from what the first joined back on
// Close, so its ticked stamp must causally dominate the first's: this is the
// condition crdt.LWW's winsOver checks before ever falling back to wall_ts.
func TestSequentialEnginesProduceDominatingITCStamps(t *testing.T) {
	if err := config.Initialize(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	repoRoot := t.TempDir()
	ctx := context.Background()

	e1, err := Open(repoRoot)
	if err != nil {
		t.Fatalf("opening first engine: %v", err)
	}
	ev1, err := e1.Append(ctx, Draft{
		Agent: "alice", EventType: event.ItemCreate, ItemID: "bn-abc123",
		Data: map[string]any{"title": "Hello", "kind": "task"},
	})
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := e1.Close(); err != nil {
		t.Fatalf("closing first engine: %v", err)
	}

	e2, err := Open(repoRoot)
	if err != nil {
		t.Fatalf("opening second engine: %v", err)
	}
	ev2, err := e2.Append(ctx, Draft{
		Agent: "bob", EventType: event.ItemUpdate, ItemID: "bn-abc123",
		Data: map[string]any{"field": "title", "value": "Hello, again"},
	})
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if err := e2.Close(); err != nil {
		t.Fatalf("closing second engine: %v", err)
	}

	s1, err := itc.DecodeText(ev1.ITC)
	if err != nil {
		t.Fatalf("decoding first stamp: %v", err)
	}
	s2, err := itc.DecodeText(ev2.ITC)
	if err != nil {
		t.Fatalf("decoding second stamp: %v", err)
	}

	if !itc.Leq(s1, s2) || itc.Leq(s2, s1) {
		t.Fatalf("expected the second engine's stamp to strictly dominate the first's: s1=%s s2=%s", ev1.ITC, ev2.ITC)
	}
}
