package projector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/untoldecay/bones/internal/event"
	"github.com/untoldecay/bones/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "projection.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mkCreate(ts int64, agent, hash, itemID, title, kind string) *event.Event {
	return &event.Event{
		WallTSUs: ts, Agent: agent, ITC: "itc:AQA", EventType: event.ItemCreate,
		ItemID: itemID, Data: map[string]any{"title": title, "kind": kind}, EventHash: hash,
	}
}

func TestApplyCreateThenGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	events := []*event.Event{mkCreate(1, "alice", "blake3:a", "bn-abc", "first title", "task")}
	if err := Apply(ctx, db, events); err != nil {
		t.Fatalf("apply: %v", err)
	}
	it, err := db.GetItem(ctx, "bn-abc")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if it.Title != "first title" || it.Kind != "task" {
		t.Fatalf("unexpected item: %+v", it)
	}
}

func TestApplyIsIdempotentUnderReapply(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	events := []*event.Event{mkCreate(1, "alice", "blake3:a", "bn-abc", "t", "task")}
	if err := Apply(ctx, db, events); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := Apply(ctx, db, events); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	it, err := db.GetItem(ctx, "bn-abc")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if it.Title != "t" {
		t.Fatalf("reapply mutated state: %+v", it)
	}
}

func TestApplyUpdateLWWHigherWallTSWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	create := mkCreate(1, "alice", "blake3:a", "bn-abc", "initial", "task")
	lateUpdate := &event.Event{
		WallTSUs: 100, Agent: "bob", ITC: "itc:AQA", EventType: event.ItemUpdate,
		ItemID: "bn-abc", Data: map[string]any{"field": "title", "value": "bob's title"}, EventHash: "blake3:b",
	}
	earlyUpdate := &event.Event{
		WallTSUs: 50, Agent: "carol", ITC: "itc:AQA", EventType: event.ItemUpdate,
		ItemID: "bn-abc", Data: map[string]any{"field": "title", "value": "carol's title"}, EventHash: "blake3:c",
	}
	if err := Apply(ctx, db, []*event.Event{create, lateUpdate, earlyUpdate}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	it, err := db.GetItem(ctx, "bn-abc")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if it.Title != "bob's title" {
		t.Fatalf("expected higher wall_ts update to win, got %q", it.Title)
	}
}

func TestApplyAssignThenUnassign(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	create := mkCreate(1, "alice", "blake3:a", "bn-abc", "t", "task")
	assign := &event.Event{
		WallTSUs: 2, Agent: "alice", ITC: "itc:AQA", EventType: event.ItemAssign,
		ItemID: "bn-abc", Data: map[string]any{"agent": "bob", "action": "assign"}, EventHash: "blake3:b",
	}
	if err := Apply(ctx, db, []*event.Event{create, assign}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	assignees, err := db.GetAssignees(ctx, "bn-abc")
	if err != nil {
		t.Fatalf("get assignees: %v", err)
	}
	if len(assignees) != 1 || assignees[0] != "bob" {
		t.Fatalf("expected [bob], got %v", assignees)
	}

	unassign := &event.Event{
		WallTSUs: 3, Agent: "alice", ITC: "itc:AQA", EventType: event.ItemAssign,
		ItemID: "bn-abc", Data: map[string]any{"agent": "bob", "action": "unassign"}, EventHash: "blake3:c",
	}
	if err := Apply(ctx, db, []*event.Event{unassign}); err != nil {
		t.Fatalf("apply unassign: %v", err)
	}
	assignees, err = db.GetAssignees(ctx, "bn-abc")
	if err != nil {
		t.Fatalf("get assignees after unassign: %v", err)
	}
	if len(assignees) != 0 {
		t.Fatalf("expected no assignees after unassign, got %v", assignees)
	}
}

func TestApplyMoveReopenBumpsEpoch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	create := mkCreate(1, "alice", "blake3:a", "bn-abc", "t", "task")
	done := &event.Event{
		WallTSUs: 2, Agent: "alice", ITC: "itc:AQA", EventType: event.ItemMove,
		ItemID: "bn-abc", Data: map[string]any{"target": "done"}, EventHash: "blake3:b",
	}
	reopen := &event.Event{
		WallTSUs: 3, Agent: "bob", ITC: "itc:AQA", EventType: event.ItemMove,
		ItemID: "bn-abc", Data: map[string]any{"target": "open", "reopen": true}, EventHash: "blake3:c",
	}
	if err := Apply(ctx, db, []*event.Event{create, done, reopen}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	it, err := db.GetItem(ctx, "bn-abc")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if it.State != "open" || it.Epoch != 1 {
		t.Fatalf("expected reopened item at epoch 1, got state=%s epoch=%d", it.State, it.Epoch)
	}
}

// TestApplyNonCreateFoldedBeforeCreatePreservesTitle guards against
// ensureItemRow's stub row (title='') surviving past the item's own
// item.create fold when replay order, which is sorted by
// (wall_ts_us, agent, event_hash) rather than causal order, places another
// event for the same item_id ahead of its create.
func TestApplyNonCreateFoldedBeforeCreatePreservesTitle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	assign := &event.Event{
		WallTSUs: 1, Agent: "alice", ITC: "itc:AQA", EventType: event.ItemAssign,
		ItemID: "bn-abc", Data: map[string]any{"agent": "bob", "action": "assign"}, EventHash: "blake3:a",
	}
	create := &event.Event{
		WallTSUs: 2, Agent: "alice", ITC: "itc:AQA", EventType: event.ItemCreate,
		ItemID: "bn-abc", Data: map[string]any{
			"title": "real title", "kind": "task", "labels": []any{"urgent", "bug"},
		}, EventHash: "blake3:b",
	}
	if err := Apply(ctx, db, []*event.Event{assign, create}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	it, err := db.GetItem(ctx, "bn-abc")
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if it.Title != "real title" {
		t.Fatalf("expected create's title to survive a stub row created by an earlier-folded event, got %q", it.Title)
	}

	var searchLabels string
	row := db.UnderlyingDB().QueryRowContext(ctx, `SELECT search_labels FROM items WHERE item_id = ?`, "bn-abc")
	if err := row.Scan(&searchLabels); err != nil {
		t.Fatalf("scan search_labels: %v", err)
	}
	if searchLabels != "urgent bug" {
		t.Fatalf("expected search_labels populated from create's labels, got %q", searchLabels)
	}
}

func TestApplyCommentThenRedact(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	create := mkCreate(1, "alice", "blake3:a", "bn-abc", "t", "task")
	comment := &event.Event{
		WallTSUs: 2, Agent: "alice", ITC: "itc:AQA", EventType: event.ItemComment,
		ItemID: "bn-abc", Data: map[string]any{"body": "sensitive"}, EventHash: "blake3:b",
	}
	redact := &event.Event{
		WallTSUs: 3, Agent: "alice", ITC: "itc:AQA", EventType: event.ItemRedact,
		ItemID: "bn-abc", Data: map[string]any{"target_hash": "blake3:b"}, EventHash: "blake3:c",
	}
	if err := Apply(ctx, db, []*event.Event{create, comment, redact}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	comments, err := db.GetComments(ctx, "bn-abc")
	if err != nil {
		t.Fatalf("get comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Body != "[redacted]" {
		t.Fatalf("expected redacted comment, got %+v", comments)
	}
}
