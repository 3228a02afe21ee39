package rebuild

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/untoldecay/bones/internal/event"
	"github.com/untoldecay/bones/internal/itc"
	"github.com/untoldecay/bones/internal/shard"
	"github.com/untoldecay/bones/internal/tsjson"
)

func appendEvent(t *testing.T, shards *shard.Manager, wallTSUs int64, agent string, evType event.Type, itemID string, data map[string]any) {
	t.Helper()
	e := &event.Event{
		WallTSUs:  wallTSUs,
		Agent:     agent,
		ITC:       itc.EncodeText(itc.Seed()),
		EventType: evType,
		ItemID:    itemID,
		Data:      data,
	}
	if err := e.Stamp(); err != nil {
		t.Fatalf("stamping event: %v", err)
	}
	line, err := tsjson.EmitLine(e)
	if err != nil {
		t.Fatalf("emitting line: %v", err)
	}
	if err := shards.Append(line, wallTSUs, false, time.Second); err != nil {
		t.Fatalf("appending event: %v", err)
	}
}

func setupShards(t *testing.T) *shard.Manager {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".bones")
	m := shard.New(dir)
	if err := m.Init(); err != nil {
		t.Fatalf("init shards: %v", err)
	}
	return m
}

func TestFullRebuildProjectsAllEvents(t *testing.T) {
	shards := setupShards(t)
	appendEvent(t, shards, 1000, "alice", event.ItemCreate, "bn-abc123", map[string]any{"title": "first", "kind": "task"})
	appendEvent(t, shards, 2000, "alice", event.ItemComment, "bn-abc123", map[string]any{"body": "hello"})

	dbPath := filepath.Join(t.TempDir(), "projection.db")
	report, err := Full(context.Background(), dbPath, shards)
	if err != nil {
		t.Fatalf("full rebuild: %v", err)
	}
	if report.EventCount != 2 || report.ItemCount != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestIncrementalSkipsAlreadyProjectedEvents(t *testing.T) {
	shards := setupShards(t)
	// Current-month timestamps keep both events in the shard Init created,
	// so the cursor still ends right after the first event.
	base := time.Now().UnixMicro()
	appendEvent(t, shards, base, "alice", event.ItemCreate, "bn-abc123", map[string]any{"title": "first", "kind": "task"})

	dbPath := filepath.Join(t.TempDir(), "projection.db")
	if _, err := Full(context.Background(), dbPath, shards); err != nil {
		t.Fatalf("full rebuild: %v", err)
	}

	appendEvent(t, shards, base+1000, "alice", event.ItemComment, "bn-abc123", map[string]any{"body": "later"})
	report, err := Incremental(context.Background(), dbPath, shards)
	if err != nil {
		t.Fatalf("incremental apply: %v", err)
	}
	if report.EventCount != 1 {
		t.Fatalf("expected only the new event folded, got %+v", report)
	}

	again, err := Incremental(context.Background(), dbPath, shards)
	if err != nil {
		t.Fatalf("second incremental apply: %v", err)
	}
	if again.EventCount != 0 {
		t.Fatalf("expected no-op on unchanged log, got %+v", again)
	}
}
