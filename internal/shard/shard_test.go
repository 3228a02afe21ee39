package shard

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInitCreatesHeaderOnlyShard(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, ".bones"))
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	refs, err := m.ListShards()
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected exactly one shard after init, got %d", len(refs))
	}
	content, err := m.ReadShard(refs[0])
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 header lines, got %d: %q", len(lines), content)
	}
}

func TestNextTimestampMonotone(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, ".bones"))
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	var last int64
	for i := 0; i < 50; i++ {
		ts, err := m.NextTimestamp(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		if ts <= last {
			t.Fatalf("timestamp not strictly increasing: %d after %d", ts, last)
		}
		last = ts
	}
}

func TestAppendThenReplay(t *testing.T) {
	dir := t.TempDir()
	m := New(filepath.Join(dir, ".bones"))
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	ts, err := m.NextTimestamp(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	line := "100\talice\titc:AQA\t\titem.create\tbn-abc\t{}\tblake3:" + strings.Repeat("a", 64)
	if err := m.Append(line, ts, true, time.Second); err != nil {
		t.Fatal(err)
	}
	content, err := m.Replay()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(content, line) {
		t.Fatalf("replay missing appended line: %q", content)
	}
}
