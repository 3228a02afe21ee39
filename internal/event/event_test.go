package event

import "testing"

func TestValidItemID(t *testing.T) {
	cases := map[string]bool{
		"bn-abc":                true,
		"bn-abcdef0123456789":   true,  // exactly 16 chars
		"bn-abcdef01234567890":  false, // 17 chars, over the limit
		"bn-ab":                 false,
		"bn-":                   false,
		"xx-abc":                false,
	}
	for id, want := range cases {
		if got := ValidItemID(id); got != want {
			t.Errorf("ValidItemID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestSortParentsDedup(t *testing.T) {
	got := SortParents([]string{"blake3:b", "blake3:a", "blake3:a"})
	want := []string{"blake3:a", "blake3:b"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestComputeHashPure(t *testing.T) {
	e := &Event{
		WallTSUs:  100,
		Agent:     "alice",
		ITC:       "itc:AQA",
		EventType: ItemCreate,
		ItemID:    "bn-abc",
		Data:      map[string]any{"title": "Hello", "kind": "task"},
	}
	h1, err := e.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := e.ComputeHash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("hash not pure: %s != %s", h1, h2)
	}
	if err := e.Stamp(); err != nil {
		t.Fatal(err)
	}
	ok, err := e.VerifyHash()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("stamped hash should verify")
	}
}

func TestNewCommentRejectsControlChars(t *testing.T) {
	if _, err := NewComment("hello\x01world", nil); err == nil {
		t.Fatal("expected error for control character in comment body")
	}
	if _, err := NewComment("hello\nworld\ttab", nil); err != nil {
		t.Fatalf("newline/tab should be allowed: %v", err)
	}
}

func TestNewMoveValidatesPhase(t *testing.T) {
	if _, err := NewMove("bogus", "", false, nil); err == nil {
		t.Fatal("expected error for invalid phase target")
	}
	data, err := NewMove("done", "finished", false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if data["target"] != "done" || data["reason"] != "finished" {
		t.Fatalf("unexpected payload: %v", data)
	}
}
