package itc

import "testing"

func TestSeedLeqReflexive(t *testing.T) {
	s := Seed()
	if !Leq(s, s) {
		t.Fatal("seed stamp must be leq itself")
	}
}

func TestForkJoinRoundTrip(t *testing.T) {
	s := Seed()
	s1, s2 := ForkStamp(s)
	joined := Join(s1, s2)
	if !Equivalent(joined, s) {
		t.Fatalf("fork then join did not recover original event tree: got %v want %v", joined.Event, s.Event)
	}
}

func TestTickProducesGreaterOrEqualStamp(t *testing.T) {
	s := Seed()
	s2 := Tick(s)
	if !Leq(s, s2) {
		t.Fatal("event(s) must be >= s")
	}
	if Leq(s2, s) {
		t.Fatal("ticked stamp should dominate original")
	}
}

func TestConcurrentAfterForkBothTick(t *testing.T) {
	s := Seed()
	s1, s2 := ForkStamp(s)
	s1 = Tick(s1)
	s2 = Tick(s2)
	if !Concurrent(s1, s2) {
		t.Fatal("independently ticked forks should be concurrent")
	}
}

func TestLeqTransitive(t *testing.T) {
	s := Seed()
	a := Tick(s)
	b := Tick(a)
	if !Leq(s, a) || !Leq(a, b) {
		t.Fatal("setup invariant broken")
	}
	if !Leq(s, b) {
		t.Fatal("leq must be transitive")
	}
}

func TestBinaryCodecRoundTrip(t *testing.T) {
	s := Tick(Seed())
	data := EncodeBinary(s)
	got, err := DecodeBinary(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equivalent(got, s) {
		t.Fatalf("round trip mismatch: got %v want %v", got.Event, s.Event)
	}
}

func TestTextCodecRoundTrip(t *testing.T) {
	s := Tick(Seed())
	text := EncodeText(s)
	got, err := DecodeText(text)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !Equivalent(got, s) {
		t.Fatal("text round trip mismatch")
	}
}

func TestSingleAgentStampSizeBudget(t *testing.T) {
	s := Tick(Seed())
	data := EncodeBinary(s)
	if len(data) > 20 {
		t.Fatalf("single-agent stamp encoded to %d bytes, want <=20", len(data))
	}
}

func TestEightAgentStampSizeBudget(t *testing.T) {
	s := Seed()
	stamps := []Stamp{s}
	for len(stamps) < 8 {
		var next []Stamp
		for _, st := range stamps {
			a, b := ForkStamp(st)
			next = append(next, a, b)
		}
		stamps = next
	}
	merged := stamps[0]
	for _, st := range stamps[1:] {
		merged = Join(merged, Tick(st))
	}
	data := EncodeBinary(merged)
	if len(data) > 50 {
		t.Fatalf("8-agent stamp encoded to %d bytes, want <=50", len(data))
	}
}
