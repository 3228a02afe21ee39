// Package crdt implements the engine's conflict-free replicated data types:
// LWW registers, the Epoch+Phase lifecycle, OR-sets for assignees, an
// add-wins edge set for dependencies, and comment ordering (spec §4.G).
package crdt

import "github.com/untoldecay/bones/internal/itc"

// LWW is a last-writer-wins register over a value of type T.
type LWW[T any] struct {
	Value     T
	Stamp     itc.Stamp
	WallTS    int64
	AgentID   string
	EventHash string
}

// winsOver implements the 4-step tie-break chain of spec §4.G:
// ITC causal dominance, then wall_ts, then agent_id, then event_hash.
func winsOver[T any](a, b LWW[T]) bool {
	aDominates := itc.Leq(b.Stamp, a.Stamp) && !itc.Leq(a.Stamp, b.Stamp)
	bDominates := itc.Leq(a.Stamp, b.Stamp) && !itc.Leq(b.Stamp, a.Stamp)
	switch {
	case aDominates:
		return true
	case bDominates:
		return false
	}
	if a.WallTS != b.WallTS {
		return a.WallTS > b.WallTS
	}
	if a.AgentID != b.AgentID {
		return a.AgentID > b.AgentID
	}
	return a.EventHash >= b.EventHash
}

// Merge resolves two concurrent or causally-ordered writes to the same
// register. Commutative, associative, idempotent (spec §8 invariant 9).
func Merge[T any](a, b LWW[T]) LWW[T] {
	if winsOver(a, b) {
		return a
	}
	return b
}
