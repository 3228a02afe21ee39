// Package dag implements the Merkle-DAG validator: hash verification,
// parent-closure checking, and lowest-common-ancestor search (spec §4.E).
package dag

import (
	"sort"

	"github.com/untoldecay/bones/internal/bonerr"
	"github.com/untoldecay/bones/internal/event"
)

// Index is a hash-addressed view over a set of events, built once and
// reused across verify/LCA calls.
type Index struct {
	byHash map[string]*event.Event
}

// BuildIndex indexes events by their event hash.
func BuildIndex(events []*event.Event) *Index {
	idx := &Index{byHash: make(map[string]*event.Event, len(events))}
	for _, e := range events {
		idx.byHash[e.EventHash] = e
	}
	return idx
}

func (idx *Index) parentsOf(hash string) []string {
	e, ok := idx.byHash[hash]
	if !ok {
		return nil
	}
	return e.Parents
}

// VerifyEventHash recomputes e's hash and reports whether it matches the
// stored one.
func VerifyEventHash(e *event.Event) (bool, error) {
	return e.VerifyHash()
}

// VerifyChain checks, for every event: its recomputed hash matches the
// stored one, and every parent it names is present in the set. Surfaces
// the first failure with the offending hash.
func VerifyChain(events []*event.Event) error {
	idx := BuildIndex(events)
	for _, e := range events {
		ok, err := e.VerifyHash()
		if err != nil {
			return bonerr.Wrap(bonerr.HashMismatch, "computing hash for "+e.EventHash, err)
		}
		if !ok {
			return bonerr.New(bonerr.HashMismatch, "stored hash does not match recomputed hash: "+e.EventHash)
		}
		for _, p := range e.Parents {
			if _, ok := idx.byHash[p]; !ok {
				return bonerr.New(bonerr.UnknownParent, "event "+e.EventHash+" references unknown parent "+p)
			}
		}
	}
	return nil
}

// FindLCA locates a single lowest common ancestor of a and b via
// bidirectional BFS upward, alternating one step per side, terminating as
// soon as either walk discovers a hash already visited by the other side.
// Runs in O(divergent ancestors).
func FindLCA(idx *Index, a, b string) (string, bool) {
	if a == b {
		return a, true
	}
	visitedA := map[string]bool{a: true}
	visitedB := map[string]bool{b: true}
	queueA := []string{a}
	queueB := []string{b}

	for len(queueA) > 0 || len(queueB) > 0 {
		if len(queueA) > 0 {
			cur := queueA[0]
			queueA = queueA[1:]
			for _, p := range idx.parentsOf(cur) {
				if visitedB[p] {
					return p, true
				}
				if !visitedA[p] {
					visitedA[p] = true
					queueA = append(queueA, p)
				}
			}
		}
		if len(queueB) > 0 {
			cur := queueB[0]
			queueB = queueB[1:]
			for _, p := range idx.parentsOf(cur) {
				if visitedA[p] {
					return p, true
				}
				if !visitedB[p] {
					visitedB[p] = true
					queueB = append(queueB, p)
				}
			}
		}
	}
	return "", false
}

// ancestors returns the set of hashes reachable from start by walking
// parent edges, including start itself.
func (idx *Index) ancestors(start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range idx.parentsOf(cur) {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return visited
}

// isAncestor reports whether anc is reachable by walking parent edges
// upward from start (anc is a causal ancestor of start, or start itself).
func (idx *Index) isAncestor(anc, start string) bool {
	if anc == start {
		return true
	}
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range idx.parentsOf(cur) {
			if p == anc {
				return true
			}
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

// FindAllLCAs returns the set of common ancestors of a and b that have no
// descendant which is also a common ancestor — the full criss-cross LCA
// set (spec §4.E, §9).
func FindAllLCAs(idx *Index, a, b string) []string {
	ancA := idx.ancestors(a)
	ancB := idx.ancestors(b)

	var common []string
	for h := range ancA {
		if ancB[h] {
			common = append(common, h)
		}
	}

	maximal := make([]string, 0, len(common))
	for _, c := range common {
		hasDescendantInCommon := false
		for _, other := range common {
			if other == c {
				continue
			}
			// c has a descendant in common iff c is an ancestor of some
			// other common ancestor.
			if idx.isAncestor(c, other) {
				hasDescendantInCommon = true
				break
			}
		}
		if !hasDescendantInCommon {
			maximal = append(maximal, c)
		}
	}
	sort.Strings(maximal)
	return maximal
}

// RepresentativeLCA picks the lexicographically smallest hash from
// FindAllLCAs, per the Open Question decision in spec §9: callers needing
// a single LCA from a criss-cross history use this deterministic pick.
func RepresentativeLCA(idx *Index, a, b string) (string, bool) {
	all := FindAllLCAs(idx, a, b)
	if len(all) == 0 {
		return "", false
	}
	return all[0], true
}
