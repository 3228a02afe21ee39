// Package itc implements an Interval Tree Clock: a causal timestamp scheme
// supporting fork/join of identities and a compact binary encoding
// (spec §4.F). Event growth uses a simple collapse-to-leaf strategy rather
// than the minimal-footprint fill-then-grow algorithm from the original
// ITC paper — correctness (leq reflexive/transitive, event(s) >= s, fork
// then join recovers the original event tree) does not require the
// optimal growth step, only determinism within this implementation.
package itc

import "fmt"

// Id is a binary tree identifying the share of the identity lattice a
// replica owns. Leaves are 0 (owns nothing) or 1 (owns everything in this
// region); a branch splits ownership between its two children.
type Id struct {
	Leaf     bool
	Value    int // 0 or 1, valid when Leaf
	Left     *Id
	Right    *Id
}

func idLeaf(v int) *Id { return &Id{Leaf: true, Value: v} }
func idBranch(l, r *Id) *Id { return &Id{Leaf: false, Left: l, Right: r} }

// IdZero and IdOne are the canonical zero/full-ownership identities.
func IdZero() *Id { return idLeaf(0) }
func IdOne() *Id  { return idLeaf(1) }

func (id *Id) isZero() bool { return id.Leaf && id.Value == 0 }
func (id *Id) isOne() bool  { return id.Leaf && id.Value == 1 }

func (id *Id) clone() *Id {
	if id.Leaf {
		return idLeaf(id.Value)
	}
	return idBranch(id.Left.clone(), id.Right.clone())
}

func normalizeID(id *Id) *Id {
	if id.Leaf {
		return id
	}
	l := normalizeID(id.Left)
	r := normalizeID(id.Right)
	if l.Leaf && r.Leaf && l.Value == r.Value {
		return idLeaf(l.Value)
	}
	return idBranch(l, r)
}

// Fork splits an identity's ownership into two disjoint shares such that
// Join(s1, s2) reconstructs the original id.
func Fork(id *Id) (*Id, *Id) {
	if id.isZero() {
		return idLeaf(0), idLeaf(0)
	}
	if id.isOne() {
		return idBranch(idLeaf(1), idLeaf(0)), idBranch(idLeaf(0), idLeaf(1))
	}
	if id.Left.isZero() {
		a, b := Fork(id.Right)
		return idBranch(idLeaf(0), a), idBranch(idLeaf(0), b)
	}
	if id.Right.isZero() {
		a, b := Fork(id.Left)
		return idBranch(a, idLeaf(0)), idBranch(b, idLeaf(0))
	}
	return idBranch(id.Left.clone(), idLeaf(0)), idBranch(idLeaf(0), id.Right.clone())
}

// JoinID reunites a split identity, normalizing the result.
func JoinID(a, b *Id) *Id {
	if a.isZero() {
		return b.clone()
	}
	if b.isZero() {
		return a.clone()
	}
	if a.Leaf && b.Leaf {
		// a.isOne() || b.isOne() implied — 0/0 handled above, 1/1 illegal overlap
		// but callers never join overlapping ownership; treat as full.
		return idLeaf(1)
	}
	al, ar := expandIDAsBranch(a)
	bl, br := expandIDAsBranch(b)
	return normalizeID(idBranch(JoinID(al, bl), JoinID(ar, br)))
}

func expandIDAsBranch(id *Id) (*Id, *Id) {
	if !id.Leaf {
		return id.Left, id.Right
	}
	return idLeaf(id.Value), idLeaf(id.Value)
}

// Event is a tree of non-negative counters: a base value at each node to be
// added along every root-to-leaf path beneath it.
type Event struct {
	Leaf  bool
	N     int
	Left  *Event
	Right *Event
}

func eventLeaf(n int) *Event { return &Event{Leaf: true, N: n} }
func eventBranch(n int, l, r *Event) *Event { return &Event{Leaf: false, N: n, Left: l, Right: r} }

// EventZero is the zero event tree.
func EventZero() *Event { return eventLeaf(0) }

func (e *Event) clone() *Event {
	if e.Leaf {
		return eventLeaf(e.N)
	}
	return eventBranch(e.N, e.Left.clone(), e.Right.clone())
}

func lift(e *Event, delta int) *Event {
	if e.Leaf {
		return eventLeaf(e.N + delta)
	}
	return eventBranch(e.N+delta, e.Left, e.Right)
}

func minEvent(e *Event) int {
	if e.Leaf {
		return e.N
	}
	lm := minEvent(e.Left)
	rm := minEvent(e.Right)
	if lm < rm {
		return e.N + lm
	}
	return e.N + rm
}

func maxEvent(e *Event) int {
	if e.Leaf {
		return e.N
	}
	lm := maxEvent(e.Left)
	rm := maxEvent(e.Right)
	if lm > rm {
		return e.N + lm
	}
	return e.N + rm
}

// normalizeEvent sinks shared base value up from children into the parent
// and collapses equal-leaf children, producing the canonical form.
func normalizeEvent(e *Event) *Event {
	if e.Leaf {
		return e
	}
	l := normalizeEvent(e.Left)
	r := normalizeEvent(e.Right)
	if l.Leaf && r.Leaf && l.N == r.N {
		return eventLeaf(e.N + l.N)
	}
	m := minEvent(l)
	if rm := minEvent(r); rm < m {
		m = rm
	}
	return eventBranch(e.N+m, lift(l, -m), lift(r, -m))
}

func expandEventAsBranch(e *Event) (*Event, *Event) {
	if !e.Leaf {
		return e.Left, e.Right
	}
	return eventLeaf(e.N), eventLeaf(e.N)
}

func asStemBase(e *Event) int {
	return e.N
}

// joinEvent takes the pointwise maximum of two event trees.
func joinEvent(a, b *Event) *Event {
	if a.Leaf && b.Leaf {
		if a.N > b.N {
			return eventLeaf(a.N)
		}
		return eventLeaf(b.N)
	}
	if a.Leaf {
		a2l, a2r := expandEventAsBranch(a)
		return joinEvent(eventBranch(asStemBase(a), a2l, a2r), b)
	}
	if b.Leaf {
		b2l, b2r := expandEventAsBranch(b)
		return joinEvent(a, eventBranch(asStemBase(b), b2l, b2r))
	}
	if a.N >= b.N {
		d := a.N - b.N
		return eventBranch(a.N, joinEvent(a.Left, lift(b.Left, d)), joinEvent(a.Right, lift(b.Right, d)))
	}
	d := b.N - a.N
	return eventBranch(b.N, joinEvent(lift(a.Left, d), b.Left), joinEvent(lift(a.Right, d), b.Right))
}

// leqEvent reports whether a is causally before or equal to b: a <= b
// pointwise under the lifted tree order.
func leqEvent(a, b *Event) bool {
	switch {
	case a.Leaf && b.Leaf:
		return a.N <= b.N
	case a.Leaf && !b.Leaf:
		return leqEvent(a, lift(b.Left, b.N)) && leqEvent(a, lift(b.Right, b.N))
	case !a.Leaf && b.Leaf:
		return leqEvent(lift(a.Left, a.N), b) && leqEvent(lift(a.Right, a.N), b)
	default:
		if a.N <= b.N {
			d := b.N - a.N
			return leqEvent(a.Left, lift(b.Left, d)) && leqEvent(a.Right, lift(b.Right, d))
		}
		d := a.N - b.N
		return leqEvent(lift(a.Left, d), b.Left) && leqEvent(lift(a.Right, d), b.Right)
	}
}

// eventAt increments the counter(s) owned by id within e by one, via
// collapse-to-leaf growth: a fully-owned (id=1) region is bumped to
// max(region)+1 and collapsed to a single leaf.
func eventAt(id *Id, e *Event) *Event {
	if id.isZero() {
		return e.clone()
	}
	if id.isOne() {
		return eventLeaf(maxEvent(e) + 1)
	}
	l, r := expandEventAsBranch(e)
	base := asStemBase(e)
	switch {
	case id.Left.isZero():
		return normalizeEvent(eventBranch(base, l, eventAt(id.Right, r)))
	case id.Right.isZero():
		return normalizeEvent(eventBranch(base, eventAt(id.Left, l), r))
	default:
		return normalizeEvent(eventBranch(base, eventAt(id.Left, l), eventAt(id.Right, r)))
	}
}

// Stamp is a full ITC timestamp: an identity share plus an event history.
type Stamp struct {
	ID    *Id
	Event *Event
}

// Seed returns the identity stamp: full ownership, zero event tree.
func Seed() Stamp {
	return Stamp{ID: IdOne(), Event: EventZero()}
}

// ForkStamp splits a stamp's identity, sharing the event tree.
func ForkStamp(s Stamp) (Stamp, Stamp) {
	i1, i2 := Fork(s.ID)
	return Stamp{ID: i1, Event: s.Event.clone()}, Stamp{ID: i2, Event: s.Event.clone()}
}

// Join reunites two stamps, max-merging their event trees.
func Join(s1, s2 Stamp) Stamp {
	return Stamp{
		ID:    JoinID(s1.ID, s2.ID),
		Event: normalizeEvent(joinEvent(s1.Event, s2.Event)),
	}
}

// Tick grows s's event tree at the region s's identity owns.
func Tick(s Stamp) Stamp {
	return Stamp{ID: s.ID.clone(), Event: eventAt(s.ID, s.Event)}
}

// Leq reports whether a's event history is causally before or equal to b's.
func Leq(a, b Stamp) bool {
	return leqEvent(a.Event, b.Event)
}

// Concurrent reports whether neither stamp's history dominates the other.
func Concurrent(a, b Stamp) bool {
	return !Leq(a, b) && !Leq(b, a)
}

// Equivalent reports whether two stamps have equal event trees after
// normalization (used to verify fork-then-join round trips).
func Equivalent(a, b Stamp) bool {
	return Leq(a, b) && Leq(b, a)
}

func (id *Id) String() string {
	if id.Leaf {
		return fmt.Sprintf("%d", id.Value)
	}
	return fmt.Sprintf("(%s,%s)", id.Left.String(), id.Right.String())
}

func (e *Event) String() string {
	if e.Leaf {
		return fmt.Sprintf("%d", e.N)
	}
	return fmt.Sprintf("(%d,%s,%s)", e.N, e.Left.String(), e.Right.String())
}
