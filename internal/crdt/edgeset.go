package crdt

// Edge is a directed dependency edge from an implicit owning item to
// Target, typed by LinkType.
type Edge struct {
	Target   string
	LinkType string
}

// EdgeSet is an add-wins set of directed dependency edges: built on the
// same observed-remove tagging as ORSet, so an unlink only removes the
// link events it has causally observed — a concurrent link of the same
// edge survives (spec §4.G "Dependencies").
type EdgeSet struct {
	*ORSet[Edge]
}

// NewEdgeSet returns an empty edge set.
func NewEdgeSet() *EdgeSet {
	return &EdgeSet{ORSet: NewORSet[Edge]()}
}

// Add records the edge as present under the given link event's tag.
func (s *EdgeSet) Add(tag string, e Edge) {
	s.ORSet.Add(tag, e)
}

// Remove marks every currently-observed tag carrying this edge as removed.
func (s *EdgeSet) Remove(e Edge) {
	s.ORSet.RemoveValue(e)
}

// Merge unions two edge sets' adds and removed-tag sets.
func (s *EdgeSet) Merge(other *EdgeSet) {
	s.ORSet.Merge(other.ORSet)
}

// Edges returns the currently-present edges in no particular order;
// callers sort for display.
func (s *EdgeSet) Edges() []Edge {
	return s.ORSet.Values()
}
