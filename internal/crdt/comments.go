package crdt

import "sort"

// Comment is the ordering-relevant projection of an item_comments row.
type Comment struct {
	CreatedAtUs int64
	CommentHash string
}

// SortComments orders comments by (created_at_us, comment_hash) ascending,
// the append-only display order fixed by spec §4.G.
func SortComments[T any](items []T, key func(T) Comment) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := key(items[i]), key(items[j])
		if a.CreatedAtUs != b.CreatedAtUs {
			return a.CreatedAtUs < b.CreatedAtUs
		}
		return a.CommentHash < b.CommentHash
	})
}
