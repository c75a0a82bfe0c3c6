// Package social implements the membership toggles behind likes, dislikes and
// channel subscriptions.
package social

import "slices"

// Toggle flips the membership of actor in set. When actor is already a member it is
// removed and Toggle returns false. Otherwise actor is appended to set, removed from
// opposing (if non-nil), and Toggle returns true.
//
// After Toggle returns, actor is a member of at most one of set and opposing.
func Toggle[T comparable](actor T, set, opposing *[]T) bool {
	if slices.Contains(*set, actor) {
		*set = without(*set, actor)
		return false
	}

	*set = append(*set, actor)
	if opposing != nil {
		*opposing = without(*opposing, actor)
	}
	return true
}

func without[T comparable](items []T, item T) []T {
	out := make([]T, 0, len(items))
	for _, v := range items {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}
