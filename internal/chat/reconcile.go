package chat

import "sort"

// Apply folds one change event into the ordered message list and returns
// the next list. It is a pure reducer: the input slice is never mutated,
// so callers may hand out old snapshots freely.
//
// Invariants maintained: the result is sorted by ServerTime ascending and
// contains no duplicate IDs. Redelivered events (the stream is at-least-
// once) are no-ops.
func Apply(list []Message, ev ChangeEvent) []Message {
	switch ev.Kind {
	case EventAdded:
		return applyAdded(list, ev.Message)
	case EventModified:
		for i := range list {
			if list[i].ID == ev.Message.ID {
				next := make([]Message, len(list))
				copy(next, list)
				next[i] = ev.Message
				return next
			}
		}
		// Unknown target: the added event may have been lost across a
		// connection retry, so treat the edit as an insert.
		return applyAdded(list, ev.Message)
	case EventRemoved:
		for i := range list {
			if list[i].ID == ev.ID {
				next := make([]Message, 0, len(list)-1)
				next = append(next, list[:i]...)
				next = append(next, list[i+1:]...)
				return next
			}
		}
		return list
	}
	return list
}

func applyAdded(list []Message, m Message) []Message {
	for i := range list {
		if list[i].ID == m.ID {
			return list
		}
	}
	// Events normally arrive pre-ordered, so the common case is an append.
	if n := len(list); n == 0 || list[n-1].ServerTime <= m.ServerTime {
		return append(list[:len(list):len(list)], m)
	}
	// Out-of-order delivery after a retry: keep the ordering invariant
	// with a sorted insert.
	i := sort.Search(len(list), func(i int) bool { return list[i].ServerTime > m.ServerTime })
	next := make([]Message, 0, len(list)+1)
	next = append(next, list[:i]...)
	next = append(next, m)
	next = append(next, list[i:]...)
	return next
}
