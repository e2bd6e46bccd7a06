package chat

import "sort"

// selectionState tracks which messages are marked for deletion. It has two
// modes: browsing (the default) and selecting. Toggling is only honored in
// selecting mode and only for messages present in the current room's list,
// so stale selections can never leak across a room switch.
type selectionState struct {
	selecting bool
	ids       map[string]struct{}
}

func (s *selectionState) enter() {
	if s.selecting {
		return
	}
	s.selecting = true
	s.ids = make(map[string]struct{})
}

func (s *selectionState) exit() {
	s.selecting = false
	s.ids = nil
}

// toggle flips the mark on id. present says whether id is in the active
// room's message list; toggling an absent id is rejected.
func (s *selectionState) toggle(id string, present bool) bool {
	if !s.selecting || !present {
		return false
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
	} else {
		s.ids[id] = struct{}{}
	}
	return true
}

// discard unmarks id, keeping the selection a subset of the message list
// when a removed event lands mid-selection.
func (s *selectionState) discard(id string) {
	delete(s.ids, id)
}

// drain returns the marked ids and leaves selecting mode.
func (s *selectionState) drain() []string {
	ids := s.snapshot()
	s.exit()
	return ids
}

func (s *selectionState) snapshot() []string {
	if len(s.ids) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
