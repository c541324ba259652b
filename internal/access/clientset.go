package access

import "sort"

// ClientSet is a set of client IDs, or the All sentinel for unrestricted access.
// The zero value is the empty set.
type ClientSet struct {
	all bool
	ids map[string]struct{}
}

// All returns the unrestricted sentinel.
func All() ClientSet {
	return ClientSet{all: true}
}

// NewClientSet returns a set holding ids, deduplicated.
func NewClientSet(ids ...string) ClientSet {
	s := ClientSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

func (s *ClientSet) add(id string) {
	if s.ids == nil {
		s.ids = map[string]struct{}{}
	}
	s.ids[id] = struct{}{}
}

// IsAll reports whether s is the All sentinel.
func (s ClientSet) IsAll() bool {
	return s.all
}

// Contains reports whether id is in s. All contains everything.
func (s ClientSet) Contains(id string) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of IDs. It is -1 for All.
func (s ClientSet) Len() int {
	if s.all {
		return -1
	}
	return len(s.ids)
}

// IDs returns the members in ascending order, or nil for All.
func (s ClientSet) IDs() []string {
	if s.all {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
