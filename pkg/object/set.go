package object

// Set is the unordered collection of STRING members backing a SET value,
// with uniqueness by byte equality (§3).
type Set struct {
	members map[string]struct{}
}

func NewSet() *Set {
	return &Set{members: make(map[string]struct{})}
}

// Add returns true if member was newly added.
func (s *Set) Add(member []byte) bool {
	k := string(member)
	if _, ok := s.members[k]; ok {
		return false
	}
	s.members[k] = struct{}{}
	return true
}

func (s *Set) Remove(member []byte) bool {
	k := string(member)
	if _, ok := s.members[k]; !ok {
		return false
	}
	delete(s.members, k)
	return true
}

func (s *Set) Has(member []byte) bool {
	_, ok := s.members[string(member)]
	return ok
}

func (s *Set) Len() int { return len(s.members) }

// Members returns all members in unspecified order.
func (s *Set) Members() [][]byte {
	out := make([][]byte, 0, len(s.members))
	for k := range s.members {
		out = append(out, []byte(k))
	}
	return out
}

func (s *Set) ForEach(fn func([]byte)) {
	for k := range s.members {
		fn([]byte(k))
	}
}

// Union returns the union of sets as a new Set.
func Union(sets ...*Set) *Set {
	out := NewSet()
	for _, s := range sets {
		s.ForEach(func(m []byte) { out.Add(m) })
	}
	return out
}

// Inter returns the intersection of sets, iterating the smallest first.
func Inter(sets ...*Set) *Set {
	if len(sets) == 0 {
		return NewSet()
	}
	smallest := sets[0]
	for _, s := range sets[1:] {
		if s.Len() < smallest.Len() {
			smallest = s
		}
	}
	out := NewSet()
	smallest.ForEach(func(m []byte) {
		for _, s := range sets {
			if s == smallest {
				continue
			}
			if !s.Has(m) {
				return
			}
		}
		out.Add(m)
	})
	return out
}

// Diff returns members of sets[0] absent from every other set.
func Diff(sets ...*Set) *Set {
	out := NewSet()
	if len(sets) == 0 {
		return out
	}
	sets[0].ForEach(func(m []byte) {
		for _, s := range sets[1:] {
			if s.Has(m) {
				return
			}
		}
		out.Add(m)
	})
	return out
}
