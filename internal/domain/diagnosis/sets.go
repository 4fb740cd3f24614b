package diagnosis

import "sort"

// orderedSet keeps the first spelling of each distinct normalized value in
// insertion order.
type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{items: []string{}, seen: make(map[string]struct{})}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		key := normalize(v)
		if key == "" {
			continue
		}
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) values() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// rankedSet is an orderedSet whose entries carry the highest urgency of the
// rules that contributed them.
type rankedSet struct {
	labels []string
	ranks  []Urgency
	index  map[string]int
}

func newRankedSet() *rankedSet {
	return &rankedSet{index: make(map[string]int)}
}

func (s *rankedSet) add(label string, rank Urgency) {
	key := normalize(label)
	if key == "" {
		return
	}
	if i, ok := s.index[key]; ok {
		s.ranks[i] = s.ranks[i].Raise(rank)
		return
	}
	s.index[key] = len(s.labels)
	s.labels = append(s.labels, label)
	s.ranks = append(s.ranks, rank)
}

func (s *rankedSet) all() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// top keeps at most n entries, preferring higher ranks and then earlier
// insertion, and returns the survivors in insertion order.
func (s *rankedSet) top(n int) []string {
	if len(s.labels) <= n {
		return s.all()
	}
	idx := make([]int, len(s.labels))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.ranks[idx[a]] > s.ranks[idx[b]]
	})
	keep := idx[:n]
	sort.Ints(keep)

	out := make([]string, 0, n)
	for _, i := range keep {
		out = append(out, s.labels[i])
	}
	return out
}
