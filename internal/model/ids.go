package model // import "github.com/Xunop/e-oasis-meta/internal/model"

import "sort"

// IDSet is a set of book or item ids. The dirtied set returned by writers is
// an IDSet.
type IDSet map[int]struct{}

func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id int) {
	s[id] = struct{}{}
}

func (s IDSet) Discard(id int) {
	delete(s, id)
}

func (s IDSet) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Update adds every id of other to s.
func (s IDSet) Update(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	c.Update(s)
	return c
}
