package models

import (
	"sort"

	"phantomqa/pkg/qaerr"
)

// Stack is an ordered series of slices from one acquisition. It is the only
// state shared between measurement calls and is owned by the caller.
type Stack []*Slice

// SortByPosition orders the stack by slice position, keeping the input order
// for slices at the same position.
func (st Stack) SortByPosition() {
	st.SortBy(func(s *Slice) float64 { return s.Position })
}

// SortBy orders the stack by an arbitrary scalar attribute such as echo time
// or inversion time.
func (st Stack) SortBy(key func(*Slice) float64) {
	sort.SliceStable(st, func(i, j int) bool {
		return key(st[i]) < key(st[j])
	})
}

// At returns the slice at index i or an InvalidInputError when the stack is
// too short.
func (st Stack) At(i int) (*Slice, error) {
	if i < 0 || i >= len(st) {
		return nil, qaerr.InvalidInput("slice index %d outside stack of %d slices", i, len(st))
	}
	return st[i], nil
}
