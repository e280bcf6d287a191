package model

import (
	"sort"
	"strings"
)

// Solution is one valid combination of factor names. Order carries no
// meaning; NewSolution stores names sorted so equal sets compare equal.
type Solution []string

// NewSolution returns a sorted copy of names.
func NewSolution(names ...string) Solution {
	out := make(Solution, len(names))
	copy(out, names)
	sort.Strings(out)
	return out
}

// Key returns a canonical string for duplicate detection.
func (s Solution) Key() string {
	return strings.Join(s, "\x00")
}

// Contains reports whether name is part of the solution.
func (s Solution) Contains(name string) bool {
	for _, n := range s {
		if n == name {
			return true
		}
	}
	return false
}

func (s Solution) String() string {
	return "{" + strings.Join(s, ", ") + "}"
}

// SortSolutions orders solutions by size, then lexicographically.
// Presentation only: enumeration order is solver-dependent.
func SortSolutions(sols []Solution) {
	sort.SliceStable(sols, func(i, j int) bool {
		if len(sols[i]) != len(sols[j]) {
			return len(sols[i]) < len(sols[j])
		}
		for k := range sols[i] {
			if sols[i][k] != sols[j][k] {
				return sols[i][k] < sols[j][k]
			}
		}
		return false
	})
}
