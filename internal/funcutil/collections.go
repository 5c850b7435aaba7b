// Package funcutil provides small generic helpers over maps and slices. The
// init index's report rendering uses Keys; the other helpers have no caller
// in this module.
package funcutil

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// Merge merges b into a in place: keys only in b are copied over, keys in
// both are combined with both.
func Merge[T comparable, S any](a map[T]S, b map[T]S, both func(x S, y S) S) {
	for k, vb := range b {
		if va, ok := a[k]; ok {
			a[k] = both(va, vb)
		} else {
			a[k] = vb
		}
	}
}

// Union returns the union of the two map-represented sets, mutating a.
func Union[T comparable](a map[T]bool, b map[T]bool) map[T]bool {
	Merge(a, b, func(x, y bool) bool { return x || y })
	return a
}

// Keys returns the keys of a map in no particular order.
func Keys[T comparable, S any](a map[T]S) []T {
	ks := make([]T, 0, len(a))
	for k := range a {
		ks = append(ks, k)
	}
	return ks
}

// Contains reports whether x is in the slice a.
func Contains[T comparable](a []T, x T) bool {
	for _, y := range a {
		if x == y {
			return true
		}
	}
	return false
}

// SetToOrderedSlice converts a set (represented as a map to bool) into a
// sorted slice, for deterministic output over otherwise-unordered set data.
func SetToOrderedSlice[T constraints.Ordered](set map[T]bool) []T {
	var s []T
	for k, present := range set {
		if present {
			s = append(s, k)
		}
	}
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return s
}
