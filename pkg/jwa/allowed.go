package jwa

import (
	"golang.org/x/exp/slices"
)

// AllowedAlgorithms is a set of algorithm identifiers a caller is willing
// to accept when verifying or decrypting. Engines never dispatch on a
// token's own "alg" or "enc" header alone; the value must also be in
// the caller's set.
type AllowedAlgorithms map[Algorithm]struct{}

// NewAllowedAlgorithms returns a set containing the given algorithms.
func NewAllowedAlgorithms(algs ...Algorithm) AllowedAlgorithms {
	set := make(AllowedAlgorithms, len(algs))
	for _, alg := range algs {
		set[alg] = struct{}{}
	}
	return set
}

// Allowed returns true if every given algorithm is in the set. It
// returns false when called without any algorithms.
func (a AllowedAlgorithms) Allowed(algs ...Algorithm) bool {
	if len(algs) == 0 {
		return false
	}
	for _, alg := range algs {
		if _, ok := a[alg]; !ok {
			return false
		}
	}
	return true
}

// List returns the algorithms in the set, sorted.
func (a AllowedAlgorithms) List() []Algorithm {
	list := make([]Algorithm, 0, len(a))
	for alg := range a {
		list = append(list, alg)
	}
	slices.Sort(list)
	return list
}

