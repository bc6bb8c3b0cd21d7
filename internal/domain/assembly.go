package domain

import "fmt"

// AssemblyUnit is one partial or merged assembly during iterative merging.
type AssemblyUnit struct {
	// ID is unique among all units created during one merge sequence.
	ID string

	// Contigs is the handle (path) of the unit's contig file.
	Contigs string

	// Generation is 0 for per-sample assemblies and max(inputs)+1 for merges.
	Generation int

	// Samples lists the samples whose assemblies the unit covers.
	Samples []string
}

// PairKey identifies an unordered pair of assembly units. A is always the
// lexicographically smaller identifier.
type PairKey struct {
	A, B string
}

// NewPairKey normalizes the pair so that (x, y) and (y, x) share a key.
func NewPairKey(x, y string) PairKey {
	if y < x {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

// Has reports whether id is one of the pair's members.
func (k PairKey) Has(id string) bool { return k.A == id || k.B == id }

// Less orders keys lexicographically by first then second identifier.
func (k PairKey) Less(o PairKey) bool {
	if k.A != o.A {
		return k.A < o.A
	}
	return k.B < o.B
}

// String implements fmt.Stringer.
func (k PairKey) String() string { return fmt.Sprintf("%s|%s", k.A, k.B) }

// SimilarityEntry is the amino-acid identity between two assembly units.
type SimilarityEntry struct {
	Pair  PairKey
	Score float64
}

// MergeRound records one greedy merge decision.
type MergeRound struct {
	// Round is 1-based.
	Round int

	// Pair holds the two merged inputs.
	Pair PairKey

	// Score is the similarity that won the round.
	Score float64

	// Result is the unit produced by the merge.
	Result AssemblyUnit
}
