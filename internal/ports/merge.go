package ports

import (
	"context"

	"github.com/ahrav/go-sqm/internal/domain"
)

// SimilarityComparator scores how similar two assembly units are, as the
// amino-acid identity between their predicted genes.
type SimilarityComparator interface {
	// Compare returns the similarity of a and b. Higher means more similar.
	// Implementations must be safe for concurrent use.
	Compare(ctx context.Context, a, b domain.AssemblyUnit) (float64, error)
}

// ContigMerger combines assembly units into one.
type ContigMerger interface {
	// Merge combines units into a single contig file written at output.
	// The sequential merge always passes exactly two units; a bulk merge
	// passes all of them at once.
	Merge(ctx context.Context, output string, units []domain.AssemblyUnit) error
}
