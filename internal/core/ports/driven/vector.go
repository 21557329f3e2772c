package driven

import (
	"context"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// VectorIndex stores chunk vectors with their metadata and text, and
// answers filtered nearest-neighbour queries.
// Implementations must allow Insert and Query to run concurrently.
type VectorIndex interface {
	// Insert stores records. Existing IDs are replaced.
	Insert(ctx context.Context, records []VectorRecord) error

	// Query returns up to k records nearest to vector whose metadata
	// matches every filter entry, ordered by increasing distance.
	Query(ctx context.Context, vector []float32, k int, filters domain.Filters) ([]VectorMatch, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Scan calls fn with the metadata of every stored record.
	// Iteration stops at the first error fn returns.
	Scan(ctx context.Context, fn func(id string, meta domain.ChunkMetadata) error) error

	// Close releases resources.
	Close() error
}

// VectorRecord is a chunk prepared for storage.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Metadata  domain.ChunkMetadata
	Content   string
}

// VectorMatch is a nearest-neighbour hit.
type VectorMatch struct {
	ID       string
	Content  string
	Metadata domain.ChunkMetadata

	// Distance is the cosine distance (1 - similarity).
	Distance float64
}
