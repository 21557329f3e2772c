package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/finqa/internal/adapters/driven/storage/vector"
	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/logger"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is an in-memory implementation of driven.VectorIndex.
// Queries scan every record; it suits tests and small corpora.
type VectorIndex struct {
	mu      sync.RWMutex
	records map[string]driven.VectorRecord
	order   []string
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		records: make(map[string]driven.VectorRecord),
	}
}

// Insert stores records, replacing any with the same ID.
func (v *VectorIndex) Insert(ctx context.Context, records []driven.VectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", domain.ErrInvalidInput)
		}
		if _, exists := v.records[r.ID]; !exists {
			v.order = append(v.order, r.ID)
		}
		r.Embedding = append([]float32(nil), r.Embedding...)
		v.records[r.ID] = r
	}
	return nil
}

// Query returns the k nearest records matching filters.
func (v *VectorIndex) Query(
	ctx context.Context, query []float32, k int, filters domain.Filters,
) ([]driven.VectorMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	var skipped vector.Mismatches
	cands := make([]vector.Candidate[driven.VectorRecord], 0, len(v.order))
	for _, id := range v.order {
		r := v.records[id]
		if !filters.Matches(r.Metadata) {
			continue
		}
		if len(r.Embedding) != len(query) {
			skipped.Add(len(r.Embedding), r.Metadata.EmbeddingModel)
			continue
		}
		d, err := vector.CosineDistance(query, r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		cands = append(cands, vector.Candidate[driven.VectorRecord]{Item: r, Distance: d})
	}
	if err := skipped.Err(len(query)); err != nil {
		if len(cands) == 0 {
			return nil, err
		}
		logger.Warn("Ignoring chunks: %v", err)
	}

	top := vector.TopK(cands, k)
	matches := make([]driven.VectorMatch, len(top))
	for i, c := range top {
		matches[i] = driven.VectorMatch{
			ID:       c.Item.ID,
			Content:  c.Item.Content,
			Metadata: c.Item.Metadata,
			Distance: c.Distance,
		}
	}
	return matches, nil
}

// Count returns the number of stored records.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.records), nil
}

// Scan calls fn for every record in insertion order.
func (v *VectorIndex) Scan(ctx context.Context, fn func(id string, meta domain.ChunkMetadata) error) error {
	v.mu.RLock()
	ids := append([]string(nil), v.order...)
	metas := make([]domain.ChunkMetadata, len(ids))
	for i, id := range ids {
		metas[i] = v.records[id].Metadata
	}
	v.mu.RUnlock()

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, metas[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for the memory index.
func (v *VectorIndex) Close() error {
	return nil
}
