package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/logger"
)

// canaryText is embedded to discover the live embedding dimension.
const canaryText = "test"

// ChunkSearcher is the read side of ChunkStore used by the planner.
type ChunkSearcher interface {
	Search(ctx context.Context, query string, filters domain.Filters, limit int) ([]domain.RetrievalResult, error)
}

// ChunkStore persists chunks in a vector index and searches them by
// embedding similarity. Neither collaborator is owned by the store.
type ChunkStore struct {
	index    driven.VectorIndex
	embedder driven.EmbeddingService
}

// NewChunkStore creates a chunk store over index and embedder.
func NewChunkStore(index driven.VectorIndex, embedder driven.EmbeddingService) *ChunkStore {
	return &ChunkStore{index: index, embedder: embedder}
}

// Insert embeds and stores chunks, returning how many were written.
// Insertion is best-effort: an index failure part way through may leave
// some chunks stored.
func (s *ChunkStore) Insert(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if s.embedder == nil {
		return 0, &domain.StorageError{Op: "embed", Err: domain.ErrEmbeddingUnavailable}
	}
	if s.index == nil {
		return 0, &domain.StorageError{Op: "insert", Err: domain.ErrVectorIndexUnavailable}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	logger.Debug("Embedding %d chunks with %s", len(chunks), s.embedder.ModelName())
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, &domain.StorageError{Op: "embed", Err: err}
	}
	if len(vectors) != len(chunks) {
		return 0, &domain.StorageError{
			Op:  "embed",
			Err: fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)),
		}
	}

	model := s.embedder.ModelName()
	records := make([]driven.VectorRecord, len(chunks))
	for i, c := range chunks {
		meta := c.Metadata
		meta.EmbeddingModel = model
		records[i] = driven.VectorRecord{
			ID:        c.ID,
			Embedding: vectors[i],
			Metadata:  meta,
			Content:   c.Content,
		}
	}

	if err := s.index.Insert(ctx, records); err != nil {
		return 0, &domain.StorageError{Op: "insert", Err: err}
	}
	return len(records), nil
}

// Search returns up to limit chunks nearest to query that match every
// filter, best match first. No match is an empty slice, not an error.
// Unknown filter keys are rejected with domain.ErrInvalidInput.
func (s *ChunkStore) Search(
	ctx context.Context, query string, filters domain.Filters, limit int,
) ([]domain.RetrievalResult, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, limit)
	}
	if s.embedder == nil {
		return nil, &domain.StorageError{Op: "embed query", Err: domain.ErrEmbeddingUnavailable}
	}
	if s.index == nil {
		return nil, &domain.StorageError{Op: "query", Err: domain.ErrVectorIndexUnavailable}
	}

	if err := filters.Validate(); err != nil {
		return nil, err
	}
	clean, _ := filters.Clean()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &domain.StorageError{Op: "embed query", Err: err}
	}

	matches, err := s.index.Query(ctx, vec, limit, clean)
	if err != nil {
		return nil, &domain.StorageError{Op: "query", Err: err}
	}

	results := make([]domain.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		d := m.Distance
		results = append(results, domain.RetrievalResult{
			ID:       m.ID,
			Content:  m.Content,
			Metadata: m.Metadata,
			Distance: &d,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Distance < *results[j].Distance
	})
	logger.Debug("Search %q filters=%v: %d results", query, clean, len(results))
	return results, nil
}

// Stats reports the chunk count and the live embedding dimension.
func (s *ChunkStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	if s.index == nil {
		return domain.StoreStats{}, &domain.StorageError{Op: "count", Err: domain.ErrVectorIndexUnavailable}
	}
	count, err := s.index.Count(ctx)
	if err != nil {
		return domain.StoreStats{}, &domain.StorageError{Op: "count", Err: err}
	}

	stats := domain.StoreStats{TotalChunks: count}
	if s.embedder == nil {
		return stats, nil
	}
	stats.EmbeddingModel = s.embedder.ModelName()

	vec, err := s.embedder.Embed(ctx, canaryText)
	if err != nil {
		logger.Warn("Embedding canary failed, reporting configured dimension: %v", err)
		stats.EmbeddingDimension = s.embedder.Dimensions()
		return stats, nil
	}
	stats.EmbeddingDimension = len(vec)
	return stats, nil
}

// SectionIndex maps each section name to the IDs of its chunks.
// It scans every stored chunk.
func (s *ChunkStore) SectionIndex(ctx context.Context) (map[string][]string, error) {
	if s.index == nil {
		return nil, &domain.StorageError{Op: "scan", Err: domain.ErrVectorIndexUnavailable}
	}
	index := make(map[string][]string)
	err := s.index.Scan(ctx, func(id string, meta domain.ChunkMetadata) error {
		name := meta.SectionName
		if name == "" {
			name = domain.Unknown
		}
		index[name] = append(index[name], id)
		return nil
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "scan", Err: err}
	}
	return index, nil
}

// Documents lists each distinct ingested document, ordered by filename.
// It scans every stored chunk.
func (s *ChunkStore) Documents(ctx context.Context) ([]domain.DocumentSummary, error) {
	if s.index == nil {
		return nil, &domain.StorageError{Op: "scan", Err: domain.ErrVectorIndexUnavailable}
	}
	seen := make(map[domain.DocumentSummary]struct{})
	err := s.index.Scan(ctx, func(_ string, meta domain.ChunkMetadata) error {
		seen[domain.DocumentSummary{
			Filename:     meta.Filename,
			DocumentType: meta.DocumentType,
			Quarter:      meta.Quarter,
			Year:         meta.Year,
		}] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "scan", Err: err}
	}

	docs := make([]domain.DocumentSummary, 0, len(seen))
	for d := range seen {
		docs = append(docs, d)
	}
	slices.SortFunc(docs, func(a, b domain.DocumentSummary) int {
		if c := strings.Compare(a.Filename, b.Filename); c != 0 {
			return c
		}
		if c := strings.Compare(a.Year, b.Year); c != 0 {
			return c
		}
		return strings.Compare(a.Quarter, b.Quarter)
	})
	return docs, nil
}
