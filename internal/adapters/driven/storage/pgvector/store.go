// Package pgvector provides a PostgreSQL implementation of driven.VectorIndex
// using the pgvector extension for server-side nearest-neighbour search.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorIndex = (*Store)(nil)

const chunkColumns = `id, content, document_type, filename, quarter, year,
	fiscal_period, section_name, page_number, chunk_index, content_type,
	source_document, embedding_model`

// Store is a pgvector-backed vector index.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and creates the chunks table if needed.
// dimensions fixes the vector column width; zero leaves it unconstrained.
func NewStore(ctx context.Context, dsn string, dimensions int) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: pgvector requires a DSN", domain.ErrInvalidInput)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.createTables(ctx, dimensions); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context, dimensions int) error {
	vectorType := "vector"
	if dimensions > 0 {
		vectorType = fmt.Sprintf("vector(%d)", dimensions)
	}
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS chunks (
		id              TEXT PRIMARY KEY,
		content         TEXT NOT NULL,
		embedding       ` + vectorType + `,
		document_type   TEXT NOT NULL DEFAULT 'general',
		filename        TEXT NOT NULL DEFAULT '',
		quarter         TEXT NOT NULL DEFAULT 'unknown',
		year            TEXT NOT NULL DEFAULT 'unknown',
		fiscal_period   TEXT NOT NULL DEFAULT 'unknown',
		section_name    TEXT NOT NULL DEFAULT 'unknown',
		page_number     INTEGER NOT NULL DEFAULT 0,
		chunk_index     INTEGER NOT NULL DEFAULT 0,
		content_type    TEXT NOT NULL DEFAULT 'text',
		source_document TEXT NOT NULL DEFAULT '',
		embedding_model TEXT NOT NULL DEFAULT '',
		inserted_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_period ON chunks(year, quarter);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_type ON chunks(document_type);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("creating chunks table: %w", err)
	}
	return nil
}

// Insert upserts records in one batch.
func (s *Store) Insert(ctx context.Context, records []driven.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", domain.ErrInvalidInput)
		}
		m := r.Metadata
		batch.Queue(`
			INSERT INTO chunks (id, content, embedding, document_type, filename, quarter, year,
				fiscal_period, section_name, page_number, chunk_index, content_type,
				source_document, embedding_model)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				document_type = EXCLUDED.document_type,
				filename = EXCLUDED.filename,
				quarter = EXCLUDED.quarter,
				year = EXCLUDED.year,
				fiscal_period = EXCLUDED.fiscal_period,
				section_name = EXCLUDED.section_name,
				page_number = EXCLUDED.page_number,
				chunk_index = EXCLUDED.chunk_index,
				content_type = EXCLUDED.content_type,
				source_document = EXCLUDED.source_document,
				embedding_model = EXCLUDED.embedding_model`,
			r.ID, r.Content, pgv.NewVector(r.Embedding),
			m.DocumentType, m.Filename, m.Quarter, m.Year, m.FiscalPeriod,
			m.SectionName, m.PageNumber, m.ChunkIndex, string(m.ContentType),
			m.SourceDocument, m.EmbeddingModel)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// Query returns the k nearest records matching filters by cosine distance.
func (s *Store) Query(
	ctx context.Context, query []float32, k int, filters domain.Filters,
) ([]driven.VectorMatch, error) {
	if k <= 0 {
		return nil, nil
	}

	// $1 is the query vector and $2 the limit.
	where, args, err := whereClause(filters, 3)
	if err != nil {
		return nil, err
	}
	args = append([]any{pgv.NewVector(query), k}, args...)

	rows, err := s.pool.Query(ctx, `
		SELECT `+chunkColumns+`, embedding <=> $1 AS distance
		FROM chunks
		WHERE embedding IS NOT NULL`+where+`
		ORDER BY embedding <=> $1, inserted_at
		LIMIT $2`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var matches []driven.VectorMatch
	for rows.Next() {
		var (
			m           driven.VectorMatch
			contentType string
		)
		if err := rows.Scan(scanTargets(&m, &contentType, &m.Distance)...); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		m.Metadata.ContentType = domain.ContentType(contentType)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return matches, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// errStopScan ends pgx.ForEachRow early without surfacing as a failure.
var errStopScan = errors.New("stop scan")

// Scan calls fn for every chunk in insertion order.
func (s *Store) Scan(ctx context.Context, fn func(id string, meta domain.ChunkMetadata) error) error {
	rows, err := s.pool.Query(ctx, "SELECT "+chunkColumns+" FROM chunks ORDER BY inserted_at, id")
	if err != nil {
		return fmt.Errorf("scanning chunks: %w", err)
	}

	var (
		m           driven.VectorMatch
		contentType string
		fnErr       error
	)
	_, err = pgx.ForEachRow(rows, scanTargets(&m, &contentType), func() error {
		m.Metadata.ContentType = domain.ContentType(contentType)
		if fnErr = fn(m.ID, m.Metadata); fnErr != nil {
			return errStopScan
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("scanning chunks: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// scanTargets lists destinations in chunkColumns order, followed by extra.
func scanTargets(m *driven.VectorMatch, contentType *string, extra ...any) []any {
	targets := []any{
		&m.ID, &m.Content,
		&m.Metadata.DocumentType, &m.Metadata.Filename, &m.Metadata.Quarter,
		&m.Metadata.Year, &m.Metadata.FiscalPeriod, &m.Metadata.SectionName,
		&m.Metadata.PageNumber, &m.Metadata.ChunkIndex, contentType,
		&m.Metadata.SourceDocument, &m.Metadata.EmbeddingModel,
	}
	return append(targets, extra...)
}

// whereClause renders filters as AND-ed equality tests with numbered
// placeholders starting at first. Column names are checked against the
// filterable field list.
func whereClause(filters domain.Filters, first int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		if !domain.IsFilterField(k) {
			return "", nil, fmt.Errorf("%w: unknown filter field %q", domain.ErrInvalidInput, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	args := make([]any, len(keys))
	for i, k := range keys {
		fmt.Fprintf(&b, " AND %s = $%d", k, first+i)
		arg, err := filterArg(k, filters[k])
		if err != nil {
			return "", nil, err
		}
		args[i] = arg
	}
	return b.String(), args, nil
}

// filterArg binds integer columns as numbers and everything else as text.
func filterArg(field, value string) (any, error) {
	if !domain.IsIntegerField(field) {
		return value, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("%w: filter %s needs an integer, got %q", domain.ErrInvalidInput, field, value)
	}
	return n, nil
}
