package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/finqa/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/finqa/internal/adapters/driven/storage/vector"
	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.VectorIndex = (*Store)(nil)

// chunkColumns is the column list shared by every chunk SELECT.
const chunkColumns = `id, content, embedding, document_type, filename, quarter, year,
	fiscal_period, section_name, page_number, chunk_index, content_type,
	source_document, embedding_model`

// Store is a SQLite-backed vector index.
// Rows are narrowed with SQL on the metadata columns and ranked in process.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the database at dbPath.
// If dbPath is empty, defaults to ~/.finqa/finqa.db.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".finqa", "finqa.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL lets ingestion and queries run side by side.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Insert stores records in one transaction, replacing existing IDs.
func (s *Store) Insert(ctx context.Context, records []driven.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (`+chunkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			document_type = excluded.document_type,
			filename = excluded.filename,
			quarter = excluded.quarter,
			year = excluded.year,
			fiscal_period = excluded.fiscal_period,
			section_name = excluded.section_name,
			page_number = excluded.page_number,
			chunk_index = excluded.chunk_index,
			content_type = excluded.content_type,
			source_document = excluded.source_document,
			embedding_model = excluded.embedding_model
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record without id", domain.ErrInvalidInput)
		}
		m := r.Metadata
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Content, float32SliceToBytes(r.Embedding),
			m.DocumentType, m.Filename, m.Quarter, m.Year, m.FiscalPeriod,
			m.SectionName, m.PageNumber, m.ChunkIndex, string(m.ContentType),
			m.SourceDocument, m.EmbeddingModel)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

// Query returns the k nearest records matching filters.
func (s *Store) Query(
	ctx context.Context, query []float32, k int, filters domain.Filters,
) ([]driven.VectorMatch, error) {
	where, args, err := whereClause(filters)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks"+where+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var (
		cands   []vector.Candidate[driven.VectorMatch]
		skipped vector.Mismatches
	)
	for rows.Next() {
		match, emb, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if len(emb) != len(query) {
			skipped.Add(len(emb), match.Metadata.EmbeddingModel)
			continue
		}
		d, err := vector.CosineDistance(query, emb)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", match.ID, err)
		}
		match.Distance = d
		cands = append(cands, vector.Candidate[driven.VectorMatch]{Item: match, Distance: d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
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
		matches[i] = c.Item
	}
	return matches, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Scan calls fn for every chunk in insertion order.
func (s *Store) Scan(ctx context.Context, fn func(id string, meta domain.ChunkMetadata) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT "+chunkColumns+" FROM chunks ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("scanning chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		match, _, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(match.ID, match.Metadata); err != nil {
			return err
		}
	}
	return rows.Err()
}

// whereClause renders filters as an AND of equality tests.
// Column names are checked against the filterable field list, so only
// values travel as parameters.
func whereClause(filters domain.Filters) (string, []any, error) {
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

	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = k + " = ?"
		arg, err := filterArg(k, filters[k])
		if err != nil {
			return "", nil, err
		}
		args[i] = arg
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_chunks.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk reads one chunk row in chunkColumns order.
func scanChunk(row rowScanner) (driven.VectorMatch, []float32, error) {
	var (
		m           driven.VectorMatch
		blob        []byte
		contentType string
	)
	err := row.Scan(&m.ID, &m.Content, &blob,
		&m.Metadata.DocumentType, &m.Metadata.Filename, &m.Metadata.Quarter,
		&m.Metadata.Year, &m.Metadata.FiscalPeriod, &m.Metadata.SectionName,
		&m.Metadata.PageNumber, &m.Metadata.ChunkIndex, &contentType,
		&m.Metadata.SourceDocument, &m.Metadata.EmbeddingModel)
	if err != nil {
		return driven.VectorMatch{}, nil, fmt.Errorf("scanning chunk: %w", err)
	}
	m.Metadata.ContentType = domain.ContentType(contentType)
	return m, bytesToFloat32Slice(blob), nil
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
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
