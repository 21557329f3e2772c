// Package sqlite provides a SQLite-backed implementation of driven.VectorIndex.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Chunk metadata lives in one column per field, named like the JSON keys of
// domain.ChunkMetadata, so filters translate to plain equality tests.
// Embeddings are little-endian float32 blobs.
//
// # Search
//
// Queries narrow rows with SQL and rank the survivors by cosine distance in
// process. This is exact search and suits corpora of a few hundred thousand
// chunks; use the pgvector backend beyond that.
//
// # Data Location
//
// By default, the database is stored at ~/.finqa/finqa.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
