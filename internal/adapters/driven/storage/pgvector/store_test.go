package pgvector

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
)

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name     string
		filters  domain.Filters
		wantSQL  string
		wantArgs []any
	}{
		{"none", nil, "", nil},
		{"single", domain.Filters{"year": "2025"}, " AND year = $3", []any{"2025"}},
		{
			"sorted",
			domain.Filters{"year": "2025", "quarter": "Q1"},
			" AND quarter = $3 AND year = $4",
			[]any{"Q1", "2025"},
		},
		{
			"integer columns",
			domain.Filters{"page_number": "3", "chunk_index": "0"},
			" AND chunk_index = $3 AND page_number = $4",
			[]any{0, 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := whereClause(tt.filters, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestWhereClause_UnknownField(t *testing.T) {
	_, _, err := whereClause(domain.Filters{"id; DROP TABLE chunks": "x"}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWhereClause_NonNumericPage(t *testing.T) {
	_, _, err := whereClause(domain.Filters{"page_number": "three"}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewStore_RequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// TestStore_Integration runs against a live database when
// FINQA_TEST_PG_DSN is set.
func TestStore_Integration(t *testing.T) {
	dsn := os.Getenv("FINQA_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("FINQA_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn, 2)
	require.NoError(t, err)
	defer store.Close()

	year := "t" + uuid.NewString()[:8]
	near, far := uuid.NewString(), uuid.NewString()
	require.NoError(t, store.Insert(ctx, []driven.VectorRecord{
		{ID: far, Embedding: []float32{0, 1}, Content: "far", Metadata: domain.ChunkMetadata{Year: year, Quarter: "Q1"}},
		{ID: near, Embedding: []float32{1, 0.1}, Content: "near", Metadata: domain.ChunkMetadata{Year: year, Quarter: "Q1"}},
	}))

	matches, err := store.Query(ctx, []float32{1, 0}, 5, domain.Filters{"year": year})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, near, matches[0].ID)
	assert.Equal(t, "near", matches[0].Content)
	assert.Less(t, matches[0].Distance, matches[1].Distance)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 2)
}
