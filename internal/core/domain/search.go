package domain

import (
	"fmt"
	"strconv"
)

// Filters constrains a search to chunks whose metadata equals every entry.
// An empty or nil Filters is unconstrained.
type Filters map[string]string

// Clean returns a copy holding only recognised, non-empty entries,
// along with the keys that were dropped. Integer fields are kept in
// canonical decimal form and dropped when the value is not a number.
func (f Filters) Clean() (Filters, []string) {
	if len(f) == 0 {
		return nil, nil
	}
	out := make(Filters, len(f))
	var dropped []string
	for k, v := range f {
		canon, err := filterValue(k, v)
		if err != nil || canon == "" {
			dropped = append(dropped, k)
			continue
		}
		out[k] = canon
	}
	if len(out) == 0 {
		return nil, dropped
	}
	return out, dropped
}

// Validate returns ErrInvalidInput for the first unknown key or
// non-numeric integer value. Empty values are allowed and mean unset.
func (f Filters) Validate() error {
	for k, v := range f {
		if v == "" {
			continue
		}
		if _, err := filterValue(k, v); err != nil {
			return err
		}
	}
	return nil
}

func filterValue(field, value string) (string, error) {
	if !IsFilterField(field) {
		return "", fmt.Errorf("%w: unknown filter field %q", ErrInvalidInput, field)
	}
	if value == "" || !IsIntegerField(field) {
		return value, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return "", fmt.Errorf("%w: filter %s needs an integer, got %q", ErrInvalidInput, field, value)
	}
	return strconv.Itoa(n), nil
}

// Matches reports whether meta satisfies every filter entry.
func (f Filters) Matches(meta ChunkMetadata) bool {
	for k, want := range f {
		got, ok := meta.Field(k)
		if canon, err := filterValue(k, want); err == nil {
			want = canon
		}
		if !ok || got != want {
			return false
		}
	}
	return true
}

// RetrievalResult is a single search hit.
type RetrievalResult struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`

	// Distance is the index distance where lower is more similar.
	// Nil when the index does not report one.
	Distance *float64 `json:"distance,omitempty"`
}

// RetrievalPlan is the parsed output of the retrieval planning call.
type RetrievalPlan struct {
	SearchQueries []string `json:"search_queries"`
	Filters       Filters  `json:"filters"`
	Reasoning     string   `json:"reasoning"`

	// FiltersDropped is set when the filtered searches found nothing
	// and the queries were re-run without filters.
	FiltersDropped bool `json:"-"`
}

// StoreStats describes the chunk store.
type StoreStats struct {
	TotalChunks        int    `json:"total_chunks"`
	EmbeddingModel     string `json:"embedding_model"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// SystemStats adds section counts to the store statistics.
type SystemStats struct {
	StoreStats
	SectionsIndexed int `json:"sections_indexed"`
}

// DocumentSummary identifies one ingested document.
type DocumentSummary struct {
	Filename     string `json:"filename"`
	DocumentType string `json:"document_type"`
	Quarter      string `json:"quarter"`
	Year         string `json:"year"`
}

// DocumentListing is the inventory of ingested content.
type DocumentListing struct {
	TotalSections   int               `json:"total_sections"`
	SectionNames    []string          `json:"section_names"`
	TotalChunks     int               `json:"total_chunks"`
	DocumentsLoaded []DocumentSummary `json:"documents_loaded"`
}
