package driving

import (
	"context"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// SearchService provides direct chunk search to external actors.
type SearchService interface {
	// Search returns up to limit chunks nearest to query.
	// Limit must be between 1 and 100.
	Search(ctx context.Context, query string, filters domain.Filters, limit int) ([]domain.RetrievalResult, error)
}

// AnalysisService answers financial questions over the indexed documents.
type AnalysisService interface {
	// Analyze runs the plan-execute workflow for query.
	// Failures are reported in the response, never as a panic.
	Analyze(ctx context.Context, query string) domain.QueryResponse

	// Stats describes the chunk store and indexed sections.
	Stats(ctx context.Context) (domain.SystemStats, error)

	// Documents lists ingested documents and sections.
	Documents(ctx context.Context) (domain.DocumentListing, error)
}

// IngestService converts, splits and indexes documents.
type IngestService interface {
	// IngestFile processes a single document.
	IngestFile(ctx context.Context, path string) (domain.FileReport, error)

	// IngestDir processes every supported file in dir.
	// Per-file failures are recorded on the report.
	IngestDir(ctx context.Context, dir string) (domain.IngestReport, error)

	// Watch ingests files created in dir until ctx is cancelled.
	Watch(ctx context.Context, dir string, onFile func(domain.FileReport)) error
}
