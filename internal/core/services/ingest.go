package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/core/ports/driving"
	"github.com/custodia-labs/finqa/internal/logger"
	"github.com/custodia-labs/finqa/internal/postprocessors"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// DefaultIngestConcurrency is the number of files processed at once.
const DefaultIngestConcurrency = 4

// watchSettle is how long a created file must stay quiet before it is ingested.
const watchSettle = 500 * time.Millisecond

// ChunkWriter is the write side of ChunkStore used during ingestion.
type ChunkWriter interface {
	Insert(ctx context.Context, chunks []domain.Chunk) (int, error)
}

var _ ChunkWriter = (*ChunkStore)(nil)

// IngestService converts documents to marked text, splits them into
// chunks and stores them.
type IngestService struct {
	converters  []driven.DocumentConverter
	pipeline    driven.PostProcessorPipeline
	store       ChunkWriter
	concurrency int
}

// IngestOption configures an IngestService.
type IngestOption func(*IngestService)

// WithConcurrency sets how many files IngestDir processes at once.
func WithConcurrency(n int) IngestOption {
	return func(s *IngestService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithConverter adds a document converter. Converters are tried in the
// order they were added.
func WithConverter(c driven.DocumentConverter) IngestOption {
	return func(s *IngestService) {
		if c != nil {
			s.converters = append(s.converters, c)
		}
	}
}

// NewIngestService creates an ingest service.
func NewIngestService(pipeline driven.PostProcessorPipeline, store ChunkWriter, opts ...IngestOption) *IngestService {
	s := &IngestService{
		pipeline:    pipeline,
		store:       store,
		concurrency: DefaultIngestConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Supports reports whether some converter handles the file at path.
func (s *IngestService) Supports(path string) bool {
	return s.converterFor(path) != nil
}

func (s *IngestService) converterFor(path string) driven.DocumentConverter {
	ext := strings.ToLower(filepath.Ext(path))
	for _, c := range s.converters {
		if c.Supports(ext) {
			return c
		}
	}
	return nil
}

// IngestFile converts, splits and stores one document.
// A document without sections is reported with zero chunks, not as an error.
func (s *IngestService) IngestFile(ctx context.Context, path string) (domain.FileReport, error) {
	report := domain.FileReport{Path: path}

	conv := s.converterFor(path)
	if conv == nil {
		return report, fmt.Errorf("%w: no converter for %q", domain.ErrUnsupportedType, filepath.Ext(path))
	}
	if s.pipeline == nil {
		return report, errors.New("ingest pipeline not configured")
	}

	meta := InferMetadata(filepath.Base(path))
	logger.Debug("Ingesting %s as %s (%s %s)", path, meta.DocumentType, meta.Quarter, meta.Year)

	content, err := conv.Convert(ctx, path, meta.DocumentType)
	if err != nil {
		return report, fmt.Errorf("convert %s: %w", path, err)
	}

	chunks, err := s.pipeline.Process(ctx, &domain.ProcessedDocument{Content: content, Metadata: meta})
	if err != nil {
		return report, fmt.Errorf("split %s: %w", path, err)
	}
	if len(chunks) == 0 {
		logger.Warn("No sections found in %s", path)
		return report, nil
	}
	report.Sections = postprocessors.SectionCount(chunks)

	n, err := s.store.Insert(ctx, chunks)
	if err != nil {
		return report, fmt.Errorf("store %s: %w", path, err)
	}
	report.Chunks = n
	logger.Info("Ingested %s: %d sections, %d chunks", filepath.Base(path), report.Sections, report.Chunks)
	return report, nil
}

// IngestDir ingests every supported file directly inside dir.
// Per-file failures are recorded on the report; only a failure to read
// dir or a cancelled context is returned as an error.
func (s *IngestService) IngestDir(ctx context.Context, dir string) (domain.IngestReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return domain.IngestReport{}, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if s.Supports(p) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	logger.Section("Ingest")
	logger.Info("Found %d documents in %s", len(paths), dir)

	reports := make([]domain.FileReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				reports[i] = domain.FileReport{Path: p, Error: err.Error()}
				return err
			}
			r, err := s.IngestFile(gctx, p)
			if err != nil {
				logger.Error("Failed to ingest %s: %v", p, err)
				r.Error = err.Error()
			}
			reports[i] = r
			return nil
		})
	}
	err = g.Wait()

	report := domain.IngestReport{Files: reports}
	for _, r := range reports {
		report.Sections += r.Sections
		report.Chunks += r.Chunks
	}
	if err != nil {
		return report, fmt.Errorf("ingest %s: %w", dir, err)
	}
	return report, nil
}

// Watch ingests supported files created or rewritten in dir until ctx
// is cancelled. Each file is ingested once it has been quiet for a short
// settle period, and its report is passed to onFile.
func (s *IngestService) Watch(ctx context.Context, dir string, onFile func(domain.FileReport)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info("Watching %s for new documents", dir)

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok && t.Stop() {
			wg.Done()
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(watchSettle, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == t {
				delete(pending, path)
			}
			mu.Unlock()

			r, err := s.IngestFile(ctx, path)
			if err != nil {
				logger.Error("Failed to ingest %s: %v", path, err)
				r.Error = err.Error()
			}
			if onFile != nil {
				onFile(r)
			}
		})
		pending[path] = t
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !s.Supports(ev.Name) {
				continue
			}
			logger.Debug("Watch event %s", ev)
			schedule(ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// Filename patterns, tried in order against the upper-cased base name.
var (
	reFinancialStatement = regexp.MustCompile(`FS-Q([1-4])-(\d{4})`)
	reShortPresentation  = regexp.MustCompile(`FAB-Q([1-4])(\d{2})-EARNINGS-PRESENTATION`)
	reQuarterYear        = regexp.MustCompile(`Q([1-4])-(\d{4})`)
	reLoose              = regexp.MustCompile(`Q([1-4])['\-_ ]?(\d{2,4})`)
)

// InferMetadata derives the document type and reporting period from a
// filename such as FAB-FS-Q1-2025-English.pdf,
// FAB-Earnings-Presentation-Q1-2025.pdf or FAB-Q1-2025-Results-Call.pdf.
// Fields that cannot be inferred are set to domain.Unknown.
func InferMetadata(filename string) domain.DocumentMetadata {
	upper := strings.ToUpper(filename)
	meta := domain.DocumentMetadata{
		DocumentType:   documentType(upper),
		Filename:       filename,
		SourceDocument: filename,
	}

	var m []string
	switch {
	case meta.DocumentType == domain.DocumentTypeFinancialStatement:
		m = reFinancialStatement.FindStringSubmatch(upper)
	case meta.DocumentType == domain.DocumentTypeEarningsPresentation:
		m = reShortPresentation.FindStringSubmatch(upper)
	}
	if m == nil {
		m = reQuarterYear.FindStringSubmatch(upper)
	}
	if m == nil {
		m = reLoose.FindStringSubmatch(upper)
	}
	if len(m) == 3 && (len(m[2]) == 2 || len(m[2]) == 4) {
		meta.Quarter = "Q" + m[1]
		meta.Year = m[2]
		if len(meta.Year) == 2 {
			meta.Year = "20" + meta.Year
		}
		meta.FiscalPeriod = meta.Year + "-" + meta.Quarter
	}
	return meta.WithDefaults()
}

// documentType classifies an upper-cased filename. Order matters: the
// financial statement marker is the most specific, and results calls are
// checked before presentations.
func documentType(upper string) domain.DocumentType {
	switch {
	case strings.Contains(upper, "FS-"):
		return domain.DocumentTypeFinancialStatement
	case strings.Contains(upper, "RESULTS-CALL"), strings.Contains(upper, "RESULTS CALL"):
		return domain.DocumentTypeResultsCall
	case strings.Contains(upper, "EARNINGS-PRESENTATION"), strings.Contains(upper, "EARNINGS PRESENTATION"):
		return domain.DocumentTypeEarningsPresentation
	case strings.HasSuffix(upper, "-PRESENTATION.PDF") && !strings.Contains(upper, "CALL"):
		return domain.DocumentTypeEarningsPresentation
	default:
		return domain.DocumentTypeGeneral
	}
}
