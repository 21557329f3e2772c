// Command finqa answers questions about financial filings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodia-labs/finqa/internal/adapters/driven/ai"
	"github.com/custodia-labs/finqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/finqa/internal/adapters/driving/cli"
	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/core/ports/driving"
	"github.com/custodia-labs/finqa/internal/core/services"
	"github.com/custodia-labs/finqa/internal/logger"
	"github.com/custodia-labs/finqa/internal/postprocessors"
)

// version is overridden with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	dataDir, err := file.DefaultDir()
	if err != nil {
		logger.Error("%v", err)
		return err
	}

	store, err := file.NewConfigStore(dataDir)
	if err != nil {
		logger.Error("Loading config: %v", err)
		return err
	}
	settings := services.NewSettingsService(store, ai.NewConfigValidator())

	cli.SetVersion(version)
	cli.SetSettingsService(settings)
	cli.SetServiceLoader(newLoader(settings, dataDir))

	// Cobra prints the error itself.
	return cli.Execute(ctx)
}

// newLoader returns a loader that builds the data services from the
// settings current at call time.
func newLoader(settings driving.SettingsService, dataDir string) cli.ServiceLoader {
	return func(ctx context.Context) (*cli.Services, error) {
		s, err := settings.Get()
		if err != nil {
			return nil, fmt.Errorf("loading settings: %w", err)
		}
		return buildServices(ctx, s, dataDir)
	}
}

// buildServices wires the adapters and core services for s.
func buildServices(ctx context.Context, s *domain.AppSettings, dataDir string) (*cli.Services, error) {
	res, err := ai.Initialise(ctx, s, dataDir)
	if err != nil {
		return nil, err
	}

	chunks := services.NewChunkStore(res.VectorIndex, res.EmbeddingService)

	var workflow *services.Workflow
	if res.HasLLM() {
		prompts, err := file.NewPromptStore(filepath.Join(dataDir, "prompts"))
		if err != nil {
			res.Close()
			return nil, err
		}
		workflow = newWorkflow(s, res, prompts, chunks)
	}
	analysis := services.NewAnalysisService(workflow, chunks)

	pipeline, err := postprocessors.NewDefaultPipeline(s.Chunker)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("building chunk pipeline: %w", err)
	}
	opts := []services.IngestOption{services.WithConcurrency(s.Ingest.Concurrency)}
	for _, c := range res.Converters {
		opts = append(opts, services.WithConverter(c))
	}
	ingest := services.NewIngestService(pipeline, chunks, opts...)

	return &cli.Services{
		Analysis: analysis,
		Search:   analysis,
		Ingest:   ingest,
		Warnings: res.Warnings,
		Close:    res.Close,
	}, nil
}

// newWorkflow assembles the plan-execute workflow. The orchestrator model
// plans; the specialist model runs every other node.
func newWorkflow(
	s *domain.AppSettings, res *ai.InitResult, prompts driven.PromptStore, chunks *services.ChunkStore,
) *services.Workflow {
	formatter := services.NewContextFormatter(s.Retrieval.ContextTokens)
	opts := driven.GenerateOptions{Temperature: s.LLM.Temperature}

	orchestrator := services.LLMConfig{
		LLM: res.OrchestratorLLM, Prompts: prompts, Formatter: formatter, Options: opts,
	}
	specialist := services.LLMConfig{
		LLM: res.SpecialistLLM, Prompts: prompts, Formatter: formatter, Options: opts,
	}

	retriever := services.NewRetrievalPlanner(chunks, specialist,
		services.WithPerQueryLimit(s.Retrieval.PerQueryLimit),
		services.WithDedupPrefix(s.Retrieval.DedupPrefix),
		services.WithRelaxedMaxDistance(s.Retrieval.RelaxedMaxDistance),
	)

	var wopts []services.WorkflowOption
	if logger.IsVerbose() {
		wopts = append(wopts, services.WithObserver(logProgress))
	}

	return services.NewWorkflow(
		services.NewOrchestrator(orchestrator),
		retriever,
		services.NewCalculationEngine(specialist),
		services.NewSynthesizer(specialist),
		wopts...,
	)
}

// logProgress reports each workflow node as it is entered.
func logProgress(node domain.NodeName, state domain.WorkflowState) {
	if node == domain.NodeOrchestrator {
		return
	}
	logger.Info("%s: step %d of %d, %d context items", node, state.CurrentStep+1, len(state.Plan), len(state.Context))
}
