package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
	"github.com/custodia-labs/finqa/internal/logger"
)

// Ensure ChunkStore can back the planner.
var _ ChunkSearcher = (*ChunkStore)(nil)

// Retrieval defaults.
const (
	DefaultPerQueryLimit = 5
	DefaultDedupPrefix   = 100
)

// RetrievalOutcome is the result of one retrieval step.
type RetrievalOutcome struct {
	Plan    domain.RetrievalPlan
	Results []domain.RetrievalResult

	// Err joins the errors of any searches that failed.
	Err error

	// Unavailable is set when every search of the final pass failed.
	Unavailable bool
}

// RetrievalPlanner turns a plan step into searches and runs them.
type RetrievalPlanner struct {
	store       ChunkSearcher
	llm         LLMConfig
	perQuery    int
	dedupPrefix int
	relaxedMax  float64
}

// RetrievalOption configures a RetrievalPlanner.
type RetrievalOption func(*RetrievalPlanner)

// WithPerQueryLimit sets the number of results requested per search query.
func WithPerQueryLimit(n int) RetrievalOption {
	return func(p *RetrievalPlanner) {
		if n > 0 {
			p.perQuery = n
		}
	}
}

// WithDedupPrefix sets how many leading runes of content form the dedup
// fingerprint. Zero or less fingerprints the whole content.
func WithDedupPrefix(n int) RetrievalOption {
	return func(p *RetrievalPlanner) {
		p.dedupPrefix = n
	}
}

// WithRelaxedMaxDistance drops results of an unfiltered retry that are
// farther than d. Zero keeps everything.
func WithRelaxedMaxDistance(d float64) RetrievalOption {
	return func(p *RetrievalPlanner) {
		p.relaxedMax = d
	}
}

// NewRetrievalPlanner creates a planner searching store.
func NewRetrievalPlanner(store ChunkSearcher, llm LLMConfig, opts ...RetrievalOption) *RetrievalPlanner {
	p := &RetrievalPlanner{
		store:       store,
		llm:         llm,
		perQuery:    DefaultPerQueryLimit,
		dedupPrefix: DefaultDedupPrefix,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ExecuteRetrieval plans and runs the searches for step.
// It never fails outright; search failures are reported on the outcome.
func (p *RetrievalPlanner) ExecuteRetrieval(
	ctx context.Context, query string, step domain.PlanStep, items []domain.ContextItem,
) RetrievalOutcome {
	plan := p.plan(ctx, query, step, items)

	results, errs, attempts := p.searchAll(ctx, plan.SearchQueries, plan.Filters)
	if len(results) == 0 && len(plan.Filters) > 0 && len(errs) < attempts {
		logger.Warn("No results with filters %v for %q; retrying without filters", plan.Filters, step)
		plan.FiltersDropped = true
		results, errs, attempts = p.searchAll(ctx, plan.SearchQueries, nil)
		results = p.relax(results)
	}

	out := RetrievalOutcome{
		Plan:        plan,
		Results:     dedupe(results, p.dedupPrefix),
		Err:         errors.Join(errs...),
		Unavailable: attempts > 0 && len(errs) == attempts,
	}
	logger.Debug("Retrieval for %q: %d queries, %d unique results", step, len(plan.SearchQueries), len(out.Results))
	return out
}

// plan asks the LLM for search queries. A failed or malformed response
// falls back to searching the step text without filters.
func (p *RetrievalPlanner) plan(
	ctx context.Context, query string, step domain.PlanStep, items []domain.ContextItem,
) domain.RetrievalPlan {
	fallback := func(error) domain.RetrievalPlan {
		return domain.RetrievalPlan{
			SearchQueries: []string{string(step)},
			Reasoning:     "fallback: searching the plan step directly",
		}
	}
	call := structured[domain.RetrievalPlan]{
		prompt:   driven.PromptRetrieval,
		json:     true,
		parse:    parseRetrievalPlan,
		fallback: fallback,
	}
	plan, _ := call.run(ctx, p.llm.completer(), map[string]any{
		"Query":   query,
		"Step":    string(step),
		"Context": p.llm.formatter().Items(items),
	})

	queries := make([]string, 0, len(plan.SearchQueries))
	for _, q := range plan.SearchQueries {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		queries = []string{string(step)}
	}
	plan.SearchQueries = queries

	clean, dropped := plan.Filters.Clean()
	if len(dropped) > 0 {
		logger.Warn("Dropping unsupported filters %v", dropped)
	}
	plan.Filters = clean
	return plan
}

// retrievalPlanWire accepts filter values of any JSON scalar type,
// since models often emit years as numbers.
type retrievalPlanWire struct {
	SearchQueries []string       `json:"search_queries"`
	Filters       map[string]any `json:"filters"`
	Reasoning     string         `json:"reasoning"`
}

func parseRetrievalPlan(raw string) (domain.RetrievalPlan, error) {
	wire, err := parseObject[retrievalPlanWire](raw)
	if err != nil {
		return domain.RetrievalPlan{}, err
	}
	plan := domain.RetrievalPlan{
		SearchQueries: wire.SearchQueries,
		Reasoning:     wire.Reasoning,
	}
	if len(wire.Filters) > 0 {
		plan.Filters = make(domain.Filters, len(wire.Filters))
		for k, v := range wire.Filters {
			switch val := v.(type) {
			case string:
				plan.Filters[k] = val
			case float64:
				plan.Filters[k] = strconv.FormatFloat(val, 'f', -1, 64)
			}
		}
	}
	return plan, nil
}

// searchAll runs every query and concatenates the results in query order.
func (p *RetrievalPlanner) searchAll(
	ctx context.Context, queries []string, filters domain.Filters,
) ([]domain.RetrievalResult, []error, int) {
	var results []domain.RetrievalResult
	var errs []error
	for _, q := range queries {
		hits, err := p.store.Search(ctx, q, filters, p.perQuery)
		if err != nil {
			logger.Warn("Search %q failed: %v", q, err)
			errs = append(errs, fmt.Errorf("search %q: %w", q, err))
			continue
		}
		results = append(results, hits...)
	}
	return results, errs, len(queries)
}

func (p *RetrievalPlanner) relax(results []domain.RetrievalResult) []domain.RetrievalResult {
	if p.relaxedMax <= 0 {
		return results
	}
	kept := results[:0:0]
	for _, r := range results {
		if r.Distance == nil || *r.Distance <= p.relaxedMax {
			kept = append(kept, r)
		}
	}
	if dropped := len(results) - len(kept); dropped > 0 {
		logger.Debug("Dropped %d unfiltered results beyond distance %.3f", dropped, p.relaxedMax)
	}
	return kept
}

// dedupe keeps the first result for each content fingerprint.
func dedupe(results []domain.RetrievalResult, prefix int) []domain.RetrievalResult {
	seen := make(map[[sha256.Size]byte]struct{}, len(results))
	out := make([]domain.RetrievalResult, 0, len(results))
	for _, r := range results {
		key := fingerprint(r.Content, prefix)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// fingerprint hashes the first n runes of content.
func fingerprint(content string, n int) [sha256.Size]byte {
	if n > 0 {
		count := 0
		for i := range content {
			if count == n {
				content = content[:i]
				break
			}
			count++
		}
	}
	return sha256.Sum256([]byte(content))
}
