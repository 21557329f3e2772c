package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// snippetLength is the number of runes of chunk text shown per result.
const snippetLength = 160

var (
	searchLimit   int
	searchFilters []string
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed chunks",
	Long: `Embeds the query and returns the nearest chunks by cosine distance.
Results can be narrowed with exact metadata filters, for example
--filter year=2025 --filter document_type=financial_statement.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "metadata filter as field=value (repeatable)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	filters, err := parseFilters(searchFilters)
	if err != nil {
		return err
	}

	svc, release, err := loadServices(cmd)
	if err != nil {
		return err
	}
	defer release()
	if svc.Search == nil {
		return errors.New("search service not configured")
	}

	results, err := svc.Search.Search(cmd.Context(), args[0], filters, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		if results == nil {
			results = []domain.RetrievalResult{}
		}
		return writeStructured(cmd.OutOrStdout(), formatJSON, results)
	}
	outputSearchTable(cmd, results)
	return nil
}

// parseFilters turns field=value pairs into filters.
func parseFilters(pairs []string) (domain.Filters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(domain.Filters, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("%w: filter %q must be field=value", domain.ErrInvalidInput, pair)
		}
		if !domain.IsFilterField(field) {
			return nil, fmt.Errorf("%w: unknown filter field %q (use one of %s)",
				domain.ErrInvalidInput, field, strings.Join(domain.FilterFields(), ", "))
		}
		filters[field] = strings.TrimSpace(value)
	}
	return filters, nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.RetrievalResult) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		m := results[i].Metadata
		// Format: [N] filename p.PAGE - section (distance)
		cmd.Printf("  [%d] %s p.%d - %s", i+1, m.Filename, m.PageNumber, m.SectionName)
		if d := results[i].Distance; d != nil {
			cmd.Printf(" (%.3f)", *d)
		}
		cmd.Println()
		cmd.Printf("      %s %s, %s\n", m.Quarter, m.Year, m.ContentType)
		cmd.Printf("      %s\n", snippet(results[i].Content, snippetLength))
		cmd.Println()
	}
}

// snippet flattens s to a single line of at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
