package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

var inventoryJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chunk store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runDocuments,
}

var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List indexed section names",
	Args:  cobra.NoArgs,
	RunE:  runSections,
}

func init() {
	for _, c := range []*cobra.Command{statsCmd, documentsCmd, sectionsCmd} {
		c.Flags().BoolVar(&inventoryJSON, "json", false, "output as JSON")
		rootCmd.AddCommand(c)
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	svc, release, err := loadAnalysis(cmd)
	if err != nil {
		return err
	}
	defer release()

	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return err
	}
	if inventoryJSON {
		return writeStructured(cmd.OutOrStdout(), formatJSON, stats)
	}

	p := newPalette(cmd.OutOrStdout())
	cmd.Println(p.title.Render("Chunk store"))
	cmd.Printf("  Chunks:          %d\n", stats.TotalChunks)
	cmd.Printf("  Sections:        %d\n", stats.SectionsIndexed)
	cmd.Printf("  Embedding model: %s\n", valueOr(stats.EmbeddingModel, domain.Unknown))
	cmd.Printf("  Dimensions:      %d\n", stats.EmbeddingDimension)
	return nil
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	listing, err := documentListing(cmd)
	if err != nil {
		return err
	}
	if inventoryJSON {
		return writeStructured(cmd.OutOrStdout(), formatJSON, listing)
	}
	if len(listing.DocumentsLoaded) == 0 {
		cmd.Println("No documents ingested.")
		return nil
	}

	p := newPalette(cmd.OutOrStdout())
	cmd.Println(p.title.Render("Documents"))
	for _, d := range listing.DocumentsLoaded {
		cmd.Printf("  %s  %s  %s %s\n", d.Filename, p.muted.Render(d.DocumentType), d.Quarter, d.Year)
	}
	cmd.Printf("\n%d documents, %d chunks\n", len(listing.DocumentsLoaded), listing.TotalChunks)
	return nil
}

func runSections(cmd *cobra.Command, _ []string) error {
	listing, err := documentListing(cmd)
	if err != nil {
		return err
	}
	if inventoryJSON {
		names := listing.SectionNames
		if names == nil {
			names = []string{}
		}
		return writeStructured(cmd.OutOrStdout(), formatJSON, names)
	}
	for _, name := range listing.SectionNames {
		cmd.Println(name)
	}
	cmd.Printf("\n%d sections\n", listing.TotalSections)
	return nil
}

func documentListing(cmd *cobra.Command) (domain.DocumentListing, error) {
	svc, release, err := loadAnalysis(cmd)
	if err != nil {
		return domain.DocumentListing{}, err
	}
	defer release()
	return svc.Documents(cmd.Context())
}

// loadAnalysis returns the analysis service or an error when it is missing.
func loadAnalysis(cmd *cobra.Command) (analysisInventory, func(), error) {
	svc, release, err := loadServices(cmd)
	if err != nil {
		return nil, nil, err
	}
	if svc.Analysis == nil {
		release()
		return nil, nil, errors.New("analysis service not configured")
	}
	return svc.Analysis, release, nil
}

// analysisInventory is the part of the analysis service used here.
type analysisInventory interface {
	Stats(ctx context.Context) (domain.SystemStats, error)
	Documents(ctx context.Context) (domain.DocumentListing, error)
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
