package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driving"
)

var (
	ingestWatch bool
	ingestJSON  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Convert and index documents",
	Long: `Converts each document to sectioned markdown, splits it into chunks and
stores them with embeddings.

A path may be a file or a directory. Directories are scanned without
recursion. Document type, quarter and year are inferred from the file name,
for example FAB-FS-Q1-2025-English.pdf.

With --watch, the last directory is watched and new files are ingested
as they appear until interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the directory for new files")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	svc, release, err := loadServices(cmd)
	if err != nil {
		return err
	}
	defer release()
	if svc.Ingest == nil {
		return errors.New("ingest service not configured")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var (
		report   domain.IngestReport
		watchDir string
	)
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		if info.IsDir() {
			watchDir = path
		}
		r, err := ingestPath(ctx, svc.Ingest, path, info.IsDir())
		report.Files = append(report.Files, r.Files...)
		report.Sections += r.Sections
		report.Chunks += r.Chunks
		if err != nil {
			writeIngestReport(out, report)
			return err
		}
	}

	if ingestJSON {
		if err := writeStructured(out, formatJSON, report); err != nil {
			return err
		}
	} else {
		writeIngestReport(out, report)
	}

	if !ingestWatch {
		if failed := report.Failed(); failed > 0 && failed == len(report.Files) {
			return fmt.Errorf("all %d files failed to ingest", failed)
		}
		return nil
	}
	if watchDir == "" {
		return errors.New("--watch needs a directory")
	}

	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", watchDir)
	return svc.Ingest.Watch(ctx, watchDir, func(r domain.FileReport) {
		writeFileReport(out, r)
	})
}

// ingestPath ingests a file or directory as a report.
func ingestPath(ctx context.Context, svc driving.IngestService, path string, dir bool) (domain.IngestReport, error) {
	if dir {
		return svc.IngestDir(ctx, path)
	}
	r, err := svc.IngestFile(ctx, path)
	if err != nil {
		// Single file failures are reported like directory entries.
		if r.Path == "" {
			r.Path = path
		}
		if r.Error == "" {
			r.Error = err.Error()
		}
		if errors.Is(err, context.Canceled) {
			return domain.IngestReport{Files: []domain.FileReport{r}}, err
		}
	}
	return domain.IngestReport{Files: []domain.FileReport{r}, Sections: r.Sections, Chunks: r.Chunks}, nil
}

var (
	okMark   = color.New(color.FgGreen, color.Bold).SprintFunc()
	failMark = color.New(color.FgRed, color.Bold).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

// writeFileReport prints one line per ingested file.
func writeFileReport(w io.Writer, r domain.FileReport) {
	if r.Error != "" {
		fmt.Fprintf(w, "%s %s: %s\n", failMark("✗"), r.Path, r.Error)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", okMark("✓"), r.Path,
		dim(fmt.Sprintf("(%d sections, %d chunks)", r.Sections, r.Chunks)))
}

// writeIngestReport prints every file followed by a summary line.
func writeIngestReport(w io.Writer, report domain.IngestReport) {
	for _, f := range report.Files {
		writeFileReport(w, f)
	}
	fmt.Fprintf(w, "\n%d files, %d sections, %d chunks", len(report.Files), report.Sections, report.Chunks)
	if failed := report.Failed(); failed > 0 {
		fmt.Fprintf(w, ", %s", failMark(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintln(w)
}
