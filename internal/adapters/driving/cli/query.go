package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

// defaultQueryTimeout bounds a single analysis run.
const defaultQueryTimeout = 3 * time.Minute

var (
	queryFormat  string
	queryTimeout time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query [question...]",
	Short: "Answer a question about the indexed documents",
	Long: `Plans the question into retrieval, calculation and synthesis steps,
runs them against the indexed documents and prints a cited answer.

Calculations are checked by evaluating the proposed formula locally,
and the final answer is graded against the retrieved context.`,
	Example: `  finqa query "What was net profit in Q1 2025?"
  finqa query --format json What is the cost to income ratio trend`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", formatText, "output format: text, json or yaml")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", defaultQueryTimeout, "maximum time to spend answering")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	if err := checkFormat(queryFormat); err != nil {
		return err
	}

	svc, release, err := loadServices(cmd)
	if err != nil {
		return err
	}
	defer release()
	if svc.Analysis == nil {
		return errors.New("analysis service not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, queryTimeout)
		defer cancel()
	}

	resp := svc.Analysis.Analyze(ctx, strings.Join(args, " "))

	out := cmd.OutOrStdout()
	if queryFormat != formatText {
		return writeStructured(out, queryFormat, resp)
	}
	return writeAnswer(out, resp)
}

// writeAnswer prints resp for people. Markdown is rendered on terminals.
func writeAnswer(w io.Writer, resp domain.QueryResponse) error {
	p := newPalette(w)
	if !resp.Success {
		_, err := fmt.Fprintf(w, "%s %s\n", p.failure.Render("Error:"), resp.Error)
		return err
	}

	md := answerMarkdown(resp)
	if width, ok := terminalWidth(w); ok {
		if rendered, err := renderMarkdown(md, width); err == nil {
			md = rendered
		}
	}
	if _, err := fmt.Fprintln(w, strings.TrimRight(md, "\n")); err != nil {
		return err
	}

	if v := resp.Validation; v != nil {
		status := p.success.Render("Validated")
		if !v.IsValid {
			status = p.warning.Render("Not validated")
		}
		line := status
		if v.Notes != "" {
			line += " " + p.muted.Render(v.Notes)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, line)
		for _, c := range v.UnsupportedClaims {
			fmt.Fprintf(w, "  unsupported: %s\n", c)
		}
		for _, c := range v.MissingCitations {
			fmt.Fprintf(w, "  missing citation: %s\n", c)
		}
	}
	_, err := fmt.Fprintln(w, p.muted.Render(fmt.Sprintf("%d steps", resp.ProcessingSteps)))
	return err
}

// answerMarkdown lays out the answer followed by calculations and sources.
func answerMarkdown(resp domain.QueryResponse) string {
	var b strings.Builder
	b.WriteString(resp.FinalAnswer)
	b.WriteString("\n")

	if len(resp.CalculationsPerformed) > 0 {
		b.WriteString("\n## Calculations\n\n")
		keys := make([]string, 0, len(resp.CalculationsPerformed))
		for k := range resp.CalculationsPerformed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("- " + calculationLine(k, resp.CalculationsPerformed[k]) + "\n")
		}
	}

	if len(resp.SourcesUsed) > 0 {
		b.WriteString("\n## Sources\n\n")
		for _, s := range resp.SourcesUsed {
			fmt.Fprintf(&b, "- %s, p.%d (%s, %s %s)\n", s.Document, s.Page, s.Section, s.Quarter, s.Year)
		}
	}
	return b.String()
}

// calculationLine summarises one calculation result.
func calculationLine(step string, r domain.CalculationResult) string {
	if !r.ExecutionSuccess {
		return fmt.Sprintf("%s: failed (%s)", step, r.ExecutionError)
	}
	line := step + ":"
	if r.CalculationType != "" {
		line += " " + r.CalculationType
	}
	if r.ValidatedResult != nil {
		line += " = " + strconv.FormatFloat(*r.ValidatedResult, 'f', -1, 64)
		if r.Units != "" && r.Units != domain.Unknown {
			line += " " + r.Units
		}
	}
	if r.FormulaUsed != "" {
		line += " (`" + r.FormulaUsed + "`)"
	}
	return line
}
