package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quote-cli/internal/model"
)

var risksJSON bool

var risksCmd = &cobra.Command{
	Use:   "risks <quote-id>",
	Short: "Show the risk report for a stored quote",
	Long:  "Prints the exclusions, assumptions, and other commercial risk findings detected in the quote text during ingestion.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "compare")
		if err != nil {
			return err
		}
		defer env.Close()

		quote, err := env.Store.GetQuote(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load quote")
		}
		if quote == nil {
			return eris.Errorf("quote %s not found", args[0])
		}
		if quote.Risks == nil {
			fmt.Fprintln(os.Stderr, "No risk report stored for this quote.")
			return nil
		}

		if risksJSON {
			return printJSON(quote.Risks)
		}
		formatRiskReport(os.Stdout, quote.SupplierName, quote.Risks)
		return nil
	},
}

// formatRiskReport writes a tabular risk report to w.
func formatRiskReport(out io.Writer, supplier string, r *model.RiskReport) {
	fmt.Fprintf(out, "Risk report for %s: score %d (critical %d, high %d, medium %d, low %d)\n\n",
		supplier, r.Score, r.Counts.Critical, r.Counts.High, r.Counts.Medium, r.Counts.Low)

	if len(r.Findings) == 0 {
		fmt.Fprintln(out, "No findings.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEVERITY\tCATEGORY\tTITLE\tEXCERPT")
	_, _ = fmt.Fprintln(w, "--------\t--------\t-----\t-------")

	for _, f := range r.Findings {
		excerpt := f.Excerpt
		if len(excerpt) > 60 {
			excerpt = excerpt[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Severity, f.Category, f.Title, excerpt)
	}
	_ = w.Flush()
}

func init() {
	risksCmd.Flags().BoolVar(&risksJSON, "json", false, "print the risk report as JSON")
	rootCmd.AddCommand(risksCmd)
}
