package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quote-cli/internal/compare"
	"github.com/sells-group/quote-cli/internal/model"
)

var (
	compareMinVariance   float64
	compareSections      []string
	compareVariancesOnly bool
	compareExportPath    string
	compareJSON          bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <left-quote-id> <right-quote-id>",
	Short: "Compare two stored quotes line by line",
	Long:  "Matches the two quotes' line items by composite key and reports per-row price variance. An empty result always carries diagnostics explaining why.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "compare")
		if err != nil {
			return err
		}
		defer env.Close()

		left, err := env.Store.GetQuote(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load left quote")
		}
		if left == nil {
			return eris.Errorf("quote %s not found", args[0])
		}
		right, err := env.Store.GetQuote(ctx, args[1])
		if err != nil {
			return eris.Wrap(err, "load right quote")
		}
		if right == nil {
			return eris.Errorf("quote %s not found", args[1])
		}

		minVariance := compareMinVariance
		if !cmd.Flags().Changed("min-variance") {
			minVariance = cfg.Compare.MinVariancePct
		}

		result := compare.Compare(
			compare.Dataset{Label: left.SupplierName, Items: left.Items},
			compare.Dataset{Label: right.SupplierName, Items: right.Items},
			compare.Filters{
				MinVariancePct: minVariance,
				Sections:       compareSections,
				VariancesOnly:  compareVariancesOnly,
			},
		)

		if compareExportPath != "" {
			if err := compare.ExportXLSX(result, compareExportPath); err != nil {
				return eris.Wrap(err, "export comparison")
			}
			fmt.Fprintf(os.Stderr, "Comparison written to %s\n", compareExportPath)
		}

		if compareJSON {
			return printJSON(result)
		}
		formatComparison(os.Stdout, result)
		return nil
	},
}

// formatComparison writes a tabular comparison to w.
func formatComparison(out io.Writer, c *model.Comparison) {
	if len(c.Rows) == 0 {
		fmt.Fprintf(out, "No matching rows. %s\n", c.Diagnostics.Reason)
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "DESCRIPTION\tUNIT\t%s\t%s\tVARIANCE\n", c.LeftLabel, c.RightLabel)
	_, _ = fmt.Fprintln(w, "-----------\t----\t----\t-----\t--------")

	for _, row := range c.Rows {
		desc := row.Description
		if len(desc) > 50 {
			desc = desc[:47] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			desc, row.Unit, amountText(row.LeftAmount), amountText(row.RightAmount), varianceText(row.VariancePct))
	}
	_ = w.Flush()

	fmt.Fprintf(out, "\n%d of %d matched rows shown (left %d items, right %d items)\n",
		c.Diagnostics.PostFilterSize, c.Diagnostics.IntersectionSize,
		c.Diagnostics.LeftCount, c.Diagnostics.RightCount)
}

func amountText(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func varianceText(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}

func init() {
	compareCmd.Flags().Float64Var(&compareMinVariance, "min-variance", 0, "only show rows whose absolute variance exceeds this percentage")
	compareCmd.Flags().StringSliceVar(&compareSections, "sections", nil, "restrict comparison to the named sections")
	compareCmd.Flags().BoolVar(&compareVariancesOnly, "variances-only", false, "drop rows where variance could not be computed")
	compareCmd.Flags().StringVar(&compareExportPath, "export", "", "write the comparison to an xlsx workbook at this path")
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "print the comparison as JSON")
	rootCmd.AddCommand(compareCmd)
}
