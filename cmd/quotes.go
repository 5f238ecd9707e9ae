package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quote-cli/internal/model"
	"github.com/sells-group/quote-cli/internal/store"
)

var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "Inspect stored quotes",
	Long:  "Commands for listing, viewing, and deleting ingested supplier quotes.",
}

// -- quotes list --

var quotesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested quotes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "compare")
		if err != nil {
			return err
		}
		defer env.Close()

		supplier, _ := cmd.Flags().GetString("supplier")
		limit, _ := cmd.Flags().GetInt("limit")

		quotes, err := env.Store.ListQuotes(ctx, store.QuoteFilter{
			SupplierName: supplier,
			Limit:        limit,
		})
		if err != nil {
			return eris.Wrap(err, "quotes list")
		}

		if len(quotes) == 0 {
			fmt.Fprintln(os.Stderr, "No quotes found.")
			return nil
		}

		formatQuotesList(os.Stdout, quotes)
		return nil
	},
}

// -- quotes show --

var quotesShowCmd = &cobra.Command{
	Use:   "show <quote-id>",
	Short: "Show a quote with its full item set",
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
			return eris.Wrap(err, "quotes show")
		}
		if quote == nil {
			return eris.Errorf("quote %s not found", args[0])
		}
		return printJSON(quote)
	},
}

// -- quotes delete --

var quotesDeleteCmd = &cobra.Command{
	Use:   "delete <quote-id>",
	Short: "Delete a quote and its line items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "compare")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.DeleteQuote(ctx, args[0]); err != nil {
			return eris.Wrap(err, "quotes delete")
		}
		fmt.Fprintf(os.Stderr, "Deleted quote %s\n", args[0])
		return nil
	},
}

// formatQuotesList writes a tabular list of quote summaries to w.
func formatQuotesList(out io.Writer, quotes []model.ParsedQuote) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSUPPLIER\tFILE\tGRAND\tCONFIDENCE\tWARNINGS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t----\t-----\t----------\t--------\t-------")

	for _, q := range quotes {
		file := q.FileName
		if len(file) > 30 {
			file = file[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%d\t%s\n",
			q.ID, q.SupplierName, file, q.Totals.Grand, q.Confidence,
			len(q.Warnings), q.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}

func init() {
	quotesListCmd.Flags().String("supplier", "", "filter by supplier name")
	quotesListCmd.Flags().Int("limit", 50, "max number of quotes to display")

	quotesCmd.AddCommand(quotesListCmd)
	quotesCmd.AddCommand(quotesShowCmd)
	quotesCmd.AddCommand(quotesDeleteCmd)
	rootCmd.AddCommand(quotesCmd)
}
