package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	ingestSupplier string
	ingestResume   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a supplier quote document",
	Long:  "Chunks the document, extracts line items through the ensemble, maps them against the catalog, and stores the parsed quote. With --resume, re-drives dead-lettered chunks of a previous ingest instead.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		if ingestResume {
			quote, err := env.Pipeline.Resume(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "resume")
			}
			return printJSON(quote)
		}

		if ingestSupplier == "" {
			return eris.New("--supplier is required when ingesting")
		}
		quote, err := env.Pipeline.Ingest(ctx, args[0], ingestSupplier)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		return printJSON(quote)
	},
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSupplier, "supplier", "", "supplier name for the quote")
	ingestCmd.Flags().BoolVar(&ingestResume, "resume", false, "re-drive failed chunks of an already ingested document")
	rootCmd.AddCommand(ingestCmd)
}
