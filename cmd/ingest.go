package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github/itish2003/agriqa/services"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Add local files to the knowledge base",
	Long:  `Runs each file through the same pipeline as an HTTP upload.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [doc-id...]",
	Short: "Rebuild the chunks and vectors of stored documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReprocess,
}

// ingestCategory is a flag for the ingest command.
var ingestCategory string

func init() {
	ingestCmd.Flags().StringVarP(&ingestCategory, "category", "c", "", "category for the ingested documents (required)")
	_ = ingestCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(ingestCmd, reprocessCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, path := range args {
		doc, err := services.IngestFile(cmd.Context(), a.knowledge, path, ingestCategory)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> document %d (%d chunks)\n", path, doc.ID, len(doc.VectorIDs))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ids := make([]uint, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid document id %q", arg)
		}
		ids = append(ids, uint(id))
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var errs []error
	for _, id := range ids {
		doc, err := a.knowledge.ReprocessDocument(cmd.Context(), id)
		if err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", id, err))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "document %d: %d chunks\n", id, len(doc.VectorIDs))
	}
	return errors.Join(errs...)
}
