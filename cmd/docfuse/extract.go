package main

import (
	"github.com/athapong/docfuse/pkg/candidates"
	"github.com/athapong/docfuse/pkg/model"
	"github.com/spf13/cobra"
)

var (
	extractSplit     string
	extractDocuments []string
)

var extractCmd = &cobra.Command{
	Use:   "extract [relation]...",
	Short: "Extract candidates of relations from the documents of a split",
	Long: "Runs the extractor of each named relation, or of every relation in the rules file, over the " +
		"documents of a split. A document's earlier candidates are replaced only when its extraction succeeds.",
	RunE: func(cmd *cobra.Command, args []string) error {
		split, err := model.ParseSplit(extractSplit)
		if err != nil {
			return err
		}
		relations := args
		if len(relations) == 0 {
			set, err := corpus.Rules()
			if err != nil {
				return err
			}
			relations = set.Names()
		}

		var (
			reports  []*candidates.Report
			firstErr error
		)
		for _, relation := range relations {
			report, err := corpus.Extract(cmd.Context(), relation, split, extractDocuments)
			if report != nil {
				reports = append(reports, report)
				for _, f := range report.Failed {
					corpus.Logger.WithField("relation", relation).WithField("document", f.Document).Warn(f.Err)
				}
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
			return err
		}
		return firstErr
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSplit, "split", "train", "Split to extract from (train, dev, test)")
	extractCmd.Flags().StringSliceVar(&extractDocuments, "documents", nil, "Only extract from these documents")
	rootCmd.AddCommand(extractCmd)
}
