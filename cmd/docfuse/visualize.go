package main

import (
	"fmt"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/store"
	"github.com/athapong/docfuse/pkg/visualizer"
	"github.com/spf13/cobra"
)

var (
	vizRelations []string
	vizOutput    string
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize <document>",
	Short: "Render a document's pages with candidate arguments highlighted",
	Long:  "Writes an HTML file with one SVG per page. The document must have been parsed with the visual modality.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		doc, err := corpus.Store.LoadDocument(ctx, args[0])
		if err != nil {
			return err
		}

		relations := vizRelations
		if len(relations) == 0 {
			relations = []string{""}
		}
		var records []model.CandidateRecord
		for _, relation := range relations {
			recs, err := corpus.Store.Candidates(ctx, store.NewQuery(relation).ForDocuments(doc.Name))
			if err != nil {
				return err
			}
			records = append(records, recs...)
		}

		output := vizOutput
		if output == "" {
			output = doc.Name + ".html"
		}
		if err := visualizer.NewPageVisualizer(output).Visualize(doc, records); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Visualization of %s with %d candidate(s) saved to %s\n", doc.Name, len(records), output)
		return nil
	},
}

func init() {
	visualizeCmd.Flags().StringSliceVar(&vizRelations, "relations", nil, "Only highlight candidates of these relations")
	visualizeCmd.Flags().StringVar(&vizOutput, "output", "", "Output HTML file (default <document>.html)")
	rootCmd.AddCommand(visualizeCmd)
}
