package main

import (
	"github.com/athapong/docfuse/services"
	"github.com/spf13/cobra"
)

var (
	splitTrain float64
	splitDev   float64
)

var splitCmd = &cobra.Command{
	Use:   "split [document]...",
	Short: "Assign documents to train/dev/test splits",
	Long: "Places documents in splits by a stable hash of their name, so reruns agree. " +
		"Without arguments every unassigned document is placed; the test split takes what train and dev leave.",
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, err := corpus.AssignSplits(cmd.Context(), services.SplitRatios{Train: splitTrain, Dev: splitDev}, args)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), counts)
	},
}

func init() {
	splitCmd.Flags().Float64Var(&splitTrain, "train", 0.8, "Share of documents for the train split")
	splitCmd.Flags().Float64Var(&splitDev, "dev", 0.1, "Share of documents for the dev split")
	rootCmd.AddCommand(splitCmd)
}
