package main

import (
	"github.com/spf13/cobra"
)

var parseCmd = &cobra.Command{
	Use:   "parse <path>...",
	Short: "Build documents from HTML files or directories into the corpus",
	Long: "Parses every HTML file found under the given paths. A file's rendered PDF and precomputed " +
		"layout are picked up from <name>.pdf and <name>.layout.json next to it. Reparsing a document " +
		"replaces it and drops its candidates; its split is kept.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := corpus.Parse(cmd.Context(), args)
		if err != nil {
			return err
		}
		failed := make(map[string]string, len(report.Failed))
		for _, f := range report.Failed {
			failed[f.Document] = f.Err.Error()
		}
		if err := printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"built":  report.Built,
			"failed": failed,
		}); err != nil {
			return err
		}
		return report.Err()
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
}
