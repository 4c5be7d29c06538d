package main

import (
	"fmt"
	"strings"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/store"
	"github.com/spf13/cobra"
)

var (
	listSplit     string
	listDocuments []string
	listWhere     []string
	listLimit     int
	listSkip      int
	listCount     bool
)

var filterOps = []string{"<=", ">=", "!=", "=", "<", ">", "~"}

// parseFilter reads field<op>value, where ~ stands for LIKE
func parseFilter(s string) (store.Filter, error) {
	for _, op := range filterOps {
		if i := strings.Index(s, op); i > 0 {
			f := store.Filter{Field: strings.TrimSpace(s[:i]), Operator: op, Value: strings.TrimSpace(s[i+len(op):])}
			if op == "~" {
				f.Operator = "LIKE"
			}
			return f, nil
		}
	}
	return store.Filter{}, fmt.Errorf("filter %q is not of the form field<op>value", s)
}

func buildQuery(relation string) (*store.Query, error) {
	q := store.NewQuery(relation).SetLimit(listLimit).SetSkip(listSkip)
	if listSplit != "" {
		split, err := model.ParseSplit(listSplit)
		if err != nil {
			return nil, err
		}
		q.ForSplits(split)
	}
	if len(listDocuments) > 0 {
		q.ForDocuments(listDocuments...)
	}
	for _, w := range listWhere {
		f, err := parseFilter(w)
		if err != nil {
			return nil, err
		}
		q.AddFilter(f)
	}
	return q, nil
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates [relation]",
	Short: "List stored candidates as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		relation := ""
		if len(args) == 1 {
			relation = args[0]
		}
		q, err := buildQuery(relation)
		if err != nil {
			return err
		}
		if listCount {
			n, err := corpus.Store.CountCandidates(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"total": n})
		}
		records, err := corpus.Store.Candidates(cmd.Context(), q)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

func init() {
	candidatesCmd.Flags().StringVar(&listSplit, "split", "", "Only list candidates of this split")
	candidatesCmd.Flags().StringSliceVar(&listDocuments, "documents", nil, "Only list candidates of these documents")
	candidatesCmd.Flags().StringArrayVar(&listWhere, "where", nil, "Filter such as position<3 or key~%BC546% (repeatable)")
	candidatesCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of candidates; 0 lists all")
	candidatesCmd.Flags().IntVar(&listSkip, "skip", 0, "Number of candidates to skip")
	candidatesCmd.Flags().BoolVar(&listCount, "count", false, "Only print the number of matching candidates")
	rootCmd.AddCommand(candidatesCmd)
}
