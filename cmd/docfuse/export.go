package main

import (
	"fmt"

	"github.com/athapong/docfuse/pkg/export"
	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/store"
	"github.com/spf13/cobra"
)

var (
	exportFormat    string
	exportOutput    string
	exportSplit     string
	exportDocuments []string
	exportAround    string
	exportDepth     int
)

var exportCmd = &cobra.Command{
	Use:   "export [relation]...",
	Short: "Export stored candidates as a graph of contexts and candidates",
	Long: "Builds a graph whose nodes are argument contexts and candidates, with one ARG_<name> edge per " +
		"argument, and writes it to a JSON file or a Neo4j database. Without relations every stored relation is exported.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		relations := args
		if len(relations) == 0 {
			var err error
			if relations, err = corpus.Store.Relations(ctx); err != nil {
				return err
			}
		}

		gen := export.NewGenerator(corpus.Logger)
		total := 0
		for _, relation := range relations {
			q := store.NewQuery(relation).ForDocuments(exportDocuments...)
			if exportSplit != "" {
				split, err := model.ParseSplit(exportSplit)
				if err != nil {
					return err
				}
				q.ForSplits(split)
			}
			n, err := gen.AddQuery(ctx, corpus.Store, q, argNames(relation))
			if err != nil {
				return err
			}
			total += n
		}
		graph := gen.Generate()
		if exportAround != "" {
			tr := export.NewGraphTraversal(graph)
			start, ok := tr.FindByKey(exportAround)
			if !ok {
				return fmt.Errorf("no context or candidate with key %s", exportAround)
			}
			nodes, err := tr.Traverse(start, exportDepth, export.BFS)
			if err != nil {
				return err
			}
			graph = tr.Subgraph(nodes)
		}

		var gs export.GraphStore
		switch exportFormat {
		case "json":
			gs = export.NewJSONGraphStore(exportOutput)
		case "neo4j":
			n4 := corpus.Config.Neo4j
			neo, err := export.NewNeo4jStore(n4.URI, n4.User, n4.Password)
			if err != nil {
				return err
			}
			defer neo.Close()
			if err := neo.Verify(); err != nil {
				return fmt.Errorf("neo4j at %s is unreachable: %w", n4.URI, err)
			}
			gs = neo
		default:
			return fmt.Errorf("unknown export format %q (json, neo4j)", exportFormat)
		}
		if err := gs.StoreGraph(ctx, graph); err != nil {
			return err
		}

		corpus.Logger.Infof("Exported %d candidates as %d nodes and %d edges", total, len(graph.Nodes), len(graph.Edges))
		return nil
	},
}

// argNames returns the declared argument names of a relation, or nil when
// the rules file does not define it
func argNames(relation string) []string {
	set, err := corpus.Rules()
	if err != nil {
		return nil
	}
	if def, ok := set.Lookup(relation); ok {
		return def.Relation.ArgNames
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export target: json or neo4j")
	exportCmd.Flags().StringVar(&exportOutput, "output", "candidate_graph.json", "Output file for the json format")
	exportCmd.Flags().StringVar(&exportSplit, "split", "", "Only export candidates of this split")
	exportCmd.Flags().StringSliceVar(&exportDocuments, "documents", nil, "Only export candidates of these documents")
	exportCmd.Flags().StringVar(&exportAround, "around", "", "Only export the neighbourhood of this context or candidate key")
	exportCmd.Flags().IntVar(&exportDepth, "depth", 2, "Hops to follow from --around")
	rootCmd.AddCommand(exportCmd)
}
