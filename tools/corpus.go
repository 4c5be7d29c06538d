package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/store"
	"github.com/athapong/docfuse/services"
	"github.com/athapong/docfuse/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterCorpusTools exposes parsing and extraction over the corpus store
func RegisterCorpusTools(s *server.MCPServer, corpus *services.Corpus) {
	parseTool := mcp.NewTool("corpus_parse",
		mcp.WithDescription("Parse HTML documents (with optional sibling .pdf or .layout.json files) into the corpus store. Reparsing a document replaces it and drops its candidates."),
		mcp.WithString("paths", mcp.Required(), mcp.Description("Comma-separated list of HTML files or directories to parse")),
	)
	s.AddTool(parseTool, util.ErrorGuard(corpusParseHandler(corpus)))

	splitTool := mcp.NewTool("corpus_split",
		mcp.WithDescription("Assign unassigned documents to train/dev/test splits by a stable hash of their name"),
		mcp.WithNumber("train", mcp.Required(), mcp.Description("Share of documents for the train split (0-1)")),
		mcp.WithNumber("dev", mcp.Description("Share of documents for the dev split (0-1); the rest go to test")),
	)
	s.AddTool(splitTool, util.ErrorGuard(corpusSplitHandler(corpus)))

	relationsTool := mcp.NewTool("relations_list",
		mcp.WithDescription("List the relations defined in the rules file with their argument names"),
	)
	s.AddTool(relationsTool, util.ErrorGuard(relationsListHandler(corpus)))

	extractTool := mcp.NewTool("candidates_extract",
		mcp.WithDescription("Extract candidates of a relation from the documents of a split, replacing earlier candidates of those documents"),
		mcp.WithString("relation", mcp.Required(), mcp.Description("Relation name from the rules file")),
		mcp.WithString("split", mcp.Required(), mcp.Description("Split label: train, dev or test")),
		mcp.WithString("documents", mcp.Description("Comma-separated document names; defaults to every document of the split")),
	)
	s.AddTool(extractTool, util.ErrorGuard(candidatesExtractHandler(corpus)))

	listTool := mcp.NewTool("candidates_list",
		mcp.WithDescription("List stored candidates with their argument contexts"),
		mcp.WithString("relation", mcp.Description("Relation name; empty lists every relation")),
		mcp.WithString("split", mcp.Description("Split label filter")),
		mcp.WithString("document", mcp.Description("Document name filter")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of candidates to return (default 50)")),
		mcp.WithNumber("skip", mcp.Description("Number of candidates to skip")),
	)
	s.AddTool(listTool, util.ErrorGuard(candidatesListHandler(corpus)))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func failures(errs []model.DocumentError) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Document] = e.Err.Error()
	}
	return out
}

func corpusParseHandler(corpus *services.Corpus) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		paths, ok := request.Params.Arguments["paths"].(string)
		if !ok || strings.TrimSpace(paths) == "" {
			return mcp.NewToolResultError("paths must be a non-empty string"), nil
		}

		report, err := corpus.Parse(ctx, splitList(paths))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse documents: %v", err)), nil
		}
		return jsonResult(map[string]interface{}{
			"built":  report.Built,
			"failed": failures(report.Failed),
		})
	}
}

func corpusSplitHandler(corpus *services.Corpus) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		train, ok := request.Params.Arguments["train"].(float64)
		if !ok {
			return mcp.NewToolResultError("train must be a number"), nil
		}
		dev, _ := request.Params.Arguments["dev"].(float64)

		counts, err := corpus.AssignSplits(ctx, services.SplitRatios{Train: train, Dev: dev}, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to assign splits: %v", err)), nil
		}
		return jsonResult(counts)
	}
}

func relationsListHandler(corpus *services.Corpus) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		set, err := corpus.Rules()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load rules: %v", err)), nil
		}
		out := make(map[string][]string)
		for _, name := range set.Names() {
			def, _ := set.Lookup(name)
			out[name] = def.Relation.ArgNames
		}
		return jsonResult(out)
	}
}

func candidatesExtractHandler(corpus *services.Corpus) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		relation, ok := request.Params.Arguments["relation"].(string)
		if !ok || relation == "" {
			return mcp.NewToolResultError("relation must be a non-empty string"), nil
		}
		splitArg, _ := request.Params.Arguments["split"].(string)
		split, err := model.ParseSplit(splitArg)
		if err != nil || split == model.SplitUnassigned {
			return mcp.NewToolResultError("split must be one of train, dev, test"), nil
		}
		documents, _ := request.Params.Arguments["documents"].(string)

		report, err := corpus.Extract(ctx, relation, split, splitList(documents))
		if report == nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to extract candidates: %v", err)), nil
		}
		// per-document failures are reported alongside the successes
		return jsonResult(map[string]interface{}{
			"run_id":     report.RunID,
			"relation":   report.Relation,
			"split":      report.Split,
			"documents":  report.Documents,
			"candidates": report.Candidates,
			"failed":     failures(report.Failed),
		})
	}
}

func candidatesListHandler(corpus *services.Corpus) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		relation, _ := request.Params.Arguments["relation"].(string)
		q := store.NewQuery(relation).SetLimit(50)

		if splitArg, ok := request.Params.Arguments["split"].(string); ok && splitArg != "" {
			split, err := model.ParseSplit(splitArg)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			q.ForSplits(split)
		}
		if document, ok := request.Params.Arguments["document"].(string); ok && document != "" {
			q.ForDocuments(document)
		}
		if limit, ok := request.Params.Arguments["limit"].(float64); ok && limit > 0 {
			q.SetLimit(int(limit))
		}
		if skip, ok := request.Params.Arguments["skip"].(float64); ok && skip > 0 {
			q.SetSkip(int(skip))
		}

		total, err := corpus.Store.CountCandidates(ctx, q)
		if err != nil {
			return nil, err
		}
		records, err := corpus.Store.Candidates(ctx, q)
		if err != nil {
			return nil, err
		}
		return jsonResult(map[string]interface{}{
			"query":      q,
			"total":      total,
			"candidates": records,
		})
	}
}
