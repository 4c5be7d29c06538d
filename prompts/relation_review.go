package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func RegisterRelationPrompts(s *server.MCPServer) {
	prompt := mcp.NewPrompt("relation_review",
		mcp.WithPromptDescription("Review the candidates extracted for a relation and suggest rule changes"),
		mcp.WithArgument("relation", mcp.ArgumentDescription("The relation whose candidates should be reviewed")),
		mcp.WithArgument("split", mcp.ArgumentDescription("The split to sample candidates from (default train)")),
	)
	s.AddPrompt(prompt, relationReviewHandler)
}

func relationReviewHandler(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	relation := request.Params.Arguments["relation"]
	if relation == "" {
		return nil, fmt.Errorf("relation is required")
	}
	split := request.Params.Arguments["split"]
	if split == "" {
		split = "train"
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Candidate review for %s", relation),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Use relations_list to see the arguments of %[1]s, then candidates_list with relation=%[1]s and split=%[2]s to sample its candidates. "+
						"Point out candidates that are clearly not true %[1]s mentions, group them by the argument that let them through, "+
						"and propose matcher or throttler changes to the rules file that would prune them without losing correct ones.",
						relation, split),
				},
			},
		},
	}, nil
}
