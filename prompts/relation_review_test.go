package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func TestRelationReviewHandler(t *testing.T) {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"relation": "part_maker"}
	res, err := relationReviewHandler(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text := res.Messages[0].Content.(mcp.TextContent).Text
	if !strings.Contains(text, "relation=part_maker and split=train") {
		t.Errorf("prompt = %q", text)
	}

	req.Params.Arguments = map[string]string{}
	if _, err := relationReviewHandler(context.Background(), req); err == nil {
		t.Error("expected an error without a relation")
	}
}
