package util

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if r == nil || len(r.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", r.Content[0])
	}
	return tc.Text
}

func TestErrorGuard(t *testing.T) {
	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		isError bool
		want    string
	}{
		{
			name: "ok",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return mcp.NewToolResultText("done"), nil
			},
			want: "done",
		},
		{
			name: "error",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return nil, errors.New("boom")
			},
			isError: true,
			want:    "Error: boom",
		},
		{
			name: "panic",
			handler: func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				panic("bad input")
			},
			isError: true,
			want:    "Panic: bad input",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ErrorGuard(tt.handler)(context.Background(), mcp.CallToolRequest{})
			if err != nil {
				t.Fatalf("guarded handler returned %v", err)
			}
			if r.IsError != tt.isError {
				t.Errorf("IsError = %v, want %v", r.IsError, tt.isError)
			}
			if got := resultText(t, r); !strings.Contains(got, tt.want) {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}
