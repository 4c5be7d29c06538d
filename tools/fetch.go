package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/athapong/docfuse/pkg/parser"
	"github.com/athapong/docfuse/services"
	"github.com/athapong/docfuse/util"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// maxFetchBytes bounds a downloaded page
const maxFetchBytes = 32 << 20

func RegisterFetchTool(s *server.MCPServer, corpus *services.Corpus) {
	tool := mcp.NewTool("corpus_fetch",
		mcp.WithDescription("Fetches an HTML page from a HTTP/HTTPS URL and parses it into the corpus store as one document. Pages have no rendered PDF, so the visual modality is unavailable for them."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The complete HTTP/HTTPS URL of the page (e.g., https://example.com/datasheet.html)"),
		),
		mcp.WithString("name",
			mcp.Description("Document name; defaults to the last path segment of the URL without extension"),
		),
	)

	s.AddTool(tool, util.ErrorGuard(fetchHandler(corpus, services.DefaultHttpClient())))
}

// documentNameFromURL names a page after its last path segment
func documentNameFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	base := path.Base(u.Path)
	if base == "/" || base == "." || base == "" {
		return u.Host, nil
	}
	return strings.TrimSuffix(base, path.Ext(base)), nil
}

func fetchHandler(corpus *services.Corpus, client *http.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawURL, ok := request.Params.Arguments["url"].(string)
		if !ok {
			return mcp.NewToolResultError("url must be a string"), nil
		}
		name, _ := request.Params.Arguments["name"].(string)
		if name == "" {
			var err error
			if name, err = documentNameFromURL(rawURL); err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %s", err)), nil
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid URL: %s", err)), nil
		}
		resp, err := client.Do(req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to fetch URL: %s", err)), nil
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return mcp.NewToolResultError(fmt.Sprintf("failed to fetch URL: status %s", resp.Status)), nil
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response body: %s", err)), nil
		}

		report, err := corpus.Build(ctx, []parser.Source{{Name: name, Path: rawURL, HTML: body}}, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse page: %v", err)), nil
		}
		if len(report.Failed) > 0 {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse page: %v", report.Failed[0].Err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Parsed %s into document %s", rawURL, name)), nil
	}
}
