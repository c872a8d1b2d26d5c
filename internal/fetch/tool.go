package fetch

import (
	"context"
	"errors"
	"fmt"
)

// ToolHandler returns a function compatible with the tools.Tool Handler
// signature. It wraps the Fetcher for use as an agent tool.
//
// Validation failures are returned as tool output rather than errors so
// the model can see what went wrong and correct the URL.
func ToolHandler(f *Fetcher) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		url, _ := args["url"].(string)
		if url == "" {
			return "", fmt.Errorf("web_fetch: url is required")
		}

		result, err := f.Fetch(ctx, url)
		if errors.Is(err, ErrInvalidScheme) {
			return fmt.Sprintf("Invalid URL: %s. URL must start with http:// or https://", url), nil
		}
		if err != nil {
			return "", err
		}

		if result.Title != "" {
			return fmt.Sprintf("Title: %s\n\n%s", result.Title, result.Content), nil
		}
		return result.Content, nil
	}
}

// ToolDefinition returns the JSON Schema parameters for the web_fetch tool.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch and extract content from. Must start with http:// or https://.",
			},
		},
		"required": []string{"url"},
	}
}
