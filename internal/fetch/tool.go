package fetch

import (
	"context"
	"fmt"
	"strings"

	"github.com/zhukov123/openfang/internal/tools"
)

// Tool wraps a Fetcher as the web_read registry tool. The handler
// renders the page as plain text: the result is fed straight back into
// the model's context, where structural wrapping is wasted tokens.
func Tool(f *Fetcher) *tools.Tool {
	return &tools.Tool{
		Name:        "web_read",
		Description: "Fetch a web page and return its readable text. Use after web_search to read a promising result, or directly when given a URL.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "URL to fetch and extract content from.",
				},
				"max_chars": map[string]any{
					"type":        "integer",
					"description": "Maximum characters to return. Default: 12000.",
				},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			url, err := tools.StringArg(args, "url")
			if err != nil {
				return "", err
			}

			page, err := f.Fetch(ctx, url, tools.OptionalIntArg(args, "max_chars", 0))
			if err != nil {
				return "", err
			}

			var b strings.Builder
			if page.Title != "" {
				fmt.Fprintf(&b, "%s\n", page.Title)
			}
			fmt.Fprintf(&b, "%s\n\n", page.URL)
			b.WriteString(page.Text)
			if page.Truncated {
				b.WriteString("\n\n[truncated]")
			}
			return b.String(), nil
		},
	}
}
