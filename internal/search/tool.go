package search

import (
	"context"
	"encoding/json"

	"github.com/zhukov123/openfang/internal/tools"
)

// Tool wraps a Manager as the web_search registry tool.
func Tool(mgr *Manager) *tools.Tool {
	return &tools.Tool{
		Name:        "web_search",
		Description: "Search the web and return a list of results with titles, URLs, and snippets. Follow up with web_read to read a result in full.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query string.",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return (1-10). Default: 5.",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "ISO 639-1 language code for results (e.g., 'en', 'de').",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, err := tools.StringArg(args, "query")
			if err != nil {
				return "", err
			}

			opts := Options{
				Count:    tools.OptionalIntArg(args, "count", 0),
				Language: tools.OptionalStringArg(args, "language", ""),
			}

			results, err := mgr.Search(ctx, query, opts)
			if err != nil {
				return "", err
			}

			// Return JSON for structured consumption by the agent.
			out, err := json.Marshal(results)
			if err != nil {
				return FormatResults(results, len(results)), nil
			}
			return string(out), nil
		},
	}
}
