package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zhukov123/openfang/internal/tools"
)

// Tools returns the registry tools backed by the store. source tags saved
// memories with where they came from ("chat" or "scheduled").
func Tools(s *Store) []*tools.Tool {
	return []*tools.Tool{
		saveTool(s),
		recallTool(s),
		listTool(s),
		forgetTool(s),
	}
}

func saveTool(s *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "save_memory",
		Description: "Save a fact to long-term memory so it persists across conversations. Use for user preferences, important dates, and things the user asks you to remember.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The fact to remember, phrased as a standalone statement.",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Optional grouping, e.g. 'preferences', 'people', 'dates'.",
				},
			},
			"required": []string{"content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			content, err := tools.StringArg(args, "content")
			if err != nil {
				return "", err
			}

			m := &Memory{
				Content:  content,
				Category: tools.OptionalStringArg(args, "category", ""),
				Source:   "chat",
			}
			if err := s.Save(m); err != nil {
				return "", fmt.Errorf("save memory: %w", err)
			}
			return fmt.Sprintf("Saved memory %s.", m.ID), nil
		},
	}
}

func recallTool(s *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "recall_memory",
		Description: "Search long-term memory for facts matching a query.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Text to search for in saved memories.",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Optional category filter.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of memories to return. Default: 10.",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, err := tools.StringArg(args, "query")
			if err != nil {
				return "", err
			}

			memories, err := s.Search(query,
				tools.OptionalStringArg(args, "category", ""),
				tools.OptionalIntArg(args, "limit", 0))
			if err != nil {
				return "", fmt.Errorf("recall memory: %w", err)
			}
			if len(memories) == 0 {
				return "No matching memories found.", nil
			}

			out, err := json.Marshal(memories)
			if err != nil {
				return "", fmt.Errorf("marshal memories: %w", err)
			}
			return string(out), nil
		},
	}
}

func listTool(s *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "list_memories",
		Description: "List the most recent saved memories.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Optional category filter.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of memories to return. Default: 50.",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			memories, err := s.List(
				tools.OptionalStringArg(args, "category", ""),
				tools.OptionalIntArg(args, "limit", 0))
			if err != nil {
				return "", fmt.Errorf("list memories: %w", err)
			}
			if len(memories) == 0 {
				return "No memories saved yet.", nil
			}

			out, err := json.Marshal(memories)
			if err != nil {
				return "", fmt.Errorf("marshal memories: %w", err)
			}
			return string(out), nil
		},
	}
}

func forgetTool(s *Store) *tools.Tool {
	return &tools.Tool{
		Name:        "forget_memory",
		Description: "Delete a memory by its ID. Use list_memories or recall_memory first to find the ID.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "The ID of the memory to delete.",
				},
			},
			"required": []string{"id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id, err := tools.StringArg(args, "id")
			if err != nil {
				return "", err
			}

			deleted, err := s.Forget(id)
			if err != nil {
				return "", fmt.Errorf("forget memory: %w", err)
			}
			if !deleted {
				return "", fmt.Errorf("no memory with id %q", id)
			}
			return "Memory deleted.", nil
		},
	}
}
