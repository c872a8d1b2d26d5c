package facts

import (
	"context"
	"fmt"
	"strings"
)

// SaveToolHandler returns a handler for the save_fact tool.
func SaveToolHandler(store *Store) func(ctx context.Context, args map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		text, _ := args["text"].(string)
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("save_fact: text is required")
		}

		category, _ := args["category"].(string)

		fact, err := store.Save(text, Category(category))
		if err != nil {
			return "", fmt.Errorf("save_fact: %w", err)
		}

		return fmt.Sprintf("Remembered: [%s] %s", fact.Category, fact.Text), nil
	}
}

// SearchToolHandler returns a handler for the search_facts tool.
func SearchToolHandler(store *Store) func(ctx context.Context, args map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		query, _ := args["query"].(string)

		results, err := store.Search(query)
		if err != nil {
			return "", fmt.Errorf("search_facts: %w", err)
		}
		if len(results) == 0 {
			if query == "" {
				return "No facts stored yet.", nil
			}
			return fmt.Sprintf("No facts matching '%s'", query), nil
		}

		return FormatFacts(results), nil
	}
}

// FormatFacts builds a human-readable fact listing, newest first.
func FormatFacts(facts []*Fact) string {
	var b strings.Builder
	for i, f := range facts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)", f.Category, f.Text, f.CreatedAt.Format("2006-01-02"))
	}
	return b.String()
}

// SaveToolDefinition returns the JSON Schema parameters for save_fact.
func SaveToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "The fact to remember, as a short self-contained statement.",
			},
			"category": map[string]any{
				"type":        "string",
				"description": "Optional grouping: general, user, topic, or location. Default: general.",
			},
		},
		"required": []string{"text"},
	}
}

// SearchToolDefinition returns the JSON Schema parameters for search_facts.
func SearchToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Text to look for in remembered facts. Omit to list recent facts.",
			},
		},
	}
}
