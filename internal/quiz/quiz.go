// Package quiz provides the study-mode quiz tool. The tool returns an
// instruction the model expands into actual questions, so the question
// content always reflects the live conversation.
package quiz

import (
	"context"
	"fmt"
	"strings"
)

// DefaultDifficulty is used when the model does not specify one.
const DefaultDifficulty = "intermediate"

// Prompt builds the quiz-generation instruction for a topic.
func Prompt(topic, difficulty string) string {
	if difficulty == "" {
		difficulty = DefaultDifficulty
	}
	return fmt.Sprintf("Generate 2 %s questions about %s", difficulty, topic)
}

// ToolHandler returns a handler for the generate_quiz tool.
func ToolHandler() func(ctx context.Context, args map[string]any) (string, error) {
	return func(_ context.Context, args map[string]any) (string, error) {
		topic, _ := args["topic"].(string)
		if strings.TrimSpace(topic) == "" {
			return "", fmt.Errorf("generate_quiz: topic is required")
		}

		difficulty, _ := args["difficulty"].(string)
		return Prompt(topic, difficulty), nil
	}
}

// ToolDefinition returns the JSON Schema parameters for generate_quiz.
func ToolDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{
				"type":        "string",
				"description": "The geological topic to quiz the user on.",
			},
			"difficulty": map[string]any{
				"type":        "string",
				"description": "Question difficulty: beginner, intermediate, or advanced. Default: intermediate.",
			},
		},
		"required": []string{"topic"},
	}
}
