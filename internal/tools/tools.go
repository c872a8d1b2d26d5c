// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/rockylabs/rocky/internal/facts"
	"github.com/rockylabs/rocky/internal/fetch"
	"github.com/rockylabs/rocky/internal/quiz"
	"github.com/rockylabs/rocky/internal/search"
)

// ImageGenerator produces an image for a prompt and returns its URL.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Deps are the capabilities the built-in tools are wired to. Nil fields
// disable the corresponding tools.
type Deps struct {
	Search  *search.Manager
	Fetcher *fetch.Fetcher
	Images  ImageGenerator
	Facts   *facts.Store
}

// Registry holds the available tools. The set is fixed at construction;
// nothing registers tools afterwards.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates a registry with every built-in tool whose
// dependency is available.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{tools: make(map[string]*Tool)}

	if deps.Search != nil && deps.Search.Configured() {
		r.register(&Tool{
			Name:        "web_search",
			Description: "Search the web for up-to-date information. Use for recent events, current research, or anything outside your knowledge.",
			Parameters:  search.ToolDefinition(),
			Handler:     search.ToolHandler(deps.Search),
		})
	}

	if deps.Fetcher != nil {
		r.register(&Tool{
			Name:        "web_fetch",
			Description: "Fetch a web page and return its readable text content. Use when the user provides a URL or a search result needs reading in full.",
			Parameters:  fetch.ToolDefinition(),
			Handler:     fetch.ToolHandler(deps.Fetcher),
		})
	}

	if deps.Images != nil {
		r.register(&Tool{
			Name:        "generate_image",
			Description: "Generate a geological illustration or diagram from a text prompt. Useful for visualizing structures and processes.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "What the illustration should depict.",
					},
				},
				"required": []string{"prompt"},
			},
			Handler: imageHandler(deps.Images),
		})
	}

	r.register(&Tool{
		Name:        "generate_quiz",
		Description: "Start a study-mode quiz: produces an instruction to generate 2 questions about a topic for the user to answer.",
		Parameters:  quiz.ToolDefinition(),
		Handler:     quiz.ToolHandler(),
	})

	if deps.Facts != nil {
		r.register(&Tool{
			Name:        "save_fact",
			Description: "Remember a fact about the user or the conversation for future sessions.",
			Parameters:  facts.SaveToolDefinition(),
			Handler:     facts.SaveToolHandler(deps.Facts),
		})
		r.register(&Tool{
			Name:        "search_facts",
			Description: "Recall previously remembered facts. Use when earlier context would improve your answer.",
			Parameters:  facts.SearchToolDefinition(),
			Handler:     facts.SearchToolHandler(deps.Facts),
		})
	}

	return r
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all tools in OpenAI function-declaration shape, in
// deterministic (name) order.
func (r *Registry) List() []map[string]any {
	result := make([]map[string]any, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with the given arguments.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}
	return tool.Handler(ctx, args)
}

func imageHandler(gen ImageGenerator) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		prompt, _ := args["prompt"].(string)
		if prompt == "" {
			return "", fmt.Errorf("generate_image: prompt is required")
		}

		url, err := gen.Generate(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("generate_image: %w", err)
		}
		return fmt.Sprintf("Image created: %s", url), nil
	}
}
