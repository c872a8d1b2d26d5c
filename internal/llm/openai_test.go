package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestChatNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}

		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if len(req.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(req.Messages))
		}

		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "Quartz is SiO2."},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 7}
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "test-key", nil)
	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{
		{Role: "system", Content: "You are a geologist."},
		{Role: "user", Content: "What is quartz?"},
	}, nil)
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Message.Content != "Quartz is SiO2." {
		t.Errorf("unexpected content: %q", resp.Message.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("unexpected finish reason: %q", resp.FinishReason)
	}
	if resp.InputTokens != 20 || resp.OutputTokens != 7 {
		t.Errorf("unexpected usage: %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatDecodesToolCallArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "web_search", "arguments": "{\"query\": \"mohs scale\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", nil)
	resp, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hardness of quartz?"}}, nil)
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "call_abc" {
		t.Errorf("unexpected id: %q", tc.ID)
	}
	if tc.Function.Name != "web_search" {
		t.Errorf("unexpected name: %q", tc.Function.Name)
	}
	if got, _ := tc.Function.Arguments["query"].(string); got != "mohs scale" {
		t.Errorf("arguments not decoded: %v", tc.Function.Arguments)
	}
}

func TestChatStreamTokensAndToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("expected streaming request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"model":"gpt-4o-mini","choices":[{"delta":{"role":"assistant","content":"Basalt "},"finish_reason":null}]}`,
			`{"choices":[{"delta":{"content":"is volcanic."},"finish_reason":null}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"web_search","arguments":"{\"que"}}]},"finish_reason":null}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ry\":\"basalt\"}"}}]},"finish_reason":null}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":15,"completion_tokens":9}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", nil)

	var tokens []string
	resp, err := c.ChatStream(context.Background(), "gpt-4o-mini",
		[]Message{{Role: "user", Content: "tell me about basalt"}}, nil,
		func(tok string) { tokens = append(tokens, tok) })
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	if strings.Join(tokens, "") != "Basalt is volcanic." {
		t.Errorf("unexpected streamed tokens: %v", tokens)
	}
	if resp.Message.Content != "Basalt is volcanic." {
		t.Errorf("unexpected accumulated content: %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("expected 1 assembled tool call, got %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Function.Name != "web_search" {
		t.Errorf("unexpected tool name: %q", tc.Function.Name)
	}
	if got, _ := tc.Function.Arguments["query"].(string); got != "basalt" {
		t.Errorf("fragmented arguments not reassembled: %v", tc.Function.Arguments)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("unexpected finish reason: %q", resp.FinishReason)
	}
	if resp.InputTokens != 15 || resp.OutputTokens != 9 {
		t.Errorf("unexpected usage: %d/%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL, "k", nil)
	_, err := c.Chat(context.Background(), "gpt-4o-mini", []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry status code: %v", err)
	}
}

func TestConvertToWireEncodesArguments(t *testing.T) {
	msgs := []Message{
		{
			Role: "assistant",
			ToolCalls: []ToolCall{{
				ID:       "call_9",
				Function: ToolCallFunc{Name: "save_fact", Arguments: map[string]any{"text": "obsidian is glass"}},
			}},
		},
		{Role: "tool", Content: "saved", ToolCallID: "call_9"},
	}

	wire := convertToWire(msgs)
	if len(wire) != 2 {
		t.Fatalf("expected 2 wire messages, got %d", len(wire))
	}
	if wire[0].ToolCalls[0].Type != "function" {
		t.Errorf("missing function type tag")
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(wire[0].ToolCalls[0].Function.Arguments), &args); err != nil {
		t.Fatalf("arguments not valid JSON: %v", err)
	}
	if args["text"] != "obsidian is glass" {
		t.Errorf("arguments round-trip failed: %v", args)
	}
	if wire[1].ToolCallID != "call_9" {
		t.Errorf("tool call id not carried: %q", wire[1].ToolCallID)
	}
}

func TestImageGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req imageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "dall-e-3" || req.N != 1 || req.Size != "1024x1024" {
			t.Errorf("unexpected request: %+v", req)
		}
		fmt.Fprint(w, `{"data": [{"url": "https://img.example.com/volcano.png"}]}`)
	}))
	defer srv.Close()

	c := NewImageClient(srv.URL, "k", "", nil)
	url, err := c.Generate(context.Background(), "cross-section of a stratovolcano")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if url != "https://img.example.com/volcano.png" {
		t.Errorf("unexpected url: %q", url)
	}
}

func TestImageGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer srv.Close()

	c := NewImageClient(srv.URL, "k", "", nil)
	if _, err := c.Generate(context.Background(), "a rock"); err == nil {
		t.Fatal("expected error for empty data")
	}
}
