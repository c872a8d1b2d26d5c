package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rockylabs/rocky/internal/agent"
	"github.com/rockylabs/rocky/internal/events"
	"github.com/rockylabs/rocky/internal/history"
	"github.com/rockylabs/rocky/internal/llm"
	"github.com/rockylabs/rocky/internal/tools"
)

// fakeLLM answers every chat with a fixed streamed response.
type fakeLLM struct {
	tokens []string
}

func (f *fakeLLM) Chat(ctx context.Context, model string, msgs []llm.Message, decls []map[string]any) (*llm.ChatResponse, error) {
	return f.ChatStream(ctx, model, msgs, decls, nil)
}

func (f *fakeLLM) ChatStream(_ context.Context, _ string, _ []llm.Message, _ []map[string]any, callback llm.TokenCallback) (*llm.ChatResponse, error) {
	if callback != nil {
		for _, tok := range f.tokens {
			callback(tok)
		}
	}
	return &llm.ChatResponse{
		Message:      llm.Message{Role: "assistant", Content: strings.Join(f.tokens, "")},
		Done:         true,
		FinishReason: "stop",
	}, nil
}

func (f *fakeLLM) Ping(context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, history.Store) {
	t.Helper()
	store := history.NewMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	loop := agent.NewLoop(
		&fakeLLM{tokens: []string{"Obsidian ", "is ", "volcanic ", "glass."}},
		tools.NewRegistry(tools.Deps{}),
		store, nil, logger,
		agent.Config{Model: "gpt-4o-mini", SystemPrompt: "test"},
	)
	return NewServer("127.0.0.1:0", loop, store, nil, events.New(), logger), store
}

func TestRootEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["name"] != "Rocky" || body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestChatJSON(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		bytes.NewReader([]byte(`{"message": "what is obsidian?"}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Response != "Obsidian is volcanic glass." {
		t.Errorf("response = %q", body.Response)
	}
	if body.ThreadID == "" {
		t.Error("thread_id was not generated")
	}

	msgs, _ := store.History(body.ThreadID)
	if len(msgs) != 2 {
		t.Errorf("expected persisted turn, got %d messages", len(msgs))
	}
}

func TestChatEchoesThreadID(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		bytes.NewReader([]byte(`{"message": "hi", "thread_id": "my-thread"}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var body ChatResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.ThreadID != "my-thread" {
		t.Errorf("thread_id = %q, want my-thread", body.ThreadID)
	}
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, payload := range []string{`{"message": ""}`, `{"message": "   "}`, `{}`} {
		resp, err := http.Post(ts.URL+"/chat", "application/json",
			bytes.NewReader([]byte(payload)))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("payload %s: status = %d, want 400", payload, resp.StatusCode)
		}
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		bytes.NewReader([]byte(`{not json`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// readFrames parses SSE data lines until the [DONE] marker.
func readFrames(t *testing.T, r *bufio.Scanner) []streamFrame {
	t.Helper()
	var frames []streamFrame
	for r.Scan() {
		line := r.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return frames
		}
		var f streamFrame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			t.Fatalf("bad frame %q: %v", payload, err)
		}
		frames = append(frames, f)
	}
	t.Fatal("stream ended without [DONE]")
	return nil
}

func TestChatStream(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		bytes.NewReader([]byte(`{"message": "what is obsidian?", "stream": true}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type = %q", ct)
	}

	frames := readFrames(t, bufio.NewScanner(resp.Body))

	if frames[0].Type != "start" || frames[0].ThreadID == "" {
		t.Errorf("first frame = %+v, want start with thread_id", frames[0])
	}
	var text strings.Builder
	for _, f := range frames[1 : len(frames)-1] {
		if f.Type != "content" {
			t.Fatalf("expected content frame, got %+v", f)
		}
		text.WriteString(f.Content)
	}
	if text.String() != "Obsidian is volcanic glass." {
		t.Errorf("streamed text = %q", text.String())
	}
	last := frames[len(frames)-1]
	if last.Type != "end" || last.ThreadID != frames[0].ThreadID {
		t.Errorf("last frame = %+v", last)
	}
}

// toolCallLLM answers the first chat with a quiz tool call and every
// later chat with plain text.
type toolCallLLM struct {
	calls int
}

func (f *toolCallLLM) Chat(ctx context.Context, model string, msgs []llm.Message, decls []map[string]any) (*llm.ChatResponse, error) {
	return f.ChatStream(ctx, model, msgs, decls, nil)
}

func (f *toolCallLLM) ChatStream(_ context.Context, _ string, _ []llm.Message, _ []map[string]any, callback llm.TokenCallback) (*llm.ChatResponse, error) {
	f.calls++
	if f.calls == 1 {
		return &llm.ChatResponse{
			Message: llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{{
				ID: "call_1",
				Function: llm.ToolCallFunc{
					Name:      "generate_quiz",
					Arguments: map[string]any{"topic": "minerals", "difficulty": "easy"},
				},
			}}},
			Done:         true,
			FinishReason: "tool_calls",
		}, nil
	}
	if callback != nil {
		callback("Done.")
	}
	return &llm.ChatResponse{
		Message:      llm.Message{Role: "assistant", Content: "Done."},
		Done:         true,
		FinishReason: "stop",
	}, nil
}

func (f *toolCallLLM) Ping(context.Context) error { return nil }

func TestChatStreamToolFrames(t *testing.T) {
	store := history.NewMemoryStore()
	logger := slog.New(slog.DiscardHandler)
	loop := agent.NewLoop(&toolCallLLM{}, tools.NewRegistry(tools.Deps{}),
		store, nil, logger,
		agent.Config{Model: "gpt-4o-mini", SystemPrompt: "test"})
	srv := NewServer("127.0.0.1:0", loop, store, nil, events.New(), logger)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		bytes.NewReader([]byte(`{"message": "quiz me", "stream": true}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	frames := readFrames(t, bufio.NewScanner(resp.Body))

	var start, end *streamFrame
	for i := range frames {
		switch frames[i].Type {
		case "tool_start":
			start = &frames[i]
		case "tool_end":
			end = &frames[i]
		}
	}
	if start == nil {
		t.Fatalf("no tool_start frame in %+v", frames)
	}
	if start.Tool != "generate_quiz" {
		t.Errorf("tool_start tool = %q, want generate_quiz", start.Tool)
	}
	if start.Args["topic"] != "minerals" || start.Args["difficulty"] != "easy" {
		t.Errorf("tool_start args = %v, want the model-supplied arguments", start.Args)
	}
	if end == nil || end.Tool != "generate_quiz" || end.OK == nil || !*end.OK {
		t.Errorf("tool_end frame = %+v, want ok generate_quiz", end)
	}
}

func TestChatStreamErrorFrame(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json",
		bytes.NewReader([]byte(`{"message": "", "stream": true}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	frames := readFrames(t, bufio.NewScanner(resp.Body))
	last := frames[len(frames)-1]
	if last.Type != "error" || last.Error == "" {
		t.Errorf("expected terminal error frame, got %+v", last)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/chat", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q, want *", got)
	}
}

func TestThreadEndpoints(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	store.Append("t1",
		llm.Message{Role: "user", Content: "hello"},
		llm.Message{Role: "assistant", Content: "hi"},
	)

	resp, err := http.Get(ts.URL + "/v1/threads")
	if err != nil {
		t.Fatalf("get threads: %v", err)
	}
	var listing struct {
		Count   int                  `json:"count"`
		Threads []history.ThreadInfo `json:"threads"`
	}
	json.NewDecoder(resp.Body).Decode(&listing)
	resp.Body.Close()
	if listing.Count != 1 || listing.Threads[0].ID != "t1" {
		t.Errorf("unexpected listing: %+v", listing)
	}

	resp, err = http.Get(ts.URL + "/v1/threads/t1")
	if err != nil {
		t.Fatalf("get thread: %v", err)
	}
	var detail struct {
		ThreadID string        `json:"thread_id"`
		Messages []llm.Message `json:"messages"`
	}
	json.NewDecoder(resp.Body).Decode(&detail)
	resp.Body.Close()
	if len(detail.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(detail.Messages))
	}

	resp, _ = http.Get(ts.URL + "/v1/threads/missing")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing thread: status = %d, want 404", resp.StatusCode)
	}
}

func TestFactsUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/facts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestEventFeed(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	srv.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAPI,
		Kind:      "test_event",
		Data:      map[string]any{"hello": "world"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Kind != "test_event" {
		t.Errorf("kind = %q", ev.Kind)
	}
}
