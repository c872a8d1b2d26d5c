package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rockylabs/rocky/internal/agent"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
	Stream   bool   `json:"stream,omitempty"`
}

// ChatResponse is the non-streaming response.
type ChatResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"thread_id"`
}

// streamFrame is one SSE data frame. Type is one of start, content,
// tool_start, tool_end, error, end.
type streamFrame struct {
	Type     string         `json:"type"`
	ThreadID string         `json:"thread_id,omitempty"`
	Content  string         `json:"content,omitempty"`
	Tool     string         `json:"tool,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	OK       *bool          `json:"ok,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	}

	if req.Stream {
		s.handleChatStream(w, r, threadID, req.Message)
		return
	}

	var response strings.Builder
	for ev := range s.loop.Run(r.Context(), threadID, req.Message) {
		switch ev.Kind {
		case agent.KindDone:
			response.WriteString(ev.Response)
		case agent.KindError:
			s.chatError(w, ev.Err)
			return
		}
	}
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Response: response.String(),
		ThreadID: threadID,
	}, s.logger)
}

// chatError maps loop errors to HTTP statuses: validation failures are
// the client's fault, everything else is ours.
func (s *Server) chatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, agent.ErrEmptyInput), errors.Is(err, agent.ErrInputTooLong):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("agent turn failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, threadID, message string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	rc := http.NewResponseController(w)

	send := func(frame streamFrame) {
		data, err := json.Marshal(frame)
		if err != nil {
			s.logger.Debug("failed to marshal SSE frame", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.logger.Debug("failed to write SSE frame", "error", err)
			return
		}
		flusher.Flush()

		// Reset the write deadline after every frame so long tool
		// rounds do not trip the server write timeout.
		if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}

	send(streamFrame{Type: "start", ThreadID: threadID})

	for ev := range s.loop.Run(r.Context(), threadID, message) {
		switch ev.Kind {
		case agent.KindToken:
			send(streamFrame{Type: "content", Content: ev.Token})

		case agent.KindToolStart:
			send(streamFrame{Type: "tool_start", Tool: ev.ToolName, Args: ev.ToolArgs})
			// Keepalive comment: a tool round may be silent for a while.
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()

		case agent.KindToolDone:
			ok := ev.ToolError == ""
			send(streamFrame{Type: "tool_end", Tool: ev.ToolName, OK: &ok})

		case agent.KindError:
			send(streamFrame{Type: "error", Error: ev.Err.Error()})

		case agent.KindDone:
			send(streamFrame{Type: "end", ThreadID: threadID})
		}
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}
