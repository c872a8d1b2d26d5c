// Package agent implements the core agent loop: validate input, replay
// history, alternate model calls with tool rounds, and stream the result
// to the caller as it is produced.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rockylabs/rocky/internal/events"
	"github.com/rockylabs/rocky/internal/history"
	"github.com/rockylabs/rocky/internal/llm"
	"github.com/rockylabs/rocky/internal/tools"
)

// Defaults applied when Config fields are zero.
const (
	DefaultMaxInputChars = 10000
	DefaultMaxRounds     = 8
	DefaultModelTimeout  = 120 * time.Second
	DefaultToolTimeout   = 30 * time.Second
)

// Config holds the loop's tunables.
type Config struct {
	Model         string
	SystemPrompt  string
	MaxInputChars int
	MaxRounds     int
	ModelTimeout  time.Duration
	ToolTimeout   time.Duration
}

// Loop is the core agent execution loop. All dependencies are injected;
// there is no package-level state.
type Loop struct {
	llm      llm.Client
	registry *tools.Registry
	history  history.Store
	bus      *events.Bus
	logger   *slog.Logger
	cfg      Config
}

// NewLoop creates an agent loop. bus may be nil.
func NewLoop(client llm.Client, registry *tools.Registry, hist history.Store, bus *events.Bus, logger *slog.Logger, cfg Config) *Loop {
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = DefaultModelTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	return &Loop{
		llm:      client,
		registry: registry,
		history:  hist,
		bus:      bus,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run executes one agent turn and returns a channel of stream events.
// The channel closes after a terminal KindDone or KindError event, or
// when ctx is cancelled. Events are produced lazily: nothing external is
// called until the consumer starts draining.
func (l *Loop) Run(ctx context.Context, threadID, userInput string) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		l.run(ctx, threadID, userInput, ch)
	}()
	return ch
}

// emit pushes an event unless the consumer is gone. Returns false when
// ctx is cancelled.
func emit(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Loop) run(ctx context.Context, threadID, userInput string, ch chan<- StreamEvent) {
	// Fast-fail validation: no model calls, no tool calls, and nothing
	// written to history.
	if strings.TrimSpace(userInput) == "" {
		emit(ctx, ch, StreamEvent{Kind: KindError, Err: ErrEmptyInput})
		return
	}
	if utf8.RuneCountInString(userInput) > l.cfg.MaxInputChars {
		emit(ctx, ch, StreamEvent{Kind: KindError,
			Err: fmt.Errorf("%w (%d chars, limit %d)", ErrInputTooLong, utf8.RuneCountInString(userInput), l.cfg.MaxInputChars)})
		return
	}

	start := time.Now()
	l.logger.Info("agent turn started", "thread", threadID, "chars", len(userInput))
	l.bus.Publish(events.Event{
		Timestamp: start,
		Source:    events.SourceAgent,
		Kind:      events.KindRequestStart,
		Data:      map[string]any{"thread_id": threadID, "message_len": len(userInput)},
	})

	prior, err := l.history.History(threadID)
	if err != nil {
		emit(ctx, ch, StreamEvent{Kind: KindError, Err: fmt.Errorf("load history: %w", err)})
		return
	}

	userMsg := llm.Message{Role: "user", Content: userInput}
	if err := l.history.Append(threadID, userMsg); err != nil {
		emit(ctx, ch, StreamEvent{Kind: KindError, Err: fmt.Errorf("persist message: %w", err)})
		return
	}

	// The system prompt is prepended fresh each turn and never stored.
	working := make([]llm.Message, 0, len(prior)+2)
	working = append(working, llm.Message{Role: "system", Content: l.cfg.SystemPrompt})
	working = append(working, prior...)
	working = append(working, userMsg)

	decls := l.registry.List()
	var totalIn, totalOut int

	for round := 1; ; round++ {
		if round > l.cfg.MaxRounds {
			l.logger.Warn("tool round limit reached", "thread", threadID, "rounds", l.cfg.MaxRounds)
			emit(ctx, ch, StreamEvent{Kind: KindError,
				Err: fmt.Errorf("%w (%d rounds)", ErrMaxRounds, l.cfg.MaxRounds)})
			return
		}
		if ctx.Err() != nil {
			return
		}

		l.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceAgent,
			Kind:      events.KindLLMCall,
			Data:      map[string]any{"thread_id": threadID, "round": round, "model": l.cfg.Model},
		})

		resp, err := l.callModel(ctx, working, decls, ch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("model call failed", "thread", threadID, "round", round, "error", err)
			emit(ctx, ch, StreamEvent{Kind: KindError, Err: err})
			return
		}
		totalIn += resp.InputTokens
		totalOut += resp.OutputTokens

		l.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceAgent,
			Kind:      events.KindLLMResponse,
			Data: map[string]any{
				"thread_id":  threadID,
				"round":      round,
				"model":      resp.Model,
				"tokens_in":  resp.InputTokens,
				"tokens_out": resp.OutputTokens,
				"tool_calls": len(resp.Message.ToolCalls),
			},
		})

		if len(resp.Message.ToolCalls) == 0 {
			// Plain answer: the turn is done.
			final := llm.Message{Role: "assistant", Content: resp.Message.Content}
			if err := l.history.Append(threadID, final); err != nil {
				emit(ctx, ch, StreamEvent{Kind: KindError, Err: fmt.Errorf("persist response: %w", err)})
				return
			}

			l.logger.Info("agent turn complete",
				"thread", threadID,
				"rounds", round,
				"tokens_in", totalIn,
				"tokens_out", totalOut,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			l.bus.Publish(events.Event{
				Timestamp: time.Now(),
				Source:    events.SourceAgent,
				Kind:      events.KindRequestComplete,
				Data: map[string]any{
					"thread_id":        threadID,
					"rounds":           round,
					"total_tokens_in":  totalIn,
					"total_tokens_out": totalOut,
					"elapsed_ms":       time.Since(start).Milliseconds(),
				},
			})
			emit(ctx, ch, StreamEvent{Kind: KindDone, Response: resp.Message.Content})
			return
		}

		// Tool round. The assistant message carrying the calls and the
		// tool results are appended in the model's request order so the
		// correlation ids resolve deterministically on replay.
		assistantMsg := llm.Message{
			Role:      "assistant",
			Content:   resp.Message.Content,
			ToolCalls: resp.Message.ToolCalls,
		}

		results, ok := l.runTools(ctx, threadID, resp.Message.ToolCalls, ch)
		if !ok {
			return
		}

		batch := append([]llm.Message{assistantMsg}, results...)
		if err := l.history.Append(threadID, batch...); err != nil {
			emit(ctx, ch, StreamEvent{Kind: KindError, Err: fmt.Errorf("persist tool round: %w", err)})
			return
		}
		working = append(working, batch...)
	}
}

// callModel invokes the model with a per-call timeout, forwarding token
// deltas to the stream as they arrive.
func (l *Loop) callModel(ctx context.Context, msgs []llm.Message, decls []map[string]any, ch chan<- StreamEvent) (*llm.ChatResponse, error) {
	mctx, cancel := context.WithTimeout(ctx, l.cfg.ModelTimeout)
	defer cancel()

	return l.llm.ChatStream(mctx, l.cfg.Model, msgs, decls, func(token string) {
		emit(ctx, ch, StreamEvent{Kind: KindToken, Token: token})
	})
}

// runTools executes a round of tool calls. Calls run concurrently, each
// under the tool timeout; start and done events plus result messages
// follow the model's request order. A failing tool becomes an
// error-flagged result for the model, never a turn failure. Returns
// false when the consumer went away mid-round.
func (l *Loop) runTools(ctx context.Context, threadID string, calls []llm.ToolCall, ch chan<- StreamEvent) ([]llm.Message, bool) {
	for _, call := range calls {
		if !emit(ctx, ch, StreamEvent{Kind: KindToolStart, ToolName: call.Function.Name, ToolArgs: call.Function.Arguments}) {
			return nil, false
		}
		l.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceAgent,
			Kind:      events.KindToolCall,
			Data:      map[string]any{"thread_id": threadID, "tool": call.Function.Name},
		})
	}

	type outcome struct {
		output   string
		err      error
		duration time.Duration
	}
	outcomes := make([]outcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(ctx, l.cfg.ToolTimeout)
			defer cancel()

			started := time.Now()
			out, err := l.registry.Execute(tctx, call.Function.Name, call.Function.Arguments)
			outcomes[i] = outcome{output: out, err: err, duration: time.Since(started)}
		}(i, call)
	}
	wg.Wait()

	results := make([]llm.Message, 0, len(calls))
	for i, call := range calls {
		o := outcomes[i]
		ev := StreamEvent{Kind: KindToolDone, ToolName: call.Function.Name}
		content := o.output
		if o.err != nil {
			// Feed the failure back to the model so it can adjust.
			content = fmt.Sprintf("Error: %v", o.err)
			ev.ToolError = o.err.Error()
			l.logger.Warn("tool failed",
				"thread", threadID,
				"tool", call.Function.Name,
				"duration", o.duration.Round(time.Millisecond),
				"error", o.err,
			)
		} else {
			ev.ToolResult = o.output
			l.logger.Debug("tool complete",
				"thread", threadID,
				"tool", call.Function.Name,
				"duration", o.duration.Round(time.Millisecond),
				"output_len", len(o.output),
			)
		}

		l.bus.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceAgent,
			Kind:      events.KindToolDone,
			Data: map[string]any{
				"thread_id":   threadID,
				"tool":        call.Function.Name,
				"ok":          o.err == nil,
				"duration_ms": o.duration.Milliseconds(),
			},
		})

		if !emit(ctx, ch, ev) {
			return nil, false
		}

		results = append(results, llm.Message{
			Role:       "tool",
			Content:    content,
			ToolCallID: call.ID,
		})
	}

	return results, true
}
