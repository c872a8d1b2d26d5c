package agent

import "errors"

// Validation and circuit-breaker errors surfaced as KindError events.
var (
	// ErrEmptyInput is returned when the user message is empty or
	// whitespace-only.
	ErrEmptyInput = errors.New("message is empty")

	// ErrInputTooLong is returned when the user message exceeds the
	// configured character limit.
	ErrInputTooLong = errors.New("message exceeds maximum length")

	// ErrMaxRounds is returned when the model keeps requesting tools
	// past the round limit.
	ErrMaxRounds = errors.New("tool round limit reached")
)
