// Package history provides per-thread conversation storage.
//
// A thread is the unit of conversation continuity: every message the
// agent exchanges on a thread is appended here and replayed on the next
// request. The system prompt is never stored.
package history

import (
	"time"

	"github.com/rockylabs/rocky/internal/llm"
)

// ThreadInfo summarizes a stored thread.
type ThreadInfo struct {
	ID        string    `json:"id"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the interface conversation backends implement.
type Store interface {
	// History returns the thread's messages in append order. An unknown
	// thread yields an empty slice, not an error.
	History(threadID string) ([]llm.Message, error)

	// Append adds messages to a thread atomically. Appends to the same
	// thread are serialized; ordering follows arrival.
	Append(threadID string, msgs ...llm.Message) error

	// Threads lists stored threads, most recently updated first.
	Threads() ([]ThreadInfo, error)

	// Clear removes a thread and its messages.
	Clear(threadID string) error

	Close() error
}
