package history

import (
	"sort"
	"sync"
	"time"

	"github.com/rockylabs/rocky/internal/llm"
)

// thread holds one conversation's messages and bookkeeping.
type thread struct {
	messages  []llm.Message
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore is a mutex-guarded in-memory conversation store. It is the
// default backend; history does not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*thread
}

// NewMemoryStore creates an in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*thread)}
}

func (s *MemoryStore) History(threadID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return []llm.Message{}, nil
	}

	// Copy so callers can't mutate stored state.
	out := make([]llm.Message, len(t.messages))
	copy(out, t.messages)
	return out, nil
}

func (s *MemoryStore) Append(threadID string, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	t, ok := s.threads[threadID]
	if !ok {
		t = &thread{createdAt: now}
		s.threads[threadID] = t
	}
	t.messages = append(t.messages, msgs...)
	t.updatedAt = now
	return nil
}

func (s *MemoryStore) Threads() ([]ThreadInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]ThreadInfo, 0, len(s.threads))
	for id, t := range s.threads {
		infos = append(infos, ThreadInfo{
			ID:        id,
			Messages:  len(t.messages),
			CreatedAt: t.createdAt,
			UpdatedAt: t.updatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].UpdatedAt.Equal(infos[j].UpdatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].UpdatedAt.After(infos[j].UpdatedAt)
	})
	return infos, nil
}

func (s *MemoryStore) Clear(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
