// Package facts provides long-term memory storage for information the
// assistant learns during conversations.
package facts

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultSearchLimit caps the number of facts returned by a search.
const DefaultSearchLimit = 10

// Category groups related facts.
type Category string

const (
	CategoryGeneral  Category = "general"  // Uncategorized knowledge
	CategoryUser     Category = "user"     // User preferences and background
	CategoryTopic    Category = "topic"    // Subject matter discussed
	CategoryLocation Category = "location" // Places of interest
)

// Fact is a single remembered statement.
type Fact struct {
	ID        uuid.UUID `json:"id"`
	Category  Category  `json:"category"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages fact persistence. Safe for concurrent use.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// NewStore creates a fact store backed by the SQLite database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_facts_category ON facts(category);
		CREATE INDEX IF NOT EXISTS idx_facts_created ON facts(created_at DESC);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records a new fact. Empty categories default to general.
func (s *Store) Save(text string, category Category) (*Fact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("fact text is required")
	}
	if category == "" {
		category = CategoryGeneral
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO facts (id, category, text, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), string(category), text, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}

	return &Fact{ID: id, Category: category, Text: text, CreatedAt: now}, nil
}

// Search finds facts whose text contains the query, newest first,
// up to DefaultSearchLimit results. An empty query matches everything.
func (s *Store) Search(query string) ([]*Fact, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, category, text, created_at
		FROM facts
		WHERE text LIKE ? OR category LIKE ?
		ORDER BY created_at DESC
		LIMIT ?
	`, pattern, pattern, DefaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

// All retrieves every stored fact, newest first.
func (s *Store) All() ([]*Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, category, text, created_at
		FROM facts ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanFacts(rows)
}

// Delete removes a fact by id.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM facts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("fact not found: %s", id)
	}
	return nil
}

// Stats returns fact counts, total and per category.
func (s *Store) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM facts`).Scan(&total)

	cats := make(map[string]int)
	rows, _ := s.db.Query(`SELECT category, COUNT(*) FROM facts GROUP BY category`)
	if rows != nil {
		defer rows.Close()
		for rows.Next() {
			var cat string
			var count int
			if err := rows.Scan(&cat, &count); err != nil {
				continue
			}
			cats[cat] = count
		}
	}

	return map[string]any{
		"total":      total,
		"categories": cats,
	}
}

func scanFacts(rows *sql.Rows) ([]*Fact, error) {
	var facts []*Fact
	for rows.Next() {
		var f Fact
		var idStr, catStr, createdStr string
		if err := rows.Scan(&idStr, &catStr, &f.Text, &createdStr); err != nil {
			return nil, err
		}
		f.ID, _ = uuid.Parse(idStr)
		f.Category = Category(catStr)
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdStr)
		facts = append(facts, &f)
	}
	return facts, rows.Err()
}
