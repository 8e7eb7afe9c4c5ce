package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Exchange is one prompt/reply pair handled by the gateway
type Exchange struct {
	ID        int64
	Prompt    string
	Reply     string
	Error     string // Empty on success
	Provider  string
	LatencyMS int64
	CreatedAt time.Time
}

// Store records gateway exchanges in SQLite
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the SQLite database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createExchangesTable := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prompt TEXT NOT NULL,
		reply TEXT,
		error TEXT,
		provider TEXT,
		latency_ms INTEGER,
		created_at DATETIME
	);`

	if _, err := db.Exec(createExchangesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create exchanges table: %w", err)
	}

	return &Store{db: db}, nil
}

// Record saves one exchange
func (s *Store) Record(ctx context.Context, ex Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO exchanges (prompt, reply, error, provider, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		ex.Prompt, ex.Reply, ex.Error, ex.Provider, ex.LatencyMS, ex.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// Recent returns up to limit exchanges, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, prompt, reply, error, provider, latency_ms, created_at FROM exchanges ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := []Exchange{}
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.ID, &ex.Prompt, &ex.Reply, &ex.Error, &ex.Provider, &ex.LatencyMS, &ex.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exchanges: %w", err)
	}
	return exchanges, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
