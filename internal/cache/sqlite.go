package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps completions in a single-file SQLite database using the
// table layout cache(user_prompt, system_prompt, payload).
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the cache database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s, err := NewSQLiteStoreFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.dbPath = dbPath
	return s, nil
}

// NewSQLiteStoreFromDB wraps an open database, creating the schema.
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache (
		user_prompt TEXT NOT NULL,
		system_prompt TEXT,
		payload TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cache_user_prompt ON cache(user_prompt);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Get implements Store. An empty system prompt matches rows stored without one.
func (s *SQLiteStore) Get(ctx context.Context, userPrompt, systemPrompt string) (string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM cache WHERE user_prompt = ? AND COALESCE(system_prompt, '') = ? ORDER BY rowid DESC LIMIT 1",
		userPrompt, systemPrompt,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query cache: %w", err)
	}
	return payload, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, userPrompt, systemPrompt, payload string) error {
	var system any
	if systemPrompt != "" {
		system = systemPrompt
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cache (user_prompt, system_prompt, payload) VALUES (?, ?, ?)",
		userPrompt, system, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Entries implements Store.
func (s *SQLiteStore) Entries(ctx context.Context, search string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_prompt, COALESCE(system_prompt, ''), payload, created_at FROM cache ORDER BY rowid",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created sql.NullString
		if err := rows.Scan(&e.UserPrompt, &e.SystemPrompt, &e.Payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		e.CreatedAt = parseTimestamp(created.String)
		if e.Matches(search) {
			entries = append(entries, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache: %w", err)
	}
	return entries, nil
}

// parseTimestamp reads CURRENT_TIMESTAMP text or an RFC 3339 time.
func parseTimestamp(v string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
