package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists each session as one row holding the JSON-serialized
// history. Histories survive restarts and can be shared by any process pointed
// at the same database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteStore opens (creating if necessary) the session database at dsn.
func OpenSQLiteStore(dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		history TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// GetHistory returns the stored history for sessionID. A missing row or an
// unparseable stored value reads as an empty history: a corrupt session loses
// its memory rather than blocking the caller.
func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string) []Message {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT history FROM sessions WHERE session_id = ?", sessionID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return []Message{}
	}
	if err != nil {
		s.logger.Warn("failed to read session, treating as empty", "session_id", sessionID, "error", err)
		return []Message{}
	}

	var history []Message
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		s.logger.Warn("corrupt session history, treating as empty", "session_id", sessionID, "error", err)
		return []Message{}
	}
	return history
}

// SaveHistory overwrites the stored history for sessionID.
func (s *SQLiteStore) SaveHistory(ctx context.Context, sessionID string, history []Message) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (session_id, history, updated_at) VALUES (?, ?, ?)",
		sessionID, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
