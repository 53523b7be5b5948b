// Package history persists the per-user conversation log and preferences.
//
// The log is append-only: turns are never mutated, only appended or dropped
// wholesale by Reset. Retrieval order relies on rowid (a monotonic insert
// counter), not wall-clock timestamps, so concurrent appends for different
// users cannot interleave a user's own history.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// StorageError wraps any failure of the backing SQLite database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "history: " + e.Op + " failed"
	}
	return fmt.Sprintf("history: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Turn is one stored conversation message.
type Turn struct {
	UserID    int64
	Role      string
	Text      string
	CreatedAt int64 // unix seconds
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists. The parent directory is created if missing.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("empty db path")}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storageErr("open", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, storageErr("open", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
		CREATE INDEX IF NOT EXISTS idx_turns_user_id ON turns(user_id, id);

		CREATE TABLE IF NOT EXISTS user_settings (
			user_id INTEGER PRIMARY KEY,
			use_context INTEGER NOT NULL
		);
	`)
	return storageErr("init schema", err)
}

func (s *Store) Close() error { return s.db.Close() }

// Append inserts a single turn. The insert timestamp and ordering counter
// are assigned by the database.
func (s *Store) Append(ctx context.Context, userID int64, role, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns(user_id, role, content) VALUES(?, ?, ?)`,
		userID, role, text)
	return storageErr("append", err)
}

// AppendExchange stores the user turn and the assistant reply in one
// transaction, so a storage failure never leaves a half-recorded exchange.
func (s *Store) AppendExchange(ctx context.Context, userID int64, userText, assistantText string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("append exchange", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns(user_id, role, content) VALUES(?, 'user', ?)`,
		userID, userText); err != nil {
		return storageErr("append exchange", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns(user_id, role, content) VALUES(?, 'assistant', ?)`,
		userID, assistantText); err != nil {
		return storageErr("append exchange", err)
	}
	return storageErr("append exchange", tx.Commit())
}

// Recent returns up to limit most recent turns for the user in
// chronological (oldest-first) order. limit <= 0 returns an empty slice.
func (s *Store) Recent(ctx context.Context, userID int64, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role, content, created_at FROM turns
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, storageErr("recent", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.UserID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, storageErr("recent", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recent", err)
	}

	// Query is newest-first for the LIMIT; callers want oldest-first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Reset deletes every turn for the user and reports how many were removed.
// Resetting a user with no history is a no-op.
func (s *Store) Reset(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE user_id = ?`, userID)
	if err != nil {
		return 0, storageErr("reset", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("reset", err)
	}
	return n, nil
}

// GetPreference reads the stored use_context flag. ok reports whether the
// user has an explicit setting; resolving the process default is the
// caller's concern.
func (s *Store) GetPreference(ctx context.Context, userID int64) (value bool, ok bool, err error) {
	var v int
	err = s.db.QueryRowContext(ctx,
		`SELECT use_context FROM user_settings WHERE user_id = ?`, userID).Scan(&v)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, storageErr("get preference", err)
	}
	return v != 0, true, nil
}

// SetPreference upserts the use_context flag for the user.
func (s *Store) SetPreference(ctx context.Context, userID int64, useContext bool) error {
	v := 0
	if useContext {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings(user_id, use_context) VALUES(?, ?)
		ON CONFLICT(user_id) DO UPDATE SET use_context = excluded.use_context`,
		userID, v)
	return storageErr("set preference", err)
}
