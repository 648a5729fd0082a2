// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides history/state/artifact/ranking persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Options bounds the stored data. Zero values fall back to the defaults.
type Options struct {
	HistoryLimit int           // max messages kept per session
	HistoryTTL   time.Duration // idle time before a session's history expires
	RankingsTTL  time.Duration // logical lifetime of cached ranking rows
}

func (o *Options) applyDefaults() {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.HistoryTTL <= 0 {
		o.HistoryTTL = DefaultHistoryTTL
	}
	if o.RankingsTTL <= 0 {
		o.RankingsTTL = DefaultRankingsTTL
	}
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts Options) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")
	opts.applyDefaults()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS history_messages (
			user_id      TEXT NOT NULL,
			session_id   TEXT NOT NULL,
			seq          INTEGER NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			tool_name    TEXT,
			tool_payload TEXT,
			created_at   TEXT NOT NULL,

			PRIMARY KEY (user_id, session_id, seq),
			CHECK (role IN ('user', 'assistant', 'tool'))
		);

		CREATE TABLE IF NOT EXISTS history_sessions (
			user_id    TEXT NOT NULL,
			session_id TEXT NOT NULL,
			expires_at TEXT NOT NULL,

			PRIMARY KEY (user_id, session_id)
		);

		CREATE TABLE IF NOT EXISTS session_state (
			user_id    TEXT NOT NULL,
			session_id TEXT NOT NULL,
			state      BLOB NOT NULL,
			updated_at TEXT NOT NULL,

			PRIMARY KEY (user_id, session_id)
		);

		CREATE TABLE IF NOT EXISTS artifacts (
			user_id    TEXT NOT NULL,
			session_id TEXT NOT NULL,
			handle     INTEGER NOT NULL,
			content    TEXT NOT NULL,
			summary    TEXT NOT NULL,
			type       TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (user_id, session_id, handle),
			CHECK (type IN ('rankings', 'repository-summary', 'profile'))
		);

		CREATE TABLE IF NOT EXISTS ranking_records (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       TEXT NOT NULL,
			item_id       TEXT NOT NULL,
			batch_key     TEXT NOT NULL,
			criteria_type TEXT NOT NULL,
			criteria_text TEXT NOT NULL,
			criteria_hash TEXT,
			score         INTEGER NOT NULL,
			reason        TEXT,
			created_at    TEXT NOT NULL,
			expires_at    TEXT NOT NULL,

			CHECK (criteria_type IN ('profile', 'request'))
		);

		-- Exact-path uniqueness: profile rows only. Request rows are
		-- additive history, deduplicated at read time by fuzzy match.
		CREATE UNIQUE INDEX IF NOT EXISTS idx_rankings_exact
			ON ranking_records(user_id, item_id, batch_key, criteria_type, criteria_hash)
			WHERE criteria_type = 'profile';

		CREATE INDEX IF NOT EXISTS idx_rankings_user_batch
			ON ranking_records(user_id, batch_key);

		CREATE INDEX IF NOT EXISTS idx_rankings_expires
			ON ranking_records(expires_at);

		CREATE TABLE IF NOT EXISTS user_facts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			fact       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_user_facts_user
			ON user_facts(user_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// --- Session state ---

// GetState loads the session state blob, returning a fresh empty state
// when the session has none yet.
func (s *SQLiteStore) GetState(ctx context.Context, key SessionKey) (*SessionState, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM session_state WHERE user_id = ? AND session_id = ?`,
		key.UserID, key.SessionID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return NewSessionState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying session state: %w", err)
	}
	return decodeState(blob)
}

// SaveState persists the session state as a JSON blob.
func (s *SQLiteStore) SaveState(ctx context.Context, key SessionKey, state *SessionState) error {
	blob, err := encodeState(state)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_state (user_id, session_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, session_id) DO UPDATE
		SET state = excluded.state, updated_at = excluded.updated_at
	`, key.UserID, key.SessionID, blob, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}

	s.logger.Debug("session state saved", "session", key.String())
	return nil
}

// --- Artifact content ---

// SaveArtifact stores full artifact content under its handle.
func (s *SQLiteStore) SaveArtifact(ctx context.Context, key SessionKey, artifact *Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (user_id, session_id, handle, content, summary, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, session_id, handle) DO UPDATE
		SET content = excluded.content, summary = excluded.summary, type = excluded.type
	`, key.UserID, key.SessionID, artifact.Handle,
		artifact.Content, artifact.Meta.Summary, string(artifact.Meta.Type),
		formatTime(artifact.Meta.CreatedAt))
	if err != nil {
		return fmt.Errorf("saving artifact: %w", err)
	}

	s.logger.Debug("artifact saved",
		"session", key.String(),
		"handle", artifact.Handle,
		"type", artifact.Meta.Type)
	return nil
}

// GetArtifact retrieves artifact content by handle.
// Returns ErrNotFound if no artifact exists under the handle.
func (s *SQLiteStore) GetArtifact(ctx context.Context, key SessionKey, handle int) (*Artifact, error) {
	var a Artifact
	var typeStr, createdAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT handle, content, summary, type, created_at
		FROM artifacts
		WHERE user_id = ? AND session_id = ? AND handle = ?
	`, key.UserID, key.SessionID, handle).Scan(
		&a.Handle, &a.Content, &a.Meta.Summary, &typeStr, &createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact: %w", err)
	}

	a.Meta.Type = ArtifactType(typeStr)
	a.Meta.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &a, nil
}
