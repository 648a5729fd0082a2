// ABOUTME: Conversation history persistence: atomic batch append, head trimming, TTL refresh
// ABOUTME: Append + trim + expiry refresh run in one transaction so a turn is all-or-nothing

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetHistory returns the session's messages in append order. Unknown or
// expired sessions read as empty history.
func (s *SQLiteStore) GetHistory(ctx context.Context, key SessionKey) ([]Message, error) {
	var expiresAtStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT expires_at FROM history_sessions WHERE user_id = ? AND session_id = ?`,
		key.UserID, key.SessionID,
	).Scan(&expiresAtStr)
	if err == sql.ErrNoRows {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying session expiry: %w", err)
	}

	expiresAt, err := parseTime(expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if !s.now().Before(expiresAt) {
		// Idle session expired. Rows are cleaned up on the next append.
		return []Message{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_name, tool_payload, created_at
		FROM history_messages
		WHERE user_id = ? AND session_id = ?
		ORDER BY seq ASC
	`, key.UserID, key.SessionID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		var m Message
		var toolName, toolPayload sql.NullString
		var createdAtStr string
		if err := rows.Scan(&m.Role, &m.Content, &toolName, &toolPayload, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.ToolName = toolName.String
		m.ToolPayload = toolPayload.String
		m.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AppendHistory appends a batch of messages atomically, trims the stored
// sequence to the newest HistoryLimit messages and refreshes the session
// TTL. The whole operation runs in one transaction: a failure mid-batch
// leaves no partial batch visible. Empty batches are a no-op.
func (s *SQLiteStore) AppendHistory(ctx context.Context, key SessionKey, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()

	// If the session's TTL has lapsed, discard the stale rows so the
	// refresh below cannot resurrect them.
	var expiresAtStr string
	err = tx.QueryRowContext(ctx,
		`SELECT expires_at FROM history_sessions WHERE user_id = ? AND session_id = ?`,
		key.UserID, key.SessionID,
	).Scan(&expiresAtStr)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("querying session expiry: %w", err)
	}
	if err == nil {
		expiresAt, perr := parseTime(expiresAtStr)
		if perr != nil {
			return fmt.Errorf("parsing expires_at: %w", perr)
		}
		if !now.Before(expiresAt) {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM history_messages WHERE user_id = ? AND session_id = ?`,
				key.UserID, key.SessionID,
			); err != nil {
				return fmt.Errorf("clearing expired history: %w", err)
			}
		}
	}

	var maxSeq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM history_messages WHERE user_id = ? AND session_id = ?`,
		key.UserID, key.SessionID,
	).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("querying max seq: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO history_messages (user_id, session_id, seq, role, content, tool_name, tool_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			key.UserID, key.SessionID, maxSeq+int64(i)+1,
			m.Role, m.Content,
			nullable(m.ToolName), nullable(m.ToolPayload),
			formatTime(createdAt),
		); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	// Trim from the head: only the newest HistoryLimit messages survive.
	newMax := maxSeq + int64(len(msgs))
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history_messages WHERE user_id = ? AND session_id = ? AND seq <= ?`,
		key.UserID, key.SessionID, newMax-int64(s.opts.HistoryLimit),
	); err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}

	// Refresh the TTL on every append so active sessions never expire.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO history_sessions (user_id, session_id, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id, session_id) DO UPDATE SET expires_at = excluded.expires_at
	`, key.UserID, key.SessionID, formatTime(now.Add(s.opts.HistoryTTL))); err != nil {
		return fmt.Errorf("refreshing session TTL: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("history appended",
		"session", key.String(),
		"count", len(msgs))
	return nil
}

// ClearHistory deletes all history for a session.
func (s *SQLiteStore) ClearHistory(ctx context.Context, key SessionKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history_messages WHERE user_id = ? AND session_id = ?`,
		key.UserID, key.SessionID,
	); err != nil {
		return fmt.Errorf("deleting history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history_sessions WHERE user_id = ? AND session_id = ?`,
		key.UserID, key.SessionID,
	); err != nil {
		return fmt.Errorf("deleting session expiry: %w", err)
	}

	return tx.Commit()
}

// nullable maps empty strings to NULL so optional columns stay NULL-clean.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
