// ABOUTME: Per-user fact storage feeding profile synthesis
// ABOUTME: Facts are an append-only chronological list keyed by user

package store

import (
	"context"
	"fmt"
)

// AddUserFact stores a fact about a user and returns its row ID.
func (s *SQLiteStore) AddUserFact(ctx context.Context, userID, fact string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_facts (user_id, fact, created_at) VALUES (?, ?, ?)`,
		userID, fact, formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("inserting fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading fact id: %w", err)
	}
	return id, nil
}

// GetUserFacts returns all facts for a user in chronological order.
func (s *SQLiteStore) GetUserFacts(ctx context.Context, userID string) ([]UserFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, fact, created_at
		FROM user_facts
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	defer rows.Close()

	var facts []UserFact
	for rows.Next() {
		var f UserFact
		var createdAtStr string
		if err := rows.Scan(&f.ID, &f.UserID, &f.Fact, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		f.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// DeleteUserFacts deletes all facts for a user, returning the count.
func (s *SQLiteStore) DeleteUserFacts(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_facts WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting facts: %w", err)
	}
	return res.RowsAffected()
}
