// ABOUTME: Ranking record persistence backing the exact and fuzzy ranking caches
// ABOUTME: Profile rows are insert-or-ignore on the criteria hash; request rows are additive

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SaveRankings inserts one row per scored item in a single transaction.
// Profile-type rows use INSERT OR IGNORE against the partial unique index
// so a re-store of the same hash never overwrites a cached score.
func (s *SQLiteStore) SaveRankings(ctx context.Context, rows []RankingRecord) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	expiresAt := formatTime(now.Add(s.opts.RankingsTTL))

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO ranking_records
			(user_id, item_id, batch_key, criteria_type, criteria_text, criteria_hash, score, reason, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			r.UserID, r.ItemID, r.BatchKey,
			string(r.CriteriaType), r.CriteriaText, nullable(r.CriteriaHash),
			r.Score, r.Reason,
			formatTime(createdAt), expiresAt,
		); err != nil {
			return fmt.Errorf("inserting ranking %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rankings: %w", err)
	}

	s.logger.Debug("rankings saved", "count", len(rows))
	return nil
}

// GetRankingsByHash returns unexpired profile-type rows for the exact
// criteria hash, sorted by score descending.
func (s *SQLiteStore) GetRankingsByHash(ctx context.Context, userID, batchKey, hash string) ([]RankingRecord, error) {
	return s.queryRankings(ctx, `
		SELECT user_id, item_id, batch_key, criteria_type, criteria_text, criteria_hash, score, reason, created_at
		FROM ranking_records
		WHERE user_id = ? AND batch_key = ? AND criteria_type = 'profile' AND criteria_hash = ? AND expires_at > ?
		ORDER BY score DESC, item_id ASC
	`, userID, batchKey, hash, formatTime(s.now()))
}

// GetRankingsByCriteria returns unexpired request-type rows stored under
// the exact criteria text, sorted by score descending.
func (s *SQLiteStore) GetRankingsByCriteria(ctx context.Context, userID, batchKey, criteria string) ([]RankingRecord, error) {
	return s.queryRankings(ctx, `
		SELECT user_id, item_id, batch_key, criteria_type, criteria_text, criteria_hash, score, reason, created_at
		FROM ranking_records
		WHERE user_id = ? AND batch_key = ? AND criteria_type = 'request' AND criteria_text = ? AND expires_at > ?
		ORDER BY score DESC, item_id ASC
	`, userID, batchKey, criteria, formatTime(s.now()))
}

// ListRequestCriteria returns the distinct free-text criteria strings
// previously used for (user, batch), oldest first. The order gives fuzzy
// lookups a stable first-match tie-break.
func (s *SQLiteStore) ListRequestCriteria(ctx context.Context, userID, batchKey string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT criteria_text, MIN(id) AS first_id
		FROM ranking_records
		WHERE user_id = ? AND batch_key = ? AND criteria_type = 'request' AND expires_at > ?
		GROUP BY criteria_text
		ORDER BY first_id ASC
	`, userID, batchKey, formatTime(s.now()))
	if err != nil {
		return nil, fmt.Errorf("querying criteria: %w", err)
	}
	defer rows.Close()

	var criteria []string
	for rows.Next() {
		var text string
		var firstID int64
		if err := rows.Scan(&text, &firstID); err != nil {
			return nil, fmt.Errorf("scanning criteria: %w", err)
		}
		criteria = append(criteria, text)
	}
	return criteria, rows.Err()
}

// CleanupExpiredRankings deletes expired ranking rows.
// Returns the number of rows deleted.
func (s *SQLiteStore) CleanupExpiredRankings(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ranking_records WHERE expires_at <= ?`, formatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("deleting expired rankings: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted rankings: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("expired rankings cleaned up", "deleted", deleted)
	}
	return deleted, nil
}

func (s *SQLiteStore) queryRankings(ctx context.Context, query string, args ...any) ([]RankingRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rankings: %w", err)
	}
	defer rows.Close()

	var records []RankingRecord
	for rows.Next() {
		var r RankingRecord
		var typeStr, createdAtStr string
		var hash, reason sql.NullString
		if err := rows.Scan(
			&r.UserID, &r.ItemID, &r.BatchKey,
			&typeStr, &r.CriteriaText, &hash,
			&r.Score, &reason, &createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning ranking: %w", err)
		}
		r.CriteriaType = CriteriaType(typeStr)
		r.CriteriaHash = hash.String
		r.Reason = reason.String
		r.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
