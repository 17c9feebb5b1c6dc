package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashureev/charcord/internal/domain"
)

// AppendHistory appends one turn to a persona's local history.
func (s *SQLiteStore) AppendHistory(ctx context.Context, personaID, role, content string) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	query := `
	INSERT INTO persona_history (persona_id, seq, role, content, created_at)
	VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM persona_history WHERE persona_id = ?), ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, personaID, personaID, role, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// GetHistory retrieves a persona's local history in chronological order.
func (s *SQLiteStore) GetHistory(ctx context.Context, personaID string) ([]domain.HistoryEntry, error) {
	query := `
	SELECT persona_id, seq, role, content, created_at
	FROM persona_history WHERE persona_id = ? ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, personaID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var createdAt int64
		if err := rows.Scan(&e.PersonaID, &e.Seq, &e.Role, &e.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// UpdateLastAssistant rewrites the content of the most recent assistant turn.
func (s *SQLiteStore) UpdateLastAssistant(ctx context.Context, personaID, content string) error {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	query := `
	UPDATE persona_history SET content = ?
	WHERE persona_id = ? AND role = ? AND seq = (
		SELECT MAX(seq) FROM persona_history WHERE persona_id = ? AND role = ?
	)`

	result, err := s.db.ExecContext(ctx, query, content, personaID, domain.RoleAssistant, personaID, domain.RoleAssistant)
	if err != nil {
		return fmt.Errorf("update last assistant turn: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no assistant turn to update for persona %s", personaID)
	}
	return nil
}

// PruneHistory drops the oldest dropCount turns once history exceeds highWater.
func (s *SQLiteStore) PruneHistory(ctx context.Context, personaID string, highWater, dropCount int) (int64, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM persona_history WHERE persona_id = ?`, personaID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	if count <= highWater {
		return 0, nil
	}

	query := `
	DELETE FROM persona_history
	WHERE persona_id = ? AND seq IN (
		SELECT seq FROM persona_history WHERE persona_id = ? ORDER BY seq ASC LIMIT ?
	)`

	result, err := s.db.ExecContext(ctx, query, personaID, personaID, dropCount)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return result.RowsAffected()
}

// GetBan retrieves an active ban for a user.
func (s *SQLiteStore) GetBan(ctx context.Context, userID string) (*domain.Ban, error) {
	query := `SELECT user_id, reason, expires_at, created_at FROM bans WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)

	var ban domain.Ban
	var expiresAt, createdAt int64
	err := row.Scan(&ban.UserID, &ban.Reason, &expiresAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan ban row: %w", err)
	}
	ban.ExpiresAt = time.Unix(expiresAt, 0)
	ban.CreatedAt = time.Unix(createdAt, 0)
	return &ban, nil
}

// CreateBan records a durable ban.
func (s *SQLiteStore) CreateBan(ctx context.Context, ban *domain.Ban) error {
	query := `
	INSERT INTO bans (user_id, reason, expires_at, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		reason = excluded.reason,
		expires_at = excluded.expires_at`

	_, err := s.db.ExecContext(ctx, query, ban.UserID, ban.Reason, ban.ExpiresAt.Unix(), ban.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create ban: %w", err)
	}
	return nil
}

// DeleteBan lifts a ban.
func (s *SQLiteStore) DeleteBan(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bans WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	return nil
}

// DeleteExpiredBans removes bans that lapsed before now.
func (s *SQLiteStore) DeleteExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bans WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("delete expired bans: %w", err)
	}
	return result.RowsAffected()
}

// ListBans retrieves all bans, soonest-expiring first.
func (s *SQLiteStore) ListBans(ctx context.Context) ([]*domain.Ban, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, reason, expires_at, created_at FROM bans ORDER BY expires_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var bans []*domain.Ban
	for rows.Next() {
		var ban domain.Ban
		var expiresAt, createdAt int64
		if err := rows.Scan(&ban.UserID, &ban.Reason, &expiresAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ban row: %w", err)
		}
		ban.ExpiresAt = time.Unix(expiresAt, 0)
		ban.CreatedAt = time.Unix(createdAt, 0)
		bans = append(bans, &ban)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bans: %w", err)
	}
	return bans, nil
}
