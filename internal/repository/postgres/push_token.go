package postgres

import (
	"context"

	"lovetrack-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PushTokenRepository handles database operations for device push tokens
type PushTokenRepository struct {
	db *pgxpool.Pool
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(db *pgxpool.Pool) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// Upsert registers a token or moves it to another user
func (r *PushTokenRepository) Upsert(ctx context.Context, token *models.PushToken) error {
	query := `
		INSERT INTO push_tokens (token, user_id, platform, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform
	`
	_, err := r.db.Exec(ctx, query, token.Token, token.UserID, token.Platform, token.CreatedAt)
	return mapError("upsert push token", err)
}

// ListByUsers retrieves the tokens of the given users
func (r *PushTokenRepository) ListByUsers(ctx context.Context, userIDs []string) ([]*models.PushToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT token, user_id, platform, created_at
		FROM push_tokens
		WHERE user_id = ANY($1)
		ORDER BY token
	`
	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		return nil, mapError("list push tokens", err)
	}
	defer rows.Close()

	var tokens []*models.PushToken
	for rows.Next() {
		var t models.PushToken
		if err := rows.Scan(&t.Token, &t.UserID, &t.Platform, &t.CreatedAt); err != nil {
			return nil, mapError("scan push token", err)
		}
		tokens = append(tokens, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("scan push tokens", err)
	}
	return tokens, nil
}

// Delete removes a token
func (r *PushTokenRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM push_tokens WHERE token = $1`, token)
	return mapError("delete push token", err)
}
