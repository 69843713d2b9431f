package postgres

import (
	"context"
	"fmt"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, couple_id, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := r.db.Exec(ctx, query, user.ID, user.CoupleID, user.CreatedAt)
	return mapError("create user", err)
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, couple_id, created_at
		FROM users
		WHERE id = $1
	`
	var user models.User
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.CoupleID, &user.CreatedAt)
	if err != nil {
		return nil, mapError("user", err)
	}
	return &user, nil
}

// CompareAndSetCoupleID relinks the user only if the stored link equals old
func (r *UserRepository) CompareAndSetCoupleID(ctx context.Context, userID string, old, coupleID *string) (bool, error) {
	query := `
		UPDATE users
		SET couple_id = $3
		WHERE id = $1
		  AND couple_id IS NOT DISTINCT FROM $2
	`
	result, err := r.db.Exec(ctx, query, userID, old, coupleID)
	if err != nil {
		return false, mapError("set user couple", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	err = r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, mapError("check user", err)
	}
	if !exists {
		return false, fmt.Errorf("user %w", common.ErrNotFound)
	}
	return false, nil
}
