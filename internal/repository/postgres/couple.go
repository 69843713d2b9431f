package postgres

import (
	"context"
	"fmt"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CoupleRepository handles database operations for couples
type CoupleRepository struct {
	db *pgxpool.Pool
}

// NewCoupleRepository creates a new couple repository
func NewCoupleRepository(db *pgxpool.Pool) *CoupleRepository {
	return &CoupleRepository{db: db}
}

const coupleColumns = `id, created_at, created_by, members, start_date, pairing_code, pairing_expires_at, consumed_code, fields`

func scanCouple(row pgx.Row) (*models.Couple, error) {
	var c models.Couple
	var fields map[string]string
	err := row.Scan(
		&c.ID, &c.CreatedAt, &c.CreatedBy, &c.Members, &c.StartDate,
		&c.PairingCode, &c.PairingExpiresAt, &c.ConsumedCode, &fields,
	)
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		c.Fields = fields
	}
	return &c, nil
}

// Create creates a new couple
func (r *CoupleRepository) Create(ctx context.Context, couple *models.Couple) error {
	fields := couple.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	query := `
		INSERT INTO couples (` + coupleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		couple.ID, couple.CreatedAt, couple.CreatedBy, couple.Members, couple.StartDate,
		couple.PairingCode, couple.PairingExpiresAt, couple.ConsumedCode, fields,
	)
	return mapError("create couple", err)
}

// GetByID retrieves a couple by ID
func (r *CoupleRepository) GetByID(ctx context.Context, id string) (*models.Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples WHERE id = $1`
	c, err := scanCouple(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError("couple", err)
	}
	return c, nil
}

// GetByPairingCode retrieves the couple holding an outstanding pairing code
func (r *CoupleRepository) GetByPairingCode(ctx context.Context, code string) (*models.Couple, error) {
	query := `SELECT ` + coupleColumns + ` FROM couples WHERE pairing_code = $1`
	c, err := scanCouple(r.db.QueryRow(ctx, query, code))
	if err != nil {
		return nil, mapError("pairing code", err)
	}
	return c, nil
}

// PairingCodeExists checks if a code is outstanding
func (r *CoupleRepository) PairingCodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM couples WHERE pairing_code = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, mapError("check pairing code", err)
	}
	return exists, nil
}

// ConsumePairingCode adds memberID and clears the code in a single
// conditional update
func (r *CoupleRepository) ConsumePairingCode(ctx context.Context, coupleID, code, memberID string) (bool, error) {
	query := `
		UPDATE couples
		SET members = array_append(members, $2),
		    pairing_code = NULL,
		    pairing_expires_at = NULL,
		    consumed_code = $3
		WHERE id = $1
		  AND pairing_code = $3
		  AND NOT ($2 = ANY(members))
		  AND cardinality(members) < $4
	`
	result, err := r.db.Exec(ctx, query, coupleID, memberID, code, models.MaxMembers)
	if err != nil {
		return false, mapError("consume pairing code", err)
	}
	return result.RowsAffected() == 1, nil
}

// ReplacePairingCode swaps the outstanding code in a single conditional update
func (r *CoupleRepository) ReplacePairingCode(ctx context.Context, coupleID string, old, code *string, expiresAt *time.Time) (bool, error) {
	query := `
		UPDATE couples
		SET pairing_code = $3,
		    pairing_expires_at = $4
		WHERE id = $1
		  AND pairing_code IS NOT DISTINCT FROM $2
		  AND cardinality(members) < $5
	`
	result, err := r.db.Exec(ctx, query, coupleID, old, code, expiresAt, models.MaxMembers)
	if err != nil {
		return false, mapError("replace pairing code", err)
	}
	return result.RowsAffected() == 1, nil
}

// SetField merges one field into the fields document
func (r *CoupleRepository) SetField(ctx context.Context, coupleID, name, blob string) error {
	query := `UPDATE couples SET fields = fields || jsonb_build_object($2::text, $3::text) WHERE id = $1`
	result, err := r.db.Exec(ctx, query, coupleID, name, blob)
	if err != nil {
		return mapError("set field", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("couple %w", common.ErrNotFound)
	}
	return nil
}

// DeleteField removes one field from the fields document
func (r *CoupleRepository) DeleteField(ctx context.Context, coupleID, name string) error {
	query := `UPDATE couples SET fields = fields - $2::text WHERE id = $1`
	result, err := r.db.Exec(ctx, query, coupleID, name)
	if err != nil {
		return mapError("delete field", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("couple %w", common.ErrNotFound)
	}
	return nil
}
