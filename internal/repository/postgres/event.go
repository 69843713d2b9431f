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

// EventRepository handles database operations for calendar events
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, couple_id, encrypted_title, encrypted_description, date, location,
	reminder_time, reminder_sent, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.EventRecord, error) {
	var e models.EventRecord
	err := row.Scan(
		&e.ID, &e.CoupleID, &e.EncryptedTitle, &e.EncryptedDescription, &e.Date, &e.Location,
		&e.ReminderTime, &e.ReminderSent, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]*models.EventRecord, error) {
	defer rows.Close()

	var events []*models.EventRecord
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Create creates a new event
func (r *EventRepository) Create(ctx context.Context, event *models.EventRecord) error {
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		event.ID, event.CoupleID, event.EncryptedTitle, event.EncryptedDescription, event.Date, event.Location,
		event.ReminderTime, event.ReminderSent, event.CreatedAt, event.UpdatedAt,
	)
	return mapError("create event", err)
}

// GetByID retrieves an event of the couple
func (r *EventRepository) GetByID(ctx context.Context, coupleID, id string) (*models.EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND couple_id = $2`
	e, err := scanEvent(r.db.QueryRow(ctx, query, id, coupleID))
	if err != nil {
		return nil, mapError("event", err)
	}
	return e, nil
}

// Update applies a partial update. The row is locked for the read-modify-write
// so concurrent patches to the same event serialize.
func (r *EventRepository) Update(ctx context.Context, coupleID, id string, patch models.EventRecordPatch) (*models.EventRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, mapError("begin update event", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND couple_id = $2 FOR UPDATE`
	e, err := scanEvent(tx.QueryRow(ctx, query, id, coupleID))
	if err != nil {
		return nil, mapError("event", err)
	}
	patch.Apply(e)

	update := `
		UPDATE events
		SET encrypted_title = $2, encrypted_description = $3, date = $4, location = $5,
		    reminder_time = $6, reminder_sent = $7, updated_at = $8
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, update,
		e.ID, e.EncryptedTitle, e.EncryptedDescription, e.Date, e.Location,
		e.ReminderTime, e.ReminderSent, e.UpdatedAt,
	)
	if err != nil {
		return nil, mapError("update event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapError("commit update event", err)
	}
	return e, nil
}

// Delete deletes an event of the couple
func (r *EventRepository) Delete(ctx context.Context, coupleID, id string) error {
	query := `DELETE FROM events WHERE id = $1 AND couple_id = $2`
	result, err := r.db.Exec(ctx, query, id, coupleID)
	if err != nil {
		return mapError("delete event", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("event %w", common.ErrNotFound)
	}
	return nil
}

// ListByCouple retrieves all events of the couple ordered by date
func (r *EventRepository) ListByCouple(ctx context.Context, coupleID string) ([]*models.EventRecord, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE couple_id = $1
		ORDER BY date ASC, created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, coupleID)
	if err != nil {
		return nil, mapError("list events", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, mapError("scan events", err)
	}
	return events, nil
}

// ListDueReminders retrieves unsent reminders inside [from, to]
func (r *EventRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]*models.EventRecord, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE reminder_sent = FALSE
		  AND reminder_time BETWEEN $1 AND $2
		ORDER BY reminder_time ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, mapError("list due reminders", err)
	}
	events, err := collectEvents(rows)
	if err != nil {
		return nil, mapError("scan due reminders", err)
	}
	return events, nil
}

// MarkReminderSent flags the reminder as delivered
func (r *EventRepository) MarkReminderSent(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `UPDATE events SET reminder_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return mapError("mark reminder sent", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("event %w", common.ErrNotFound)
	}
	return nil
}
