package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/event-reminder/backend/internal/storage/models"
)

// EventRepository provides data access for events.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new event repository.
func NewEventRepository(q Queryable) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

const eventColumns = `
	id, group_id, template_id, name, start_time, responsible_user_id,
	allow_multi_roles_per_user, created_at, updated_at`

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	e.ID = GenerateID()
	e.CreatedAt = r.Now()
	e.UpdatedAt = e.CreatedAt

	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.GroupID, nullableString(e.TemplateID), e.Name, e.StartTime,
		nullableInt64(e.ResponsibleUserID), boolToInt(e.AllowMultiRolesPerUser),
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// GetByID retrieves an event by its ID.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	e, err := scanEvent(r.Q().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return e, nil
}

// ListByGroup retrieves a group's events starting at or after from.
func (r *EventRepository) ListByGroup(ctx context.Context, groupID int64, from time.Time) ([]models.Event, error) {
	return r.list(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE group_id = ? AND start_time >= ?
		ORDER BY start_time
	`, groupID, from)
}

func (r *EventRepository) list(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := r.Q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// UpdateName renames an event.
func (r *EventRepository) UpdateName(ctx context.Context, id, name string) error {
	return r.update(ctx, `UPDATE events SET name = ?, updated_at = ? WHERE id = ?`, name, r.Now(), id)
}

// UpdateStartTime moves an event.
func (r *EventRepository) UpdateStartTime(ctx context.Context, id string, start time.Time) error {
	return r.update(ctx, `UPDATE events SET start_time = ?, updated_at = ? WHERE id = ?`, start, r.Now(), id)
}

// UpdateAllowMultiRoles changes whether a user may hold several roles.
func (r *EventRepository) UpdateAllowMultiRoles(ctx context.Context, id string, allow bool) error {
	return r.update(ctx, `UPDATE events SET allow_multi_roles_per_user = ?, updated_at = ? WHERE id = ?`,
		boolToInt(allow), r.Now(), id)
}

// SwapResponsible sets the responsible user only if the current value equals
// expected. It returns false when the event changed in between.
func (r *EventRepository) SwapResponsible(ctx context.Context, id string, expected, next *int64) (bool, error) {
	result, err := r.Q().ExecContext(ctx, `
		UPDATE events SET responsible_user_id = ?, updated_at = ?
		WHERE id = ? AND responsible_user_id IS ?
	`, nullableInt64(next), r.Now(), id, nullableInt64(expected))
	if err != nil {
		return false, fmt.Errorf("updating responsible user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n == 1, nil
}

// Delete removes an event. Role slots, reminders, bookings and dispatch
// records cascade.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.Q().ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *EventRepository) update(ctx context.Context, query string, args ...any) error {
	result, err := r.Q().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEvent(s scanner) (*models.Event, error) {
	e := &models.Event{}
	var templateID sql.NullString
	var responsible sql.NullInt64
	var allowMulti int
	err := s.Scan(
		&e.ID, &e.GroupID, &templateID, &e.Name, &e.StartTime, &responsible,
		&allowMulti, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.TemplateID = stringPtr(templateID)
	e.ResponsibleUserID = int64Ptr(responsible)
	e.AllowMultiRolesPerUser = allowMulti != 0
	return e, nil
}
