package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-reminder/backend/internal/storage/models"
)

// RoleRepository provides data access for role requirements and assignments.
type RoleRepository struct {
	BaseRepository
}

// NewRoleRepository creates a new role repository.
func NewRoleRepository(q Queryable) *RoleRepository {
	return &RoleRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

// AddRequirements appends role slots to an event, ignoring names it already has.
func (r *RoleRepository) AddRequirements(ctx context.Context, eventID string, roles []string) error {
	var next int
	if err := r.Q().QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0) FROM role_requirements WHERE event_id = ?
	`, eventID).Scan(&next); err != nil {
		return fmt.Errorf("querying role position: %w", err)
	}

	for i, role := range roles {
		if _, err := r.Q().ExecContext(ctx, `
			INSERT OR IGNORE INTO role_requirements (event_id, role_name, position) VALUES (?, ?, ?)
		`, eventID, role, next+i); err != nil {
			return fmt.Errorf("inserting role requirement: %w", err)
		}
	}
	return nil
}

// RemoveRequirement deletes a role slot and, through the cascade, its assignment.
func (r *RoleRepository) RemoveRequirement(ctx context.Context, eventID, role string) error {
	if _, err := r.Q().ExecContext(ctx, `
		DELETE FROM role_requirements WHERE event_id = ? AND role_name = ?
	`, eventID, role); err != nil {
		return fmt.Errorf("deleting role requirement: %w", err)
	}
	return nil
}

// Requirements returns the role names of an event in display order.
func (r *RoleRepository) Requirements(ctx context.Context, eventID string) ([]string, error) {
	roles, err := queryStrings(ctx, r.Q(), `
		SELECT role_name FROM role_requirements WHERE event_id = ? ORDER BY position, role_name
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying role requirements: %w", err)
	}
	return roles, nil
}

// HasRequirement reports whether the event has the named role slot.
func (r *RoleRepository) HasRequirement(ctx context.Context, eventID, role string) (bool, error) {
	var n int
	if err := r.Q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM role_requirements WHERE event_id = ? AND role_name = ?
	`, eventID, role).Scan(&n); err != nil {
		return false, fmt.Errorf("querying role requirement: %w", err)
	}
	return n > 0, nil
}

// Assignee returns the user holding a role slot, or nil when it is free.
func (r *RoleRepository) Assignee(ctx context.Context, eventID, role string) (*int64, error) {
	var userID int64
	err := r.Q().QueryRowContext(ctx, `
		SELECT user_id FROM role_assignments WHERE event_id = ? AND role_name = ? LIMIT 1
	`, eventID, role).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying role assignee: %w", err)
	}
	return &userID, nil
}

// Assign records userID as the holder of a role slot.
func (r *RoleRepository) Assign(ctx context.Context, eventID, role string, userID int64) error {
	if _, err := r.Q().ExecContext(ctx, `
		INSERT INTO role_assignments (event_id, role_name, user_id, assigned_at) VALUES (?, ?, ?, ?)
	`, eventID, role, userID, r.Now()); err != nil {
		return fmt.Errorf("inserting role assignment: %w", err)
	}
	return nil
}

// Unassign removes userID from a role slot. It returns false if they did not hold it.
func (r *RoleRepository) Unassign(ctx context.Context, eventID, role string, userID int64) (bool, error) {
	result, err := r.Q().ExecContext(ctx, `
		DELETE FROM role_assignments WHERE event_id = ? AND role_name = ? AND user_id = ?
	`, eventID, role, userID)
	if err != nil {
		return false, fmt.Errorf("deleting role assignment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// CountUserRoles returns how many roles userID holds on the event.
func (r *RoleRepository) CountUserRoles(ctx context.Context, eventID string, userID int64) (int, error) {
	var n int
	if err := r.Q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM role_assignments WHERE event_id = ? AND user_id = ?
	`, eventID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting user roles: %w", err)
	}
	return n, nil
}

// UserRoles returns the role names userID holds on the event.
func (r *RoleRepository) UserRoles(ctx context.Context, eventID string, userID int64) ([]string, error) {
	roles, err := queryStrings(ctx, r.Q(), `
		SELECT a.role_name FROM role_assignments a
		JOIN role_requirements q ON q.event_id = a.event_id AND q.role_name = a.role_name
		WHERE a.event_id = ? AND a.user_id = ?
		ORDER BY q.position
	`, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user roles: %w", err)
	}
	return roles, nil
}

// Slots returns every role slot of an event with its current assignee.
func (r *RoleRepository) Slots(ctx context.Context, eventID string) ([]models.RoleSlot, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT q.role_name, a.user_id
		FROM role_requirements q
		LEFT JOIN role_assignments a ON a.event_id = q.event_id AND a.role_name = q.role_name
		WHERE q.event_id = ?
		ORDER BY q.position, q.role_name
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying role slots: %w", err)
	}
	defer rows.Close()

	var slots []models.RoleSlot
	for rows.Next() {
		var slot models.RoleSlot
		var userID sql.NullInt64
		if err := rows.Scan(&slot.RoleName, &userID); err != nil {
			return nil, fmt.Errorf("scanning role slot: %w", err)
		}
		slot.UserID = int64Ptr(userID)
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// BookingRepository provides data access for bookings.
type BookingRepository struct {
	BaseRepository
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(q Queryable) *BookingRepository {
	return &BookingRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

// Add records a booking; adding an existing one is a no-op.
func (r *BookingRepository) Add(ctx context.Context, userID int64, eventID string) error {
	if _, err := r.Q().ExecContext(ctx, `
		INSERT OR IGNORE INTO bookings (user_id, event_id, created_at) VALUES (?, ?, ?)
	`, userID, eventID, r.Now()); err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}
	return nil
}

// Remove deletes a booking.
func (r *BookingRepository) Remove(ctx context.Context, userID int64, eventID string) error {
	if _, err := r.Q().ExecContext(ctx, `
		DELETE FROM bookings WHERE user_id = ? AND event_id = ?
	`, userID, eventID); err != nil {
		return fmt.Errorf("deleting booking: %w", err)
	}
	return nil
}

// Exists reports whether userID has a booking on the event.
func (r *BookingRepository) Exists(ctx context.Context, userID int64, eventID string) (bool, error) {
	var n int
	if err := r.Q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings WHERE user_id = ? AND event_id = ?
	`, userID, eventID).Scan(&n); err != nil {
		return false, fmt.Errorf("querying booking: %w", err)
	}
	return n > 0, nil
}
