package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/event-reminder/backend/internal/storage/models"
)

// DispatchRepository provides access to the dispatch ledger.
type DispatchRepository struct {
	BaseRepository
}

// NewDispatchRepository creates a new dispatch repository.
func NewDispatchRepository(q Queryable) *DispatchRepository {
	return &DispatchRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

func derefOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// Exists reports whether a record with exactly this key is present.
func (r *DispatchRepository) Exists(ctx context.Context, key models.DispatchKey) (bool, error) {
	var n int
	err := r.Q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dispatch_log
		WHERE kind = ? AND IFNULL(user_id, 0) = ? AND IFNULL(group_id, 0) = ?
		  AND event_id = ? AND offset_amount = ? AND offset_unit = ?
	`, key.Kind, derefOrZero(key.UserID), derefOrZero(key.GroupID),
		key.EventID, key.Offset.Amount, key.Offset.Unit).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying dispatch log: %w", err)
	}
	return n > 0, nil
}

// Insert appends a record. It returns false if the key was already present.
func (r *DispatchRepository) Insert(ctx context.Context, key models.DispatchKey, sentAt time.Time) (bool, error) {
	result, err := r.Q().ExecContext(ctx, `
		INSERT OR IGNORE INTO dispatch_log (kind, user_id, group_id, event_id, offset_amount, offset_unit, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, key.Kind, nullableInt64(key.UserID), nullableInt64(key.GroupID),
		key.EventID, key.Offset.Amount, key.Offset.Unit, sentAt)
	if err != nil {
		return false, fmt.Errorf("inserting dispatch record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n == 1, nil
}

// Delete removes the record for key, if any.
func (r *DispatchRepository) Delete(ctx context.Context, key models.DispatchKey) error {
	_, err := r.Q().ExecContext(ctx, `
		DELETE FROM dispatch_log
		WHERE kind = ? AND IFNULL(user_id, 0) = ? AND IFNULL(group_id, 0) = ?
		  AND event_id = ? AND offset_amount = ? AND offset_unit = ?
	`, key.Kind, derefOrZero(key.UserID), derefOrZero(key.GroupID),
		key.EventID, key.Offset.Amount, key.Offset.Unit)
	if err != nil {
		return fmt.Errorf("deleting dispatch record: %w", err)
	}
	return nil
}

// ListByEvent returns the ledger of one event.
func (r *DispatchRepository) ListByEvent(ctx context.Context, eventID string) ([]models.DispatchRecord, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT kind, user_id, group_id, event_id, offset_amount, offset_unit, sent_at
		FROM dispatch_log WHERE event_id = ? ORDER BY sent_at, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("querying dispatch log: %w", err)
	}
	defer rows.Close()

	var out []models.DispatchRecord
	for rows.Next() {
		var rec models.DispatchRecord
		var userID, groupID sql.NullInt64
		if err := rows.Scan(
			&rec.Kind, &userID, &groupID, &rec.EventID,
			&rec.Offset.Amount, &rec.Offset.Unit, &rec.SentAt,
		); err != nil {
			return nil, fmt.Errorf("scanning dispatch record: %w", err)
		}
		rec.UserID = int64Ptr(userID)
		rec.GroupID = int64Ptr(groupID)
		out = append(out, rec)
	}
	return out, rows.Err()
}
