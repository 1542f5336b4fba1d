package storage

import (
	"context"
	"fmt"

	"github.com/event-reminder/backend/internal/storage/models"
)

// OccurrenceRepository provides access to the materialization ledger.
type OccurrenceRepository struct {
	BaseRepository
}

// NewOccurrenceRepository creates a new occurrence repository.
func NewOccurrenceRepository(q Queryable) *OccurrenceRepository {
	return &OccurrenceRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

// Exists reports whether the occurrence was already materialized.
func (r *OccurrenceRepository) Exists(ctx context.Context, templateID, key string) (bool, error) {
	var n int
	err := r.Q().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM generated_occurrences WHERE template_id = ? AND occurrence_key = ?
	`, templateID, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying generated occurrence: %w", err)
	}
	return n > 0, nil
}

// Record writes a ledger row. It returns false if the occurrence was already
// recorded; existing rows are never updated.
func (r *OccurrenceRepository) Record(ctx context.Context, o *models.GeneratedOccurrence) (bool, error) {
	o.CreatedAt = r.Now()
	result, err := r.Q().ExecContext(ctx, `
		INSERT OR IGNORE INTO generated_occurrences (template_id, occurrence_key, event_id, created_at)
		VALUES (?, ?, ?, ?)
	`, o.TemplateID, o.OccurrenceKey, o.EventID, o.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("inserting generated occurrence: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n == 1, nil
}

// ListByTemplate returns the ledger rows of a template ordered by key.
func (r *OccurrenceRepository) ListByTemplate(ctx context.Context, templateID string) ([]models.GeneratedOccurrence, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT template_id, occurrence_key, event_id, created_at
		FROM generated_occurrences WHERE template_id = ? ORDER BY occurrence_key
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("querying generated occurrences: %w", err)
	}
	defer rows.Close()

	var out []models.GeneratedOccurrence
	for rows.Next() {
		var o models.GeneratedOccurrence
		if err := rows.Scan(&o.TemplateID, &o.OccurrenceKey, &o.EventID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning generated occurrence: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
