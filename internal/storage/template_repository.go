package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-reminder/backend/internal/storage/models"
)

// TemplateRepository provides data access for event templates.
type TemplateRepository struct {
	BaseRepository
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(q Queryable) *TemplateRepository {
	return &TemplateRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

const templateColumns = `
	id, group_id, name, kind, base_time, timezone, freq, repeat_interval,
	bymonthday, byweekday, planning_horizon_days, allow_multi_roles_per_user,
	created_at, updated_at`

// Create inserts a new template together with its exceptions and default roles.
func (r *TemplateRepository) Create(ctx context.Context, t *models.Template) error {
	t.ID = GenerateID()
	t.CreatedAt = r.Now()
	t.UpdatedAt = t.CreatedAt

	monthDays, weekDays, err := encodeTemplateLists(t)
	if err != nil {
		return err
	}

	_, err = r.Q().ExecContext(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.GroupID, t.Name, t.Kind, t.BaseTime, t.Timezone, t.Freq, t.Interval,
		monthDays, weekDays, t.PlanningHorizonDays, boolToInt(t.AllowMultiRolesPerUser),
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting template: %w", err)
	}

	if err := r.replaceExceptions(ctx, t.ID, t.Exceptions); err != nil {
		return err
	}
	return r.replaceRoles(ctx, t.ID, t.Roles)
}

// Update overwrites a template's rule, exceptions and default roles.
func (r *TemplateRepository) Update(ctx context.Context, t *models.Template) error {
	t.UpdatedAt = r.Now()

	monthDays, weekDays, err := encodeTemplateLists(t)
	if err != nil {
		return err
	}

	result, err := r.Q().ExecContext(ctx, `
		UPDATE templates SET
			name = ?, kind = ?, base_time = ?, timezone = ?, freq = ?, repeat_interval = ?,
			bymonthday = ?, byweekday = ?, planning_horizon_days = ?,
			allow_multi_roles_per_user = ?, updated_at = ?
		WHERE id = ?
	`,
		t.Name, t.Kind, t.BaseTime, t.Timezone, t.Freq, t.Interval,
		monthDays, weekDays, t.PlanningHorizonDays,
		boolToInt(t.AllowMultiRolesPerUser), t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating template: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := r.replaceExceptions(ctx, t.ID, t.Exceptions); err != nil {
		return err
	}
	return r.replaceRoles(ctx, t.ID, t.Roles)
}

// GetByID retrieves a template by its ID.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	row := r.Q().QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying template: %w", err)
	}

	if err := r.loadChildren(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// List retrieves all templates.
func (r *TemplateRepository) List(ctx context.Context) ([]models.Template, error) {
	return r.list(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY created_at`)
}

// ListByGroup retrieves the templates owned by a group.
func (r *TemplateRepository) ListByGroup(ctx context.Context, groupID int64) ([]models.Template, error) {
	return r.list(ctx, `SELECT `+templateColumns+` FROM templates WHERE group_id = ? ORDER BY created_at`, groupID)
}

func (r *TemplateRepository) list(ctx context.Context, query string, args ...any) ([]models.Template, error) {
	rows, err := r.Q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying templates: %w", err)
	}

	var templates []models.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning template: %w", err)
		}
		templates = append(templates, *t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	// Children are loaded after the cursor is closed; a transaction holds a
	// single connection.
	for i := range templates {
		if err := r.loadChildren(ctx, &templates[i]); err != nil {
			return nil, err
		}
	}
	return templates, nil
}

func (r *TemplateRepository) loadChildren(ctx context.Context, t *models.Template) error {
	exceptions, err := queryStrings(ctx, r.Q(), `
		SELECT exception_date FROM template_exceptions WHERE template_id = ? ORDER BY exception_date
	`, t.ID)
	if err != nil {
		return fmt.Errorf("querying template exceptions: %w", err)
	}
	roles, err := queryStrings(ctx, r.Q(), `
		SELECT role_name FROM template_roles WHERE template_id = ? ORDER BY position, role_name
	`, t.ID)
	if err != nil {
		return fmt.Errorf("querying template roles: %w", err)
	}
	t.Exceptions = exceptions
	t.Roles = roles
	return nil
}

func (r *TemplateRepository) replaceExceptions(ctx context.Context, templateID string, dates []string) error {
	if _, err := r.Q().ExecContext(ctx, `DELETE FROM template_exceptions WHERE template_id = ?`, templateID); err != nil {
		return fmt.Errorf("clearing template exceptions: %w", err)
	}
	for _, d := range dates {
		if _, err := r.Q().ExecContext(ctx, `
			INSERT OR IGNORE INTO template_exceptions (template_id, exception_date) VALUES (?, ?)
		`, templateID, d); err != nil {
			return fmt.Errorf("inserting template exception: %w", err)
		}
	}
	return nil
}

func (r *TemplateRepository) replaceRoles(ctx context.Context, templateID string, roles []string) error {
	if _, err := r.Q().ExecContext(ctx, `DELETE FROM template_roles WHERE template_id = ?`, templateID); err != nil {
		return fmt.Errorf("clearing template roles: %w", err)
	}
	for i, role := range roles {
		if _, err := r.Q().ExecContext(ctx, `
			INSERT OR IGNORE INTO template_roles (template_id, role_name, position) VALUES (?, ?, ?)
		`, templateID, role, i); err != nil {
			return fmt.Errorf("inserting template role: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(s scanner) (*models.Template, error) {
	t := &models.Template{}
	var monthDays, weekDays string
	var allowMulti int
	err := s.Scan(
		&t.ID, &t.GroupID, &t.Name, &t.Kind, &t.BaseTime, &t.Timezone, &t.Freq, &t.Interval,
		&monthDays, &weekDays, &t.PlanningHorizonDays, &allowMulti,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.AllowMultiRolesPerUser = allowMulti != 0
	if err := decodeJSON(monthDays, &t.ByMonthDay); err != nil {
		return nil, err
	}
	if err := decodeJSON(weekDays, &t.ByWeekday); err != nil {
		return nil, err
	}
	return t, nil
}

func encodeTemplateLists(t *models.Template) (string, string, error) {
	monthDays := t.ByMonthDay
	if monthDays == nil {
		monthDays = []int{}
	}
	weekDays := t.ByWeekday
	if weekDays == nil {
		weekDays = []string{}
	}
	md, err := encodeJSON(monthDays)
	if err != nil {
		return "", "", err
	}
	wd, err := encodeJSON(weekDays)
	if err != nil {
		return "", "", err
	}
	return md, wd, nil
}

func queryStrings(ctx context.Context, q Queryable, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
