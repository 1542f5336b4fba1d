package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/event-reminder/backend/internal/storage/models"
)

// RuleRepository provides data access for group-scoped reminder rules.
type RuleRepository struct {
	BaseRepository
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(q Queryable) *RuleRepository {
	return &RuleRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

// Create inserts a rule. Inserting an offset the group already has for the
// same kind is a no-op that returns false.
func (r *RuleRepository) Create(ctx context.Context, rule *models.NotificationRule) (bool, error) {
	rule.ID = GenerateID()
	rule.CreatedAt = r.Now()

	result, err := r.Q().ExecContext(ctx, `
		INSERT OR IGNORE INTO notification_rules (
			id, group_id, kind, offset_amount, offset_unit, message, is_default, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.ID, rule.GroupID, rule.Kind, rule.Offset.Amount, rule.Offset.Unit,
		nullableString(rule.Message), boolToInt(rule.IsDefault), rule.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting notification rule: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n == 1, nil
}

// GetByID retrieves a rule by its ID.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.NotificationRule, error) {
	rule, err := scanRule(r.Q().QueryRowContext(ctx, `
		SELECT id, group_id, kind, offset_amount, offset_unit, message, is_default, created_at
		FROM notification_rules WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification rule: %w", err)
	}
	return rule, nil
}

// ListByGroup returns a group's rules of one kind.
func (r *RuleRepository) ListByGroup(ctx context.Context, groupID int64, kind models.NotificationKind) ([]models.NotificationRule, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT id, group_id, kind, offset_amount, offset_unit, message, is_default, created_at
		FROM notification_rules WHERE group_id = ? AND kind = ?
		ORDER BY created_at, id
	`, groupID, kind)
	if err != nil {
		return nil, fmt.Errorf("querying notification rules: %w", err)
	}
	defer rows.Close()

	var rules []models.NotificationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// Delete removes a rule. Instances already materialized from it are kept.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.Q().ExecContext(ctx, `DELETE FROM notification_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting notification rule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRule(s scanner) (*models.NotificationRule, error) {
	rule := &models.NotificationRule{}
	var message sql.NullString
	var isDefault int
	if err := s.Scan(
		&rule.ID, &rule.GroupID, &rule.Kind, &rule.Offset.Amount, &rule.Offset.Unit,
		&message, &isDefault, &rule.CreatedAt,
	); err != nil {
		return nil, err
	}
	rule.Message = stringPtr(message)
	rule.IsDefault = isDefault != 0
	return rule, nil
}

// InstanceRepository provides data access for per-event reminder instances.
type InstanceRepository struct {
	BaseRepository
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(q Queryable) *InstanceRepository {
	return &InstanceRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

const instanceColumns = `id, event_id, kind, user_id, offset_amount, offset_unit, message, created_at`

// Insert adds an instance unless an identical one exists for the same
// recipient. It returns false in that case and leaves inst.ID empty.
func (r *InstanceRepository) Insert(ctx context.Context, inst *models.NotificationInstance) (bool, error) {
	id := GenerateID()
	createdAt := r.Now()

	result, err := r.Q().ExecContext(ctx, `
		INSERT OR IGNORE INTO notification_instances (`+instanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, inst.EventID, inst.Kind, nullableInt64(inst.UserID),
		inst.Offset.Amount, inst.Offset.Unit, nullableString(inst.Message), createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting notification instance: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	inst.ID = id
	inst.CreatedAt = createdAt
	return true, nil
}

// GetByID retrieves an instance by its ID.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.NotificationInstance, error) {
	inst, err := scanInstance(r.Q().QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM notification_instances WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification instance: %w", err)
	}
	return inst, nil
}

// ListByEvent returns all instances of an event.
func (r *InstanceRepository) ListByEvent(ctx context.Context, eventID string) ([]models.NotificationInstance, error) {
	return r.list(ctx, `
		SELECT `+instanceColumns+` FROM notification_instances
		WHERE event_id = ? ORDER BY kind, user_id, created_at
	`, eventID)
}

// ListPersonal returns the personal instances of userID on an event.
func (r *InstanceRepository) ListPersonal(ctx context.Context, eventID string, userID int64) ([]models.NotificationInstance, error) {
	return r.list(ctx, `
		SELECT `+instanceColumns+` FROM notification_instances
		WHERE event_id = ? AND kind = 'personal' AND user_id = ? ORDER BY created_at
	`, eventID, userID)
}

// ListForEventsAfter returns every instance whose event starts after the
// given time, joined with its event.
func (r *InstanceRepository) ListForEventsAfter(ctx context.Context, after time.Time) ([]models.DueInstance, error) {
	rows, err := r.Q().QueryContext(ctx, `
		SELECT n.id, n.event_id, n.kind, n.user_id, n.offset_amount, n.offset_unit, n.message, n.created_at,
		       e.id, e.group_id, e.template_id, e.name, e.start_time, e.responsible_user_id,
		       e.allow_multi_roles_per_user, e.created_at, e.updated_at
		FROM notification_instances n
		JOIN events e ON e.id = n.event_id
		WHERE e.start_time > ?
		ORDER BY e.start_time, n.kind, n.user_id
	`, after)
	if err != nil {
		return nil, fmt.Errorf("querying due notification instances: %w", err)
	}
	defer rows.Close()

	var out []models.DueInstance
	for rows.Next() {
		var d models.DueInstance
		var userID, responsible sql.NullInt64
		var message, templateID sql.NullString
		var allowMulti int
		if err := rows.Scan(
			&d.Instance.ID, &d.Instance.EventID, &d.Instance.Kind, &userID,
			&d.Instance.Offset.Amount, &d.Instance.Offset.Unit, &message, &d.Instance.CreatedAt,
			&d.Event.ID, &d.Event.GroupID, &templateID, &d.Event.Name, &d.Event.StartTime,
			&responsible, &allowMulti, &d.Event.CreatedAt, &d.Event.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning due notification instance: %w", err)
		}
		d.Instance.UserID = int64Ptr(userID)
		d.Instance.Message = stringPtr(message)
		d.Event.TemplateID = stringPtr(templateID)
		d.Event.ResponsibleUserID = int64Ptr(responsible)
		d.Event.AllowMultiRolesPerUser = allowMulti != 0
		out = append(out, d)
	}
	return out, rows.Err()
}

// Delete removes an instance.
func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.Q().ExecContext(ctx, `DELETE FROM notification_instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting notification instance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *InstanceRepository) list(ctx context.Context, query string, args ...any) ([]models.NotificationInstance, error) {
	rows, err := r.Q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notification instances: %w", err)
	}
	defer rows.Close()

	var out []models.NotificationInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification instance: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func scanInstance(s scanner) (*models.NotificationInstance, error) {
	inst := &models.NotificationInstance{}
	var userID sql.NullInt64
	var message sql.NullString
	if err := s.Scan(
		&inst.ID, &inst.EventID, &inst.Kind, &userID,
		&inst.Offset.Amount, &inst.Offset.Unit, &message, &inst.CreatedAt,
	); err != nil {
		return nil, err
	}
	inst.UserID = int64Ptr(userID)
	inst.Message = stringPtr(message)
	return inst, nil
}
