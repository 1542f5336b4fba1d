package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/event-reminder/backend/internal/storage/models"
)

// GroupRepository provides data access for chat groups and their membership.
type GroupRepository struct {
	BaseRepository
}

// NewGroupRepository creates a new group repository.
func NewGroupRepository(q Queryable) *GroupRepository {
	return &GroupRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

// Ensure returns the group for a chat, creating it on first sight and
// refreshing its title otherwise.
func (r *GroupRepository) Ensure(ctx context.Context, chatID, title string) (*models.Group, error) {
	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO chat_groups (telegram_chat_id, title, created_at) VALUES (?, ?, ?)
		ON CONFLICT (telegram_chat_id) DO UPDATE SET title = excluded.title
	`, chatID, title, r.Now())
	if err != nil {
		return nil, fmt.Errorf("upserting group: %w", err)
	}
	g, err := r.GetByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("group %s missing after upsert", chatID)
	}
	return g, nil
}

// GetByID retrieves a group by its ID.
func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*models.Group, error) {
	return r.get(ctx, `SELECT id, telegram_chat_id, title, owner_user_id, created_at FROM chat_groups WHERE id = ?`, id)
}

// GetByChatID retrieves a group by its chat ID.
func (r *GroupRepository) GetByChatID(ctx context.Context, chatID string) (*models.Group, error) {
	return r.get(ctx, `SELECT id, telegram_chat_id, title, owner_user_id, created_at FROM chat_groups WHERE telegram_chat_id = ?`, chatID)
}

func (r *GroupRepository) get(ctx context.Context, query string, arg any) (*models.Group, error) {
	g := &models.Group{}
	var owner sql.NullInt64
	err := r.Q().QueryRowContext(ctx, query, arg).Scan(&g.ID, &g.TelegramChatID, &g.Title, &owner, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying group: %w", err)
	}
	g.OwnerUserID = int64Ptr(owner)
	return g, nil
}

// SetOwner records the group's owner and makes them an owner member.
func (r *GroupRepository) SetOwner(ctx context.Context, groupID, userID int64) error {
	if _, err := r.Q().ExecContext(ctx, `UPDATE chat_groups SET owner_user_id = ? WHERE id = ?`, userID, groupID); err != nil {
		return fmt.Errorf("updating group owner: %w", err)
	}
	return r.SetMember(ctx, groupID, userID, models.MemberOwner)
}

// SetMember adds a user to a group or changes their role.
func (r *GroupRepository) SetMember(ctx context.Context, groupID, userID int64, role models.MemberRole) error {
	if _, err := r.Q().ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET role = excluded.role
	`, groupID, userID, role); err != nil {
		return fmt.Errorf("upserting group member: %w", err)
	}
	return nil
}

// MemberRole returns a user's role in a group. The second value is false if
// the user is not a member.
func (r *GroupRepository) MemberRole(ctx context.Context, groupID, userID int64) (models.MemberRole, bool, error) {
	var role models.MemberRole
	err := r.Q().QueryRowContext(ctx, `
		SELECT role FROM group_members WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying group member: %w", err)
	}
	return role, true, nil
}

// DefaultRoles returns the role names new one-off events of the group get.
func (r *GroupRepository) DefaultRoles(ctx context.Context, groupID int64) ([]string, error) {
	roles, err := queryStrings(ctx, r.Q(), `
		SELECT role_name FROM group_default_roles WHERE group_id = ? ORDER BY position, role_name
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying group default roles: %w", err)
	}
	return roles, nil
}

// SetDefaultRoles replaces the group's default role list.
func (r *GroupRepository) SetDefaultRoles(ctx context.Context, groupID int64, roles []string) error {
	if _, err := r.Q().ExecContext(ctx, `DELETE FROM group_default_roles WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("clearing group default roles: %w", err)
	}
	for i, role := range roles {
		if _, err := r.Q().ExecContext(ctx, `
			INSERT OR IGNORE INTO group_default_roles (group_id, role_name, position) VALUES (?, ?, ?)
		`, groupID, role, i); err != nil {
			return fmt.Errorf("inserting group default role: %w", err)
		}
	}
	return nil
}

// SetDisplayName stores the name a user goes by in a group.
func (r *GroupRepository) SetDisplayName(ctx context.Context, groupID, userID int64, name string) error {
	if _, err := r.Q().ExecContext(ctx, `
		INSERT INTO user_display_names (group_id, user_id, display_name) VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET display_name = excluded.display_name
	`, groupID, userID, name); err != nil {
		return fmt.Errorf("upserting display name: %w", err)
	}
	return nil
}

// DisplayName returns the name a user goes by in a group, or "" if unset.
func (r *GroupRepository) DisplayName(ctx context.Context, groupID, userID int64) (string, error) {
	var name string
	err := r.Q().QueryRowContext(ctx, `
		SELECT display_name FROM user_display_names WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying display name: %w", err)
	}
	return name, nil
}

// UserRepository provides data access for users.
type UserRepository struct {
	BaseRepository
}

// NewUserRepository creates a new user repository.
func NewUserRepository(q Queryable) *UserRepository {
	return &UserRepository{
		BaseRepository: NewBaseRepository(q),
	}
}

// Ensure returns the user with the given Telegram ID, creating or refreshing
// the profile fields.
func (r *UserRepository) Ensure(ctx context.Context, u *models.User) (*models.User, error) {
	_, err := r.Q().ExecContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, last_name, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name
	`, u.TelegramID, nullableString(u.Username), nullableString(u.FirstName), nullableString(u.LastName), r.Now())
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}
	saved, err := r.GetByTelegramID(ctx, u.TelegramID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("user %d missing after upsert", u.TelegramID)
	}
	return saved, nil
}

// GetByID retrieves a user by internal ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.get(ctx, `SELECT id, telegram_id, username, first_name, last_name, created_at FROM users WHERE id = ?`, id)
}

// GetByTelegramID retrieves a user by Telegram ID.
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return r.get(ctx, `SELECT id, telegram_id, username, first_name, last_name, created_at FROM users WHERE telegram_id = ?`, telegramID)
}

func (r *UserRepository) get(ctx context.Context, query string, arg any) (*models.User, error) {
	u := &models.User{}
	var username, first, last sql.NullString
	err := r.Q().QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.TelegramID, &username, &first, &last, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.Username = stringPtr(username)
	u.FirstName = stringPtr(first)
	u.LastName = stringPtr(last)
	return u, nil
}
