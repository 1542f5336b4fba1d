package models

import (
	"time"
)

// MemberRole is a user's standing within a group.
type MemberRole string

const (
	MemberOwner  MemberRole = "owner"
	MemberAdmin  MemberRole = "admin"
	MemberMember MemberRole = "member"
)

// IsPrivileged returns true for roles allowed to manage the group.
func (r MemberRole) IsPrivileged() bool {
	return r == MemberOwner || r == MemberAdmin
}

// Group is a chat that owns events.
type Group struct {
	ID             int64     `json:"id"`
	TelegramChatID string    `json:"telegram_chat_id"`
	Title          string    `json:"title"`
	OwnerUserID    *int64    `json:"owner_user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// User is a chat participant known to the bot.
type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   *string   `json:"username,omitempty"`
	FirstName  *string   `json:"first_name,omitempty"`
	LastName   *string   `json:"last_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Label returns the best human-readable name for the user.
func (u *User) Label() string {
	if u.Username != nil && *u.Username != "" {
		return "@" + *u.Username
	}
	name := ""
	if u.FirstName != nil {
		name = *u.FirstName
	}
	if u.LastName != nil && *u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += *u.LastName
	}
	return name
}

// GroupMember links a user to a group with a role.
type GroupMember struct {
	GroupID int64      `json:"group_id"`
	UserID  int64      `json:"user_id"`
	Role    MemberRole `json:"role"`
}
