package models

import (
	"time"
)

// Event is a single dated happening belonging to a group.
type Event struct {
	ID                     string    `json:"id"`
	GroupID                int64     `json:"group_id"`
	TemplateID             *string   `json:"template_id,omitempty"`
	Name                   string    `json:"name"`
	StartTime              time.Time `json:"start_time"`
	ResponsibleUserID      *int64    `json:"responsible_user_id,omitempty"`
	AllowMultiRolesPerUser bool      `json:"allow_multi_roles_per_user"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// IsResponsible reports whether userID is the event's responsible user.
func (e *Event) IsResponsible(userID int64) bool {
	return e.ResponsibleUserID != nil && *e.ResponsibleUserID == userID
}

// RoleRequirement is a named open slot on an event.
type RoleRequirement struct {
	EventID  string `json:"event_id"`
	RoleName string `json:"role_name"`
}

// RoleAssignment binds one user to a role slot of an event.
type RoleAssignment struct {
	EventID    string    `json:"event_id"`
	RoleName   string    `json:"role_name"`
	UserID     int64     `json:"user_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// RoleSlot combines a requirement with its current assignee, if any.
type RoleSlot struct {
	RoleName string `json:"role_name"`
	UserID   *int64 `json:"user_id,omitempty"`
}

// IsFree returns true if nobody holds the slot.
func (s RoleSlot) IsFree() bool {
	return s.UserID == nil
}

// EventWithRoles combines an event with its role slots.
type EventWithRoles struct {
	Event
	Roles []RoleSlot `json:"roles"`
}
