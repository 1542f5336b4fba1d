package websocket

import (
	"log/slog"

	"github.com/event-reminder/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// EventMaterialized announces an event generated from a template.
func (b *EventBroadcaster) EventMaterialized(ev *models.Event) {
	b.broadcast(ev.GroupID, NewMessage(TypeEventMaterialized, eventPayload(ev)))
}

// EventUpdated announces a changed event.
func (b *EventBroadcaster) EventUpdated(ev *models.Event) {
	b.broadcast(ev.GroupID, NewMessage(TypeEventUpdated, eventPayload(ev)))
}

// EventDeleted announces a removed event.
func (b *EventBroadcaster) EventDeleted(ev *models.Event) {
	b.broadcast(ev.GroupID, NewMessage(TypeEventDeleted, EventPayload{EventID: ev.ID, GroupID: ev.GroupID}))
}

// RoleAssigned announces a filled role slot.
func (b *EventBroadcaster) RoleAssigned(ev *models.Event, role string, userID int64) {
	b.broadcast(ev.GroupID, NewMessage(TypeRoleAssigned, RolePayload{
		EventID: ev.ID, GroupID: ev.GroupID, RoleName: role, UserID: userID,
	}))
}

// RoleUnassigned announces a freed role slot.
func (b *EventBroadcaster) RoleUnassigned(ev *models.Event, role string, userID int64) {
	b.broadcast(ev.GroupID, NewMessage(TypeRoleUnassigned, RolePayload{
		EventID: ev.ID, GroupID: ev.GroupID, RoleName: role, UserID: userID,
	}))
}

// ReminderDispatched announces a delivered reminder.
func (b *EventBroadcaster) ReminderDispatched(ev *models.Event, inst *models.NotificationInstance) {
	b.broadcast(ev.GroupID, NewMessage(TypeReminderDispatched, reminderPayload(ev, inst, nil)))
}

// ReminderFailed announces a reminder whose delivery failed.
func (b *EventBroadcaster) ReminderFailed(ev *models.Event, inst *models.NotificationInstance, err error) {
	b.broadcast(ev.GroupID, NewMessage(TypeReminderFailed, reminderPayload(ev, inst, err)))
}

// SystemStatusChanged sends a system status change event.
func (b *EventBroadcaster) SystemStatusChanged(status map[string]any) {
	b.broadcast(0, NewMessage(TypeSystemStatusChanged, status))
}

func eventPayload(ev *models.Event) EventPayload {
	p := EventPayload{
		EventID:   ev.ID,
		GroupID:   ev.GroupID,
		Name:      ev.Name,
		StartTime: ev.StartTime,
	}
	if ev.TemplateID != nil {
		p.TemplateID = *ev.TemplateID
	}
	return p
}

func reminderPayload(ev *models.Event, inst *models.NotificationInstance, err error) ReminderPayload {
	p := ReminderPayload{
		EventID:      ev.ID,
		GroupID:      ev.GroupID,
		Kind:         string(inst.Kind),
		UserID:       inst.UserID,
		OffsetAmount: inst.Offset.Amount,
		OffsetUnit:   string(inst.Offset.Unit),
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

// broadcast sends a message to the clients interested in groupID.
func (b *EventBroadcaster) broadcast(groupID int64, msg Message) {
	data, err := msg.JSON()
	if err != nil {
		slog.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.BroadcastGroup(groupID, data)
}
