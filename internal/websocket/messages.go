package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeEventMaterialized   MessageType = "event.materialized"
	TypeEventUpdated        MessageType = "event.updated"
	TypeEventDeleted        MessageType = "event.deleted"
	TypeRoleAssigned        MessageType = "role.assigned"
	TypeRoleUnassigned      MessageType = "role.unassigned"
	TypeReminderDispatched  MessageType = "reminder.dispatched"
	TypeReminderFailed      MessageType = "reminder.failed"
	TypeSystemStatusChanged MessageType = "system.status_changed"

	// Client -> Server command types
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePing        MessageType = "ping"

	// Server -> Client response types
	TypeSubscribeAck MessageType = "subscribe.ack"
	TypePong         MessageType = "pong"
	TypeError        MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// ClientCommand is a message sent by a client.
type ClientCommand struct {
	Type     MessageType `json:"type"`
	GroupIDs []int64     `json:"group_ids,omitempty"`
}

// EventPayload is the payload for event.* messages.
type EventPayload struct {
	EventID    string    `json:"event_id"`
	GroupID    int64     `json:"group_id"`
	TemplateID string    `json:"template_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	StartTime  time.Time `json:"start_time,omitempty"`
}

// RolePayload is the payload for role.* messages.
type RolePayload struct {
	EventID  string `json:"event_id"`
	GroupID  int64  `json:"group_id"`
	RoleName string `json:"role_name"`
	UserID   int64  `json:"user_id"`
}

// ReminderPayload is the payload for reminder.* messages.
type ReminderPayload struct {
	EventID      string `json:"event_id"`
	GroupID      int64  `json:"group_id"`
	Kind         string `json:"kind"`
	UserID       *int64 `json:"user_id,omitempty"`
	OffsetAmount int    `json:"offset_amount"`
	OffsetUnit   string `json:"offset_unit"`
	Error        string `json:"error,omitempty"`
}

// SubscribeAckPayload is the payload for subscribe.ack messages.
type SubscribeAckPayload struct {
	GroupIDs []int64 `json:"group_ids"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
