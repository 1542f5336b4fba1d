// Package messaging defines the outbound chat transport the reminder core
// delivers through.
package messaging

import (
	"context"
)

// Action is an inline button attached to a group message. Data is an encoded
// command payload.
type Action struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Gateway delivers messages. Both calls may fail independently per recipient.
type Gateway interface {
	SendGroup(ctx context.Context, groupID int64, text string, actions []Action) error
	SendDirect(ctx context.Context, userID int64, text string) error
}
