package command

import (
	"context"
	"fmt"
)

// Actor identifies who pressed a button.
type Actor struct {
	UserID int64
	ChatID int64
}

// Reply is the short answer shown to the actor.
type Reply struct {
	Text  string `json:"text"`
	Alert bool   `json:"alert,omitempty"`
}

// BookHandler handles BookRole and UnbookRole.
type BookHandler interface {
	Book(ctx context.Context, actor Actor, cmd BookRole) (Reply, error)
	Unbook(ctx context.Context, actor Actor, cmd UnbookRole) (Reply, error)
}

// NotifyHandler handles NotifyNow.
type NotifyHandler interface {
	NotifyNow(ctx context.Context, actor Actor, cmd NotifyNow) (Reply, error)
}

// InputHandler handles AwaitInput.
type InputHandler interface {
	AwaitInput(ctx context.Context, actor Actor, cmd AwaitInput) (Reply, error)
}

// Dispatcher routes decoded commands to their handlers.
type Dispatcher struct {
	Booking BookHandler
	Notify  NotifyHandler
	Input   InputHandler
}

// Dispatch decodes data and runs the matching handler.
func (d *Dispatcher) Dispatch(ctx context.Context, actor Actor, data string) (Reply, error) {
	cmd, err := Decode(data)
	if err != nil {
		return Reply{}, err
	}
	return d.Route(ctx, actor, cmd)
}

// Route runs the handler for an already decoded command.
func (d *Dispatcher) Route(ctx context.Context, actor Actor, cmd Command) (Reply, error) {
	switch c := cmd.(type) {
	case BookRole:
		if d.Booking != nil {
			return d.Booking.Book(ctx, actor, c)
		}
	case UnbookRole:
		if d.Booking != nil {
			return d.Booking.Unbook(ctx, actor, c)
		}
	case NotifyNow:
		if d.Notify != nil {
			return d.Notify.NotifyNow(ctx, actor, c)
		}
	case AwaitInput:
		if d.Input != nil {
			return d.Input.AwaitInput(ctx, actor, c)
		}
	}
	return Reply{}, fmt.Errorf("no handler for %s command", cmd.Kind())
}
