// Package bot turns chat updates into actions on events, roles and reminders.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/event-reminder/backend/internal/command"
	"github.com/event-reminder/backend/internal/events"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/parse"
	"github.com/event-reminder/backend/internal/roles"
	"github.com/event-reminder/backend/internal/session"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// Chat is the chat an update came from.
type Chat struct {
	ID      int64  `json:"id" validate:"required"`
	Title   string `json:"title"`
	Private bool   `json:"private"`
}

// Sender is the chat user behind an update.
type Sender struct {
	ID        int64  `json:"id" validate:"required"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Callback is an inline button press.
type Callback struct {
	Chat Chat   `json:"chat" validate:"required"`
	From Sender `json:"from" validate:"required"`
	Data string `json:"data" validate:"required"`
}

// Message is a free-text message.
type Message struct {
	Chat Chat   `json:"chat" validate:"required"`
	From Sender `json:"from" validate:"required"`
	Text string `json:"text"`
}

// Notifier posts an event card to its group right away.
type Notifier interface {
	NotifyNow(ctx context.Context, eventID string) error
}

// Deps are the collaborators of a Conversation.
type Deps struct {
	Store     *storage.Store
	Roles     *roles.Manager
	Events    *events.Service
	Resolver  *notify.Resolver
	Notifier  Notifier
	Sessions  *session.Store
	Auth      roles.Authorizer
	Durations parse.DurationParser
	Times     parse.DateTimeParser
}

// Conversation handles button presses and the text input they ask for.
type Conversation struct {
	Deps
	commands *command.Dispatcher
}

// NewConversation wires a conversation handler.
func NewConversation(deps Deps) *Conversation {
	if deps.Durations == nil {
		deps.Durations = parse.Simple{}
	}
	if deps.Times == nil {
		deps.Times = parse.Simple{}
	}
	c := &Conversation{Deps: deps}
	c.commands = &command.Dispatcher{Booking: c, Notify: c, Input: c}
	return c
}

// HandleCallback decodes and runs a button press.
func (c *Conversation) HandleCallback(ctx context.Context, cb Callback) (command.Reply, error) {
	actor, err := c.actor(ctx, cb.Chat, cb.From)
	if err != nil {
		return command.Reply{}, err
	}
	reply, err := c.commands.Dispatch(ctx, actor, cb.Data)
	if errors.Is(err, command.ErrMalformed) {
		slog.Warn("ignoring malformed callback", "data", cb.Data, "error", err)
		return command.Reply{Text: "Unknown action."}, nil
	}
	return reply, err
}

// HandleMessage applies text the sender was asked for. It returns false
// when no input was pending.
func (c *Conversation) HandleMessage(ctx context.Context, msg Message) (command.Reply, bool, error) {
	actor, err := c.actor(ctx, msg.Chat, msg.From)
	if err != nil {
		return command.Reply{}, false, err
	}
	key := session.Key{ChatID: actor.ChatID, UserID: actor.UserID}
	st, ok := c.Sessions.Get(key)
	if !ok {
		return command.Reply{}, false, nil
	}

	text := strings.TrimSpace(msg.Text)
	if text == "/cancel" {
		c.Sessions.Clear(key)
		return command.Reply{Text: "Cancelled."}, true, nil
	}

	reply, done, err := c.apply(ctx, actor, st, text)
	if err != nil {
		return command.Reply{}, true, err
	}
	if done {
		c.Sessions.Clear(key)
	}
	return reply, true, nil
}

// apply runs one input. done is false when the input was rejected and the
// conversation should keep waiting.
func (c *Conversation) apply(ctx context.Context, actor command.Actor, st session.State, text string) (command.Reply, bool, error) {
	switch st.Mode {
	case command.InputRename:
		ev, err := c.Events.Rename(ctx, st.EventID, text)
		if errors.Is(err, events.ErrInvalidEvent) {
			return command.Reply{Text: "The name cannot be empty."}, false, nil
		}
		if err != nil {
			return gone(err)
		}
		return command.Reply{Text: fmt.Sprintf("Renamed to %q.", ev.Name)}, true, nil

	case command.InputRetime:
		start, err := c.Times.ParseDateTime(text)
		if err != nil {
			return command.Reply{Text: "Send the time as YYYY-MM-DD HH:MM."}, false, nil
		}
		ev, err := c.Events.Retime(ctx, st.EventID, start)
		if err != nil {
			return gone(err)
		}
		return command.Reply{Text: "Moved to " + ev.StartTime.Format(models.OccurrenceKeyLayout) + "."}, true, nil

	case command.InputGroupReminder:
		return c.addReminder(ctx, notify.AddRequest{EventID: st.EventID, Kind: models.KindGroup}, text)

	case command.InputPersonalReminder:
		userID := actor.UserID
		return c.addReminder(ctx, notify.AddRequest{EventID: st.EventID, Kind: models.KindPersonal, UserID: &userID}, text)

	default:
		return command.Reply{Text: "Nothing to do."}, true, nil
	}
}

// addReminder accepts either an absolute time or a duration before the event.
func (c *Conversation) addReminder(ctx context.Context, req notify.AddRequest, text string) (command.Reply, bool, error) {
	var inst *models.NotificationInstance
	var err error
	if at, perr := c.Times.ParseDateTime(text); perr == nil {
		inst, err = c.Resolver.AddAt(ctx, req, at)
	} else {
		minutes, perr := c.Durations.ParseDuration(text)
		if perr != nil {
			return command.Reply{Text: "Send how long before the event, e.g. \"2 hours\", or a time as YYYY-MM-DD HH:MM."}, false, nil
		}
		req.Offset = models.OffsetFromMinutes(minutes)
		inst, err = c.Resolver.Add(ctx, req)
	}

	switch {
	case errors.Is(err, notify.ErrReminderInPast):
		return command.Reply{Text: "That moment has already passed. Try a shorter offset."}, false, nil
	case errors.Is(err, notify.ErrOffsetTooLarge):
		return command.Reply{Text: "Personal reminders can be at most 30 days before the event."}, false, nil
	case errors.Is(err, notify.ErrInvalidOffset):
		return command.Reply{Text: "That offset is not valid."}, false, nil
	case errors.Is(err, notify.ErrDuplicate):
		return command.Reply{Text: "That reminder already exists."}, true, nil
	case err != nil:
		return gone(err)
	}
	return command.Reply{Text: "Reminder set " + describe(inst.Offset) + " before the event."}, true, nil
}

func describe(o models.Offset) string {
	unit := strings.TrimSuffix(string(o.Unit), "s")
	if o.Amount != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", o.Amount, unit)
}

func gone(err error) (command.Reply, bool, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return command.Reply{Text: "This event no longer exists."}, true, nil
	}
	return command.Reply{}, false, err
}

// Book implements command.BookHandler.
func (c *Conversation) Book(ctx context.Context, actor command.Actor, cmd command.BookRole) (command.Reply, error) {
	decision, err := c.Roles.TryAssign(ctx, cmd.EventID, cmd.Role, actor.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return command.Reply{Text: "This event no longer exists.", Alert: true}, nil
	}
	if err != nil {
		return command.Reply{}, err
	}

	switch decision {
	case roles.Assigned:
		return command.Reply{Text: "You took " + cmd.Role + "."}, nil
	case roles.SlotTaken:
		return command.Reply{Text: cmd.Role + " is already taken.", Alert: true}, nil
	case roles.MultiRoleDenied:
		return command.Reply{Text: "Only one role per person on this event.", Alert: true}, nil
	default:
		return command.Reply{Text: "This role no longer exists.", Alert: true}, nil
	}
}

// Unbook implements command.BookHandler.
func (c *Conversation) Unbook(ctx context.Context, actor command.Actor, cmd command.UnbookRole) (command.Reply, error) {
	outcome, err := c.Roles.TryUnassign(ctx, cmd.EventID, cmd.Role, actor.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return command.Reply{Text: "This event no longer exists.", Alert: true}, nil
	}
	if err != nil {
		return command.Reply{}, err
	}

	switch outcome {
	case roles.Released:
		return command.Reply{Text: cmd.Role + " is free again."}, nil
	case roles.NotHolder:
		return command.Reply{Text: "You can only release your own role.", Alert: true}, nil
	default:
		return command.Reply{Text: cmd.Role + " is not taken.", Alert: true}, nil
	}
}

// NotifyNow implements command.NotifyHandler.
func (c *Conversation) NotifyNow(ctx context.Context, actor command.Actor, cmd command.NotifyNow) (command.Reply, error) {
	ev, err := c.Store.Events.GetByID(ctx, cmd.EventID)
	if err != nil {
		return command.Reply{}, err
	}
	if ev == nil {
		return command.Reply{Text: "This event no longer exists.", Alert: true}, nil
	}
	allowed, err := c.canEdit(ctx, ev, actor.UserID)
	if err != nil {
		return command.Reply{}, err
	}
	if !allowed {
		return command.Reply{Text: "Only admins and the responsible person can do that.", Alert: true}, nil
	}
	if err := c.Notifier.NotifyNow(ctx, ev.ID); err != nil {
		return command.Reply{}, err
	}
	return command.Reply{Text: "Posted to the group."}, nil
}

// AwaitInput implements command.InputHandler.
func (c *Conversation) AwaitInput(ctx context.Context, actor command.Actor, cmd command.AwaitInput) (command.Reply, error) {
	ev, err := c.Store.Events.GetByID(ctx, cmd.EventID)
	if err != nil {
		return command.Reply{}, err
	}
	if ev == nil {
		return command.Reply{Text: "This event no longer exists.", Alert: true}, nil
	}

	var allowed bool
	if cmd.Mode == command.InputPersonalReminder {
		allowed, err = c.Store.Bookings.Exists(ctx, actor.UserID, ev.ID)
	} else {
		allowed, err = c.canEdit(ctx, ev, actor.UserID)
	}
	if err != nil {
		return command.Reply{}, err
	}
	if !allowed {
		return command.Reply{Text: "You cannot change this event.", Alert: true}, nil
	}

	c.Sessions.Begin(session.Key{ChatID: actor.ChatID, UserID: actor.UserID}, cmd.Mode, ev.GroupID, ev.ID)
	return command.Reply{Text: prompt(cmd.Mode)}, nil
}

func prompt(mode command.InputMode) string {
	switch mode {
	case command.InputRename:
		return "Send the new name."
	case command.InputRetime:
		return "Send the new start as YYYY-MM-DD HH:MM."
	default:
		return "Send how long before the event to remind, e.g. \"1 day 2 hours\"."
	}
}

func (c *Conversation) canEdit(ctx context.Context, ev *models.Event, userID int64) (bool, error) {
	if ev.IsResponsible(userID) {
		return true, nil
	}
	if c.Auth == nil {
		return false, nil
	}
	return c.Auth.IsPrivileged(ctx, ev.GroupID, userID)
}

// actor registers the sender and, for group chats, the group.
func (c *Conversation) actor(ctx context.Context, chat Chat, from Sender) (command.Actor, error) {
	user, err := c.Store.Users.Ensure(ctx, &models.User{
		TelegramID: from.ID,
		Username:   optional(from.Username),
		FirstName:  optional(from.FirstName),
		LastName:   optional(from.LastName),
	})
	if err != nil {
		return command.Actor{}, fmt.Errorf("registering user: %w", err)
	}

	if !chat.Private {
		group, err := c.Store.Groups.Ensure(ctx, strconv.FormatInt(chat.ID, 10), chat.Title)
		if err != nil {
			return command.Actor{}, fmt.Errorf("registering group: %w", err)
		}
		if _, err := c.Resolver.EnsureDefaultRules(ctx, group.ID); err != nil {
			return command.Actor{}, err
		}
	}
	return command.Actor{UserID: user.ID, ChatID: chat.ID}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
