package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/event-reminder/backend/internal/command"
	"github.com/event-reminder/backend/internal/messaging"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

const startLayout = "Mon 02 Jan 15:04"

// Renderer turns events and reminders into message text and buttons.
type Renderer struct {
	store *storage.Store
}

// NewRenderer creates a renderer that looks up role holders in store.
func NewRenderer(store *storage.Store) *Renderer {
	return &Renderer{store: store}
}

// EventCard renders the event with its role slots. Free slots get a booking
// button, taken slots a release button.
func (r *Renderer) EventCard(ctx context.Context, ev *models.Event) (string, []messaging.Action, error) {
	slots, err := r.store.Roles.Slots(ctx, ev.ID)
	if err != nil {
		return "", nil, fmt.Errorf("loading role slots: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s", ev.Name, ev.StartTime.Format(startLayout))
	if ev.ResponsibleUserID != nil {
		fmt.Fprintf(&b, "\nResponsible: %s", r.userLabel(ctx, ev.GroupID, *ev.ResponsibleUserID))
	}

	actions := make([]messaging.Action, 0, len(slots))
	for _, slot := range slots {
		if slot.IsFree() {
			fmt.Fprintf(&b, "\n%s: free", slot.RoleName)
			actions = append(actions, messaging.Action{
				Label: "Take " + slot.RoleName,
				Data:  command.BookRole{EventID: ev.ID, Role: slot.RoleName}.Encode(),
			})
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s", slot.RoleName, r.userLabel(ctx, ev.GroupID, *slot.UserID))
		actions = append(actions, messaging.Action{
			Label: "Leave " + slot.RoleName,
			Data:  command.UnbookRole{EventID: ev.ID, Role: slot.RoleName}.Encode(),
		})
	}
	return b.String(), actions, nil
}

// GroupReminder renders a group reminder: the custom message, if any,
// followed by the event card.
func (r *Renderer) GroupReminder(ctx context.Context, ev *models.Event, inst *models.NotificationInstance) (string, []messaging.Action, error) {
	card, actions, err := r.EventCard(ctx, ev)
	if err != nil {
		return "", nil, err
	}
	return header(inst) + "\n\n" + card, actions, nil
}

// PersonalReminder renders a direct reminder for one role holder.
func (r *Renderer) PersonalReminder(ctx context.Context, ev *models.Event, inst *models.NotificationInstance) (string, error) {
	var b strings.Builder
	b.WriteString(header(inst))
	fmt.Fprintf(&b, "\n\n%s\n%s", ev.Name, ev.StartTime.Format(startLayout))

	if inst.UserID != nil {
		held, err := r.store.Roles.UserRoles(ctx, ev.ID, *inst.UserID)
		if err != nil {
			return "", fmt.Errorf("loading user roles: %w", err)
		}
		if len(held) > 0 {
			fmt.Fprintf(&b, "\nYour roles: %s", strings.Join(held, ", "))
		}
		if ev.IsResponsible(*inst.UserID) {
			b.WriteString("\nYou are responsible for this event.")
		}
	}
	return b.String(), nil
}

func header(inst *models.NotificationInstance) string {
	if inst.Message != nil && *inst.Message != "" {
		return *inst.Message
	}
	return "Reminder: starts in " + describeOffset(inst.Offset)
}

func describeOffset(o models.Offset) string {
	unit := strings.TrimSuffix(string(o.Unit), "s")
	if o.Amount == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", o.Amount, unit)
}

// userLabel prefers the group display name, then the chat profile.
func (r *Renderer) userLabel(ctx context.Context, groupID, userID int64) string {
	if name, err := r.store.Groups.DisplayName(ctx, groupID, userID); err == nil && name != "" {
		return name
	}
	u, err := r.store.Users.GetByID(ctx, userID)
	if err != nil || u == nil {
		return fmt.Sprintf("user %d", userID)
	}
	if label := u.Label(); label != "" {
		return label
	}
	return fmt.Sprintf("user %d", userID)
}
