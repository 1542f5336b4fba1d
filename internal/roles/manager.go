// Package roles manages exclusive role slots on events and the personal
// reminders that follow from holding one.
package roles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// Decision is the outcome of an assignment attempt.
type Decision int

const (
	Assigned Decision = iota
	UnknownRole
	SlotTaken
	MultiRoleDenied
)

func (d Decision) String() string {
	switch d {
	case Assigned:
		return "assigned"
	case UnknownRole:
		return "unknown_role"
	case SlotTaken:
		return "slot_taken"
	case MultiRoleDenied:
		return "multi_role_denied"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Release is the outcome of an unassignment attempt.
type Release int

const (
	Released Release = iota
	SlotEmpty
	NotHolder
)

func (r Release) String() string {
	switch r {
	case Released:
		return "released"
	case SlotEmpty:
		return "slot_empty"
	case NotHolder:
		return "not_holder"
	default:
		return fmt.Sprintf("release(%d)", int(r))
	}
}

// Authorizer decides whether a user may manage a group's events.
type Authorizer interface {
	IsPrivileged(ctx context.Context, groupID, userID int64) (bool, error)
}

// Observer is told about committed role changes.
type Observer interface {
	RoleAssigned(ev *models.Event, role string, userID int64)
	RoleUnassigned(ev *models.Event, role string, userID int64)
}

// Manager assigns and releases role slots.
type Manager struct {
	store    *storage.Store
	resolver *notify.Resolver
	auth     Authorizer
	observer Observer
}

// NewManager creates a role manager. observer may be nil.
func NewManager(store *storage.Store, resolver *notify.Resolver, auth Authorizer, observer Observer) *Manager {
	return &Manager{
		store:    store,
		resolver: resolver,
		auth:     auth,
		observer: observer,
	}
}

// With returns a manager bound to another store, typically a transaction.
func (m *Manager) With(store *storage.Store) *Manager {
	return &Manager{
		store:    store,
		resolver: m.resolver.With(store),
		auth:     m.auth,
		observer: m.observer,
	}
}

// Assign gives role on an event to userID. It returns false, without an
// error, when the role does not exist, is already held, or the user already
// holds another role on an event that allows only one.
func (m *Manager) Assign(ctx context.Context, eventID, role string, userID int64) (bool, error) {
	d, err := m.TryAssign(ctx, eventID, role, userID)
	return d == Assigned, err
}

// TryAssign is Assign reporting why an assignment was declined.
func (m *Manager) TryAssign(ctx context.Context, eventID, role string, userID int64) (Decision, error) {
	var ev *models.Event
	decision := Assigned

	err := m.store.InTx(ctx, func(tx *storage.Store) error {
		var err error
		ev, err = loadEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}

		ok, err := tx.Roles.HasRequirement(ctx, eventID, role)
		if err != nil {
			return err
		}
		if !ok {
			decision = UnknownRole
			return nil
		}

		holder, err := tx.Roles.Assignee(ctx, eventID, role)
		if err != nil {
			return err
		}
		if holder != nil {
			decision = SlotTaken
			return nil
		}

		if !ev.AllowMultiRolesPerUser {
			held, err := tx.Roles.CountUserRoles(ctx, eventID, userID)
			if err != nil {
				return err
			}
			if held > 0 {
				decision = MultiRoleDenied
				return nil
			}
		}

		if err := tx.Roles.Assign(ctx, eventID, role, userID); err != nil {
			if storage.IsUniqueViolation(err) {
				decision = SlotTaken
				return nil
			}
			return err
		}
		if err := tx.Bookings.Add(ctx, userID, eventID); err != nil {
			return err
		}
		_, err = m.resolver.With(tx).ResolvePersonalFor(ctx, ev, userID)
		return err
	})
	if err != nil {
		return decision, err
	}

	if decision == Assigned {
		slog.Info("role assigned", "event_id", eventID, "role", role, "user_id", userID)
		if m.observer != nil {
			m.observer.RoleAssigned(ev, role, userID)
		}
	}
	return decision, nil
}

// Unassign frees role on an event on behalf of actorID. Members may only
// release their own role; group owners, admins and superadmins may release
// anyone's. It returns false when the slot is empty or the actor may not
// release it.
func (m *Manager) Unassign(ctx context.Context, eventID, role string, actorID int64) (bool, error) {
	r, err := m.TryUnassign(ctx, eventID, role, actorID)
	return r == Released, err
}

// TryUnassign is Unassign reporting why a release was declined.
func (m *Manager) TryUnassign(ctx context.Context, eventID, role string, actorID int64) (Release, error) {
	ev, err := loadEvent(ctx, m.store, eventID)
	if err != nil {
		return SlotEmpty, err
	}
	privileged := false
	if m.auth != nil {
		privileged, err = m.auth.IsPrivileged(ctx, ev.GroupID, actorID)
		if err != nil {
			return SlotEmpty, err
		}
	}

	var holder int64
	outcome := SlotEmpty
	err = m.store.InTx(ctx, func(tx *storage.Store) error {
		current, err := tx.Roles.Assignee(ctx, eventID, role)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		if *current != actorID && !privileged {
			outcome = NotHolder
			return nil
		}
		holder = *current

		ok, err := tx.Roles.Unassign(ctx, eventID, role, holder)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		outcome = Released
		return m.releaseIfIdle(ctx, tx, ev, holder)
	})
	if err != nil {
		return SlotEmpty, err
	}
	if outcome != Released {
		return outcome, nil
	}

	slog.Info("role unassigned", "event_id", eventID, "role", role, "user_id", holder, "actor_id", actorID)
	if m.observer != nil {
		m.observer.RoleUnassigned(ev, role, holder)
	}
	return Released, nil
}

// SetResponsible replaces the event's responsible user if it still equals
// expected. The new user is booked and gains the group's personal reminders
// on top of any they already have; the previous one loses them unless they
// still hold a role. It returns false if the event changed in between.
func (m *Manager) SetResponsible(ctx context.Context, eventID string, expected, next *int64) (bool, error) {
	swapped := false
	err := m.store.InTx(ctx, func(tx *storage.Store) error {
		ok, err := tx.Events.SwapResponsible(ctx, eventID, expected, next)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		swapped = true

		ev, err := loadEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if expected != nil && (next == nil || *next != *expected) {
			if err := m.releaseIfIdle(ctx, tx, ev, *expected); err != nil {
				return err
			}
		}
		if next != nil {
			if err := tx.Bookings.Add(ctx, *next, eventID); err != nil {
				return err
			}
			if _, err := m.resolver.With(tx).ResolvePersonalFor(ctx, ev, *next); err != nil {
				return err
			}
		}
		return nil
	})
	return swapped, err
}

// SetRequirements replaces an event's role slots. Users displaced from a
// removed slot are released as if unassigned.
func (m *Manager) SetRequirements(ctx context.Context, eventID string, names []string) error {
	return m.store.InTx(ctx, func(tx *storage.Store) error {
		ev, err := loadEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		current, err := tx.Roles.Requirements(ctx, eventID)
		if err != nil {
			return err
		}

		keep := make(map[string]bool, len(names))
		for _, n := range names {
			keep[n] = true
		}
		for _, role := range current {
			if keep[role] {
				continue
			}
			holder, err := tx.Roles.Assignee(ctx, eventID, role)
			if err != nil {
				return err
			}
			if err := tx.Roles.RemoveRequirement(ctx, eventID, role); err != nil {
				return err
			}
			if holder != nil {
				if err := m.releaseIfIdle(ctx, tx, ev, *holder); err != nil {
					return err
				}
			}
		}
		return tx.Roles.AddRequirements(ctx, eventID, names)
	})
}

// Slots returns the event's role slots with their holders.
func (m *Manager) Slots(ctx context.Context, eventID string) ([]models.RoleSlot, error) {
	return m.store.Roles.Slots(ctx, eventID)
}

// releaseIfIdle drops the user's booking and personal reminders once they
// hold no role on the event and are not responsible for it.
func (m *Manager) releaseIfIdle(ctx context.Context, tx *storage.Store, ev *models.Event, userID int64) error {
	held, err := tx.Roles.CountUserRoles(ctx, ev.ID, userID)
	if err != nil {
		return err
	}
	if held > 0 {
		return nil
	}
	current, err := tx.Events.GetByID(ctx, ev.ID)
	if err != nil {
		return err
	}
	if current != nil && current.IsResponsible(userID) {
		return nil
	}

	if _, err := m.resolver.With(tx).RemovePersonal(ctx, ev, userID); err != nil {
		return err
	}
	return tx.Bookings.Remove(ctx, userID, ev.ID)
}

func loadEvent(ctx context.Context, store *storage.Store, id string) (*models.Event, error) {
	ev, err := store.Events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	return ev, nil
}
