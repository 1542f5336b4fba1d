// Package notify turns reminder rules into per-event reminder instances.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

var (
	// ErrReminderInPast is returned when a reminder's due time has already passed.
	ErrReminderInPast = errors.New("reminder time is in the past")
	// ErrInvalidOffset is returned for non-positive amounts or unknown units.
	ErrInvalidOffset = errors.New("invalid reminder offset")
	// ErrOffsetTooLarge is returned for personal reminders beyond the 30 day cap.
	ErrOffsetTooLarge = errors.New("reminder offset exceeds 30 days")
	// ErrDuplicate is returned when the recipient already has the same offset.
	ErrDuplicate = errors.New("reminder already exists")
)

// Resolver materializes notification rules into instances and maintains them.
type Resolver struct {
	store *storage.Store
	clock clock.Clock
}

// NewResolver creates a resolver over store.
func NewResolver(store *storage.Store, clk clock.Clock) *Resolver {
	return &Resolver{store: store, clock: clk}
}

// With returns a resolver bound to another store, typically a transaction.
func (r *Resolver) With(store *storage.Store) *Resolver {
	return &Resolver{store: store, clock: r.clock}
}

// ResolveGroup creates group instances for an event from its group's rules.
// It returns how many instances were created.
func (r *Resolver) ResolveGroup(ctx context.Context, eventID string) (int, error) {
	var created int
	err := r.store.InTx(ctx, func(tx *storage.Store) error {
		ev, err := loadEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		created, err = r.With(tx).ResolveGroupFor(ctx, ev)
		return err
	})
	return created, err
}

// ResolveGroupFor is ResolveGroup for an already loaded event.
func (r *Resolver) ResolveGroupFor(ctx context.Context, ev *models.Event) (int, error) {
	rules, err := r.store.Rules.ListByGroup(ctx, ev.GroupID, models.KindGroup)
	if err != nil {
		return 0, err
	}
	return r.materialize(ctx, ev, rules, nil)
}

// ResolvePersonal creates personal instances of userID for an event from the
// group's personal rules. Re-running it does not duplicate instances.
func (r *Resolver) ResolvePersonal(ctx context.Context, eventID string, userID int64) (int, error) {
	var created int
	err := r.store.InTx(ctx, func(tx *storage.Store) error {
		ev, err := loadEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		created, err = r.With(tx).ResolvePersonalFor(ctx, ev, userID)
		return err
	})
	return created, err
}

// ResolvePersonalFor is ResolvePersonal for an already loaded event.
func (r *Resolver) ResolvePersonalFor(ctx context.Context, ev *models.Event, userID int64) (int, error) {
	rules, err := r.store.Rules.ListByGroup(ctx, ev.GroupID, models.KindPersonal)
	if err != nil {
		return 0, err
	}
	return r.materialize(ctx, ev, rules, &userID)
}

// materialize creates one instance per rule whose due time is still ahead.
// Rules that are already due are dropped silently.
func (r *Resolver) materialize(ctx context.Context, ev *models.Event, rules []models.NotificationRule, userID *int64) (int, error) {
	now := r.clock.Now()
	created := 0
	for _, rule := range rules {
		if !rule.Offset.Valid() {
			slog.Warn("skipping rule with invalid offset", "rule_id", rule.ID, "unit", rule.Offset.Unit)
			continue
		}
		if userID != nil {
			if m, _ := rule.Offset.Minutes(); m > models.MaxPersonalOffsetMinutes {
				continue
			}
		}
		if !rule.Offset.NotifyTime(ev.StartTime).After(now) {
			continue
		}

		inst := &models.NotificationInstance{
			EventID: ev.ID,
			Kind:    rule.Kind,
			UserID:  userID,
			Offset:  rule.Offset,
			Message: rule.Message,
		}
		ok, err := r.store.Instances.Insert(ctx, inst)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// AddRequest describes a manually added reminder.
type AddRequest struct {
	EventID string
	Kind    models.NotificationKind
	UserID  *int64
	Offset  models.Offset
	Message *string
}

// Add creates a single reminder instance. A reminder whose due time already
// passed is rejected without writing anything.
func (r *Resolver) Add(ctx context.Context, req AddRequest) (*models.NotificationInstance, error) {
	if err := checkOffset(req.Kind, req.UserID, req.Offset); err != nil {
		return nil, err
	}
	if req.Kind == models.KindPersonal && req.UserID == nil {
		return nil, fmt.Errorf("%w: personal reminder without a user", ErrInvalidOffset)
	}

	var inst *models.NotificationInstance
	err := r.store.InTx(ctx, func(tx *storage.Store) error {
		ev, err := loadEvent(ctx, tx, req.EventID)
		if err != nil {
			return err
		}
		if !req.Offset.NotifyTime(ev.StartTime).After(r.clock.Now()) {
			return ErrReminderInPast
		}

		candidate := &models.NotificationInstance{
			EventID: ev.ID,
			Kind:    req.Kind,
			UserID:  req.UserID,
			Offset:  req.Offset,
			Message: req.Message,
		}
		ok, err := tx.Instances.Insert(ctx, candidate)
		if err != nil {
			return err
		}
		if !ok {
			return ErrDuplicate
		}
		inst = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// AddAt creates a reminder due at an absolute naive time. The distance to the
// event is stored as an offset; a target at or after the start becomes one
// minute before it.
func (r *Resolver) AddAt(ctx context.Context, req AddRequest, at time.Time) (*models.NotificationInstance, error) {
	ev, err := loadEvent(ctx, r.store, req.EventID)
	if err != nil {
		return nil, err
	}

	minutes := int(ev.StartTime.Sub(at) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	req.Offset = models.OffsetFromMinutes(minutes)
	return r.Add(ctx, req)
}

// Delete removes an instance together with its dispatch record, so an
// identical reminder added later fires again.
func (r *Resolver) Delete(ctx context.Context, instanceID string) error {
	return r.store.InTx(ctx, func(tx *storage.Store) error {
		inst, err := tx.Instances.GetByID(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst == nil {
			return storage.ErrNotFound
		}
		ev, err := loadEvent(ctx, tx, inst.EventID)
		if err != nil {
			return err
		}
		return r.With(tx).deleteInstance(ctx, inst, ev.GroupID)
	})
}

// RemovePersonal deletes every personal instance of userID on an event and
// re-arms their dispatch records.
func (r *Resolver) RemovePersonal(ctx context.Context, ev *models.Event, userID int64) (int, error) {
	instances, err := r.store.Instances.ListPersonal(ctx, ev.ID, userID)
	if err != nil {
		return 0, err
	}
	for i := range instances {
		if err := r.deleteInstance(ctx, &instances[i], ev.GroupID); err != nil {
			return i, err
		}
	}
	return len(instances), nil
}

func (r *Resolver) deleteInstance(ctx context.Context, inst *models.NotificationInstance, groupID int64) error {
	if err := r.store.Instances.Delete(ctx, inst.ID); err != nil {
		return err
	}
	return r.store.Dispatch.Delete(ctx, inst.DispatchKeyFor(groupID))
}

// AddRule stores a group-scoped rule. It does not touch existing events.
func (r *Resolver) AddRule(ctx context.Context, rule *models.NotificationRule) error {
	if err := checkOffset(rule.Kind, nil, rule.Offset); err != nil {
		return err
	}
	ok, err := r.store.Rules.Create(ctx, rule)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

// EnsureDefaultRules seeds the default group reminders for a group that has
// none. It returns how many rules were added.
func (r *Resolver) EnsureDefaultRules(ctx context.Context, groupID int64) (int, error) {
	var added int
	err := r.store.InTx(ctx, func(tx *storage.Store) error {
		existing, err := tx.Rules.ListByGroup(ctx, groupID, models.KindGroup)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		for _, d := range models.DefaultGroupRules {
			msg := d.Message
			ok, err := tx.Rules.Create(ctx, &models.NotificationRule{
				GroupID:   groupID,
				Kind:      models.KindGroup,
				Offset:    d.Offset,
				Message:   &msg,
				IsDefault: true,
			})
			if err != nil {
				return err
			}
			if ok {
				added++
			}
		}
		return nil
	})
	return added, err
}

func checkOffset(kind models.NotificationKind, userID *int64, o models.Offset) error {
	if !o.Valid() {
		return fmt.Errorf("%w: %d %s", ErrInvalidOffset, o.Amount, o.Unit)
	}
	switch kind {
	case models.KindGroup:
		if userID != nil {
			return fmt.Errorf("%w: group reminder with a user", ErrInvalidOffset)
		}
	case models.KindPersonal:
		m, _ := o.Minutes()
		if m > models.MaxPersonalOffsetMinutes {
			return ErrOffsetTooLarge
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOffset, kind)
	}
	return nil
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
