// Package events manages one-off events and edits to existing events.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/roles"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// ErrInvalidEvent is returned for an empty name or a zero start time.
var ErrInvalidEvent = errors.New("invalid event")

// Observer is told about committed event changes.
type Observer interface {
	EventUpdated(ev *models.Event)
	EventDeleted(ev *models.Event)
}

// CreateRequest describes a user-created event. Nil Roles means the group's
// default roles.
type CreateRequest struct {
	GroupID                int64
	Name                   string
	StartTime              time.Time
	ResponsibleUserID      *int64
	AllowMultiRolesPerUser bool
	Roles                  []string
}

// Service edits events.
type Service struct {
	store    *storage.Store
	resolver *notify.Resolver
	roles    *roles.Manager
	observer Observer
}

// NewService creates an event service. observer may be nil.
func NewService(store *storage.Store, resolver *notify.Resolver, roleManager *roles.Manager, observer Observer) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		roles:    roleManager,
		observer: observer,
	}
}

// Create inserts a one-off event with its role slots and group reminders.
// A responsible user, if given, is booked like an assignee.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.StartTime.IsZero() {
		return nil, ErrInvalidEvent
	}

	ev := &models.Event{
		GroupID:                req.GroupID,
		Name:                   name,
		StartTime:              models.NaiveTime(req.StartTime),
		AllowMultiRolesPerUser: req.AllowMultiRolesPerUser,
	}
	err := s.store.InTx(ctx, func(tx *storage.Store) error {
		group, err := tx.Groups.GetByID(ctx, req.GroupID)
		if err != nil {
			return err
		}
		if group == nil {
			return fmt.Errorf("group %d: %w", req.GroupID, storage.ErrNotFound)
		}

		roleNames := req.Roles
		if roleNames == nil {
			if roleNames, err = tx.Groups.DefaultRoles(ctx, req.GroupID); err != nil {
				return err
			}
		}
		if err := tx.Events.Create(ctx, ev); err != nil {
			return err
		}
		if err := tx.Roles.AddRequirements(ctx, ev.ID, roleNames); err != nil {
			return err
		}
		if _, err := s.resolver.With(tx).ResolveGroupFor(ctx, ev); err != nil {
			return err
		}

		if req.ResponsibleUserID == nil {
			return nil
		}
		if _, err := s.roles.With(tx).SetResponsible(ctx, ev.ID, nil, req.ResponsibleUserID); err != nil {
			return fmt.Errorf("setting responsible user: %w", err)
		}
		ev.ResponsibleUserID = req.ResponsibleUserID
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("event created", "event_id", ev.ID, "group_id", ev.GroupID, "start", ev.StartTime)
	s.notifyUpdated(ev)
	return ev, nil
}

// Get returns an event with its role slots.
func (s *Service) Get(ctx context.Context, id string) (*models.EventWithRoles, error) {
	ev, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	slots, err := s.store.Roles.Slots(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.EventWithRoles{Event: *ev, Roles: slots}, nil
}

// ListUpcoming returns a group's events starting at or after from.
func (s *Service) ListUpcoming(ctx context.Context, groupID int64, from time.Time) ([]models.Event, error) {
	return s.store.Events.ListByGroup(ctx, groupID, from)
}

// Rename changes an event's name.
func (s *Service) Rename(ctx context.Context, id, name string) (*models.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidEvent
	}
	return s.edit(ctx, id, func(tx *storage.Store) error {
		return tx.Events.UpdateName(ctx, id, name)
	})
}

// Retime moves an event. Group reminders follow the new start at dispatch;
// personal reminders already created keep their offsets.
func (s *Service) Retime(ctx context.Context, id string, start time.Time) (*models.Event, error) {
	if start.IsZero() {
		return nil, ErrInvalidEvent
	}
	return s.edit(ctx, id, func(tx *storage.Store) error {
		return tx.Events.UpdateStartTime(ctx, id, models.NaiveTime(start))
	})
}

// SetAllowMultiRoles toggles whether one user may hold several roles.
func (s *Service) SetAllowMultiRoles(ctx context.Context, id string, allow bool) (*models.Event, error) {
	return s.edit(ctx, id, func(tx *storage.Store) error {
		return tx.Events.UpdateAllowMultiRoles(ctx, id, allow)
	})
}

// SetResponsible swaps the responsible user if it still equals expected.
func (s *Service) SetResponsible(ctx context.Context, id string, expected, next *int64) (*models.Event, bool, error) {
	ok, err := s.roles.SetResponsible(ctx, id, expected, next)
	if err != nil || !ok {
		return nil, ok, err
	}
	ev, err := s.load(ctx, id)
	if err != nil {
		return nil, true, err
	}
	s.notifyUpdated(ev)
	return ev, true, nil
}

// Delete removes an event. Slots, reminders, bookings and dispatch records
// go with it.
func (s *Service) Delete(ctx context.Context, id string) error {
	ev, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Events.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("event %s: %w", id, err)
		}
		return err
	}

	slog.Info("event deleted", "event_id", id, "group_id", ev.GroupID)
	if s.observer != nil {
		s.observer.EventDeleted(ev)
	}
	return nil
}

func (s *Service) edit(ctx context.Context, id string, fn func(tx *storage.Store) error) (*models.Event, error) {
	var ev *models.Event
	err := s.store.InTx(ctx, func(tx *storage.Store) error {
		if err := fn(tx); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("event %s: %w", id, err)
			}
			return err
		}
		var err error
		ev, err = tx.Events.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifyUpdated(ev)
	return ev, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Event, error) {
	ev, err := s.store.Events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	return ev, nil
}

func (s *Service) notifyUpdated(ev *models.Event) {
	if s.observer != nil && ev != nil {
		s.observer.EventUpdated(ev)
	}
}
