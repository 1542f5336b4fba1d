// Package occurrence materializes template occurrences into events.
package occurrence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/recurrence"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// errAlreadyMaterialized aborts a candidate's transaction when the ledger row
// appeared concurrently.
var errAlreadyMaterialized = errors.New("occurrence already materialized")

// Observer is told about events created by materialization.
type Observer interface {
	EventMaterialized(ev *models.Event)
}

// Materializer turns template candidates into events exactly once per
// (template, occurrence key).
type Materializer struct {
	store    *storage.Store
	resolver *notify.Resolver
	clock    clock.Clock
	observer Observer
}

// NewMaterializer creates a materializer. observer may be nil.
func NewMaterializer(store *storage.Store, resolver *notify.Resolver, clk clock.Clock, observer Observer) *Materializer {
	return &Materializer{
		store:    store,
		resolver: resolver,
		clock:    clk,
		observer: observer,
	}
}

// Materialize creates the events of a template that are not yet in the
// ledger and returns how many were created. Existing events are never edited.
func (m *Materializer) Materialize(ctx context.Context, templateID string) (int, error) {
	tmpl, err := m.store.Templates.GetByID(ctx, templateID)
	if err != nil {
		return 0, err
	}
	if tmpl == nil {
		return 0, fmt.Errorf("template %s: %w", templateID, storage.ErrNotFound)
	}
	return m.MaterializeTemplate(ctx, tmpl)
}

// MaterializeTemplate is Materialize for an already loaded template.
func (m *Materializer) MaterializeTemplate(ctx context.Context, tmpl *models.Template) (int, error) {
	seq, err := recurrence.Candidates(tmpl, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("expanding template %s: %w", tmpl.ID, err)
	}

	roles := tmpl.Roles
	if len(roles) == 0 {
		roles, err = m.store.Groups.DefaultRoles(ctx, tmpl.GroupID)
		if err != nil {
			return 0, err
		}
	}

	created := 0
	next := seq.Iterator()
	for start, ok := next(); ok; start, ok = next() {
		ev, err := m.materializeOne(ctx, tmpl, roles, start)
		if errors.Is(err, errAlreadyMaterialized) {
			continue
		}
		if err != nil {
			return created, err
		}
		if ev == nil {
			continue
		}

		created++
		slog.Debug("materialized occurrence", "template_id", tmpl.ID, "event_id", ev.ID, "start", ev.StartTime)
		if m.observer != nil {
			m.observer.EventMaterialized(ev)
		}
	}

	return created, nil
}

// materializeOne creates the event for one candidate in its own transaction.
// It returns a nil event when the ledger already has the occurrence.
func (m *Materializer) materializeOne(ctx context.Context, tmpl *models.Template, roles []string, start time.Time) (*models.Event, error) {
	key := models.OccurrenceKey(start)
	var ev *models.Event
	err := m.store.InTx(ctx, func(tx *storage.Store) error {
		exists, err := tx.Occurrences.Exists(ctx, tmpl.ID, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		templateID := tmpl.ID
		candidate := &models.Event{
			GroupID:                tmpl.GroupID,
			TemplateID:             &templateID,
			Name:                   tmpl.Name,
			StartTime:              start,
			AllowMultiRolesPerUser: tmpl.AllowMultiRolesPerUser,
		}
		if err := tx.Events.Create(ctx, candidate); err != nil {
			return err
		}
		if err := tx.Roles.AddRequirements(ctx, candidate.ID, roles); err != nil {
			return err
		}
		if _, err := m.resolver.With(tx).ResolveGroupFor(ctx, candidate); err != nil {
			return err
		}

		recorded, err := tx.Occurrences.Record(ctx, &models.GeneratedOccurrence{
			TemplateID:    tmpl.ID,
			OccurrenceKey: key,
			EventID:       candidate.ID,
		})
		if err != nil {
			return err
		}
		if !recorded {
			return errAlreadyMaterialized
		}
		ev = candidate
		return nil
	})
	return ev, err
}

// MaterializeAll runs materialization for every template. A template that
// fails is logged and skipped.
func (m *Materializer) MaterializeAll(ctx context.Context) (int, error) {
	templates, err := m.store.Templates.List(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for i := range templates {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := m.MaterializeTemplate(ctx, &templates[i])
		total += n
		if err != nil {
			slog.Error("materializing template", "template_id", templates[i].ID, "error", err)
			continue
		}
	}
	return total, nil
}
