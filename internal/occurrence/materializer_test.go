package occurrence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
	"github.com/event-reminder/backend/internal/testutil"
)

type recordingObserver struct {
	events []*models.Event
}

func (o *recordingObserver) EventMaterialized(ev *models.Event) {
	o.events = append(o.events, ev)
}

type fixture struct {
	store    *storage.Store
	clock    *clock.Fixed
	m        *Materializer
	observer *recordingObserver
	group    *models.Group
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	store := testutil.NewTestStore(t)
	clk := clock.NewFixed(now)
	obs := &recordingObserver{}
	return &fixture{
		store:    store,
		clock:    clk,
		m:        NewMaterializer(store, notify.NewResolver(store, clk), clk, obs),
		observer: obs,
		group:    testutil.CreateGroup(t, store, "-200"),
	}
}

func (f *fixture) template(t *testing.T, tmpl *models.Template) *models.Template {
	t.Helper()
	tmpl.GroupID = f.group.ID
	if tmpl.Name == "" {
		tmpl.Name = "Service"
	}
	if tmpl.Interval == 0 {
		tmpl.Interval = 1
	}
	if err := f.store.Templates.Create(context.Background(), tmpl); err != nil {
		t.Fatalf("creating template: %v", err)
	}
	return tmpl
}

func date(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func (f *fixture) events(t *testing.T) []models.Event {
	t.Helper()
	events, err := f.store.Events.ListByGroup(context.Background(), f.group.ID, time.Time{})
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	return events
}

func TestMaterializeIsIdempotent(t *testing.T) {
	f := newFixture(t, date(2024, 1, 1, 0, 0))
	ctx := context.Background()
	tmpl := f.template(t, &models.Template{
		Kind: models.TemplateRecurring, Freq: models.FreqWeekly,
		BaseTime: date(2024, 1, 7, 10, 0), PlanningHorizonDays: 28,
	})

	created, err := f.m.Materialize(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if created != 5 {
		t.Fatalf("created = %d, want 5", created)
	}

	created, err = f.m.Materialize(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	if created != 0 {
		t.Errorf("second run created %d events", created)
	}
	if n := len(f.events(t)); n != 5 {
		t.Errorf("got %d events, want 5", n)
	}
	if len(f.observer.events) != 5 {
		t.Errorf("observer saw %d events", len(f.observer.events))
	}

	ledger, _ := f.store.Occurrences.ListByTemplate(ctx, tmpl.ID)
	if len(ledger) != 5 || ledger[0].OccurrenceKey != "2024-01-07 10:00" {
		t.Errorf("ledger = %+v", ledger)
	}
}

func TestMaterializeMonthlyClamp(t *testing.T) {
	f := newFixture(t, date(2024, 1, 1, 0, 0))
	tmpl := f.template(t, &models.Template{
		Kind: models.TemplateRecurring, Freq: models.FreqMonthly,
		BaseTime: date(2024, 1, 31, 10, 0), PlanningHorizonDays: 90, ByMonthDay: []int{31},
	})

	if _, err := f.m.Materialize(context.Background(), tmpl.ID); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	events := f.events(t)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if !events[0].StartTime.Equal(date(2024, 1, 31, 10, 0)) || !events[1].StartTime.Equal(date(2024, 3, 31, 10, 0)) {
		t.Errorf("starts = %v, %v", events[0].StartTime, events[1].StartTime)
	}
}

func TestMaterializeSeedsRolesAndGroupReminders(t *testing.T) {
	f := newFixture(t, date(2024, 5, 1, 9, 0))
	ctx := context.Background()
	resolver := notify.NewResolver(f.store, f.clock)
	if _, err := resolver.EnsureDefaultRules(ctx, f.group.ID); err != nil {
		t.Fatalf("EnsureDefaultRules: %v", err)
	}
	tmpl := f.template(t, &models.Template{
		Kind: models.TemplateRecurring, Freq: models.FreqDaily,
		BaseTime: date(2024, 5, 2, 10, 0), PlanningHorizonDays: 2,
		Roles: []string{"Leader", "Reader"}, AllowMultiRolesPerUser: true,
	})

	if _, err := f.m.Materialize(ctx, tmpl.ID); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	events := f.events(t)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	first := events[0]
	if first.TemplateID == nil || *first.TemplateID != tmpl.ID || !first.AllowMultiRolesPerUser {
		t.Errorf("event = %+v", first)
	}
	roles, _ := f.store.Roles.Requirements(ctx, first.ID)
	if len(roles) != 2 || roles[0] != "Leader" || roles[1] != "Reader" {
		t.Errorf("roles = %v", roles)
	}

	// The first event is 25 hours away: the 1 day and 2 hour defaults fit,
	// the 3 day one is already due and is dropped.
	instances, _ := f.store.Instances.ListByEvent(ctx, first.ID)
	if len(instances) != 2 {
		t.Errorf("first event has %d group reminders, want 2", len(instances))
	}
	instances, _ = f.store.Instances.ListByEvent(ctx, events[2].ID)
	if len(instances) != 3 {
		t.Errorf("last event has %d group reminders, want 3", len(instances))
	}
}

func TestMaterializeFallsBackToGroupRoles(t *testing.T) {
	f := newFixture(t, date(2024, 5, 1, 9, 0))
	ctx := context.Background()
	if err := f.store.Groups.SetDefaultRoles(ctx, f.group.ID, []string{"Driver"}); err != nil {
		t.Fatalf("SetDefaultRoles: %v", err)
	}
	tmpl := f.template(t, &models.Template{
		Kind: models.TemplateOneTime, Freq: models.FreqNone, BaseTime: date(2024, 5, 3, 18, 0),
	})

	if _, err := f.m.Materialize(ctx, tmpl.ID); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	events := f.events(t)
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	roles, _ := f.store.Roles.Requirements(ctx, events[0].ID)
	if len(roles) != 1 || roles[0] != "Driver" {
		t.Errorf("roles = %v", roles)
	}
}

func TestMaterializeSkipsPastAndDeletedOccurrences(t *testing.T) {
	f := newFixture(t, date(2024, 3, 3, 12, 0))
	ctx := context.Background()
	tmpl := f.template(t, &models.Template{
		Kind: models.TemplateRecurring, Freq: models.FreqDaily,
		BaseTime: date(2024, 3, 1, 10, 0), PlanningHorizonDays: 4,
	})

	created, err := f.m.Materialize(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	// 03-01..03-03 10:00 are before now.
	if created != 2 {
		t.Fatalf("created = %d, want 2", created)
	}

	events := f.events(t)
	if err := f.store.Events.Delete(ctx, events[0].ID); err != nil {
		t.Fatalf("deleting event: %v", err)
	}

	created, err = f.m.Materialize(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if created != 0 {
		t.Errorf("deleted occurrence was regenerated (%d created)", created)
	}
}

func TestMaterializeAfterHorizonChangeIsAdditive(t *testing.T) {
	f := newFixture(t, date(2024, 1, 1, 0, 0))
	ctx := context.Background()
	tmpl := f.template(t, &models.Template{
		Kind: models.TemplateRecurring, Freq: models.FreqDaily,
		BaseTime: date(2024, 1, 2, 8, 0), PlanningHorizonDays: 1,
	})
	if _, err := f.m.Materialize(ctx, tmpl.ID); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	before := f.events(t)

	if err := f.store.Events.UpdateName(ctx, before[0].ID, "Renamed"); err != nil {
		t.Fatalf("renaming: %v", err)
	}
	tmpl.PlanningHorizonDays = 3
	if err := f.store.Templates.Update(ctx, tmpl); err != nil {
		t.Fatalf("updating template: %v", err)
	}

	created, err := f.m.Materialize(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}
	after := f.events(t)
	if len(after) != 4 || after[0].Name != "Renamed" {
		t.Errorf("events = %+v", after)
	}
}

func TestMaterializeAllSkipsBrokenTemplates(t *testing.T) {
	f := newFixture(t, date(2024, 1, 1, 0, 0))
	ctx := context.Background()
	f.template(t, &models.Template{
		Kind: models.TemplateRecurring, Freq: models.FreqMonthly,
		BaseTime: date(2024, 1, 5, 8, 0), PlanningHorizonDays: 60, ByMonthDay: []int{0, 45},
	})
	f.template(t, &models.Template{
		Kind: models.TemplateOneTime, Freq: models.FreqNone, BaseTime: date(2024, 1, 5, 8, 0),
	})

	total, err := f.m.MaterializeAll(ctx)
	if err != nil {
		t.Fatalf("MaterializeAll: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
}

func TestMaterializeUnknownTemplate(t *testing.T) {
	f := newFixture(t, date(2024, 1, 1, 0, 0))
	if _, err := f.m.Materialize(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
