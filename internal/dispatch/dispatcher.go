package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/messaging"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// Observer is told about each delivery attempt.
type Observer interface {
	ReminderDispatched(ev *models.Event, inst *models.NotificationInstance)
	ReminderFailed(ev *models.Event, inst *models.NotificationInstance, err error)
}

// TickResult summarizes one tick.
type TickResult struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Dispatcher scans reminder instances and delivers the due ones.
type Dispatcher struct {
	store    *storage.Store
	tracker  *Tracker
	renderer *Renderer
	gateway  messaging.Gateway
	clock    clock.Clock
	observer Observer
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. observer may be nil.
func NewDispatcher(store *storage.Store, gateway messaging.Gateway, clk clock.Clock, observer Observer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		tracker:  NewTracker(store),
		renderer: NewRenderer(store),
		gateway:  gateway,
		clock:    clk,
		observer: observer,
		logger:   logger,
	}
}

// Tracker exposes the dispatch ledger.
func (d *Dispatcher) Tracker() *Tracker {
	return d.tracker
}

// IsDue reports whether a reminder with offset o for an event starting at
// start falls in the one-minute window containing now.
func IsDue(o models.Offset, start, now time.Time) bool {
	notify := o.NotifyTime(start)
	return !notify.After(now) && now.Before(notify.Add(time.Minute))
}

// Tick delivers every reminder due now that has not been sent yet. A failed
// delivery is logged and left unmarked so the next tick inside the window
// retries it. Calling Tick again within the same minute sends nothing new.
func (d *Dispatcher) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	now := d.clock.Now()

	candidates, err := d.store.Instances.ListForEventsAfter(ctx, now.Add(-time.Minute))
	if err != nil {
		return res, fmt.Errorf("listing reminder instances: %w", err)
	}

	for i := range candidates {
		ev := &candidates[i].Event
		inst := &candidates[i].Instance
		if !inst.Offset.Valid() || !IsDue(inst.Offset, ev.StartTime, now) {
			continue
		}
		res.Due++

		key := inst.DispatchKeyFor(ev.GroupID)
		sent, err := d.tracker.WasSent(ctx, key)
		if err != nil {
			d.logger.Error("checking dispatch ledger", "event_id", ev.ID, "instance_id", inst.ID, "error", err)
			res.Failed++
			continue
		}
		if sent {
			res.Skipped++
			continue
		}

		if err := d.deliver(ctx, ev, inst); err != nil {
			d.logger.Error("delivering reminder",
				"event_id", ev.ID, "instance_id", inst.ID, "kind", inst.Kind, "error", err)
			res.Failed++
			if d.observer != nil {
				d.observer.ReminderFailed(ev, inst, err)
			}
			continue
		}

		if _, err := d.tracker.MarkSent(ctx, key, now); err != nil {
			d.logger.Error("recording dispatch", "event_id", ev.ID, "instance_id", inst.ID, "error", err)
		}
		res.Sent++
		d.logger.Info("reminder sent", "event_id", ev.ID, "kind", inst.Kind,
			"offset", inst.Offset.Amount, "unit", inst.Offset.Unit)
		if d.observer != nil {
			d.observer.ReminderDispatched(ev, inst)
		}
	}

	if res.Due > 0 {
		d.logger.Debug("tick finished", "due", res.Due, "sent", res.Sent, "skipped", res.Skipped, "failed", res.Failed)
	}
	return res, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev *models.Event, inst *models.NotificationInstance) error {
	switch inst.Kind {
	case models.KindGroup:
		text, actions, err := d.renderer.GroupReminder(ctx, ev, inst)
		if err != nil {
			return err
		}
		return d.gateway.SendGroup(ctx, ev.GroupID, text, actions)
	case models.KindPersonal:
		if inst.UserID == nil {
			return fmt.Errorf("personal reminder %s has no recipient", inst.ID)
		}
		text, err := d.renderer.PersonalReminder(ctx, ev, inst)
		if err != nil {
			return err
		}
		return d.gateway.SendDirect(ctx, *inst.UserID, text)
	default:
		return fmt.Errorf("unknown reminder kind %q", inst.Kind)
	}
}

// NotifyNow posts the event card to its group immediately. It bypasses the
// dispatch ledger.
func (d *Dispatcher) NotifyNow(ctx context.Context, eventID string) error {
	ev, err := d.store.Events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if ev == nil {
		return fmt.Errorf("event %s: %w", eventID, storage.ErrNotFound)
	}

	text, actions, err := d.renderer.EventCard(ctx, ev)
	if err != nil {
		return err
	}
	if err := d.gateway.SendGroup(ctx, ev.GroupID, text, actions); err != nil {
		return fmt.Errorf("sending event card: %w", err)
	}
	return nil
}
