package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/event-reminder/backend/internal/api/middleware"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// ReminderRequest adds one reminder to an event, either by offset or by an
// absolute time.
type ReminderRequest struct {
	Kind         models.NotificationKind `json:"kind" validate:"required,oneof=group personal"`
	UserID       *int64                  `json:"user_id"`
	OffsetAmount int                     `json:"offset_amount" validate:"omitempty,min=1,max=5256000"`
	OffsetUnit   models.OffsetUnit       `json:"offset_unit" validate:"omitempty,oneof=minutes hours days weeks months"`
	At           string                  `json:"at" validate:"omitempty,datetime=2006-01-02 15:04"`
	Message      *string                 `json:"message" validate:"omitempty,max=1000"`
}

// ListReminders returns an event's reminder instances.
func ListReminders(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.Instances.ListByEvent(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, err, "reminders")
			return
		}
		if list == nil {
			list = []models.NotificationInstance{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// AddReminder creates a reminder instance on an event. Reminders whose due
// time already passed are rejected.
func AddReminder(resolver *notify.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReminderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.At == "" && (req.OffsetAmount == 0 || req.OffsetUnit == "") {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Give either at or offset_amount with offset_unit")
			return
		}

		add := notify.AddRequest{
			EventID: mux.Vars(r)["id"],
			Kind:    req.Kind,
			UserID:  req.UserID,
			Message: req.Message,
		}

		var inst *models.NotificationInstance
		var err error
		if req.At != "" {
			at, _ := time.Parse(models.OccurrenceKeyLayout, req.At)
			inst, err = resolver.AddAt(r.Context(), add, at)
		} else {
			add.Offset = models.Offset{Amount: req.OffsetAmount, Unit: req.OffsetUnit}
			inst, err = resolver.Add(r.Context(), add)
		}
		if err != nil {
			writeServiceError(w, err, "event")
			return
		}
		writeJSON(w, http.StatusCreated, inst)
	}
}

// DeleteReminder removes a reminder instance and re-arms its dispatch record.
func DeleteReminder(resolver *notify.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := resolver.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeServiceError(w, err, "reminder")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
