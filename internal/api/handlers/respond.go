package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/event-reminder/backend/internal/api/middleware"
	"github.com/event-reminder/backend/internal/events"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/recurrence"
	"github.com/event-reminder/backend/internal/storage"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	json.NewEncoder(w).Encode(v)
}

// decodeBody decodes and validates a JSON request body. It writes the error
// response itself and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		middleware.WriteValidationError(w, err)
		return false
	}
	return true
}

func groupIDVar(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["gid"], 10, 64)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid group id")
		return 0, false
	}
	return id, true
}

// writeServiceError maps domain errors onto the API envelope.
func writeServiceError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, what+" not found")
	case errors.Is(err, notify.ErrDuplicate):
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, err.Error())
	case errors.Is(err, notify.ErrReminderInPast),
		errors.Is(err, notify.ErrInvalidOffset),
		errors.Is(err, notify.ErrOffsetTooLarge),
		errors.Is(err, events.ErrInvalidEvent),
		errors.Is(err, recurrence.ErrInvalidTemplate):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	default:
		slog.Error("request failed", "resource", what, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to process "+what)
	}
}
