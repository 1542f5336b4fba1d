package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/event-reminder/backend/internal/dispatch"
)

// NotifyNow posts an event card to its group immediately.
func NotifyNow(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.NotifyNow(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeServiceError(w, err, "event")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
	}
}

// Tick runs one dispatch pass. Repeating it within a minute sends nothing new.
func Tick(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := d.Tick(r.Context())
		if err != nil {
			writeServiceError(w, err, "tick")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
