// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"

	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Now              string `json:"now"`
	Groups           int    `json:"groups"`
	Templates        int    `json:"templates"`
	UpcomingEvents   int    `json:"upcoming_events"`
	PendingReminders int    `json:"pending_reminders"`
	DispatchedTotal  int    `json:"dispatched_total"`
	WebSocketClients int    `json:"websocket_clients"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := clk.Now()

		var resp StatusResponse
		resp.Now = now.Format("2006-01-02 15:04:05")
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_groups").Scan(&resp.Groups)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM templates").Scan(&resp.Templates)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE start_time >= ?", now).Scan(&resp.UpcomingEvents)
		db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM notification_instances n
			JOIN events e ON e.id = n.event_id
			WHERE e.start_time >= ?
		`, now).Scan(&resp.PendingReminders)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dispatch_log").Scan(&resp.DispatchedTotal)
		if hub != nil {
			resp.WebSocketClients = hub.ClientCount()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
