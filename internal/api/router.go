// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/event-reminder/backend/internal/api/handlers"
	"github.com/event-reminder/backend/internal/api/middleware"
	"github.com/event-reminder/backend/internal/bot"
	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/dispatch"
	"github.com/event-reminder/backend/internal/events"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/occurrence"
	"github.com/event-reminder/backend/internal/roles"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/websocket"
)

// Services holds everything the handlers need.
type Services struct {
	DB           *storage.DB
	Store        *storage.Store
	Hub          *websocket.Hub
	Clock        clock.Clock
	Materializer *occurrence.Materializer
	Resolver     *notify.Resolver
	Roles        *roles.Manager
	Events       *events.Service
	Dispatcher   *dispatch.Dispatcher
	Conversation *bot.Conversation
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Hub, s.Clock)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub)).Methods("GET")

	// Template endpoints
	api.HandleFunc("/groups/{gid}/templates", handlers.ListTemplates(s.Store)).Methods("GET")
	api.HandleFunc("/templates", handlers.CreateTemplate(s.Store, s.Materializer, s.Clock)).Methods("POST")
	api.HandleFunc("/templates/{id}", handlers.GetTemplate(s.Store)).Methods("GET")
	api.HandleFunc("/templates/{id}", handlers.UpdateTemplate(s.Store, s.Materializer, s.Clock)).Methods("PUT")
	api.HandleFunc("/templates/{id}/materialize", handlers.MaterializeTemplate(s.Materializer)).Methods("POST")

	// Event endpoints
	api.HandleFunc("/groups/{gid}/events", handlers.ListGroupEvents(s.Events, s.Clock)).Methods("GET")
	api.HandleFunc("/groups/{gid}/events", handlers.CreateEvent(s.Events)).Methods("POST")
	api.HandleFunc("/events/{id}", handlers.GetEvent(s.Events)).Methods("GET")
	api.HandleFunc("/events/{id}", handlers.UpdateEvent(s.Events)).Methods("PATCH")
	api.HandleFunc("/events/{id}", handlers.DeleteEvent(s.Events)).Methods("DELETE")
	api.HandleFunc("/events/{id}/responsible", handlers.SetResponsible(s.Events)).Methods("PUT")
	api.HandleFunc("/events/{id}/roles", handlers.SetEventRoles(s.Roles)).Methods("PUT")
	api.HandleFunc("/events/{id}/roles/{role}/assign", handlers.AssignRole(s.Roles)).Methods("POST")
	api.HandleFunc("/events/{id}/roles/{role}/unassign", handlers.UnassignRole(s.Roles)).Methods("POST")

	// Reminder rule endpoints
	api.HandleFunc("/groups/{gid}/rules", handlers.ListRules(s.Store)).Methods("GET")
	api.HandleFunc("/groups/{gid}/rules", handlers.CreateRule(s.Store, s.Resolver)).Methods("POST")
	api.HandleFunc("/rules/{id}", handlers.DeleteRule(s.Store)).Methods("DELETE")

	// Reminder endpoints
	api.HandleFunc("/events/{id}/reminders", handlers.ListReminders(s.Store)).Methods("GET")
	api.HandleFunc("/events/{id}/reminders", handlers.AddReminder(s.Resolver)).Methods("POST")
	api.HandleFunc("/reminders/{id}", handlers.DeleteReminder(s.Resolver)).Methods("DELETE")

	// Dispatch endpoints
	api.HandleFunc("/events/{id}/notify-now", handlers.NotifyNow(s.Dispatcher)).Methods("POST")
	api.HandleFunc("/tick", handlers.Tick(s.Dispatcher)).Methods("POST")

	// Chat transport endpoints
	api.HandleFunc("/bot/callback", handlers.BotCallback(s.Conversation)).Methods("POST")
	api.HandleFunc("/bot/message", handlers.BotMessage(s.Conversation)).Methods("POST")

	return r
}
