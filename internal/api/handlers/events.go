package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/event-reminder/backend/internal/api/middleware"
	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/events"
	"github.com/event-reminder/backend/internal/roles"
	"github.com/event-reminder/backend/internal/storage/models"
)

// CreateEventRequest is the body of POST /groups/{gid}/events.
type CreateEventRequest struct {
	Name                   string   `json:"name" validate:"required,max=200"`
	StartTime              string   `json:"start_time" validate:"required,datetime=2006-01-02 15:04"`
	ResponsibleUserID      *int64   `json:"responsible_user_id"`
	AllowMultiRolesPerUser bool     `json:"allow_multi_roles_per_user"`
	Roles                  []string `json:"roles" validate:"omitempty,dive,required,max=64"`
}

// UpdateEventRequest is the body of PATCH /events/{id}. Absent fields are
// left unchanged.
type UpdateEventRequest struct {
	Name                   *string `json:"name" validate:"omitempty,min=1,max=200"`
	StartTime              *string `json:"start_time" validate:"omitempty,datetime=2006-01-02 15:04"`
	AllowMultiRolesPerUser *bool   `json:"allow_multi_roles_per_user"`
}

// ResponsibleRequest swaps the responsible user if it still equals Expected.
type ResponsibleRequest struct {
	Expected *int64 `json:"expected_user_id"`
	UserID   *int64 `json:"user_id"`
}

// RolesRequest replaces an event's role slots.
type RolesRequest struct {
	Roles []string `json:"roles" validate:"dive,required,max=64"`
}

// AssignRequest names the user taking or the actor releasing a role.
type AssignRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

// ListGroupEvents returns a group's upcoming events.
func ListGroupEvents(svc *events.Service, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, ok := groupIDVar(w, r)
		if !ok {
			return
		}
		list, err := svc.ListUpcoming(r.Context(), groupID, clk.Now())
		if err != nil {
			writeServiceError(w, err, "events")
			return
		}
		if list == nil {
			list = []models.Event{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// CreateEvent creates a one-off event in a group.
func CreateEvent(svc *events.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, ok := groupIDVar(w, r)
		if !ok {
			return
		}
		var req CreateEventRequest
		if !decodeBody(w, r, &req) {
			return
		}
		start, _ := time.Parse(models.OccurrenceKeyLayout, req.StartTime)

		ev, err := svc.Create(r.Context(), events.CreateRequest{
			GroupID:                groupID,
			Name:                   req.Name,
			StartTime:              start,
			ResponsibleUserID:      req.ResponsibleUserID,
			AllowMultiRolesPerUser: req.AllowMultiRolesPerUser,
			Roles:                  req.Roles,
		})
		if err != nil {
			writeServiceError(w, err, "event")
			return
		}
		writeJSON(w, http.StatusCreated, ev)
	}
}

// GetEvent returns an event with its role slots.
func GetEvent(svc *events.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := svc.Get(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, err, "event")
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// UpdateEvent renames, moves or changes the multi-role flag of an event.
func UpdateEvent(svc *events.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := mux.Vars(r)["id"]

		var req UpdateEventRequest
		if !decodeBody(w, r, &req) {
			return
		}

		var ev *models.Event
		var err error
		if req.Name != nil {
			if ev, err = svc.Rename(ctx, id, *req.Name); err != nil {
				writeServiceError(w, err, "event")
				return
			}
		}
		if req.StartTime != nil {
			start, _ := time.Parse(models.OccurrenceKeyLayout, *req.StartTime)
			if ev, err = svc.Retime(ctx, id, start); err != nil {
				writeServiceError(w, err, "event")
				return
			}
		}
		if req.AllowMultiRolesPerUser != nil {
			if ev, err = svc.SetAllowMultiRoles(ctx, id, *req.AllowMultiRolesPerUser); err != nil {
				writeServiceError(w, err, "event")
				return
			}
		}
		if ev == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Nothing to update")
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// DeleteEvent removes an event and everything attached to it.
func DeleteEvent(svc *events.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeServiceError(w, err, "event")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetResponsible swaps the responsible user. A stale expectation is a
// conflict.
func SetResponsible(svc *events.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResponsibleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ev, ok, err := svc.SetResponsible(r.Context(), mux.Vars(r)["id"], req.Expected, req.UserID)
		if err != nil {
			writeServiceError(w, err, "event")
			return
		}
		if !ok {
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Responsible user changed; reload and retry")
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// SetEventRoles replaces an event's role slots.
func SetEventRoles(manager *roles.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := mux.Vars(r)["id"]

		var req RolesRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := manager.SetRequirements(ctx, id, req.Roles); err != nil {
			writeServiceError(w, err, "event")
			return
		}
		slots, err := manager.Slots(ctx, id)
		if err != nil {
			writeServiceError(w, err, "event")
			return
		}
		if slots == nil {
			slots = []models.RoleSlot{}
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

// AssignRoleResponse reports an assignment attempt.
type AssignRoleResponse struct {
	Assigned bool   `json:"assigned"`
	Reason   string `json:"reason,omitempty"`
}

// AssignRole gives a role slot to a user. A declined assignment is a 409
// carrying the reason.
func AssignRole(manager *roles.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		var req AssignRequest
		if !decodeBody(w, r, &req) {
			return
		}

		decision, err := manager.TryAssign(r.Context(), vars["id"], vars["role"], req.UserID)
		if err != nil {
			writeServiceError(w, err, "event")
			return
		}
		if decision != roles.Assigned {
			writeJSON(w, http.StatusConflict, AssignRoleResponse{Reason: decision.String()})
			return
		}
		writeJSON(w, http.StatusOK, AssignRoleResponse{Assigned: true})
	}
}

// UnassignRole frees a role slot on behalf of the acting user.
func UnassignRole(manager *roles.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		var req AssignRequest
		if !decodeBody(w, r, &req) {
			return
		}

		outcome, err := manager.TryUnassign(r.Context(), vars["id"], vars["role"], req.UserID)
		if err != nil {
			writeServiceError(w, err, "event")
			return
		}
		switch outcome {
		case roles.NotHolder:
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Role is held by someone else")
			return
		case roles.SlotEmpty:
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Role is not taken")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"unassigned": true})
	}
}
