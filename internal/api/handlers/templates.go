package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/event-reminder/backend/internal/api/middleware"
	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/occurrence"
	"github.com/event-reminder/backend/internal/recurrence"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// TemplateRequest is the body of template create and update calls.
type TemplateRequest struct {
	GroupID                int64               `json:"group_id" validate:"required"`
	Name                   string              `json:"name" validate:"required,max=200"`
	Kind                   models.TemplateKind `json:"kind" validate:"required,oneof=one_time recurring"`
	BaseTime               string              `json:"base_time" validate:"required,datetime=2006-01-02 15:04"`
	Timezone               string              `json:"timezone"`
	Freq                   models.Frequency    `json:"freq" validate:"omitempty,oneof=none daily weekly monthly"`
	Interval               int                 `json:"interval" validate:"omitempty,min=1"`
	ByMonthDay             []int               `json:"bymonthday" validate:"omitempty,dive,min=-31,max=31"`
	ByWeekday              []string            `json:"byweekday" validate:"omitempty,dive,oneof=MO TU WE TH FR SA SU"`
	Exceptions             []string            `json:"exceptions" validate:"omitempty,dive,datetime=2006-01-02"`
	PlanningHorizonDays    int                 `json:"planning_horizon_days" validate:"min=0,max=3660"`
	AllowMultiRolesPerUser bool                `json:"allow_multi_roles_per_user"`
	Roles                  []string            `json:"roles" validate:"omitempty,dive,required,max=64"`
}

func (req *TemplateRequest) toModel() (*models.Template, error) {
	base, err := time.Parse(models.OccurrenceKeyLayout, req.BaseTime)
	if err != nil {
		return nil, err
	}
	t := &models.Template{
		GroupID:                req.GroupID,
		Name:                   req.Name,
		Kind:                   req.Kind,
		BaseTime:               base,
		Timezone:               req.Timezone,
		Freq:                   req.Freq,
		Interval:               req.Interval,
		ByMonthDay:             req.ByMonthDay,
		ByWeekday:              req.ByWeekday,
		Exceptions:             req.Exceptions,
		PlanningHorizonDays:    req.PlanningHorizonDays,
		AllowMultiRolesPerUser: req.AllowMultiRolesPerUser,
		Roles:                  req.Roles,
	}
	if t.Freq == "" || t.Kind == models.TemplateOneTime {
		t.Freq = models.FreqNone
	}
	if t.Interval == 0 {
		t.Interval = 1
	}
	return t, nil
}

// TemplateResponse pairs a template with the number of events generated by
// the call.
type TemplateResponse struct {
	Template     *models.Template `json:"template"`
	Materialized int              `json:"materialized"`
}

// ListTemplates returns a group's templates.
func ListTemplates(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, ok := groupIDVar(w, r)
		if !ok {
			return
		}
		templates, err := store.Templates.ListByGroup(r.Context(), groupID)
		if err != nil {
			writeServiceError(w, err, "templates")
			return
		}
		if templates == nil {
			templates = []models.Template{}
		}
		writeJSON(w, http.StatusOK, templates)
	}
}

// CreateTemplate stores a template and generates its first occurrences.
func CreateTemplate(store *storage.Store, materializer *occurrence.Materializer, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req TemplateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		tmpl, ok := checkTemplate(w, r, store, clk, &req)
		if !ok {
			return
		}

		if err := store.InTx(ctx, func(tx *storage.Store) error {
			return tx.Templates.Create(ctx, tmpl)
		}); err != nil {
			writeServiceError(w, err, "template")
			return
		}

		created, err := materializer.MaterializeTemplate(ctx, tmpl)
		if err != nil {
			writeServiceError(w, err, "template")
			return
		}
		writeJSON(w, http.StatusCreated, TemplateResponse{Template: tmpl, Materialized: created})
	}
}

// GetTemplate returns a template by ID.
func GetTemplate(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tmpl, err := store.Templates.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, err, "template")
			return
		}
		if tmpl == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Template not found")
			return
		}
		writeJSON(w, http.StatusOK, tmpl)
	}
}

// UpdateTemplate replaces a template's rule and generates any occurrences
// the new rule adds. Events already generated are left alone.
func UpdateTemplate(store *storage.Store, materializer *occurrence.Materializer, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := mux.Vars(r)["id"]

		var req TemplateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		tmpl, ok := checkTemplate(w, r, store, clk, &req)
		if !ok {
			return
		}
		tmpl.ID = id

		err := store.InTx(ctx, func(tx *storage.Store) error {
			existing, err := tx.Templates.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if existing == nil {
				return storage.ErrNotFound
			}
			if existing.GroupID != tmpl.GroupID {
				return errGroupChange
			}
			tmpl.CreatedAt = existing.CreatedAt
			return tx.Templates.Update(ctx, tmpl)
		})
		if errors.Is(err, errGroupChange) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}
		if err != nil {
			writeServiceError(w, err, "template")
			return
		}

		created, err := materializer.MaterializeTemplate(ctx, tmpl)
		if err != nil {
			writeServiceError(w, err, "template")
			return
		}
		writeJSON(w, http.StatusOK, TemplateResponse{Template: tmpl, Materialized: created})
	}
}

var errGroupChange = errors.New("a template cannot move to another group")

// MaterializeTemplate generates the template's missing occurrences.
func MaterializeTemplate(materializer *occurrence.Materializer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		created, err := materializer.Materialize(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeServiceError(w, err, "template")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"materialized": created})
	}
}

// checkTemplate converts the request and rejects rules that cannot expand
// or groups that do not exist.
func checkTemplate(w http.ResponseWriter, r *http.Request, store *storage.Store, clk clock.Clock, req *TemplateRequest) (*models.Template, bool) {
	tmpl, err := req.toModel()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "base_time must be YYYY-MM-DD HH:MM")
		return nil, false
	}
	if _, err := recurrence.Candidates(tmpl, clk.Now()); err != nil {
		writeServiceError(w, err, "template")
		return nil, false
	}

	group, err := store.Groups.GetByID(r.Context(), tmpl.GroupID)
	if err != nil {
		writeServiceError(w, err, "group")
		return nil, false
	}
	if group == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Group not found")
		return nil, false
	}
	return tmpl, true
}
