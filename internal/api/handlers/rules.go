package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/event-reminder/backend/internal/api/middleware"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// RuleRequest is the body of POST /groups/{gid}/rules.
type RuleRequest struct {
	Kind         models.NotificationKind `json:"kind" validate:"required,oneof=group personal"`
	OffsetAmount int                     `json:"offset_amount" validate:"required,min=1,max=5256000"`
	OffsetUnit   models.OffsetUnit       `json:"offset_unit" validate:"required,oneof=minutes hours days weeks months"`
	Message      *string                 `json:"message" validate:"omitempty,max=1000"`
}

// ListRules returns a group's reminder rules, optionally of one kind.
func ListRules(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, ok := groupIDVar(w, r)
		if !ok {
			return
		}
		kind := models.NotificationKind(r.URL.Query().Get("kind"))
		if kind != "" && kind != models.KindGroup && kind != models.KindPersonal {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "kind must be group or personal")
			return
		}

		var rules []models.NotificationRule
		for _, k := range []models.NotificationKind{models.KindGroup, models.KindPersonal} {
			if kind != "" && kind != k {
				continue
			}
			list, err := store.Rules.ListByGroup(r.Context(), groupID, k)
			if err != nil {
				writeServiceError(w, err, "rules")
				return
			}
			rules = append(rules, list...)
		}
		if rules == nil {
			rules = []models.NotificationRule{}
		}
		writeJSON(w, http.StatusOK, rules)
	}
}

// CreateRule adds a reminder rule to a group. Existing events are not
// affected; new events and new assignments pick it up.
func CreateRule(store *storage.Store, resolver *notify.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, ok := groupIDVar(w, r)
		if !ok {
			return
		}
		var req RuleRequest
		if !decodeBody(w, r, &req) {
			return
		}

		group, err := store.Groups.GetByID(r.Context(), groupID)
		if err != nil {
			writeServiceError(w, err, "group")
			return
		}
		if group == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Group not found")
			return
		}

		rule := &models.NotificationRule{
			GroupID: groupID,
			Kind:    req.Kind,
			Offset:  models.Offset{Amount: req.OffsetAmount, Unit: req.OffsetUnit},
			Message: req.Message,
		}
		if err := resolver.AddRule(r.Context(), rule); err != nil {
			writeServiceError(w, err, "rule")
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	}
}

// DeleteRule removes a reminder rule. Reminders already created from it stay.
func DeleteRule(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := store.Rules.Delete(r.Context(), mux.Vars(r)["id"])
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Rule not found")
			return
		}
		if err != nil {
			writeServiceError(w, err, "rule")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
