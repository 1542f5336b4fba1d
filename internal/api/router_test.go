package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/event-reminder/backend/internal/api/handlers"
	"github.com/event-reminder/backend/internal/api/middleware"
	"github.com/event-reminder/backend/internal/bot"
	"github.com/event-reminder/backend/internal/clock"
	"github.com/event-reminder/backend/internal/dispatch"
	"github.com/event-reminder/backend/internal/events"
	"github.com/event-reminder/backend/internal/notify"
	"github.com/event-reminder/backend/internal/occurrence"
	"github.com/event-reminder/backend/internal/roles"
	"github.com/event-reminder/backend/internal/session"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
	"github.com/event-reminder/backend/internal/testutil"
	"github.com/event-reminder/backend/internal/websocket"
)

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	store   *storage.Store
	clock   *clock.Fixed
	gateway *testutil.RecordingGateway
	group   *models.Group
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewTestDatabase(t)
	store := storage.NewStore(db)
	clk := clock.NewFixed(now)
	gateway := testutil.NewRecordingGateway()

	resolver := notify.NewResolver(store, clk)
	auth := roles.NewGroupAuthorizer(store, nil)
	manager := roles.NewManager(store, resolver, auth, nil)
	eventService := events.NewService(store, resolver, manager, nil)
	dispatcher := dispatch.NewDispatcher(store, gateway, clk, nil, nil)

	router := NewRouter(Services{
		DB:           db,
		Store:        store,
		Hub:          websocket.NewHub(),
		Clock:        clk,
		Materializer: occurrence.NewMaterializer(store, resolver, clk, nil),
		Resolver:     resolver,
		Roles:        manager,
		Events:       eventService,
		Dispatcher:   dispatcher,
		Conversation: bot.NewConversation(bot.Deps{
			Store:    store,
			Roles:    manager,
			Events:   eventService,
			Resolver: resolver,
			Notifier: dispatcher,
			Sessions: session.NewStore(clk, session.DefaultTTL),
			Auth:     auth,
		}),
	})

	return &testServer{
		handler: router,
		store:   store,
		clock:   clk,
		gateway: gateway,
		group:   testutil.CreateGroup(t, store, "-100"),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

func (s *testServer) groupPath(suffix string) string {
	return "/api/groups/" + strconv.FormatInt(s.group.ID, 10) + suffix
}

func (s *testServer) createEvent(t *testing.T, name string, start time.Time, roleNames []string) models.Event {
	t.Helper()
	rec := s.do(t, http.MethodPost, s.groupPath("/events"), map[string]any{
		"name":       name,
		"start_time": start.Format(models.OccurrenceKeyLayout),
		"roles":      roleNames,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event: status %d body %s", rec.Code, rec.Body.String())
	}
	var ev models.Event
	decode(t, rec, &ev)
	return ev
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp handlers.HealthResponse
	decode(t, rec, &resp)
	if resp.Status != "healthy" || !resp.DBConnected {
		t.Errorf("health = %+v", resp)
	}
}

func TestStatusCountsGroups(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp handlers.StatusResponse
	decode(t, rec, &resp)
	if resp.Groups != 1 {
		t.Errorf("Groups = %d, want 1", resp.Groups)
	}
	if resp.Now != "2024-05-01 09:00:00" {
		t.Errorf("Now = %q", resp.Now)
	}
}

func TestTemplateCreateAndMaterialize(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/templates", map[string]any{
		"group_id":              s.group.ID,
		"name":                  "Weekly rehearsal",
		"kind":                  "recurring",
		"base_time":             "2024-05-02 19:00",
		"freq":                  "weekly",
		"interval":              1,
		"planning_horizon_days": 10,
		"roles":                 []string{"Host"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var created handlers.TemplateResponse
	decode(t, rec, &created)
	if created.Materialized != 2 {
		t.Errorf("Materialized = %d, want 2", created.Materialized)
	}

	// A second pass finds nothing new.
	rec = s.do(t, http.MethodPost, "/api/templates/"+created.Template.ID+"/materialize", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("materialize: status %d", rec.Code)
	}
	var again map[string]int
	decode(t, rec, &again)
	if again["materialized"] != 0 {
		t.Errorf("second materialize = %d, want 0", again["materialized"])
	}

	rec = s.do(t, http.MethodGet, s.groupPath("/events"), nil)
	var list []models.Event
	decode(t, rec, &list)
	if len(list) != 2 {
		t.Fatalf("events = %d, want 2", len(list))
	}
	if list[0].Name != "Weekly rehearsal" {
		t.Errorf("Name = %q", list[0].Name)
	}
}

func TestTemplateValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/templates", map[string]any{
		"group_id":  s.group.ID,
		"name":      "Broken",
		"kind":      "sometimes",
		"base_time": "tomorrow",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp middleware.ErrorResponse
	decode(t, rec, &resp)
	if resp.Error != middleware.ErrValidation {
		t.Errorf("error = %q", resp.Error)
	}
	fields, _ := resp.Details.(map[string]any)
	if fields["Kind"] != "oneof" || fields["BaseTime"] != "datetime" {
		t.Errorf("details = %v", resp.Details)
	}
}

func TestTemplateUnknownGroup(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/templates", map[string]any{
		"group_id":  999,
		"name":      "Orphan",
		"kind":      "one_time",
		"base_time": "2024-05-02 19:00",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestEventAssignAndUnassign(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, s.store, 42, "dave")
	other := testutil.CreateUser(t, s.store, 43, "erin")
	ev := s.createEvent(t, "Quiz", now.Add(48*time.Hour), []string{"Host", "Sound"})

	rec := s.do(t, http.MethodPost, "/api/events/"+ev.ID+"/roles/Host/assign", map[string]any{"user_id": user.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/events/"+ev.ID+"/roles/Host/assign", map[string]any{"user_id": other.ID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second assign: status %d, want 409", rec.Code)
	}
	var declined handlers.AssignRoleResponse
	decode(t, rec, &declined)
	if declined.Assigned || declined.Reason == "" {
		t.Errorf("declined = %+v", declined)
	}

	rec = s.do(t, http.MethodGet, "/api/events/"+ev.ID, nil)
	var full models.EventWithRoles
	decode(t, rec, &full)
	if len(full.Roles) != 2 || full.Roles[0].UserID == nil || *full.Roles[0].UserID != user.ID {
		t.Fatalf("roles = %+v", full.Roles)
	}

	rec = s.do(t, http.MethodPost, "/api/events/"+ev.ID+"/roles/Host/unassign", map[string]any{"user_id": other.ID})
	if rec.Code != http.StatusConflict {
		t.Errorf("unassign by other: status %d, want 409", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/events/"+ev.ID+"/roles/Host/unassign", map[string]any{"user_id": user.ID})
	if rec.Code != http.StatusOK {
		t.Errorf("unassign: status %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/events/"+ev.ID+"/roles/Host/unassign", map[string]any{"user_id": user.ID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("unassign empty slot: status %d, want 409", rec.Code)
	}
	var empty middleware.ErrorResponse
	decode(t, rec, &empty)
	if empty.Message != "Role is not taken" {
		t.Errorf("empty slot message = %q", empty.Message)
	}
}

func TestUpdateAndDeleteEvent(t *testing.T) {
	s := newTestServer(t)
	ev := s.createEvent(t, "Quiz", now.Add(48*time.Hour), nil)

	rec := s.do(t, http.MethodPatch, "/api/events/"+ev.ID, map[string]any{"name": "Pub quiz"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status %d body %s", rec.Code, rec.Body.String())
	}
	var updated models.Event
	decode(t, rec, &updated)
	if updated.Name != "Pub quiz" {
		t.Errorf("Name = %q", updated.Name)
	}

	rec = s.do(t, http.MethodPatch, "/api/events/"+ev.ID, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty patch: status %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, "/api/events/"+ev.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/events/"+ev.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status %d, want 404", rec.Code)
	}
}

func TestSetResponsibleConflict(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, s.store, 42, "dave")
	ev := s.createEvent(t, "Quiz", now.Add(48*time.Hour), nil)

	rec := s.do(t, http.MethodPut, "/api/events/"+ev.ID+"/responsible", map[string]any{"user_id": user.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("set: status %d body %s", rec.Code, rec.Body.String())
	}

	// The responsible user is no longer unset.
	rec = s.do(t, http.MethodPut, "/api/events/"+ev.ID+"/responsible", map[string]any{"user_id": nil})
	if rec.Code != http.StatusConflict {
		t.Errorf("stale swap: status %d, want 409", rec.Code)
	}
}

func TestAddReminder(t *testing.T) {
	s := newTestServer(t)
	ev := s.createEvent(t, "Quiz", now.Add(2*time.Hour), nil)
	path := "/api/events/" + ev.ID + "/reminders"

	rec := s.do(t, http.MethodPost, path, map[string]any{
		"kind":          "group",
		"offset_amount": 30,
		"offset_unit":   "minutes",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status %d body %s", rec.Code, rec.Body.String())
	}
	var inst models.NotificationInstance
	decode(t, rec, &inst)

	rec = s.do(t, http.MethodPost, path, map[string]any{
		"kind":          "group",
		"offset_amount": 30,
		"offset_unit":   "minutes",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status %d, want 409", rec.Code)
	}

	rec = s.do(t, http.MethodPost, path, map[string]any{
		"kind":          "group",
		"offset_amount": 3,
		"offset_unit":   "hours",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("past: status %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, path, map[string]any{"kind": "group"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no offset: status %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, "/api/reminders/"+inst.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status %d", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, "/api/reminders/"+inst.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete again: status %d, want 404", rec.Code)
	}
}

func TestTickSendsDueReminderOnce(t *testing.T) {
	s := newTestServer(t)
	ev := s.createEvent(t, "Quiz", now.Add(31*time.Minute), nil)

	rec := s.do(t, http.MethodPost, "/api/events/"+ev.ID+"/reminders", map[string]any{
		"kind":          "group",
		"offset_amount": 30,
		"offset_unit":   "minutes",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status %d body %s", rec.Code, rec.Body.String())
	}
	s.clock.Advance(time.Minute)

	for i, want := range []int{1, 0} {
		rec = s.do(t, http.MethodPost, "/api/tick", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("tick %d: status %d", i, rec.Code)
		}
		var res dispatch.TickResult
		decode(t, rec, &res)
		if res.Sent != want {
			t.Errorf("tick %d: Sent = %d, want %d", i, res.Sent, want)
		}
	}
	if group, _ := s.gateway.Counts(); group != 1 {
		t.Errorf("group sends = %d, want 1", group)
	}
}

func TestNotifyNowUnknownEvent(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/events/missing/notify-now", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRulesLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, s.groupPath("/rules"), map[string]any{
		"kind":          "personal",
		"offset_amount": 1,
		"offset_unit":   "days",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	var rule models.NotificationRule
	decode(t, rec, &rule)

	rec = s.do(t, http.MethodGet, s.groupPath("/rules?kind=personal"), nil)
	var list []models.NotificationRule
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != rule.ID {
		t.Fatalf("rules = %+v", list)
	}

	rec = s.do(t, http.MethodGet, s.groupPath("/rules?kind=weekly"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad kind: status %d, want 400", rec.Code)
	}

	for _, body := range []map[string]any{
		{"kind": "group", "offset_amount": 6000000, "offset_unit": "minutes"},
		{"kind": "group", "offset_amount": 203000, "offset_unit": "months"},
	} {
		rec = s.do(t, http.MethodPost, s.groupPath("/rules"), body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("offset %v %v: status %d, want 400", body["offset_amount"], body["offset_unit"], rec.Code)
		}
	}

	rec = s.do(t, http.MethodDelete, "/api/rules/"+rule.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: status %d", rec.Code)
	}
}

func TestBotCallbackBooksRole(t *testing.T) {
	s := newTestServer(t)
	ev := s.createEvent(t, "Quiz", now.Add(48*time.Hour), []string{"Host"})

	cb := map[string]any{
		"chat": map[string]any{"id": -100, "title": "Club"},
		"from": map[string]any{"id": 42, "username": "dave"},
		"data": "book:" + ev.ID + ":Host",
	}
	rec := s.do(t, http.MethodPost, "/api/bot/callback", cb)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	slots, err := s.store.Roles.Slots(context.Background(), ev.ID)
	if err != nil {
		t.Fatalf("Slots: %v", err)
	}
	if len(slots) != 1 || slots[0].UserID == nil {
		t.Errorf("slots = %+v", slots)
	}

	rec = s.do(t, http.MethodPost, "/api/bot/callback", map[string]any{"data": "book:x:Host"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing chat: status %d, want 400", rec.Code)
	}
}

func TestBotMessageWithoutSession(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/bot/message", map[string]any{
		"chat": map[string]any{"id": 42, "private": true},
		"from": map[string]any{"id": 42},
		"text": "hello",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var resp handlers.MessageResponse
	decode(t, rec, &resp)
	if resp.Handled {
		t.Error("message without a session should not be handled")
	}
}
