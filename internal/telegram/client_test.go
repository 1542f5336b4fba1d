package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/event-reminder/backend/internal/messaging"
	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/testutil"
)

type capturedRequest struct {
	Path string
	Body map[string]any
}

func newBotServer(t *testing.T, fail bool) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var got []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, capturedRequest{Path: r.URL.Path, Body: body})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"ok":false,"description":"Forbidden: bot was blocked by the user"}`))
			return
		}
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			w.Write([]byte(`{"ok":true,"result":{"id":42,"username":"reminder_bot"}}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestSendGroupBuildsKeyboard(t *testing.T) {
	store := testutil.NewTestStore(t)
	group := testutil.CreateGroup(t, store, "-100123")
	srv, got := newBotServer(t, false)
	c := NewClient(Config{APIURL: srv.URL, Token: "T0K"}, NewStoreDirectory(store))

	err := c.SendGroup(context.Background(), group.ID, "Concert", []messaging.Action{
		{Label: "Take Host", Data: "book:e:Host"},
		{Label: "Too long", Data: strings.Repeat("x", 65)},
	})
	if err != nil {
		t.Fatalf("SendGroup: %v", err)
	}

	if len(*got) != 1 {
		t.Fatalf("requests = %d, want 1", len(*got))
	}
	req := (*got)[0]
	if req.Path != "/botT0K/sendMessage" {
		t.Errorf("Path = %q", req.Path)
	}
	if req.Body["chat_id"] != "-100123" || req.Body["text"] != "Concert" {
		t.Errorf("Body = %v", req.Body)
	}
	markup, _ := req.Body["reply_markup"].(map[string]any)
	rows, _ := markup["inline_keyboard"].([]any)
	if len(rows) != 1 {
		t.Fatalf("keyboard rows = %v, want only the short payload", markup)
	}
}

func TestSendDirectUsesTelegramID(t *testing.T) {
	store := testutil.NewTestStore(t)
	user := testutil.CreateUser(t, store, 777, "alice")
	srv, got := newBotServer(t, false)
	c := NewClient(Config{APIURL: srv.URL, Token: "T0K"}, NewStoreDirectory(store))

	if err := c.SendDirect(context.Background(), user.ID, "hi"); err != nil {
		t.Fatalf("SendDirect: %v", err)
	}
	body := (*got)[0].Body
	if body["chat_id"] != float64(777) {
		t.Errorf("chat_id = %v, want 777", body["chat_id"])
	}
	if _, ok := body["reply_markup"]; ok {
		t.Error("direct message should have no keyboard")
	}
}

func TestAPIErrors(t *testing.T) {
	store := testutil.NewTestStore(t)
	user := testutil.CreateUser(t, store, 777, "alice")
	srv, _ := newBotServer(t, true)
	ctx := context.Background()

	c := NewClient(Config{APIURL: srv.URL, Token: "T0K"}, NewStoreDirectory(store))
	if err := c.SendDirect(ctx, user.ID, "hi"); err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Errorf("SendDirect err = %v, want API error", err)
	}
	if err := c.SendDirect(ctx, 9999, "hi"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown user err = %v", err)
	}

	noToken := NewClient(Config{APIURL: srv.URL}, NewStoreDirectory(store))
	if err := noToken.SendDirect(ctx, user.ID, "hi"); !errors.Is(err, ErrNoToken) {
		t.Errorf("no token err = %v", err)
	}
}

func TestGetMe(t *testing.T) {
	srv, _ := newBotServer(t, false)
	c := NewClient(Config{APIURL: srv.URL, Token: "T0K"}, nil)

	me, err := c.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if me.ID != 42 || me.Username != "reminder_bot" {
		t.Errorf("me = %+v", me)
	}
}
