// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/event-reminder/backend/internal/storage"
	"github.com/event-reminder/backend/internal/storage/models"
)

// NewTestDatabase opens a migrated SQLite database in a temporary directory.
// A file is used rather than :memory: so every pooled connection sees the
// same data.
func NewTestDatabase(t *testing.T) *storage.DB {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if _, err := storage.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// NewTestStore returns a store over a fresh test database.
func NewTestStore(t *testing.T) *storage.Store {
	t.Helper()
	return storage.NewStore(NewTestDatabase(t))
}

// CreateGroup inserts a group for chatID.
func CreateGroup(t *testing.T, store *storage.Store, chatID string) *models.Group {
	t.Helper()

	g, err := store.Groups.Ensure(context.Background(), chatID, "group "+chatID)
	if err != nil {
		t.Fatalf("creating group: %v", err)
	}
	return g
}

// CreateUser inserts a user with the given Telegram ID.
func CreateUser(t *testing.T, store *storage.Store, telegramID int64, username string) *models.User {
	t.Helper()

	u, err := store.Users.Ensure(context.Background(), &models.User{
		TelegramID: telegramID,
		Username:   &username,
	})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return u
}
