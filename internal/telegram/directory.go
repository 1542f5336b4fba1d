package telegram

import (
	"context"
	"fmt"

	"github.com/event-reminder/backend/internal/storage"
)

// Directory maps internal group and user ids to Telegram chat ids.
type Directory interface {
	GroupChatID(ctx context.Context, groupID int64) (string, error)
	UserChatID(ctx context.Context, userID int64) (int64, error)
}

// StoreDirectory resolves chats from the database.
type StoreDirectory struct {
	store *storage.Store
}

// NewStoreDirectory creates a directory backed by store.
func NewStoreDirectory(store *storage.Store) *StoreDirectory {
	return &StoreDirectory{store: store}
}

// GroupChatID returns the group's Telegram chat id.
func (d *StoreDirectory) GroupChatID(ctx context.Context, groupID int64) (string, error) {
	g, err := d.store.Groups.GetByID(ctx, groupID)
	if err != nil {
		return "", err
	}
	if g == nil {
		return "", fmt.Errorf("group %d: %w", groupID, storage.ErrNotFound)
	}
	return g.TelegramChatID, nil
}

// UserChatID returns the user's private chat id, which equals their
// Telegram user id.
func (d *StoreDirectory) UserChatID(ctx context.Context, userID int64) (int64, error) {
	u, err := d.store.Users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return 0, fmt.Errorf("user %d: %w", userID, storage.ErrNotFound)
	}
	return u.TelegramID, nil
}
