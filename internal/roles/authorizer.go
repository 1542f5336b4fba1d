package roles

import (
	"context"

	"github.com/event-reminder/backend/internal/storage"
)

// GroupAuthorizer grants privilege to group owners and admins, and to
// superadmins identified by Telegram ID.
type GroupAuthorizer struct {
	store        *storage.Store
	isSuperadmin func(telegramID int64) bool
}

// NewGroupAuthorizer creates an authorizer. isSuperadmin may be nil.
func NewGroupAuthorizer(store *storage.Store, isSuperadmin func(telegramID int64) bool) *GroupAuthorizer {
	return &GroupAuthorizer{store: store, isSuperadmin: isSuperadmin}
}

// IsPrivileged implements Authorizer.
func (a *GroupAuthorizer) IsPrivileged(ctx context.Context, groupID, userID int64) (bool, error) {
	role, ok, err := a.store.Groups.MemberRole(ctx, groupID, userID)
	if err != nil {
		return false, err
	}
	if ok && role.IsPrivileged() {
		return true, nil
	}
	if a.isSuperadmin == nil {
		return false, nil
	}
	u, err := a.store.Users.GetByID(ctx, userID)
	if err != nil || u == nil {
		return false, err
	}
	return a.isSuperadmin(u.TelegramID), nil
}
