package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/event-reminder/backend/internal/messaging"
)

// ErrSendFailed is returned by RecordingGateway for recipients marked as failing.
var ErrSendFailed = errors.New("send failed")

// SentMessage is one delivery captured by RecordingGateway.
type SentMessage struct {
	GroupID int64
	UserID  int64
	Text    string
	Actions []messaging.Action
}

// RecordingGateway records deliveries and can be told to fail for chosen
// recipients.
type RecordingGateway struct {
	mu         sync.Mutex
	Group      []SentMessage
	Direct     []SentMessage
	FailGroups map[int64]bool
	FailUsers  map[int64]bool
}

// NewRecordingGateway creates an empty gateway.
func NewRecordingGateway() *RecordingGateway {
	return &RecordingGateway{
		FailGroups: make(map[int64]bool),
		FailUsers:  make(map[int64]bool),
	}
}

// SendGroup records a group message unless the group is marked as failing.
func (g *RecordingGateway) SendGroup(ctx context.Context, groupID int64, text string, actions []messaging.Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailGroups[groupID] {
		return ErrSendFailed
	}
	g.Group = append(g.Group, SentMessage{GroupID: groupID, Text: text, Actions: actions})
	return nil
}

// SendDirect records a direct message unless the user is marked as failing.
func (g *RecordingGateway) SendDirect(ctx context.Context, userID int64, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailUsers[userID] {
		return ErrSendFailed
	}
	g.Direct = append(g.Direct, SentMessage{UserID: userID, Text: text})
	return nil
}

// SetFailUser toggles failure for direct messages to userID.
func (g *RecordingGateway) SetFailUser(userID int64, fail bool) {
	g.mu.Lock()
	g.FailUsers[userID] = fail
	g.mu.Unlock()
}

// SetFailGroup toggles failure for messages to groupID.
func (g *RecordingGateway) SetFailGroup(groupID int64, fail bool) {
	g.mu.Lock()
	g.FailGroups[groupID] = fail
	g.mu.Unlock()
}

// Counts returns how many group and direct messages were delivered.
func (g *RecordingGateway) Counts() (group, direct int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Group), len(g.Direct)
}
