// Package command decodes inline-button payloads into typed commands and
// routes them to handlers.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned for payloads that do not decode to a command.
var ErrMalformed = errors.New("malformed command payload")

// Kind tags a command variant.
type Kind string

const (
	KindBookRole   Kind = "book"
	KindUnbookRole Kind = "unbook"
	KindNotifyNow  Kind = "notify"
	KindAwaitInput Kind = "await"
)

// InputMode names what free text the conversation is waiting for.
type InputMode string

const (
	InputRename           InputMode = "rename"
	InputRetime           InputMode = "retime"
	InputGroupReminder    InputMode = "group_reminder"
	InputPersonalReminder InputMode = "personal_reminder"
)

func (m InputMode) valid() bool {
	switch m {
	case InputRename, InputRetime, InputGroupReminder, InputPersonalReminder:
		return true
	}
	return false
}

// Command is one decoded payload. The concrete types are BookRole,
// UnbookRole, NotifyNow and AwaitInput.
type Command interface {
	Kind() Kind
	Encode() string
}

// BookRole asks to take a role slot on an event.
type BookRole struct {
	EventID string
	Role    string
}

// UnbookRole asks to give up a role slot on an event.
type UnbookRole struct {
	EventID string
	Role    string
}

// NotifyNow asks to post an event card to its group immediately.
type NotifyNow struct {
	EventID string
}

// AwaitInput switches the conversation into a text-input mode for an event.
type AwaitInput struct {
	Mode    InputMode
	EventID string
	GroupID int64
}

func (BookRole) Kind() Kind   { return KindBookRole }
func (UnbookRole) Kind() Kind { return KindUnbookRole }
func (NotifyNow) Kind() Kind  { return KindNotifyNow }
func (AwaitInput) Kind() Kind { return KindAwaitInput }

// Role names may contain the separator, so they always come last.
const sep = ":"

func (c BookRole) Encode() string   { return join(KindBookRole, c.EventID, c.Role) }
func (c UnbookRole) Encode() string { return join(KindUnbookRole, c.EventID, c.Role) }
func (c NotifyNow) Encode() string  { return join(KindNotifyNow, c.EventID) }
func (c AwaitInput) Encode() string {
	return join(KindAwaitInput, string(c.Mode), strconv.FormatInt(c.GroupID, 10), c.EventID)
}

func join(kind Kind, parts ...string) string {
	return string(kind) + sep + strings.Join(parts, sep)
}

// Decode parses a payload produced by Encode.
func Decode(data string) (Command, error) {
	kind, rest, ok := strings.Cut(data, sep)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, data)
	}

	switch Kind(kind) {
	case KindBookRole, KindUnbookRole:
		eventID, role, ok := strings.Cut(rest, sep)
		if !ok || eventID == "" || role == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, data)
		}
		if Kind(kind) == KindBookRole {
			return BookRole{EventID: eventID, Role: role}, nil
		}
		return UnbookRole{EventID: eventID, Role: role}, nil

	case KindNotifyNow:
		if rest == "" || strings.Contains(rest, sep) {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, data)
		}
		return NotifyNow{EventID: rest}, nil

	case KindAwaitInput:
		parts := strings.SplitN(rest, sep, 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, data)
		}
		mode := InputMode(parts[0])
		if !mode.valid() {
			return nil, fmt.Errorf("%w: unknown input mode %q", ErrMalformed, parts[0])
		}
		groupID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: group id %q", ErrMalformed, parts[1])
		}
		return AwaitInput{Mode: mode, GroupID: groupID, EventID: parts[2]}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, kind)
	}
}
