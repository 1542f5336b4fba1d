package models

import (
	"time"
)

// NotificationKind is the audience of a reminder.
type NotificationKind string

const (
	KindGroup    NotificationKind = "group"
	KindPersonal NotificationKind = "personal"
)

// OffsetUnit is the unit of a reminder offset.
type OffsetUnit string

const (
	UnitMinutes OffsetUnit = "minutes"
	UnitHours   OffsetUnit = "hours"
	UnitDays    OffsetUnit = "days"
	UnitWeeks   OffsetUnit = "weeks"
	UnitMonths  OffsetUnit = "months"
)

// Minutes per unit. Months are approximated as 30 days.
const (
	MinutesPerHour  = 60
	MinutesPerDay   = 24 * MinutesPerHour
	MinutesPerWeek  = 7 * MinutesPerDay
	MinutesPerMonth = 30 * MinutesPerDay
)

// MaxPersonalOffsetMinutes caps personal reminders at 30 days before the event.
const MaxPersonalOffsetMinutes = MinutesPerMonth

// MaxOffsetMinutes caps every reminder at roughly ten years before the event.
const MaxOffsetMinutes = 3650 * MinutesPerDay

// Offset is a "remind N units before the event" amount.
type Offset struct {
	Amount int        `json:"offset_amount"`
	Unit   OffsetUnit `json:"offset_unit"`
}

// Minutes converts the offset into minutes. It returns false for unknown units
// and for amounts whose magnitude exceeds MaxOffsetMinutes.
func (o Offset) Minutes() (int, bool) {
	factor := o.Unit.minutes()
	if factor == 0 {
		return 0, false
	}
	limit := MaxOffsetMinutes / factor
	if o.Amount > limit || o.Amount < -limit {
		return 0, false
	}
	return o.Amount * factor, true
}

func (u OffsetUnit) minutes() int {
	switch u {
	case UnitMinutes:
		return 1
	case UnitHours:
		return MinutesPerHour
	case UnitDays:
		return MinutesPerDay
	case UnitWeeks:
		return MinutesPerWeek
	case UnitMonths:
		return MinutesPerMonth
	default:
		return 0
	}
}

// Valid reports whether the offset has a known unit and a positive amount
// within MaxOffsetMinutes.
func (o Offset) Valid() bool {
	m, ok := o.Minutes()
	return ok && m > 0
}

// NotifyTime returns the instant a reminder with this offset is due.
func (o Offset) NotifyTime(start time.Time) time.Time {
	m, _ := o.Minutes()
	return start.Add(-time.Duration(m) * time.Minute)
}

// OffsetFromMinutes stores a duration given in minutes in the largest unit
// that represents it exactly.
func OffsetFromMinutes(minutes int) Offset {
	switch {
	case minutes >= MinutesPerDay && minutes%MinutesPerDay == 0:
		return Offset{Amount: minutes / MinutesPerDay, Unit: UnitDays}
	case minutes >= MinutesPerHour && minutes%MinutesPerHour == 0:
		return Offset{Amount: minutes / MinutesPerHour, Unit: UnitHours}
	default:
		return Offset{Amount: minutes, Unit: UnitMinutes}
	}
}

// NotificationRule is a group-scoped "remind X before the event" policy.
type NotificationRule struct {
	ID        string           `json:"id"`
	GroupID   int64            `json:"group_id"`
	Kind      NotificationKind `json:"kind"`
	Offset    Offset           `json:"offset"`
	Message   *string          `json:"message,omitempty"`
	IsDefault bool             `json:"is_default"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationInstance is a rule materialized for one event. Group instances
// have a nil UserID; personal instances target UserID.
type NotificationInstance struct {
	ID        string           `json:"id"`
	EventID   string           `json:"event_id"`
	Kind      NotificationKind `json:"kind"`
	UserID    *int64           `json:"user_id,omitempty"`
	Offset    Offset           `json:"offset"`
	Message   *string          `json:"message,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// DispatchKey identifies one reminder delivery in the dispatch ledger.
// Exactly one of UserID (personal) or GroupID (group) is set.
type DispatchKey struct {
	Kind    NotificationKind
	UserID  *int64
	GroupID *int64
	EventID string
	Offset  Offset
}

// DispatchRecord is a ledger entry proving a reminder was already sent.
type DispatchRecord struct {
	DispatchKey
	SentAt time.Time
}

// DueInstance is a notification instance joined with its event for dispatch.
type DueInstance struct {
	Instance NotificationInstance
	Event    Event
}

// DefaultGroupRules are seeded for a group that has no group reminders yet.
var DefaultGroupRules = []struct {
	Offset  Offset
	Message string
}{
	{Offset{1, UnitDays}, "Reminder: the event is coming up soon!"},
	{Offset{2, UnitHours}, "Reminder: the event starts in 2 hours!"},
	{Offset{3, UnitDays}, "Reminder: the event is in 3 days!"},
}

// DispatchKeyFor builds the ledger key of an instance on an event of groupID.
func (n *NotificationInstance) DispatchKeyFor(groupID int64) DispatchKey {
	key := DispatchKey{
		Kind:    n.Kind,
		EventID: n.EventID,
		Offset:  n.Offset,
	}
	if n.Kind == KindPersonal {
		key.UserID = n.UserID
	} else {
		gid := groupID
		key.GroupID = &gid
	}
	return key
}
