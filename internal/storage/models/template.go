// Package models contains the domain models for the application.
package models

import (
	"time"
)

// OccurrenceKeyLayout is the normalized layout of an occurrence key.
const OccurrenceKeyLayout = "2006-01-02 15:04"

// DateLayout is the layout of template exception dates.
const DateLayout = "2006-01-02"

// TemplateKind distinguishes single events from repeating ones.
type TemplateKind string

const (
	TemplateOneTime   TemplateKind = "one_time"
	TemplateRecurring TemplateKind = "recurring"
)

// Frequency is the repetition unit of a recurring template.
type Frequency string

const (
	FreqNone    Frequency = "none"
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// Template describes how to generate repeating events for a group.
// BaseTime is a naive wall-clock time: its location is always UTC and carries
// no offset information; Timezone records where it was localized.
type Template struct {
	ID                     string       `json:"id"`
	GroupID                int64        `json:"group_id"`
	Name                   string       `json:"name"`
	Kind                   TemplateKind `json:"kind"`
	BaseTime               time.Time    `json:"base_time"`
	Timezone               string       `json:"timezone"`
	Freq                   Frequency    `json:"freq"`
	Interval               int          `json:"interval"`
	ByMonthDay             []int        `json:"bymonthday,omitempty"`
	ByWeekday              []string     `json:"byweekday,omitempty"` // stored, not applied
	Exceptions             []string     `json:"exceptions,omitempty"`
	PlanningHorizonDays    int          `json:"planning_horizon_days"`
	AllowMultiRolesPerUser bool         `json:"allow_multi_roles_per_user"`
	Roles                  []string     `json:"roles,omitempty"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// IsRecurring returns true if the template produces more than one occurrence.
func (t *Template) IsRecurring() bool {
	return t.Kind == TemplateRecurring && t.Freq != FreqNone && t.Freq != ""
}

// HorizonEnd returns the last instant occurrences may be generated for.
// The horizon is anchored to the base date, not to the current time.
func (t *Template) HorizonEnd() time.Time {
	return NaiveTime(t.BaseTime).Truncate(time.Minute).AddDate(0, 0, t.PlanningHorizonDays)
}

// ExceptionSet returns the exception dates keyed by DateLayout.
func (t *Template) ExceptionSet() map[string]bool {
	set := make(map[string]bool, len(t.Exceptions))
	for _, d := range t.Exceptions {
		set[d] = true
	}
	return set
}

// GeneratedOccurrence records that an occurrence of a template was
// materialized into an event. Rows are write-once.
type GeneratedOccurrence struct {
	TemplateID    string    `json:"template_id"`
	OccurrenceKey string    `json:"occurrence_key"`
	EventID       string    `json:"event_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// OccurrenceKey normalizes a start time into its occurrence key.
func OccurrenceKey(start time.Time) string {
	return start.Format(OccurrenceKeyLayout)
}

// NaiveTime strips location information from t, keeping its wall clock.
func NaiveTime(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}
