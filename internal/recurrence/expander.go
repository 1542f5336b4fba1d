// Package recurrence expands a template's repetition rule into candidate
// occurrence start times.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/event-reminder/backend/internal/storage/models"
)

// ErrInvalidTemplate is returned for templates whose rule cannot be expanded.
var ErrInvalidTemplate = errors.New("invalid template")

// maxCandidates bounds a single expansion. A daily rule over ten years stays
// well below it.
const maxCandidates = 5000

// Sequence is the ordered, finite set of candidate start times of a template
// as seen at a fixed "now". It can be iterated any number of times.
type Sequence struct {
	rule       *rrule.RRule
	base       time.Time
	exceptions map[string]bool
	now        time.Time
}

// Next yields the next candidate; ok is false once the sequence is exhausted.
type Next func() (t time.Time, ok bool)

// Candidates builds the candidate sequence of t for the given naive now.
// The horizon is anchored at the template's base time, not at now.
func Candidates(t *models.Template, now time.Time) (*Sequence, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	base := models.NaiveTime(t.BaseTime).Truncate(time.Minute)
	seq := &Sequence{
		base:       base,
		exceptions: t.ExceptionSet(),
		now:        now,
	}
	if !t.IsRecurring() {
		return seq, nil
	}

	opt := rrule.ROption{
		Dtstart:  base,
		Interval: t.Interval,
		Until:    t.HorizonEnd(),
	}

	switch t.Freq {
	case models.FreqDaily:
		opt.Freq = rrule.DAILY
	case models.FreqWeekly:
		// The weekday list is stored but never applied; weeks repeat on the
		// base time's weekday.
		opt.Freq = rrule.WEEKLY
	case models.FreqMonthly:
		opt.Freq = rrule.MONTHLY
		days, err := monthDays(t.ByMonthDay)
		if err != nil {
			return nil, err
		}
		// An empty list makes the rule default to the base day. Days missing
		// from a month, such as the 31st in April, are skipped for that month.
		opt.Bymonthday = days
	default:
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidTemplate, t.Freq)
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	seq.rule = rule
	return seq, nil
}

// Expand returns all candidates of t at now as a slice.
func Expand(t *models.Template, now time.Time) ([]time.Time, error) {
	seq, err := Candidates(t, now)
	if err != nil {
		return nil, err
	}
	return seq.All(), nil
}

// Iterator returns a fresh iterator over the sequence.
func (s *Sequence) Iterator() Next {
	var raw Next
	if s.rule == nil {
		done := false
		raw = func() (time.Time, bool) {
			if done {
				return time.Time{}, false
			}
			done = true
			return s.base, true
		}
	} else {
		next := s.rule.Iterator()
		raw = func() (time.Time, bool) { return next() }
	}

	emitted := 0
	return func() (time.Time, bool) {
		for emitted < maxCandidates {
			t, ok := raw()
			if !ok {
				return time.Time{}, false
			}
			if s.exceptions[t.Format(models.DateLayout)] {
				continue
			}
			if t.Before(s.now) {
				continue
			}
			emitted++
			return t, true
		}
		return time.Time{}, false
	}
}

// All collects the sequence into a slice.
func (s *Sequence) All() []time.Time {
	var out []time.Time
	next := s.Iterator()
	for t, ok := next(); ok; t, ok = next() {
		out = append(out, t)
	}
	return out
}

func validate(t *models.Template) error {
	if t == nil {
		return fmt.Errorf("%w: nil template", ErrInvalidTemplate)
	}
	if t.BaseTime.IsZero() {
		return fmt.Errorf("%w: missing base time", ErrInvalidTemplate)
	}
	if t.IsRecurring() && t.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrInvalidTemplate, t.Interval)
	}
	if t.PlanningHorizonDays < 0 {
		return fmt.Errorf("%w: negative planning horizon", ErrInvalidTemplate)
	}
	return nil
}

// monthDays drops values that can never name a day of a month.
func monthDays(days []int) ([]int, error) {
	if len(days) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d == 0 || d > 31 || d < -31 {
			continue
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no valid day in bymonthday %v", ErrInvalidTemplate, days)
	}
	return out, nil
}
