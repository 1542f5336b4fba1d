// Package parse turns free-text user input into reminder offsets and
// wall-clock times.
package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/event-reminder/backend/internal/storage/models"
)

var (
	// ErrNoDuration is returned when the text contains no positive duration.
	ErrNoDuration = errors.New("no duration found")
	// ErrBadDateTime is returned when the text is not a supported date/time.
	ErrBadDateTime = errors.New("unrecognized date/time")
)

// DurationParser converts text to a number of minutes.
type DurationParser interface {
	ParseDuration(text string) (int, error)
}

// DateTimeParser converts text to a naive wall-clock time.
type DateTimeParser interface {
	ParseDateTime(text string) (time.Time, error)
}

// Simple understands "<n> <unit>" sequences and numeric date/time layouts.
type Simple struct{}

var _ DurationParser = Simple{}
var _ DateTimeParser = Simple{}

var unitMinutes = map[string]int{
	"m": 1, "min": 1, "mins": 1, "minute": 1, "minutes": 1,
	"h": models.MinutesPerHour, "hr": models.MinutesPerHour, "hrs": models.MinutesPerHour,
	"hour": models.MinutesPerHour, "hours": models.MinutesPerHour,
	"d": models.MinutesPerDay, "day": models.MinutesPerDay, "days": models.MinutesPerDay,
	"w": models.MinutesPerWeek, "wk": models.MinutesPerWeek, "week": models.MinutesPerWeek, "weeks": models.MinutesPerWeek,
	"mo": models.MinutesPerMonth, "month": models.MinutesPerMonth, "months": models.MinutesPerMonth,

	"мин": 1, "минута": 1, "минуты": 1, "минут": 1, "минутами": 1,
	"ч": models.MinutesPerHour, "час": models.MinutesPerHour, "часа": models.MinutesPerHour,
	"часов": models.MinutesPerHour, "часами": models.MinutesPerHour,
	"дн": models.MinutesPerDay, "день": models.MinutesPerDay, "дня": models.MinutesPerDay,
	"дней": models.MinutesPerDay, "днями": models.MinutesPerDay,
	"нед": models.MinutesPerWeek, "неделя": models.MinutesPerWeek, "недели": models.MinutesPerWeek,
	"недель": models.MinutesPerWeek, "неделями": models.MinutesPerWeek,
	"мес": models.MinutesPerMonth, "месяц": models.MinutesPerMonth, "месяца": models.MinutesPerMonth,
	"месяцев": models.MinutesPerMonth,
}

// Split "1h30m" into "1 h 30 m" before tokenizing.
var (
	digitLetter = regexp.MustCompile(`(\d)(\pL)`)
	letterDigit = regexp.MustCompile(`(\pL)(\d)`)
)

// ParseDuration sums every "<n> <unit>" pair in text. A number without a
// known unit counts as minutes; other words are ignored.
func (Simple) ParseDuration(text string) (int, error) {
	text = strings.ToLower(text)
	text = digitLetter.ReplaceAllString(text, "$1 $2")
	text = letterDigit.ReplaceAllString(text, "$1 $2")
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\n' || r == '.'
	})

	total := 0
	for i := 0; i < len(tokens); i++ {
		n, err := strconv.Atoi(tokens[i])
		if err != nil || n < 0 {
			continue
		}
		if i+1 < len(tokens) {
			if per, ok := unitMinutes[tokens[i+1]]; ok {
				total += n * per
				i++
				continue
			}
		}
		total += n
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w in %q", ErrNoDuration, text)
	}
	return total, nil
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"02.01.2006 15:04",
	"02.01.2006 15:04:05",
}

// ParseDateTime accepts ISO-like and day-first numeric layouts. The result is
// a naive time.
func (Simple) ParseDateTime(text string) (time.Time, error) {
	text = strings.Join(strings.Fields(text), " ")
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return models.NaiveTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateTime, text)
}
