// Package datetime normalizes the date-time values carried by tasks.
//
// Every task and sub-task time field is kept as a canonical, minute precision,
// local date-time string ("2006-01-02T15:04"). Inputs arrive in several shapes
// (date pickers, the remote API, seeded defaults), so all parsing and formatting
// goes through this package.
package datetime

import (
	"strings"
	"time"
)

const (
	// CanonicalLayout is the in-memory representation of task time fields.
	CanonicalLayout = "2006-01-02T15:04"

	// BackendLayout is the wire encoding expected by the remote task API.
	BackendLayout = "2006-01-02 15:04"

	// DateLayout is the calendar-date part of a canonical value.
	DateLayout = "2006-01-02"

	// TimeLayout is the time-of-day part of a canonical value.
	TimeLayout = "15:04"
)

// localLayouts are tried in order against the "T"-normalized input.
// They are interpreted in the local time zone.
var localLayouts = []string{
	CanonicalLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	DateLayout,
}

// zonedLayouts carry their own offset and are converted to local time.
var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// now is replaceable in tests.
var now = time.Now

// Parse converts a date-time value into a local instant truncated to the minute.
// It accepts strings in "YYYY-MM-DD HH:mm", "YYYY-MM-DDTHH:mm" (optionally with
// seconds or a zone offset) or "YYYY-MM-DD" form, as well as time.Time and
// *time.Time values. The boolean is false when the input cannot be parsed;
// callers must check it before using the instant.
func Parse(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.Local().Truncate(time.Minute), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return Parse(*v)
	case string:
		return parseString(v)
	default:
		return time.Time{}, false
	}
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.Contains(s, " ") && !strings.Contains(s, "T") {
		s = strings.Replace(s, " ", "T", 1)
	}

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Truncate(time.Minute), true
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local().Truncate(time.Minute), true
		}
	}
	return time.Time{}, false
}

// Canonical formats an instant as YYYY-MM-DDTHH:mm in local time.
// The zero instant (invalid) formats as the empty string.
func Canonical(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(CanonicalLayout)
}

// Backend formats an instant as YYYY-MM-DD HH:mm for the remote API.
func Backend(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(BackendLayout)
}

// Normalize re-encodes any accepted value in canonical form.
// Unparseable input normalizes to the empty string.
func Normalize(value any) string {
	t, ok := Parse(value)
	if !ok {
		return ""
	}
	return Canonical(t)
}

// ToBackend converts a canonical (or any accepted) value to the wire encoding.
func ToBackend(value any) string {
	t, ok := Parse(value)
	if !ok {
		return ""
	}
	return Backend(t)
}

// DatePart extracts the YYYY-MM-DD component, or "" when invalid.
func DatePart(value any) string {
	t, ok := Parse(value)
	if !ok {
		return ""
	}
	return t.Format(DateLayout)
}

// TimePart extracts the HH:mm component, or "" when invalid.
func TimePart(value any) string {
	t, ok := Parse(value)
	if !ok {
		return ""
	}
	return t.Format(TimeLayout)
}

// WithDate replaces the calendar date of value, keeping its time of day.
// An invalid value contributes midnight. Returns "" if date is not YYYY-MM-DD.
func WithDate(value any, date string) string {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), time.Local)
	if err != nil {
		return ""
	}
	hour, minute := 0, 0
	if t, ok := Parse(value); ok {
		hour, minute = t.Hour(), t.Minute()
	}
	return Canonical(time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.Local))
}

// WithTime replaces the time of day of value, keeping its calendar date.
// An invalid value contributes today's date. Returns "" if clock is not HH:mm.
func WithTime(value any, clock string) string {
	c, err := time.Parse(TimeLayout, strings.TrimSpace(clock))
	if err != nil {
		return ""
	}
	base, ok := Parse(value)
	if !ok {
		base = now()
	}
	return Canonical(time.Date(base.Year(), base.Month(), base.Day(), c.Hour(), c.Minute(), 0, 0, time.Local))
}

// StartOfDay returns local midnight of the day containing t.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns Monday 00:00 of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// StartOfMonth returns 00:00 on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same local calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
