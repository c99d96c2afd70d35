package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"taskline/internal/datetime"
)

// ValidateTitle rejects empty or whitespace-only titles.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle()
	}
	return nil
}

// ValidateDateRange validates that both bounds parse and due is strictly after start.
func ValidateDateRange(start, due string) error {
	s, ok := datetime.Parse(start)
	if !ok {
		return ErrInvalidDate(start)
	}
	d, ok := datetime.Parse(due)
	if !ok {
		return ErrInvalidDate(due)
	}
	if !d.After(s) {
		return ErrInvalidDateRange(datetime.Canonical(s), datetime.Canonical(d))
	}
	return nil
}

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses relative date strings like "today", "tomorrow", "yesterday", "+7d", "-3d", "+2w", "+1m".
// Returns ok=false if the string is not a relative date format.
func parseRelativeDate(dateStr string, now time.Time) (time.Time, bool) {
	today := datetime.StartOfDay(now)

	lower := strings.ToLower(dateStr)
	switch lower {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return time.Time{}, false
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, false
	}
	if matches[1] == "-" {
		num = -num
	}

	switch matches[3] {
	case "d":
		return today.AddDate(0, 0, num), true
	case "w":
		return today.AddDate(0, 0, num*7), true
	default:
		return today.AddDate(0, num, 0), true
	}
}

// ParseDateTimeFlag parses a command line date-time into canonical form.
//
// Accepted forms are a full date-time ("2026-01-15 09:30", "2026-01-15T09:30"),
// or a date with an optional clock ("2026-01-15", "tomorrow 14:00", "+2d").
// Relative dates (today, tomorrow, yesterday, +Nd, -Nd, +Nw, +Nm) are resolved
// against now. When no clock is given, defaultClock (HH:mm) is used.
// An empty string returns "", nil.
func ParseDateTimeFlag(value, defaultClock string, now time.Time) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}

	fields := strings.Fields(value)
	if len(fields) > 2 {
		return "", ErrInvalidDate(value)
	}

	clock := defaultClock
	if len(fields) == 2 {
		clock = fields[1]
	}

	datePart := fields[0]
	if day, ok := parseRelativeDate(datePart, now); ok {
		if canonical := datetime.WithTime(day, clock); canonical != "" {
			return canonical, nil
		}
		return "", ErrInvalidDate(value)
	}

	if len(fields) == 1 && strings.Contains(datePart, "T") {
		if canonical := datetime.Normalize(datePart); canonical != "" {
			return canonical, nil
		}
		return "", ErrInvalidDate(value)
	}

	base := datetime.WithTime(now, clock)
	if base == "" {
		return "", ErrInvalidDate(value)
	}
	if canonical := datetime.WithDate(base, datePart); canonical != "" {
		return canonical, nil
	}
	return "", ErrInvalidDate(value)
}
