// Package conflict finds scheduling overlaps between short tasks.
package conflict

import (
	"fmt"
	"time"

	"taskline/backend"
	"taskline/internal/datetime"
	"taskline/internal/lifecycle"
)

// Tolerance is the overlap accepted as buffer time between two short tasks.
const Tolerance = 30 * time.Minute

// Candidate is the time window being saved.
// ExcludeID skips the task being edited so it never conflicts with itself.
type Candidate struct {
	StartDate string
	DueDate   string
	ExcludeID string
}

// Find returns the first task in collection order whose window overlaps the
// candidate by more than Tolerance, or nil.
//
// Only short candidates are checked, and only against other short tasks that
// are neither COMPLETED nor ARCHIVED.
func Find(c Candidate, tasks []backend.Task) *backend.Task {
	if lifecycle.InferDuration(c.StartDate, c.DueDate) != backend.DurationShort {
		return nil
	}
	start, _ := datetime.Parse(c.StartDate)
	due, _ := datetime.Parse(c.DueDate)

	for i := range tasks {
		t := &tasks[i]
		if c.ExcludeID != "" && t.ID == c.ExcludeID {
			continue
		}
		if t.Status == backend.StatusCompleted || t.Status == backend.StatusArchived {
			continue
		}
		if lifecycle.InferDuration(t.StartDate, t.DueDate) != backend.DurationShort {
			continue
		}
		otherStart, _ := datetime.Parse(t.StartDate)
		otherDue, _ := datetime.Parse(t.DueDate)
		if Overlap(start, due, otherStart, otherDue) > Tolerance {
			found := t.Clone()
			return &found
		}
	}
	return nil
}

// Overlap returns min(endA, endB) - max(startA, startB).
// A negative result means the windows are disjoint.
func Overlap(startA, endA, startB, endB time.Time) time.Duration {
	end := endA
	if endB.Before(end) {
		end = endB
	}
	start := startA
	if startB.After(start) {
		start = startB
	}
	return end.Sub(start)
}

// Message formats a conflict for display to the user.
func Message(existing *backend.Task) string {
	return fmt.Sprintf("overlaps with %q (%s - %s) by more than %d minutes",
		existing.Title, existing.StartDate, existing.DueDate, int(Tolerance/time.Minute))
}
