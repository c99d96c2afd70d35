// Package lifecycle derives the status and duration class of tasks.
//
// Status is never stored as independent truth: it is recomputed from the
// task's time window, its sub-tasks and the current instant every time a task
// is written, and again by the store's periodic sweep. The only way to set it
// directly is ToggleCompleted.
package lifecycle

import (
	"strings"
	"time"

	"taskline/backend"
	"taskline/internal/datetime"
)

// ShortWindow is the longest time window still classified as a short task.
const ShortWindow = 24 * time.Hour

// DeriveStatus computes the lifecycle status of task at now.
// Rules are evaluated in order and the first match wins:
//
//  1. at least one sub-task and all completed: COMPLETED
//  2. stored status already COMPLETED: COMPLETED
//  3. start or due date unparseable: TODO
//  4. now before start: TODO
//  5. now after due: ARCHIVED
//  6. otherwise: IN_PROGRESS
func DeriveStatus(task *backend.Task, now time.Time) backend.TaskStatus {
	if task.AllSubTasksCompleted() {
		return backend.StatusCompleted
	}
	if task.Status == backend.StatusCompleted {
		return backend.StatusCompleted
	}

	start, okStart := datetime.Parse(task.StartDate)
	due, okDue := datetime.Parse(task.DueDate)
	if !okStart || !okDue {
		return backend.StatusTodo
	}

	switch {
	case now.Before(start):
		return backend.StatusTodo
	case now.After(due):
		return backend.StatusArchived
	default:
		return backend.StatusInProgress
	}
}

// InferDuration classifies a window as short (at most 24h) or long.
// Windows with an unparseable bound are long, so they never take part in
// conflict checks.
func InferDuration(startDate, dueDate string) backend.DurationType {
	start, okStart := datetime.Parse(startDate)
	due, okDue := datetime.Parse(dueDate)
	if !okStart || !okDue {
		return backend.DurationLong
	}
	if due.Sub(start) <= ShortWindow {
		return backend.DurationShort
	}
	return backend.DurationLong
}

// Normalize rewrites every date field of the task and its sub-tasks in
// canonical form and recomputes DurationType. Values that do not parse are
// kept as given (trimmed) so no user input is lost.
func Normalize(task backend.Task) backend.Task {
	t := task.Clone()
	t.StartDate = normalizeField(t.StartDate)
	t.DueDate = normalizeField(t.DueDate)
	for i := range t.SubTasks {
		t.SubTasks[i].StartTime = normalizeField(t.SubTasks[i].StartTime)
		t.SubTasks[i].EndTime = normalizeField(t.SubTasks[i].EndTime)
	}
	t.DurationType = InferDuration(t.StartDate, t.DueDate)
	return t
}

func normalizeField(value string) string {
	if canonical := datetime.Normalize(value); canonical != "" {
		return canonical
	}
	return strings.TrimSpace(value)
}

// Apply normalizes the task and materializes its derived status.
func Apply(task backend.Task, now time.Time) backend.Task {
	t := Normalize(task)
	t.Status = DeriveStatus(&t, now)
	return t
}

// ToggleCompleted flips the task between COMPLETED and TODO.
// Uncompleting a task whose sub-tasks are all done also reopens the
// sub-tasks, otherwise the next derivation would complete it again.
func ToggleCompleted(task backend.Task) backend.Task {
	t := task.Clone()
	if t.IsCompleted() {
		if t.AllSubTasksCompleted() {
			for i := range t.SubTasks {
				t.SubTasks[i].Completed = false
			}
		}
		t.Status = backend.StatusTodo
		return t
	}
	t.Status = backend.StatusCompleted
	return t
}

// SetCompleted forces the completion state rather than flipping it.
func SetCompleted(task backend.Task, completed bool) backend.Task {
	if task.IsCompleted() == completed {
		return task.Clone()
	}
	return ToggleCompleted(task)
}

// Progress returns the elapsed fraction of the task window at now, in [0, 1].
// Completed tasks report 1 and tasks with an invalid window report 0.
func Progress(task *backend.Task, now time.Time) float64 {
	if task.IsCompleted() {
		return 1
	}
	start, okStart := datetime.Parse(task.StartDate)
	due, okDue := datetime.Parse(task.DueDate)
	if !okStart || !okDue || !due.After(start) {
		return 0
	}
	p := float64(now.Sub(start)) / float64(due.Sub(start))
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// IsOverdue reports whether the due date has passed for an uncompleted task.
func IsOverdue(task *backend.Task, now time.Time) bool {
	if task.IsCompleted() {
		return false
	}
	due, ok := datetime.Parse(task.DueDate)
	return ok && now.After(due)
}

// IsDueSoon reports whether an uncompleted, not yet overdue task is due
// within the next 24 hours.
func IsDueSoon(task *backend.Task, now time.Time) bool {
	if task.IsCompleted() || IsOverdue(task, now) {
		return false
	}
	due, ok := datetime.Parse(task.DueDate)
	return ok && due.Sub(now) < 24*time.Hour
}
