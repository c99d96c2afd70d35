package views

import (
	"sort"
	"strings"
	"time"

	"taskline/backend"
	"taskline/internal/datetime"
)

// FilterTasks applies the status, priority and search filter to a list of tasks
func FilterTasks(tasks []backend.Task, f Filter) []backend.Task {
	var result []backend.Task
	for i := range tasks {
		if matchesFilter(&tasks[i], f) {
			result = append(result, tasks[i])
		}
	}
	return result
}

// matchesFilter checks if a task matches every part of the filter (AND logic)
func matchesFilter(t *backend.Task, f Filter) bool {
	if !isWildcard(f.Status) && !strings.EqualFold(string(t.Status), normalizeStatus(f.Status)) {
		return false
	}
	if !isWildcard(f.Priority) && !strings.EqualFold(string(t.Priority), f.Priority) {
		return false
	}
	return matchesSearch(t, f.Search)
}

func matchesSearch(t *backend.Task, search string) bool {
	search = strings.TrimSpace(search)
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), strings.ToLower(search))
}

func isWildcard(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, All)
}

// normalizeStatus maps user facing aliases onto stored status values
func normalizeStatus(s string) string {
	if status, ok := backend.ParseStatus(s); ok {
		return string(status)
	}
	return s
}

// InSmartList reports whether the task belongs to the smart list at now.
// TODAY keeps tasks due on the calendar day of now; UPCOMING keeps tasks due
// on a later day. Tasks without a valid due date only appear in ALL.
func InSmartList(t *backend.Task, list SmartList, now time.Time) bool {
	if list == SmartListAll || list == "" {
		return true
	}
	due, ok := datetime.Parse(t.DueDate)
	if !ok {
		return false
	}
	switch list {
	case SmartListToday:
		return datetime.SameDay(due, now)
	case SmartListUpcoming:
		return !due.Before(datetime.StartOfDay(now).AddDate(0, 0, 1))
	}
	return false
}

// VisibleTasks returns the tasks of the active smart list that pass the filter,
// in the order given by the sort rule
func VisibleTasks(tasks []backend.Task, state State, now time.Time) []backend.Task {
	var result []backend.Task
	for i := range tasks {
		t := &tasks[i]
		if InSmartList(t, state.ActiveView, now) && matchesFilter(t, state.Filter) {
			result = append(result, *t)
		}
	}
	return SortTasks(result, state.Sort)
}

// SortTasks returns a sorted copy of tasks. The sort is stable, so tasks
// comparing equal keep their collection order. Tasks with an invalid due
// date sort last regardless of direction.
func SortTasks(tasks []backend.Task, rule Sort) []backend.Task {
	result := append([]backend.Task(nil), tasks...)
	if rule.By == "" {
		return result
	}
	desc := rule.Order == OrderDesc

	sort.SliceStable(result, func(i, j int) bool {
		a, b := &result[i], &result[j]
		switch rule.By {
		case SortByDueDate:
			ad, aok := datetime.Parse(a.DueDate)
			bd, bok := datetime.Parse(b.DueDate)
			if !aok || !bok {
				return aok && !bok
			}
			if desc {
				return ad.After(bd)
			}
			return ad.Before(bd)
		case SortByPriority:
			if desc {
				return a.Priority.Rank() > b.Priority.Rank()
			}
			return a.Priority.Rank() < b.Priority.Rank()
		case SortByCreatedAt:
			if desc {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return false
	})
	return result
}
