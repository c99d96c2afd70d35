package store

import (
	"strings"

	"taskline/backend"
	"taskline/internal/conflict"
	"taskline/internal/utils"
	"taskline/internal/views"
)

// Tasks returns a copy of the collection in store order
func (s *Store) Tasks() []backend.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return backend.CloneTasks(s.tasks)
}

// Task returns a copy of the task with the given id
func (s *Store) Task(id string) (backend.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := backend.FindTask(s.tasks, id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return backend.Task{}, false
}

// ResolveID expands a unique id prefix to the full task id.
// An exact match always wins over prefix matches.
func (s *Store) ResolveID(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", utils.ErrTaskNotFound(prefix)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []string
	for i := range s.tasks {
		id := s.tasks[i].ID
		if id == prefix {
			return id, nil
		}
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", utils.ErrTaskNotFound(prefix)
	case 1:
		return matches[0], nil
	default:
		return "", utils.ErrAmbiguousID(prefix, len(matches))
	}
}

// State returns the current view state
func (s *Store) State() views.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Visible returns the tasks of the active smart list that pass the filter
func (s *Store) Visible() []backend.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return views.VisibleTasks(backend.CloneTasks(s.tasks), s.state, s.now())
}

// Timeline groups the visible tasks into timeline buckets
func (s *Store) Timeline() views.Timeline {
	return views.GroupForTimeline(s.Visible(), s.now())
}

// Calendar buckets the uncompleted tasks passing the filter by due date
func (s *Store) Calendar(unit views.Unit) []views.CalendarBucket {
	s.mu.Lock()
	tasks := views.StatsTasks(backend.CloneTasks(s.tasks), s.state.Filter)
	s.mu.Unlock()
	return views.BucketByUnit(tasks, unit)
}

// Trend counts completions in the trailing weekly windows
func (s *Store) Trend(weeks int) []views.TrendWindow {
	return views.CompletionTrend(s.Tasks(), s.now(), weeks)
}

// Summary counts completions this week, this month and in total
func (s *Store) Summary() views.Summary {
	return views.CompletionSummary(s.Tasks(), s.now())
}

// Counts returns the per smart list totals
func (s *Store) Counts() views.Counts {
	return views.CountTasks(s.Tasks(), s.now())
}

// FindConflict returns the first short task overlapping the window, or nil.
// excludeID is the task being edited, if any.
func (s *Store) FindConflict(startDate, dueDate, excludeID string) *backend.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conflict.Find(conflict.Candidate{
		StartDate: startDate,
		DueDate:   dueDate,
		ExcludeID: excludeID,
	}, s.tasks)
}
