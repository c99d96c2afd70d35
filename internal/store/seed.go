package store

import (
	"time"

	"taskline/backend"
	"taskline/internal/datetime"
)

// DemoTasks returns the guest demonstration set relative to now: one overdue,
// one active, one short task later today and one in the future.
func DemoTasks(now time.Time) []backend.Task {
	day := 24 * time.Hour
	today := datetime.StartOfDay(now)
	soon := now.Truncate(time.Hour).Add(time.Hour)
	end := soon.Add(time.Hour)
	// near midnight the short task takes the last hour of today
	y, m, d := today.Date()
	if last := time.Date(y, m, d, 23, 59, 0, 0, now.Location()); end.After(last) {
		soon, end = time.Date(y, m, d, 23, 0, 0, 0, now.Location()), last
	}

	task := func(id, title, desc string, p backend.Priority, start, due time.Time, subs ...backend.SubTask) backend.Task {
		return backend.Task{
			ID:          id,
			Title:       title,
			Description: desc,
			Priority:    p,
			Status:      backend.StatusTodo,
			StartDate:   datetime.Canonical(start),
			DueDate:     datetime.Canonical(due),
			SubTasks:    subs,
			Tags:        []string{"demo"},
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	return []backend.Task{
		task("overdue-1", "Submit expense report", "Receipts from the March trip",
			backend.PriorityUrgent, now.Add(-5*day), today.Add(-day)),
		task("active-1", "Write project proposal", "First draft for the team review",
			backend.PriorityHigh, now.Add(-day), now.Add(7*day),
			backend.SubTask{ID: "active-1-1", Title: "Outline", Completed: true},
			backend.SubTask{ID: "active-1-2", Title: "Budget section"},
		),
		task("today-1", "Team sync", "Weekly status meeting",
			backend.PriorityMedium, soon, end),
		task("future-1", "Plan quarterly goals", "",
			backend.PriorityLow, now.Add(7*day), now.Add(10*day)),
	}
}
