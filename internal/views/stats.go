package views

import (
	"fmt"
	"sort"
	"time"

	"taskline/backend"
	"taskline/internal/datetime"
)

// DefaultTrendWeeks is the number of weekly windows in the completion trend
const DefaultTrendWeeks = 6

// StatsTasks selects the tasks shown in calendar statistics: uncompleted tasks
// with a valid due date that pass the filter. A status filter of ALL means
// "every status except COMPLETED".
func StatsTasks(tasks []backend.Task, f Filter) []backend.Task {
	var result []backend.Task
	for i := range tasks {
		t := &tasks[i]
		if t.IsCompleted() {
			continue
		}
		if _, ok := datetime.Parse(t.DueDate); !ok {
			continue
		}
		if matchesFilter(t, f) {
			result = append(result, *t)
		}
	}
	return result
}

// BucketByUnit groups uncompleted tasks by the day, week or month containing
// their due date. Buckets are sorted by start ascending; tasks inside a bucket
// keep their input order. Completed tasks and tasks whose due date does not
// parse are left out.
func BucketByUnit(tasks []backend.Task, unit Unit) []CalendarBucket {
	index := make(map[string]int)
	var buckets []CalendarBucket

	for _, t := range tasks {
		if t.IsCompleted() {
			continue
		}
		due, ok := datetime.Parse(t.DueDate)
		if !ok {
			continue
		}
		label, start := bucketInfo(due, unit)
		i, exists := index[label]
		if !exists {
			i = len(buckets)
			index[label] = i
			buckets = append(buckets, CalendarBucket{Label: label, Start: start})
		}
		buckets[i].Tasks = append(buckets[i].Tasks, t)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})
	return buckets
}

// bucketInfo returns the label and start of the bucket containing t
func bucketInfo(t time.Time, unit Unit) (string, time.Time) {
	switch unit {
	case UnitMonth:
		start := datetime.StartOfMonth(t)
		return start.Format("2006-01"), start
	case UnitWeek:
		start := datetime.StartOfWeek(t)
		year, week := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), start
	default:
		start := datetime.StartOfDay(t)
		return start.Format(DefaultDateFormat), start
	}
}

// CompletionTime returns when a completed task was finished: UpdatedAt,
// falling back to DueDate and then StartDate. ok is false when none is valid.
func CompletionTime(t *backend.Task) (time.Time, bool) {
	if !t.UpdatedAt.IsZero() {
		return datetime.Parse(t.UpdatedAt)
	}
	if due, ok := datetime.Parse(t.DueDate); ok {
		return due, true
	}
	return datetime.Parse(t.StartDate)
}

// completionTimes collects the completion instants of completed tasks.
// Tasks without a usable timestamp are excluded.
func completionTimes(tasks []backend.Task) []time.Time {
	var times []time.Time
	for i := range tasks {
		if !tasks[i].IsCompleted() {
			continue
		}
		if at, ok := CompletionTime(&tasks[i]); ok {
			times = append(times, at)
		}
	}
	return times
}

// CompletionTrend counts completed tasks in the trailing weekly windows ending
// with the current week, oldest first. Windows start on Monday at midnight and
// are labelled M/DD.
func CompletionTrend(tasks []backend.Task, now time.Time, weeks int) []TrendWindow {
	if weeks <= 0 {
		weeks = DefaultTrendWeeks
	}
	times := completionTimes(tasks)
	current := datetime.StartOfWeek(now)

	windows := make([]TrendWindow, 0, weeks)
	for i := weeks - 1; i >= 0; i-- {
		start := current.AddDate(0, 0, -7*i)
		end := start.AddDate(0, 0, 7)
		count := 0
		for _, at := range times {
			if !at.Before(start) && at.Before(end) {
				count++
			}
		}
		windows = append(windows, TrendWindow{
			Label: fmt.Sprintf("%d/%02d", int(start.Month()), start.Day()),
			Start: start,
			Count: count,
		})
	}
	return windows
}

// CompletionSummary counts completed tasks finished this week, this month and
// in total
func CompletionSummary(tasks []backend.Task, now time.Time) Summary {
	weekStart := datetime.StartOfWeek(now)
	monthStart := datetime.StartOfMonth(now)

	var s Summary
	for _, at := range completionTimes(tasks) {
		s.Total++
		if !at.Before(weekStart) {
			s.ThisWeek++
		}
		if !at.Before(monthStart) {
			s.ThisMonth++
		}
	}
	return s
}

// CountTasks computes the smart list totals at now
func CountTasks(tasks []backend.Task, now time.Time) Counts {
	c := Counts{All: len(tasks)}
	for i := range tasks {
		t := &tasks[i]
		if InSmartList(t, SmartListToday, now) {
			c.Today++
		}
		if InSmartList(t, SmartListUpcoming, now) {
			c.Upcoming++
		}
		if !t.IsCompleted() {
			c.Pending++
		}
	}
	return c
}
