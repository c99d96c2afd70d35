package views

import (
	"math"
	"time"

	"taskline/backend"
	"taskline/internal/datetime"
)

const day = 24 * time.Hour

// GroupForTimeline partitions tasks into the timeline buckets at now.
// Order inside each bucket follows the input order. The first matching rule
// wins:
//
//	COMPLETED                          completed
//	due < now                          overdue
//	start < now <= due                 active
//	due on the same day as now         today
//	due on the day after now           tomorrow
//	ceil((due - now) / 1 day) <= 7     thisWeek
//	otherwise                          future
//
// A task whose due date does not parse goes to future. A task whose start date
// does not parse skips the active rule.
func GroupForTimeline(tasks []backend.Task, now time.Time) Timeline {
	var tl Timeline
	for _, t := range tasks {
		switch Classify(&t, now) {
		case BucketCompleted:
			tl.Completed = append(tl.Completed, t)
		case BucketOverdue:
			tl.Overdue = append(tl.Overdue, t)
		case BucketActive:
			tl.Active = append(tl.Active, t)
		case BucketToday:
			tl.Today = append(tl.Today, t)
		case BucketTomorrow:
			tl.Tomorrow = append(tl.Tomorrow, t)
		case BucketThisWeek:
			tl.ThisWeek = append(tl.ThisWeek, t)
		default:
			tl.Future = append(tl.Future, t)
		}
	}
	return tl
}

// Classify returns the timeline bucket of a single task at now
func Classify(t *backend.Task, now time.Time) BucketName {
	if t.IsCompleted() {
		return BucketCompleted
	}
	due, ok := datetime.Parse(t.DueDate)
	if !ok {
		return BucketFuture
	}
	if due.Before(now) {
		return BucketOverdue
	}
	if start, ok := datetime.Parse(t.StartDate); ok && start.Before(now) {
		return BucketActive
	}
	if datetime.SameDay(due, now) {
		return BucketToday
	}
	if datetime.SameDay(due, now.AddDate(0, 0, 1)) {
		return BucketTomorrow
	}
	if math.Ceil(float64(due.Sub(now))/float64(day)) <= 7 {
		return BucketThisWeek
	}
	return BucketFuture
}
