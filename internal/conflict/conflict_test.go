package conflict

import (
	"strings"
	"testing"

	"taskline/backend"
)

func shortTask(id, start, due string) backend.Task {
	return backend.Task{
		ID:           id,
		Title:        "Task " + id,
		Status:       backend.StatusTodo,
		StartDate:    start,
		DueDate:      due,
		DurationType: backend.DurationShort,
	}
}

func TestFindToleratesShortOverlap(t *testing.T) {
	tasks := []backend.Task{shortTask("a", "2024-06-10T10:00", "2024-06-10T11:00")}

	got := Find(Candidate{StartDate: "2024-06-10T10:45", DueDate: "2024-06-10T12:00"}, tasks)
	if got != nil {
		t.Errorf("15 minute overlap reported conflict with %s", got.ID)
	}
}

func TestFindReportsLongOverlap(t *testing.T) {
	tasks := []backend.Task{shortTask("a", "2024-06-10T10:00", "2024-06-10T11:00")}

	got := Find(Candidate{StartDate: "2024-06-10T10:20", DueDate: "2024-06-10T12:00"}, tasks)
	if got == nil {
		t.Fatal("40 minute overlap not reported")
	}
	if got.ID != "a" {
		t.Errorf("conflict = %s, want a", got.ID)
	}
}

func TestFindExactlyThirtyMinutesIsTolerated(t *testing.T) {
	tasks := []backend.Task{shortTask("a", "2024-06-10T10:00", "2024-06-10T11:00")}

	if got := Find(Candidate{StartDate: "2024-06-10T10:30", DueDate: "2024-06-10T12:00"}, tasks); got != nil {
		t.Errorf("30 minute overlap reported conflict with %s", got.ID)
	}
	if got := Find(Candidate{StartDate: "2024-06-10T10:29", DueDate: "2024-06-10T12:00"}, tasks); got == nil {
		t.Error("31 minute overlap not reported")
	}
}

func TestFindReturnsFirstInCollectionOrder(t *testing.T) {
	tasks := []backend.Task{
		shortTask("first", "2024-06-10T09:00", "2024-06-10T11:00"),
		shortTask("second", "2024-06-10T10:00", "2024-06-10T12:00"),
	}
	got := Find(Candidate{StartDate: "2024-06-10T10:00", DueDate: "2024-06-10T11:00"}, tasks)
	if got == nil || got.ID != "first" {
		t.Fatalf("got %v, want first", got)
	}
}

func TestFindSkips(t *testing.T) {
	candidate := Candidate{StartDate: "2024-06-10T10:00", DueDate: "2024-06-10T11:00"}

	completed := shortTask("done", "2024-06-10T10:00", "2024-06-10T11:00")
	completed.Status = backend.StatusCompleted
	archived := shortTask("old", "2024-06-10T10:00", "2024-06-10T11:00")
	archived.Status = backend.StatusArchived
	long := shortTask("long", "2024-06-09T10:00", "2024-06-12T11:00")
	long.DurationType = backend.DurationLong
	invalid := shortTask("invalid", "", "2024-06-10T11:00")

	tests := []struct {
		name  string
		tasks []backend.Task
		c     Candidate
	}{
		{"completed", []backend.Task{completed}, candidate},
		{"archived", []backend.Task{archived}, candidate},
		{"long existing", []backend.Task{long}, candidate},
		{"invalid existing", []backend.Task{invalid}, candidate},
		{"self", []backend.Task{shortTask("me", "2024-06-10T10:00", "2024-06-10T11:00")},
			Candidate{StartDate: candidate.StartDate, DueDate: candidate.DueDate, ExcludeID: "me"}},
		{"long candidate", []backend.Task{shortTask("a", "2024-06-10T10:00", "2024-06-10T11:00")},
			Candidate{StartDate: "2024-06-10T10:00", DueDate: "2024-06-12T10:00"}},
		{"invalid candidate", []backend.Task{shortTask("a", "2024-06-10T10:00", "2024-06-10T11:00")},
			Candidate{StartDate: "tomorrow", DueDate: "2024-06-10T11:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Find(tt.c, tt.tasks); got != nil {
				t.Errorf("unexpected conflict with %s", got.ID)
			}
		})
	}
}

func TestFindReturnsCopy(t *testing.T) {
	tasks := []backend.Task{shortTask("a", "2024-06-10T10:00", "2024-06-10T11:00")}
	got := Find(Candidate{StartDate: "2024-06-10T10:00", DueDate: "2024-06-10T11:00"}, tasks)
	got.Title = "changed"
	if tasks[0].Title != "Task a" {
		t.Error("Find returned a reference into the collection")
	}
}

func TestMessage(t *testing.T) {
	task := shortTask("a", "2024-06-10T10:00", "2024-06-10T11:00")
	msg := Message(&task)
	if !strings.Contains(msg, "Task a") || !strings.Contains(msg, "30 minutes") {
		t.Errorf("Message = %q", msg)
	}
}
