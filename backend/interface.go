package backend

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task represents a tracked task with its time window and sub-tasks.
// StartDate and DueDate hold canonical date-time strings (YYYY-MM-DDTHH:mm).
type Task struct {
	ID           string
	Title        string
	Description  string
	Priority     Priority
	Status       TaskStatus
	StartDate    string
	DueDate      string
	DurationType DurationType
	SubTasks     []SubTask
	Tags         []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubTask is a checklist item inside a task
type SubTask struct {
	ID        string
	Title     string
	Completed bool
	StartTime string
	EndTime   string
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
	StatusArchived   TaskStatus = "ARCHIVED"
)

// Statuses lists every valid status in display order.
var Statuses = []TaskStatus{StatusTodo, StatusInProgress, StatusCompleted, StatusArchived}

// ParseStatus converts a user supplied status string, accepting DONE as COMPLETED.
func ParseStatus(s string) (TaskStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TODO":
		return StatusTodo, true
	case "IN_PROGRESS", "IN-PROGRESS":
		return StatusInProgress, true
	case "COMPLETED", "DONE":
		return StatusCompleted, true
	case "ARCHIVED":
		return StatusArchived, true
	}
	return "", false
}

// Priority represents task urgency
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Priorities lists every valid priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Rank returns the ordinal of the priority (LOW=1 .. URGENT=4), 0 if unknown.
func (p Priority) Rank() int {
	for i, candidate := range Priorities {
		if candidate == p {
			return i + 1
		}
	}
	return 0
}

// ParsePriority converts a user supplied priority string.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if p.Rank() == 0 {
		return "", false
	}
	return p, true
}

// DurationType classifies a task's time window length
type DurationType string

const (
	DurationShort DurationType = "short"
	DurationLong  DurationType = "long"
)

// IsCompleted reports whether the task is in the COMPLETED state.
func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// AllSubTasksCompleted reports whether the task has at least one sub-task
// and every sub-task is completed.
func (t *Task) AllSubTasksCompleted() bool {
	if len(t.SubTasks) == 0 {
		return false
	}
	for _, st := range t.SubTasks {
		if !st.Completed {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the task so callers can mutate it freely.
func (t Task) Clone() Task {
	if t.SubTasks != nil {
		t.SubTasks = append([]SubTask(nil), t.SubTasks...)
	}
	if t.Tags != nil {
		t.Tags = append([]string(nil), t.Tags...)
	}
	return t
}

// CloneTasks deep-copies a task slice.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}

// TaskAPI defines the remote task service consumed by the store.
// Every call carries the bearer token of the identity that issued it.
type TaskAPI interface {
	ListTasks(ctx context.Context, token string) ([]Task, error)
	CreateTask(ctx context.Context, token string, task *Task) (*Task, error)
	UpdateTask(ctx context.Context, token string, task *Task) (*Task, error)
	DeleteTask(ctx context.Context, token, taskID string) error
}

// LocalStore defines the durable guest-mode persistence.
// LoadTasks reports found=false when nothing has been saved yet.
type LocalStore interface {
	LoadTasks(ctx context.Context) (tasks []Task, found bool, err error)
	SaveTasks(ctx context.Context, tasks []Task) error
	Close() error
}

// FindTask returns the index of the task with the given ID, or -1.
func FindTask(tasks []Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// GenerateID generates a unique identifier using UUID v4.
// This is used for local temporary task ids and sub-task ids.
func GenerateID() string {
	return uuid.New().String()
}
