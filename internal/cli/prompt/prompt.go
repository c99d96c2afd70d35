// Package prompt handles the interactive fallbacks of the CLI: picking a task
// when no id is given and collecting fields when add is run without a title.
// Every prompt refuses to run in no-prompt mode.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"taskline/backend"
	"taskline/internal/utils"
)

// Sentinel errors for prompt operations.
var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrNoPromptMode       = errors.New("interactive prompts disabled (--no-prompt / -y)")
	ErrNoTasks            = errors.New("no tasks available")
	ErrNoMatches          = errors.New("no tasks match the filter")
)

// TaskSelector narrows Tasks by a typed title fragment and then by number.
type TaskSelector struct {
	Tasks    []backend.Task
	Prompt   string
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
}

// Run executes the selection. A single candidate, before or after
// filtering, is selected without asking for a number.
func (s *TaskSelector) Run() (*backend.Task, error) {
	if s.NoPrompt {
		return nil, ErrNoPromptMode
	}
	if len(s.Tasks) == 0 {
		return nil, ErrNoTasks
	}
	if len(s.Tasks) == 1 {
		return &s.Tasks[0], nil
	}

	writer := s.Writer
	if writer == nil {
		writer = io.Discard
	}
	scanner := bufio.NewScanner(s.Reader)

	_, _ = fmt.Fprintf(writer, "%s\nFilter (or press Enter to show all): ", s.Prompt)
	if !scanner.Scan() {
		return nil, ErrSelectionCancelled
	}
	filter := strings.ToLower(strings.TrimSpace(scanner.Text()))

	var filtered []backend.Task
	for _, t := range s.Tasks {
		if filter == "" || strings.Contains(strings.ToLower(t.Title), filter) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return nil, ErrNoMatches
	}
	if len(filtered) == 1 {
		_, _ = fmt.Fprintf(writer, "Auto-selected: %s\n", filtered[0].Title)
		return &filtered[0], nil
	}

	for i, t := range filtered {
		_, _ = fmt.Fprintf(writer, "  %d) %s\n", i+1, formatTaskLine(t))
	}
	_, _ = fmt.Fprintf(writer, "Select (0 to cancel): ")
	if !scanner.Scan() {
		return nil, ErrSelectionCancelled
	}

	input := strings.TrimSpace(scanner.Text())
	num, err := strconv.Atoi(input)
	if err != nil {
		return nil, fmt.Errorf("invalid selection: %s", input)
	}
	if num == 0 {
		return nil, ErrSelectionCancelled
	}
	if num < 1 || num > len(filtered) {
		return nil, fmt.Errorf("selection out of range: %d", num)
	}
	return &filtered[num-1], nil
}

// formatTaskLine shows title, status, priority, window and tags
func formatTaskLine(t backend.Task) string {
	meta := []string{string(t.Status)}
	if t.Priority != "" {
		meta = append(meta, string(t.Priority))
	}
	if t.StartDate != "" || t.DueDate != "" {
		meta = append(meta, fmt.Sprintf("%s -> %s", t.StartDate, t.DueDate))
	}
	if len(t.Tags) > 0 {
		meta = append(meta, "tags: "+strings.Join(t.Tags, ","))
	}
	if len(t.SubTasks) > 0 {
		done := 0
		for _, st := range t.SubTasks {
			if st.Completed {
				done++
			}
		}
		meta = append(meta, fmt.Sprintf("%d/%d sub-tasks", done, len(t.SubTasks)))
	}
	return fmt.Sprintf("%s [%s]", t.Title, strings.Join(meta, ", "))
}

// FilterTasksByAction keeps the tasks an action can apply to: open tasks for
// complete, update and delete, completed tasks for reopen. showAll disables
// the filter.
func FilterTasksByAction(tasks []backend.Task, action string, showAll bool) []backend.Task {
	var keep func(t *backend.Task) bool
	switch {
	case showAll:
	case action == "complete" || action == "update" || action == "delete":
		keep = func(t *backend.Task) bool { return !t.IsCompleted() }
	case action == "reopen":
		keep = func(t *backend.Task) bool { return t.IsCompleted() }
	}

	result := make([]backend.Task, 0, len(tasks))
	for i := range tasks {
		if keep == nil || keep(&tasks[i]) {
			result = append(result, tasks[i])
		}
	}
	return result
}

// AddFields holds the values collected by InteractiveAdder. Dates are
// canonical; empty optional fields are left blank.
type AddFields struct {
	Title       string
	Description string
	Priority    backend.Priority
	StartDate   string
	DueDate     string
	Tags        []string
}

// InteractiveAdder prompts for each field of a new task in turn. Invalid
// priorities and dates are asked again.
type InteractiveAdder struct {
	Reader   io.Reader
	Writer   io.Writer
	NoPrompt bool
	Now      time.Time

	// clocks used when a date is typed without a time
	StartClock string
	DueClock   string
}

// Run executes the interactive add mode
func (a *InteractiveAdder) Run() (*AddFields, error) {
	if a.NoPrompt {
		return nil, ErrNoPromptMode
	}

	writer := a.Writer
	if writer == nil {
		writer = io.Discard
	}
	now := a.Now
	if now.IsZero() {
		now = time.Now()
	}

	scanner := bufio.NewScanner(a.Reader)
	fields := &AddFields{}

	for {
		_, _ = fmt.Fprint(writer, "Title (required): ")
		if !scanner.Scan() {
			return nil, errors.New("no input for title")
		}
		fields.Title = strings.TrimSpace(scanner.Text())
		if fields.Title != "" {
			break
		}
		_, _ = fmt.Fprintln(writer, "Title cannot be empty.")
	}

	_, _ = fmt.Fprint(writer, "Description (optional): ")
	if scanner.Scan() {
		fields.Description = strings.TrimSpace(scanner.Text())
	}

	for {
		_, _ = fmt.Fprint(writer, "Priority (LOW, MEDIUM, HIGH, URGENT, optional): ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			break
		}
		p, ok := backend.ParsePriority(input)
		if !ok {
			_, _ = fmt.Fprintln(writer, "Invalid priority: must be LOW, MEDIUM, HIGH or URGENT")
			continue
		}
		fields.Priority = p
		break
	}

	fields.StartDate = a.readDate(scanner, writer, "Start", a.StartClock, now)
	fields.DueDate = a.readDate(scanner, writer, "Due", a.DueClock, now)

	_, _ = fmt.Fprint(writer, "Tags (comma-separated, optional): ")
	if scanner.Scan() {
		for _, tag := range strings.Split(scanner.Text(), ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				fields.Tags = append(fields.Tags, tag)
			}
		}
	}

	return fields, nil
}

// readDate asks until the input is empty or a valid date
func (a *InteractiveAdder) readDate(scanner *bufio.Scanner, writer io.Writer, label, clock string, now time.Time) string {
	for {
		_, _ = fmt.Fprintf(writer, "%s (YYYY-MM-DD HH:mm, today, tomorrow 14:00, +Nd, optional): ", label)
		if !scanner.Scan() {
			return ""
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			return ""
		}
		value, err := utils.ParseDateTimeFlag(input, clock, now)
		if err != nil {
			_, _ = fmt.Fprintf(writer, "Invalid date: %s. Use YYYY-MM-DD HH:mm, today, tomorrow, +Nd, +Nw, +Nm\n", input)
			continue
		}
		return value
	}
}
