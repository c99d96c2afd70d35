package views

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"taskline/backend"
	"taskline/internal/lifecycle"
)

// bucketTitles are the headings printed above each timeline bucket
var bucketTitles = map[BucketName]string{
	BucketOverdue:   "Overdue",
	BucketActive:    "In progress",
	BucketToday:     "Today",
	BucketTomorrow:  "Tomorrow",
	BucketThisWeek:  "This week",
	BucketFuture:    "Later",
	BucketCompleted: "Completed",
}

// BucketTitle returns the display heading of a timeline bucket
func BucketTitle(name BucketName) string {
	if title, ok := bucketTitles[name]; ok {
		return title
	}
	return string(name)
}

// Renderer writes task views as plain or styled text
type Renderer struct {
	writer io.Writer
	now    time.Time

	headerStyle  lipgloss.Style
	overdueStyle lipgloss.Style
	doneStyle    lipgloss.Style
	dimStyle     lipgloss.Style
}

// NewRenderer creates a new view renderer evaluating progress at now
func NewRenderer(writer io.Writer, now time.Time) *Renderer {
	return &Renderer{
		writer: writer,
		now:    now,
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")),
		overdueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		doneStyle: lipgloss.NewStyle().
			Strikethrough(true).
			Foreground(lipgloss.Color("240")),
		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

// RenderTimeline renders every non-empty bucket in timeline order
func (r *Renderer) RenderTimeline(tl Timeline) {
	if tl.Len() == 0 {
		_, _ = fmt.Fprintln(r.writer, "No tasks found")
		return
	}
	for _, name := range TimelineOrder {
		tasks := tl.Bucket(name)
		if len(tasks) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(r.writer, "%s (%d)\n", r.headerStyle.Render(BucketTitle(name)), len(tasks))
		for i := range tasks {
			_, _ = fmt.Fprintf(r.writer, "  %s\n", r.FormatTask(&tasks[i]))
			r.renderSubTasks(&tasks[i])
		}
	}
}

func (r *Renderer) renderSubTasks(t *backend.Task) {
	for i, st := range t.SubTasks {
		treeChar := "├─ "
		if i == len(t.SubTasks)-1 {
			treeChar = "└─ "
		}
		mark := "[ ]"
		if st.Completed {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %s", mark, st.Title)
		if st.StartTime != "" || st.EndTime != "" {
			line += r.dimStyle.Render(fmt.Sprintf(" (%s - %s)", st.StartTime, st.EndTime))
		}
		_, _ = fmt.Fprintf(r.writer, "    %s%s\n", treeChar, line)
	}
}

// FormatTask formats a task as a single display line
func (r *Renderer) FormatTask(t *backend.Task) string {
	var parts []string
	parts = append(parts, formatStatus(t.Status))
	if p := formatPriority(t.Priority); p != "" {
		parts = append(parts, p)
	}

	title := t.Title
	switch {
	case t.IsCompleted():
		title = r.doneStyle.Render(title)
	case lifecycle.IsOverdue(t, r.now):
		title = r.overdueStyle.Render(title)
	}
	parts = append(parts, title)

	if t.StartDate != "" || t.DueDate != "" {
		parts = append(parts, r.dimStyle.Render(fmt.Sprintf("%s -> %s", formatDate(t.StartDate), formatDate(t.DueDate))))
	}
	if !t.IsCompleted() {
		parts = append(parts, formatProgress(lifecycle.Progress(t, r.now)))
	}
	if lifecycle.IsDueSoon(t, r.now) {
		parts = append(parts, "!due soon")
	}
	if len(t.Tags) > 0 {
		parts = append(parts, fmt.Sprintf("{%s}", strings.Join(t.Tags, ",")))
	}
	parts = append(parts, r.dimStyle.Render(shortID(t.ID)))
	return strings.Join(parts, " ")
}

// RenderBuckets renders calendar buckets with their task titles
func (r *Renderer) RenderBuckets(buckets []CalendarBucket) {
	if len(buckets) == 0 {
		_, _ = fmt.Fprintln(r.writer, "No pending tasks with a due date")
		return
	}
	for _, b := range buckets {
		_, _ = fmt.Fprintf(r.writer, "%s (%d)\n", r.headerStyle.Render(b.Label), len(b.Tasks))
		for i := range b.Tasks {
			_, _ = fmt.Fprintf(r.writer, "  %s\n", r.FormatTask(&b.Tasks[i]))
		}
	}
}

// RenderTrend renders the completion summary and a bar per weekly window
func (r *Renderer) RenderTrend(summary Summary, windows []TrendWindow) {
	_, _ = fmt.Fprintf(r.writer, "%s %d  %s %d  %s %d\n",
		r.headerStyle.Render("This week"), summary.ThisWeek,
		r.headerStyle.Render("This month"), summary.ThisMonth,
		r.headerStyle.Render("Total"), summary.Total)

	maxCount := 1
	for _, w := range windows {
		if w.Count > maxCount {
			maxCount = w.Count
		}
	}
	const barWidth = 20
	for _, w := range windows {
		bar := strings.Repeat("#", w.Count*barWidth/maxCount)
		_, _ = fmt.Fprintf(r.writer, "%6s | %-*s %d\n", w.Label, barWidth, bar, w.Count)
	}
}

// formatStatus formats a task status for display
func formatStatus(status backend.TaskStatus) string {
	switch status {
	case backend.StatusCompleted:
		return "[DONE]"
	case backend.StatusInProgress:
		return "[IN-PROGRESS]"
	case backend.StatusArchived:
		return "[ARCHIVED]"
	default:
		return "[TODO]"
	}
}

// formatPriority formats a priority for display
func formatPriority(p backend.Priority) string {
	if p == "" {
		return ""
	}
	return fmt.Sprintf("[%s]", p)
}

// formatDate shortens a canonical value for display
func formatDate(value string) string {
	if value == "" {
		return "?"
	}
	return strings.Replace(value, "T", " ", 1)
}

func formatProgress(p float64) string {
	return fmt.Sprintf("%3d%%", int(p*100))
}

// shortID truncates long identifiers such as temporary UUIDs
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
