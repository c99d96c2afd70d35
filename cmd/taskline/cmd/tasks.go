package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskline/backend"
	"taskline/internal/cli/prompt"
	"taskline/internal/conflict"
	"taskline/internal/datetime"
	"taskline/internal/lifecycle"
	"taskline/internal/store"
	"taskline/internal/utils"
	"taskline/internal/views"
)

// Clock used when a date flag carries no time of day
const (
	defaultStartClock = "09:00"
	defaultDueClock   = "17:00"
)

// defaultTrendWeeks is the number of weekly windows shown by trend
const defaultTrendWeeks = 6

// =============================================================================
// JSON Types
// =============================================================================

type subTaskJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

type taskJSON struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Status       string        `json:"status"`
	Priority     string        `json:"priority"`
	StartDate    string        `json:"startDate,omitempty"`
	DueDate      string        `json:"dueDate,omitempty"`
	DurationType string        `json:"durationType,omitempty"`
	Progress     float64       `json:"progress"`
	SubTasks     []subTaskJSON `json:"subTasks,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
}

type bucketJSON struct {
	Name  string     `json:"name"`
	Title string     `json:"title"`
	Tasks []taskJSON `json:"tasks"`
}

type listTasksResponse struct {
	View    string       `json:"view"`
	Buckets []bucketJSON `json:"buckets"`
	Count   int          `json:"count"`
	Result  string       `json:"result"`
}

type actionResponse struct {
	Action  string    `json:"action"`
	Task    *taskJSON `json:"task,omitempty"`
	Warning string    `json:"warning,omitempty"`
	Result  string    `json:"result"`
}

type calendarBucketJSON struct {
	Label string     `json:"label"`
	Start string     `json:"start"`
	Tasks []taskJSON `json:"tasks"`
}

type statsResponse struct {
	Unit    string               `json:"unit"`
	Buckets []calendarBucketJSON `json:"buckets"`
	Counts  views.Counts         `json:"counts"`
	Result  string               `json:"result"`
}

type trendResponse struct {
	Summary views.Summary       `json:"summary"`
	Windows []views.TrendWindow `json:"windows"`
	Result  string              `json:"result"`
}

// taskToJSON converts a backend.Task to taskJSON
func taskToJSON(t *backend.Task, now time.Time) taskJSON {
	result := taskJSON{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       string(t.Status),
		Priority:     string(t.Priority),
		StartDate:    t.StartDate,
		DueDate:      t.DueDate,
		DurationType: string(t.DurationType),
		Progress:     lifecycle.Progress(t, now),
		Tags:         t.Tags,
	}
	for _, st := range t.SubTasks {
		result.SubTasks = append(result.SubTasks, subTaskJSON{
			ID:        st.ID,
			Title:     st.Title,
			Completed: st.Completed,
			StartTime: st.StartTime,
			EndTime:   st.EndTime,
		})
	}
	return result
}

func tasksToJSON(tasks []backend.Task, now time.Time) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for i := range tasks {
		out = append(out, taskToJSON(&tasks[i], now))
	}
	return out
}

// outputAction reports the outcome of a mutation
func (a *app) outputAction(action, verb string, task *backend.Task, warning string) error {
	if a.json {
		response := actionResponse{Action: action, Warning: warning, Result: ResultActionCompleted}
		if task != nil {
			tj := taskToJSON(task, a.store.Now())
			response.Task = &tj
		}
		return writeJSON(a.stdout, response)
	}

	if warning != "" {
		_, _ = fmt.Fprintf(a.stdout, "Warning: %s\n", warning)
	}
	if task != nil {
		_, _ = fmt.Fprintf(a.stdout, "%s task: %s (%s)\n", verb, task.Title, task.ID)
	} else {
		_, _ = fmt.Fprintf(a.stdout, "%s task\n", verb)
	}
	a.result(ResultActionCompleted)
	return nil
}

// =============================================================================
// list
// =============================================================================

func newListCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show tasks on the timeline",
		Long:  "Show the tasks of a smart list grouped into timeline buckets (overdue, active, today, tomorrow, this week, future, completed).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, stdout, cfg, func(a *app) error {
				if err := applyListFlags(cmd, a.store); err != nil {
					return err
				}
				return doList(a)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("view", "", "Smart list: ALL, TODAY or UPCOMING")
	cmd.Flags().StringP("status", "s", "", "Filter by status (TODO, IN_PROGRESS, COMPLETED, ALL)")
	cmd.Flags().StringP("priority", "p", "", "Filter by priority (LOW, MEDIUM, HIGH, URGENT, ALL)")
	cmd.Flags().String("search", "", "Case-insensitive title search")
	cmd.Flags().String("sort", "", "Sort by dueDate, priority or createdAt")
	cmd.Flags().String("order", "", "Sort order: asc or desc")
	return cmd
}

// applyListFlags turns list flags into view state changes
func applyListFlags(cmd *cobra.Command, st *store.Store) error {
	if cmd.Flags().Changed("view") {
		value, _ := cmd.Flags().GetString("view")
		view, ok := views.ParseSmartList(value)
		if !ok {
			return fmt.Errorf("invalid view %q (valid: ALL, TODAY, UPCOMING)", value)
		}
		st.SetActiveView(view)
	}

	var patch views.FilterPatch
	if cmd.Flags().Changed("status") {
		value, _ := cmd.Flags().GetString("status")
		status, err := parseStatusFilter(value)
		if err != nil {
			return err
		}
		patch.Status = &status
	}
	if cmd.Flags().Changed("priority") {
		value, _ := cmd.Flags().GetString("priority")
		priority, err := parsePriorityFilter(value)
		if err != nil {
			return err
		}
		patch.Priority = &priority
	}
	if cmd.Flags().Changed("search") {
		value, _ := cmd.Flags().GetString("search")
		patch.Search = &value
	}
	st.SetFilter(patch)

	var sortPatch views.SortPatch
	if cmd.Flags().Changed("sort") {
		value, _ := cmd.Flags().GetString("sort")
		field, err := parseSortField(value)
		if err != nil {
			return err
		}
		sortPatch.By = &field
	}
	if cmd.Flags().Changed("order") {
		value, _ := cmd.Flags().GetString("order")
		order := views.SortOrder(strings.ToLower(strings.TrimSpace(value)))
		if order != views.OrderAsc && order != views.OrderDesc {
			return fmt.Errorf("invalid sort order %q (valid: asc, desc)", value)
		}
		sortPatch.Order = &order
	}
	st.SetSort(sortPatch)
	return nil
}

func parseStatusFilter(value string) (string, error) {
	if strings.EqualFold(strings.TrimSpace(value), views.All) {
		return views.All, nil
	}
	status, ok := backend.ParseStatus(value)
	if !ok {
		return "", utils.ErrInvalidStatus(value, []string{"TODO", "IN_PROGRESS", "COMPLETED", "ARCHIVED", views.All})
	}
	return string(status), nil
}

func parsePriorityFilter(value string) (string, error) {
	if strings.EqualFold(strings.TrimSpace(value), views.All) {
		return views.All, nil
	}
	priority, ok := backend.ParsePriority(value)
	if !ok {
		return "", utils.ErrInvalidPriority(value)
	}
	return string(priority), nil
}

func parseSortField(value string) (views.SortField, error) {
	for _, field := range []views.SortField{views.SortByDueDate, views.SortByPriority, views.SortByCreatedAt} {
		if strings.EqualFold(string(field), strings.TrimSpace(value)) {
			return field, nil
		}
	}
	return "", fmt.Errorf("invalid sort field %q (valid: dueDate, priority, createdAt)", value)
}

// doList renders the timeline of the active smart list
func doList(a *app) error {
	tl := a.store.Timeline()
	state := a.store.State()
	now := a.store.Now()

	if a.json {
		response := listTasksResponse{
			View:    string(state.ActiveView),
			Buckets: []bucketJSON{},
			Count:   tl.Len(),
			Result:  ResultInfoOnly,
		}
		for _, name := range views.TimelineOrder {
			response.Buckets = append(response.Buckets, bucketJSON{
				Name:  string(name),
				Title: views.BucketTitle(name),
				Tasks: tasksToJSON(tl.Bucket(name), now),
			})
		}
		return writeJSON(a.stdout, response)
	}

	counts := a.store.Counts()
	_, _ = fmt.Fprintf(a.stdout, "%s  (all %d, today %d, upcoming %d)\n\n",
		state.ActiveView, counts.All, counts.Today, counts.Upcoming)
	views.NewRenderer(a.stdout, now).RenderTimeline(tl)
	if sync := a.store.SyncState(); a.store.IsRemote() && sync.ErrorCount > 0 {
		_, _ = fmt.Fprintf(a.stdout, "\n%d sync error(s), last: %s\n", sync.ErrorCount, sync.LastError)
	}
	a.result(ResultInfoOnly)
	return nil
}

// =============================================================================
// add / update
// =============================================================================

func newAddCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task",
		Long: `Add a time-boxed task.

Dates accept "YYYY-MM-DD HH:mm", "YYYY-MM-DDTHH:mm", a bare date, or a
relative day (today, tomorrow, +3d, +1w) optionally followed by a time.
Sub-tasks are given as "title" or "title@start/end".
Without a title the fields are asked for one by one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, stdout, cfg, func(a *app) error {
				var draft store.Draft
				var err error
				if len(args) == 0 {
					draft, err = a.draftFromPrompt(cmd)
				} else {
					draft, err = draftFromFlags(cmd, args[0], a.store.Now())
				}
				if err != nil {
					return err
				}
				force, _ := cmd.Flags().GetBool("force")
				return doAdd(a, draft, force)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("start", "", "Start date and time (default: now)")
	cmd.Flags().String("due", "", "Due date and time (default: one hour after start)")
	cmd.Flags().StringP("priority", "p", "", "Priority: LOW, MEDIUM, HIGH or URGENT (default MEDIUM)")
	cmd.Flags().StringP("desc", "d", "", "Description")
	cmd.Flags().StringSlice("tag", nil, "Tag (can be repeated or comma-separated)")
	cmd.Flags().StringArray("subtask", nil, "Sub-task as \"title\" or \"title@start/end\" (can be repeated)")
	cmd.Flags().BoolP("force", "f", false, "Save even if the task overlaps another one")
	return cmd
}

func draftFromFlags(cmd *cobra.Command, title string, now time.Time) (store.Draft, error) {
	startFlag, _ := cmd.Flags().GetString("start")
	dueFlag, _ := cmd.Flags().GetString("due")
	priorityFlag, _ := cmd.Flags().GetString("priority")
	desc, _ := cmd.Flags().GetString("desc")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	subFlags, _ := cmd.Flags().GetStringArray("subtask")

	start, err := utils.ParseDateTimeFlag(startFlag, defaultStartClock, now)
	if err != nil {
		return store.Draft{}, err
	}
	if start == "" {
		start = datetime.Canonical(now)
	}
	due, err := utils.ParseDateTimeFlag(dueFlag, defaultDueClock, now)
	if err != nil {
		return store.Draft{}, err
	}
	if due == "" {
		if s, ok := datetime.Parse(start); ok {
			due = datetime.Canonical(s.Add(time.Hour))
		}
	}

	var priority backend.Priority
	if priorityFlag != "" {
		p, ok := backend.ParsePriority(priorityFlag)
		if !ok {
			return store.Draft{}, utils.ErrInvalidPriority(priorityFlag)
		}
		priority = p
	}

	subs := make([]backend.SubTask, 0, len(subFlags))
	for _, raw := range subFlags {
		st, err := parseSubTaskFlag(raw, now)
		if err != nil {
			return store.Draft{}, err
		}
		subs = append(subs, st)
	}

	return store.Draft{
		Title:       title,
		Description: desc,
		Priority:    priority,
		StartDate:   start,
		DueDate:     due,
		SubTasks:    subs,
		Tags:        normalizeTags(tags),
	}, nil
}

// draftFromPrompt asks for the fields of a new task. Sub-tasks still come
// from --subtask.
func (a *app) draftFromPrompt(cmd *cobra.Command) (store.Draft, error) {
	now := a.store.Now()
	adder := &prompt.InteractiveAdder{
		Reader:     a.in,
		Writer:     a.stdout,
		NoPrompt:   a.cfg.NoPrompt || a.json,
		Now:        now,
		StartClock: defaultStartClock,
		DueClock:   defaultDueClock,
	}
	fields, err := adder.Run()
	if errors.Is(err, prompt.ErrNoPromptMode) {
		return store.Draft{}, utils.ErrEmptyTitle()
	}
	if err != nil {
		return store.Draft{}, err
	}

	draft, err := draftFromFlags(cmd, fields.Title, now)
	if err != nil {
		return store.Draft{}, err
	}
	if fields.Description != "" {
		draft.Description = fields.Description
	}
	if fields.Priority != "" {
		draft.Priority = fields.Priority
	}
	if fields.StartDate != "" {
		draft.StartDate = fields.StartDate
		if start, ok := datetime.Parse(fields.StartDate); ok {
			draft.DueDate = datetime.Canonical(start.Add(time.Hour))
		}
	}
	if fields.DueDate != "" {
		draft.DueDate = fields.DueDate
	}
	if len(fields.Tags) > 0 {
		draft.Tags = normalizeTags(fields.Tags)
	}
	return draft, nil
}

// parseSubTaskFlag parses "title" or "title@start/end"
func parseSubTaskFlag(raw string, now time.Time) (backend.SubTask, error) {
	title, window := raw, ""
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		title, window = raw[:i], raw[i+1:]
	}
	title = strings.TrimSpace(title)
	if err := utils.ValidateTitle(title); err != nil {
		return backend.SubTask{}, err
	}

	st := backend.SubTask{Title: title}
	if window == "" {
		return st, nil
	}
	startRaw, endRaw, ok := strings.Cut(window, "/")
	if !ok {
		return backend.SubTask{}, fmt.Errorf("invalid sub-task window %q (expected start/end)", window)
	}
	start, err := utils.ParseDateTimeFlag(startRaw, defaultStartClock, now)
	if err != nil {
		return backend.SubTask{}, err
	}
	end, err := utils.ParseDateTimeFlag(endRaw, defaultDueClock, now)
	if err != nil {
		return backend.SubTask{}, err
	}
	if start != "" && end != "" {
		if err := utils.ValidateDateRange(start, end); err != nil {
			return backend.SubTask{}, err
		}
	}
	st.StartTime, st.EndTime = start, end
	return st, nil
}

func normalizeTags(tags []string) []string {
	var out []string
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// confirmConflict asks before saving a task that overlaps another one. In
// no-prompt mode the task is saved and the overlap reported as a warning.
func (a *app) confirmConflict(start, due, excludeID string, force bool) (warning string, proceed bool) {
	existing := a.store.FindConflict(start, due, excludeID)
	if existing == nil {
		return "", true
	}
	msg := conflict.Message(existing)
	if force || a.cfg.NoPrompt || a.json {
		return msg, true
	}
	return "", utils.PromptYesNoWithReader(fmt.Sprintf("This task %s. Save anyway?", msg), a.in, a.stdout)
}

func doAdd(a *app, draft store.Draft, force bool) error {
	warning, proceed := a.confirmConflict(draft.StartDate, draft.DueDate, "", force)
	if !proceed {
		_, _ = fmt.Fprintln(a.stdout, "Cancelled")
		a.result(ResultInfoOnly)
		return nil
	}

	task, err := a.store.AddTask(draft)
	if err != nil {
		return err
	}
	if err := a.settle(); err != nil {
		return err
	}

	if saved, ok := a.store.Task(a.store.CurrentID(task.ID)); ok {
		task = saved
	}
	return a.outputAction("add", "Created", &task, warning)
}

func newUpdateCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Update a task",
		Long:  "Update fields of a task. The id may be abbreviated to any unique prefix.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, stdout, cfg, func(a *app) error {
				id, err := a.pickTask(args, "update")
				if err != nil {
					return err
				}
				patch, err := patchFromFlags(cmd, a.store.Now())
				if err != nil {
					return err
				}
				force, _ := cmd.Flags().GetBool("force")
				return doUpdate(a, id, patch, force)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("title", "", "New title")
	cmd.Flags().String("start", "", "New start date and time")
	cmd.Flags().String("due", "", "New due date and time")
	cmd.Flags().StringP("priority", "p", "", "New priority")
	cmd.Flags().StringP("desc", "d", "", "New description")
	cmd.Flags().StringSlice("tag", nil, "Replace tags (can be repeated or comma-separated)")
	cmd.Flags().BoolP("force", "f", false, "Save even if the task overlaps another one")
	return cmd
}

func patchFromFlags(cmd *cobra.Command, now time.Time) (store.TaskUpdate, error) {
	var patch store.TaskUpdate
	flags := cmd.Flags()

	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		patch.Title = &v
	}
	if flags.Changed("desc") {
		v, _ := flags.GetString("desc")
		patch.Description = &v
	}
	if flags.Changed("priority") {
		v, _ := flags.GetString("priority")
		p, ok := backend.ParsePriority(v)
		if !ok {
			return patch, utils.ErrInvalidPriority(v)
		}
		patch.Priority = &p
	}
	if flags.Changed("start") {
		v, _ := flags.GetString("start")
		start, err := utils.ParseDateTimeFlag(v, defaultStartClock, now)
		if err != nil {
			return patch, err
		}
		patch.StartDate = &start
	}
	if flags.Changed("due") {
		v, _ := flags.GetString("due")
		due, err := utils.ParseDateTimeFlag(v, defaultDueClock, now)
		if err != nil {
			return patch, err
		}
		patch.DueDate = &due
	}
	if flags.Changed("tag") {
		v, _ := flags.GetStringSlice("tag")
		tags := normalizeTags(v)
		patch.Tags = &tags
	}
	return patch, nil
}

func doUpdate(a *app, id string, patch store.TaskUpdate, force bool) error {
	var warning string
	if patch.StartDate != nil || patch.DueDate != nil {
		current, ok := a.store.Task(id)
		if !ok {
			return utils.ErrTaskNotFound(id)
		}
		start, due := current.StartDate, current.DueDate
		if patch.StartDate != nil {
			start = *patch.StartDate
		}
		if patch.DueDate != nil {
			due = *patch.DueDate
		}
		var proceed bool
		warning, proceed = a.confirmConflict(start, due, id, force)
		if !proceed {
			_, _ = fmt.Fprintln(a.stdout, "Cancelled")
			a.result(ResultInfoOnly)
			return nil
		}
	}

	task, err := a.store.UpdateTask(id, patch)
	if err != nil {
		return err
	}
	if err := a.settle(); err != nil {
		return err
	}
	if saved, ok := a.store.Task(task.ID); ok {
		task = saved
	}
	return a.outputAction("update", "Updated", &task, warning)
}

// =============================================================================
// done / undone / subtask / delete
// =============================================================================

// newToggleCmd builds 'done' (complete=true) or 'undone'. Both flip the task
// and do nothing when it is already in the requested state.
func newToggleCmd(stdout io.Writer, cfg *Config, complete bool) *cobra.Command {
	use, short, verb, action := "done [id]", "Mark a task completed", "Completed", "complete"
	if !complete {
		use, short, verb, action = "undone [id]", "Reopen a completed task", "Reopened", "reopen"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, stdout, cfg, func(a *app) error {
				id, err := a.pickTask(args, action)
				if err != nil {
					return err
				}
				current, _ := a.store.Task(id)
				if current.IsCompleted() == complete {
					_, _ = fmt.Fprintf(a.stdout, "Task %s is already %s\n", current.Title, strings.ToLower(string(current.Status)))
					a.result(ResultInfoOnly)
					return nil
				}

				task, err := a.store.ToggleCompleted(id)
				if err != nil {
					return err
				}
				if err := a.settle(); err != nil {
					return err
				}
				return a.outputAction(action, verb, &task, "")
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newSubTaskCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtask [id] [subtask-id]",
		Short: "Check or uncheck a sub-task",
		Long:  "Check (--done) or uncheck (--undone) a sub-task. Checking the last open sub-task completes the task.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, _ := cmd.Flags().GetBool("done")
			undone, _ := cmd.Flags().GetBool("undone")
			if done == undone {
				return fmt.Errorf("exactly one of --done or --undone is required")
			}

			return withApp(cmd, stdout, cfg, func(a *app) error {
				id, err := a.resolveTask(args[0])
				if err != nil {
					return err
				}
				subID, err := resolveSubTask(a.store, id, args[1])
				if err != nil {
					return err
				}
				task, err := a.store.SetSubTaskCompleted(id, subID, done)
				if err != nil {
					return err
				}
				if err := a.settle(); err != nil {
					return err
				}
				return a.outputAction("subtask", "Updated", &task, "")
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Bool("done", false, "Mark the sub-task completed")
	cmd.Flags().Bool("undone", false, "Mark the sub-task open")
	return cmd
}

// resolveSubTask accepts a sub-task id, a unique id prefix or a 1-based index
func resolveSubTask(st *store.Store, taskID, ref string) (string, error) {
	task, ok := st.Task(taskID)
	if !ok {
		return "", utils.ErrTaskNotFound(taskID)
	}

	var matches []string
	for i, sub := range task.SubTasks {
		if sub.ID == ref {
			return sub.ID, nil
		}
		if fmt.Sprint(i+1) == ref {
			return sub.ID, nil
		}
		if strings.HasPrefix(sub.ID, ref) {
			matches = append(matches, sub.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", utils.ErrSubTaskNotFound(taskID, ref)
	case 1:
		return matches[0], nil
	default:
		return "", utils.ErrAmbiguousID(ref, len(matches))
	}
}

func newDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, stdout, cfg, func(a *app) error {
				id, err := a.pickTask(args, "delete")
				if err != nil {
					return err
				}
				task, _ := a.store.Task(id)

				if !a.cfg.NoPrompt && !a.json {
					if !utils.PromptYesNoWithReader(fmt.Sprintf("Delete task %q?", task.Title), a.in, a.stdout) {
						_, _ = fmt.Fprintln(a.stdout, "Cancelled")
						return nil
					}
				}

				if err := a.store.DeleteTask(id); err != nil {
					return err
				}
				if err := a.settle(); err != nil {
					return err
				}
				return a.outputAction("delete", "Deleted", &task, "")
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// stats / trend
// =============================================================================

func newStatsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pending tasks grouped by due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, _ := cmd.Flags().GetString("unit")
			unit, ok := views.ParseUnit(value)
			if !ok {
				return fmt.Errorf("invalid unit %q (valid: day, week, month)", value)
			}
			return withApp(cmd, stdout, cfg, func(a *app) error {
				return doStats(a, unit)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("unit", string(views.UnitWeek), "Bucket size: day, week or month")
	return cmd
}

func doStats(a *app, unit views.Unit) error {
	buckets := a.store.Calendar(unit)
	counts := a.store.Counts()
	now := a.store.Now()

	if a.json {
		response := statsResponse{
			Unit:    string(unit),
			Buckets: []calendarBucketJSON{},
			Counts:  counts,
			Result:  ResultInfoOnly,
		}
		for _, b := range buckets {
			response.Buckets = append(response.Buckets, calendarBucketJSON{
				Label: b.Label,
				Start: datetime.Canonical(b.Start),
				Tasks: tasksToJSON(b.Tasks, now),
			})
		}
		return writeJSON(a.stdout, response)
	}

	_, _ = fmt.Fprintf(a.stdout, "%d pending of %d tasks\n\n", counts.Pending, counts.All)
	views.NewRenderer(a.stdout, now).RenderBuckets(buckets)
	a.result(ResultInfoOnly)
	return nil
}

func newTrendCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show completed tasks per week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			weeks, _ := cmd.Flags().GetInt("weeks")
			if weeks < 1 {
				return fmt.Errorf("--weeks must be at least 1, got %d", weeks)
			}
			return withApp(cmd, stdout, cfg, func(a *app) error {
				summary := a.store.Summary()
				windows := a.store.Trend(weeks)
				if a.json {
					return writeJSON(a.stdout, trendResponse{Summary: summary, Windows: windows, Result: ResultInfoOnly})
				}
				views.NewRenderer(a.stdout, a.store.Now()).RenderTrend(summary, windows)
				a.result(ResultInfoOnly)
				return nil
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Int("weeks", defaultTrendWeeks, "Number of weekly windows")
	return cmd
}
