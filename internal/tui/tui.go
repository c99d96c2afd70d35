// Package tui provides the interactive timeline view over the task store.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"taskline/backend"
	"taskline/internal/conflict"
	"taskline/internal/store"
	"taskline/internal/views"
)

// TaskStore is the part of the store the TUI drives
type TaskStore interface {
	Now() time.Time
	State() views.State
	Timeline() views.Timeline
	Counts() views.Counts
	SyncState() store.SyncState
	FindConflict(startDate, dueDate, excludeID string) *backend.Task

	AddTask(draft store.Draft) (backend.Task, error)
	UpdateTask(id string, patch store.TaskUpdate) (backend.Task, error)
	ToggleCompleted(id string) (backend.Task, error)
	DeleteTask(id string) error
	SetFilter(patch views.FilterPatch)
	SetActiveView(view views.SmartList)
	Subscribe(fn func()) func()
}

// Focus indicates which pane has focus
type Focus int

const (
	FocusLists Focus = iota
	FocusTasks
)

// Mode indicates the current input mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAdd
	ModeEdit
	ModeFilter
	ModeHelp
	ModeConfirmDelete
	ModeConfirmConflict
)

// addStep is the field being typed in the add dialog
type addStep int

const (
	stepTitle addStep = iota
	stepStart
	stepDue
)

var addPrompts = map[addStep]string{
	stepTitle: "Title",
	stepStart: "Start (YYYY-MM-DD HH:mm)",
	stepDue:   "Due (YYYY-MM-DD HH:mm)",
}

// row is one selectable line of the timeline pane
type row struct {
	bucket views.BucketName
	task   backend.Task
}

// Model represents the TUI state
type Model struct {
	store       TaskStore
	ctx         context.Context
	changes     chan struct{}
	unsubscribe func()

	// Data, refreshed from the store
	state    views.State
	timeline views.Timeline
	counts   views.Counts
	rows     []row
	sync     store.SyncState

	// Selection
	listCursor int
	taskCursor int
	focus      Focus

	// Mode and input
	mode      Mode
	textInput textinput.Model
	step      addStep
	draft     store.Draft
	conflict  *backend.Task
	status    string

	// UI dimensions
	width  int
	height int

	// Styles
	listPaneStyle  lipgloss.Style
	taskPaneStyle  lipgloss.Style
	selectedStyle  lipgloss.Style
	headerStyle    lipgloss.Style
	helpStyle      lipgloss.Style
	dialogStyle    lipgloss.Style
	statusBarStyle lipgloss.Style
	errorStyle     lipgloss.Style
}

// Message types
type storeChangedMsg struct{}

type tickMsg time.Time

// refreshInterval re-renders progress even when nothing changes
const refreshInterval = time.Minute

// New creates a TUI model subscribed to s. Call Close when done.
func New(ctx context.Context, s TaskStore) *Model {
	ti := textinput.New()
	ti.Placeholder = "Enter text..."
	ti.CharLimit = 256

	m := &Model{
		store:     s,
		ctx:       ctx,
		changes:   make(chan struct{}, 1),
		textInput: ti,
		focus:     FocusTasks,
		mode:      ModeNormal,
		listPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		taskPaneStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		selectedStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")),
		helpStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		dialogStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		statusBarStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
	}
	m.unsubscribe = s.Subscribe(func() {
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	m.refresh()
	return m
}

// Close removes the store subscription
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), tick())
}

// waitForChange delivers one store notification as a message
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return storeChangedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh reads the derived views from the store
func (m *Model) refresh() {
	m.state = m.store.State()
	m.timeline = m.store.Timeline()
	m.counts = m.store.Counts()
	m.sync = m.store.SyncState()

	m.rows = m.rows[:0]
	for _, name := range views.TimelineOrder {
		for _, t := range m.timeline.Bucket(name) {
			m.rows = append(m.rows, row{bucket: name, task: t})
		}
	}
	if m.taskCursor >= len(m.rows) {
		m.taskCursor = len(m.rows) - 1
	}
	if m.taskCursor < 0 {
		m.taskCursor = 0
	}
	for i, l := range views.SmartLists {
		if l == m.state.ActiveView {
			m.listCursor = i
		}
	}
}

func (m *Model) selected() (backend.Task, bool) {
	if m.taskCursor < 0 || m.taskCursor >= len(m.rows) {
		return backend.Task{}, false
	}
	return m.rows[m.taskCursor].task, true
}

// report shows the outcome of an intent in the status bar
func (m *Model) report(err error, success string) {
	if err != nil {
		m.status = m.errorStyle.Render(firstLine(err.Error()))
		return
	}
	m.status = success
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case storeChangedMsg:
		m.refresh()
		return m, m.waitForChange()

	case tickMsg:
		m.refresh()
		return m, tick()

	case tea.KeyMsg:
		switch m.mode {
		case ModeAdd:
			return m.handleAddMode(msg)
		case ModeEdit:
			return m.handleEditMode(msg)
		case ModeFilter:
			return m.handleFilterMode(msg)
		case ModeHelp:
			return m.handleHelpMode(msg)
		case ModeConfirmDelete:
			return m.handleConfirmDeleteMode(msg)
		case ModeConfirmConflict:
			return m.handleConfirmConflictMode(msg)
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "tab":
			if m.focus == FocusLists {
				m.focus = FocusTasks
			} else {
				m.focus = FocusLists
			}
			return m, nil

		case "up", "k":
			if m.focus == FocusLists {
				if m.listCursor > 0 {
					m.listCursor--
					m.store.SetActiveView(views.SmartLists[m.listCursor])
					m.refresh()
				}
			} else if m.taskCursor > 0 {
				m.taskCursor--
			}
			return m, nil

		case "down", "j":
			if m.focus == FocusLists {
				if m.listCursor < len(views.SmartLists)-1 {
					m.listCursor++
					m.store.SetActiveView(views.SmartLists[m.listCursor])
					m.refresh()
				}
			} else if m.taskCursor < len(m.rows)-1 {
				m.taskCursor++
			}
			return m, nil

		case "a":
			m.mode = ModeAdd
			m.step = stepTitle
			m.draft = store.Draft{}
			m.startInput("", "New task title...")
			return m, textinput.Blink

		case "e":
			if task, ok := m.selected(); ok {
				m.mode = ModeEdit
				m.startInput(task.Title, "")
				return m, textinput.Blink
			}
			return m, nil

		case "c", " ":
			if task, ok := m.selected(); ok {
				updated, err := m.store.ToggleCompleted(task.ID)
				m.report(err, fmt.Sprintf("%s is now %s", updated.Title, updated.Status))
				m.refresh()
			}
			return m, nil

		case "d":
			if _, ok := m.selected(); ok {
				m.mode = ModeConfirmDelete
			}
			return m, nil

		case "p":
			m.cyclePriorityFilter()
			return m, nil

		case "/":
			m.mode = ModeFilter
			m.startInput(m.state.Filter.Search, "Search titles...")
			return m, textinput.Blink

		case "?":
			m.mode = ModeHelp
			return m, nil
		}
	}

	if m.mode == ModeAdd || m.mode == ModeEdit || m.mode == ModeFilter {
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) startInput(value, placeholder string) {
	m.textInput.Reset()
	m.textInput.Placeholder = placeholder
	m.textInput.SetValue(value)
	m.textInput.Focus()
}

// cyclePriorityFilter steps ALL -> LOW -> ... -> URGENT -> ALL
func (m *Model) cyclePriorityFilter() {
	order := []string{views.All}
	for _, p := range backend.Priorities {
		order = append(order, string(p))
	}
	current := strings.ToUpper(m.state.Filter.Priority)
	next := order[0]
	for i, p := range order {
		if p == current {
			next = order[(i+1)%len(order)]
		}
	}
	m.store.SetFilter(views.FilterPatch{Priority: &next})
	m.refresh()
}

func (m *Model) handleAddMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := strings.TrimSpace(m.textInput.Value())
		switch m.step {
		case stepTitle:
			if value == "" {
				m.mode = ModeNormal
				return m, nil
			}
			m.draft.Title = value
			m.step = stepStart
			m.startInput("", "2026-01-15 09:00")
		case stepStart:
			m.draft.StartDate = value
			m.step = stepDue
			m.startInput("", "2026-01-15 10:00")
		case stepDue:
			m.draft.DueDate = value
			if existing := m.store.FindConflict(m.draft.StartDate, m.draft.DueDate, ""); existing != nil {
				m.conflict = existing
				m.mode = ModeConfirmConflict
				return m, nil
			}
			m.saveDraft()
		}
		return m, textinput.Blink

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) saveDraft() {
	task, err := m.store.AddTask(m.draft)
	m.report(err, "Added "+task.Title)
	m.mode = ModeNormal
	m.conflict = nil
	m.refresh()
}

func (m *Model) handleConfirmConflictMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.saveDraft()
	case "n", "N", "esc":
		m.conflict = nil
		m.mode = ModeNormal
		m.status = "Not saved"
	}
	return m, nil
}

func (m *Model) handleEditMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		value := m.textInput.Value()
		if task, ok := m.selected(); ok && value != "" {
			_, err := m.store.UpdateTask(task.ID, store.TaskUpdate{Title: &value})
			m.report(err, "Renamed to "+value)
			m.refresh()
		}
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEsc:
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleFilterMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.Type {
	case tea.KeyEnter:
		search := m.textInput.Value()
		m.store.SetFilter(views.FilterPatch{Search: &search})
		m.refresh()
		m.mode = ModeNormal
		return m, nil

	case tea.KeyEsc:
		empty := ""
		m.store.SetFilter(views.FilterPatch{Search: &empty})
		m.refresh()
		m.mode = ModeNormal
		return m, nil
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *Model) handleHelpMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.mode = ModeNormal
		return m, nil
	}
	if msg.String() == "q" {
		m.mode = ModeNormal
	}
	return m, nil
}

func (m *Model) handleConfirmDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		if task, ok := m.selected(); ok {
			err := m.store.DeleteTask(task.ID)
			m.report(err, "Deleted "+task.Title)
			m.refresh()
		}
		m.mode = ModeNormal
	case "n", "N", "esc":
		m.mode = ModeNormal
	}
	return m, nil
}

// View renders the TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		m.width = 80
		m.height = 24
	}

	switch m.mode {
	case ModeAdd:
		return m.renderAddDialog()
	case ModeEdit:
		return m.renderInputDialog("Rename task", "Enter: confirm  Esc: cancel")
	case ModeFilter:
		return m.renderInputDialog("Search tasks", "Enter: filter  Esc: clear")
	case ModeHelp:
		return m.centerDialog(m.dialogStyle.Render(helpText))
	case ModeConfirmDelete:
		return m.renderConfirmDeleteDialog()
	case ModeConfirmConflict:
		return m.renderConflictDialog()
	}

	listWidth := m.width / 4
	taskWidth := m.width - listWidth - 4

	listPane := m.listPaneStyle.Width(listWidth).Height(m.height - 4).Render(m.renderListPane(listWidth - 4))
	taskPane := m.taskPaneStyle.Width(taskWidth).Height(m.height - 4).Render(m.renderTaskPane(taskWidth - 4))

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, listPane, taskPane))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m *Model) renderListPane(width int) string {
	var b strings.Builder
	b.WriteString("Views\n")
	b.WriteString(strings.Repeat("─", width))
	b.WriteString("\n")

	counts := map[views.SmartList]int{
		views.SmartListAll:      m.counts.All,
		views.SmartListToday:    m.counts.Today,
		views.SmartListUpcoming: m.counts.Upcoming,
	}
	for i, list := range views.SmartLists {
		cursor := " "
		name := fmt.Sprintf("%s (%d)", list, counts[list])
		if i == m.listCursor {
			cursor = ">"
			if m.focus == FocusLists {
				name = m.selectedStyle.Render(name)
			}
		}
		b.WriteString(cursor + " " + name + "\n")
	}
	b.WriteString("\n")
	b.WriteString(m.helpStyle.Render(fmt.Sprintf("pending %d", m.counts.Pending)))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderTaskPane(width int) string {
	var b strings.Builder
	b.WriteString("Timeline\n")
	b.WriteString(strings.Repeat("─", width))
	b.WriteString("\n")

	if len(m.rows) == 0 {
		b.WriteString("No tasks\n")
		return b.String()
	}

	r := views.NewRenderer(nil, m.store.Now())
	var current views.BucketName
	for i, rw := range m.rows {
		if rw.bucket != current {
			current = rw.bucket
			header := fmt.Sprintf("%s (%d)", views.BucketTitle(current), len(m.timeline.Bucket(current)))
			b.WriteString(m.headerStyle.Render(header) + "\n")
		}
		cursor := " "
		if i == m.taskCursor && m.focus == FocusTasks {
			cursor = ">"
		}
		b.WriteString(cursor + " " + r.FormatTask(&rw.task) + "\n")
		for _, st := range rw.task.SubTasks {
			mark := "[ ]"
			if st.Completed {
				mark = "[x]"
			}
			b.WriteString(m.helpStyle.Render("    └─"+mark+" "+st.Title) + "\n")
		}
	}
	return b.String()
}

func (m *Model) renderStatusBar() string {
	left := string(m.state.ActiveView)
	if m.status != "" {
		left += "  " + m.status
	}

	right := "q:quit  ?:help"
	if f := m.state.Filter; f.Search != "" || (f.Priority != "" && f.Priority != views.All) {
		right = fmt.Sprintf("Filter: %q %s  %s", f.Search, f.Priority, right)
	}
	if m.sync.ErrorCount > 0 {
		right = fmt.Sprintf("sync errors: %d  %s", m.sync.ErrorCount, right)
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return m.statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

func (m *Model) renderAddDialog() string {
	var b strings.Builder
	b.WriteString("Add New Task\n\n")
	if m.draft.Title != "" {
		b.WriteString(m.helpStyle.Render("Title: "+m.draft.Title) + "\n")
	}
	if m.draft.StartDate != "" {
		b.WriteString(m.helpStyle.Render("Start: "+m.draft.StartDate) + "\n")
	}
	b.WriteString(addPrompts[m.step] + "\n")
	b.WriteString(m.textInput.View() + "\n\n")
	b.WriteString(m.helpStyle.Render("Enter: next  Esc: cancel"))
	return m.centerDialog(m.dialogStyle.Render(b.String()))
}

func (m *Model) renderInputDialog(title, help string) string {
	dialog := m.dialogStyle.Render(
		title + "\n\n" +
			m.textInput.View() + "\n\n" +
			m.helpStyle.Render(help),
	)
	return m.centerDialog(dialog)
}

func (m *Model) renderConfirmDeleteDialog() string {
	title := "Delete selected task?"
	if task, ok := m.selected(); ok {
		title = fmt.Sprintf("Delete %q?", task.Title)
	}
	dialog := m.dialogStyle.Render(title + "\n\n" + m.helpStyle.Render("y: yes  n: no"))
	return m.centerDialog(dialog)
}

func (m *Model) renderConflictDialog() string {
	msg := "Time conflict"
	if m.conflict != nil {
		msg = conflict.Message(m.conflict)
	}
	dialog := m.dialogStyle.Render(
		m.errorStyle.Render(msg) + "\n\nSave anyway?\n\n" +
			m.helpStyle.Render("y: save  n: cancel"),
	)
	return m.centerDialog(dialog)
}

const helpText = `Help - Key Bindings

Navigation:
  j/↓    Move down
  k/↑    Move up
  Tab    Switch focus between views/timeline

Actions:
  a      Add new task
  e      Rename selected task
  c      Toggle task completion
  d      Delete task (with confirm)
  /      Search titles
  p      Cycle priority filter

General:
  ?      Show this help
  q      Quit

Press Esc to close`

func (m *Model) centerDialog(dialog string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}
