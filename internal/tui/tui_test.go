package tui_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"taskline/backend"
	"taskline/internal/credentials"
	"taskline/internal/datetime"
	"taskline/internal/store"
	"taskline/internal/tui"
	"taskline/internal/views"
)

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(20 * time.Millisecond)
}

// sendRunesAndWait sends a rune key message and waits briefly for processing.
func sendRunesAndWait(tm *teatest.TestModel, runes []rune) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: runes})
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// typeText feeds text to the model one rune at a time
func typeText(m *tui.Model, text string) {
	for _, r := range text {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

// newDemoStore returns a guest store holding the demo set at a fixed instant
func newDemoStore(t *testing.T) *store.Store {
	t.Helper()
	now, ok := datetime.Parse("2024-06-10T12:30")
	if !ok {
		t.Fatal("bad test clock")
	}
	s := store.New(store.WithClock(func() time.Time { return now }))
	t.Cleanup(func() { _ = s.Close() })
	if err := s.SetIdentity(context.Background(), credentials.Identity{}); err != nil {
		t.Fatalf("SetIdentity failed: %v", err)
	}
	return s
}

func newModel(t *testing.T, s *store.Store) *tui.Model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := tui.New(ctx, s)
	m.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	t.Cleanup(func() {
		cancel()
		m.Close()
	})
	return m
}

// readAll reads all output from a reader and returns as bytes
func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return out
}

func findByTitle(s *store.Store, title string) (backend.Task, bool) {
	for _, task := range s.Tasks() {
		if task.Title == title {
			return task, true
		}
	}
	return backend.Task{}, false
}

// =============================================================================
// Rendering (teatest)
// =============================================================================

// TestTUILaunch renders the timeline buckets of the demo set
func TestTUILaunch(t *testing.T) {
	s := newDemoStore(t)
	tm := teatest.NewTestModel(t, newModel(t, s), teatest.WithInitialTermSize(120, 30))

	time.Sleep(100 * time.Millisecond)
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	for _, want := range []string{"Timeline", "Overdue", "Submit expense report", "Team sync", "ALL (4)"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("expected %q in output", want)
		}
	}
}

// TestTUIRefreshesOnStoreChange verifies mutations made elsewhere reach the screen
func TestTUIRefreshesOnStoreChange(t *testing.T) {
	s := newDemoStore(t)
	tm := teatest.NewTestModel(t, newModel(t, s), teatest.WithInitialTermSize(120, 30))
	time.Sleep(50 * time.Millisecond)

	if _, err := s.AddTask(store.Draft{Title: "Added from the CLI", StartDate: "2024-06-20T09:00", DueDate: "2024-06-20T10:00"}); err != nil {
		t.Fatal(err)
	}

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Added from the CLI"))
	}, teatest.WithDuration(2*time.Second))

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}

// TestTUIKeyBindings shows the help panel
func TestTUIKeyBindings(t *testing.T) {
	s := newDemoStore(t)
	tm := teatest.NewTestModel(t, newModel(t, s), teatest.WithInitialTermSize(120, 30))
	time.Sleep(50 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'?'})
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEsc})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Key Bindings")) {
		t.Error("expected help panel to show key bindings")
	}
}

// TestTUIQuit exits gracefully
func TestTUIQuit(t *testing.T) {
	s := newDemoStore(t)
	tm := teatest.NewTestModel(t, newModel(t, s), teatest.WithInitialTermSize(80, 24))
	time.Sleep(50 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})
	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}

// =============================================================================
// Intents (direct Update)
// =============================================================================

func TestToggleSelectedTask(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	// first row is the overdue task
	m.Update(runes("c"))

	task, _ := s.Task("overdue-1")
	if task.Status != backend.StatusCompleted {
		t.Errorf("expected overdue task to be completed, got %s", task.Status)
	}
	if !strings.Contains(m.View(), "Completed") {
		t.Error("expected completed bucket after toggle")
	}
}

func TestNavigateAndDelete(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	m.Update(runes("j"))
	m.Update(runes("d"))
	if !strings.Contains(m.View(), "Delete") {
		t.Fatal("expected delete confirmation")
	}
	m.Update(runes("y"))

	if _, ok := s.Task("active-1"); ok {
		t.Error("second row (active task) should be deleted")
	}
	if len(s.Tasks()) != 3 {
		t.Errorf("expected 3 tasks left, got %d", len(s.Tasks()))
	}
}

func TestDeleteCancelled(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	m.Update(runes("d"))
	m.Update(runes("n"))
	if len(s.Tasks()) != 4 {
		t.Error("cancelled delete removed a task")
	}
}

func TestAddTaskFlow(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	m.Update(runes("a"))
	typeText(m, "Dentist")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeText(m, "2024-06-14 09:00")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeText(m, "2024-06-14 10:00")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	task, ok := findByTitle(s, "Dentist")
	if !ok {
		t.Fatal("task was not added")
	}
	if task.StartDate != "2024-06-14T09:00" || task.DurationType != backend.DurationShort {
		t.Errorf("unexpected task: %+v", task)
	}
}

func TestAddTaskConflictPrompt(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	// demo "Team sync" runs 13:00-14:00 today
	m.Update(runes("a"))
	typeText(m, "Overlapping call")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeText(m, "2024-06-10 13:00")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeText(m, "2024-06-10 14:00")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if !strings.Contains(m.View(), "Team sync") {
		t.Errorf("expected conflict dialog naming the existing task, got:\n%s", m.View())
	}
	if _, ok := findByTitle(s, "Overlapping call"); ok {
		t.Fatal("task saved before confirmation")
	}

	m.Update(runes("y"))
	if _, ok := findByTitle(s, "Overlapping call"); !ok {
		t.Error("confirmed task was not saved")
	}
}

func TestAddTaskValidationShown(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	m.Update(runes("a"))
	typeText(m, "Backwards")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeText(m, "2024-06-14 10:00")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	typeText(m, "2024-06-14 09:00")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if _, ok := findByTitle(s, "Backwards"); ok {
		t.Error("invalid task was saved")
	}
	if !strings.Contains(m.View(), "must be after") {
		t.Errorf("expected validation message in status bar, got:\n%s", m.View())
	}
}

func TestEditTitle(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	m.Update(runes("e"))
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlU})
	typeText(m, "Expenses filed")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	if task, _ := s.Task("overdue-1"); task.Title != "Expenses filed" {
		t.Errorf("expected renamed task, got %q", task.Title)
	}
}

func TestSwitchSmartList(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(runes("j"))

	if got := s.State().ActiveView; got != views.SmartListToday {
		t.Fatalf("expected TODAY view, got %s", got)
	}
	view := m.View()
	if !strings.Contains(view, "Team sync") || strings.Contains(view, "Plan quarterly goals") {
		t.Errorf("TODAY view shows wrong tasks:\n%s", view)
	}
}

func TestSearchAndPriorityFilter(t *testing.T) {
	s := newDemoStore(t)
	m := newModel(t, s)

	m.Update(runes("/"))
	typeText(m, "plan")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := s.State().Filter.Search; got != "plan" {
		t.Errorf("search not applied: %q", got)
	}
	if strings.Contains(m.View(), "Team sync") {
		t.Error("search did not hide non-matching tasks")
	}

	m.Update(runes("/"))
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if got := s.State().Filter.Search; got != "" {
		t.Errorf("Esc should clear the search, got %q", got)
	}

	m.Update(runes("p"))
	if got := s.State().Filter.Priority; got != "LOW" {
		t.Errorf("expected LOW priority filter, got %q", got)
	}
}
