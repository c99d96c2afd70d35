package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"taskline/backend"
	"taskline/backend/sqlite"
	"taskline/internal/credentials"
	"taskline/internal/datetime"
	"taskline/internal/utils"
	"taskline/internal/views"
)

// =============================================================================
// Test helpers
// =============================================================================

// fakeAPI is an in-memory task server. Hooks override individual calls and
// gate, when set, holds every call until it is closed.
type fakeAPI struct {
	mu     sync.Mutex
	tasks  []backend.Task
	nextID int
	calls  []string
	gate   chan struct{}

	listErr   error
	createErr error
	deleteErr error
	onUpdate  func(task *backend.Task) (*backend.Task, error)
}

func newFakeAPI(tasks ...backend.Task) *fakeAPI {
	return &fakeAPI{tasks: tasks, nextID: 101}
}

func (f *fakeAPI) enter(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) ListTasks(ctx context.Context, token string) ([]backend.Task, error) {
	f.enter("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return backend.CloneTasks(f.tasks), nil
}

func (f *fakeAPI) CreateTask(ctx context.Context, token string, task *backend.Task) (*backend.Task, error) {
	f.enter("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	created := task.Clone()
	created.ID = fmt.Sprintf("%d", f.nextID)
	f.nextID++
	f.tasks = append(f.tasks, created)
	return &created, nil
}

func (f *fakeAPI) UpdateTask(ctx context.Context, token string, task *backend.Task) (*backend.Task, error) {
	f.enter("update " + task.ID)
	f.mu.Lock()
	hook := f.onUpdate
	f.mu.Unlock()
	if hook != nil {
		return hook(task)
	}
	echo := task.Clone()
	return &echo, nil
}

func (f *fakeAPI) DeleteTask(ctx context.Context, token, taskID string) error {
	f.enter("delete " + taskID)
	return f.deleteErr
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t *testing.T, value string) *clock {
	t.Helper()
	return &clock{now: mustTime(t, value)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	v, ok := datetime.Parse(value)
	if !ok {
		t.Fatalf("invalid test time %q", value)
	}
	return v
}

// captureLog redirects the logger for the duration of the test
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := utils.SetOutput(&buf)
	t.Cleanup(func() { utils.SetOutput(prev) })
	return &buf
}

var alice = credentials.Identity{Username: "alice", Token: "tok-alice", Source: credentials.SourceKeyring}

func newRemoteStore(t *testing.T, api *fakeAPI, clk *clock) *Store {
	t.Helper()
	s := New(WithRemote(api), WithClock(clk.Now), WithSeedDemo(false))
	t.Cleanup(func() { _ = s.Close() })
	if err := s.SetIdentity(context.Background(), alice); err != nil {
		t.Fatalf("SetIdentity failed: %v", err)
	}
	return s
}

func newGuestStore(t *testing.T, clk *clock, opts ...Option) (*Store, *sqlite.Store) {
	t.Helper()
	local, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New failed: %v", err)
	}
	opts = append([]Option{WithLocal(local), WithClock(clk.Now)}, opts...)
	s := New(opts...)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.SetIdentity(context.Background(), credentials.Identity{}); err != nil {
		t.Fatalf("SetIdentity(guest) failed: %v", err)
	}
	return s, local
}

func serverTask(id, title, start, due string) backend.Task {
	return backend.Task{
		ID:        id,
		Title:     title,
		Priority:  backend.PriorityMedium,
		Status:    backend.StatusTodo,
		StartDate: start,
		DueDate:   due,
	}
}

func strPtr(s string) *string { return &s }

// =============================================================================
// Remote mode
// =============================================================================

// TestRemoteLoadNormalizesAndDerives verifies the fetched list is normalized
func TestRemoteLoadNormalizesAndDerives(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(serverTask("1", "Meeting", "2024-06-10 11:00", "2024-06-10 13:00"))
	s := newRemoteStore(t, api, clk)

	tasks := s.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if got.StartDate != "2024-06-10T11:00" || got.DueDate != "2024-06-10T13:00" {
		t.Errorf("dates not canonical: %q %q", got.StartDate, got.DueDate)
	}
	if got.Status != backend.StatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", got.Status)
	}
	if got.DurationType != backend.DurationShort {
		t.Errorf("expected short, got %s", got.DurationType)
	}
	if !s.IsRemote() || !s.Loaded() {
		t.Error("expected loaded remote store")
	}
}

// TestRemoteLoadFailureClearsList verifies a read failure leaves an empty collection
func TestRemoteLoadFailureClearsList(t *testing.T) {
	logs := captureLog(t)
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(serverTask("1", "Meeting", "2024-06-10T11:00", "2024-06-10T13:00"))
	api.listErr = errors.New("connection refused")

	s := newRemoteStore(t, api, clk)

	if n := len(s.Tasks()); n != 0 {
		t.Errorf("expected empty collection, got %d tasks", n)
	}
	if st := s.SyncState(); st.ErrorCount != 1 || st.LastError != "connection refused" {
		t.Errorf("unexpected sync state: %+v", st)
	}
	if !strings.Contains(logs.String(), "failed to list") {
		t.Errorf("expected failure to be logged, got %q", logs.String())
	}
}

// TestFailingUpdateKeepsOptimisticChange verifies no rollback and no caller error
func TestFailingUpdateKeepsOptimisticChange(t *testing.T) {
	logs := captureLog(t)
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(serverTask("1", "Old title", "2024-06-10T11:00", "2024-06-10T13:00"))
	api.onUpdate = func(*backend.Task) (*backend.Task, error) {
		return nil, errors.New("server exploded")
	}
	s := newRemoteStore(t, api, clk)

	updated, err := s.UpdateTask("1", TaskUpdate{Title: strPtr("New title")})
	if err != nil {
		t.Fatalf("UpdateTask returned error: %v", err)
	}
	if updated.Title != "New title" {
		t.Errorf("expected optimistic title, got %q", updated.Title)
	}
	s.Wait()

	got, _ := s.Task("1")
	if got.Title != "New title" {
		t.Errorf("optimistic change was rolled back: %q", got.Title)
	}
	failures := s.Failures()
	if len(failures) != 1 || failures[0].Op != "update" || failures[0].TaskID != "1" {
		t.Errorf("expected one update failure, got %+v", failures)
	}
	if !strings.Contains(logs.String(), "failed to update task 1: server exploded") {
		t.Errorf("expected failure log, got %q", logs.String())
	}
}

// TestUpdateReconcileKeepsClientCompletion verifies client sub-task flags win
func TestUpdateReconcileKeepsClientCompletion(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	task := serverTask("1", "With steps", "2024-06-10T11:00", "2024-06-12T11:00")
	task.SubTasks = []backend.SubTask{{ID: "a", Title: "first"}, {ID: "b", Title: "second"}}
	api := newFakeAPI(task)
	api.onUpdate = func(sent *backend.Task) (*backend.Task, error) {
		echo := sent.Clone()
		echo.Title = "Renamed by server"
		for i := range echo.SubTasks {
			echo.SubTasks[i].Completed = false
		}
		return &echo, nil
	}
	s := newRemoteStore(t, api, clk)

	if _, err := s.SetSubTaskCompleted("1", "a", true); err != nil {
		t.Fatalf("SetSubTaskCompleted failed: %v", err)
	}
	s.Wait()

	got, _ := s.Task("1")
	if got.Title != "Renamed by server" {
		t.Errorf("server fields should win, got title %q", got.Title)
	}
	if !got.SubTasks[0].Completed || got.SubTasks[1].Completed {
		t.Errorf("client completion flags lost: %+v", got.SubTasks)
	}
	if s.SyncState().SyncCount < 2 {
		t.Errorf("expected list and update to count as syncs, got %+v", s.SyncState())
	}
}

// TestUpdateWithoutEchoKeepsOptimisticEntity verifies a 204 style reply
func TestUpdateWithoutEchoKeepsOptimisticEntity(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(serverTask("1", "Old", "2024-06-10T11:00", "2024-06-10T13:00"))
	api.onUpdate = func(*backend.Task) (*backend.Task, error) { return nil, nil }
	s := newRemoteStore(t, api, clk)

	if _, err := s.UpdateTask("1", TaskUpdate{Title: strPtr("New")}); err != nil {
		t.Fatal(err)
	}
	s.Wait()

	if got, _ := s.Task("1"); got.Title != "New" {
		t.Errorf("expected optimistic entity, got %q", got.Title)
	}
	if len(s.Failures()) != 0 {
		t.Errorf("unexpected failures: %+v", s.Failures())
	}
}

// TestCreateSuccessReplacesTempID verifies the server entity replaces the temp one in place
func TestCreateSuccessReplacesTempID(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(serverTask("1", "Existing", "2024-06-11T09:00", "2024-06-11T10:00"))
	s := newRemoteStore(t, api, clk)

	added, err := s.AddTask(Draft{Title: "Fresh", StartDate: "2024-06-12 09:00", DueDate: "2024-06-12 10:00"})
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if !IsTempID(added.ID) {
		t.Errorf("expected temporary id, got %q", added.ID)
	}
	if added.Priority != backend.PriorityMedium {
		t.Errorf("expected default priority MEDIUM, got %s", added.Priority)
	}
	s.Wait()

	tasks := s.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "101" || tasks[0].Title != "Fresh" {
		t.Errorf("expected server entity at the front, got %+v", tasks[0])
	}
	if tasks[0].StartDate != "2024-06-12T09:00" {
		t.Errorf("expected canonical start, got %q", tasks[0].StartDate)
	}
	for _, task := range tasks {
		if IsTempID(task.ID) {
			t.Errorf("temporary id %s left behind", task.ID)
		}
	}
}

// TestCreateFailureRemovesTempTask verifies the collection ends unchanged
func TestCreateFailureRemovesTempTask(t *testing.T) {
	captureLog(t)
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(serverTask("1", "Existing", "2024-06-11T09:00", "2024-06-11T10:00"))
	api.createErr = errors.New("quota exceeded")
	s := newRemoteStore(t, api, clk)

	if _, err := s.AddTask(Draft{Title: "Doomed", StartDate: "2024-06-12T09:00", DueDate: "2024-06-12T10:00"}); err != nil {
		t.Fatalf("AddTask should not return remote errors: %v", err)
	}
	s.Wait()

	tasks := s.Tasks()
	if len(tasks) != 1 || tasks[0].ID != "1" {
		t.Errorf("expected collection unchanged, got %+v", tasks)
	}
	if f := s.Failures(); len(f) != 1 || f[0].Op != "create" {
		t.Errorf("expected one create failure, got %+v", f)
	}
}

// TestDeleteBeforeCreateCompletes verifies the server copy is deleted afterwards
func TestDeleteBeforeCreateCompletes(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI()
	s := newRemoteStore(t, api, clk)

	gate := make(chan struct{})
	api.mu.Lock()
	api.gate = gate
	api.mu.Unlock()

	added, err := s.AddTask(Draft{Title: "Short lived", StartDate: "2024-06-12T09:00", DueDate: "2024-06-12T10:00"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteTask(added.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}

	api.mu.Lock()
	api.gate = nil
	api.mu.Unlock()
	close(gate)
	s.Wait()

	if n := len(s.Tasks()); n != 0 {
		t.Errorf("expected empty collection, got %d", n)
	}
	calls := api.Calls()
	if calls[len(calls)-1] != "delete 101" {
		t.Errorf("expected server copy to be deleted, calls: %v", calls)
	}
}

// TestDeleteFailureNotReversed verifies local removal stands
func TestDeleteFailureNotReversed(t *testing.T) {
	captureLog(t)
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(serverTask("1", "Gone", "2024-06-11T09:00", "2024-06-11T10:00"))
	api.deleteErr = errors.New("forbidden")
	s := newRemoteStore(t, api, clk)

	if err := s.DeleteTask("1"); err != nil {
		t.Fatalf("DeleteTask returned error: %v", err)
	}
	s.Wait()

	if _, ok := s.Task("1"); ok {
		t.Error("task came back after failed remote delete")
	}
	if f := s.Failures(); len(f) != 1 || f[0].Op != "delete" {
		t.Errorf("expected one delete failure, got %+v", f)
	}
}

// TestFailuresSinceAfterLogIsFull verifies new failures are reported once the
// bounded log has started dropping old entries
func TestFailuresSinceAfterLogIsFull(t *testing.T) {
	captureLog(t)
	clk := newClock(t, "2024-06-10T12:00")
	var tasks []backend.Task
	for i := 1; i <= maxFailures+6; i++ {
		tasks = append(tasks, serverTask(fmt.Sprint(i), fmt.Sprintf("Task %d", i), "2024-06-11T09:00", "2024-06-11T10:00"))
	}
	api := newFakeAPI(tasks...)
	api.deleteErr = errors.New("forbidden")
	s := newRemoteStore(t, api, clk)

	for i := 1; i <= maxFailures+5; i++ {
		_ = s.DeleteTask(fmt.Sprint(i))
	}
	s.Wait()
	if got := len(s.Failures()); got != maxFailures {
		t.Fatalf("failure log should be capped at %d, got %d", maxFailures, got)
	}

	mark := s.SyncState().ErrorCount
	if f := s.FailuresSince(mark); len(f) != 0 {
		t.Errorf("nothing new yet, got %+v", f)
	}

	last := fmt.Sprint(maxFailures + 6)
	_ = s.DeleteTask(last)
	s.Wait()
	f := s.FailuresSince(mark)
	if len(f) != 1 || f[0].TaskID != last || f[0].Op != "delete" {
		t.Errorf("expected the delete of %s, got %+v", last, f)
	}
	if all := s.FailuresSince(0); len(all) != maxFailures {
		t.Errorf("FailuresSince(0) should return the whole log, got %d", len(all))
	}
}

// TestStaleIdentityResponseDiscarded verifies late responses for a previous identity are dropped
func TestStaleIdentityResponseDiscarded(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(serverTask("1", "Alice task", "2024-06-11T09:00", "2024-06-11T10:00"))
	s := newRemoteStore(t, api, clk)

	gate := make(chan struct{})
	api.mu.Lock()
	api.gate = gate
	api.onUpdate = func(sent *backend.Task) (*backend.Task, error) {
		echo := sent.Clone()
		echo.Title = "late echo"
		return &echo, nil
	}
	api.mu.Unlock()

	if _, err := s.UpdateTask("1", TaskUpdate{Title: strPtr("edited")}); err != nil {
		t.Fatal(err)
	}

	// logout while the update is in flight
	if err := s.SetIdentity(context.Background(), credentials.Identity{}); err != nil {
		t.Fatal(err)
	}
	close(gate)
	s.Wait()

	if n := len(s.Tasks()); n != 0 {
		t.Errorf("guest collection should be empty, got %+v", s.Tasks())
	}
	if st := s.SyncState(); st.ErrorCount != 0 {
		t.Errorf("stale response should not be recorded: %+v", st)
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestAddTaskValidation(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))

	tests := []struct {
		name  string
		draft Draft
	}{
		{"empty title", Draft{Title: "  ", StartDate: "2024-06-10T09:00", DueDate: "2024-06-10T10:00"}},
		{"due equals start", Draft{Title: "x", StartDate: "2024-06-10T09:00", DueDate: "2024-06-10T09:00"}},
		{"due before start", Draft{Title: "x", StartDate: "2024-06-10T09:00", DueDate: "2024-06-09T09:00"}},
		{"invalid date", Draft{Title: "x", StartDate: "soon", DueDate: "2024-06-10T09:00"}},
		{"invalid priority", Draft{Title: "x", StartDate: "2024-06-10T09:00", DueDate: "2024-06-10T10:00", Priority: "CRITICAL"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddTask(tt.draft)
			if !errors.Is(err, utils.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if n := len(s.Tasks()); n != 0 {
				t.Errorf("state changed on rejected submission: %d tasks", n)
			}
		})
	}
}

func TestUpdateTaskValidation(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))
	added, err := s.AddTask(Draft{Title: "Keep", StartDate: "2024-06-10T09:00", DueDate: "2024-06-10T10:00"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpdateTask(added.ID, TaskUpdate{DueDate: strPtr("2024-06-10T08:00")}); !errors.Is(err, utils.ErrValidation) {
		t.Errorf("expected date range error, got %v", err)
	}
	if _, err := s.UpdateTask(added.ID, TaskUpdate{Title: strPtr("")}); !errors.Is(err, utils.ErrValidation) {
		t.Errorf("expected title error, got %v", err)
	}
	if _, err := s.UpdateTask("missing", TaskUpdate{Title: strPtr("x")}); err == nil {
		t.Error("expected not found error")
	}

	got, _ := s.Task(added.ID)
	if got.Title != "Keep" || got.DueDate != "2024-06-10T10:00" {
		t.Errorf("rejected update changed the task: %+v", got)
	}
}

// =============================================================================
// Lifecycle through the store
// =============================================================================

// TestToggleScenario walks IN_PROGRESS -> COMPLETED (sticky) -> TODO -> ARCHIVED
func TestToggleScenario(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))

	task, err := s.AddTask(Draft{Title: "Focus block", StartDate: "2024-06-10T09:00", DueDate: "2024-06-10T17:00"})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != backend.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", task.Status)
	}

	task, _ = s.ToggleCompleted(task.ID)
	if task.Status != backend.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", task.Status)
	}

	clk.Set(mustTime(t, "2024-06-11T09:00"))
	if n := s.Sweep(clk.Now()); n != 0 {
		t.Errorf("sweep changed %d tasks, completed status must be sticky", n)
	}

	task, _ = s.ToggleCompleted(task.ID)
	if task.Status != backend.StatusTodo {
		t.Fatalf("expected TODO after toggle, got %s", task.Status)
	}

	if n := s.Sweep(clk.Now()); n != 1 {
		t.Errorf("expected sweep to change 1 task, got %d", n)
	}
	task, _ = s.Task(task.ID)
	if task.Status != backend.StatusArchived {
		t.Errorf("expected ARCHIVED, got %s", task.Status)
	}
}

func TestSubTaskCompletion(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))

	task, err := s.AddTask(Draft{
		Title:     "Checklist",
		StartDate: "2024-06-10T09:00",
		DueDate:   "2024-06-12T09:00",
		SubTasks:  []backend.SubTask{{Title: "one"}, {Title: "two"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.SubTasks[0].ID == "" || task.SubTasks[0].ID == task.SubTasks[1].ID {
		t.Fatalf("sub-task ids not assigned: %+v", task.SubTasks)
	}

	task, _ = s.SetSubTaskCompleted(task.ID, task.SubTasks[0].ID, true)
	if task.Status != backend.StatusInProgress {
		t.Errorf("one of two done should stay IN_PROGRESS, got %s", task.Status)
	}
	task, _ = s.SetSubTaskCompleted(task.ID, task.SubTasks[1].ID, true)
	if task.Status != backend.StatusCompleted {
		t.Errorf("all done should be COMPLETED, got %s", task.Status)
	}
	task, _ = s.SetSubTaskCompleted(task.ID, task.SubTasks[1].ID, false)
	if task.Status != backend.StatusInProgress {
		t.Errorf("unchecking should reopen the task, got %s", task.Status)
	}

	if _, err := s.SetSubTaskCompleted(task.ID, "nope", true); err == nil {
		t.Error("expected error for unknown sub-task")
	}
}

func TestUpdateSubTasksReopensCompletedTask(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))

	task, err := s.AddTask(Draft{
		Title:     "Release",
		StartDate: "2024-06-10T11:00",
		DueDate:   "2024-06-10T13:00",
		SubTasks:  []backend.SubTask{{Title: "build", Completed: true}, {Title: "tag", Completed: true}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != backend.StatusCompleted {
		t.Fatalf("all sub-tasks done should be COMPLETED, got %s", task.Status)
	}

	subs := append([]backend.SubTask(nil), task.SubTasks...)
	subs[1].Completed = false
	task, err = s.UpdateTask(task.ID, TaskUpdate{SubTasks: &subs})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if task.Status != backend.StatusInProgress {
		t.Errorf("unchecking a sub-task through an update should reopen the task, got %s", task.Status)
	}

	// a task completed by toggling stays completed when its sub-tasks change
	toggled, _ := s.AddTask(Draft{Title: "Manual", StartDate: "2024-06-10T11:00", DueDate: "2024-06-10T13:00"})
	toggled, _ = s.ToggleCompleted(toggled.ID)
	open := []backend.SubTask{{Title: "follow-up"}}
	toggled, _ = s.UpdateTask(toggled.ID, TaskUpdate{SubTasks: &open})
	if toggled.Status != backend.StatusCompleted {
		t.Errorf("toggled completion should stick, got %s", toggled.Status)
	}
}

func TestSweepOnlyTouchesChangedTasks(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))

	ending, _ := s.AddTask(Draft{Title: "Ends soon", StartDate: "2024-06-10T11:00", DueDate: "2024-06-10T13:00"})
	later, _ := s.AddTask(Draft{Title: "Later", StartDate: "2024-06-20T11:00", DueDate: "2024-06-20T13:00"})

	sweepAt := mustTime(t, "2024-06-10T14:00")
	if n := s.Sweep(sweepAt); n != 1 {
		t.Fatalf("expected 1 changed task, got %d", n)
	}

	got, _ := s.Task(ending.ID)
	if got.Status != backend.StatusArchived || !got.UpdatedAt.Equal(sweepAt) {
		t.Errorf("expected ARCHIVED with bumped UpdatedAt, got %s %v", got.Status, got.UpdatedAt)
	}
	untouched, _ := s.Task(later.ID)
	if !untouched.UpdatedAt.Equal(later.UpdatedAt) {
		t.Errorf("unchanged task got a new UpdatedAt: %v", untouched.UpdatedAt)
	}
	if n := s.Sweep(sweepAt); n != 0 {
		t.Errorf("second sweep changed %d tasks", n)
	}
}

func TestStartRunsSweep(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false), WithSweepInterval(10*time.Millisecond))

	task, _ := s.AddTask(Draft{Title: "Tick", StartDate: "2024-06-10T11:00", DueDate: "2024-06-10T13:00"})
	clk.Set(mustTime(t, "2024-06-10T14:00"))

	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := s.Task(task.ID); got.Status == backend.StatusArchived {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("periodic sweep did not archive the task")
}

// =============================================================================
// Guest mode
// =============================================================================

func TestGuestSeedsDemoSetOnce(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:30")
	s, local := newGuestStore(t, clk)

	tasks := s.Tasks()
	if len(tasks) != 4 {
		t.Fatalf("expected 4 demo tasks, got %d", len(tasks))
	}
	want := map[string]backend.TaskStatus{
		"overdue-1": backend.StatusArchived,
		"active-1":  backend.StatusInProgress,
		"today-1":   backend.StatusTodo,
		"future-1":  backend.StatusTodo,
	}
	for _, task := range tasks {
		if want[task.ID] != task.Status {
			t.Errorf("%s: expected %s, got %s", task.ID, want[task.ID], task.Status)
		}
	}

	saved, found, err := local.LoadTasks(context.Background())
	if err != nil || !found || len(saved) != 4 {
		t.Fatalf("seed not persisted: found=%v n=%d err=%v", found, len(saved), err)
	}

	for _, task := range tasks {
		if err := s.DeleteTask(task.ID); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(s.Tasks()); n != 0 {
		t.Errorf("an emptied guest store must not be reseeded, got %d tasks", n)
	}
}

func TestGuestMutationsPersist(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))

	added, err := s.AddTask(Draft{Title: "Persist me", StartDate: "2024-06-10T09:00", DueDate: "2024-06-10T10:00", Tags: []string{"x"}})
	if err != nil {
		t.Fatal(err)
	}
	if IsTempID(added.ID) {
		t.Errorf("guest tasks get final ids, got %q", added.ID)
	}
	if _, err := s.ToggleCompleted(added.ID); err != nil {
		t.Fatal(err)
	}

	if err := s.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, ok := s.Task(added.ID)
	if !ok {
		t.Fatal("task not persisted")
	}
	if got.Status != backend.StatusCompleted || len(got.Tags) != 1 {
		t.Errorf("unexpected persisted task: %+v", got)
	}
}

func TestLogoutReloadsGuestCollection(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	local, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	api := newFakeAPI(serverTask("1", "Remote", "2024-06-11T09:00", "2024-06-11T10:00"))
	s := New(WithRemote(api), WithLocal(local), WithClock(clk.Now))
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	if err := s.SetIdentity(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Task("1"); !ok {
		t.Fatal("remote task missing")
	}

	if err := s.SetIdentity(ctx, credentials.Identity{}); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Task("1"); ok {
		t.Error("remote task survived logout")
	}
	if n := len(s.Tasks()); n != 4 {
		t.Errorf("expected seeded guest collection, got %d tasks", n)
	}
}

// =============================================================================
// Queries and view state
// =============================================================================

func TestResolveID(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	api := newFakeAPI(
		serverTask("abc1", "One", "2024-06-11T09:00", "2024-06-11T10:00"),
		serverTask("abc2", "Two", "2024-06-11T11:00", "2024-06-11T12:00"),
		serverTask("abc", "Three", "2024-06-11T13:00", "2024-06-11T14:00"),
		serverTask("xyz", "Four", "2024-06-11T15:00", "2024-06-11T16:00"),
	)
	s := newRemoteStore(t, api, clk)

	tests := []struct {
		prefix  string
		want    string
		wantErr bool
	}{
		{"abc", "abc", false},
		{"abc2", "abc2", false},
		{"x", "xyz", false},
		{"ab", "", true},
		{"nope", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := s.ResolveID(tt.prefix)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ResolveID(%q) = %q, %v", tt.prefix, got, err)
		}
	}
}

func TestFiltersAndViews(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))

	mustAdd := func(title, start, due string, p backend.Priority) {
		t.Helper()
		if _, err := s.AddTask(Draft{Title: title, StartDate: start, DueDate: due, Priority: p}); err != nil {
			t.Fatal(err)
		}
	}
	mustAdd("Write report", "2024-06-10T13:00", "2024-06-10T15:00", backend.PriorityHigh)
	mustAdd("Read book", "2024-06-11T13:00", "2024-06-11T15:00", backend.PriorityLow)
	mustAdd("Write tests", "2024-06-12T13:00", "2024-06-12T15:00", backend.PriorityLow)

	s.SetActiveView(views.SmartListToday)
	if got := s.Visible(); len(got) != 1 || got[0].Title != "Write report" {
		t.Errorf("TODAY view: %+v", got)
	}

	s.SetActiveView(views.SmartListAll)
	s.SetFilter(views.FilterPatch{Search: strPtr("write")})
	if got := s.Visible(); len(got) != 2 {
		t.Errorf("search filter: expected 2, got %d", len(got))
	}
	s.SetFilter(views.FilterPatch{Priority: strPtr("LOW")})
	got := s.Visible()
	if len(got) != 1 || got[0].Title != "Write tests" {
		t.Errorf("search and priority filter: %+v", got)
	}
	if st := s.State(); st.Filter.Search != "write" || st.Filter.Priority != "LOW" {
		t.Errorf("filter patch not merged: %+v", st.Filter)
	}

	tl := s.Timeline()
	if len(tl.ThisWeek) != 1 {
		t.Errorf("expected task in this week bucket, got %+v", tl)
	}
	if c := s.Counts(); c.All != 3 || c.Today != 1 || c.Upcoming != 2 {
		t.Errorf("unexpected counts: %+v", c)
	}
}

func TestFindConflictUsesCollection(t *testing.T) {
	clk := newClock(t, "2024-06-10T08:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))
	existing, _ := s.AddTask(Draft{Title: "Meeting", StartDate: "2024-06-10T10:00", DueDate: "2024-06-10T11:00"})

	if c := s.FindConflict("2024-06-10T10:20", "2024-06-10T11:30", ""); c == nil || c.ID != existing.ID {
		t.Errorf("expected conflict with %s, got %v", existing.ID, c)
	}
	if c := s.FindConflict("2024-06-10T10:45", "2024-06-10T11:30", ""); c != nil {
		t.Errorf("15 minute overlap should not conflict, got %s", c.ID)
	}
	if c := s.FindConflict("2024-06-10T10:00", "2024-06-10T11:00", existing.ID); c != nil {
		t.Error("a task must not conflict with itself")
	}
}

func TestSubscribeNotifiesUntilUnsubscribed(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))

	var calls int
	unsubscribe := s.Subscribe(func() { calls++ })

	s.SetActiveView(views.SmartListToday)
	if _, err := s.AddTask(Draft{Title: "x", StartDate: "2024-06-10T09:00", DueDate: "2024-06-10T10:00"}); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected 2 notifications, got %d", calls)
	}

	unsubscribe()
	s.SetActiveView(views.SmartListAll)
	if calls != 2 {
		t.Errorf("notified after unsubscribe: %d", calls)
	}
}

func TestMutationsAfterClose(t *testing.T) {
	clk := newClock(t, "2024-06-10T12:00")
	s, _ := newGuestStore(t, clk, WithSeedDemo(false))
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	if _, err := s.AddTask(Draft{Title: "x", StartDate: "2024-06-10T09:00", DueDate: "2024-06-10T10:00"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

// TestDemoTasksStayOnToday verifies the short demo task keeps today's date
// late in the evening
func TestDemoTasksStayOnToday(t *testing.T) {
	for _, at := range []string{"2024-06-10T09:15", "2024-06-10T22:30", "2024-06-10T23:30"} {
		var sync *backend.Task
		for _, task := range DemoTasks(mustTime(t, at)) {
			if task.ID == "today-1" {
				task := task
				sync = &task
			}
		}
		if sync == nil {
			t.Fatalf("%s: today-1 missing", at)
		}
		if !strings.HasPrefix(sync.StartDate, "2024-06-10") || !strings.HasPrefix(sync.DueDate, "2024-06-10") {
			t.Errorf("%s: window %s -> %s left today", at, sync.StartDate, sync.DueDate)
		}
		if sync.StartDate >= sync.DueDate {
			t.Errorf("%s: start %s not before due %s", at, sync.StartDate, sync.DueDate)
		}
	}
}
