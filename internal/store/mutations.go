package store

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"taskline/backend"
	"taskline/internal/lifecycle"
	"taskline/internal/utils"
	"taskline/internal/views"
)

// ErrClosed is returned by mutations issued after Close
var ErrClosed = errors.New("task store is closed")

// tempIDPrefix marks ids assigned locally while a create is in flight
const tempIDPrefix = "temp-"

// Draft is the input of AddTask
type Draft struct {
	Title       string
	Description string
	Priority    backend.Priority // empty means MEDIUM
	StartDate   string
	DueDate     string
	SubTasks    []backend.SubTask // IDs are assigned when empty
	Tags        []string
}

// TaskUpdate is a partial update; nil fields are left unchanged.
// Status is not part of it: use ToggleCompleted.
type TaskUpdate struct {
	Title       *string
	Description *string
	Priority    *backend.Priority
	StartDate   *string
	DueDate     *string
	SubTasks    *[]backend.SubTask
	Tags        *[]string
}

// IsTempID reports whether id was assigned locally for an unconfirmed create
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

func validatePriority(p backend.Priority) (backend.Priority, error) {
	if p == "" {
		return backend.PriorityMedium, nil
	}
	parsed, ok := backend.ParsePriority(string(p))
	if !ok {
		return "", utils.ErrInvalidPriority(string(p))
	}
	return parsed, nil
}

func assignSubTaskIDs(subs []backend.SubTask) []backend.SubTask {
	if subs == nil {
		return nil
	}
	out := append([]backend.SubTask(nil), subs...)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = backend.GenerateID()
		}
	}
	return out
}

// AddTask validates the draft, stores the new task at the front of the
// collection and returns it. In remote mode the returned task carries a
// temporary id that is replaced by the server id once the create succeeds;
// if the create fails the task is removed again.
func (s *Store) AddTask(draft Draft) (backend.Task, error) {
	if err := utils.ValidateTitle(draft.Title); err != nil {
		return backend.Task{}, err
	}
	if err := utils.ValidateDateRange(draft.StartDate, draft.DueDate); err != nil {
		return backend.Task{}, err
	}
	priority, err := validatePriority(draft.Priority)
	if err != nil {
		return backend.Task{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return backend.Task{}, ErrClosed
	}

	now := s.now()
	task := backend.Task{
		Title:       strings.TrimSpace(draft.Title),
		Description: draft.Description,
		Priority:    priority,
		StartDate:   draft.StartDate,
		DueDate:     draft.DueDate,
		SubTasks:    assignSubTaskIDs(draft.SubTasks),
		Tags:        append([]string(nil), draft.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	remote := s.isRemoteLocked()
	if remote {
		task.ID = tempIDPrefix + backend.GenerateID()
	} else {
		task.ID = backend.GenerateID()
	}
	task = lifecycle.Apply(task, now)

	s.tasks = append([]backend.Task{task}, s.tasks...)

	if remote {
		s.createRemoteLocked(task)
	} else {
		s.persistLocked()
	}
	result := task.Clone()
	s.unlockAndNotify()
	return result, nil
}

// createRemoteLocked promotes the temporary entity to the server entity, in
// place, or drops it when the create fails.
func (s *Store) createRemoteLocked(task backend.Task) {
	tempID := task.ID
	payload := task.Clone()
	payload.ID = ""

	s.goRemoteLocked("create", tempID, func(ctx context.Context, token string) (func(), error) {
		created, err := s.remote.CreateTask(ctx, token, &payload)
		if err != nil {
			return func() {
				if i := backend.FindTask(s.tasks, tempID); i >= 0 {
					s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
				}
			}, err
		}

		return func() {
			s.promoted[tempID] = created.ID
			i := backend.FindTask(s.tasks, tempID)
			if i < 0 {
				// deleted locally while the create was in flight
				serverID := created.ID
				utils.Debugf("task %s was deleted before its create completed, deleting %s", tempID, serverID)
				s.deleteRemoteLocked(serverID)
				return
			}
			local := s.tasks[i]
			if reflect.DeepEqual(local, task) {
				s.tasks[i] = reconcile(*created, local, s.now())
				return
			}
			// edited while the create was in flight: keep the edit and
			// send it under the server id
			local.ID = created.ID
			if !created.CreatedAt.IsZero() {
				local.CreatedAt = created.CreatedAt
			}
			s.tasks[i] = local
			s.updateRemoteLocked(local)
		}, nil
	})
}

// CurrentID returns the id the task created as id carries now. Temporary ids
// map to the server id once the create has been confirmed.
func (s *Store) CurrentID(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if serverID, ok := s.promoted[id]; ok {
		return serverID
	}
	return id
}

// UpdateTask merges patch into the task, re-derives its status and stores it.
// In remote mode the update is sent in the background; a failure is recorded
// and the optimistic result stays in place.
func (s *Store) UpdateTask(id string, patch TaskUpdate) (backend.Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return backend.Task{}, ErrClosed
	}

	i := backend.FindTask(s.tasks, id)
	if i < 0 {
		s.mu.Unlock()
		return backend.Task{}, utils.ErrTaskNotFound(id)
	}

	prev := s.tasks[i]
	t := prev.Clone()
	if patch.Title != nil {
		t.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Priority != nil {
		p, err := validatePriority(*patch.Priority)
		if err != nil {
			s.mu.Unlock()
			return backend.Task{}, err
		}
		t.Priority = p
	}
	if patch.StartDate != nil {
		t.StartDate = *patch.StartDate
	}
	if patch.DueDate != nil {
		t.DueDate = *patch.DueDate
	}
	if patch.SubTasks != nil {
		t.SubTasks = assignSubTaskIDs(*patch.SubTasks)
		// completed through its sub-tasks: unchecking one reopens it
		if t.IsCompleted() && prev.AllSubTasksCompleted() && !t.AllSubTasksCompleted() {
			t.Status = backend.StatusTodo
		}
	}
	if patch.Tags != nil {
		t.Tags = append([]string(nil), (*patch.Tags)...)
	}

	if err := utils.ValidateTitle(t.Title); err != nil {
		s.mu.Unlock()
		return backend.Task{}, err
	}
	if patch.StartDate != nil || patch.DueDate != nil {
		if err := utils.ValidateDateRange(t.StartDate, t.DueDate); err != nil {
			s.mu.Unlock()
			return backend.Task{}, err
		}
	}

	now := s.now()
	t.UpdatedAt = now
	t = lifecycle.Apply(t, now)
	s.tasks[i] = t

	s.afterWriteLocked(t)
	result := t.Clone()
	s.unlockAndNotify()
	return result, nil
}

// ToggleCompleted flips a task between COMPLETED and TODO. The status is set
// directly; later derivations respect it.
func (s *Store) ToggleCompleted(id string) (backend.Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return backend.Task{}, ErrClosed
	}

	i := backend.FindTask(s.tasks, id)
	if i < 0 {
		s.mu.Unlock()
		return backend.Task{}, utils.ErrTaskNotFound(id)
	}

	t := lifecycle.ToggleCompleted(s.tasks[i])
	t.UpdatedAt = s.now()
	s.tasks[i] = t

	s.afterWriteLocked(t)
	result := t.Clone()
	s.unlockAndNotify()
	return result, nil
}

// SetSubTaskCompleted checks or unchecks one sub-task. Completing the last open
// sub-task completes the task; unchecking a sub-task of a completed task
// reopens it.
func (s *Store) SetSubTaskCompleted(taskID, subTaskID string, completed bool) (backend.Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return backend.Task{}, ErrClosed
	}

	i := backend.FindTask(s.tasks, taskID)
	if i < 0 {
		s.mu.Unlock()
		return backend.Task{}, utils.ErrTaskNotFound(taskID)
	}

	t := s.tasks[i].Clone()
	found := false
	for j := range t.SubTasks {
		if t.SubTasks[j].ID == subTaskID {
			t.SubTasks[j].Completed = completed
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return backend.Task{}, utils.ErrSubTaskNotFound(taskID, subTaskID)
	}

	if !completed && t.IsCompleted() {
		t.Status = backend.StatusTodo
	}
	now := s.now()
	t.UpdatedAt = now
	t = lifecycle.Apply(t, now)
	s.tasks[i] = t

	s.afterWriteLocked(t)
	result := t.Clone()
	s.unlockAndNotify()
	return result, nil
}

// afterWriteLocked persists a guest change or sends a remote update
func (s *Store) afterWriteLocked(t backend.Task) {
	if !s.isRemoteLocked() {
		s.persistLocked()
		return
	}
	if IsTempID(t.ID) {
		// the create response will carry the server copy; the edit is
		// resent once the task has a server id
		utils.Debugf("task %s is not created yet, update stays local", t.ID)
		return
	}
	s.updateRemoteLocked(t)
}

func (s *Store) updateRemoteLocked(t backend.Task) {
	payload := t.Clone()
	s.goRemoteLocked("update", t.ID, func(ctx context.Context, token string) (func(), error) {
		updated, err := s.remote.UpdateTask(ctx, token, &payload)
		if err != nil || updated == nil {
			return nil, err
		}
		return func() {
			if i := backend.FindTask(s.tasks, payload.ID); i >= 0 {
				s.tasks[i] = reconcile(*updated, s.tasks[i], s.now())
			}
		}, nil
	})
}

// DeleteTask removes the task. The local removal always stands; a remote
// failure is recorded but never reverses it.
func (s *Store) DeleteTask(id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	i := backend.FindTask(s.tasks, id)
	if i < 0 {
		s.mu.Unlock()
		return utils.ErrTaskNotFound(id)
	}
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)

	if s.isRemoteLocked() {
		if !IsTempID(id) {
			s.deleteRemoteLocked(id)
		}
	} else {
		s.persistLocked()
	}
	s.unlockAndNotify()
	return nil
}

func (s *Store) deleteRemoteLocked(id string) {
	s.goRemoteLocked("delete", id, func(ctx context.Context, token string) (func(), error) {
		return nil, s.remote.DeleteTask(ctx, token, id)
	})
}

// SetFilter merges a partial filter into the view state
func (s *Store) SetFilter(patch views.FilterPatch) {
	s.mu.Lock()
	s.state.Filter = s.state.Filter.Merge(patch)
	s.unlockAndNotify()
}

// SetSort merges a partial sort rule into the view state
func (s *Store) SetSort(patch views.SortPatch) {
	s.mu.Lock()
	s.state.Sort = s.state.Sort.Merge(patch)
	s.unlockAndNotify()
}

// SetActiveView selects the smart list
func (s *Store) SetActiveView(view views.SmartList) {
	s.mu.Lock()
	s.state.ActiveView = view
	s.unlockAndNotify()
}
