package store

import (
	"time"

	"taskline/backend"
	"taskline/internal/lifecycle"
	"taskline/internal/utils"
)

// maxFailures bounds the failure log
const maxFailures = 50

// SyncState summarizes remote and local I/O outcomes
type SyncState struct {
	SyncCount  int       `json:"syncCount"`
	ErrorCount int       `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`
	LastSync   time.Time `json:"lastSync,omitempty"`
}

// Failure is one logged I/O failure
type Failure struct {
	Op     string    `json:"op"`
	TaskID string    `json:"taskId,omitempty"`
	Err    string    `json:"error"`
	At     time.Time `json:"at"`
}

// SyncState returns a copy of the current sync counters
func (s *Store) SyncState() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync
}

// Failures returns the most recent failures, oldest first
func (s *Store) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Failure(nil), s.failures...)
}

// FailuresSince returns the failures recorded after the error count reached
// mark, oldest first. Entries that already fell out of the bounded log are
// not returned, but the newest ones are always kept.
func (s *Store) FailuresSince(mark int) []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.sync.ErrorCount - mark
	if n <= 0 {
		return nil
	}
	if n > len(s.failures) {
		n = len(s.failures)
	}
	return append([]Failure(nil), s.failures[len(s.failures)-n:]...)
}

func (s *Store) recordSuccessLocked() {
	s.sync.SyncCount++
	s.sync.LastSync = s.now()
}

func (s *Store) recordFailureLocked(op, taskID string, err error) {
	if taskID != "" {
		utils.Warnf("failed to %s task %s: %v", op, taskID, err)
	} else {
		utils.Warnf("failed to %s: %v", op, err)
	}

	s.sync.ErrorCount++
	s.sync.LastError = err.Error()
	s.failures = append(s.failures, Failure{Op: op, TaskID: taskID, Err: err.Error(), At: s.now()})
	if len(s.failures) > maxFailures {
		s.failures = append([]Failure(nil), s.failures[len(s.failures)-maxFailures:]...)
	}
}

// reconcile merges a server response into the optimistic entity.
// Server fields win, except sub-task completion flags which the client owns,
// and the optimistic status which is kept as the stored status before
// re-derivation. A response without sub-tasks keeps the client's.
func reconcile(server, optimistic backend.Task, now time.Time) backend.Task {
	t := lifecycle.Normalize(server)
	if t.ID == "" {
		t.ID = optimistic.ID
	}

	if len(t.SubTasks) == 0 {
		t.SubTasks = append([]backend.SubTask(nil), optimistic.SubTasks...)
	} else {
		completed := make(map[string]bool, len(optimistic.SubTasks))
		for _, st := range optimistic.SubTasks {
			completed[st.ID] = st.Completed
		}
		for i := range t.SubTasks {
			if done, ok := completed[t.SubTasks[i].ID]; ok {
				t.SubTasks[i].Completed = done
			}
		}
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = optimistic.CreatedAt
	}
	if t.UpdatedAt.Before(optimistic.UpdatedAt) {
		t.UpdatedAt = optimistic.UpdatedAt
	}

	t.Status = optimistic.Status
	t.Status = lifecycle.DeriveStatus(&t, now)
	return t
}

// persistLocked writes the guest collection to the local store
func (s *Store) persistLocked() {
	if s.local == nil || s.isRemoteLocked() {
		return
	}
	if err := s.local.SaveTasks(s.ctx, backend.CloneTasks(s.tasks)); err != nil {
		s.recordFailureLocked("save", "", err)
	}
}
