package store

import (
	"context"
	"time"

	"taskline/backend"
	"taskline/internal/credentials"
	"taskline/internal/lifecycle"
	"taskline/internal/utils"
)

// SetIdentity switches the collection to the one owned by id. Responses to
// requests issued under the previous identity are discarded from now on.
//
// A guest loads the local store, seeding the demo set when nothing was ever
// saved. An identity with a token fetches the remote list; if the fetch
// fails the collection stays empty and the failure is recorded.
func (s *Store) SetIdentity(ctx context.Context, id credentials.Identity) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.identity = id
	s.epoch++
	s.tasks = nil
	s.loaded = false
	epoch := s.epoch
	remote := s.isRemoteLocked()
	s.mu.Unlock()

	if remote {
		return s.loadRemote(ctx, id.Token, epoch)
	}
	return s.loadGuest(ctx, epoch)
}

// Reload fetches the collection again for the current identity
func (s *Store) Reload(ctx context.Context) error {
	return s.SetIdentity(ctx, s.Identity())
}

// Loaded reports whether the collection for the current identity was loaded
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Store) loadRemote(ctx context.Context, token string, epoch uint64) error {
	utils.Debugf("loading tasks from %T", s.remote)
	tasks, err := s.remote.ListTasks(ctx, token)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		utils.Debugf("discarding task list: identity changed")
		return nil
	}
	if err != nil {
		s.recordFailureLocked("list", "", err)
		s.tasks = nil
		s.unlockAndNotify()
		return nil
	}

	s.recordSuccessLocked()
	s.tasks = s.prepareLocked(tasks)
	s.loaded = true
	s.unlockAndNotify()
	return nil
}

func (s *Store) loadGuest(ctx context.Context, epoch uint64) error {
	var (
		tasks []backend.Task
		found bool
		err   error
	)
	if s.local != nil {
		tasks, found, err = s.local.LoadTasks(ctx)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.recordFailureLocked("load", "", err)
		s.tasks = nil
		s.unlockAndNotify()
		return nil
	}

	seeded := false
	if !found && s.seedDemo {
		tasks = DemoTasks(s.now())
		seeded = true
	}
	s.tasks = s.prepareLocked(tasks)
	s.loaded = true
	if seeded {
		utils.Debugf("seeded %d demo tasks", len(s.tasks))
		s.persistLocked()
	}
	s.unlockAndNotify()
	return nil
}

// prepareLocked normalizes loaded tasks and materializes their status
func (s *Store) prepareLocked(tasks []backend.Task) []backend.Task {
	now := s.now()
	out := make([]backend.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, lifecycle.Apply(t, now))
	}
	return out
}

// Sweep re-derives the status of every task at now. Only tasks whose status
// changes are written (and get a fresh UpdatedAt). It returns the number of
// changed tasks; subscribers are notified only when it is not zero.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	changed := 0
	for i := range s.tasks {
		t := &s.tasks[i]
		status := lifecycle.DeriveStatus(t, now)
		if status == t.Status {
			continue
		}
		utils.Debugf("task %s: %s -> %s", t.ID, t.Status, status)
		t.Status = status
		t.UpdatedAt = now
		changed++
	}
	if changed == 0 {
		s.mu.Unlock()
		return 0
	}
	s.persistLocked()
	s.unlockAndNotify()
	return changed
}
