// Package store owns the task collection.
//
// A Store holds the authoritative in-memory list of tasks plus the view state
// (smart list, filter, sort). Every change follows the same cycle: take the
// lock, read the current collection, compute the next one, replace it, then
// notify subscribers outside the lock.
//
// When the current identity carries a bearer token the store runs in remote
// mode: mutations are applied optimistically and the remote call runs in the
// background, reconciling the entity when the response arrives. Responses
// issued under an earlier identity are discarded. Without a token the store
// runs in guest mode and persists the collection to the local store after
// every change.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskline/backend"
	"taskline/internal/credentials"
	"taskline/internal/utils"
	"taskline/internal/views"
)

// DefaultSweepInterval is how often status is re-derived from the clock.
const DefaultSweepInterval = 30 * time.Second

// Store is the task store. Create one with New and release it with Close.
type Store struct {
	remote        backend.TaskAPI
	local         backend.LocalStore
	now           func() time.Time
	sweepInterval time.Duration
	seedDemo      bool

	mu       sync.Mutex
	tasks    []backend.Task
	state    views.State
	identity credentials.Identity
	epoch    uint64
	loaded   bool
	sync     SyncState
	failures []Failure
	promoted map[string]string // temporary id -> server id
	subs     map[int]func()
	nextSub  int
	closed   bool

	ctx         context.Context
	cancel      context.CancelFunc
	inflight    sync.WaitGroup
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// Option configures a Store
type Option func(*Store)

// WithRemote sets the task server client used while a token is available
func WithRemote(api backend.TaskAPI) Option {
	return func(s *Store) {
		s.remote = api
	}
}

// WithLocal sets the durable guest-mode persistence
func WithLocal(local backend.LocalStore) Option {
	return func(s *Store) {
		s.local = local
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithSweepInterval sets the status sweep period used by Start
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithSeedDemo controls whether an empty guest collection is seeded
func WithSeedDemo(enabled bool) Option {
	return func(s *Store) {
		s.seedDemo = enabled
	}
}

// WithViewState sets the initial smart list, filter and sort
func WithViewState(state views.State) Option {
	return func(s *Store) {
		s.state = state
	}
}

// New creates a store. It starts empty; call SetIdentity to load a collection.
func New(opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		seedDemo:      true,
		state:         views.DefaultState(),
		promoted:      make(map[string]string),
		subs:          make(map[int]func()),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock's current instant
func (s *Store) Now() time.Time {
	return s.now()
}

// Subscribe registers fn to run after every change to the collection or view
// state. The returned function removes the subscription.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// subscribersLocked snapshots subscribers in registration order
func (s *Store) subscribersLocked() []func() {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	return fns
}

// unlockAndNotify releases the lock and then calls every subscriber
func (s *Store) unlockAndNotify() {
	fns := s.subscribersLocked()
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Start runs the periodic status sweep until ctx is cancelled or Close is called.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.sweepCancel != nil {
		s.mu.Unlock()
		return
	}
	sweepCtx, cancel := context.WithCancel(ctx)
	s.sweepCancel = cancel
	s.sweepDone = make(chan struct{})
	interval := s.sweepInterval
	done := s.sweepDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				s.Sweep(s.now())
			}
		}
	}()
}

// Wait blocks until every in-flight remote request has been applied.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// Close stops the sweep, lets in-flight remote requests finish and closes the
// local store. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sweepCancel, sweepDone := s.sweepCancel, s.sweepDone
	s.mu.Unlock()

	if sweepCancel != nil {
		sweepCancel()
		<-sweepDone
	}
	s.inflight.Wait()
	s.cancel()

	if s.local != nil {
		if err := s.local.Close(); err != nil {
			utils.Warnf("failed to close local store: %v", err)
			return err
		}
	}
	return nil
}

// isRemoteLocked reports whether mutations go to the task server
func (s *Store) isRemoteLocked() bool {
	return s.remote != nil && !s.identity.IsGuest()
}

// IsRemote reports whether the store is in remote mode
func (s *Store) IsRemote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRemoteLocked()
}

// Identity returns the identity the collection belongs to
func (s *Store) Identity() credentials.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// remoteCall captures who issued a background request
type remoteCall struct {
	op     string
	taskID string
	token  string
	epoch  uint64
}

// goRemoteLocked starts a tracked background request for the current
// identity. When it completes, the returned apply func runs under the lock
// only if the identity has not changed since the request was issued.
func (s *Store) goRemoteLocked(op, taskID string, run func(ctx context.Context, token string) (apply func(), err error)) {
	call := remoteCall{op: op, taskID: taskID, token: s.identity.Token, epoch: s.epoch}
	s.inflight.Add(1)

	go func() {
		defer s.inflight.Done()

		apply, err := run(s.ctx, call.token)

		s.mu.Lock()
		if s.epoch != call.epoch {
			s.mu.Unlock()
			utils.Debugf("discarding %s response for %s: identity changed", call.op, call.taskID)
			return
		}
		if err != nil {
			s.recordFailureLocked(call.op, call.taskID, err)
		} else {
			s.recordSuccessLocked()
		}
		if apply != nil {
			apply()
		}
		s.unlockAndNotify()
	}()
}
