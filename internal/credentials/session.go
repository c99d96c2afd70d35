package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"taskline/internal/utils"
)

// Identity is the caller on whose behalf tasks are read and written.
// The zero value is the guest.
type Identity struct {
	Username string
	Token    string
	Source   Source
}

// IsGuest reports whether no bearer credential is available
func (i Identity) IsGuest() bool {
	return i.Token == ""
}

// Equal compares the parts of an identity that select a task collection
func (i Identity) Equal(other Identity) bool {
	return i.Username == other.Username && i.Token == other.Token
}

// String returns a display name
func (i Identity) String() string {
	switch {
	case i.IsGuest():
		return "guest"
	case i.Username == "":
		return "token from " + string(i.Source)
	default:
		return i.Username
	}
}

// marker is the session file shared by every taskline process. It names the
// logged-in account; the token itself stays in the keyring.
type marker struct {
	Username   string    `json:"username"`
	LoggedInAt time.Time `json:"loggedInAt"`
}

// Session tracks the current identity and notifies subscribers when it
// changes, either through Login/Logout or through Refresh after another
// process rewrote the session file.
type Session struct {
	manager *Manager
	path    string

	mu      sync.Mutex
	current Identity
	subs    map[int]func(Identity)
	nextSub int
}

// NewSession creates a session backed by the marker file at path.
// Call Refresh to load the persisted identity.
func NewSession(manager *Manager, path string) *Session {
	return &Session{
		manager: manager,
		path:    path,
		subs:    make(map[int]func(Identity)),
	}
}

// Path returns the session marker file location
func (s *Session) Path() string {
	return s.path
}

// Current returns the active identity
func (s *Session) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Token returns the active bearer token, or "" for the guest
func (s *Session) Token() string {
	return s.Current().Token
}

// Subscribe registers fn to be called with the new identity after every
// change. The returned function removes the subscription.
func (s *Session) Subscribe(fn func(Identity)) func() {
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

// Refresh re-reads the marker file and keyring. Subscribers are notified
// only when the identity actually changed.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	next, err := s.resolve(ctx)
	if err != nil {
		return false, err
	}
	return s.set(next), nil
}

// Login stores the token and publishes the new identity
func (s *Session) Login(ctx context.Context, username, token string) error {
	if err := s.manager.Set(ctx, username, token); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return utils.WrapWithSuggestion(err,
				fmt.Sprintf("Export %s=<token> to use the task server without a keyring", EnvToken))
		}
		return fmt.Errorf("failed to store token: %w", err)
	}

	if err := s.writeMarker(marker{Username: normalizeUsername(username), LoggedInAt: time.Now().UTC()}); err != nil {
		return err
	}

	_, err := s.Refresh(ctx)
	return err
}

// Logout forgets the stored token. A token supplied through the
// environment stays in effect.
func (s *Session) Logout(ctx context.Context) error {
	m, err := s.readMarker()
	if err != nil {
		return err
	}
	if m.Username != "" {
		if err := s.manager.Delete(ctx, m.Username); err != nil && !errors.Is(err, ErrKeyringNotAvailable) {
			return fmt.Errorf("failed to remove token: %w", err)
		}
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}

	_, err = s.Refresh(ctx)
	return err
}

// resolve builds the identity described by the marker file and keyring
func (s *Session) resolve(ctx context.Context) (Identity, error) {
	m, err := s.readMarker()
	if err != nil {
		return Identity{}, err
	}

	info, err := s.manager.Get(ctx, m.Username)
	if err != nil {
		return Identity{}, err
	}
	if !info.Found {
		return Identity{}, nil
	}
	return Identity{Username: info.Username, Token: info.Token, Source: info.Source}, nil
}

// set swaps the identity and notifies subscribers outside the lock
func (s *Session) set(next Identity) bool {
	s.mu.Lock()
	if s.current.Equal(next) {
		s.current = next
		s.mu.Unlock()
		return false
	}
	s.current = next

	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Identity), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	s.mu.Unlock()

	utils.Debugf("identity changed to %s", next)
	for _, fn := range subs {
		fn(next)
	}
	return true
}

func (s *Session) readMarker() (marker, error) {
	var m marker
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return m, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		utils.Warnf("ignoring corrupt session file %s: %v", s.path, err)
		return marker{}, nil
	}
	return m, nil
}

// writeMarker replaces the marker atomically so watchers never see a
// half-written file.
func (s *Session) writeMarker(m marker) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}
