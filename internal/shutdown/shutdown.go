// Package shutdown tears the application down in order: signal handling,
// named cleanup functions run last-registered-first, and a deadline for the
// whole sequence.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"taskline/internal/utils"
)

// CleanupFunc releases one resource. ctx expires when the shutdown deadline passes.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager coordinates shutdown of the resources opened by one command.
type Manager struct {
	mu       sync.Mutex
	cleanups []cleanupEntry
	ran      bool

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewManager creates a manager whose context is a child of parent.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{ctx: ctx, cancel: cancel}
}

// RegisterCleanup adds a cleanup. Cleanups run in LIFO order, so a resource
// registered after its dependencies is released before them.
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// Shutdown cancels Context. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.once.Do(m.cancel)
}

// Context is cancelled by Shutdown or by a handled signal.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// IsShutdown reports whether shutdown has been initiated.
func (m *Manager) IsShutdown() bool {
	return m.ctx.Err() != nil
}

// HandleSignals calls Shutdown on SIGINT or SIGTERM. The returned function
// stops listening.
func (m *Manager) HandleSignals() func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			utils.Debugf("received %s, shutting down", sig)
			m.Shutdown()
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
		})
	}
}

// Cleanup runs every registered cleanup once, newest first. A failing cleanup
// is logged and the rest still run; their errors are joined. If ctx expires
// first Cleanup returns ctx.Err() while the remaining cleanups finish in the
// background.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.Shutdown()

	m.mu.Lock()
	if m.ran {
		m.mu.Unlock()
		return nil
	}
	m.ran = true
	cleanups := append([]cleanupEntry(nil), m.cleanups...)
	m.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			c := cleanups[i]
			if err := c.fn(ctx); err != nil {
				utils.Warnf("cleanup %s failed: %v", c.name, err)
				errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		}
		result <- errors.Join(errs...)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
