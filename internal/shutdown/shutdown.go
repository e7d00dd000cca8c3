// Package shutdown turns signals (OS or user-defined) into context cancellation and callbacks.
//
// A signal is any comparable value. Each signal triggers at most once; triggering cancels the
// signal's context and runs its callbacks in the reverse order of registration, stopping at the first
// error. [os.Signal] values are forwarded from the OS automatically once they're used.
package shutdown

import (
	"context"
	"os"
	ossignal "os/signal" // rename so we can have function args named 'signal'
	"sync"

	"golang.org/x/exp/slices"
)

type Manager struct {
	mu      sync.Mutex
	signals map[any]*signalState
	stopped bool
}

type signalState struct {
	ctx    context.Context
	cancel context.CancelFunc

	callbacks []func(context.Context) error
	cleanup   func()
	triggered bool
}

func New() *Manager {
	return &Manager{signals: make(map[any]*signalState)}
}

var canceledContext = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// called with m.mu held
func (m *Manager) state(signal any) *signalState {
	s, ok := m.signals[signal]
	if !ok {
		s = &signalState{}
		s.ctx, s.cancel = context.WithCancel(context.Background())
		m.signals[signal] = s
	}

	if sig, ok := signal.(os.Signal); ok && s.cleanup == nil && !s.triggered {
		ch := make(chan os.Signal, 1)
		ossignal.Notify(ch, sig)
		stop := make(chan struct{})
		s.cleanup = func() {
			ossignal.Stop(ch)
			close(stop)
		}
		go func() {
			select {
			case <-ch:
				_ = m.Trigger(signal, context.Background())
			case <-stop:
			}
		}()
	}
	return s
}

// On registers callbacks for when signal triggers. If it already has, the callbacks are run right
// away, in reverse order.
func (m *Manager) On(signal any, ctx context.Context, callbacks ...func(context.Context) error) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}

	s := m.state(signal)
	if !s.triggered {
		s.callbacks = append(s.callbacks, callbacks...)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	return runReversed(ctx, callbacks)
}

// Context returns a context that is canceled once signal triggers, or once the Manager stops.
func (m *Manager) Context(signal any) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return canceledContext
	}
	return m.state(signal).ctx
}

// Triggered returns whether signal has triggered
func (m *Manager) Triggered(signal any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[signal]
	return ok && s.triggered
}

// Trigger fires signal: its context is canceled and its callbacks run. Triggering a signal that has
// already triggered does nothing.
func (m *Manager) Trigger(signal any, ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}

	s := m.state(signal)
	if s.triggered {
		m.mu.Unlock()
		return nil
	}
	s.triggered = true
	s.cancel()
	callbacks := slices.Clone(s.callbacks)
	s.callbacks = nil
	m.mu.Unlock()

	// callbacks may be reentrant, so they run without the lock
	return runReversed(ctx, callbacks)
}

func runReversed(ctx context.Context, callbacks []func(context.Context) error) error {
	for i := len(callbacks) - 1; i >= 0; i -= 1 {
		if err := callbacks[i](ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop releases OS signal forwarding and cancels every outstanding context. Callbacks that never
// triggered are dropped.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true

	for _, s := range m.signals {
		if s.cleanup != nil {
			s.cleanup()
		}
		s.cancel()
		s.callbacks = nil
	}
}
