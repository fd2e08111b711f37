// Package connectivity tracks online/offline transitions and fires resume hooks.
package connectivity

import (
	"sync"

	"go.uber.org/zap"
)

// Monitor holds the current connectivity state. It is purely event-driven:
// the embedding runtime feeds platform network-availability signals into
// SetOnline, and the monitor never polls. Each real transition fires the
// registered hooks exactly once.
type Monitor struct {
	log *zap.Logger

	mu     sync.Mutex
	online bool
	hooks  []func(online bool)
}

// New creates a monitor with the given initial state.
func New(online bool, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{online: online, log: log}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers a hook invoked on each state transition. Hooks run on a
// fresh goroutine so signal delivery never blocks on sync work.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// OnOnline registers a hook invoked only on offline-to-online transitions:
// the resume-pending-work hook.
func (m *Monitor) OnOnline(fn func()) {
	m.OnChange(func(online bool) {
		if online {
			fn()
		}
	})
}

// SetOnline feeds a platform connectivity signal. Repeated signals with the
// same value are ignored. Going offline only flips the flag; work already in
// flight finishes or fails naturally.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	hooks := append(([]func(bool))(nil), m.hooks...)
	m.mu.Unlock()

	m.log.Info("connectivity changed", zap.Bool("online", online))
	for _, fn := range hooks {
		go fn(online)
	}
}
