package sessions

import (
	"context"
	"sync"
)

// Manager serializes active-session transitions per context key. The
// singleton invariant depends on check-then-act sequences (check no session
// is active, then promote one) running without interleaving, so every
// lifecycle operation runs its whole transition inside Do for its key.
// Different keys proceed independently.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager wraps a Store with per-key serialization.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}

// Do runs fn while holding the lock for key. fn may perform network I/O;
// operations on the same key wait, operations on other keys do not.
func (m *Manager) Do(key string, fn func() error) error {
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// Active returns the active session for key. Safe to call inside Do.
func (m *Manager) Active(ctx context.Context, key string) (*Session, error) {
	return m.store.GetActive(ctx, key)
}

// SetActive promotes session to active for key, or clears the slot when
// session is nil. Sessions without a backend ID are rejected.
func (m *Manager) SetActive(ctx context.Context, key string, session *Session) (*Session, error) {
	if session != nil && session.ID == "" {
		return nil, ErrMissingSessionID
	}
	return m.store.SetActive(ctx, key, session)
}

// ActiveIdentity returns the active social identity pointer for key.
func (m *Manager) ActiveIdentity(ctx context.Context, key string) (*ActiveIdentity, error) {
	return m.store.GetActiveIdentity(ctx, key)
}

// SetActiveIdentity replaces (or, with nil, clears) the active social
// identity pointer for key.
func (m *Manager) SetActiveIdentity(ctx context.Context, key string, identity *ActiveIdentity) error {
	return m.store.SetActiveIdentity(ctx, key, identity)
}
