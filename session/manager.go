package session

import (
	"sync"
)

type managerKey struct {
	appKey string
	origin string
}

// Manager hands out one Client per (app key, origin) pair so repeated
// shares from the same app reuse its login cookies.
//
// A sync.RWMutex guards the map; lookups of an existing client only take
// the read lock.
type Manager struct {
	mu      sync.RWMutex
	clients map[managerKey]*Client
	opts    []Option
}

// NewManager returns an empty Manager.  opts are applied to every Client it
// creates.
func NewManager(opts ...Option) *Manager {
	return &Manager{
		clients: make(map[managerKey]*Client),
		opts:    opts,
	}
}

// Get returns the Client for appKey and originURL, creating it on first use.
// Creation errors are those of New and nothing is cached for them.
func (m *Manager) Get(appKey, originURL string) (*Client, error) {
	k := managerKey{appKey: appKey, origin: originURL}

	m.mu.RLock()
	c, ok := m.clients[k]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[k]; ok {
		return c, nil
	}
	c, err := New(appKey, originURL, m.opts...)
	if err != nil {
		return nil, err
	}
	m.clients[k] = c
	return c, nil
}

// Forget drops the cached Client for the pair, so the next Get starts with
// an empty cookie jar.  It reports whether one was cached.
func (m *Manager) Forget(appKey, originURL string) bool {
	k := managerKey{appKey: appKey, origin: originURL}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.clients[k]
	delete(m.clients, k)
	return ok
}

// Count returns the number of cached clients.
func (m *Manager) Count() int {
	m.mu.RLock()
	n := len(m.clients)
	m.mu.RUnlock()
	return n
}
