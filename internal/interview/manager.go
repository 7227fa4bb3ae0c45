package interview

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("session not found")

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Manager keeps sessions in memory and forgets them after IdleTTL without use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	opts     Options
	idleTTL  time.Duration
	now      func() time.Time
}

func NewManager(opts Options, idleTTL time.Duration) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*entry),
		opts:     opts,
		idleTTL:  idleTTL,
		now:      time.Now,
	}
}

// Create starts a new session and tracks it.
func (m *Manager) Create() *Session {
	s := NewSession(m.opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = &entry{session: s, lastSeen: m.now()}
	return s
}

// Get returns the session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastSeen = m.now()
	return e.session, nil
}

func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Evict drops sessions idle for longer than IdleTTL. Sessions waiting on the
// generator are kept. It returns how many were removed.
func (m *Manager) Evict() int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if e.lastSeen.Before(cutoff) && !e.session.Pending() {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Evict(); n > 0 {
				m.opts.Logger.Debug("evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}
