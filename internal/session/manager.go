package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Manager owns the live session table. Sessions are created lazily on first
// dispatch, so an unknown ID in an orchestrate call is never an error.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*State
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*State)}
}

// Open registers a fresh session and returns its generated ID.
func (m *Manager) Open() *State {
	s := newState(uuid.NewString())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s
}

// GetOrCreate returns the state for id, creating it on first sight.
func (m *Manager) GetOrCreate(id string) *State {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s = newState(id)
	m.sessions[id] = s
	return s
}

// Get returns the state for id without creating it.
func (m *Manager) Get(id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close drops the session from the table and returns its final summary.
func (m *Manager) Close(id string) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Summary{}, ErrNotFound
	}
	delete(m.sessions, id)
	return s.Summary(), nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
