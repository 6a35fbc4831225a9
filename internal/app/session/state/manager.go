package state

import (
	"sync"
	"time"

	"github.com/osa030/routinetimer/internal/domain/sequence"
)

// Loaded describes the session currently installed in the timer.
type Loaded struct {
	Source    Source
	RoutineID string // Empty unless Source is SourceRoutine
	Title     string
	Steps     []sequence.Step
	Shuffled  bool
	LoadedAt  time.Time
}

// Manager manages session state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	loaded    Loaded
	completed int // Sessions completed since the process started
}

// New creates a new state manager.
func New() *Manager {
	return &Manager{}
}

// SetLoaded records a newly loaded session.
func (m *Manager) SetLoaded(l Loaded) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.Steps = append([]sequence.Step(nil), l.Steps...)
	m.loaded = l
}

// GetLoaded returns the loaded session description.
func (m *Manager) GetLoaded() Loaded {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l := m.loaded
	l.Steps = append([]sequence.Step(nil), l.Steps...)
	return l
}

// IncCompleted counts a completed session.
func (m *Manager) IncCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
}

// GetCompleted returns the number of completed sessions.
func (m *Manager) GetCompleted() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.completed
}
