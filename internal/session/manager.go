// Package session tracks active conversations. Every session owns an
// independent conversation memory; there is no process-wide shared memory.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"personabot/internal/memory"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	Personality    string    `json:"personality"`
	TurnCount      int       `json:"turn_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// Memory is owned exclusively by this session. It is not part of the
	// JSON surface.
	Memory *memory.Conversation `json:"-"`
}

// Manager owns the session table and expires idle sessions.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionByUser     map[string]string
	inactivityTimeout time.Duration
	newMemory         func() *memory.Conversation
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration, newMemory func() *memory.Conversation) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	if newMemory == nil {
		newMemory = func() *memory.Conversation {
			return memory.NewConversation(memory.Options{})
		}
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionByUser:     make(map[string]string),
		inactivityTimeout: inactivityTimeout,
		newMemory:         newMemory,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) InactivityTimeout() time.Duration {
	return m.inactivityTimeout
}

func (m *Manager) Create(userID, personality string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		Personality:    personality,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
		Memory:         m.newMemory(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	if userID != "" {
		m.sessionByUser[userID] = s.ID
	}
	return s
}

// Get returns the live session. Callers share the session's memory, which
// carries its own synchronization; the metadata fields are read-only
// snapshots once handed out.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != StatusActive {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetOrCreate resolves sessionID, falling back to a fresh session when the
// ID is blank or unknown. Chat clients reconnecting after an expiry get a
// new session rather than an error.
func (m *Manager) GetOrCreate(sessionID, userID, personality string) *Session {
	if sessionID != "" {
		if s, err := m.Get(sessionID); err == nil {
			return s
		}
	}
	return m.Create(userID, personality)
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// RecordTurn bumps the turn counter and activity clock after a completed
// exchange.
func (m *Manager) RecordTurn(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.TurnCount++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// ClearMemory wipes the session's conversation memory while keeping the
// session alive.
func (m *Manager) ClearMemory(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	s.Memory.Clear()
	return m.Touch(sessionID)
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	s.Memory.Clear()
	if s.UserID != "" {
		delete(m.sessionByUser, s.UserID)
	}
	delete(m.sessions, sessionID)
	return s, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		s.Memory.Clear()
		expired = append(expired, s)
		if s.UserID != "" {
			delete(m.sessionByUser, s.UserID)
		}
		delete(m.sessions, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
