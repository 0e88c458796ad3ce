// Package conversation keeps per-conversation chat history.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"kb-rag-api/internal/domain/entity"
	"kb-rag-api/pkg/logger"
	"kb-rag-api/pkg/metrics"
)

const (
	DefaultMaxStoredTurns = 50
	DefaultHistoryTurns   = 3
)

// Session is one conversation. Its turns are guarded by its own lock.
type Session struct {
	ID string

	mu      sync.Mutex
	turns   *ring
	loaded  bool
	deleted bool
}

// Manager owns all sessions. Its lock only guards the session map, so
// different conversations never wait on each other.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	store     TurnStore
	maxStored int
}

// NewManager builds a manager; store may be nil for memory-only sessions.
func NewManager(store TurnStore, maxStoredTurns int) *Manager {
	if maxStoredTurns <= 0 {
		maxStoredTurns = DefaultMaxStoredTurns
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		store:     store,
		maxStored: maxStoredTurns,
	}
}

// NormalizeID maps an empty id to the shared default conversation.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return entity.DefaultConversationID
	}
	return id
}

// GetOrCreate returns the session for id, hydrating it from the store on first use.
// A failed load leaves the session unhydrated; the next reference retries it.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	id = NormalizeID(id)

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id, turns: newRing(m.maxStored)}
		m.sessions[id] = s
		metrics.ActiveConversations.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := m.hydrate(ctx, s); err != nil {
		// history is advisory; answer without it rather than fail the request
		logger.Warn(ctx, "conversation history unavailable", "conversation_id", id, "error", err.Error())
	}
	return s, nil
}

// hydrate loads stored turns once. Callers hold s.mu.
func (m *Manager) hydrate(ctx context.Context, s *Session) error {
	if s.loaded || m.store == nil {
		s.loaded = true
		return nil
	}
	turns, err := m.store.Load(ctx, s.ID)
	if err != nil {
		return err
	}
	for _, t := range turns {
		s.turns.push(t)
	}
	s.loaded = true
	return nil
}

// Append adds one turn.
func (m *Manager) Append(ctx context.Context, s *Session, role entity.Role, content string) error {
	return m.appendTurns(ctx, s, entity.NewTurn(role, content))
}

// AppendExchange adds a user question and its answer as one unit: both or neither.
func (m *Manager) AppendExchange(ctx context.Context, s *Session, question, answer string) error {
	return m.appendTurns(ctx, s,
		entity.NewTurn(entity.RoleUser, question),
		entity.NewTurn(entity.RoleAssistant, answer),
	)
}

func (m *Manager) appendTurns(ctx context.Context, s *Session, turns ...entity.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleted {
		return nil
	}
	// saving an unhydrated session would overwrite the stored history
	if err := m.hydrate(ctx, s); err != nil {
		return fmt.Errorf("load conversation %s: %w", s.ID, err)
	}

	var before *ring
	if m.store != nil {
		before = s.turns.clone()
	}
	for _, t := range turns {
		s.turns.push(t)
	}
	if m.store == nil {
		return nil
	}
	if err := m.store.Save(ctx, s.ID, s.turns.all()); err != nil {
		s.turns = before
		return err
	}
	return nil
}

// Turns returns a copy of the stored history, oldest first.
func (m *Manager) Turns(s *Session) []entity.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns.all()
}

// RenderHistory formats the last maxTurns exchanges as "User: ..." / "Assistant: ..." lines.
func (m *Manager) RenderHistory(s *Session, maxTurns int) string {
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryTurns
	}
	s.mu.Lock()
	recent := s.turns.last(2 * maxTurns)
	s.mu.Unlock()

	lines := make([]string, 0, len(recent))
	for _, t := range recent {
		if t.Role != entity.RoleUser && t.Role != entity.RoleAssistant {
			continue
		}
		lines = append(lines, t.Role.Label()+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

// Delete forgets a conversation in memory and in the store. Appends still
// in flight on the old session are dropped.
func (m *Manager) Delete(ctx context.Context, id string) error {
	id = NormalizeID(id)
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	metrics.ActiveConversations.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		s.deleted = true
		s.turns = newRing(m.maxStored)
		s.mu.Unlock()
	}
	if m.store != nil {
		return m.store.Delete(ctx, id)
	}
	return nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
