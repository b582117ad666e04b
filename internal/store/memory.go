package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps every record in process memory. It backs DB_PATH=":memory:"
// and the tests of packages that need a Store.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	questions map[string][]Question
	answers   map[string]map[string]Answer // session -> question id -> answer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]Session),
		questions: make(map[string][]Question),
		answers:   make(map[string]map[string]Answer),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.CompletedQuestions = len(m.answers[id])
	return &s, nil
}

func (m *MemoryStore) CompleteSession(ctx context.Context, id string, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = StatusCompleted
	s.EndTime = end
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) SaveQuestion(ctx context.Context, q *Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[q.SessionID]; !ok {
		return fmt.Errorf("failed to save question: session %s: %w", q.SessionID, ErrNotFound)
	}
	for _, existing := range m.questions[q.SessionID] {
		if existing.Number == q.Number {
			return fmt.Errorf("failed to save question: number %d already issued", q.Number)
		}
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	m.questions[q.SessionID] = append(m.questions[q.SessionID], *q)
	return nil
}

func (m *MemoryStore) ListQuestions(ctx context.Context, sessionID string) ([]*Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Question, 0, len(m.questions[sessionID]))
	for _, q := range m.questions[sessionID] {
		q := q
		out = append(out, &q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStore) SaveAnswer(ctx context.Context, a *Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[a.SessionID]; !ok {
		return fmt.Errorf("failed to save answer: session %s: %w", a.SessionID, ErrNotFound)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	byQuestion := m.answers[a.SessionID]
	if byQuestion == nil {
		byQuestion = make(map[string]Answer)
		m.answers[a.SessionID] = byQuestion
	}
	if prev, ok := byQuestion[a.QuestionID]; ok {
		a.ID = prev.ID
		a.CreatedAt = prev.CreatedAt
	}
	byQuestion[a.QuestionID] = *a
	return nil
}

func (m *MemoryStore) ListAnswers(ctx context.Context, sessionID string) ([]*Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Answer, 0, len(m.answers[sessionID]))
	for _, a := range m.answers[sessionID] {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
