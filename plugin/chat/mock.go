package chat

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/callsight/store"
)

// MockRepository is an in-memory Repository for tests. It emulates the
// database: the foreign key and role check on chat_messages, the insert
// trigger maintaining message_count, last_message_at and updated_at, and
// owner-scoped updates. Every call is recorded and any method can be made
// to fail with FailOn.
type MockRepository struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]*store.ChatSession
	messages map[string][]*store.ChatMessage
	calls    []string
	failures map[string]error
	feed     chan *store.ChatChange
}

// NewMockRepository creates an empty MockRepository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		now:      time.Now,
		sessions: make(map[string]*store.ChatSession),
		messages: make(map[string][]*store.ChatMessage),
		failures: make(map[string]error),
	}
}

// SetClock replaces the clock used for created_at and updated_at.
func (m *MockRepository) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailOn makes every later call to method return err. A nil err clears it.
func (m *MockRepository) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// Calls returns the recorded method names in call order.
func (m *MockRepository) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// CallCount returns how many times method was called.
func (m *MockRepository) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, call := range m.calls {
		if call == method {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (m *MockRepository) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// PutSession stores a session as-is, for seeding derived fields and
// timestamps the create path does not accept.
func (m *MockRepository) PutSession(session *store.ChatSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = cloneSession(session)
}

// StoredMessages returns the messages of a session in insertion order.
func (m *MockRepository) StoredMessages(sessionID string) []*store.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*store.ChatMessage, 0, len(m.messages[sessionID]))
	for _, msg := range m.messages[sessionID] {
		list = append(list, cloneMessage(msg))
	}
	return list
}

// EnableChangeFeed makes WatchChatChanges return a feed the test writes to.
func (m *MockRepository) EnableChangeFeed(buffer int) chan<- *store.ChatChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feed = make(chan *store.ChatChange, buffer)
	return m.feed
}

// record must be called with m.mu held.
func (m *MockRepository) record(method string) error {
	m.calls = append(m.calls, method)
	return m.failures[method]
}

func (m *MockRepository) CreateChatSession(_ context.Context, create *store.ChatSession) (*store.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateChatSession"); err != nil {
		return nil, err
	}
	if _, ok := m.sessions[create.ID]; ok {
		return nil, fmt.Errorf("duplicate key chat_sessions.id %s", create.ID)
	}

	now := m.now()
	session := cloneSession(create)
	session.Filter = session.Filter.Normalize()
	session.MessageCount = 0
	session.LastMessageAt = nil
	session.CreatedAt = now
	session.UpdatedAt = now
	m.sessions[session.ID] = session
	return cloneSession(session), nil
}

func (m *MockRepository) ListChatSessions(_ context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ListChatSessions"); err != nil {
		return nil, err
	}
	return m.findSessions(find), nil
}

func (m *MockRepository) GetChatSession(_ context.Context, find *store.FindChatSession) (*store.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("GetChatSession"); err != nil {
		return nil, err
	}
	list := m.findSessions(find)
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (m *MockRepository) findSessions(find *store.FindChatSession) []*store.ChatSession {
	list := make([]*store.ChatSession, 0)
	for _, session := range m.sessions {
		if find.ID != nil && session.ID != *find.ID {
			continue
		}
		if find.UserID != nil && session.UserID != *find.UserID {
			continue
		}
		if find.Archived != nil && session.Archived != *find.Archived {
			continue
		}
		if find.Pinned != nil && session.Pinned != *find.Pinned {
			continue
		}
		if find.UpdatedBefore != nil && !session.UpdatedAt.Before(*find.UpdatedBefore) {
			continue
		}
		list = append(list, cloneSession(session))
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list
}

func (m *MockRepository) UpdateChatSession(_ context.Context, update *store.UpdateChatSession) (*store.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("UpdateChatSession"); err != nil {
		return nil, err
	}
	if update.Title == nil && update.Description == nil && update.Pinned == nil && update.Archived == nil {
		return nil, fmt.Errorf("no fields to update")
	}

	session, ok := m.sessions[update.ID]
	if !ok || (update.UserID != nil && session.UserID != *update.UserID) {
		return nil, store.ErrNotFound
	}
	if update.OnlyIfUntitled && session.Title != nil {
		return nil, store.ErrNotFound
	}

	if update.Title != nil {
		title := *update.Title
		session.Title = &title
	}
	if update.Description != nil {
		description := *update.Description
		session.Description = &description
	}
	if update.Pinned != nil {
		session.Pinned = *update.Pinned
	}
	if update.Archived != nil {
		session.Archived = *update.Archived
	}
	m.touch(session)
	return cloneSession(session), nil
}

func (m *MockRepository) DeleteChatSession(_ context.Context, find *store.DeleteChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DeleteChatSession"); err != nil {
		return err
	}
	session, ok := m.sessions[find.ID]
	if !ok || (find.UserID != nil && session.UserID != *find.UserID) {
		return store.ErrNotFound
	}
	delete(m.sessions, session.ID)
	delete(m.messages, session.ID)
	return nil
}

func (m *MockRepository) CreateChatMessages(_ context.Context, creates []*store.ChatMessage) ([]*store.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateChatMessages"); err != nil {
		return nil, err
	}

	// Validate the whole batch first so a bad row inserts nothing.
	for _, create := range creates {
		if _, ok := m.sessions[create.SessionID]; !ok {
			return nil, fmt.Errorf("foreign key violation: chat_sessions %s", create.SessionID)
		}
		if !create.Role.IsValid() {
			return nil, fmt.Errorf("check constraint violation: role %q", create.Role)
		}
	}

	list := make([]*store.ChatMessage, 0, len(creates))
	for _, create := range creates {
		msg := cloneMessage(create)
		m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)

		session := m.sessions[msg.SessionID]
		session.MessageCount++
		if session.LastMessageAt == nil || msg.CreatedAt.After(*session.LastMessageAt) {
			last := msg.CreatedAt
			session.LastMessageAt = &last
		}
		m.touch(session)
		list = append(list, cloneMessage(msg))
	}
	return list, nil
}

func (m *MockRepository) ListChatMessages(_ context.Context, find *store.FindChatMessage) ([]*store.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ListChatMessages"); err != nil {
		return nil, err
	}

	list := make([]*store.ChatMessage, 0)
	for sessionID, messages := range m.messages {
		if find.SessionID != nil && sessionID != *find.SessionID {
			continue
		}
		for _, msg := range messages {
			if find.ID != nil && msg.ID != *find.ID {
				continue
			}
			list = append(list, cloneMessage(msg))
		}
	}
	sortMessages(list)
	return list, nil
}

func (m *MockRepository) ListChatMessageKeys(_ context.Context, sessionID string) ([]*store.ChatMessageKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("ListChatMessageKeys"); err != nil {
		return nil, err
	}

	messages := slices.Clone(m.messages[sessionID])
	sortMessages(messages)
	keys := make([]*store.ChatMessageKey, 0, len(messages))
	for _, msg := range messages {
		keys = append(keys, &store.ChatMessageKey{Role: msg.Role, Content: msg.Content, CreatedAt: msg.CreatedAt})
	}
	return keys, nil
}

func (m *MockRepository) WatchChatChanges(_ context.Context) (<-chan *store.ChatChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("WatchChatChanges"); err != nil {
		return nil, err
	}
	if m.feed == nil {
		return nil, store.ErrChangeFeedNotSupported
	}
	return m.feed, nil
}

// touch keeps updated_at monotonic even when the clock stands still.
func (m *MockRepository) touch(session *store.ChatSession) {
	now := m.now()
	if now.After(session.UpdatedAt) {
		session.UpdatedAt = now
	}
}

func sortMessages(list []*store.ChatMessage) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func cloneSession(s *store.ChatSession) *store.ChatSession {
	c := *s
	c.Title = clonePtr(s.Title)
	c.Description = clonePtr(s.Description)
	c.LastMessageAt = clonePtr(s.LastMessageAt)
	c.Filter.DateStart = clonePtr(s.Filter.DateStart)
	c.Filter.DateEnd = clonePtr(s.Filter.DateEnd)
	c.Filter.Speakers = slices.Clone(s.Filter.Speakers)
	c.Filter.Categories = slices.Clone(s.Filter.Categories)
	c.Filter.RecordingIDs = slices.Clone(s.Filter.RecordingIDs)
	return &c
}

func cloneMessage(msg *store.ChatMessage) *store.ChatMessage {
	c := *msg
	c.Parts = slices.Clone(msg.Parts)
	c.Model = clonePtr(msg.Model)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ensure MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)
