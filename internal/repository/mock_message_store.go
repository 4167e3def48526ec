package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ricirt/missedmail/internal/domain"
)

// MockMessageStore is a hand-written, in-memory implementation of
// MessageStore used in unit tests. No mock-generation library needed.
type MockMessageStore struct {
	mu       sync.RWMutex
	users    map[int64]*domain.User
	messages map[int64]*domain.Message
	// delivered[userID][messageID] = read flag
	delivered map[int64]map[int64]bool
	nextID    int64
	clock     time.Time

	// Optional error overrides; set in tests to simulate failure paths.
	GetUserErr    error
	GetMessageErr map[int64]error
	ContextErr    error
}

func NewMockMessageStore() *MockMessageStore {
	return &MockMessageStore{
		users:         make(map[int64]*domain.User),
		messages:      make(map[int64]*domain.Message),
		delivered:     make(map[int64]map[int64]bool),
		GetMessageErr: make(map[int64]error),
		clock:         time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

// AddUser registers an active user.
func (m *MockMessageStore) AddUser(id int64, fullName, email string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &domain.User{ID: id, FullName: fullName, Email: email, IsActive: true}
	m.users[id] = u
	return *u
}

// Deactivate flips a user's active flag off.
func (m *MockMessageStore) Deactivate(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.IsActive = false
	}
}

// SendStream posts to a stream topic and delivers it to subscribers.
// Each call advances the mock clock by one second.
func (m *MockMessageStore) SendStream(senderID, streamID int64, streamName, topic, content string, subscribers ...int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.newMessage(senderID, content)
	msg.RecipientType = domain.RecipientStream
	msg.StreamID = streamID
	msg.StreamName = streamName
	msg.Topic = topic
	m.deliver(msg.ID, append([]int64{senderID}, subscribers...))
	return msg.ID
}

// SendPrivate posts a personal (one recipient) or huddle (several) message.
func (m *MockMessageStore) SendPrivate(senderID int64, content string, recipients ...int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.newMessage(senderID, content)
	msg.RecipientType = domain.RecipientPersonal
	if len(recipients) > 1 {
		msg.RecipientType = domain.RecipientHuddle
	}
	all := append([]int64{senderID}, recipients...)
	for _, id := range all {
		if u, ok := m.users[id]; ok {
			msg.Participants = append(msg.Participants, *u)
		}
	}
	sort.Slice(msg.Participants, func(i, j int) bool { return msg.Participants[i].ID < msg.Participants[j].ID })
	m.deliver(msg.ID, all)
	return msg.ID
}

// Delete soft-deletes a message the way the chat client does: by blanking it.
func (m *MockMessageStore) Delete(messageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[messageID]; ok {
		msg.Content = " "
	}
}

// MarkRead sets userID's read flag on a message.
func (m *MockMessageStore) MarkRead(userID, messageID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.delivered[userID]; ok {
		if _, ok := d[messageID]; ok {
			d[messageID] = true
		}
	}
}

func (m *MockMessageStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *MockMessageStore) GetMessageForUser(_ context.Context, userID, messageID int64) (*domain.Message, error) {
	if err := m.GetMessageErr[messageID]; err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	read, ok := m.delivered[userID][messageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.cloneFor(messageID, read), nil
}

func (m *MockMessageStore) TopicContext(_ context.Context, userID, streamID int64, topic string, beforeID int64, limit int) ([]*domain.Message, error) {
	if m.ContextErr != nil {
		return nil, m.ContextErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []int64
	for id := range m.delivered[userID] {
		msg := m.messages[id]
		if msg.RecipientType != domain.RecipientStream || msg.StreamID != streamID {
			continue
		}
		if id >= beforeID || !strings.EqualFold(msg.Topic, topic) || msg.IsDeleted() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit <= 0 {
		return nil, nil
	}
	if len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	result := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.cloneFor(id, m.delivered[userID][id]))
	}
	return result, nil
}

// newMessage must be called with mu held.
func (m *MockMessageStore) newMessage(senderID int64, content string) *domain.Message {
	m.nextID++
	m.clock = m.clock.Add(time.Second)
	msg := &domain.Message{
		ID:      m.nextID,
		Content: content,
		SentAt:  m.clock,
	}
	if u, ok := m.users[senderID]; ok {
		msg.Sender = *u
	}
	m.messages[msg.ID] = msg
	return msg
}

// deliver must be called with mu held. The sender's copy starts read.
func (m *MockMessageStore) deliver(messageID int64, userIDs []int64) {
	for i, uid := range userIDs {
		if m.delivered[uid] == nil {
			m.delivered[uid] = make(map[int64]bool)
		}
		m.delivered[uid][messageID] = i == 0
	}
}

func (m *MockMessageStore) cloneFor(messageID int64, read bool) *domain.Message {
	clone := *m.messages[messageID]
	clone.Participants = append([]domain.User(nil), clone.Participants...)
	clone.Read = read
	return &clone
}

// compile-time check that MockMessageStore implements MessageStore
var _ MessageStore = (*MockMessageStore)(nil)
