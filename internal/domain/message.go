package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RecipientType says what kind of conversation a message was posted to.
type RecipientType string

const (
	RecipientStream   RecipientType = "stream"
	RecipientPersonal RecipientType = "personal"
	RecipientHuddle   RecipientType = "huddle"
)

func (t RecipientType) IsValid() bool {
	switch t {
	case RecipientStream, RecipientPersonal, RecipientHuddle:
		return true
	}
	return false
}

// User is a member of the chat realm as seen by the mailer.
type User struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// Message is a chat message as loaded for one particular user.
// Read reflects that user's flag, not a property of the message itself.
type Message struct {
	ID            int64         `json:"id"`
	Sender        User          `json:"sender"`
	RecipientType RecipientType `json:"recipient_type"`
	StreamID      int64         `json:"stream_id,omitempty"`
	StreamName    string        `json:"stream_name,omitempty"`
	Topic         string        `json:"topic,omitempty"`
	// Participants lists every user on a personal or huddle conversation,
	// the sender included. Empty for stream messages.
	Participants []User    `json:"participants,omitempty"`
	Content      string    `json:"content"`
	Deleted      bool      `json:"deleted"`
	Read         bool      `json:"read"`
	SentAt       time.Time `json:"sent_at"`
}

// IsDeleted reports whether the message should be treated as gone. Editing a
// message down to blank content is how the chat client deletes it.
func (m *Message) IsDeleted() bool {
	return m.Deleted || strings.TrimSpace(m.Content) == ""
}

// Conversation identifies the thread a message belongs to.
type Conversation struct {
	Type       RecipientType `json:"type"`
	StreamID   int64         `json:"stream_id,omitempty"`
	StreamName string        `json:"stream_name,omitempty"`
	Topic      string        `json:"topic,omitempty"`
	// ParticipantIDs is sorted ascending.
	ParticipantIDs []int64 `json:"participant_ids,omitempty"`
}

// ConversationOf derives the conversation of m.
func ConversationOf(m *Message) Conversation {
	if m.RecipientType == RecipientStream {
		return Conversation{
			Type:       RecipientStream,
			StreamID:   m.StreamID,
			StreamName: m.StreamName,
			Topic:      m.Topic,
		}
	}
	ids := make([]int64, 0, len(m.Participants))
	for _, u := range m.Participants {
		ids = append(ids, u.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return Conversation{Type: m.RecipientType, ParticipantIDs: ids}
}

// Key is stable across messages of the same conversation. Topics compare
// case-insensitively.
func (c Conversation) Key() string {
	if c.Type == RecipientStream {
		return fmt.Sprintf("stream:%d:%s", c.StreamID, strings.ToLower(c.Topic))
	}
	parts := make([]string, len(c.ParticipantIDs))
	for i, id := range c.ParticipantIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return string(c.Type) + ":" + strings.Join(parts, ",")
}
