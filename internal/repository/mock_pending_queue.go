package repository

import (
	"context"
	"sync"
	"time"

	"github.com/ricirt/missedmail/internal/domain"
)

// MockPendingQueue keeps missed-message events in memory for tests.
type MockPendingQueue struct {
	mu     sync.Mutex
	events []mockEvent
	nextID int64
	// Now stamps enqueued events; defaults to time.Now.
	Now func() time.Time

	EnqueueErr error
	ClaimErr   error
}

type mockEvent struct {
	pendingEvent
	createdAt time.Time
}

func NewMockPendingQueue() *MockPendingQueue {
	return &MockPendingQueue{Now: time.Now}
}

func (q *MockPendingQueue) Enqueue(_ context.Context, req domain.NotificationRequest) error {
	if q.EnqueueErr != nil {
		return q.EnqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range req.UniqueMessageIDs() {
		if q.contains(req.UserID, id) {
			continue
		}
		q.nextID++
		q.events = append(q.events, mockEvent{
			pendingEvent: pendingEvent{id: q.nextID, userID: req.UserID, messageID: id},
			createdAt:    q.Now(),
		})
	}
	return nil
}

func (q *MockPendingQueue) ClaimDue(_ context.Context, cutoff time.Time, limit int) ([]domain.NotificationRequest, error) {
	if q.ClaimErr != nil {
		return nil, q.ClaimErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	var claimed []pendingEvent
	kept := q.events[:0]
	for _, e := range q.events {
		if len(claimed) < limit && !e.createdAt.After(cutoff) {
			claimed = append(claimed, e.pendingEvent)
			continue
		}
		kept = append(kept, e)
	}
	q.events = kept
	return groupByUser(claimed), nil
}

// Len reports the number of unclaimed events.
func (q *MockPendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *MockPendingQueue) contains(userID, messageID int64) bool {
	for _, e := range q.events {
		if e.userID == userID && e.messageID == messageID {
			return true
		}
	}
	return false
}

var _ PendingQueue = (*MockPendingQueue)(nil)
