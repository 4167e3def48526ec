package repository

import (
	"context"
	"time"

	"github.com/ricirt/missedmail/internal/domain"
)

// MessageStore is the read-only view of the chat database the notifier needs.
// The pgx implementation is in pg_message_store.go.
// Tests use a hand-written mock (mock_message_store.go).
type MessageStore interface {
	// GetUser returns domain.ErrNotFound for unknown ids.
	GetUser(ctx context.Context, id int64) (*domain.User, error)

	// GetMessageForUser loads a message together with userID's read flag.
	// It returns domain.ErrNotFound if the message does not exist or was
	// never delivered to userID.
	GetMessageForUser(ctx context.Context, userID, messageID int64) (*domain.Message, error)

	// TopicContext returns up to limit live messages visible to userID that
	// precede beforeID in the given stream topic, oldest first.
	TopicContext(ctx context.Context, userID, streamID int64, topic string, beforeID int64, limit int) ([]*domain.Message, error)
}

// PendingQueue buffers missed-message events until the digest worker picks
// them up.
type PendingQueue interface {
	Enqueue(ctx context.Context, req domain.NotificationRequest) error

	// ClaimDue removes and returns events created at or before cutoff,
	// grouped into one request per user. Users are ordered by their oldest
	// event and message ids keep arrival order.
	ClaimDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.NotificationRequest, error)
}

type pendingEvent struct {
	id        int64
	userID    int64
	messageID int64
}

// groupByUser folds events, already sorted by id, into per-user requests.
func groupByUser(events []pendingEvent) []domain.NotificationRequest {
	index := make(map[int64]int)
	var out []domain.NotificationRequest
	for _, e := range events {
		i, ok := index[e.userID]
		if !ok {
			i = len(out)
			index[e.userID] = i
			out = append(out, domain.NotificationRequest{UserID: e.userID})
		}
		out[i].MessageIDs = append(out[i].MessageIDs, e.messageID)
	}
	return out
}
