package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/missedmail/internal/domain"
)

type pgPendingQueue struct {
	pool *pgxpool.Pool
}

// NewPgPendingQueue returns a PendingQueue stored in the missed_message_events
// table. Events survive restarts; a claimed event is deleted in the same
// statement that returns it.
func NewPgPendingQueue(pool *pgxpool.Pool) PendingQueue {
	return &pgPendingQueue{pool: pool}
}

func (q *pgPendingQueue) Enqueue(ctx context.Context, req domain.NotificationRequest) error {
	batch := &pgx.Batch{}
	for _, id := range req.UniqueMessageIDs() {
		batch.Queue(`
			INSERT INTO missed_message_events (user_id, message_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, message_id) DO NOTHING`, req.UserID, id)
	}

	if err := q.pool.SendBatch(ctx, batch).Close(); err != nil {
		return enqueueError(req.UserID, err)
	}
	return nil
}

// enqueueError reports a missing users row as domain.ErrUserNotFound so the
// API answers 404 instead of 500.
func enqueueError(userID int64, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
		return fmt.Errorf("user %d: %w", userID, domain.ErrUserNotFound)
	}
	return fmt.Errorf("enqueue missed messages: %w", err)
}

func (q *pgPendingQueue) ClaimDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.NotificationRequest, error) {
	// SKIP LOCKED lets several replicas poll without claiming the same rows.
	rows, err := q.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM missed_message_events
			WHERE created_at <= $1
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		DELETE FROM missed_message_events e
		USING due
		WHERE e.id = due.id
		RETURNING e.id, e.user_id, e.message_id`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due events: %w", err)
	}
	defer rows.Close()

	var events []pendingEvent
	for rows.Next() {
		var e pendingEvent
		if err := rows.Scan(&e.id, &e.userID, &e.messageID); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not promise any order.
	sort.Slice(events, func(i, j int) bool { return events[i].id < events[j].id })
	return groupByUser(events), nil
}
