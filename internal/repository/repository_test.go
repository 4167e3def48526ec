package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/missedmail/internal/domain"
	"github.com/ricirt/missedmail/internal/repository"
)

func TestMockMessageStore_Visibility(t *testing.T) {
	store := repository.NewMockMessageStore()
	ctx := context.Background()
	store.AddUser(1, "Othello", "othello@example.com")
	store.AddUser(2, "Hamlet", "hamlet@example.com")
	store.AddUser(3, "Iago", "iago@example.com")

	id := store.SendPrivate(1, "hi", 2)

	msg, err := store.GetMessageForUser(ctx, 2, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RecipientPersonal, msg.RecipientType)
	assert.False(t, msg.Read)
	assert.Len(t, msg.Participants, 2)

	_, err = store.GetMessageForUser(ctx, 3, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	sent, err := store.GetMessageForUser(ctx, 1, id)
	require.NoError(t, err)
	assert.True(t, sent.Read, "sender's own copy starts read")
}

func TestMockMessageStore_TopicContext(t *testing.T) {
	store := repository.NewMockMessageStore()
	ctx := context.Background()
	store.AddUser(1, "Othello", "othello@example.com")
	store.AddUser(2, "Hamlet", "hamlet@example.com")

	var ids []int64
	for _, c := range []string{"a", "b", "c", "d"} {
		ids = append(ids, store.SendStream(1, 9, "Denmark", "test", c, 2))
	}
	store.SendStream(1, 9, "Denmark", "other", "x", 2)
	store.Delete(ids[2])
	last := store.SendStream(1, 9, "Denmark", "TEST", "e", 2)

	got, err := store.TopicContext(ctx, 2, 9, "test", last, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Content)
	assert.Equal(t, "d", got[1].Content)
}

func TestMockPendingQueue_ClaimDueGroupsByUser(t *testing.T) {
	q := repository.NewMockPendingQueue()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	q.Now = func() time.Time { return now }

	require.NoError(t, q.Enqueue(ctx, domain.NotificationRequest{UserID: 2, MessageIDs: []int64{10, 11}}))
	require.NoError(t, q.Enqueue(ctx, domain.NotificationRequest{UserID: 3, MessageIDs: []int64{10}}))
	require.NoError(t, q.Enqueue(ctx, domain.NotificationRequest{UserID: 2, MessageIDs: []int64{11, 12}}))

	now = now.Add(time.Minute)
	require.NoError(t, q.Enqueue(ctx, domain.NotificationRequest{UserID: 2, MessageIDs: []int64{13}}))

	got, err := q.ClaimDue(ctx, now.Add(-30*time.Second), 100)
	require.NoError(t, err)
	assert.Equal(t, []domain.NotificationRequest{
		{UserID: 2, MessageIDs: []int64{10, 11, 12}},
		{UserID: 3, MessageIDs: []int64{10}},
	}, got)
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueError_ForeignKeyMeansUnknownUser(t *testing.T) {
	fk := &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, ConstraintName: "missed_message_events_user_id_fkey"}

	err := repository.EnqueueError(404, fmt.Errorf("batch: %w", fk))
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	other := repository.EnqueueError(2, &pgconn.PgError{Code: pgerrcode.UniqueViolation})
	assert.NotErrorIs(t, other, domain.ErrUserNotFound)

	plain := repository.EnqueueError(2, errors.New("conn reset"))
	assert.NotErrorIs(t, plain, domain.ErrUserNotFound)
	assert.Contains(t, plain.Error(), "conn reset")
}
