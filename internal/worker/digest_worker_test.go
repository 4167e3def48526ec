package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/missedmail/internal/domain"
	"github.com/ricirt/missedmail/internal/mailer"
	"github.com/ricirt/missedmail/internal/notifier"
	"github.com/ricirt/missedmail/internal/repository"
	"github.com/ricirt/missedmail/internal/worker"
)

type recordingHandler struct {
	mu    sync.Mutex
	calls []domain.NotificationRequest
	err   map[int64]error
}

func (h *recordingHandler) Handle(_ context.Context, req domain.NotificationRequest) (*domain.ComposedEmail, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, req)
	if err := h.err[req.UserID]; err != nil {
		return nil, err
	}
	return &domain.ComposedEmail{UserID: req.UserID, MessageIDs: req.MessageIDs}, nil
}

func (h *recordingHandler) Calls() []domain.NotificationRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.NotificationRequest(nil), h.calls...)
}

func enqueueAt(t *testing.T, q *repository.MockPendingQueue, at time.Time, userID int64, ids ...int64) {
	t.Helper()
	q.Now = func() time.Time { return at }
	require.NoError(t, q.Enqueue(context.Background(), domain.NotificationRequest{UserID: userID, MessageIDs: ids}))
}

func TestDigestWorker_BatchesPerUserAfterWindow(t *testing.T) {
	q := repository.NewMockPendingQueue()
	old := time.Now().Add(-10 * time.Minute)
	enqueueAt(t, q, old, 7, 1, 2)
	enqueueAt(t, q, old, 8, 3)
	enqueueAt(t, q, old, 7, 4)
	enqueueAt(t, q, time.Now(), 7, 5) // inside the window

	h := &recordingHandler{}
	claimed := 0
	w := worker.NewDigestWorker(q, h, worker.DigestConfig{
		Interval: time.Hour, BatchWindow: 2 * time.Minute, BatchLimit: 100,
	}, func(n int) { claimed += n }, zap.NewNop())

	sent := w.RunOnce(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, 4, claimed)
	calls := h.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, domain.NotificationRequest{UserID: 7, MessageIDs: []int64{1, 2, 4}}, calls[0])
	assert.Equal(t, domain.NotificationRequest{UserID: 8, MessageIDs: []int64{3}}, calls[1])
	assert.Equal(t, 1, q.Len())
}

func TestDigestWorker_HandlerErrorDoesNotStopBatch(t *testing.T) {
	q := repository.NewMockPendingQueue()
	old := time.Now().Add(-time.Hour)
	enqueueAt(t, q, old, 1, 10)
	enqueueAt(t, q, old, 2, 20)

	h := &recordingHandler{err: map[int64]error{1: errors.New("smtp down")}}
	w := worker.NewDigestWorker(q, h, worker.DigestConfig{Interval: time.Hour, BatchLimit: 10}, nil, zap.NewNop())

	assert.Equal(t, 1, w.RunOnce(context.Background()))
	assert.Len(t, h.Calls(), 2)
	assert.Zero(t, q.Len())
}

func TestDigestWorker_ClaimError(t *testing.T) {
	q := repository.NewMockPendingQueue()
	q.ClaimErr = errors.New("db down")
	h := &recordingHandler{}
	w := worker.NewDigestWorker(q, h, worker.DigestConfig{Interval: time.Hour, BatchLimit: 10}, nil, zap.NewNop())

	assert.Zero(t, w.RunOnce(context.Background()))
	assert.Empty(t, h.Calls())
}

func TestDigestWorker_RespectsBatchLimit(t *testing.T) {
	q := repository.NewMockPendingQueue()
	old := time.Now().Add(-time.Hour)
	enqueueAt(t, q, old, 1, 1, 2, 3)

	h := &recordingHandler{}
	w := worker.NewDigestWorker(q, h, worker.DigestConfig{Interval: time.Hour, BatchLimit: 2}, nil, zap.NewNop())

	w.RunOnce(context.Background())
	require.Len(t, h.Calls(), 1)
	assert.Equal(t, []int64{1, 2}, h.Calls()[0].MessageIDs)
	assert.Equal(t, 1, q.Len())
}

func TestDigestWorker_SplitsOversizedUserBatch(t *testing.T) {
	q := repository.NewMockPendingQueue()
	ids := make([]int64, 1500)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	enqueueAt(t, q, time.Now().Add(-time.Hour), 9, ids...)

	h := &recordingHandler{}
	w := worker.NewDigestWorker(q, h, worker.DigestConfig{Interval: time.Hour, BatchLimit: 5000}, nil, zap.NewNop())

	assert.Equal(t, 2, w.RunOnce(context.Background()))
	calls := h.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].MessageIDs, domain.MaxMessagesPerRequest)
	assert.Len(t, calls[1].MessageIDs, 500)
	assert.Equal(t, int64(1), calls[0].MessageIDs[0])
	assert.Equal(t, int64(1001), calls[1].MessageIDs[0])
	for _, c := range calls {
		assert.NoError(t, c.Validate())
	}
}

func TestDigestWorker_WithNotifier(t *testing.T) {
	store := repository.NewMockMessageStore()
	store.AddUser(1, "Othello", "othello@example.com")
	store.AddUser(2, "Hamlet", "hamlet@example.com")
	a := store.SendPrivate(1, "first", 2)
	b := store.SendPrivate(1, "second", 2)
	gone := store.SendPrivate(1, "oops", 2)
	store.Delete(gone)

	outbox := mailer.NewOutbox()
	n := notifier.New(notifier.Config{NoReplyAddress: "noreply@example.com", SiteName: "Chat"},
		store, nil, outbox, zap.NewNop(), notifier.Hooks{})

	q := repository.NewMockPendingQueue()
	enqueueAt(t, q, time.Now().Add(-time.Hour), 2, a)
	enqueueAt(t, q, time.Now().Add(-time.Hour), 2, b, gone)

	w := worker.NewDigestWorker(q, n, worker.DigestConfig{Interval: time.Hour, BatchLimit: 100}, nil, zap.NewNop())
	assert.Equal(t, 1, w.RunOnce(context.Background()))

	sent := outbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []int64{a, b}, sent[0].MessageIDs)
	assert.Equal(t, "[Chat] Missed messages from Othello", sent[0].Subject)
}

func TestDigestWorker_RunStopsOnCancel(t *testing.T) {
	q := repository.NewMockPendingQueue()
	enqueueAt(t, q, time.Now().Add(-time.Hour), 1, 1)
	h := &recordingHandler{}
	w := worker.NewDigestWorker(q, h, worker.DigestConfig{Interval: 5 * time.Millisecond, BatchLimit: 10}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(h.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
