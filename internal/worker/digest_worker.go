package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/missedmail/internal/domain"
	"github.com/ricirt/missedmail/internal/repository"
)

// DigestHandler turns one user's missed messages into at most one email.
// *notifier.Notifier satisfies it.
type DigestHandler interface {
	Handle(ctx context.Context, req domain.NotificationRequest) (*domain.ComposedEmail, error)
}

// DigestConfig controls how often the worker polls and how long events sit
// in the queue so that messages arriving close together share one digest.
type DigestConfig struct {
	Interval    time.Duration
	BatchWindow time.Duration
	BatchLimit  int
}

// DigestWorker polls the pending queue for missed-message events older than
// the batch window and hands them, one request per user, to the handler.
//
// Claimed events are removed from the queue before the handler runs. A failed
// send is logged and not retried: the user still sees the messages in the app.
type DigestWorker struct {
	queue     repository.PendingQueue
	handler   DigestHandler
	cfg       DigestConfig
	onClaimed func(events int)
	logger    *zap.Logger
	now       func() time.Time
}

func NewDigestWorker(
	queue repository.PendingQueue,
	handler DigestHandler,
	cfg DigestConfig,
	onClaimed func(events int),
	logger *zap.Logger,
) *DigestWorker {
	if onClaimed == nil {
		onClaimed = func(int) {}
	}
	return &DigestWorker{
		queue: queue, handler: handler, cfg: cfg,
		onClaimed: onClaimed, logger: logger, now: time.Now,
	}
}

// Run ticks every interval and drains whatever is due.
// Stops cleanly when ctx is cancelled.
func (dw *DigestWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(dw.cfg.Interval)
	defer ticker.Stop()

	dw.logger.Info("digest worker started",
		zap.Duration("interval", dw.cfg.Interval),
		zap.Duration("batch_window", dw.cfg.BatchWindow),
	)

	for {
		select {
		case <-ctx.Done():
			dw.logger.Info("digest worker stopping")
			return
		case <-ticker.C:
			dw.RunOnce(ctx)
		}
	}
}

// RunOnce claims one batch of due events and processes it. It returns the
// number of emails sent.
func (dw *DigestWorker) RunOnce(ctx context.Context) int {
	cutoff := dw.now().Add(-dw.cfg.BatchWindow)
	requests, err := dw.queue.ClaimDue(ctx, cutoff, dw.cfg.BatchLimit)
	if err != nil {
		dw.logger.Error("digest poll error", zap.Error(err))
		return 0
	}

	events := 0
	for _, req := range requests {
		events += len(req.MessageIDs)
	}
	if events > 0 {
		dw.onClaimed(events)
	}

	requests = splitOversized(requests)

	sent := 0
	for i, req := range requests {
		if ctx.Err() != nil {
			dw.logger.Warn("digest batch interrupted", zap.Int("remaining_requests", len(requests)-i))
			break
		}
		email, err := dw.handler.Handle(ctx, req)
		if err != nil {
			dw.logger.Error("missed-message digest failed",
				zap.Int64("user_id", req.UserID),
				zap.Int("messages", len(req.MessageIDs)),
				zap.Error(err),
			)
			continue
		}
		if email != nil {
			sent++
		}
	}

	if len(requests) > 0 {
		dw.logger.Info("processed missed-message batch",
			zap.Int("requests", len(requests)),
			zap.Int("events", events),
			zap.Int("sent", sent),
		)
	}
	return sent
}

// splitOversized breaks any request above domain.MaxMessagesPerRequest into
// consecutive chunks so the handler never rejects claimed events.
func splitOversized(requests []domain.NotificationRequest) []domain.NotificationRequest {
	out := make([]domain.NotificationRequest, 0, len(requests))
	for _, req := range requests {
		ids := req.MessageIDs
		for len(ids) > domain.MaxMessagesPerRequest {
			out = append(out, domain.NotificationRequest{UserID: req.UserID, MessageIDs: ids[:domain.MaxMessagesPerRequest]})
			ids = ids[domain.MaxMessagesPerRequest:]
		}
		out = append(out, domain.NotificationRequest{UserID: req.UserID, MessageIDs: ids})
	}
	return out
}
