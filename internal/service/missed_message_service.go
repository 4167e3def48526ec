package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ricirt/missedmail/internal/domain"
	"github.com/ricirt/missedmail/internal/replyaddress"
	"github.com/ricirt/missedmail/internal/repository"
)

// DigestSender builds and sends a digest right away.
type DigestSender interface {
	Handle(ctx context.Context, req domain.NotificationRequest) (*domain.ComposedEmail, error)
}

// ReplyRedeemer resolves reply tokens taken from inbound email.
type ReplyRedeemer interface {
	Redeem(ctx context.Context, token string) (*replyaddress.Target, error)
}

// MissedMessageService is what the HTTP handlers talk to. Request validation
// lives here so every entry point applies the same rules.
type MissedMessageService struct {
	queue   repository.PendingQueue
	digests DigestSender
	replies ReplyRedeemer
	logger  *zap.Logger
}

func NewMissedMessageService(
	queue repository.PendingQueue,
	digests DigestSender,
	replies ReplyRedeemer,
	logger *zap.Logger,
) *MissedMessageService {
	return &MissedMessageService{queue: queue, digests: digests, replies: replies, logger: logger}
}

// Enqueue records missed messages for the digest worker and returns how many
// distinct message ids were accepted. Ids already pending for the user are
// ignored by the queue.
func (s *MissedMessageService) Enqueue(ctx context.Context, req domain.NotificationRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	req.MessageIDs = req.UniqueMessageIDs()
	if err := s.queue.Enqueue(ctx, req); err != nil {
		return 0, fmt.Errorf("enqueue missed messages: %w", err)
	}
	s.logger.Debug("missed messages queued",
		zap.Int64("user_id", req.UserID), zap.Int("count", len(req.MessageIDs)))
	return len(req.MessageIDs), nil
}

// SendNow skips the batching window. A nil email with a nil error means
// nothing was left to send.
func (s *MissedMessageService) SendNow(ctx context.Context, req domain.NotificationRequest) (*domain.ComposedEmail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.digests.Handle(ctx, req)
}

func (s *MissedMessageService) RedeemReplyAddress(ctx context.Context, token string) (*replyaddress.Target, error) {
	target, err := s.replies.Redeem(ctx, token)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reply address redeemed",
		zap.Int64("user_id", target.UserID),
		zap.String("conversation", target.Conversation.Key()))
	return target, nil
}
