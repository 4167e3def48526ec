// Package notifier turns a set of missed message ids into at most one digest
// email for the user who missed them.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/missedmail/internal/domain"
	"github.com/ricirt/missedmail/internal/mailer"
	"github.com/ricirt/missedmail/internal/repository"
)

// Config controls addressing and rendering. It is fixed for the lifetime of a
// Notifier; build another Notifier to change it.
type Config struct {
	// NoReplyAddress is the fixed From, and the Reply-To when no gateway is set.
	NoReplyAddress string
	// EmailGatewayPattern contains one %s that is replaced by a reply token.
	// Empty disables reply-by-email.
	EmailGatewayPattern string
	// SendAsUser puts the message sender in From when a digest has exactly
	// one sender.
	SendAsUser bool
	SiteName   string
	ServerURL  string
	// ContextMessages is how many earlier topic messages precede the missed
	// ones in a stream thread.
	ContextMessages int
}

// ReplyTokenIssuer mints the token placed in a gateway Reply-To address.
type ReplyTokenIssuer interface {
	Issue(ctx context.Context, userID int64, conv domain.Conversation) (string, error)
}

// SuppressReason labels a request that produced no email.
type SuppressReason string

const (
	SuppressInactiveUser SuppressReason = "inactive_user"
	SuppressNoMessages   SuppressReason = "no_messages"
)

// Hooks carries the metric callbacks injected by main. Nil fields are no-ops.
type Hooks struct {
	OnSent       func(messages int, latency time.Duration)
	OnSuppressed func(reason SuppressReason)
	OnFailed     func()
}

// Notifier composes and sends missed-message digests. It keeps no state
// between calls and is safe for concurrent use.
type Notifier struct {
	cfg       Config
	store     repository.MessageStore
	tokens    ReplyTokenIssuer
	transport mailer.Transport
	logger    *zap.Logger
	hooks     Hooks
	now       func() time.Time
}

// New builds a Notifier. tokens may be nil when cfg has no gateway pattern.
func New(
	cfg Config,
	store repository.MessageStore,
	tokens ReplyTokenIssuer,
	transport mailer.Transport,
	logger *zap.Logger,
	hooks Hooks,
) *Notifier {
	if cfg.SiteName == "" {
		cfg.SiteName = "Chat"
	}
	if hooks.OnSent == nil {
		hooks.OnSent = func(int, time.Duration) {}
	}
	if hooks.OnSuppressed == nil {
		hooks.OnSuppressed = func(SuppressReason) {}
	}
	if hooks.OnFailed == nil {
		hooks.OnFailed = func() {}
	}
	return &Notifier{
		cfg: cfg, store: store, tokens: tokens, transport: transport,
		logger: logger, hooks: hooks, now: time.Now,
	}
}

// Handle builds and sends the digest for req. It returns (nil, nil) when
// nothing is left to report: the user is inactive, or every referenced
// message is gone, already read, or not visible to the user.
// An unknown recipient is the only lookup failure that surfaces as an error.
func (n *Notifier) Handle(ctx context.Context, req domain.NotificationRequest) (*domain.ComposedEmail, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := n.now()
	log := n.logger.With(zap.Int64("user_id", req.UserID))

	user, err := n.store.GetUser(ctx, req.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("user %d: %w", req.UserID, domain.ErrUserNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load recipient: %w", err)
	}
	if !user.IsActive {
		log.Debug("recipient is deactivated; no digest")
		n.hooks.OnSuppressed(SuppressInactiveUser)
		return nil, nil
	}

	missed := n.loadMissed(ctx, log, user.ID, req.UniqueMessageIDs())
	if len(missed) == 0 {
		// Deleted or read before we got here. Not an error.
		log.Debug("no deliverable messages; no digest", zap.Int64s("message_ids", req.MessageIDs))
		n.hooks.OnSuppressed(SuppressNoMessages)
		return nil, nil
	}

	email := n.compose(ctx, log, user, missed)
	if err := n.transport.Send(ctx, email); err != nil {
		n.hooks.OnFailed()
		return nil, fmt.Errorf("send digest via %s: %w", n.transport.Name(), err)
	}

	elapsed := n.now().Sub(start)
	n.hooks.OnSent(len(missed), elapsed)
	log.Info("missed-message digest sent",
		zap.Int("messages", len(missed)),
		zap.String("transport", n.transport.Name()),
		zap.Duration("latency", elapsed),
	)
	return email, nil
}

// loadMissed resolves ids for userID and keeps only live, unread messages,
// in chronological order.
func (n *Notifier) loadMissed(ctx context.Context, log *zap.Logger, userID int64, ids []int64) []*domain.Message {
	msgs := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		m, err := n.store.GetMessageForUser(ctx, userID, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			continue
		case err != nil:
			log.Warn("message lookup failed; leaving it out", zap.Int64("message_id", id), zap.Error(err))
			continue
		case m.IsDeleted(), m.Read:
			continue
		}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].SentAt.Equal(msgs[j].SentAt) {
			return msgs[i].SentAt.Before(msgs[j].SentAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs
}

func (n *Notifier) compose(ctx context.Context, log *zap.Logger, user *domain.User, missed []*domain.Message) *domain.ComposedEmail {
	threads := n.buildThreads(ctx, log, user, missed)

	replyTo, canReply := n.replyTo(ctx, log, user, missed[len(missed)-1])

	view := digestView{
		Threads:   threads,
		SiteName:  n.cfg.SiteName,
		ServerURL: n.cfg.ServerURL,
		CanReply:  canReply,
	}
	text, html := render(log, view)

	ids := make([]int64, len(missed))
	for i, m := range missed {
		ids[i] = m.ID
	}

	return &domain.ComposedEmail{
		To:         user.Email,
		From:       n.from(missed),
		ReplyTo:    replyTo,
		Subject:    n.subject(missed),
		TextBody:   text,
		HTMLBody:   html,
		UserID:     user.ID,
		MessageIDs: ids,
	}
}

// from is the sender's own address only when the whole digest comes from
// one person; otherwise replies could not go anywhere sensible.
func (n *Notifier) from(missed []*domain.Message) string {
	if !n.cfg.SendAsUser {
		return n.cfg.NoReplyAddress
	}
	sender := missed[0].Sender
	for _, m := range missed[1:] {
		if m.Sender.ID != sender.ID {
			return n.cfg.NoReplyAddress
		}
	}
	return (&mail.Address{Name: sender.FullName, Address: sender.Email}).String()
}

// replyTo routes replies into the conversation of the latest message.
func (n *Notifier) replyTo(ctx context.Context, log *zap.Logger, user *domain.User, latest *domain.Message) (string, bool) {
	if n.cfg.EmailGatewayPattern == "" || n.tokens == nil {
		return n.cfg.NoReplyAddress, false
	}
	token, err := n.tokens.Issue(ctx, user.ID, domain.ConversationOf(latest))
	if err != nil {
		log.Warn("reply token unavailable; falling back to no-reply", zap.Error(err))
		return n.cfg.NoReplyAddress, false
	}
	return strings.Replace(n.cfg.EmailGatewayPattern, "%s", token, 1), true
}

func (n *Notifier) subject(missed []*domain.Message) string {
	var names []string
	seen := make(map[int64]struct{})
	for _, m := range missed {
		if _, ok := seen[m.Sender.ID]; ok {
			continue
		}
		seen[m.Sender.ID] = struct{}{}
		names = append(names, m.Sender.FullName)
	}
	noun := "message"
	if len(missed) > 1 {
		noun = "messages"
	}
	return fmt.Sprintf("[%s] Missed %s from %s", n.cfg.SiteName, noun, strings.Join(names, ", "))
}
