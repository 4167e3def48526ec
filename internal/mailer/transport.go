// Package mailer delivers composed digests. Each transport owns its own
// delivery semantics; none of them retry.
package mailer

import (
	"context"
	"fmt"

	"github.com/ricirt/missedmail/internal/domain"
	"github.com/ricirt/missedmail/internal/ratelimiter"
)

// Transport abstracts delivery to an external mail system.
// Swapping in Outbox gives tests full control without a mail server.
type Transport interface {
	Send(ctx context.Context, email *domain.ComposedEmail) error
	Name() string
}

// RateLimited throttles an inner transport per recipient domain.
type RateLimited struct {
	next    Transport
	limiter *ratelimiter.DomainLimiters
}

func NewRateLimited(next Transport, limiter *ratelimiter.DomainLimiters) *RateLimited {
	return &RateLimited{next: next, limiter: limiter}
}

func (r *RateLimited) Send(ctx context.Context, email *domain.ComposedEmail) error {
	if err := r.limiter.Wait(ctx, email.To); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Send(ctx, email)
}

func (r *RateLimited) Name() string { return r.next.Name() }

var _ Transport = (*RateLimited)(nil)
