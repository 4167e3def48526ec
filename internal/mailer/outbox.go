package mailer

import (
	"context"
	"sync"

	"github.com/ricirt/missedmail/internal/domain"
)

// Outbox records emails instead of delivering them. Used by tests and by
// MAIL_TRANSPORT=outbox for local runs.
type Outbox struct {
	mu   sync.Mutex
	sent []domain.ComposedEmail
	err  error
}

func NewOutbox() *Outbox { return &Outbox{} }

func (o *Outbox) Name() string { return "outbox" }

func (o *Outbox) Send(_ context.Context, email *domain.ComposedEmail) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, *email)
	return nil
}

// Sent returns a copy of everything recorded so far.
func (o *Outbox) Sent() []domain.ComposedEmail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.ComposedEmail(nil), o.sent...)
}

// Fail makes every later Send return err without recording anything.
// A nil err restores normal behaviour.
func (o *Outbox) Fail(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = nil
}

var _ Transport = (*Outbox)(nil)
