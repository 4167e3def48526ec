package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ricirt/missedmail/internal/ratelimiter"
)

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", ratelimiter.DomainOf("hamlet@Example.com"))
	assert.Equal(t, "zulip.com", ratelimiter.DomainOf(`"Othello, the Moor" <othello@zulip.com>`))
	assert.Equal(t, "", ratelimiter.DomainOf("nobody"))
}

func TestDomainLimiters_SeparateBuckets(t *testing.T) {
	l := ratelimiter.New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// First token per domain is available immediately.
	assert.NoError(t, l.Wait(ctx, "a@one.example"))
	assert.NoError(t, l.Wait(ctx, "b@two.example"))

	// The second on the same domain must wait ~1s, beyond the deadline.
	assert.Error(t, l.Wait(ctx, "c@one.example"))
}
