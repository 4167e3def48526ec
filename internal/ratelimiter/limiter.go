package ratelimiter

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// DomainLimiters holds one token bucket per recipient mail domain so a burst
// of digests to one provider cannot trip its throttling. Buckets are created
// on first use. Burst equals the rate.
type DomainLimiters struct {
	mu         sync.Mutex
	ratePerSec int
	limiters   map[string]*rate.Limiter
}

// New creates a DomainLimiters with ratePerSec tokens per second per domain.
func New(ratePerSec int) *DomainLimiters {
	return &DomainLimiters{
		ratePerSec: ratePerSec,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the bucket for address's domain grants a token.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (dl *DomainLimiters) Wait(ctx context.Context, address string) error {
	return dl.limiter(DomainOf(address)).Wait(ctx)
}

func (dl *DomainLimiters) limiter(domain string) *rate.Limiter {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	l, ok := dl.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Limit(dl.ratePerSec), dl.ratePerSec)
		dl.limiters[domain] = l
	}
	return l
}

// DomainOf extracts the lowercased domain of an address such as
// "Name <user@Example.com>". Addresses without one share the "" bucket.
func DomainOf(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimSuffix(address, ">")
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
