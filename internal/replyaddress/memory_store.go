package replyaddress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ricirt/missedmail/internal/domain"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	// Now is consulted for expiry; defaults to time.Now.
	Now func() time.Time

	SaveErr error
}

type memoryEntry struct {
	target    Target
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), Now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, token string, target Target, ttl time.Duration) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[token]; ok {
		return fmt.Errorf("reply token collision")
	}
	s.entries[token] = memoryEntry{target: target, expiresAt: s.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Redeem(_ context.Context, token string) (*Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return nil, domain.ErrReplyTokenExpired
	}
	delete(s.entries, token)
	if !s.Now().Before(e.expiresAt) {
		return nil, domain.ErrReplyTokenExpired
	}
	t := e.target
	return &t, nil
}

// Len reports how many tokens are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var _ Store = (*MemoryStore)(nil)
