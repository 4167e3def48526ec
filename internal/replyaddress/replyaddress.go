// Package replyaddress issues one-time tokens that let a user answer a
// missed-message email by replying to it. The inbound mail gateway redeems
// the token to find out which conversation the reply belongs to.
package replyaddress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ricirt/missedmail/internal/domain"
)

// TokenPrefix marks missed-message tokens inside a gateway address.
const TokenPrefix = "mm"

// TokenGenerator produces unguessable reply tokens.
type TokenGenerator interface {
	Generate() string
}

// UUIDGenerator yields 32 lowercase hex characters from a random UUID.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Target is what a redeemed token resolves to.
type Target struct {
	UserID       int64               `json:"user_id"`
	Conversation domain.Conversation `json:"conversation"`
	IssuedAt     time.Time           `json:"issued_at"`
}

// Store persists tokens until they are redeemed or expire.
type Store interface {
	Save(ctx context.Context, token string, target Target, ttl time.Duration) error
	// Redeem returns and forgets the target. Unknown, expired and already
	// redeemed tokens yield domain.ErrReplyTokenExpired.
	Redeem(ctx context.Context, token string) (*Target, error)
}

// Issuer hands out tokens and redeems them.
type Issuer struct {
	store Store
	gen   TokenGenerator
	ttl   time.Duration
	now   func() time.Time

	// Literal text around %s in the gateway pattern.
	addrPrefix string
	addrSuffix string
}

// NewIssuer builds an Issuer. gatewayPattern is the address pattern the
// tokens are placed into; it may be empty when reply-by-email is off.
func NewIssuer(store Store, gen TokenGenerator, ttl time.Duration, gatewayPattern string) *Issuer {
	if gen == nil {
		gen = UUIDGenerator{}
	}
	i := &Issuer{store: store, gen: gen, ttl: ttl, now: time.Now}
	if before, after, ok := strings.Cut(gatewayPattern, "%s"); ok {
		i.addrPrefix = before
		i.addrSuffix = after
	}
	return i
}

// Issue stores a fresh token for replies from userID into conv and returns
// the token with TokenPrefix applied, ready to drop into a gateway pattern.
func (i *Issuer) Issue(ctx context.Context, userID int64, conv domain.Conversation) (string, error) {
	token := i.gen.Generate()
	target := Target{UserID: userID, Conversation: conv, IssuedAt: i.now().UTC()}
	if err := i.store.Save(ctx, token, target, i.ttl); err != nil {
		return "", fmt.Errorf("save reply token: %w", err)
	}
	return TokenPrefix + token, nil
}

// Redeem accepts a bare token, a prefixed token or a full gateway address
// and resolves it once.
func (i *Issuer) Redeem(ctx context.Context, token string) (*Target, error) {
	token = i.extract(token)
	if token == "" {
		return nil, domain.ErrReplyTokenExpired
	}
	return i.store.Redeem(ctx, token)
}

// extract strips the gateway pattern's literal text, any remaining
// "@domain" and TokenPrefix. The pattern text is matched case-insensitively
// since mail servers may fold the case of an address.
func (i *Issuer) extract(addr string) string {
	token := strings.TrimSpace(addr)
	p, s := i.addrPrefix, i.addrSuffix
	if (p != "" || s != "") && len(token) >= len(p)+len(s) &&
		strings.EqualFold(token[:len(p)], p) && strings.EqualFold(token[len(token)-len(s):], s) {
		token = token[len(p) : len(token)-len(s)]
	}
	if at := strings.IndexByte(token, '@'); at >= 0 {
		token = token[:at]
	}
	return strings.TrimPrefix(token, TokenPrefix)
}
