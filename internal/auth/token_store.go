package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/pollhive/pollhive/pkg/crypto"
)

const (
	// DefaultExchangeTTL bounds how long a one-time token stays valid
	// between OTP verification and the session exchange.
	DefaultExchangeTTL = time.Minute

	exchangeTokenBytes = 32
)

var (
	// ErrTokenNotFound indicates the token is unknown, already consumed,
	// or expired. Callers cannot distinguish the cases on purpose.
	ErrTokenNotFound = errors.New("token store: token not found")
)

// ExchangeIdentity is the admin identity carried by a one-time token.
type ExchangeIdentity struct {
	AdminID string
	Email   string
	Name    string
}

type tokenEntry struct {
	identity  ExchangeIdentity
	expiresAt time.Time
}

// TokenStore is an in-process map of single-use exchange tokens with
// per-entry expiry. Entries are checked lazily on read and swept in bulk by
// Purge; a single mutex provides the single-writer discipline.
type TokenStore struct {
	mu      sync.Mutex
	entries map[string]tokenEntry
	ttl     time.Duration
	now     func() time.Time
}

// TokenStoreOption customises the TokenStore.
type TokenStoreOption func(*TokenStore)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenStoreOption {
	return func(s *TokenStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenClock injects a custom time source.
func WithTokenClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenStore constructs an empty token store.
func NewTokenStore(opts ...TokenStoreOption) *TokenStore {
	store := &TokenStore{
		entries: make(map[string]tokenEntry),
		ttl:     DefaultExchangeTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Issue stores the identity under a fresh random token and returns the token.
func (s *TokenStore) Issue(identity ExchangeIdentity) (string, error) {
	if identity.AdminID == "" {
		return "", errors.New("token store: admin id is required")
	}

	token, err := crypto.GenerateToken(exchangeTokenBytes)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[token] = tokenEntry{
		identity:  identity,
		expiresAt: s.now().Add(s.ttl),
	}
	return token, nil
}

// Consume removes the token and returns its identity. Expired or unknown
// tokens yield ErrTokenNotFound; a token can be consumed at most once.
func (s *TokenStore) Consume(token string) (ExchangeIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return ExchangeIdentity{}, ErrTokenNotFound
	}

	delete(s.entries, token)

	if s.now().After(entry.expiresAt) {
		return ExchangeIdentity{}, ErrTokenNotFound
	}
	return entry.identity, nil
}

// Purge drops all expired entries and reports how many were removed. Wired
// into the maintenance scheduler so abandoned exchanges do not accumulate.
func (s *TokenStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (s *TokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
