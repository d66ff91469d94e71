package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenStoreIssueAndConsume(t *testing.T) {
	store := NewTokenStore()

	token, err := store.Issue(ExchangeIdentity{AdminID: "admin-1", Email: "a@example.com", Name: "A"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := store.Consume(token)
	require.NoError(t, err)
	require.Equal(t, "admin-1", identity.AdminID)

	// Single use.
	_, err = store.Consume(token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStoreRejectsUnknownToken(t *testing.T) {
	store := NewTokenStore()
	_, err := store.Consume("nope")
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStoreExpiry(t *testing.T) {
	current := time.Now()
	store := NewTokenStore(
		WithTokenTTL(time.Minute),
		WithTokenClock(func() time.Time { return current }),
	)

	token, err := store.Issue(ExchangeIdentity{AdminID: "admin-1"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = store.Consume(token)
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenStorePurgeRemovesOnlyExpired(t *testing.T) {
	current := time.Now()
	store := NewTokenStore(
		WithTokenTTL(time.Minute),
		WithTokenClock(func() time.Time { return current }),
	)

	stale, err := store.Issue(ExchangeIdentity{AdminID: "admin-1"})
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	fresh, err := store.Issue(ExchangeIdentity{AdminID: "admin-2"})
	require.NoError(t, err)

	require.Equal(t, 1, store.Purge())
	require.Equal(t, 1, store.Len())

	_, err = store.Consume(stale)
	require.ErrorIs(t, err, ErrTokenNotFound)

	identity, err := store.Consume(fresh)
	require.NoError(t, err)
	require.Equal(t, "admin-2", identity.AdminID)
}

func TestTokenStoreIssueRequiresAdminID(t *testing.T) {
	store := NewTokenStore()
	_, err := store.Issue(ExchangeIdentity{})
	require.Error(t, err)
}

func TestTokenStoreTokensAreUnique(t *testing.T) {
	store := NewTokenStore()

	first, err := store.Issue(ExchangeIdentity{AdminID: "admin-1"})
	require.NoError(t, err)
	second, err := store.Issue(ExchangeIdentity{AdminID: "admin-1"})
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}
