package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemTokenRoundtrip(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemTokenStore()

	tok, err := s.CreateToken(ctx, 1, "sess-a", MethodTOTP, 0)
	require.NoError(t, err)
	assert.NotEmpty(tok.Token)
	assert.Equal(MethodTOTP, tok.Method)
	assert.WithinDuration(tok.IssuedAt.Add(DefaultTTL), tok.ExpiresAt, time.Second)

	got, err := s.VerifyToken(ctx, tok.Token, 1, "sess-a")
	require.NoError(t, err)
	assert.Equal(tok.Token, got.Token)
	assert.Equal(uint(1), got.AccountID)

	// verification is read-only; it still works a second time
	_, err = s.VerifyToken(ctx, tok.Token, 1, "sess-a")
	assert.NoError(err)
}

func TestMemTokenFailClosed(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemTokenStore()

	tok, err := s.CreateToken(ctx, 1, "sess-a", MethodPasskey, time.Minute)
	require.NoError(t, err)

	// wrong account, wrong session, and a token that never existed all
	// surface the same error
	_, err = s.VerifyToken(ctx, tok.Token, 2, "sess-a")
	assert.ErrorIs(err, ErrTokenNotFound)
	_, err = s.VerifyToken(ctx, tok.Token, 1, "sess-b")
	assert.ErrorIs(err, ErrTokenNotFound)
	_, err = s.VerifyToken(ctx, "nonexistent", 1, "sess-a")
	assert.ErrorIs(err, ErrTokenNotFound)

	// as does an expired token
	short, err := s.CreateToken(ctx, 1, "sess-a", MethodPasskey, 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = s.VerifyToken(ctx, short.Token, 1, "sess-a")
	assert.ErrorIs(err, ErrTokenNotFound)
}

func TestMemTokenRevokeAll(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemTokenStore()

	a1, err := s.CreateToken(ctx, 1, "sess-a", MethodTOTP, time.Minute)
	require.NoError(t, err)
	a2, err := s.CreateToken(ctx, 1, "sess-b", MethodPassword, time.Minute)
	require.NoError(t, err)
	b1, err := s.CreateToken(ctx, 2, "sess-c", MethodTOTP, time.Minute)
	require.NoError(t, err)

	n, err := s.RevokeAllForAccount(ctx, 1, "logout")
	require.NoError(t, err)
	assert.Equal(2, n)

	// every token for account 1 is dead, across sessions
	_, err = s.VerifyToken(ctx, a1.Token, 1, "sess-a")
	assert.ErrorIs(err, ErrTokenNotFound)
	_, err = s.VerifyToken(ctx, a2.Token, 1, "sess-b")
	assert.ErrorIs(err, ErrTokenNotFound)

	// other accounts untouched
	_, err = s.VerifyToken(ctx, b1.Token, 2, "sess-c")
	assert.NoError(err)

	// a token minted after the revocation verifies fine
	fresh, err := s.CreateToken(ctx, 1, "sess-a", MethodTOTP, time.Minute)
	require.NoError(t, err)
	_, err = s.VerifyToken(ctx, fresh.Token, 1, "sess-a")
	assert.NoError(err)

	// second sweep finds nothing left to revoke
	n, err = s.RevokeAllForAccount(ctx, 2, "logout")
	require.NoError(t, err)
	assert.Equal(1, n)
	n, err = s.RevokeAllForAccount(ctx, 2, "logout")
	require.NoError(t, err)
	assert.Equal(0, n)
}

func TestMemTokenConcurrentLiveTokens(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := NewMemTokenStore()

	first, err := s.CreateToken(ctx, 1, "sess-a", MethodTOTP, time.Minute)
	require.NoError(t, err)
	second, err := s.CreateToken(ctx, 1, "sess-a", MethodPasskey, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(first.Token, second.Token)

	// issuing a second token does not invalidate the first
	_, err = s.VerifyToken(ctx, first.Token, 1, "sess-a")
	assert.NoError(err)
	_, err = s.VerifyToken(ctx, second.Token, 1, "sess-a")
	assert.NoError(err)
}
