// Step-up escalation token storage: issue, verify, revoke.
//
// Includes an interface and implementations using redis and in-process memory.
//
// Tokens are short-lived, bound to one (account, session) pair, and verified
// read-only until expiry or revocation. Verification fails closed: a wrong
// session, an expired token, a revoked token, and a token that never existed
// are all reported identically as not found.
package tokenstore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// DefaultTTL is the token lifetime used when the caller does not specify one.
const DefaultTTL = 15 * time.Minute

var ErrTokenNotFound = fmt.Errorf("escalation token not found")

// Method is the second factor that earned the token.
type Method string

const (
	MethodPasskey  = Method("passkey")
	MethodTOTP     = Method("totp")
	MethodPassword = Method("password")
)

func (m Method) String() string {
	return string(m)
}

func (m Method) Valid() bool {
	switch m {
	case MethodPasskey, MethodTOTP, MethodPassword:
		return true
	default:
		return false
	}
}

type EscalationToken struct {
	Token         string     `json:"token"`
	AccountID     uint       `json:"accountId"`
	SessionID     string     `json:"sessionId"`
	Method        Method     `json:"method"`
	IssuedAt      time.Time  `json:"issuedAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	RevokedReason string     `json:"revokedReason,omitempty"`
}

// Live reports whether the token would verify at the given instant for its
// own identifiers. Expiry is checked here regardless of whether physical
// cleanup has run.
func (t *EscalationToken) Live(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

type TokenStore interface {
	// CreateToken mints and persists a fresh token. Multiple concurrent live
	// tokens per (account, session) are permitted; issuance is safe to retry.
	CreateToken(ctx context.Context, accountID uint, sessionID string, method Method, ttl time.Duration) (*EscalationToken, error)
	// VerifyToken returns the token record iff it exists, matches both
	// identifiers, is not revoked, and has not expired. Any failure is
	// ErrTokenNotFound; callers cannot distinguish the cases. Pure read.
	VerifyToken(ctx context.Context, token string, accountID uint, sessionID string) (*EscalationToken, error)
	// RevokeAllForAccount marks every non-revoked token for the account
	// revoked and returns how many it touched. A second call is a no-op.
	RevokeAllForAccount(ctx context.Context, accountID uint, reason string) (int, error)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newToken(accountID uint, sessionID string, method Method, ttl time.Duration, now time.Time) (*EscalationToken, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	secret, err := generateToken()
	if err != nil {
		return nil, err
	}
	return &EscalationToken{
		Token:     secret,
		AccountID: accountID,
		SessionID: sessionID,
		Method:    method,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}
