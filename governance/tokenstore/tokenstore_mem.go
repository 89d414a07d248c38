package tokenstore

import (
	"context"
	"sync"
	"time"
)

// MemTokenStore is a process-local store for tests and single-node deploys.
// Expired tokens are swept opportunistically on create; verification checks
// expiry itself so sweep timing never matters.
type MemTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*EscalationToken
}

var _ TokenStore = (*MemTokenStore)(nil)

func NewMemTokenStore() *MemTokenStore {
	return &MemTokenStore{
		tokens: make(map[string]*EscalationToken),
	}
}

func (s *MemTokenStore) CreateToken(ctx context.Context, accountID uint, sessionID string, method Method, ttl time.Duration) (*EscalationToken, error) {
	now := time.Now()
	tok, err := newToken(accountID, sessionID, method, ttl, now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.tokens {
		if !v.ExpiresAt.After(now) {
			delete(s.tokens, k)
		}
	}
	s.tokens[tok.Token] = tok

	cpy := *tok
	return &cpy, nil
}

func (s *MemTokenStore) VerifyToken(ctx context.Context, token string, accountID uint, sessionID string) (*EscalationToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[token]
	if !ok || tok.AccountID != accountID || tok.SessionID != sessionID || !tok.Live(time.Now()) {
		return nil, ErrTokenNotFound
	}
	cpy := *tok
	return &cpy, nil
}

func (s *MemTokenStore) RevokeAllForAccount(ctx context.Context, accountID uint, reason string) (int, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, tok := range s.tokens {
		if tok.AccountID != accountID || tok.Revoked {
			continue
		}
		tok.Revoked = true
		ts := now
		tok.RevokedAt = &ts
		tok.RevokedReason = reason
		count++
	}
	return count, nil
}
