package challenge

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type MemChallengeStore struct {
	data *expirable.LRU[uint, string]
}

var _ ChallengeStore = (*MemChallengeStore)(nil)

func NewMemChallengeStore(capacity int, ttl time.Duration) *MemChallengeStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemChallengeStore{
		data: expirable.NewLRU[uint, string](capacity, nil, ttl),
	}
}

func (s *MemChallengeStore) Put(ctx context.Context, accountID uint, challenge string) error {
	s.data.Add(accountID, challenge)
	return nil
}

func (s *MemChallengeStore) Take(ctx context.Context, accountID uint) (string, error) {
	v, ok := s.data.Get(accountID)
	if !ok {
		return "", ErrChallengeNotFound
	}
	s.data.Remove(accountID)
	return v, nil
}
