package challenge

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

type RedisChallengeStore struct {
	Data *cache.Cache
	TTL  time.Duration
}

var _ ChallengeStore = (*RedisChallengeStore)(nil)

func NewRedisChallengeStore(redisURL string, ttl time.Duration) (*RedisChallengeStore, error) {
	ctx := context.Background()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	data := cache.New(&cache.Options{
		Redis: rdb,
	})
	return &RedisChallengeStore{
		Data: data,
		TTL:  ttl,
	}, nil
}

func redisChallengeKey(accountID uint) string {
	return "challenge/" + strconv.FormatUint(uint64(accountID), 10)
}

func (s *RedisChallengeStore) Put(ctx context.Context, accountID uint, challenge string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisChallengeKey(accountID),
		Value: challenge,
		TTL:   s.TTL,
	})
}

func (s *RedisChallengeStore) Take(ctx context.Context, accountID uint) (string, error) {
	var val string
	err := s.Data.Get(ctx, redisChallengeKey(accountID), &val)
	if err == cache.ErrCacheMiss {
		return "", ErrChallengeNotFound
	}
	if err != nil {
		return "", err
	}
	if err := s.Data.Delete(ctx, redisChallengeKey(accountID)); err != nil {
		return "", err
	}
	return val, nil
}
