package tokenstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisTokenPrefix string = "escalation/token/"
var redisAccountPrefix string = "escalation/account/"

// RedisTokenStore persists tokens as JSON values with a native key TTL, so
// expired tokens are garbage-collected by redis itself. A per-account set
// indexes live tokens for RevokeAllForAccount; stale members are pruned as
// they are encountered.
type RedisTokenStore struct {
	Client *redis.Client
}

var _ TokenStore = (*RedisTokenStore)(nil)

func NewRedisTokenStore(redisURL string) (*RedisTokenStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisTokenStore{Client: rdb}, nil
}

func accountKey(accountID uint) string {
	return redisAccountPrefix + strconv.FormatUint(uint64(accountID), 10)
}

func (s *RedisTokenStore) CreateToken(ctx context.Context, accountID uint, sessionID string, method Method, ttl time.Duration) (*EscalationToken, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tok, err := newToken(accountID, sessionID, method, ttl, time.Now())
	if err != nil {
		return nil, err
	}
	val, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("encoding token: %w", err)
	}

	// write the token and its index entry in a single redis round-trip
	multi := s.Client.Pipeline()
	multi.Set(ctx, redisTokenPrefix+tok.Token, val, ttl)
	multi.SAdd(ctx, accountKey(accountID), tok.Token)
	// only extend the index lifetime, never shorten it under a longer-lived token
	multi.ExpireGT(ctx, accountKey(accountID), ttl)
	if _, err := multi.Exec(ctx); err != nil {
		return nil, err
	}
	return tok, nil
}

func (s *RedisTokenStore) getToken(ctx context.Context, token string) (*EscalationToken, error) {
	raw, err := s.Client.Get(ctx, redisTokenPrefix+token).Bytes()
	if err == redis.Nil {
		return nil, ErrTokenNotFound
	} else if err != nil {
		return nil, err
	}
	var tok EscalationToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &tok, nil
}

func (s *RedisTokenStore) VerifyToken(ctx context.Context, token string, accountID uint, sessionID string) (*EscalationToken, error) {
	tok, err := s.getToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if tok.AccountID != accountID || tok.SessionID != sessionID || !tok.Live(time.Now()) {
		return nil, ErrTokenNotFound
	}
	return tok, nil
}

func (s *RedisTokenStore) RevokeAllForAccount(ctx context.Context, accountID uint, reason string) (int, error) {
	members, err := s.Client.SMembers(ctx, accountKey(accountID)).Result()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	now := time.Now()
	count := 0
	for _, member := range members {
		tok, err := s.getToken(ctx, member)
		if err == ErrTokenNotFound {
			// expired and collected; drop the index entry
			s.Client.SRem(ctx, accountKey(accountID), member)
			continue
		} else if err != nil {
			return count, err
		}
		if tok.Revoked {
			continue
		}
		tok.Revoked = true
		ts := now
		tok.RevokedAt = &ts
		tok.RevokedReason = reason
		val, err := json.Marshal(tok)
		if err != nil {
			return count, fmt.Errorf("encoding token: %w", err)
		}
		// keep the original TTL so the tombstone disappears with the token
		if err := s.Client.Set(ctx, redisTokenPrefix+member, val, redis.KeepTTL).Err(); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
