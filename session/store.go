package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrInvalidSession   = errors.New("invalid session")
)

const defaultPrefix = "rs"

// Store keeps opaque session blobs in Redis under <prefix>:s:<sessionID>
// and indexes them per account under <prefix>:a:<accountID>. RevokeAll
// satisfies goReset.SessionRevoker, so a completed reset logs the account
// out everywhere.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a Store using prefix, or "rs" when prefix is empty.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + ":a:" + accountID
}

// Save stores data for sessionID and adds it to the account index. The index
// lives at least as long as its longest session.
func (s *Store) Save(ctx context.Context, accountID, sessionID string, data []byte, ttl time.Duration) error {
	if accountID == "" || sessionID == "" || ttl <= 0 {
		return ErrInvalidSession
	}
	indexKey := s.accountKey(accountID)

	current, err := s.redis.PTTL(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionID), data, ttl)
		pipe.SAdd(ctx, indexKey, sessionID)
		if current < ttl {
			pipe.PExpire(ctx, indexKey, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get returns the stored blob and whether the session exists.
func (s *Store) Get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, true, nil
}

// Delete removes one session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, accountID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.accountKey(accountID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAll removes every session indexed for accountID.
//
// The index is read before the delete, so a session saved between the two
// steps survives until its own TTL or the next RevokeAll.
func (s *Store) RevokeAll(ctx context.Context, accountID string) error {
	indexKey := s.accountKey(accountID)

	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.key(id))
	}
	keys = append(keys, indexKey)

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessionIDs lists indexed sessions that still exist. Expired entries
// are pruned from the index as a side effect.
func (s *Store) ActiveSessionIDs(ctx context.Context, accountID string) ([]string, error) {
	indexKey := s.accountKey(accountID)

	ids, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	pipe := s.redis.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	stale := make([]any, 0)
	for i, cmd := range exists {
		if cmd.Val() > 0 {
			live = append(live, ids[i])
		} else {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return live, nil
}
