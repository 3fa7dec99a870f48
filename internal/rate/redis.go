package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KEYS: window key
// ARGV: now ms, window ms, max, member
var admitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
redis.call('ZADD', KEYS[1], now, ARGV[4])
if count >= max then
  redis.call('ZREMRANGEBYRANK', KEYS[1], 0, count - max)
end
redis.call('PEXPIRE', KEYS[1], window)
if count < max then
  return 1
end
return 0
`)

// Redis is a sliding-window limiter shared by every instance using the same
// Redis and prefix.
type Redis struct {
	redis  redis.UniversalClient
	cfg    Config
	prefix string
	now    Clock
}

// NewRedis creates a Redis limiter. prefix defaults to "rrl".
func NewRedis(client redis.UniversalClient, cfg Config, prefix string, now Clock) (*Redis, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "rrl"
	}
	if now == nil {
		now = time.Now
	}
	return &Redis{redis: client, cfg: cfg, prefix: prefix, now: now}, nil
}

// Admit records an attempt under key and reports whether it is admitted.
func (r *Redis) Admit(ctx context.Context, key string) (bool, error) {
	nowMs := r.now().UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()

	n, err := admitScript.Run(ctx, r.redis,
		[]string{r.prefix + ":" + key},
		nowMs,
		r.cfg.Window.Milliseconds(),
		r.cfg.MaxRequests,
		member,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}
