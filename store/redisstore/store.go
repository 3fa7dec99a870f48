// Package redisstore implements store.TokenStore on Redis.
//
// Each token is a hash with explicit fields (v, account, fp, issued, expires,
// used). Two index keys point at it: the hex fingerprint and a per-account set
// of IDs. Writes and the redeem compare-and-set run as Lua scripts so they are
// atomic on the server.
//
// The scripts touch keys derived inside Lua, so the store targets standalone
// or sentinel deployments rather than Redis Cluster.
package redisstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goReset/store"
	"github.com/redis/go-redis/v9"
)

const (
	recordVersionV1 = 1

	defaultPrefix    = "rst"
	defaultRetention = 24 * time.Hour
)

// Config tunes key naming and record retention.
type Config struct {
	// Prefix namespaces all keys. Default "rst".
	Prefix string
	// Retention keeps records around after expiry for audit. Default 24h.
	Retention time.Duration
	// Now supplies the time used for expiry checks. Default time.Now.
	Now store.Clock
}

// Store is a Redis-backed store.TokenStore and store.Replacer.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
	now       store.Clock
}

// New creates a Store on the given client.
func New(client redis.UniversalClient, cfg Config) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		redis:     client,
		prefix:    cfg.Prefix,
		retention: cfg.Retention,
		now:       cfg.Now,
	}
}

func (s *Store) recordPrefix() string { return s.prefix + ":t:" }

func (s *Store) recordKey(id string) string { return s.recordPrefix() + id }

func (s *Store) fingerprintKey(fp [32]byte) string {
	return s.prefix + ":f:" + hex.EncodeToString(fp[:])
}

func (s *Store) accountKey(accountID string) string { return s.prefix + ":a:" + accountID }

// invalidateLua marks every unused record listed in the account set as used
// and prunes IDs whose record already expired out of Redis.
const invalidateLua = `
local function invalidate(accountKey, recordPrefix)
  local ids = redis.call('SMEMBERS', accountKey)
  local n = 0
  for _, id in ipairs(ids) do
    local rk = recordPrefix .. id
    if redis.call('EXISTS', rk) == 1 then
      if redis.call('HGET', rk, 'used') == '0' then
        redis.call('HSET', rk, 'used', '1')
        n = n + 1
      end
    else
      redis.call('SREM', accountKey, id)
    end
  end
  return n
end
`

// insertLua writes the record hash and both indexes.
// KEYS: record, fingerprint, account
// ARGV: id, version, account, fp hex, issued ms, expires ms, ttl ms
const insertLua = `
local function insert()
  if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
    return {err='duplicate'}
  end
  redis.call('HSET', KEYS[1],
    'v', ARGV[2], 'account', ARGV[3], 'fp', ARGV[4],
    'issued', ARGV[5], 'expires', ARGV[6], 'used', '0')
  redis.call('PEXPIRE', KEYS[1], ARGV[7])
  redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[7])
  redis.call('SADD', KEYS[3], ARGV[1])
  if redis.call('PTTL', KEYS[3]) < tonumber(ARGV[7]) then
    redis.call('PEXPIRE', KEYS[3], ARGV[7])
  end
  return 1
end
`

var insertScript = redis.NewScript(insertLua + `
return insert()
`)

// ARGV[8] carries the record key prefix.
var replaceScript = redis.NewScript(invalidateLua + insertLua + `
invalidate(KEYS[3], ARGV[8])
return insert()
`)

var invalidateScript = redis.NewScript(invalidateLua + `
return invalidate(KEYS[1], ARGV[1])
`)

// KEYS: record; ARGV: now ms
var markUsedScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'used') ~= '0' then
  return 0
end
local exp = tonumber(redis.call('HGET', KEYS[1], 'expires'))
if exp == nil or exp <= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'used', '1')
return 1
`)

// Insert stores a new record.
func (s *Store) Insert(ctx context.Context, token store.ResetToken) error {
	if err := store.CheckRecord(token); err != nil {
		return err
	}
	keys, args := s.insertArgs(token)
	return s.runWrite(ctx, insertScript, keys, args)
}

// Replace invalidates the account's outstanding tokens and inserts token in
// one script invocation.
func (s *Store) Replace(ctx context.Context, token store.ResetToken) error {
	if err := store.CheckRecord(token); err != nil {
		return err
	}
	keys, args := s.insertArgs(token)
	args = append(args, s.recordPrefix())
	return s.runWrite(ctx, replaceScript, keys, args)
}

func (s *Store) insertArgs(token store.ResetToken) ([]string, []any) {
	ttl := token.ExpiresAt.Sub(s.now()) + s.retention
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	keys := []string{
		s.recordKey(token.ID),
		s.fingerprintKey(token.Fingerprint),
		s.accountKey(token.AccountID),
	}
	args := []any{
		token.ID,
		recordVersionV1,
		token.AccountID,
		hex.EncodeToString(token.Fingerprint[:]),
		token.IssuedAt.UnixMilli(),
		token.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
	}
	return keys, args
}

func (s *Store) runWrite(ctx context.Context, script *redis.Script, keys []string, args []any) error {
	if err := script.Run(ctx, s.redis, keys, args...).Err(); err != nil {
		if err.Error() == "duplicate" {
			return store.ErrInvalidRecord
		}
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// FindValidByFingerprint resolves the fingerprint index and evaluates
// validity against the configured clock.
func (s *Store) FindValidByFingerprint(ctx context.Context, fingerprint [32]byte) (store.ResetToken, bool, error) {
	id, err := s.redis.Get(ctx, s.fingerprintKey(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.ResetToken{}, false, nil
		}
		return store.ResetToken{}, false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	fields, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return store.ResetToken{}, false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return store.ResetToken{}, false, nil
	}

	rec, err := decodeRecord(id, fields)
	if err != nil {
		return store.ResetToken{}, false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if rec.Fingerprint != fingerprint || !rec.ValidAt(s.now()) {
		return store.ResetToken{}, false, nil
	}
	return rec, true, nil
}

// MarkUsedAtomically runs the compare-and-set script on the record.
func (s *Store) MarkUsedAtomically(ctx context.Context, id string) (bool, error) {
	n, err := markUsedScript.Run(ctx, s.redis, []string{s.recordKey(id)}, s.now().UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return n == 1, nil
}

// InvalidateAllForAccount marks every outstanding record of the account used.
func (s *Store) InvalidateAllForAccount(ctx context.Context, accountID string) error {
	err := invalidateScript.Run(ctx, s.redis, []string{s.accountKey(accountID)}, s.recordPrefix()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func decodeRecord(id string, fields map[string]string) (store.ResetToken, error) {
	version, err := strconv.Atoi(fields["v"])
	if err != nil || version != recordVersionV1 {
		return store.ResetToken{}, fmt.Errorf("unsupported record version %q", fields["v"])
	}

	fp, err := hex.DecodeString(fields["fp"])
	if err != nil || len(fp) != 32 {
		return store.ResetToken{}, errors.New("malformed fingerprint field")
	}
	issued, err := strconv.ParseInt(fields["issued"], 10, 64)
	if err != nil {
		return store.ResetToken{}, errors.New("malformed issued field")
	}
	expires, err := strconv.ParseInt(fields["expires"], 10, 64)
	if err != nil {
		return store.ResetToken{}, errors.New("malformed expires field")
	}

	rec := store.ResetToken{
		ID:        id,
		AccountID: fields["account"],
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
		Used:      fields["used"] != "0",
	}
	copy(rec.Fingerprint[:], fp)
	return rec, nil
}
