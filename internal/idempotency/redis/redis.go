// Package redis is an idempotency.Store shared across gateway instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yourorg/payment-gateway/internal/idempotency"
	"github.com/yourorg/payment-gateway/internal/payment"
)

const keyPrefix = "idem:payment:"

// Store keeps idempotency entries as JSON values. Reservation uses SETNX so
// exactly one caller wins a fresh key.
type Store struct {
	rdb *goredis.Client
	ttl time.Duration
}

var _ idempotency.Store = (*Store)(nil)

// NewStore creates a Store. A ttl of zero keeps entries forever.
func NewStore(rdb *goredis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// redisKey namespaces key within the shared keyspace.
func (s *Store) redisKey(key string) string {
	return keyPrefix + key
}

func (s *Store) Get(ctx context.Context, key string) (*payment.CreateResponse, bool, error) {
	entry, err := s.load(ctx, key)
	if err != nil || entry == nil || entry.State != idempotency.StateComplete {
		return nil, false, err
	}
	return entry.Response, true, nil
}

func (s *Store) Reserve(ctx context.Context, key string) (*payment.CreateResponse, error) {
	reserved, err := json.Marshal(idempotency.Entry{State: idempotency.StateReserved})
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.SetNX(ctx, s.redisKey(key), reserved, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: reserve %s: %w", key, err)
	}
	if ok {
		return nil, nil
	}

	entry, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		// released or expired between SETNX and GET
		return s.Reserve(ctx, key)
	}
	if entry.State != idempotency.StateComplete {
		return nil, idempotency.ErrInProgress
	}
	return entry.Response, nil
}

// completeScript swaps a reserved entry for the completed one atomically.
var completeScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local decoded = cjson.decode(cur)
if decoded['state'] ~= 'RESERVED' then return 0 end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

func (s *Store) Complete(ctx context.Context, key string, resp payment.CreateResponse) error {
	payload, err := json.Marshal(idempotency.Entry{State: idempotency.StateComplete, Response: &resp})
	if err != nil {
		return err
	}
	n, err := completeScript.Run(ctx, s.rdb, []string{s.redisKey(key)}, payload, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis: complete %s: %w", key, err)
	}
	if n == 0 {
		return idempotency.ErrNotReserved
	}
	return nil
}

// releaseScript deletes the key only while it is still reserved.
var releaseScript = goredis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local decoded = cjson.decode(cur)
if decoded['state'] ~= 'RESERVED' then return 0 end
return redis.call('DEL', KEYS[1])
`)

func (s *Store) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.rdb, []string{s.redisKey(key)}).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis: release %s: %w", key, err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, key string) (*idempotency.Entry, error) {
	raw, err := s.rdb.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	var entry idempotency.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return &entry, nil
}
