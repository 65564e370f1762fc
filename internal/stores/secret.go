package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSecretNotFound         = errors.New("secret not found")
	ErrSecretRedisUnavailable = errors.New("secret store redis unavailable")
)

// takeSecretLua atomically performs GET→PTTL→DEL on a secret key.
// KEYS[1] = secret key
//
// Returns:
//
//	{value, remaining ttl in ms} on success
//	nil when the key is absent
var takeSecretLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return false
end
local ttl = redis.call('PTTL', KEYS[1])
redis.call('DEL', KEYS[1])
return {data, ttl}
`)

// SecretStore keeps short-lived secrets in Redis under a fixed prefix.
// Expiry is delegated to Redis TTLs, so a lapsed key is indistinguishable
// from one that was never written.
type SecretStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewSecretStore(redisClient redis.UniversalClient, prefix string) *SecretStore {
	if prefix == "" {
		prefix = "kg"
	}
	return &SecretStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *SecretStore) key(key string) string {
	return s.prefix + ":" + key
}

// Put stores value under key, replacing any previous value and TTL.
func (s *SecretStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("secret ttl must be > 0")
	}
	if err := s.redis.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecretRedisUnavailable, err)
	}
	return nil
}

// PutNew stores value only when key is absent. It reports false when the key
// is already taken.
func (s *SecretStore) PutNew(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("secret ttl must be > 0")
	}
	ok, err := s.redis.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSecretRedisUnavailable, err)
	}
	return ok, nil
}

func (s *SecretStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretRedisUnavailable, err)
	}
	return data, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *SecretStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecretRedisUnavailable, err)
	}
	return nil
}

// Take fetches and clears key in one step and returns the TTL that was left.
// Of any number of concurrent callers, at most one observes the value.
func (s *SecretStore) Take(ctx context.Context, key string) ([]byte, time.Duration, error) {
	result, err := takeSecretLua.Run(ctx, s.redis, []string{s.key(key)}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, 0, ErrSecretNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSecretRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, 0, fmt.Errorf("%w: unexpected lua result type", ErrSecretRedisUnavailable)
	}
	data, ok := parts[0].(string)
	if !ok {
		return nil, 0, fmt.Errorf("%w: unexpected lua value type", ErrSecretRedisUnavailable)
	}
	ttlMs, _ := parts[1].(int64)
	if ttlMs < 0 {
		ttlMs = 0
	}

	return []byte(data), time.Duration(ttlMs) * time.Millisecond, nil
}
