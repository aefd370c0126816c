// Package idempotency guards in-flight checkouts sharing an Idempotency-Key.
package idempotency

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const Header = "Idempotency-Key"

// keyFormat: idem:checkout:{idempotency_key} -> lock token
const keyFormat = "idem:checkout:%s"

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock re-taken by another request is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Key returns the trimmed Idempotency-Key header, or "".
func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// RedisLocker implements checkout.Locker with SET NX and a TTL. Each
// successful Acquire hands back its own token; the locker keeps no per-key
// state, so one instance can serve every request in the process.
type RedisLocker struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisLocker(rdb redis.Cmdable, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: ttl}
}

// Acquire returns the lock token, or "" when another request holds key.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, fmt.Sprintf(keyFormat, key), token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire idempotency lock: %w", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// Release frees key only while it still holds token.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}

	if err := releaseScript.Run(ctx, l.rdb, []string{fmt.Sprintf(keyFormat, key)}, token).Err(); err != nil {
		return fmt.Errorf("release idempotency lock: %w", err)
	}
	return nil
}
