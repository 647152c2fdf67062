package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "circulation:lock:"

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	client        redis.UniversalClient
	ttl           time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

// NewRedis builds a locker whose keys expire after ttl. Failed releases are
// reported on logger, which may be nil.
func NewRedis(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client:        client,
		ttl:           ttl,
		retryInterval: 20 * time.Millisecond,
		logger:        logger,
	}
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	tokens := make(map[string]string, len(keys))
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for key, token := range tokens {
			r.release(ctx, key, token)
		}
	}

	for _, key := range keys {
		token, err := r.acquire(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		tokens[key] = token
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// A key left in place expires after the ttl, so a failed release only delays
// the next holder.
func (r *Redis) release(ctx context.Context, key, token string) {
	deleted, err := releaseScript.Run(ctx, r.client, []string{keyPrefix + key}, token).Int()
	switch {
	case err != nil:
		r.logger.Error("releasing lock", zap.String("key", key), zap.Error(err))
	case deleted == 0:
		r.logger.Warn("lock expired before release", zap.String("key", key))
	}
}

func (r *Redis) acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	ticker := time.NewTicker(r.retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, keyPrefix+key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("locking %s: %w: %v", key, ErrNotAcquired, ctx.Err())
			}
			return "", fmt.Errorf("locking %s on redis: %w", key, err)
		}
		if ok {
			return token, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", fmt.Errorf("locking %s: %w: %v", key, ErrNotAcquired, ctx.Err())
		}
	}
}
