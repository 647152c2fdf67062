package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/matryer/is"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLocal(t *testing.T) {
	t.Run("a held key times out a second locker", func(t *testing.T) {
		is := is.New(t)
		l := NewLocal()

		unlock, err := l.Lock(context.Background(), "book:1")
		is.NoErr(err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "book:1")
		is.True(errors.Is(err, ErrNotAcquired))

		unlock()
		unlock2, err := l.Lock(context.Background(), "book:1")
		is.NoErr(err)
		unlock2()
		is.Equal(l.held(), 0)
	})

	t.Run("a failed multi key lock releases what it took", func(t *testing.T) {
		is := is.New(t)
		l := NewLocal()

		unlockBook, err := l.Lock(context.Background(), "book:1")
		is.NoErr(err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "user:1", "book:1")
		is.True(errors.Is(err, ErrNotAcquired))

		unlockUser, err := l.Lock(context.Background(), "user:1")
		is.NoErr(err)
		unlockUser()
		unlockBook()
		is.Equal(l.held(), 0)
	})

	t.Run("holders of the same key never overlap", func(t *testing.T) {
		is := is.New(t)
		l := NewLocal()

		var wg sync.WaitGroup
		var mu sync.Mutex
		inside, maxInside := 0, 0
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := l.Lock(context.Background(), "record:1")
				if err != nil {
					return
				}
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()

		is.Equal(maxInside, 1)
		is.Equal(l.held(), 0)
	})

	t.Run("calling unlock twice is harmless", func(t *testing.T) {
		is := is.New(t)
		l := NewLocal()

		unlock, err := l.Lock(context.Background(), "book:2")
		is.NoErr(err)
		unlock()
		unlock()
		is.Equal(l.held(), 0)
	})
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	core, logs := observer.New(zapcore.InfoLevel)
	return NewRedis(client, ttl, zap.New(core)), mr, logs
}

func TestRedis(t *testing.T) {
	t.Run("a held key times out a second locker", func(t *testing.T) {
		is := is.New(t)
		l, mr, _ := newRedisLocker(t, time.Minute)

		unlock, err := l.Lock(context.Background(), "book:1")
		is.NoErr(err)
		is.True(mr.Exists(keyPrefix + "book:1"))

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "book:1")
		is.True(errors.Is(err, ErrNotAcquired))

		unlock()
		is.True(!mr.Exists(keyPrefix + "book:1"))

		unlock2, err := l.Lock(context.Background(), "book:1")
		is.NoErr(err)
		unlock2()
	})

	t.Run("keys expire after the ttl", func(t *testing.T) {
		is := is.New(t)
		l, mr, _ := newRedisLocker(t, time.Second)

		_, err := l.Lock(context.Background(), "user:1")
		is.NoErr(err)

		mr.FastForward(2 * time.Second)

		unlock, err := l.Lock(context.Background(), "user:1")
		is.NoErr(err)
		unlock()
	})

	t.Run("a stale holder does not release the new holder's key", func(t *testing.T) {
		is := is.New(t)
		l, mr, logs := newRedisLocker(t, time.Second)

		staleUnlock, err := l.Lock(context.Background(), "record:1")
		is.NoErr(err)

		mr.FastForward(2 * time.Second)

		unlock, err := l.Lock(context.Background(), "record:1")
		is.NoErr(err)

		staleUnlock()
		is.True(mr.Exists(keyPrefix + "record:1"))
		is.Equal(logs.FilterMessage("lock expired before release").Len(), 1)

		unlock()
		is.True(!mr.Exists(keyPrefix + "record:1"))
	})

	t.Run("a failed multi key lock releases what it took", func(t *testing.T) {
		is := is.New(t)
		l, mr, _ := newRedisLocker(t, time.Minute)

		unlockBook, err := l.Lock(context.Background(), "book:9")
		is.NoErr(err)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, "user:9", "book:9")
		is.True(errors.Is(err, ErrNotAcquired))
		is.True(!mr.Exists(keyPrefix + "user:9"))

		unlockBook()
	})

	t.Run("a failed release is logged once", func(t *testing.T) {
		is := is.New(t)
		l, mr, logs := newRedisLocker(t, time.Minute)

		unlock, err := l.Lock(context.Background(), "book:5")
		is.NoErr(err)

		mr.SetError("ERR down")
		unlock()
		unlock()
		mr.SetError("")

		failures := logs.FilterMessage("releasing lock").All()
		is.Equal(len(failures), 1)
		is.Equal(failures[0].Level, zapcore.ErrorLevel)
		is.Equal(failures[0].ContextMap()["key"], "book:5")
		is.True(mr.Exists(keyPrefix + "book:5")) // left to expire
	})
}
