package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, wait time.Duration) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDateLocker(client, 5*time.Second, wait), mr
}

func TestWithDateLockReleasesKey(t *testing.T) {
	locker, mr := newTestLocker(t, 0)

	ran := false
	err := locker.WithDateLock(context.Background(), "2026-05-10", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:appointments:2026-05-10"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:appointments:2026-05-10"))
}

func TestWithDateLockContended(t *testing.T) {
	locker, mr := newTestLocker(t, 0)
	require.NoError(t, mr.Set("lock:appointments:2026-05-10", "someone-else"))

	err := locker.WithDateLock(context.Background(), "2026-05-10", func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// another holder's key is left untouched
	got, err := mr.Get("lock:appointments:2026-05-10")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestWithDateLockWaitsForRelease(t *testing.T) {
	locker, mr := newTestLocker(t, 2*time.Second)
	require.NoError(t, mr.Set("lock:appointments:2026-05-10", "someone-else"))

	go func() {
		time.Sleep(150 * time.Millisecond)
		mr.Del("lock:appointments:2026-05-10")
	}()

	err := locker.WithDateLock(context.Background(), "2026-05-10", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}

func TestWithDateLockPropagatesError(t *testing.T) {
	locker, mr := newTestLocker(t, 0)
	boom := errors.New("boom")

	err := locker.WithDateLock(context.Background(), "2026-05-11", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:appointments:2026-05-11"))
}
