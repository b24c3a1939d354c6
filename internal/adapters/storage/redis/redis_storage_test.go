package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Pulse-project-300/atu-project-300/internal/core/domain"
	"github.com/Pulse-project-300/atu-project-300/internal/core/services"
)

var baseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	storage, err := New(context.Background(), Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage, mr
}

func check(key string, now time.Time, member string, maxCount int, window time.Duration) domain.WindowCheck {
	return domain.WindowCheck{Key: key, Now: now, Member: member, MaxCount: maxCount, Window: window}
}

func TestNew_UnreachableStore(t *testing.T) {
	_, err := New(context.Background(), Config{URL: "redis://127.0.0.1:1", PingTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	_, err = New(context.Background(), Config{URL: "http://not-redis"})
	require.Error(t, err)
}

func TestStorage_Lifecycle(t *testing.T) {
	storage, _ := newTestStorage(t)

	client, err := storage.Client()
	require.NoError(t, err)
	require.NotNil(t, client)
	require.NoError(t, storage.Ping(context.Background()))

	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close(), "close must be idempotent")

	_, err = storage.Client()
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = storage.CheckWindow(context.Background(), check("k", baseTime, "m", 1, time.Minute))
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, _, err = storage.OldestScore(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	assert.ErrorIs(t, storage.Ping(context.Background()), domain.ErrNotInitialized)
}

func TestStorage_ZeroValueIsNotInitialized(t *testing.T) {
	var storage Storage
	_, err := storage.Client()
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestCheckWindow_AdmitsUpToLimit(t *testing.T) {
	storage, mr := newTestStorage(t)
	ctx := context.Background()
	key := domain.RateLimitKey("user-1", "minute")

	for i := 0; i < 5; i++ {
		result, err := storage.CheckWindow(ctx, check(key, baseTime.Add(time.Duration(i)*time.Second), fmt.Sprintf("m-%d", i), 5, time.Minute))
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i+1)
		assert.Equal(t, int64(i+1), result.CurrentCount)
	}

	result, err := storage.CheckWindow(ctx, check(key, baseTime.Add(5*time.Second), "m-5", 5, time.Minute))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(5), result.CurrentCount)

	members, err := mr.ZMembers(key)
	require.NoError(t, err)
	assert.Len(t, members, 5, "rejected check must not insert")
	assert.Equal(t, time.Minute, mr.TTL(key))
}

func TestCheckWindow_PrunesOldEntries(t *testing.T) {
	storage, mr := newTestStorage(t)
	ctx := context.Background()
	key := "ratelimit:user-1:minute"

	for i := 0; i < 2; i++ {
		_, err := storage.CheckWindow(ctx, check(key, baseTime.Add(time.Duration(i)*time.Second), fmt.Sprintf("m-%d", i), 2, time.Minute))
		require.NoError(t, err)
	}

	// At exactly now-window the first entry is still counted.
	result, err := storage.CheckWindow(ctx, check(key, baseTime.Add(time.Minute), "m-2", 2, time.Minute))
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	result, err = storage.CheckWindow(ctx, check(key, baseTime.Add(time.Minute+500*time.Millisecond), "m-3", 2, time.Minute))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(2), result.CurrentCount)

	members, err := mr.ZMembers(key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"m-1", "m-3"}, members)
}

func TestCheckWindow_SameTimestampDistinctMembers(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()
	key := "ratelimit:user-1:minute"

	for i := 0; i < 3; i++ {
		result, err := storage.CheckWindow(ctx, check(key, baseTime, services.NewMember(baseTime), 10, time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), result.CurrentCount)
	}
}

func TestCheckWindow_KeyExpiresWhenIdle(t *testing.T) {
	storage, mr := newTestStorage(t)
	key := "ratelimit:user-1:minute"

	_, err := storage.CheckWindow(context.Background(), check(key, baseTime, "m-0", 1, time.Minute))
	require.NoError(t, err)
	require.True(t, mr.Exists(key))

	mr.FastForward(time.Minute + time.Second)
	assert.False(t, mr.Exists(key))
}

func TestCheckWindow_DisabledSkipsStore(t *testing.T) {
	storage, mr := newTestStorage(t)
	key := "ratelimit:user-1:minute"

	result, err := storage.CheckWindow(context.Background(), check(key, baseTime, "m-0", 0, time.Minute))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.False(t, mr.Exists(key))
}

func TestCheckWindow_StoreDown(t *testing.T) {
	storage, mr := newTestStorage(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := storage.CheckWindow(ctx, check("k", baseTime, "m", 1, time.Minute))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.False(t, domain.IsRateLimitedError(err))
}

func TestCheckWindow_ConcurrentAdmissions(t *testing.T) {
	storage, mr := newTestStorage(t)
	key := "ratelimit:user-1:minute"

	const (
		requests = 50
		limit    = 10
	)

	var admitted, rejected atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			result, err := storage.CheckWindow(ctx, check(key, baseTime, services.NewMember(baseTime), limit, time.Minute))
			if err != nil {
				return err
			}
			if result.Allowed {
				admitted.Add(1)
			} else {
				rejected.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(limit), admitted.Load())
	assert.Equal(t, int64(requests-limit), rejected.Load())

	members, err := mr.ZMembers(key)
	require.NoError(t, err)
	assert.Len(t, members, limit)
}

func TestOldestScore(t *testing.T) {
	storage, _ := newTestStorage(t)
	ctx := context.Background()
	key := "ratelimit:user-1:minute"

	_, found, err := storage.OldestScore(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	for i := 0; i < 3; i++ {
		_, err := storage.CheckWindow(ctx, check(key, baseTime.Add(time.Duration(i)*time.Second), fmt.Sprintf("m-%d", i), 5, time.Minute))
		require.NoError(t, err)
	}

	score, found, err := storage.OldestScore(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.InDelta(t, domain.Score(baseTime), score, 1e-3)
}

func TestRateLimiterService_WithRedis(t *testing.T) {
	storage, mr := newTestStorage(t)
	now := baseTime

	limiter, err := services.NewRateLimiterService(storage, services.Config{
		Windows: []domain.WindowPolicy{
			{Name: "minute", Window: time.Minute, MaxCount: 5},
			{Name: "hour", Window: time.Hour, MaxCount: 100},
			{Name: "day", Window: 24 * time.Hour, MaxCount: 1000},
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		now = now.Add(time.Second)
	}

	_, err = limiter.Allow(ctx, "user-1")
	var rejection *domain.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "minute", rejection.Window)
	assert.Equal(t, 5, rejection.Limit)
	assert.GreaterOrEqual(t, rejection.RetryAfter, time.Second)
	assert.LessOrEqual(t, rejection.RetryAfter, time.Minute)

	for _, window := range []string{"hour", "day"} {
		members, err := mr.ZMembers(domain.RateLimitKey("user-1", window))
		require.NoError(t, err)
		assert.Len(t, members, 5, "%s window must not record the rejected action", window)
	}

	// After the minute window has fully passed the identity is admitted again.
	now = now.Add(time.Minute)
	decision, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
