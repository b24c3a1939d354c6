// Package redis disponibiliza a implementação do storage baseada em Redis.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Pulse-project-300/atu-project-300/internal/core/domain"
	"github.com/Pulse-project-300/atu-project-300/internal/core/ports"
)

const defaultMaxConnections = 20

// slidingWindowScript prunes, counts and conditionally admits in one server-side step.
// KEYS[1] = sorted set key
// ARGV[1] = window start (entries scored below it are dropped)
// ARGV[2] = now, score of the new member
// ARGV[3] = member
// ARGV[4] = max count
// ARGV[5] = key ttl in milliseconds
// Returns {current_count, allowed (0|1)}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local window_start = ARGV[1]
local now = ARGV[2]
local member = ARGV[3]
local max_count = tonumber(ARGV[4])
local ttl = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. window_start)

local count = redis.call('ZCARD', key)

if count < max_count then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, ttl)
  return {count + 1, 1}
end

return {count, 0}
`)

// Storage é o handle compartilhado do processo para o Redis.
// The zero value is not initialized; use New.
type Storage struct {
	client atomic.Pointer[redis.Client]
}

var _ ports.WindowStore = (*Storage)(nil)

type Config struct {
	URL            string
	MaxConnections int
	PingTimeout    time.Duration
}

// New abre o pool de conexões e verifica que o Redis responde.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.PoolSize = cfg.MaxConnections
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultMaxConnections
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping failed: %w", domain.ErrStoreUnavailable, err)
	}

	s := &Storage{}
	s.client.Store(client)
	return s, nil
}

// Client returns the active client, or domain.ErrNotInitialized after Close.
func (s *Storage) Client() (*redis.Client, error) {
	client := s.client.Load()
	if client == nil {
		return nil, domain.ErrNotInitialized
	}
	return client, nil
}

// Close libera as conexões. Chamadas repetidas não têm efeito.
func (s *Storage) Close() error {
	client := s.client.Swap(nil)
	if client == nil {
		return nil
	}
	return client.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	client, err := s.Client()
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Storage) CheckWindow(ctx context.Context, check domain.WindowCheck) (domain.CheckResult, error) {
	if check.MaxCount <= 0 {
		return domain.CheckResult{Allowed: true}, nil
	}

	client, err := s.Client()
	if err != nil {
		return domain.CheckResult{}, err
	}

	now := domain.Score(check.Now)
	windowStart := now - check.Window.Seconds()
	ttl := check.Window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}

	result, err := slidingWindowScript.Run(ctx, client, []string{check.Key},
		formatScore(windowStart),
		formatScore(now),
		check.Member,
		check.MaxCount,
		ttl,
	).Int64Slice()
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("%w: sliding window script on %s: %w", domain.ErrStoreUnavailable, check.Key, err)
	}
	if len(result) != 2 {
		return domain.CheckResult{}, fmt.Errorf("unexpected sliding window response for %s: %v", check.Key, result)
	}

	return domain.CheckResult{CurrentCount: result[0], Allowed: result[1] == 1}, nil
}

func (s *Storage) OldestScore(ctx context.Context, key string) (float64, bool, error) {
	client, err := s.Client()
	if err != nil {
		return 0, false, err
	}

	entries, err := client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: oldest entry of %s: %w", domain.ErrStoreUnavailable, key, err)
	}
	if len(entries) == 0 {
		return 0, false, nil
	}
	return entries[0].Score, true, nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
