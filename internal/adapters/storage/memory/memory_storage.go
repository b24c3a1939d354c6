// Package memory disponibiliza um storage em memória para desenvolvimento e testes.
// Every operation runs under a single mutex, which plays the role of the store's
// per-key serialization. State is local to the process and not shared between instances.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Pulse-project-300/atu-project-300/internal/core/domain"
	"github.com/Pulse-project-300/atu-project-300/internal/core/ports"
)

type entry struct {
	member string
	score  float64
}

// orderedSet keeps entries sorted by score.
type orderedSet struct {
	entries   []entry
	expiresAt time.Time
}

func (s *orderedSet) pruneBefore(cutoff float64) {
	idx := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].score >= cutoff })
	if idx > 0 {
		s.entries = append(s.entries[:0], s.entries[idx:]...)
	}
}

func (s *orderedSet) add(member string, score float64) {
	for i, e := range s.entries {
		if e.member == member {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	idx := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].score > score })
	s.entries = append(s.entries, entry{})
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = entry{member: member, score: score}
}

type Storage struct {
	mu   sync.Mutex
	now  func() time.Time
	sets map[string]*orderedSet

	stopChan        chan struct{}
	wg              sync.WaitGroup
	once            sync.Once
	cleanupInterval time.Duration
	logger          *slog.Logger
}

var _ ports.WindowStore = (*Storage)(nil)

type Config struct {
	Now             func() time.Time
	CleanupInterval time.Duration
	Logger          *slog.Logger
}

func New(cfg Config) *Storage {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Storage{
		now:             cfg.Now,
		sets:            make(map[string]*orderedSet),
		stopChan:        make(chan struct{}),
		cleanupInterval: cfg.CleanupInterval,
		logger:          cfg.Logger,
	}
}

func (s *Storage) CheckWindow(_ context.Context, check domain.WindowCheck) (domain.CheckResult, error) {
	if check.MaxCount <= 0 {
		return domain.CheckResult{Allowed: true}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.lookup(check.Key)
	if set == nil {
		set = &orderedSet{}
	}

	now := domain.Score(check.Now)
	set.pruneBefore(now - check.Window.Seconds())

	count := int64(len(set.entries))
	if count >= int64(check.MaxCount) {
		return domain.CheckResult{CurrentCount: count, Allowed: false}, nil
	}

	set.add(check.Member, now)
	set.expiresAt = s.now().Add(check.Window)
	s.sets[check.Key] = set

	return domain.CheckResult{CurrentCount: count + 1, Allowed: true}, nil
}

func (s *Storage) OldestScore(_ context.Context, key string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.lookup(key)
	if set == nil || len(set.entries) == 0 {
		return 0, false, nil
	}
	return set.entries[0].score, true, nil
}

func (s *Storage) Ping(context.Context) error {
	return nil
}

// lookup returns the live set for key, dropping it when its ttl has passed.
// Callers must hold s.mu.
func (s *Storage) lookup(key string) *orderedSet {
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	if !s.now().Before(set.expiresAt) {
		delete(s.sets, key)
		return nil
	}
	return set
}

// StartCleanup inicia a goroutine que remove chaves expiradas.
// It stops when ctx is cancelled or Stop is called.
func (s *Storage) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *Storage) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0
	for key, set := range s.sets {
		if !now.Before(set.expiresAt) {
			delete(s.sets, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("memory storage cleanup completed",
			"cleaned_keys", cleaned,
			"remaining_keys", len(s.sets))
	}
}

// Stop encerra a limpeza em segundo plano. Pode ser chamado mais de uma vez.
func (s *Storage) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Size returns the number of tracked keys, expired ones included until cleanup.
func (s *Storage) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}
