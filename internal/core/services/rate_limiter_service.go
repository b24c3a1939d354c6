package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pulse-project-300/atu-project-300/internal/core/domain"
	"github.com/Pulse-project-300/atu-project-300/internal/core/ports"
)

const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Config agrega as janelas e dependências utilizadas pelo serviço de rate limiting.
type Config struct {
	Windows []domain.WindowPolicy
	// StoreTimeout bounds each store round trip. Zero means the caller's context only.
	StoreTimeout time.Duration
	Logger       *slog.Logger
	Metrics      ports.Metrics
	Now          func() time.Time
	NewMember    func(now time.Time) string
}

// RateLimiterService implementa a avaliação de múltiplas janelas deslizantes.
type RateLimiterService struct {
	storage ports.WindowStore
	config  Config
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

// NewRateLimiterService cria uma nova instância do serviço.
func NewRateLimiterService(storage ports.WindowStore, cfg Config) (*RateLimiterService, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if len(cfg.Windows) == 0 {
		return nil, fmt.Errorf("at least one window is required")
	}

	seen := make(map[string]struct{}, len(cfg.Windows))
	for _, w := range cfg.Windows {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			return nil, fmt.Errorf("window name is required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate window %q", name)
		}
		seen[name] = struct{}{}
		if w.Window <= 0 {
			return nil, fmt.Errorf("window %q must have a positive duration", name)
		}
	}

	windows := make([]domain.WindowPolicy, len(cfg.Windows))
	copy(windows, cfg.Windows)
	sort.SliceStable(windows, func(i, j int) bool { return windows[i].Window < windows[j].Window })
	cfg.Windows = windows

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewMember == nil {
		cfg.NewMember = NewMember
	}

	return &RateLimiterService{storage: storage, config: cfg}, nil
}

// Windows returns the configured windows, shortest first.
func (s *RateLimiterService) Windows() []domain.WindowPolicy {
	out := make([]domain.WindowPolicy, len(s.config.Windows))
	copy(out, s.config.Windows)
	return out
}

// Allow avalia todas as janelas para a identidade, da menor para a maior.
// A primeira janela excedida interrompe a avaliação e retorna um *domain.RejectionError.
// Falhas do store retornam erros que envolvem domain.ErrStoreUnavailable.
func (s *RateLimiterService) Allow(ctx context.Context, identity string) (domain.Decision, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return domain.Decision{Allowed: true, Skipped: true}, nil
	}

	now := s.config.Now()
	member := s.config.NewMember(now)
	decision := domain.Decision{Identity: identity}

	for _, policy := range s.config.Windows {
		if policy.Disabled() {
			continue
		}

		key := domain.RateLimitKey(identity, policy.Name)
		result, err := s.checkWindow(ctx, domain.WindowCheck{
			Key:      key,
			Now:      now,
			Member:   member,
			MaxCount: policy.MaxCount,
			Window:   policy.Window,
		})
		if err != nil {
			s.config.Metrics.ObserveDecision(policy.Name, OutcomeError)
			s.config.Logger.Error("rate limit check failed",
				"identity", identity,
				"window", policy.Name,
				"limit", policy.MaxCount,
				"error", err,
			)
			return domain.Decision{Identity: identity}, fmt.Errorf("check %s window: %w", policy.Name, err)
		}

		decision.Results = append(decision.Results, domain.WindowResult{Policy: policy, CheckResult: result})

		if !result.Allowed {
			retryAfter := s.retryAfter(ctx, key, policy, now)
			s.config.Metrics.ObserveDecision(policy.Name, OutcomeRejected)
			s.config.Logger.Warn("rate limit exceeded",
				"identity", identity,
				"window", policy.Name,
				"count", result.CurrentCount,
				"limit", policy.MaxCount,
				"retry_after", retryAfter,
			)
			return decision, &domain.RejectionError{
				Window:     policy.Name,
				Limit:      policy.MaxCount,
				RetryAfter: retryAfter,
			}
		}

		s.config.Metrics.ObserveDecision(policy.Name, OutcomeAllowed)
		s.config.Logger.Debug("rate limit ok",
			"identity", identity,
			"window", policy.Name,
			"count", result.CurrentCount,
			"limit", policy.MaxCount,
		)
	}

	decision.Allowed = true
	return decision, nil
}

func (s *RateLimiterService) checkWindow(ctx context.Context, check domain.WindowCheck) (domain.CheckResult, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := s.storage.CheckWindow(ctx, check)
	s.config.Metrics.ObserveStoreCall("check_window", time.Since(start), err)
	return result, err
}

// retryAfter never fails: when the oldest entry cannot be read the full window is used.
func (s *RateLimiterService) retryAfter(ctx context.Context, key string, policy domain.WindowPolicy, now time.Time) time.Duration {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	start := time.Now()
	oldest, found, err := s.storage.OldestScore(ctx, key)
	s.config.Metrics.ObserveStoreCall("oldest_score", time.Since(start), err)
	if err != nil {
		s.config.Logger.Warn("failed to read oldest entry, using full window",
			"key", key,
			"error", err,
		)
		return policy.Window
	}
	if !found {
		return policy.Window
	}
	return domain.RetryAfter(oldest, policy.Window, now)
}

func (s *RateLimiterService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

// NewMember builds the entry token shared by every window check of one action.
// The random suffix keeps entries with identical timestamps distinct.
func NewMember(now time.Time) string {
	return strconv.FormatFloat(domain.Score(now), 'f', 6, 64) + ":" + uuid.NewString()
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(string, string) {}
func (noopMetrics) ObserveStoreCall(string, time.Duration, error) {}
