// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"

	"github.com/Pulse-project-300/atu-project-300/internal/core/domain"
)

type RateLimiter interface {
	Allow(ctx context.Context, identity string) (domain.Decision, error)
}

// Metrics recebe eventos do rate limiter para observabilidade.
type Metrics interface {
	ObserveDecision(window, outcome string)
	ObserveStoreCall(operation string, elapsed time.Duration, err error)
}
