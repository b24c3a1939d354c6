// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"

	"github.com/Pulse-project-300/atu-project-300/internal/core/domain"
)

// WindowStore guarda os conjuntos ordenados das janelas deslizantes.
// CheckWindow must prune, count and conditionally insert as one indivisible unit.
type WindowStore interface {
	CheckWindow(ctx context.Context, check domain.WindowCheck) (domain.CheckResult, error)
	OldestScore(ctx context.Context, key string) (score float64, found bool, err error)
}
