// Package domain concentra entidades e estruturas centrais do rate limiter.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const keyPrefix = "ratelimit"

// WindowPolicy descreve uma janela deslizante: nome, duração e limite de requisições.
// MaxCount <= 0 desabilita a janela.
type WindowPolicy struct {
	Name     string
	Window   time.Duration
	MaxCount int
}

// Disabled informa se a janela deve ser ignorada.
func (p WindowPolicy) Disabled() bool {
	return p.MaxCount <= 0
}

// WindowCheck agrega os parâmetros de uma verificação atômica em uma única chave.
type WindowCheck struct {
	Key      string
	Now      time.Time
	Member   string
	MaxCount int
	Window   time.Duration
}

// CheckResult é o resultado autoritativo de uma verificação atômica.
type CheckResult struct {
	CurrentCount int64
	Allowed      bool
}

type WindowResult struct {
	Policy WindowPolicy
	CheckResult
}

// Remaining returns how many more actions the window admits.
func (r WindowResult) Remaining() int {
	remaining := r.Policy.MaxCount - int(r.CurrentCount)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Decision resume a avaliação de todas as janelas para uma ação.
type Decision struct {
	Allowed  bool
	Identity string
	// Skipped is set when no identity was supplied and no window was evaluated.
	Skipped bool
	Results []WindowResult
}

// Tightest returns the evaluated window with the fewest remaining slots.
func (d Decision) Tightest() (WindowResult, bool) {
	if len(d.Results) == 0 {
		return WindowResult{}, false
	}
	tightest := d.Results[0]
	for _, r := range d.Results[1:] {
		if r.Remaining() < tightest.Remaining() {
			tightest = r
		}
	}
	return tightest, true
}

// RateLimitKey deriva a chave do conjunto ordenado para uma identidade e janela.
func RateLimitKey(identity, window string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, strings.TrimSpace(identity), window)
}

// Score converts a timestamp into the fractional-second score stored with each entry.
func Score(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// RetryAfter computes how long until the oldest surviving entry leaves the window.
// The result is rounded up to whole seconds and never below one second.
func RetryAfter(oldestScore float64, window time.Duration, now time.Time) time.Duration {
	seconds := math.Ceil(oldestScore + window.Seconds() - Score(now))
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
