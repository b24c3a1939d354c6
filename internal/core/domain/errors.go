package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrNotInitialized   = errors.New("store connection not initialized")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// RejectionError sinaliza que uma janela foi excedida. Não representa falha de infraestrutura.
type RejectionError struct {
	Window     string
	Limit      int
	RetryAfter time.Duration
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s limit of %d requests exceeded, retry after %ds", e.Window, e.Limit, e.RetryAfterSeconds())
}

func (e *RejectionError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds returns the retry delay in whole seconds, at least 1.
func (e *RejectionError) RetryAfterSeconds() int {
	seconds := int(math.Ceil(e.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func IsRateLimitedError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// AsRejection extracts the rejection details from err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrNotInitialized)
}
