// Package middleware disponibiliza middlewares HTTP específicos da aplicação.
package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Pulse-project-300/atu-project-300/internal/core/domain"
	"github.com/Pulse-project-300/atu-project-300/internal/core/ports"
)

const maxBodyBytes = 1 << 20

type Options struct {
	// FailOpen lets the request through when the limiter cannot reach its store.
	FailOpen bool
	Logger   *slog.Logger
}

type rejectionBody struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Window            string `json:"window"`
	Limit             int    `json:"limit"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewRateLimiterMiddleware aplica o limiter usando o userId do corpo JSON como identidade.
// Requests without a userId are not limited.
func NewRateLimiterMiddleware(limiter ports.RateLimiter, opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := extractIdentity(r)
			if err != nil {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
					Error:   "request_too_large",
					Message: err.Error(),
				})
				return
			}

			decision, err := limiter.Allow(r.Context(), identity)
			if err != nil {
				if rejection, ok := domain.AsRejection(err); ok {
					writeTooManyRequests(w, rejection)
					return
				}

				if opts.FailOpen {
					logger.Error("rate limiter unavailable, allowing request",
						"identity", identity,
						"path", r.URL.Path,
						"error", err,
					)
					next.ServeHTTP(w, r)
					return
				}

				logger.Error("rate limiter unavailable, rejecting request",
					"identity", identity,
					"path", r.URL.Path,
					"error", err,
				)
				writeJSON(w, http.StatusServiceUnavailable, errorBody{
					Error:   "rate_limiter_unavailable",
					Message: "rate limiting is temporarily unavailable, try again later",
				})
				return
			}

			writeRateLimitHeaders(w, decision)
			next.ServeHTTP(w, r)
		})
	}
}

// extractIdentity reads userId from a JSON body and restores the body for the next handler.
// Bodies that are not JSON objects yield an empty identity.
func extractIdentity(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	_ = r.Body.Close()
	if err != nil {
		r.Body = io.NopCloser(bytes.NewReader(raw))
		return "", nil
	}
	if len(raw) > maxBodyBytes {
		return "", fmt.Errorf("request body must not exceed %d bytes", maxBodyBytes)
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var payload struct {
		UserID any `json:"userId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", nil
	}

	switch v := payload.UserID.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", nil
	}
}

func writeRateLimitHeaders(w http.ResponseWriter, decision domain.Decision) {
	tightest, ok := decision.Tightest()
	if !ok {
		return
	}
	w.Header().Set("RateLimit-Limit", strconv.Itoa(tightest.Policy.MaxCount))
	w.Header().Set("RateLimit-Remaining", strconv.Itoa(tightest.Remaining()))
}

func writeTooManyRequests(w http.ResponseWriter, rejection *domain.RejectionError) {
	retryAfter := rejection.RetryAfterSeconds()
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, rejectionBody{
		Error: "rate_limit_exceeded",
		Message: fmt.Sprintf("Too many requests. You have exceeded the %s limit of %d requests.",
			rejection.Window, rejection.Limit),
		Window:            rejection.Window,
		Limit:             rejection.Limit,
		RetryAfterSeconds: retryAfter,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
