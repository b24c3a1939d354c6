package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether the rate limit store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Store   string `json:"store"`
}

// NewHealthHandler responde 200 enquanto o serviço estiver de pé.
// Store reachability is reported but never fails the check, since the limiter may run fail-open.
func NewHealthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Service: "ai-orchestrator", Store: "disabled"}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()

			resp.Store = "ok"
			if err := store.Ping(ctx); err != nil {
				resp.Store = "unavailable"
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
