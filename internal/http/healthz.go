package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
)

// HealthStatus is the health check response.
type HealthStatus struct {
	Status string            `json:"status"`           // "ok" or "degraded"
	Checks map[string]string `json:"checks,omitempty"` // only for deep checks
}

// healthzHandler handles liveness checks. `?check=deep` additionally
// validates configuration and provider reachability.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("check") == "deep" {
		deepHealthCheck(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func deepHealthCheck(w http.ResponseWriter, r *http.Request) {
	cfg, ok := GetConfigFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, HealthStatus{
			Status: "degraded",
			Checks: map[string]string{"config": "unavailable"},
		})
		return
	}

	checks := make(map[string]string)
	healthy := true

	if err := cfg.Validate(); err != nil {
		checks["config"] = "invalid: " + err.Error()
		healthy = false
		slog.Warn("health check failed", "check", "config", "error", err)
	} else {
		checks["config"] = "ok"
	}

	if cfg.FederatedEnabled() {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := auth.DiscoverProvider(ctx, nil, cfg.OAuth2Issuer); err != nil {
			checks["provider"] = "unreachable: " + err.Error()
			healthy = false
			slog.Warn("health check failed", "check", "provider", "error", err)
		} else {
			checks["provider"] = "ok"
		}
	}

	status := HealthStatus{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !healthy {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
