package httpx

import (
	"context"
	"net/http"

	"github.com/mlehotskylf-org/auth-gateway/internal/config"
)

// contextKey is the private type for request-context values.
type contextKey string

// ConfigContextKey stores the validated config in the request context.
const ConfigContextKey contextKey = "config"

// configMiddleware adds the config to the request context.
func configMiddleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ConfigContextKey, cfg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetConfigFromContext retrieves the config from the request context.
func GetConfigFromContext(ctx context.Context) (config.Config, bool) {
	cfg, ok := ctx.Value(ConfigContextKey).(config.Config)
	return cfg, ok
}

// hstsMiddleware adds the Strict-Transport-Security header.
func hstsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
