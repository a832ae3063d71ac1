package httpx

import (
	"log"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
	"github.com/mlehotskylf-org/auth-gateway/internal/config"
	"github.com/mlehotskylf-org/auth-gateway/internal/security"
)

// Options injects the pipeline collaborators. Every field can be swapped
// without touching the assembler; nil fields get the default implementation
// built from the config. Resolver nil disables the federated routes.
type Options struct {
	Verifier    auth.CredentialVerifier
	Resolver    auth.IdentityResolver
	Issuer      auth.TokenIssuer
	Codes       *auth.ExchangeCodeStore
	ReturnHosts *security.HostAllowlist
	Success     SuccessHandler
	Failure     FailureHandler
	Log         *slog.Logger
}

// NewRouter composes the security pipeline: the login endpoint dispatches to
// the credential verifier, the authorize/callback/exchange endpoints run the
// federated flow, and everything else falls through to 404. Config has been
// validated before this point.
func NewRouter(cfg config.Config, opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Issuer == nil {
		opts.Issuer = &auth.JWTIssuer{
			Secret: cfg.TokenSigningKey,
			Issuer: cfg.TokenIssuer,
			TTL:    cfg.TokenTTL,
		}
	}
	if opts.Success == nil {
		opts.Success = &TokenSuccessHandler{Issuer: opts.Issuer}
	}
	if opts.Failure == nil {
		opts.Failure = &JSONFailureHandler{Log: opts.Log}
	}
	if opts.Codes == nil {
		opts.Codes = auth.NewExchangeCodeStore(cfg.ExchangeTTL)
	}
	if opts.ReturnHosts == nil {
		allow, err := security.NewHostAllowlist(cfg.AllowedReturnHosts)
		if err != nil {
			log.Fatalf("Failed to build return host allowlist: %v", err)
		}
		opts.ReturnHosts = allow
	}
	if opts.Verifier == nil {
		log.Fatal("Options.Verifier is required")
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(configMiddleware(cfg))

	if cfg.EnableHSTS {
		r.Use(hstsMiddleware)
	}

	r.Get("/healthz", healthzHandler)
	if cfg.Env != "prod" {
		r.Get("/metrics", metricsHandler)
	}

	r.Post(cfg.LoginPath, loginHandler(opts.Verifier, opts.Success, opts.Failure))

	if opts.Resolver != nil {
		r.Get(cfg.AuthorizePath, authorizeHandler(cfg, opts.Resolver, opts.ReturnHosts))
		r.Get(cfg.CallbackPath, callbackHandler(cfg, opts.Resolver, opts.Codes, opts.Failure))
		r.Post(cfg.ExchangePath, exchangeHandler(opts.Codes, opts.Success, opts.Failure))
	}

	return r
}
