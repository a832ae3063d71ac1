package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
	"github.com/mlehotskylf-org/auth-gateway/internal/config"
	httpx "github.com/mlehotskylf-org/auth-gateway/internal/http"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	// Optional .env for local development; real deployments use the process
	// environment.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store := auth.NewMemoryUserStore()
	if err := seedUsers(store, cfg); err != nil {
		log.Error("failed to seed users", "error", err)
		os.Exit(1)
	}

	verifier, err := auth.NewVerifier(store, auth.BcryptHasher{}, log)
	if err != nil {
		log.Error("failed to build verifier", "error", err)
		os.Exit(1)
	}

	opts := httpx.Options{Verifier: verifier, Log: log}

	if cfg.FederatedEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		resolver, err := auth.NewResolver(ctx, cfg.ProviderConfig(), store, log)
		cancel()
		if err != nil {
			log.Error("failed to build identity resolver", "error", err)
			os.Exit(1)
		}
		opts.Resolver = resolver
	}

	router := httpx.NewRouter(cfg, opts)

	addr := ":" + cfg.Port
	log.Info("starting server", "port", cfg.Port, "env", cfg.Env, "federated", cfg.FederatedEnabled())
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// seedUsers loads the bootstrap users into the in-memory store, hashing
// their passwords with the same strategy the verifier uses.
func seedUsers(store *auth.MemoryUserStore, cfg config.Config) error {
	users, err := cfg.BootstrapUsers()
	if err != nil {
		return err
	}

	hasher := auth.BcryptHasher{}
	for _, u := range users {
		hash, err := hasher.Hash(u.Password)
		if err != nil {
			return err
		}
		if err := store.Create(context.Background(), &auth.User{
			Identifier:   u.Identifier,
			PasswordHash: hash,
			DisplayName:  u.DisplayName,
			Email:        u.Email,
			Disabled:     u.Disabled,
		}); err != nil {
			return err
		}
	}
	return nil
}
