// Package config holds env-driven configuration for the authentication
// gateway: endpoint paths, cookie signing keys, token issuance settings, and
// the upstream identity provider registration.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
)

// Config holds all application configuration.
type Config struct {
	// Environment: dev, staging, or prod
	Env string `env:"ENV" envDefault:"dev"`

	// Application hostname, host only (e.g. auth.example.com)
	AppHostname string `env:"APP_HOSTNAME"`

	Port string `env:"PORT" envDefault:"8080"`

	// Pipeline endpoint paths
	LoginPath     string `env:"LOGIN_PATH" envDefault:"/api/auth/login"`
	AuthorizePath string `env:"AUTHORIZE_PATH" envDefault:"/api/auth/authorize"`
	CallbackPath  string `env:"CALLBACK_PATH" envDefault:"/api/auth/callback"`
	ExchangePath  string `env:"EXCHANGE_PATH" envDefault:"/api/auth/exchange"`

	// Default single-page-app callback URL for federated logins
	SPACallbackURL string `env:"SPA_CALLBACK_URL"`

	// Hosts allowed as return_to targets (supports "*.example.com")
	AllowedReturnHosts []string `env:"ALLOWED_RETURN_HOSTS" envSeparator:","`

	// Transaction cookie settings
	CookieDomain                 string        `env:"COOKIE_DOMAIN"`
	CookieSigningKeyRaw          string        `env:"COOKIE_SIGNING_KEY"`
	SecondaryCookieSigningKeyRaw string        `env:"SECONDARY_COOKIE_SIGNING_KEY"`
	TxnTTL                       time.Duration `env:"TXN_TTL" envDefault:"5m"`
	TxnSkew                      time.Duration `env:"TXN_SKEW" envDefault:"30s"`

	// Decoded signing keys (filled by FromEnv)
	CookieSigningKey          []byte `env:"-"`
	SecondaryCookieSigningKey []byte `env:"-"`

	// Bearer token issuance
	TokenSigningKeyRaw string        `env:"TOKEN_SIGNING_KEY"`
	TokenSigningKey    []byte        `env:"-"`
	TokenIssuer        string        `env:"TOKEN_ISSUER" envDefault:"auth-gateway"`
	TokenTTL           time.Duration `env:"TOKEN_TTL" envDefault:"1h"`

	// One-time exchange code lifetime
	ExchangeTTL time.Duration `env:"EXCHANGE_CODE_TTL" envDefault:"60s"`

	// Upstream identity provider. Federated login is disabled when the
	// issuer is empty.
	OAuth2ProviderName  string        `env:"OAUTH2_PROVIDER_NAME" envDefault:"oidc"`
	OAuth2Issuer        string        `env:"OAUTH2_ISSUER"`
	OAuth2ClientID      string        `env:"OAUTH2_CLIENT_ID"`
	OAuth2ClientSecret  string        `env:"OAUTH2_CLIENT_SECRET"`
	OAuth2Scopes        []string      `env:"OAUTH2_SCOPES" envSeparator:"," envDefault:"openid,profile,email"`
	OAuth2Timeout       time.Duration `env:"OAUTH2_TIMEOUT" envDefault:"8s"`
	OAuth2AutoProvision bool          `env:"OAUTH2_AUTO_PROVISION" envDefault:"true"`
	OAuth2LinkByEmail   bool          `env:"OAUTH2_LINK_BY_EMAIL" envDefault:"false"`

	// Seed users for the in-memory store, JSON array. Dev/staging only.
	BootstrapUsersJSON string `env:"BOOTSTRAP_USERS"`

	// Log level: debug, info, warn, error
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// EnableHSTS defaults to true in prod
	EnableHSTS bool `env:"ENABLE_HSTS"`
}

// BootstrapUser seeds one local credentialed user.
type BootstrapUser struct {
	Identifier  string `json:"identifier"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
}

// FromEnv reads configuration from environment variables.
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	// HSTS defaults on in prod unless explicitly set
	if os.Getenv("ENABLE_HSTS") == "" {
		cfg.EnableHSTS = cfg.Env == "prod"
	}

	if cfg.AppHostname != "" {
		normalized, err := normalizeHostname(cfg.AppHostname)
		if err != nil {
			return cfg, fmt.Errorf("invalid APP_HOSTNAME: %w", err)
		}
		cfg.AppHostname = normalized
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.CookieSigningKeyRaw != "" {
		cfg.CookieSigningKey, err = decodeKey(cfg.CookieSigningKeyRaw)
		if err != nil {
			return cfg, fmt.Errorf("invalid COOKIE_SIGNING_KEY: %w", err)
		}
	}
	if cfg.SecondaryCookieSigningKeyRaw != "" {
		cfg.SecondaryCookieSigningKey, err = decodeKey(cfg.SecondaryCookieSigningKeyRaw)
		if err != nil {
			return cfg, fmt.Errorf("invalid SECONDARY_COOKIE_SIGNING_KEY: %w", err)
		}
	}
	if cfg.TokenSigningKeyRaw != "" {
		cfg.TokenSigningKey, err = decodeKey(cfg.TokenSigningKeyRaw)
		if err != nil {
			return cfg, fmt.Errorf("invalid TOKEN_SIGNING_KEY: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks that required fields are set and enforces prod constraints.
func (c *Config) Validate() error {
	if c.AppHostname == "" {
		return fmt.Errorf("APP_HOSTNAME is required (set to your domain, e.g. auth.example.com)")
	}

	if c.Port == "" {
		return fmt.Errorf("PORT is required (set to a port number 1-65535, e.g. 8080)")
	}
	if port, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be a valid number 1-65535 (got %q)", c.Port)
	} else if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be 1-65535 (got %q)", c.Port)
	}

	for name, path := range map[string]string{
		"LOGIN_PATH":     c.LoginPath,
		"AUTHORIZE_PATH": c.AuthorizePath,
		"CALLBACK_PATH":  c.CallbackPath,
		"EXCHANGE_PATH":  c.ExchangePath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with '/' (got %q)", name, path)
		}
	}

	if len(c.CookieSigningKey) == 0 {
		return fmt.Errorf("COOKIE_SIGNING_KEY is required (generate a 32+ byte hex string)")
	}
	if len(c.CookieSigningKey) < 32 {
		return fmt.Errorf("COOKIE_SIGNING_KEY must be at least 32 bytes (got %d bytes)", len(c.CookieSigningKey))
	}
	if len(c.SecondaryCookieSigningKey) > 0 && len(c.SecondaryCookieSigningKey) < 32 {
		return fmt.Errorf("SECONDARY_COOKIE_SIGNING_KEY must be at least 32 bytes (got %d bytes)", len(c.SecondaryCookieSigningKey))
	}

	if len(c.TokenSigningKey) == 0 {
		return fmt.Errorf("TOKEN_SIGNING_KEY is required (generate a 32+ byte hex string)")
	}
	if len(c.TokenSigningKey) < 32 {
		return fmt.Errorf("TOKEN_SIGNING_KEY must be at least 32 bytes (got %d bytes)", len(c.TokenSigningKey))
	}

	if c.TxnTTL <= 0 || c.TxnTTL > auth.MaxTxnTTL {
		return fmt.Errorf("TXN_TTL must be within (0, %v] (got %v)", auth.MaxTxnTTL, c.TxnTTL)
	}
	if c.TxnSkew < 0 || c.TxnSkew > 2*time.Minute {
		return fmt.Errorf("TXN_SKEW must be within [0, 2m] (got %v)", c.TxnSkew)
	}

	switch c.Env {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("ENV must be 'dev', 'staging', or 'prod' (got %q)", c.Env)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be 'debug', 'info', 'warn', or 'error' (got %q)", c.LogLevel)
	}

	if c.FederatedEnabled() {
		if c.OAuth2ClientID == "" {
			return fmt.Errorf("OAUTH2_CLIENT_ID is required when OAUTH2_ISSUER is set")
		}
		if c.SPACallbackURL == "" {
			return fmt.Errorf("SPA_CALLBACK_URL is required when OAUTH2_ISSUER is set")
		}
		if !strings.HasPrefix(c.SPACallbackURL, "https://") &&
			!(c.Env == "dev" && strings.HasPrefix(c.SPACallbackURL, "http://")) {
			return fmt.Errorf("SPA_CALLBACK_URL must be an absolute https URL (got %q)", c.SPACallbackURL)
		}
	}

	if c.Env == "prod" && c.BootstrapUsersJSON != "" {
		return fmt.Errorf("in prod, BOOTSTRAP_USERS must be unset (provision a real user store instead)")
	}

	if _, err := c.BootstrapUsers(); err != nil {
		return err
	}

	return nil
}

// FederatedEnabled reports whether an upstream provider is configured.
func (c Config) FederatedEnabled() bool {
	return c.OAuth2Issuer != ""
}

// BootstrapUsers parses the BOOTSTRAP_USERS JSON.
func (c Config) BootstrapUsers() ([]BootstrapUser, error) {
	if c.BootstrapUsersJSON == "" {
		return nil, nil
	}
	var users []BootstrapUser
	if err := json.Unmarshal([]byte(c.BootstrapUsersJSON), &users); err != nil {
		return nil, fmt.Errorf("invalid BOOTSTRAP_USERS: %w", err)
	}
	for _, u := range users {
		if u.Identifier == "" || u.Password == "" {
			return nil, fmt.Errorf("BOOTSTRAP_USERS entries need identifier and password")
		}
	}
	return users, nil
}

// TxnCookieOpts returns the transaction cookie options.
func (c Config) TxnCookieOpts() auth.TxnOpts {
	return auth.TxnOpts{
		Domain:       c.CookieDomain,
		TTL:          c.TxnTTL,
		Skew:         c.TxnSkew,
		Secure:       c.Env == "prod",
		SigningKey:   c.CookieSigningKey,
		SecondaryKey: c.SecondaryCookieSigningKey,
	}
}

// RedirectURI is the callback URL registered with the provider. It must be
// byte-identical between the authorize redirect and the token exchange.
func (c Config) RedirectURI() string {
	if c.Env == "dev" && IsLocalhost(c.AppHostname) {
		return "http://" + c.AppHostname + ":" + c.Port + c.CallbackPath
	}
	return "https://" + c.AppHostname + c.CallbackPath
}

// ProviderConfig maps the OAuth2 settings onto the resolver configuration.
func (c Config) ProviderConfig() auth.ProviderConfig {
	return auth.ProviderConfig{
		Name:          c.OAuth2ProviderName,
		Issuer:        c.OAuth2Issuer,
		ClientID:      c.OAuth2ClientID,
		ClientSecret:  c.OAuth2ClientSecret,
		RedirectURI:   c.RedirectURI(),
		Scopes:        c.OAuth2Scopes,
		AutoProvision: c.OAuth2AutoProvision,
		LinkByEmail:   c.OAuth2LinkByEmail,
		Timeout:       c.OAuth2Timeout,
	}
}

// decodeKey decodes a key from hex or base64 encoding.
func decodeKey(key string) ([]byte, error) {
	if decoded, err := hex.DecodeString(key); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(key); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(key); err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("key must be valid hex or base64")
}

// normalizeHostname ensures a hostname is host-only (no scheme or port).
func normalizeHostname(hostname string) (string, error) {
	if strings.Contains(hostname, "://") {
		return "", fmt.Errorf("hostname must not contain scheme: %s", hostname)
	}
	if strings.Contains(hostname, ":") {
		return "", fmt.Errorf("hostname must not contain port: %s", hostname)
	}
	return strings.ToLower(strings.TrimSpace(hostname)), nil
}
