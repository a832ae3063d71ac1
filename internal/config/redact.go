package config

import "fmt"

// Redacted returns a map suitable for logging/json with secrets replaced.
func (c Config) Redacted() map[string]any {
	redacted := make(map[string]any)

	redacted["env"] = c.Env
	redacted["app_hostname"] = c.AppHostname
	redacted["port"] = c.Port
	redacted["login_path"] = c.LoginPath
	redacted["authorize_path"] = c.AuthorizePath
	redacted["callback_path"] = c.CallbackPath
	redacted["exchange_path"] = c.ExchangePath
	redacted["spa_callback_url"] = c.SPACallbackURL
	redacted["allowed_return_hosts"] = c.AllowedReturnHosts
	redacted["cookie_domain"] = c.CookieDomain
	redacted["txn_ttl"] = c.TxnTTL.String()
	redacted["txn_skew"] = c.TxnSkew.String()
	redacted["token_issuer"] = c.TokenIssuer
	redacted["token_ttl"] = c.TokenTTL.String()
	redacted["exchange_code_ttl"] = c.ExchangeTTL.String()
	redacted["oauth2_provider_name"] = c.OAuth2ProviderName
	redacted["oauth2_issuer"] = c.OAuth2Issuer
	redacted["oauth2_client_id"] = c.OAuth2ClientID
	redacted["oauth2_scopes"] = c.OAuth2Scopes
	redacted["oauth2_auto_provision"] = c.OAuth2AutoProvision
	redacted["oauth2_link_by_email"] = c.OAuth2LinkByEmail
	redacted["log_level"] = c.LogLevel
	redacted["enable_hsts"] = c.EnableHSTS

	if c.OAuth2ClientSecret != "" {
		redacted["oauth2_client_secret"] = "***"
	}
	if len(c.CookieSigningKey) > 0 {
		redacted["cookie_signing_key"] = fmt.Sprintf("*** (%d bytes)", len(c.CookieSigningKey))
	}
	if len(c.SecondaryCookieSigningKey) > 0 {
		redacted["secondary_cookie_signing_key"] = fmt.Sprintf("*** (%d bytes)", len(c.SecondaryCookieSigningKey))
	}
	if len(c.TokenSigningKey) > 0 {
		redacted["token_signing_key"] = fmt.Sprintf("*** (%d bytes)", len(c.TokenSigningKey))
	}
	if c.BootstrapUsersJSON != "" {
		redacted["bootstrap_users"] = "***"
	}

	return redacted
}
