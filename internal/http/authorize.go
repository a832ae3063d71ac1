package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
	"github.com/mlehotskylf-org/auth-gateway/internal/config"
	"github.com/mlehotskylf-org/auth-gateway/internal/security"
	"golang.org/x/oauth2"
)

// authorizeHandler handles GET {authorizePath}: it opens a federated login
// by generating the state/nonce/PKCE material, persisting the authorization
// request in the signed transaction cookie, and redirecting to the provider.
func authorizeHandler(cfg config.Config, resolver auth.IdentityResolver, returnHosts *security.HostAllowlist) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.AuthzStart.Add(1)

		// Optional return_to overrides the default SPA callback URL.
		returnTo := cfg.SPACallbackURL
		if raw := r.URL.Query().Get("return_to"); raw != "" {
			sanitized, err := returnHosts.SanitizeReturnURL(raw)
			if err != nil {
				metrics.AuthzBadReturn.Add(1)
				BadRequest(w, r, "invalid return_to: "+err.Error())
				return
			}
			returnTo = sanitized
		}

		state, err := security.RandomToken(32)
		if err != nil {
			ServerError(w, r)
			return
		}
		nonce, err := security.RandomToken(32)
		if err != nil {
			ServerError(w, r)
			return
		}
		verifier := oauth2.GenerateVerifier()

		_, err = auth.SetTxnCookie(w, auth.TxnPayloadV1{
			State:    state,
			Nonce:    nonce,
			CV:       verifier,
			ReturnTo: returnTo,
		}, cfg.TxnCookieOpts(), time.Now())
		if err != nil {
			metrics.AuthzCookieFail.Add(1)
			slog.Error("failed to set transaction cookie", "error", err)
			ServerError(w, r)
			return
		}

		authorizeURL, err := resolver.AuthorizeURL(state, nonce, oauth2.S256ChallengeFromVerifier(verifier))
		if err != nil {
			slog.Error("failed to build authorize URL", "error", err)
			ServerError(w, r)
			return
		}

		metrics.AuthzOK.Add(1)
		noStore(w)
		http.Redirect(w, r, authorizeURL, http.StatusFound)
	}
}
