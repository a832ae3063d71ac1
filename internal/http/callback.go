package httpx

import (
	"net/http"
	"net/url"
	"time"

	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
	"github.com/mlehotskylf-org/auth-gateway/internal/config"
)

// callbackHandler handles GET {callbackPath}: it consumes the transaction
// cookie (single-use), verifies the state token, completes the code exchange
// through the resolver, and redirects to the SPA callback with a one-time
// exchange code. The bearer token itself never appears in a redirect URL.
func callbackHandler(cfg config.Config, resolver auth.IdentityResolver, codes *auth.ExchangeCodeStore, onFailure FailureHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.CbStart.Add(1)

		q := r.URL.Query()
		code := q.Get("code")
		state := q.Get("state")

		if errParam := q.Get("error"); errParam != "" {
			metrics.CbResolveFail.Add(1)
			onFailure.OnFailure(w, r, auth.NewFailure(auth.ReasonProviderError, "provider returned error: %s", errParam))
			return
		}

		if code == "" || state == "" {
			metrics.CbStateMismatch.Add(1)
			onFailure.OnFailure(w, r, auth.NewFailure(auth.ReasonInvalidState, "missing code or state parameter"))
			return
		}

		// Consume before resolving: the record must be gone even if the
		// exchange fails, so a replayed callback finds nothing.
		txn, failure := auth.ConsumeTxn(w, r, state, cfg.TxnCookieOpts(), time.Now())
		if failure != nil {
			metrics.CbStateMismatch.Add(1)
			onFailure.OnFailure(w, r, failure)
			return
		}

		res, failure := resolver.Resolve(r.Context(), code, txn.CV, txn.Nonce)
		if failure != nil {
			metrics.CbResolveFail.Add(1)
			onFailure.OnFailure(w, r, failure)
			return
		}

		returnTo := txn.ReturnTo
		if returnTo == "" {
			returnTo = cfg.SPACallbackURL
		}
		target, err := url.Parse(returnTo)
		if err != nil {
			ServerError(w, r)
			return
		}

		oneTime := codes.Issue(res)
		cq := target.Query()
		cq.Set("code", oneTime)
		target.RawQuery = cq.Encode()

		metrics.CbOK.Add(1)
		noStore(w)
		http.Redirect(w, r, target.String(), http.StatusFound)
	}
}
