package httpx

import (
	"net/http"

	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
)

// exchangeHandler handles POST {exchangePath}: the SPA swaps the one-time
// code from the callback redirect for the real bearer token. Codes are
// single-use; unknown, replayed, and expired codes all share one generic
// failure.
func exchangeHandler(codes *auth.ExchangeCodeStore, onSuccess SuccessHandler, onFailure FailureHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.ExchStart.Add(1)

		if err := r.ParseForm(); err != nil {
			metrics.ExchFail.Add(1)
			BadRequest(w, r, "malformed form body")
			return
		}

		code := r.PostFormValue(FormCode)
		if code == "" {
			metrics.ExchFail.Add(1)
			BadRequest(w, r, "missing code")
			return
		}

		res, ok := codes.Redeem(code)
		if !ok {
			metrics.ExchFail.Add(1)
			onFailure.OnFailure(w, r, auth.NewFailure(auth.ReasonExpired, "unknown, expired, or replayed exchange code"))
			return
		}

		metrics.ExchOK.Add(1)
		onSuccess.OnSuccess(w, r, res)
	}
}
