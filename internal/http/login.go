package httpx

import (
	"net/http"

	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
)

// loginHandler handles POST {loginPath}: form-encoded identifier/secret,
// verified against the credential verifier, rendered by the outcome
// handlers.
func loginHandler(verifier auth.CredentialVerifier, onSuccess SuccessHandler, onFailure FailureHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.LoginStart.Add(1)

		if err := r.ParseForm(); err != nil {
			metrics.LoginBadRequest.Add(1)
			BadRequest(w, r, "malformed form body")
			return
		}

		identifier := r.PostFormValue(FormIdentifier)
		secret := r.PostFormValue(FormSecret)
		if identifier == "" || secret == "" {
			metrics.LoginBadRequest.Add(1)
			BadRequest(w, r, "missing identifier or secret")
			return
		}

		res, failure := verifier.Verify(r.Context(), identifier, secret)
		if failure != nil {
			metrics.LoginFail.Add(1)
			onFailure.OnFailure(w, r, failure)
			return
		}

		metrics.LoginOK.Add(1)
		onSuccess.OnSuccess(w, r, res)
	}
}
