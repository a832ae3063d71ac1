package httpx

import (
	"log/slog"
	"net/http"

	"github.com/mlehotskylf-org/auth-gateway/internal/auth"
)

// SuccessHandler renders a successful authentication. The default issues a
// bearer token and writes it in the response body with a user summary; the
// token never travels in a 3xx Location header.
type SuccessHandler interface {
	OnSuccess(w http.ResponseWriter, r *http.Request, res *auth.Result)
}

// FailureHandler renders a terminal authentication failure as a structured
// status, never an HTML redirect.
type FailureHandler interface {
	OnFailure(w http.ResponseWriter, r *http.Request, f *auth.Failure)
}

// userSummary is the serialized user in success responses.
type userSummary struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
}

type successBody struct {
	Token string      `json:"token"`
	User  userSummary `json:"user"`
}

// TokenSuccessHandler is the default SuccessHandler: mint a bearer token and
// return 200 with token + user summary.
type TokenSuccessHandler struct {
	Issuer auth.TokenIssuer
}

func (h *TokenSuccessHandler) OnSuccess(w http.ResponseWriter, r *http.Request, res *auth.Result) {
	token, err := h.Issuer.Issue(r.Context(), res)
	if err != nil {
		slog.Error("token issuance failed", "principal", res.PrincipalID, "error", err)
		ServerError(w, r)
		return
	}
	res.Token = token

	noStore(w)
	writeJSON(w, http.StatusOK, successBody{
		Token: token,
		User: userSummary{
			Identifier: res.Display[auth.DisplayIdentifier],
			Name:       res.Display[auth.DisplayName],
			Email:      res.Display[auth.DisplayEmail],
		},
	})
}

// JSONFailureHandler is the default FailureHandler: 401 with reason and a
// display-safe message.
type JSONFailureHandler struct {
	Log *slog.Logger
}

func (h *JSONFailureHandler) OnFailure(w http.ResponseWriter, r *http.Request, f *auth.Failure) {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}
	// Full reason and detail stay in the audit log only.
	log.Info("authentication failed", "path", r.URL.Path, "reason", f.Reason, "detail", f.Message)

	reason, message := externalFailure(f)
	noStore(w)
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{Reason: reason, Message: message})
}

// externalFailure maps internal failures to the client-visible body. Expired
// is reported as InvalidState so a CSRF attempt and a stale tab are
// indistinguishable; AccountDisabled shares the BadCredentials message so
// account state cannot be probed through the message text.
func externalFailure(f *auth.Failure) (string, string) {
	switch f.Reason {
	case auth.ReasonInvalidState, auth.ReasonExpired:
		return string(auth.ReasonInvalidState), "Your login attempt expired. Please try again."
	case auth.ReasonProviderError:
		return string(auth.ReasonProviderError), "The identity provider could not complete the login. Please try again."
	case auth.ReasonAccountDisabled:
		return string(auth.ReasonAccountDisabled), "Invalid credentials."
	default:
		return string(auth.ReasonBadCredentials), "Invalid credentials."
	}
}
