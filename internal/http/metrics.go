package httpx

import (
	"net/http"
	"sync/atomic"
)

// Metrics holds atomic counters for the authentication flows. Lightweight
// in-memory counters, read through /metrics in non-prod environments.
type Metrics struct {
	LoginStart      atomic.Uint64
	LoginBadRequest atomic.Uint64
	LoginFail       atomic.Uint64
	LoginOK         atomic.Uint64

	AuthzStart      atomic.Uint64
	AuthzBadReturn  atomic.Uint64
	AuthzCookieFail atomic.Uint64
	AuthzOK         atomic.Uint64

	CbStart         atomic.Uint64
	CbStateMismatch atomic.Uint64
	CbResolveFail   atomic.Uint64
	CbOK            atomic.Uint64

	ExchStart atomic.Uint64
	ExchFail  atomic.Uint64
	ExchOK    atomic.Uint64
}

var metrics = &Metrics{}

// MetricsSnapshot is a point-in-time view of all counters.
type MetricsSnapshot struct {
	Login     LoginMetrics     `json:"login"`
	Authorize AuthorizeMetrics `json:"authorize"`
	Callback  CallbackMetrics  `json:"callback"`
	Exchange  ExchangeMetrics  `json:"exchange"`
}

type LoginMetrics struct {
	Start      uint64 `json:"start"`
	BadRequest uint64 `json:"bad_request"`
	Fail       uint64 `json:"fail"`
	OK         uint64 `json:"ok"`
}

type AuthorizeMetrics struct {
	Start      uint64 `json:"start"`
	BadReturn  uint64 `json:"bad_return"`
	CookieFail uint64 `json:"cookie_fail"`
	OK         uint64 `json:"ok"`
}

type CallbackMetrics struct {
	Start         uint64 `json:"start"`
	StateMismatch uint64 `json:"state_mismatch"`
	ResolveFail   uint64 `json:"resolve_fail"`
	OK            uint64 `json:"ok"`
}

type ExchangeMetrics struct {
	Start uint64 `json:"start"`
	Fail  uint64 `json:"fail"`
	OK    uint64 `json:"ok"`
}

// Snapshot returns a consistent view of all counters at this moment.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Login: LoginMetrics{
			Start:      m.LoginStart.Load(),
			BadRequest: m.LoginBadRequest.Load(),
			Fail:       m.LoginFail.Load(),
			OK:         m.LoginOK.Load(),
		},
		Authorize: AuthorizeMetrics{
			Start:      m.AuthzStart.Load(),
			BadReturn:  m.AuthzBadReturn.Load(),
			CookieFail: m.AuthzCookieFail.Load(),
			OK:         m.AuthzOK.Load(),
		},
		Callback: CallbackMetrics{
			Start:         m.CbStart.Load(),
			StateMismatch: m.CbStateMismatch.Load(),
			ResolveFail:   m.CbResolveFail.Load(),
			OK:            m.CbOK.Load(),
		},
		Exchange: ExchangeMetrics{
			Start: m.ExchStart.Load(),
			Fail:  m.ExchFail.Load(),
			OK:    m.ExchOK.Load(),
		},
	}
}

// metricsHandler serves counters as JSON, non-prod only.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	cfg, ok := GetConfigFromContext(r.Context())
	if !ok {
		ServerError(w, r)
		return
	}
	if cfg.Env == "prod" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, metrics.Snapshot())
}
