package auth

import (
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// ExchangeCodeStore issues the short-lived one-time codes carried on the SPA
// callback redirect. The real bearer token never rides a redirect URL; the
// SPA swaps the code at the exchange endpoint instead. Codes are single-use
// and expire quickly. This is the only shared mutable state in the process
// besides the signing keys.
type ExchangeCodeStore struct {
	mu     sync.Mutex
	grants map[string]grant
	ttl    time.Duration

	// now is overridable in tests
	now func() time.Time
}

type grant struct {
	result  *Result
	expires time.Time
}

// DefaultExchangeTTL bounds how long a one-time code stays redeemable.
const DefaultExchangeTTL = 60 * time.Second

// NewExchangeCodeStore returns a store with the given TTL (capped to the
// default when zero or negative).
func NewExchangeCodeStore(ttl time.Duration) *ExchangeCodeStore {
	if ttl <= 0 || ttl > DefaultExchangeTTL {
		ttl = DefaultExchangeTTL
	}
	return &ExchangeCodeStore{
		grants: make(map[string]grant),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue stores the result under a fresh opaque code.
func (s *ExchangeCodeStore) Issue(res *Result) string {
	code := ksuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	s.grants[code] = grant{result: res, expires: s.now().Add(s.ttl)}
	return code
}

// Redeem returns the result for a code exactly once. Unknown, expired, and
// already-redeemed codes all report false.
func (s *ExchangeCodeStore) Redeem(code string) (*Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[code]
	if !ok {
		return nil, false
	}
	delete(s.grants, code)

	if s.now().After(g.expires) {
		return nil, false
	}
	return g.result, true
}

// sweepLocked drops expired grants. Caller holds the lock.
func (s *ExchangeCodeStore) sweepLocked() {
	now := s.now()
	for code, g := range s.grants {
		if now.After(g.expires) {
			delete(s.grants, code)
		}
	}
}
