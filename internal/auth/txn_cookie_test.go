package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var (
	testTxnKey       = []byte("test-signing-key-32-bytes-long!!")
	testTxnSecondary = []byte("secondary-key-32-bytes-long!!!!!")
	// 43 characters, valid base64url
	testCV = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

func validTxnPayload(now time.Time) TxnPayloadV1 {
	return TxnPayloadV1{
		V:        TxnV1,
		State:    "c3RhdGUtdG9rZW4",
		Nonce:    "bm9uY2UtdG9rZW4",
		CV:       testCV,
		ReturnTo: "https://app.example.com/welcome",
		Iat:      now.Unix(),
		Exp:      now.Add(2 * time.Minute).Unix(),
	}
}

func TestEncodeDecodeTxnV1RoundTrip(t *testing.T) {
	now := time.Now()
	p := validTxnPayload(now)

	encoded, err := EncodeTxnV1(p, testTxnKey)
	if err != nil {
		t.Fatalf("EncodeTxnV1 failed: %v", err)
	}
	if !strings.Contains(encoded, ".") {
		t.Fatalf("encoded value missing payload.signature separator: %q", encoded)
	}

	got, err := DecodeTxnV1(encoded, testTxnKey, nil, now, 30*time.Second)
	if err != nil {
		t.Fatalf("DecodeTxnV1 failed: %v", err)
	}

	if got.State != p.State {
		t.Errorf("State = %q, want %q", got.State, p.State)
	}
	if got.Nonce != p.Nonce {
		t.Errorf("Nonce = %q, want %q", got.Nonce, p.Nonce)
	}
	if got.CV != p.CV {
		t.Errorf("CV = %q, want %q", got.CV, p.CV)
	}
	if got.ReturnTo != p.ReturnTo {
		t.Errorf("ReturnTo = %q, want %q", got.ReturnTo, p.ReturnTo)
	}
}

func TestEncodeTxnV1Validation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*TxnPayloadV1)
		key    []byte
	}{
		{"empty key", func(p *TxnPayloadV1) {}, nil},
		{"wrong version", func(p *TxnPayloadV1) { p.V = "v2" }, testTxnKey},
		{"missing state", func(p *TxnPayloadV1) { p.State = "" }, testTxnKey},
		{"missing nonce", func(p *TxnPayloadV1) { p.Nonce = "" }, testTxnKey},
		{"missing cv", func(p *TxnPayloadV1) { p.CV = "" }, testTxnKey},
		{"state not base64url", func(p *TxnPayloadV1) { p.State = "has spaces!" }, testTxnKey},
		{"exp before iat", func(p *TxnPayloadV1) { p.Exp = p.Iat - 10 }, testTxnKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validTxnPayload(now)
			tt.mutate(&p)
			if _, err := EncodeTxnV1(p, tt.key); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecodeTxnV1TamperedSignature(t *testing.T) {
	now := time.Now()
	encoded, err := EncodeTxnV1(validTxnPayload(now), testTxnKey)
	if err != nil {
		t.Fatalf("EncodeTxnV1 failed: %v", err)
	}

	// Flip one byte of the payload half; the signature no longer matches.
	tampered := []byte(encoded)
	if tampered[5] == 'A' {
		tampered[5] = 'B'
	} else {
		tampered[5] = 'A'
	}

	if _, err := DecodeTxnV1(string(tampered), testTxnKey, nil, now, 0); err == nil {
		t.Error("expected signature error for tampered cookie, got nil")
	}
}

func TestDecodeTxnV1WrongKey(t *testing.T) {
	now := time.Now()
	encoded, err := EncodeTxnV1(validTxnPayload(now), testTxnKey)
	if err != nil {
		t.Fatalf("EncodeTxnV1 failed: %v", err)
	}

	wrongKey := []byte("a-completely-different-32b-key!!")
	if _, err := DecodeTxnV1(encoded, wrongKey, nil, now, 0); err == nil {
		t.Error("expected signature error with wrong key, got nil")
	}
}

func TestDecodeTxnV1SecondaryKey(t *testing.T) {
	now := time.Now()
	encoded, err := EncodeTxnV1(validTxnPayload(now), testTxnSecondary)
	if err != nil {
		t.Fatalf("EncodeTxnV1 failed: %v", err)
	}

	// Signed with what is now the secondary key; decode must still accept it.
	got, err := DecodeTxnV1(encoded, testTxnKey, testTxnSecondary, now, 0)
	if err != nil {
		t.Fatalf("DecodeTxnV1 with secondary key failed: %v", err)
	}
	if got.CV != testCV {
		t.Errorf("CV = %q, want %q", got.CV, testCV)
	}
}

func TestDecodeTxnV1Expired(t *testing.T) {
	now := time.Now()
	encoded, err := EncodeTxnV1(validTxnPayload(now), testTxnKey)
	if err != nil {
		t.Fatalf("EncodeTxnV1 failed: %v", err)
	}

	// Well past expiry even with skew.
	later := now.Add(10 * time.Minute)
	_, err = DecodeTxnV1(encoded, testTxnKey, nil, later, 30*time.Second)
	if err == nil {
		t.Fatal("expected expiry error, got nil")
	}
	if !errors.Is(err, ErrTxnExpired) {
		t.Errorf("expected ErrTxnExpired, got %v", err)
	}
}

func TestDecodeTxnV1SkewTolerance(t *testing.T) {
	now := time.Now()
	encoded, err := EncodeTxnV1(validTxnPayload(now), testTxnKey)
	if err != nil {
		t.Fatalf("EncodeTxnV1 failed: %v", err)
	}

	// 20s past exp but inside a 30s skew window.
	justPast := now.Add(2*time.Minute + 20*time.Second)
	if _, err := DecodeTxnV1(encoded, testTxnKey, nil, justPast, 30*time.Second); err != nil {
		t.Errorf("expected skew to tolerate slightly stale cookie, got %v", err)
	}

	// Cookie from the near future within skew.
	justBefore := now.Add(-20 * time.Second)
	if _, err := DecodeTxnV1(encoded, testTxnKey, nil, justBefore, 30*time.Second); err != nil {
		t.Errorf("expected skew to tolerate future iat, got %v", err)
	}
}

func TestSetAndReadTxnCookie(t *testing.T) {
	now := time.Now()
	opts := TxnOpts{
		TTL:        2 * time.Minute,
		Skew:       30 * time.Second,
		Secure:     true,
		SigningKey: testTxnKey,
	}

	w := httptest.NewRecorder()
	p := TxnPayloadV1{
		State:    "c3RhdGUtdG9rZW4",
		Nonce:    "bm9uY2UtdG9rZW4",
		CV:       testCV,
		ReturnTo: "https://app.example.com/",
	}
	if _, err := SetTxnCookie(w, p, opts, now); err != nil {
		t.Fatalf("SetTxnCookie failed: %v", err)
	}

	res := w.Result()
	cookies := res.Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != TxnCookieName {
		t.Errorf("cookie name = %q, want %q", c.Name, TxnCookieName)
	}
	if !c.HttpOnly {
		t.Error("cookie must be HttpOnly")
	}
	if !c.Secure {
		t.Error("cookie must be Secure")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie SameSite = %v, want Lax", c.SameSite)
	}

	r := httptest.NewRequest("GET", "/callback", nil)
	r.AddCookie(c)

	got, err := ReadTxnCookie(r, opts, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ReadTxnCookie failed: %v", err)
	}
	if got.State != p.State {
		t.Errorf("State = %q, want %q", got.State, p.State)
	}
}

func TestSetTxnCookieCapsTTL(t *testing.T) {
	now := time.Now()
	opts := TxnOpts{
		TTL:        time.Hour, // beyond the cap
		SigningKey: testTxnKey,
	}

	w := httptest.NewRecorder()
	value, err := SetTxnCookie(w, TxnPayloadV1{
		State: "c3RhdGUtdG9rZW4",
		Nonce: "bm9uY2UtdG9rZW4",
		CV:    testCV,
	}, opts, now)
	if err != nil {
		t.Fatalf("SetTxnCookie failed: %v", err)
	}

	p, err := DecodeTxnV1(value, testTxnKey, nil, now, 0)
	if err != nil {
		t.Fatalf("DecodeTxnV1 failed: %v", err)
	}
	if want := now.Add(MaxTxnTTL).Unix(); p.Exp != want {
		t.Errorf("Exp = %d, want capped at %d", p.Exp, want)
	}
}

func TestConsumeTxn(t *testing.T) {
	now := time.Now()
	opts := TxnOpts{
		TTL:        2 * time.Minute,
		Skew:       30 * time.Second,
		SigningKey: testTxnKey,
	}
	const state = "c3RhdGUtdG9rZW4"

	newRequest := func(t *testing.T) *http.Request {
		t.Helper()
		w := httptest.NewRecorder()
		_, err := SetTxnCookie(w, TxnPayloadV1{
			State: state,
			Nonce: "bm9uY2UtdG9rZW4",
			CV:    testCV,
		}, opts, now)
		if err != nil {
			t.Fatalf("SetTxnCookie failed: %v", err)
		}
		r := httptest.NewRequest("GET", "/callback", nil)
		r.AddCookie(w.Result().Cookies()[0])
		return r
	}

	t.Run("success clears cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		p, fail := ConsumeTxn(w, newRequest(t), state, opts, now)
		if fail != nil {
			t.Fatalf("ConsumeTxn failed: %v", fail)
		}
		if p.State != state {
			t.Errorf("State = %q, want %q", p.State, state)
		}

		cookies := w.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge != -1 {
			t.Error("expected transaction cookie to be cleared")
		}
	})

	t.Run("state mismatch", func(t *testing.T) {
		w := httptest.NewRecorder()
		_, fail := ConsumeTxn(w, newRequest(t), "d3Jvbmctc3RhdGU", opts, now)
		if fail == nil {
			t.Fatal("expected failure for wrong state")
		}
		if fail.Reason != ReasonInvalidState {
			t.Errorf("Reason = %q, want %q", fail.Reason, ReasonInvalidState)
		}
	})

	t.Run("missing cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/callback", nil)
		_, fail := ConsumeTxn(w, r, state, opts, now)
		if fail == nil {
			t.Fatal("expected failure for missing cookie")
		}
		if fail.Reason != ReasonInvalidState {
			t.Errorf("Reason = %q, want %q", fail.Reason, ReasonInvalidState)
		}
	})

	t.Run("expired cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		_, fail := ConsumeTxn(w, newRequest(t), state, opts, now.Add(10*time.Minute))
		if fail == nil {
			t.Fatal("expected failure for expired transaction")
		}
		if fail.Reason != ReasonExpired {
			t.Errorf("Reason = %q, want %q", fail.Reason, ReasonExpired)
		}
		// the clear happens even on failure
		cookies := w.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge != -1 {
			t.Error("expected transaction cookie to be cleared on failure too")
		}
	})
}
