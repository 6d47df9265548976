package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRateLimitRejectsOverBurst(t *testing.T) {
	handler := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/appointments", nil)
		req.Header.Set("X-Real-Ip", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("10.0.0.1"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d within burst rejected with %d", i, rec.Code)
		}
	}

	rec := send("10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over burst, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After hint")
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	// A different client has its own bucket.
	if rec := send("10.0.0.2"); rec.Code != http.StatusNoContent {
		t.Fatalf("fresh client rejected with %d", rec.Code)
	}
}

func TestAllowReportsWaitWhenLimited(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if ok, _ := rl.Allow("ip"); !ok {
		t.Fatal("first request must pass")
	}
	ok, wait := rl.Allow("ip")
	if ok {
		t.Fatal("second immediate request must be limited")
	}
	if wait <= 0 {
		t.Fatalf("expected positive retry hint, got %v", wait)
	}
}
