package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, ip, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = ip + ":4711"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	h := rl.Handler(okHandler())

	for i := range 10 {
		if rec := hit(h, "192.168.1.1", "/tasks"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(10, 5)
	h := rl.Handler(okHandler())

	for range 5 {
		hit(h, "192.168.1.1", "/tasks")
	}
	rec := hit(h, "192.168.1.1", "/tasks")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON error body")
	}
}

func TestRateLimiterSetsHeaders(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	rec := hit(rl.Handler(okHandler()), "192.168.1.1", "/tasks")

	if rec.Header().Get("X-RateLimit-Limit") != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "9" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(10, 2)
	h := rl.Handler(okHandler())

	hit(h, "10.0.0.1", "/tasks")
	hit(h, "10.0.0.1", "/tasks")

	if rec := hit(h, "10.0.0.1", "/tasks"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("10.0.0.1: expected 429, got %d", rec.Code)
	}
	if rec := hit(h, "10.0.0.2", "/tasks"); rec.Code != http.StatusOK {
		t.Errorf("10.0.0.2: expected 200, got %d", rec.Code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(2, 1)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler())

	hit(h, "10.0.0.1", "/tasks")
	if rec := hit(h, "10.0.0.1", "/tasks"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before refill, got %d", rec.Code)
	}

	now = now.Add(500 * time.Millisecond)
	if rec := hit(h, "10.0.0.1", "/tasks"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after refill, got %d", rec.Code)
	}
}

func TestRateLimiterSkipsHealth(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	h := rl.Handler(okHandler())

	for range 5 {
		if rec := hit(h, "10.0.0.1", "/health"); rec.Code != http.StatusOK {
			t.Fatalf("health probe limited: %d", rec.Code)
		}
	}
	if rl.Len() != 0 {
		t.Errorf("expected no tracked buckets, got %d", rl.Len())
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(10, 10)
	rl.now = func() time.Time { return now }
	h := rl.Handler(okHandler())

	hit(h, "10.0.0.1", "/tasks")
	now = now.Add(time.Minute)
	hit(h, "10.0.0.2", "/tasks")

	rl.cleanup(30 * time.Second)
	if rl.Len() != 1 {
		t.Fatalf("expected 1 bucket after cleanup, got %d", rl.Len())
	}
}
