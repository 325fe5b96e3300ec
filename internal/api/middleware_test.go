package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"apsplan/internal/auth"
)

func TestRateLimiterPerKey(t *testing.T) {
	l := NewRateLimiter(1, 2, nil)
	now := time.Unix(0, 0)
	if !l.allow("a", now) || !l.allow("a", now) {
		t.Fatalf("burst of 2 should pass")
	}
	if l.allow("a", now) {
		t.Fatalf("third request within the same instant should be limited")
	}
	if !l.allow("b", now) {
		t.Fatalf("other keys have their own bucket")
	}
	if !l.allow("a", now.Add(time.Second)) {
		t.Fatalf("bucket should refill after a second")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	h := NewRateLimiter(1, 1, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	codes := []int{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/lines", nil)
		req.Header.Set("X-Tenant-Id", "t1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes: %v", codes)
	}
}

func TestRateLimiterIgnoresTenantHeader(t *testing.T) {
	s := newTestServer(t)
	h := NewRateLimiter(1, 1, s.RateKey).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/lines", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Tenant-Id", fmt.Sprintf("t%d", i))
		req.Header.Set("Authorization", fmt.Sprintf("Bearer t%d:admin", i))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 19 {
		t.Fatalf("rotating headers from one host: %d of 20 limited", limited)
	}
}

func TestRateKeyUsesVerifiedTenant(t *testing.T) {
	s := newTestServer(t)
	s.Auth = &auth.Verifier{Mode: "hmac", Secret: []byte("k"), TenantClaim: "tenant", RoleClaim: "role"}
	tok, err := auth.IssueHS256([]byte("k"), map[string]any{"tenant": "t1", "role": "planner"})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/lines", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	req.Header.Set("Authorization", "Bearer "+tok)
	if got := s.RateKey(req); got != "tenant:t1" {
		t.Fatalf("verified token: %q", got)
	}
	req.Header.Set("Authorization", "Bearer forged.token.sig")
	req.Header.Set("X-Tenant-Id", "t2")
	if got := s.RateKey(req); got != "198.51.100.7" {
		t.Fatalf("unverified caller: %q", got)
	}
}

func TestRateLimiterBucketsBounded(t *testing.T) {
	l := NewRateLimiter(1, 1, nil)
	now := time.Unix(0, 0)
	for i := 0; i < maxBuckets+50; i++ {
		l.allow(fmt.Sprint(i), now)
	}
	if n := l.buckets.Len(); n != maxBuckets {
		t.Fatalf("buckets: %d", n)
	}
	// the oldest keys were evicted and start over with a full bucket
	if !l.allow("0", now) {
		t.Fatal("evicted key should get a fresh bucket")
	}
}

func TestInstrumentUsesPattern(t *testing.T) {
	s := newTestServer(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.HealthHandler)
	rr := httptest.NewRecorder()
	Instrument(mux).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
}
