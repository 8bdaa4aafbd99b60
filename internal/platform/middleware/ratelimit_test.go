package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/edhub/edhub/internal/platform/auth"
	"github.com/edhub/edhub/internal/platform/metrics"
)

func limited(cfg RateLimitConfig) echo.HandlerFunc {
	return RateLimit(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func hit(e *echo.Echo, h echo.HandlerFunc, userID string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	if userID != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), userID, "u", nil))
	}
	rec := httptest.NewRecorder()
	return rec, h(e.NewContext(req, rec))
}

func TestRateLimit_RemainingCountsDown(t *testing.T) {
	e := echo.New()
	h := limited(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 3})

	for want := 2; want >= 0; want-- {
		rec, err := hit(e, h, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("expected limit 10, got %q", got)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(want) {
			t.Errorf("expected remaining %d, got %q", want, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	h := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	before := testutil.ToFloat64(metrics.RateLimited.WithLabelValues("ip"))

	for i := 0; i < 2; i++ {
		if _, err := hit(e, h, ""); err != nil {
			t.Fatalf("request %d: unexpected error %v", i+1, err)
		}
	}
	rec, err := hit(e, h, "")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if ra, _ := strconv.Atoi(rec.Header().Get("Retry-After")); ra < 1 {
		t.Errorf("expected Retry-After >= 1, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected remaining 0, got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if got := testutil.ToFloat64(metrics.RateLimited.WithLabelValues("ip")); got != before+1 {
		t.Errorf("expected rejection counted, got %v want %v", got, before+1)
	}
}

func TestRateLimit_PerUserIsolation(t *testing.T) {
	e := echo.New()
	h := limited(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	if _, err := hit(e, h, "nurse-a"); err != nil {
		t.Fatalf("nurse-a first request: %v", err)
	}
	if _, err := hit(e, h, "nurse-a"); err == nil {
		t.Fatal("nurse-a second request: expected rate limit error")
	}
	if _, err := hit(e, h, "nurse-b"); err != nil {
		t.Fatalf("nurse-b shares an address but not a bucket: %v", err)
	}
	if _, err := hit(e, h, ""); err != nil {
		t.Fatalf("anonymous caller from the same address: %v", err)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 50 || cfg.BurstSize != 100 || cfg.IdleTTL != 10*time.Minute {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestTokenBucket_RetryAfterWithZeroRate(t *testing.T) {
	b := newTokenBucket(0, 1)
	b.allow()
	if ra := b.retryAfter(); ra != 1 {
		t.Errorf("expected retryAfter 1 for zero rate, got %d", ra)
	}
	if b.allow() {
		t.Error("zero rate bucket must not refill")
	}
}

func TestRateLimiterStore_ReusesBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})

	b1 := store.getBucket("user:1")
	if b1 != store.getBucket("user:1") {
		t.Error("expected same bucket for same key")
	}
	if b1 == store.getBucket("user:2") {
		t.Error("expected different bucket for different key")
	}
}

func TestRateLimiterStore_EvictsIdleBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5, IdleTTL: time.Minute})
	stale := store.getBucket("ip:10.0.0.1")
	fresh := store.getBucket("ip:10.0.0.2")
	stale.lastUsed = time.Now().Add(-2 * time.Minute)
	fresh.allow()

	store.lastSweep = time.Now().Add(-2 * time.Minute)
	store.getBucket("ip:10.0.0.3")

	if store.size() != 2 {
		t.Fatalf("expected idle bucket evicted, have %d buckets", store.size())
	}
	if store.getBucket("ip:10.0.0.2") != fresh {
		t.Error("active bucket must survive the sweep")
	}
}

func TestRateLimitKey_AnonymousUsesIP(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	if got := rateLimitKey(c); got != "ip:10.0.0.7" {
		t.Errorf("expected ip:10.0.0.7, got %s", got)
	}
}
