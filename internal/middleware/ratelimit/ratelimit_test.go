package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestLimiter_Allow(t *testing.T) {
	rl, now := newTestLimiter(t, 2)

	if !rl.Allow("1.1.1.1") || !rl.Allow("1.1.1.1") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("1.1.1.1") {
		t.Error("third request in the window should be rejected")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("other clients have their own window")
	}

	*now = now.Add(time.Minute)
	if !rl.Allow("1.1.1.1") {
		t.Error("a new window should reset the counter")
	}

	if got := rl.GetMetrics(); got.TotalHits != 1 || got.ClientCount != 2 {
		t.Errorf("GetMetrics() = %+v, want 1 hit and 2 clients", got)
	}
}

func TestLimiter_CleanupStaleEntries(t *testing.T) {
	rl, now := newTestLimiter(t, 5)
	rl.Allow("1.1.1.1")

	*now = now.Add(11 * time.Minute)
	rl.cleanupStaleEntries()

	if n := rl.ActiveClients(); n != 0 {
		t.Errorf("ActiveClients() = %d, want 0", n)
	}
}

func TestLimiter_MiddlewareSkipsReads(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, Mutating, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/transactions", nil))
		return rec.Code
	}

	if got := do(http.MethodPost); got != http.StatusNoContent {
		t.Fatalf("first POST = %d", got)
	}
	if got := do(http.MethodPost); got != http.StatusTooManyRequests {
		t.Errorf("second POST = %d, want 429", got)
	}
	if got := do(http.MethodGet); got != http.StatusNoContent {
		t.Errorf("GET = %d, reads are not limited", got)
	}
}
