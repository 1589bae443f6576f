package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func principalGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z][a-z0-9]{3,15}`)
}

func keyGenerator() *rapid.Generator[Key] {
	return rapid.Custom(func(t *rapid.T) Key {
		return Key{
			ID:            principalGenerator().Draw(t, "id"),
			Authenticated: rapid.Bool().Draw(t, "authenticated"),
		}
	})
}

func tightConfig(burst int) Config {
	return Config{
		PrincipalRPS:    0.001,
		PrincipalBurst:  burst,
		AnonymousRPS:    0.001,
		AnonymousBurst:  burst,
		CleanupInterval: time.Hour,
	}
}

// =============================================================================
// Property: requests within the burst succeed, the next one is blocked
// =============================================================================

func testRateLimiter_BurstThenBlocked(t *rapid.T) {
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	rl := NewRateLimiter(tightConfig(burst))
	defer rl.Stop()

	key := keyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("request %d of %d blocked", i+1, burst)
		}
	}
	if rl.Allow(key) {
		t.Fatalf("request %d allowed beyond burst %d", burst+1, burst)
	}
}

func TestRateLimiter_BurstThenBlocked(t *testing.T) {
	rapid.Check(t, testRateLimiter_BurstThenBlocked)
}

func FuzzRateLimiter_BurstThenBlocked(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_BurstThenBlocked))
}

// =============================================================================
// Property: callers are independent, including same id across auth states
// =============================================================================

func testRateLimiter_CallerIndependence(t *rapid.T) {
	rl := NewRateLimiter(tightConfig(1))
	defer rl.Stop()

	id := principalGenerator().Draw(t, "id")
	authed := Key{ID: id, Authenticated: true}
	anon := Key{ID: id}

	if !rl.Allow(authed) {
		t.Fatal("first authenticated request blocked")
	}
	if rl.Allow(authed) {
		t.Fatal("authenticated budget not enforced")
	}
	if !rl.Allow(anon) {
		t.Fatal("anonymous caller with same id shares the authenticated budget")
	}
}

func TestRateLimiter_CallerIndependence(t *testing.T) {
	rapid.Check(t, testRateLimiter_CallerIndependence)
}

// =============================================================================
// Property: idle limiters are cleaned up, Len counts distinct keys
// =============================================================================

func testRateLimiter_IdleLimiterCleanup(t *rapid.T) {
	cfg := tightConfig(10)
	cfg.CleanupInterval = 10 * time.Millisecond
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	keys := rapid.SliceOfNDistinct(keyGenerator(), 1, 10, rapid.ID[Key]).Draw(t, "keys")
	for _, k := range keys {
		rl.Allow(k)
	}
	if rl.Len() > len(keys) {
		t.Fatalf("Len() = %d exceeds distinct keys %d", rl.Len(), len(keys))
	}

	time.Sleep(cfg.CleanupInterval + 5*time.Millisecond)
	rl.Cleanup()

	if rl.Len() != 0 {
		t.Fatalf("expected idle limiters to be cleaned up, got %d", rl.Len())
	}
}

func TestRateLimiter_IdleLimiterCleanup(t *testing.T) {
	rapid.Check(t, testRateLimiter_IdleLimiterCleanup)
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(DefaultConfig)
	defer rl.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key{ID: string(rune('a' + i%5)), Authenticated: i%2 == 0}
			for j := 0; j < 50; j++ {
				rl.Allow(key)
			}
		}(i)
	}
	wg.Wait()

	if rl.Len() != 10 {
		t.Fatalf("expected 10 distinct limiters, got %d", rl.Len())
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestMiddleware_LimitsPerPrincipal(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(tightConfig(2))
	defer rl.Stop()

	handler := Middleware(rl,
		func(r *http.Request) string { return r.Header.Get("X-Principal") },
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(principal string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/plants", nil)
		req.Header.Set("X-Principal", principal)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("admin"); rec.Code != http.StatusOK || rec.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("first request: code=%d remaining=%q", rec.Code, rec.Header().Get("X-RateLimit-Remaining"))
	}
	if rec := do("admin"); rec.Code != http.StatusOK {
		t.Fatalf("second request: code=%d", rec.Code)
	}
	rec := do("admin")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing throttle headers: %v", rec.Header())
	}
	if rec := do("testuser"); rec.Code != http.StatusOK {
		t.Fatalf("other principal throttled: %d", rec.Code)
	}
}

func TestMiddleware_AnonymousKeyedByAddress(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(tightConfig(1))
	defer rl.Stop()

	handler := Middleware(rl,
		func(r *http.Request) string { return "" },
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/ui/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first anonymous request: %d", rec.Code)
	}

	req.RemoteAddr = "10.0.0.1:6666"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same host, other port should share budget, got %d", rec.Code)
	}
}
