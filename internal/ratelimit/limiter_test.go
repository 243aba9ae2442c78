package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

// clientKeyGenerator generates IPv4-looking client keys
func clientKeyGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`10\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
}

// configGenerator generates valid rate limiter configurations
func configGenerator() *rapid.Generator[Config] {
	return rapid.Custom(func(t *rapid.T) Config {
		cleanupSecs := rapid.IntRange(1, 3600).Draw(t, "cleanupSecs")
		return Config{
			RPS:             rapid.Float64Range(0.1, 100.0).Draw(t, "rps"),
			Burst:           rapid.IntRange(1, 200).Draw(t, "burst"),
			CleanupInterval: time.Duration(cleanupSecs) * time.Second,
		}
	})
}

// =============================================================================
// Property: Requests within limit succeed
// =============================================================================

func testRateLimiter_RequestsWithinLimit(t *rapid.T) {
	config := configGenerator().Draw(t, "config")

	rl := NewRateLimiter(config)
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	numRequests := rapid.IntRange(1, config.Burst).Draw(t, "numRequests")

	// Property: All requests within burst limit should succeed
	for i := 0; i < numRequests; i++ {
		if !rl.Allow(key) {
			t.Fatalf("Request %d of %d should have been allowed (within burst of %d)", i+1, numRequests, config.Burst)
		}
	}
}

func TestRateLimiter_RequestsWithinLimit(t *testing.T) {
	rapid.Check(t, testRateLimiter_RequestsWithinLimit)
}

func FuzzRateLimiter_RequestsWithinLimit(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_RequestsWithinLimit))
}

// =============================================================================
// Property: Requests exceeding limit are blocked
// =============================================================================

func testRateLimiter_ExceedingLimitBlocked(t *rapid.T) {
	// Low refill rate so the bucket cannot recover during the loop
	burst := rapid.IntRange(1, 50).Draw(t, "burst")
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	for i := 0; i < burst; i++ {
		if !rl.Allow(key) {
			t.Fatalf("Request %d should have been allowed within burst %d", i+1, burst)
		}
	}

	extra := rapid.IntRange(1, 20).Draw(t, "extra")
	for i := 0; i < extra; i++ {
		if rl.Allow(key) {
			t.Fatalf("Request %d past burst %d should have been blocked", i+1, burst)
		}
	}
}

func TestRateLimiter_ExceedingLimitBlocked(t *testing.T) {
	rapid.Check(t, testRateLimiter_ExceedingLimitBlocked)
}

func FuzzRateLimiter_ExceedingLimitBlocked(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_ExceedingLimitBlocked))
}

// =============================================================================
// Property: Clients are limited independently
// =============================================================================

func testRateLimiter_KeyIndependence(t *rapid.T) {
	burst := rapid.IntRange(1, 20).Draw(t, "burst")
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	keyA := clientKeyGenerator().Draw(t, "keyA")
	keyB := clientKeyGenerator().Filter(func(k string) bool { return k != keyA }).Draw(t, "keyB")

	// Exhaust A
	for i := 0; i < burst; i++ {
		rl.Allow(keyA)
	}
	if rl.Allow(keyA) {
		t.Fatalf("key %q should be exhausted", keyA)
	}

	// Property: B still has its full burst
	for i := 0; i < burst; i++ {
		if !rl.Allow(keyB) {
			t.Fatalf("key %q request %d blocked by another client's usage", keyB, i+1)
		}
	}
}

func TestRateLimiter_KeyIndependence(t *testing.T) {
	rapid.Check(t, testRateLimiter_KeyIndependence)
}

func FuzzRateLimiter_KeyIndependence(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_KeyIndependence))
}

// =============================================================================
// Property: Idle limiters are cleaned up
// =============================================================================

func testRateLimiter_IdleLimiterCleanup(t *rapid.T) {
	cleanupInterval := 10 * time.Millisecond

	rl := NewRateLimiter(Config{RPS: 100, Burst: 200, CleanupInterval: cleanupInterval})
	defer rl.Stop()

	numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
	for i := 0; i < numKeys; i++ {
		rl.Allow(clientKeyGenerator().Draw(t, "key"))
	}
	if rl.Len() == 0 {
		t.Fatal("Expected some limiters to be created")
	}

	time.Sleep(cleanupInterval + 5*time.Millisecond)
	rl.Cleanup()

	if got := rl.Len(); got != 0 {
		t.Fatalf("Expected all idle limiters to be cleaned up, got %d remaining", got)
	}
}

func TestRateLimiter_IdleLimiterCleanup(t *testing.T) {
	rapid.Check(t, testRateLimiter_IdleLimiterCleanup)
}

func FuzzRateLimiter_IdleLimiterCleanup(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_IdleLimiterCleanup))
}

// =============================================================================
// Property: Active limiters are NOT cleaned up
// =============================================================================

func TestRateLimiter_ActiveLimiterNotCleaned(t *testing.T) {
	cleanupInterval := 50 * time.Millisecond

	rl := NewRateLimiter(Config{RPS: 100, Burst: 200, CleanupInterval: cleanupInterval})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	time.Sleep(cleanupInterval + 20*time.Millisecond)
	rl.Allow("10.0.0.2")
	rl.Cleanup()

	if got := rl.Len(); got != 1 {
		t.Fatalf("Expected only the active limiter to survive, got %d", got)
	}
	rl.mu.RLock()
	_, ok := rl.limiters["10.0.0.2"]
	rl.mu.RUnlock()
	if !ok {
		t.Fatal("active limiter was cleaned up")
	}
}

// =============================================================================
// Property: Concurrent access is safe
// =============================================================================

func testRateLimiter_ConcurrentAccess(t *rapid.T) {
	burst := rapid.IntRange(10, 100).Draw(t, "burst")
	rl := NewRateLimiter(Config{RPS: 0.001, Burst: burst, CleanupInterval: time.Hour})
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	numGoroutines := rapid.IntRange(2, 20).Draw(t, "numGoroutines")
	perGoroutine := rapid.IntRange(1, 20).Draw(t, "perGoroutine")

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if rl.Allow(key) {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	total := int64(numGoroutines * perGoroutine)
	want := min(int64(burst), total)
	// Property: exactly the burst is granted, never more
	if got := allowed.Load(); got != want {
		t.Fatalf("allowed %d of %d requests, want %d (burst %d)", got, total, want, burst)
	}
	if rl.Len() != 1 {
		t.Fatalf("expected one limiter for one key, got %d", rl.Len())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rapid.Check(t, testRateLimiter_ConcurrentAccess)
}

func FuzzRateLimiter_ConcurrentAccess(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_ConcurrentAccess))
}

// =============================================================================
// Property: GetLimiter returns the same limiter for the same key
// =============================================================================

func testRateLimiter_GetLimiterConsistency(t *rapid.T) {
	rl := NewRateLimiter(configGenerator().Draw(t, "config"))
	defer rl.Stop()

	key := clientKeyGenerator().Draw(t, "key")
	first := rl.GetLimiter(key)
	calls := rapid.IntRange(1, 10).Draw(t, "calls")
	for i := 0; i < calls; i++ {
		if rl.GetLimiter(key) != first {
			t.Fatalf("GetLimiter(%q) returned a different limiter on call %d", key, i+2)
		}
	}
}

func TestRateLimiter_GetLimiterConsistency(t *testing.T) {
	rapid.Check(t, testRateLimiter_GetLimiterConsistency)
}

func FuzzRateLimiter_GetLimiterConsistency(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_GetLimiterConsistency))
}

// =============================================================================
// Property: Len counts distinct keys
// =============================================================================

func testRateLimiter_LenReturnsCorrectCount(t *rapid.T) {
	rl := NewRateLimiter(DefaultConfig)
	defer rl.Stop()

	keys := rapid.SliceOfDistinct(clientKeyGenerator(), func(k string) string { return k }).Draw(t, "keys")
	for _, k := range keys {
		rl.Allow(k)
		rl.Allow(k)
	}
	if got := rl.Len(); got != len(keys) {
		t.Fatalf("Len() = %d, want %d", got, len(keys))
	}
}

func TestRateLimiter_LenReturnsCorrectCount(t *testing.T) {
	rapid.Check(t, testRateLimiter_LenReturnsCorrectCount)
}

func TestRateLimiter_DefaultConfigValid(t *testing.T) {
	if DefaultConfig.RPS <= 0 {
		t.Fatalf("DefaultConfig.RPS should be positive, got %v", DefaultConfig.RPS)
	}
	if DefaultConfig.Burst < 1 {
		t.Fatalf("DefaultConfig.Burst should be at least 1, got %d", DefaultConfig.Burst)
	}
	if DefaultConfig.CleanupInterval <= 0 {
		t.Fatalf("DefaultConfig.CleanupInterval should be positive, got %v", DefaultConfig.CleanupInterval)
	}
}

func TestRateLimiter_ZeroCleanupIntervalUsesDefault(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 1, Burst: 1})
	defer rl.Stop()
	if rl.config.CleanupInterval != DefaultConfig.CleanupInterval {
		t.Fatalf("CleanupInterval = %v, want %v", rl.config.CleanupInterval, DefaultConfig.CleanupInterval)
	}
}

func TestRateLimiter_StopGracefulShutdown(t *testing.T) {
	rl := NewRateLimiter(Config{RPS: 10, Burst: 10, CleanupInterval: time.Millisecond})
	rl.Allow("10.0.0.1")

	done := make(chan struct{})
	go func() {
		rl.Stop()
		rl.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
