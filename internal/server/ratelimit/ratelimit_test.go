package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg *Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.Now
	return l, clock
}

func baseConfig(limit int, window time.Duration) *Config {
	return &Config{
		Enabled:       true,
		DefaultLimit:  limit,
		DefaultWindow: window,
		Whitelist:     map[string]bool{},
		Blacklist:     map[string]bool{},
	}
}

func TestLimiter_Allow(t *testing.T) {
	l, _ := newTestLimiter(baseConfig(5, time.Minute))
	defer l.Stop()

	for i := 0; i < 5; i++ {
		allowed, info := l.Allow("10.0.0.1", "/records", "GET")
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
		if info.Limit != 5 {
			t.Errorf("expected limit 5, got %d", info.Limit)
		}
		if info.Remaining != 5-(i+1) {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, 5-(i+1), info.Remaining)
		}
	}

	allowed, info := l.Allow("10.0.0.1", "/records", "GET")
	if allowed {
		t.Fatal("expected 6th request to be denied")
	}
	if info.RetryAfter <= 0 || info.RetryAfter > 13*time.Second {
		t.Errorf("expected retry after within one refill interval, got %v", info.RetryAfter)
	}
	if !info.ResetTime.After(time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("expected reset time in the future, got %v", info.ResetTime)
	}

	if allowed, _ := l.Allow("10.0.0.2", "/records", "GET"); !allowed {
		t.Error("expected other clients to have their own bucket")
	}
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(baseConfig(60, time.Minute)) // 1 token per second
	defer l.Stop()

	for i := 0; i < 60; i++ {
		l.Allow("client", "/x", "GET")
	}
	if allowed, _ := l.Allow("client", "/x", "GET"); allowed {
		t.Fatal("expected bucket to be empty")
	}

	clock.Advance(1100 * time.Millisecond)
	if allowed, _ := l.Allow("client", "/x", "GET"); !allowed {
		t.Error("expected request to be allowed after refill")
	}
}

func TestLimiter_WhitelistAndBlacklist(t *testing.T) {
	cfg := baseConfig(1, time.Minute)
	cfg.Whitelist["trusted"] = true
	cfg.Blacklist["banned"] = true
	l, _ := newTestLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 10; i++ {
		if allowed, _ := l.Allow("trusted", "/x", "GET"); !allowed {
			t.Fatal("expected whitelisted client to be allowed")
		}
	}
	if allowed, _ := l.Allow("banned", "/x", "GET"); allowed {
		t.Error("expected blacklisted client to be denied")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l, _ := newTestLimiter(&Config{Enabled: false})
	defer l.Stop()

	for i := 0; i < 100; i++ {
		if allowed, _ := l.Allow("client", "/job-application/single", "POST"); !allowed {
			t.Fatal("expected all requests to be allowed when disabled")
		}
	}
}

func TestLimiter_EndpointSpecific(t *testing.T) {
	cfg := baseConfig(100, time.Minute)
	cfg.EndpointConfigs = []EndpointConfig{
		{Path: "/job-application/batch", Method: "POST", Limit: 2, Window: time.Hour, Burst: 1},
	}
	l, _ := newTestLimiter(cfg)
	defer l.Stop()

	if allowed, _ := l.Allow("client", "/job-application/batch", "POST"); !allowed {
		t.Fatal("expected first batch to be allowed")
	}
	allowed, info := l.Allow("client", "/job-application/batch", "POST")
	if allowed {
		t.Fatal("expected burst of 1 to deny the second batch")
	}
	if info.Limit != 2 {
		t.Errorf("expected endpoint limit 2, got %d", info.Limit)
	}

	if allowed, _ := l.Allow("client", "/records", "GET"); !allowed {
		t.Error("expected other endpoints to use the default limit")
	}
	if allowed, _ := l.Allow("client", "/health", "GET"); !allowed {
		t.Error("expected health check to be unlimited")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(baseConfig(50, time.Hour))
	defer l.Stop()

	var allowedCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allowed, _ := l.Allow("client", "/x", "GET"); allowed {
				allowedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowedCount.Load(); got != 50 {
		t.Errorf("expected exactly 50 allowed requests, got %d", got)
	}
}

func TestLimiter_CleanupBuckets(t *testing.T) {
	l, clock := newTestLimiter(baseConfig(10, time.Minute))
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow(fmt.Sprintf("client-%d", i), "/x", "GET")
	}
	clock.Advance(2 * time.Hour)
	l.Allow("client-recent", "/x", "GET")

	l.cleanupBuckets(clock.Now().Add(-time.Hour))

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buckets) != 1 {
		t.Errorf("expected only the recent bucket to remain, got %d", len(l.buckets))
	}
}

func TestLimiter_StopTwice(t *testing.T) {
	l := NewLimiter(nil)
	l.Stop()
	l.Stop()
}

func TestMatchEndpoint(t *testing.T) {
	configs := DefaultEndpointConfigs()

	tests := []struct {
		path, method string
		wantPath     string
		unlimited    bool
		wantNil      bool
	}{
		{"/job-application/single", "POST", "/job-application/single", false, false},
		{"/job-application/batch", "POST", "/job-application/batch", false, false},
		{"/job-discovery", "POST", "/job-discovery", false, false},
		{"/job-discovery/", "POST", "/job-discovery", false, false},
		{"/job-discovery", "GET", "", false, true},
		{"/job-application", "POST", "", false, true},
		{"/job-application/single/extra", "POST", "", false, true},
		{"/health", "GET", HealthPath, true, false},
		{"/health", "POST", "", false, true},
		{"/unknown", "POST", "", false, true},
	}
	for _, tt := range tests {
		got := MatchEndpoint(tt.path, tt.method, configs)
		if tt.wantNil {
			if got != nil {
				t.Errorf("%s %s: expected no match, got %+v", tt.method, tt.path, got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("%s %s: expected a match", tt.method, tt.path)
		}
		if got.Path != tt.wantPath {
			t.Errorf("%s %s: expected %s, got %s", tt.method, tt.path, tt.wantPath, got.Path)
		}
		if unlimited := got.Limit <= 0; unlimited != tt.unlimited {
			t.Errorf("%s %s: expected unlimited=%v, got limit %d", tt.method, tt.path, tt.unlimited, got.Limit)
		}
	}
}

func TestLimiter_TrailingSlashSharesBucket(t *testing.T) {
	cfg := baseConfig(100, time.Minute)
	cfg.EndpointConfigs = []EndpointConfig{
		{Path: "/job-discovery", Method: "POST", Limit: 1, Window: time.Hour, Burst: 1},
	}
	l, _ := newTestLimiter(cfg)
	defer l.Stop()

	if allowed, _ := l.Allow("client", "/job-discovery", "POST"); !allowed {
		t.Fatal("expected first discovery to be allowed")
	}
	if allowed, _ := l.Allow("client", "/job-discovery/", "POST"); allowed {
		t.Error("expected the trailing-slash path to share the exhausted bucket")
	}
}
