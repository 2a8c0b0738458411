package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/codec-agences/admin-backend/internal/notify"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *recordingNotifier) Notify(alert notify.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestGate(t interface{ Fatalf(string, ...any) }, notifier Notifier, throttle Limiter) (*RateGate, *testClock) {
	clock := &testClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	gate, err := NewRateGate(RateGateConfig{CacheSize: 128, Notifier: notifier, Throttle: throttle})
	if err != nil {
		t.Fatalf("NewRateGate() error = %v", err)
	}
	return gate.WithClock(clock.Now), clock
}

func send(h http.Handler, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

// Feature: session-security-gate, Property 6: The 11th request in one second is rejected
func TestProperty6_EleventhRequestRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gate, clock := newTestGate(t, nil, nil)
		h := gate.Handler(okHandler())

		// 11 requests spread inside one window
		steps := rapid.SliceOfN(rapid.Int64Range(0, int64(90*time.Millisecond)), RateLimit, RateLimit).Draw(t, "steps")
		for i := 0; i < RateLimit; i++ {
			if code := send(h, "203.0.113.1"); code != http.StatusOK {
				t.Fatalf("request %d rejected with %d", i+1, code)
			}
			clock.Advance(time.Duration(steps[i]))
		}

		if code := send(h, "203.0.113.1"); code != http.StatusTooManyRequests {
			t.Fatalf("11th request got %d, want 429", code)
		}
		if code := send(h, "198.51.100.2"); code != http.StatusOK {
			t.Errorf("another IP was affected: %d", code)
		}

		clock.Advance(time.Duration(rapid.Int64Range(int64(RateWindow), int64(BlockDuration-time.Second)).Draw(t, "later")))
		if code := send(h, "203.0.113.1"); code != http.StatusTooManyRequests {
			t.Errorf("blocked IP allowed before expiry: %d", code)
		}
	})
}

// Feature: session-security-gate, Property 7: Blocks expire after one hour
func TestProperty7_BlockExpiry(t *testing.T) {
	gate, clock := newTestGate(t, nil, nil)
	h := gate.Handler(okHandler())

	for i := 0; i <= RateLimit; i++ {
		send(h, "203.0.113.1")
	}
	rec, ok := gate.Record("203.0.113.1")
	if !ok || rec.HitCount != 1 {
		t.Fatalf("expected a block record, got %+v %v", rec, ok)
	}

	clock.Advance(59 * time.Minute)
	if code := send(h, "203.0.113.1"); code != http.StatusTooManyRequests {
		t.Errorf("T+59m: got %d, want 429", code)
	}

	clock.Advance(2 * time.Minute)
	if code := send(h, "203.0.113.1"); code != http.StatusOK {
		t.Errorf("T+61m: got %d, want 200", code)
	}
	if _, ok := gate.Record("203.0.113.1"); ok {
		t.Error("expired record still reported as active")
	}
}

func TestRateGate_ReblockCountsHits(t *testing.T) {
	gate, clock := newTestGate(t, nil, nil)
	h := gate.Handler(okHandler())
	ip := "203.0.113.9"

	for i := 0; i <= RateLimit; i++ {
		send(h, ip)
	}
	first, ok := gate.Record(ip)
	if !ok || first.HitCount != 1 {
		t.Fatalf("first block: %+v %v", first, ok)
	}

	clock.Advance(61 * time.Minute)
	for i := 0; i < RateLimit; i++ {
		if code := send(h, ip); code != http.StatusOK {
			t.Fatalf("request %d after expiry: got %d, want 200", i+1, code)
		}
	}
	if code := send(h, ip); code != http.StatusTooManyRequests {
		t.Fatalf("overflow after expiry: got %d, want 429", code)
	}

	second, ok := gate.Record(ip)
	if !ok || second.HitCount != 2 {
		t.Fatalf("second block: %+v %v, want HitCount 2", second, ok)
	}
	if !second.FirstViolationAt.After(first.FirstViolationAt) {
		t.Error("a new block must start a new window")
	}

	clock.Advance(59 * time.Minute)
	if code := send(h, ip); code != http.StatusTooManyRequests {
		t.Errorf("second block lifted early: got %d", code)
	}
}

func TestRateGate_BlockedRequestsDoNotConsumeSlots(t *testing.T) {
	gate, clock := newTestGate(t, nil, nil)
	h := gate.Handler(okHandler())

	for i := 0; i <= RateLimit; i++ {
		send(h, "203.0.113.1")
	}
	for i := 0; i < 50; i++ {
		send(h, "203.0.113.1")
	}

	clock.Advance(BlockDuration + time.Second)
	for i := 0; i < RateLimit; i++ {
		if code := send(h, "203.0.113.1"); code != http.StatusOK {
			t.Fatalf("request %d after expiry rejected", i+1)
		}
	}
}

func TestRateGate_RetryAfter(t *testing.T) {
	gate, clock := newTestGate(t, nil, nil)
	h := gate.Handler(okHandler())
	for i := 0; i <= RateLimit; i++ {
		send(h, "203.0.113.1")
	}
	clock.Advance(30 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.1:1"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Retry-After"); got != "1800" {
		t.Errorf("Retry-After = %q, want 1800", got)
	}
}

func TestRateGate_UsesForwardedFor(t *testing.T) {
	gate, _ := newTestGate(t, nil, nil)
	h := gate.Handler(okHandler())

	for i := 0; i <= RateLimit; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:80"
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	if _, ok := gate.Record("203.0.113.7"); !ok {
		t.Error("expected the forwarded client to be blocked")
	}
	if code := send(h, "10.0.0.1"); code != http.StatusOK {
		t.Errorf("the proxy address must not be blocked: %d", code)
	}
}

func TestRateGate_NotificationThrottled(t *testing.T) {
	notifier := &recordingNotifier{}
	throttle, err := notify.NewThrottle(notify.DefaultThrottleWindow, 16)
	if err != nil {
		t.Fatal(err)
	}
	gate, clock := newTestGate(t, notifier, throttle)
	throttle.WithClock(clock.Now)
	h := gate.Handler(okHandler())

	for round := 0; round < 2; round++ {
		for i := 0; i <= RateLimit; i++ {
			send(h, "203.0.113.1")
		}
		clock.Advance(BlockDuration + time.Minute)
	}

	if notifier.count() != 1 {
		t.Errorf("two blocks within 24h sent %d notifications, want 1", notifier.count())
	}
	if notifier.alerts[0].Endpoint != "/api/articles" {
		t.Errorf("alert endpoint = %q", notifier.alerts[0].Endpoint)
	}
}
