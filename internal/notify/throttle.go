package notify

import (
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultThrottleWindow suppresses repeat alerts for the same key
const DefaultThrottleWindow = 24 * time.Hour

// Throttle admits at most one alert per key per window. Keys are evicted
// least-recently-used once size is reached.
type Throttle struct {
	window time.Duration
	last   *lru.Cache
	now    func() time.Time
}

// NewThrottle creates a throttle holding up to size keys
func NewThrottle(window time.Duration, size int) (*Throttle, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Throttle{window: window, last: cache, now: time.Now}, nil
}

// WithClock replaces the time source, for tests
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// Allow reports whether an alert for key may be sent now, and records it if so
func (t *Throttle) Allow(key string) bool {
	now := t.now()
	if v, ok := t.last.Get(key); ok {
		if now.Sub(v.(time.Time)) < t.window {
			return false
		}
	}
	t.last.Add(key, now)
	return true
}
