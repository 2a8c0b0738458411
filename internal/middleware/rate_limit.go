package middleware

import (
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/httputil"
	"github.com/codec-agences/admin-backend/internal/logger"
	"github.com/codec-agences/admin-backend/internal/metrics"
	"github.com/codec-agences/admin-backend/internal/notify"
)

// Gate limits
const (
	RateLimit     = 10
	RateWindow    = time.Second
	BlockDuration = time.Hour
)

// Notifier accepts alerts without blocking
type Notifier interface {
	Notify(alert notify.Alert)
}

// Limiter decides whether an alert for a key may go out
type Limiter interface {
	Allow(key string) bool
}

// BlockRecord is the state kept for a blocked IP. Records are replaced, never
// mutated. HitCount counts the blocks the IP has earned while its record
// stayed cached; a lapsed record stops blocking but keeps the count.
type BlockRecord struct {
	FirstViolationAt time.Time
	HitCount         int
}

// RateGate rejects blocked IPs, then counts requests per IP in a sliding
// window. Exceeding the window blocks the IP for BlockDuration.
type RateGate struct {
	limit    int
	window   time.Duration
	blockFor time.Duration

	blocks   *lru.Cache // ip -> BlockRecord
	requests *lru.Cache // ip -> []time.Time, oldest first

	throttle Limiter
	notifier Notifier
	render   apperr.Renderer
	logger   *slog.Logger
	now      func() time.Time
}

// RateGateConfig configures a RateGate. Zero values fall back to the package constants.
type RateGateConfig struct {
	Limit     int
	Window    time.Duration
	BlockFor  time.Duration
	CacheSize int
	Throttle  Limiter
	Notifier  Notifier
	Render    apperr.Renderer
	Logger    *slog.Logger
}

// NewRateGate creates a gate whose caches hold up to CacheSize IPs each
func NewRateGate(cfg RateGateConfig) (*RateGate, error) {
	if cfg.Limit <= 0 {
		cfg.Limit = RateLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = RateWindow
	}
	if cfg.BlockFor <= 0 {
		cfg.BlockFor = BlockDuration
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	blocks, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}
	requests, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create window cache: %w", err)
	}

	return &RateGate{
		limit:    cfg.Limit,
		window:   cfg.Window,
		blockFor: cfg.BlockFor,
		blocks:   blocks,
		requests: requests,
		throttle: cfg.Throttle,
		notifier: cfg.Notifier,
		render:   cfg.Render,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// WithClock replaces the time source, for tests
func (g *RateGate) WithClock(now func() time.Time) *RateGate {
	g.now = now
	return g
}

// Blocked returns the remaining block time for ip
func (g *RateGate) Blocked(ip string) (time.Duration, bool) {
	v, ok := g.blocks.Get(ip)
	if !ok {
		return 0, false
	}
	elapsed := g.now().Sub(v.(BlockRecord).FirstViolationAt)
	if elapsed >= g.blockFor {
		return 0, false
	}
	return g.blockFor - elapsed, true
}

// Record is the active block record for ip, if any
func (g *RateGate) Record(ip string) (BlockRecord, bool) {
	v, ok := g.blocks.Peek(ip)
	if !ok {
		return BlockRecord{}, false
	}
	rec := v.(BlockRecord)
	if g.now().Sub(rec.FirstViolationAt) >= g.blockFor {
		return BlockRecord{}, false
	}
	return rec, true
}

// take consumes a window slot for ip. It reports false once the window is full.
func (g *RateGate) take(ip string) bool {
	now := g.now()
	cutoff := now.Add(-g.window)

	var recent []time.Time
	if v, ok := g.requests.Get(ip); ok {
		for _, t := range v.([]time.Time) {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
	}
	if len(recent) >= g.limit {
		g.requests.Add(ip, recent)
		return false
	}

	g.requests.Add(ip, append(recent, now))
	return true
}

// block starts a fresh block window for ip, carrying over the hit count of a
// lapsed record
func (g *RateGate) block(ip string) BlockRecord {
	rec := BlockRecord{FirstViolationAt: g.now(), HitCount: 1}
	if v, ok := g.blocks.Peek(ip); ok {
		rec.HitCount = v.(BlockRecord).HitCount + 1
	}
	g.blocks.Add(ip, rec)
	return rec
}

// Handler is the gate middleware
func (g *RateGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r)

		if remaining, blocked := g.Blocked(ip); blocked {
			metrics.GateRejections.WithLabelValues("blocked").Inc()
			g.render.Write(w, r, apperr.RateLimited("Your IP is temporarily blocked, try again later", remaining))
			return
		}

		if !g.take(ip) {
			rec := g.block(ip)
			metrics.GateRejections.WithLabelValues("rate").Inc()
			logger.WithCorrelationID(r.Context(), g.logger).Warn("rate limit exceeded, blocking ip",
				"ip", ip,
				"path", r.URL.Path,
				"hits", rec.HitCount,
			)
			g.alert(ip, r.URL.Path)
			g.render.Write(w, r, apperr.RateLimited("Too many requests, your IP is temporarily blocked", g.blockFor))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *RateGate) alert(ip, endpoint string) {
	if g.notifier == nil {
		return
	}
	if g.throttle != nil && !g.throttle.Allow(ip) {
		metrics.NotificationsSent.WithLabelValues("throttled").Inc()
		return
	}
	g.notifier.Notify(notify.Alert{
		Time:     g.now(),
		IP:       ip,
		Endpoint: endpoint,
		Subject:  "Security alert: IP blocked for excessive requests",
		Message: fmt.Sprintf("<p>The IP <strong>%s</strong> exceeded %d requests per %s on <code>%s</code> and is blocked for %s.</p>",
			html.EscapeString(ip), g.limit, g.window, html.EscapeString(endpoint), g.blockFor),
	})
}
