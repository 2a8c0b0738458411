package threat

import (
	"context"
	"log/slog"
	"time"

	"github.com/codec-agences/admin-backend/internal/logger"
	"github.com/codec-agences/admin-backend/internal/metrics"
	"github.com/codec-agences/admin-backend/internal/notify"
)

// Notifier accepts alerts without blocking
type Notifier interface {
	Notify(alert notify.Alert)
}

// Limiter decides whether an alert for a key may go out
type Limiter interface {
	Allow(key string) bool
}

// Detector runs Scan and raises a throttled alert for non-empty reports
type Detector struct {
	patterns PatternSet
	notifier Notifier
	throttle Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// NewDetector creates a detector. A nil notifier disables alerts.
func NewDetector(patterns PatternSet, notifier Notifier, throttle Limiter, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		patterns: patterns,
		notifier: notifier,
		throttle: throttle,
		logger:   log,
		now:      time.Now,
	}
}

// Inspect scans fields received from ip on endpoint
func (d *Detector) Inspect(ctx context.Context, ip, endpoint string, fields map[string]any) Report {
	report := Scan(d.patterns, fields)
	if report.Empty() {
		return report
	}

	flagged := report.Flagged()
	categories := make([]string, len(flagged))
	for i, c := range flagged {
		categories[i] = string(c)
		metrics.ThreatsDetected.WithLabelValues(string(c)).Inc()
	}
	logger.WithCorrelationID(ctx, d.logger).Warn("threat detected",
		"ip", ip,
		"endpoint", endpoint,
		"categories", categories,
	)

	if d.notifier == nil {
		return report
	}
	if d.throttle != nil && !d.throttle.Allow(ip) {
		metrics.NotificationsSent.WithLabelValues("throttled").Inc()
		return report
	}
	d.notifier.Notify(d.alert(ip, endpoint, report))
	return report
}

func (d *Detector) alert(ip, endpoint string, report Report) notify.Alert {
	alert := notify.Alert{
		Time:     d.now(),
		IP:       ip,
		Endpoint: endpoint,
		Subject:  "Security alert: suspicious input from " + ip,
	}
	for _, c := range report.Flagged() {
		section := notify.Section{Category: string(c)}
		for _, f := range report[c] {
			section.Findings = append(section.Findings, notify.Finding{Field: f.Field, Value: f.Value})
		}
		alert.Sections = append(alert.Sections, section)
	}
	return alert
}
