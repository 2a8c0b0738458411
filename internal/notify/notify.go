// Package notify delivers best-effort administrator alerts. Delivery
// failures are logged and counted, never returned to the request path.
package notify

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/codec-agences/admin-backend/internal/metrics"
	"github.com/codec-agences/admin-backend/internal/sanitizer"
)

const (
	// maxValueRunes bounds how much of an offending value is quoted in an alert
	maxValueRunes = 200
	sendTimeout   = 30 * time.Second
)

// Finding is one offending input field
type Finding struct {
	Field string
	Value string
}

// Section groups findings under a category name
type Section struct {
	Category string
	Findings []Finding
}

// Alert is an advisory notification. Either Sections or Message carries the body.
type Alert struct {
	ID       string
	Time     time.Time
	IP       string
	Endpoint string
	Subject  string
	// Message is an HTML fragment; it is sanitized before rendering
	Message  string
	Sections []Section
}

// Message is what a Mailer sends
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Mailer sends one message synchronously
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Sink renders alerts and hands them to a Mailer
type Sink struct {
	mailer    Mailer
	to        string
	sanitizer sanitizer.HTMLSanitizer
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewSink creates a sink addressing every alert to the given recipient
func NewSink(mailer Mailer, to string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		mailer:    mailer,
		to:        to,
		sanitizer: sanitizer.NewAlertSanitizer(),
		logger:    logger,
	}
}

// Notify delivers the alert in the background
func (s *Sink) Notify(alert Alert) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				metrics.NotificationsSent.WithLabelValues("failed").Inc()
				s.logger.Error("alert delivery panicked", "subject", alert.Subject, "panic", rec)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		s.Deliver(ctx, alert)
	}()
}

// Deliver renders and sends the alert, waiting for the mailer
func (s *Sink) Deliver(ctx context.Context, alert Alert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Time.IsZero() {
		alert.Time = time.Now()
	}

	body, err := s.render(alert)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		s.logger.Error("failed to render alert", "alert_id", alert.ID, "error", err)
		return
	}

	err = s.mailer.Send(ctx, Message{To: s.to, Subject: alert.Subject, HTMLBody: body})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("failed").Inc()
		s.logger.Warn("failed to send alert",
			"alert_id", alert.ID,
			"subject", alert.Subject,
			"ip", alert.IP,
			"error", err,
		)
		return
	}

	metrics.NotificationsSent.WithLabelValues("sent").Inc()
	s.logger.Info("alert sent", "alert_id", alert.ID, "subject", alert.Subject, "ip", alert.IP)
}

// Wait blocks until every background delivery has finished
func (s *Sink) Wait() {
	s.wg.Wait()
}

var alertTemplate = template.Must(template.New("alert").Parse(`<h2>{{.Subject}}</h2>
<ul>
<li><strong>Time:</strong> {{.Time}}</li>
{{if .IP}}<li><strong>IP:</strong> {{.IP}}</li>{{end}}
{{if .Endpoint}}<li><strong>Endpoint:</strong> {{.Endpoint}}</li>{{end}}
<li><strong>Reference:</strong> {{.ID}}</li>
</ul>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{range .Sections}}<h3>{{.Category}}</h3>
<ul>{{range .Findings}}<li><code>{{.Field}}</code>: {{.Value}}</li>{{end}}</ul>
{{end}}`))

type alertView struct {
	ID       string
	Time     string
	IP       string
	Endpoint string
	Subject  string
	Message  template.HTML
	Sections []Section
}

func (s *Sink) render(alert Alert) (string, error) {
	view := alertView{
		ID:       alert.ID,
		Time:     alert.Time.UTC().Format(time.RFC3339),
		IP:       alert.IP,
		Endpoint: alert.Endpoint,
		Subject:  alert.Subject,
		Message:  template.HTML(s.sanitizer.Sanitize(alert.Message)),
	}
	for _, sec := range alert.Sections {
		out := Section{Category: sec.Category}
		for _, f := range sec.Findings {
			out.Findings = append(out.Findings, Finding{Field: f.Field, Value: truncate(f.Value)})
		}
		view.Sections = append(view.Sections, out)
	}

	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxValueRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxValueRunes]) + "..."
}
