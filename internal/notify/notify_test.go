package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"pgregory.net/rapid"

	"github.com/codec-agences/admin-backend/internal/metrics"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type panickingMailer struct{}

func (panickingMailer) Send(context.Context, Message) error {
	panic("smtp client bug")
}

func TestSink_NotifyDelivers(t *testing.T) {
	mailer := &recordingMailer{}
	sink := NewSink(mailer, "admin@example.com", nil)

	sink.Notify(Alert{Subject: "IP blocked", IP: "10.0.0.1", Endpoint: "/api/auth/login", Message: "Too many requests"})
	sink.Wait()

	if mailer.count() != 1 {
		t.Fatalf("expected 1 message, got %d", mailer.count())
	}
	msg := mailer.messages[0]
	if msg.To != "admin@example.com" || msg.Subject != "IP blocked" {
		t.Errorf("unexpected message header: %+v", msg)
	}
	if !strings.Contains(msg.HTMLBody, "/api/auth/login") {
		t.Errorf("expected endpoint in body: %s", msg.HTMLBody)
	}
}

func TestSink_FailureIsSwallowed(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("relay down")}
	sink := NewSink(mailer, "admin@example.com", nil)

	// Deliver has no error return; reaching the assertion proves it did not panic.
	sink.Deliver(context.Background(), Alert{Subject: "x"})
	if mailer.count() != 0 {
		t.Fatalf("expected no recorded messages")
	}
}

func TestSink_PanicIsContained(t *testing.T) {
	sink := NewSink(panickingMailer{}, "admin@example.com", nil)
	failed := metrics.NotificationsSent.WithLabelValues("failed")
	before := testutil.ToFloat64(failed)

	sink.Notify(Alert{Subject: "IP blocked"})
	sink.Wait()

	if got := testutil.ToFloat64(failed) - before; got != 1 {
		t.Errorf("failed notifications increased by %v, want 1", got)
	}

	// the sink keeps working after a panicking delivery
	sink.Notify(Alert{Subject: "second"})
	sink.Wait()
}

func TestSink_RenderEscapesFindings(t *testing.T) {
	mailer := &recordingMailer{}
	sink := NewSink(mailer, "admin@example.com", nil)

	sink.Deliver(context.Background(), Alert{
		Subject: "Threat detected",
		Sections: []Section{{
			Category: "xss",
			Findings: []Finding{{Field: "username", Value: "<script>alert(1)</script>"}},
		}},
		Message: `<b onclick="x()">note</b>`,
	})

	body := mailer.messages[0].HTMLBody
	if strings.Contains(body, "<script>") {
		t.Errorf("finding value must be escaped: %s", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Errorf("expected escaped payload in body: %s", body)
	}
	if strings.Contains(body, "onclick") {
		t.Errorf("message fragment must be sanitized: %s", body)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", maxValueRunes+50)
	got := truncate(long)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != maxValueRunes+3 {
		t.Errorf("unexpected truncation length %d", len([]rune(got)))
	}
	if truncate("short") != "short" {
		t.Error("short values must pass through")
	}
}

// Feature: security-alerts, Property 2: One alert per key per window
//
// For any sequence of alert attempts for one key spaced inside the window,
// exactly the first is admitted.
func TestProperty2_ThrottleOncePerWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		th, err := NewThrottle(DefaultThrottleWindow, 16)
		if err != nil {
			t.Fatal(err)
		}
		th.WithClock(func() time.Time { return now })

		steps := rapid.SliceOfN(rapid.IntRange(0, 60), 1, 20).Draw(t, "minutes")
		admitted := 0
		for _, m := range steps {
			if th.Allow("10.0.0.1") {
				admitted++
			}
			now = now.Add(time.Duration(m) * time.Minute)
		}
		total := 0
		for _, m := range steps[:len(steps)-1] {
			total += m
		}
		if total < int((DefaultThrottleWindow).Minutes()) && admitted != 1 {
			t.Fatalf("expected exactly one admitted alert within window, got %d", admitted)
		}
	})
}

func TestThrottle_ReopensAfterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	th, _ := NewThrottle(24*time.Hour, 4)
	th.WithClock(func() time.Time { return now })

	if !th.Allow("a") {
		t.Fatal("first alert must be admitted")
	}
	now = now.Add(23 * time.Hour)
	if th.Allow("a") {
		t.Fatal("alert inside window must be suppressed")
	}
	if !th.Allow("b") {
		t.Fatal("other keys are independent")
	}
	now = now.Add(2 * time.Hour)
	if !th.Allow("a") {
		t.Fatal("alert after window must be admitted")
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	var gotAddr string
	var gotTo []string
	var gotMsg []byte
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: "25", From: "noreply@local"})
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, msg
		if a != nil {
			t.Error("expected no auth without username")
		}
		return nil
	}

	err := m.Send(context.Background(), Message{To: "a@x,b@x", Subject: "hi\r\nBcc: evil", HTMLBody: "<p>x</p>"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAddr != "mail.local:25" || len(gotTo) != 2 {
		t.Errorf("unexpected addr/to: %s %v", gotAddr, gotTo)
	}
	if strings.Contains(string(gotMsg), "\r\nBcc:") {
		t.Error("subject must not inject headers")
	}
}

func TestSMTPMailer_NoRecipient(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: "25"})
	if err := m.Send(context.Background(), Message{}); err == nil {
		t.Fatal("expected error without recipient")
	}
}
