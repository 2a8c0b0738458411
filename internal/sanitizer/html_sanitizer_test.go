package sanitizer

import (
	"regexp"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// Feature: security-alerts, Property 1: Alert fragments never carry active content
//
// For any message fragment, the sanitized output SHALL contain no script
// element and no inline event handler.
func TestProperty1_AlertSanitization_ScriptRemoval(t *testing.T) {
	s := NewAlertSanitizer()
	scriptTag := regexp.MustCompile(`(?i)<script`)

	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringMatching(`[a-zA-Z0-9 ();=']{1,40}`).Draw(t, "content")
		before := rapid.StringMatching(`[a-zA-Z0-9 ]{0,20}`).Draw(t, "before")

		result := s.Sanitize(before + "<script>" + content + "</script>")

		if scriptTag.MatchString(result) {
			t.Fatalf("script tag survived: %s", result)
		}
	})
}

func TestProperty1_AlertSanitization_EventHandlerRemoval(t *testing.T) {
	s := NewAlertSanitizer()
	handlers := []string{"onclick", "onload", "onerror", "onmouseover", "onfocus"}

	rapid.Check(t, func(t *rapid.T) {
		handler := rapid.SampledFrom(handlers).Draw(t, "handler")
		text := rapid.StringMatching(`[a-zA-Z0-9 ]{1,20}`).Draw(t, "text")

		result := s.Sanitize(`<b ` + handler + `="alert(1)">` + text + `</b>`)

		if strings.Contains(strings.ToLower(result), handler) {
			t.Fatalf("event handler %s survived: %s", handler, result)
		}
	})
}

func TestSanitize_KeepsFormatting(t *testing.T) {
	s := NewAlertSanitizer()

	got := s.Sanitize("Account <strong>alice</strong> was blocked")
	if got != "Account <strong>alice</strong> was blocked" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestSanitize_EmptyInput(t *testing.T) {
	s := NewAlertSanitizer()
	if got := s.Sanitize("   "); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}
