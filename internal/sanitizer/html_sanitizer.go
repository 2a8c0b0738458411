// Package sanitizer cleans HTML fragments before they are embedded in
// administrator alert emails.
package sanitizer

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer turns untrusted HTML into a fragment safe to embed verbatim
type HTMLSanitizer interface {
	Sanitize(html string) string
}

// AlertSanitizer allows basic inline formatting and drops everything else
type AlertSanitizer struct {
	policy *bluemonday.Policy
}

// NewAlertSanitizer creates a sanitizer for alert message fragments
func NewAlertSanitizer() *AlertSanitizer {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("p", "br", "strong", "b", "em", "i", "code", "ul", "li")
	policy.AllowStandardURLs()
	policy.AllowAttrs("href").OnElements("a")
	policy.RequireNoFollowOnLinks(true)

	return &AlertSanitizer{policy: policy}
}

// Sanitize strips scripts, event handlers and unknown elements
func (s *AlertSanitizer) Sanitize(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	return s.policy.Sanitize(html)
}
