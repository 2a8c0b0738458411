package threat

import (
	"context"
	"strings"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/codec-agences/admin-backend/internal/notify"
)

func TestScan_Categories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Category
	}{
		{"tautology", "1=1 OR '1'='1'", SQLInjection},
		{"select from", "SELECT password FROM users", SQLInjection},
		{"union select", "x union all select 1", SQLInjection},
		{"comment", "admin--", SQLInjection},
		{"numeric tautology", "x or 1=1", SQLInjection},
		{"script tag", "<script>alert(1)</script>", XSS},
		{"javascript scheme", "JavaScript:alert(1)", XSS},
		{"event handler", `<img src=x onerror=alert(1)>`, XSS},
		{"hex entity", "&#x3C;svg", XSS},
		{"eval", "eval(atob('x'))", XSS},
		{"dot dot slash", "../../etc/passwd", PathTraversal},
		{"backslash traversal", `..\..\boot.ini`, PathTraversal},
		{"home", "~/.ssh/id_rsa", PathTraversal},
		{"proc", "/proc/self/environ", PathTraversal},
		{"drive", `C:\windows\system32`, PathTraversal},
		{"semicolon", "a; rm -rf /", CommandInjection},
		{"pipe", "a | nc host 4444", CommandInjection},
		{"and chain", "a && whoami", CommandInjection},
		{"subshell", "$(id)", CommandInjection},
		{"backtick", "`id`", CommandInjection},
		{"newline", "alice\nroot", CommandInjection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Scan(DefaultPatterns(), map[string]any{"q": tt.input})
			if len(report[tt.want]) == 0 {
				t.Errorf("expected %s finding for %q, got %v", tt.want, tt.input, report)
			}
		})
	}
}

func TestScan_CleanInput(t *testing.T) {
	clean := []string{"alice", "Jean Dupont", "news 2024", "agence-presse", "Hello world"}
	for _, v := range clean {
		report := Scan(DefaultPatterns(), map[string]any{"username": v})
		if !report.Empty() {
			t.Errorf("expected no findings for %q, got %v", v, report.Flagged())
		}
	}
}

func TestScan_EmptyListsPresent(t *testing.T) {
	report := Scan(DefaultPatterns(), map[string]any{})
	for _, c := range []Category{SQLInjection, XSS, PathTraversal, CommandInjection, Overflow} {
		findings, ok := report[c]
		if !ok || findings == nil {
			t.Errorf("expected empty, non-nil list for %s", c)
		}
	}
}

func TestScan_OverflowExcludesOtherChecks(t *testing.T) {
	value := strings.Repeat("a", DefaultMaxLength-20) + "<script>' OR 1=1; ../"
	value += strings.Repeat("b", DefaultMaxLength+1-len(value))

	report := Scan(DefaultPatterns(), map[string]any{"q": value})

	if len(report[Overflow]) != 1 {
		t.Fatalf("expected one overflow finding, got %d", len(report[Overflow]))
	}
	for _, c := range PatternCategories {
		if len(report[c]) != 0 {
			t.Errorf("overflowing field must not be pattern checked, got %s", c)
		}
	}
}

func TestScan_ExactlyMaxLengthIsScanned(t *testing.T) {
	value := strings.Repeat("a", DefaultMaxLength-1) + "'"
	report := Scan(DefaultPatterns(), map[string]any{"q": value})
	if len(report[Overflow]) != 0 || len(report[SQLInjection]) != 1 {
		t.Fatalf("expected pattern check at the length limit, got %v", report.Flagged())
	}
}

func TestScan_SkipsNonStrings(t *testing.T) {
	report := Scan(DefaultPatterns(), map[string]any{
		"id":     42,
		"nested": map[string]any{"q": "' OR 1=1"},
		"flag":   true,
	})
	if !report.Empty() {
		t.Errorf("non-string fields must be skipped, got %v", report.Flagged())
	}
}

func TestNewPatternSet_Errors(t *testing.T) {
	if _, err := NewPatternSet(10, map[Category][]string{Overflow: {"x"}}); err == nil {
		t.Error("expected error for overflow rules")
	}
	if _, err := NewPatternSet(10, map[Category][]string{XSS: {"("}}); err == nil {
		t.Error("expected error for invalid regexp")
	}
}

func TestNewPatternSet_CustomRules(t *testing.T) {
	set, err := NewPatternSet(5, map[Category][]string{XSS: {"bad"}})
	if err != nil {
		t.Fatal(err)
	}
	if r := Scan(set, map[string]any{"a": "BAD"}); len(r[XSS]) != 1 {
		t.Error("custom rules must be case-insensitive")
	}
	if r := Scan(set, map[string]any{"a": "123456"}); len(r[Overflow]) != 1 {
		t.Error("custom max length must apply")
	}
}

// Feature: security-gate, Property 1: Overflow short-circuits pattern checks
//
// For any field longer than the limit, the report lists it under overflow
// only, whatever it contains.
func TestProperty1_OverflowShortCircuit(t *testing.T) {
	set, _ := NewPatternSet(64, defaultRules)

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SampledFrom([]string{"<script>", "' OR 1=1", "../", "; ls", ""}).Draw(t, "payload")
		pad := rapid.IntRange(65, 200).Draw(t, "length")
		value := payload + strings.Repeat("x", pad)

		report := Scan(set, map[string]any{"f": value})

		if len(report[Overflow]) != 1 {
			t.Fatalf("expected overflow for length %d", len([]rune(value)))
		}
		for _, c := range PatternCategories {
			if len(report[c]) != 0 {
				t.Fatalf("unexpected %s finding for overflowing field", c)
			}
		}
	})
}

// Feature: security-gate, Property 2: Findings name the offending field
func TestProperty2_FindingsReferenceInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		field := rapid.StringMatching(`[a-z]{1,10}`).Draw(t, "field")
		value := rapid.StringMatching(`[a-z]{0,10}<script>[a-z]{0,10}`).Draw(t, "value")

		report := Scan(DefaultPatterns(), map[string]any{field: value})

		if len(report[XSS]) != 1 || report[XSS][0].Field != field || report[XSS][0].Value != value {
			t.Fatalf("expected finding for %s=%q, got %v", field, value, report[XSS])
		}
	})
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *recordingNotifier) Notify(a notify.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func TestDetector_ThrottlesPerIP(t *testing.T) {
	notifier := &recordingNotifier{}
	throttle, _ := notify.NewThrottle(notify.DefaultThrottleWindow, 8)
	d := NewDetector(DefaultPatterns(), notifier, throttle, nil)

	ctx := context.Background()
	d.Inspect(ctx, "10.0.0.1", "/api/auth/login", map[string]any{"username": "' OR 1=1"})
	d.Inspect(ctx, "10.0.0.1", "/api/auth/login", map[string]any{"username": "<script>"})

	if len(notifier.alerts) != 1 {
		t.Fatalf("expected exactly one notification for one IP, got %d", len(notifier.alerts))
	}

	d.Inspect(ctx, "10.0.0.2", "/api/auth/login", map[string]any{"username": "<script>"})
	if len(notifier.alerts) != 2 {
		t.Fatalf("expected a notification for a second IP, got %d", len(notifier.alerts))
	}
	alert := notifier.alerts[0]
	if alert.IP != "10.0.0.1" || alert.Endpoint != "/api/auth/login" || len(alert.Sections) == 0 {
		t.Errorf("unexpected alert contents: %+v", alert)
	}
}

func TestDetector_CleanInputNoAlert(t *testing.T) {
	notifier := &recordingNotifier{}
	d := NewDetector(DefaultPatterns(), notifier, nil, nil)

	report := d.Inspect(context.Background(), "10.0.0.1", "/api/auth/login", map[string]any{"username": "alice"})
	if !report.Empty() || len(notifier.alerts) != 0 {
		t.Fatal("clean input must not raise an alert")
	}
}
