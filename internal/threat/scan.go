// Package threat scans request input for injection-style attack patterns.
//
// Scan is pure: it takes an immutable PatternSet and returns a Report. The
// Detector wraps it with metrics and a throttled administrator alert. Neither
// blocks a request; callers decide what a non-empty report means.
package threat

import (
	"sort"
	"unicode/utf8"
)

var reportOrder = []Category{SQLInjection, XSS, PathTraversal, CommandInjection, Overflow}

// Finding is one offending field
type Finding struct {
	Field string
	Value string
}

// Report maps every category to its findings. Categories without findings
// hold an empty, non-nil list.
type Report map[Category][]Finding

func newReport() Report {
	r := make(Report, len(reportOrder))
	for _, c := range reportOrder {
		r[c] = []Finding{}
	}
	return r
}

// Empty reports whether no category has a finding
func (r Report) Empty() bool {
	for _, findings := range r {
		if len(findings) > 0 {
			return false
		}
	}
	return true
}

// Flagged returns the categories with findings, in a stable order
func (r Report) Flagged() []Category {
	var out []Category
	for _, c := range reportOrder {
		if len(r[c]) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Scan tests every string-valued field against the pattern set. Fields
// longer than the set's maximum length are reported as overflow and not
// matched against any other category.
func Scan(set PatternSet, fields map[string]any) Report {
	report := newReport()

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := fields[name].(string)
		if !ok {
			continue
		}
		if utf8.RuneCountInString(value) > set.maxLength {
			report[Overflow] = append(report[Overflow], Finding{Field: name, Value: value})
			continue
		}
		for _, category := range PatternCategories {
			if set.matches(category, value) {
				report[category] = append(report[category], Finding{Field: name, Value: value})
			}
		}
	}
	return report
}

// ScanStrings is Scan for plain string maps such as query parameters
func ScanStrings(set PatternSet, fields map[string]string) Report {
	generic := make(map[string]any, len(fields))
	for k, v := range fields {
		generic[k] = v
	}
	return Scan(set, generic)
}
