package threat

import (
	"fmt"
	"regexp"
)

// Category names a class of injection attack
type Category string

const (
	SQLInjection     Category = "sqlInjection"
	XSS              Category = "xss"
	PathTraversal    Category = "pathTraversal"
	CommandInjection Category = "commandInjection"
	Overflow         Category = "overflow"
)

// PatternCategories are the categories tested by regular expressions, in report order
var PatternCategories = []Category{SQLInjection, XSS, PathTraversal, CommandInjection}

// DefaultMaxLength is the longest field value scanned for patterns
const DefaultMaxLength = 10000

// defaultRules is the source of DefaultPatterns. Every expression is compiled
// case-insensitive.
var defaultRules = map[Category][]string{
	SQLInjection: {
		`\b(select|delete)\b[\s\S]*\bfrom\b`,
		`\binsert\b[\s\S]*\binto\b`,
		`\bupdate\b[\s\S]*\bset\b`,
		`\b(drop|alter|create|truncate)\b[\s\S]*\b(table|database|schema)\b`,
		`\bunion\b[\s\S]*\bselect\b`,
		`\b(exec|execute)\b[\s\S]*\b(xp_|sp_)\w*`,
		`'\s*(or|and)\s*'?\w*'?\s*=`,
		`\b(or|and)\s+\d+\s*=\s*\d+`,
		`'`,
		`--|#|/\*|\*/`,
	},
	XSS: {
		`<\s*/?\s*script\b`,
		`javascript\s*:`,
		`\bon[a-z]+\s*=`,
		`&#x?[0-9a-f]+;?`,
		`\beval\s*\(`,
	},
	PathTraversal: {
		`\.\./`,
		`\.\.\\`,
		`~/`,
		`/(etc|proc|var|srv)/`,
		`\b[a-z]:\\`,
	},
	CommandInjection: {
		`[;|&` + "`" + `]`,
		`\$\(`,
		`[\r\n]`,
	},
}

// PatternSet is an immutable compiled rule table
type PatternSet struct {
	maxLength int
	rules     map[Category][]*regexp.Regexp
}

// NewPatternSet compiles rules into a PatternSet. Categories outside
// PatternCategories are rejected.
func NewPatternSet(maxLength int, rules map[Category][]string) (PatternSet, error) {
	known := make(map[Category]bool, len(PatternCategories))
	for _, c := range PatternCategories {
		known[c] = true
	}

	compiled := make(map[Category][]*regexp.Regexp, len(rules))
	for category, exprs := range rules {
		if !known[category] {
			return PatternSet{}, fmt.Errorf("unknown threat category %q", category)
		}
		for _, expr := range exprs {
			re, err := regexp.Compile(`(?i)` + expr)
			if err != nil {
				return PatternSet{}, fmt.Errorf("failed to compile %s pattern %q: %w", category, expr, err)
			}
			compiled[category] = append(compiled[category], re)
		}
	}
	return PatternSet{maxLength: maxLength, rules: compiled}, nil
}

var defaultPatterns = mustPatternSet(DefaultMaxLength, defaultRules)

// DefaultPatterns returns the built-in rule table
func DefaultPatterns() PatternSet {
	return defaultPatterns
}

// MaxLength is the overflow threshold in characters
func (p PatternSet) MaxLength() int {
	return p.maxLength
}

func (p PatternSet) matches(category Category, value string) bool {
	for _, re := range p.rules[category] {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

func mustPatternSet(maxLength int, rules map[Category][]string) PatternSet {
	set, err := NewPatternSet(maxLength, rules)
	if err != nil {
		panic(err)
	}
	return set
}
