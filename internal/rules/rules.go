package rules

import (
	"fmt"
	"regexp"
	"time"

	"github.com/sentra-ai/sentra/internal/detection"
)

// Pattern is one compiled expression belonging to a rule, with its own
// match deadline.
type Pattern struct {
	Raw     string
	Regex   *regexp.Regexp
	Timeout time.Duration
}

// Rule is an immutable detection rule. Rules live for the whole process
// and are shared read-only across concurrent scans; the pipeline never
// mutates one.
type Rule struct {
	ID         string
	Version    string
	Family     string
	SubFamily  string
	Category   string
	Severity   detection.Severity
	Confidence float64
	Patterns   []Pattern
	Examples   []string
}

// Snapshot is a read-only, consistent view of the rule set. A scan holds
// exactly one snapshot for its whole duration; reloads swap the pointer,
// never the contents.
type Snapshot struct {
	PackID      string
	PackVersion string
	Rules       []Rule
	LoadedAt    time.Time
}

// Len reports the number of rules in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rules)
}

const defaultPatternTimeout = 100 * time.Millisecond

// compileRule validates and compiles one raw rule definition.
func compileRule(raw rawRule) (Rule, error) {
	if raw.ID == "" {
		return Rule{}, fmt.Errorf("rule missing id")
	}
	sev, ok := detection.ParseSeverity(raw.Severity)
	if !ok {
		return Rule{}, fmt.Errorf("rule %s: unknown severity %q", raw.ID, raw.Severity)
	}
	if len(raw.Patterns) == 0 {
		return Rule{}, fmt.Errorf("rule %s: no patterns", raw.ID)
	}

	patterns := make([]Pattern, 0, len(raw.Patterns))
	for i, rp := range raw.Patterns {
		expr := rp.Pattern
		if rp.Flags != "" {
			expr = "(?" + rp.Flags + ")" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s pattern %d: %w", raw.ID, i, err)
		}
		timeout := defaultPatternTimeout
		if rp.TimeoutMs > 0 {
			timeout = time.Duration(rp.TimeoutMs) * time.Millisecond
		}
		patterns = append(patterns, Pattern{Raw: rp.Pattern, Regex: re, Timeout: timeout})
	}

	category := raw.Category
	if category == "" {
		category = raw.Family
	}

	return Rule{
		ID:         raw.ID,
		Version:    raw.Version,
		Family:     raw.Family,
		SubFamily:  raw.SubFamily,
		Category:   category,
		Severity:   sev,
		Confidence: detection.ClampConfidence(raw.Confidence),
		Patterns:   patterns,
		Examples:   raw.Examples,
	}, nil
}
