package matcher

import (
	"context"
	"time"

	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/redact"
	"github.com/sentra-ai/sentra/internal/rules"
)

// Matcher runs the deterministic rule layer. It holds no per-scan state;
// one Matcher serves any number of concurrent scans.
type Matcher struct{}

func New() *Matcher {
	return &Matcher{}
}

type patternOutcome struct {
	loc      []int
	timedOut bool
}

// Match runs every rule in the snapshot against text. Rules are evaluated
// in pack order and detections come back in that order. A pattern that
// times out or panics contributes nothing and never aborts the scan; the
// rule still counts toward RulesChecked.
func (m *Matcher) Match(ctx context.Context, text string, snap *rules.Snapshot) detection.L1Result {
	start := time.Now()
	res := detection.L1Result{}
	if snap == nil || text == "" {
		res.Duration = time.Since(start)
		return res
	}

	for _, rule := range snap.Rules {
		res.RulesChecked++
		if ctx.Err() != nil {
			break
		}

		loc, timedOut := m.matchRule(text, rule)
		if timedOut {
			res.PatternTimeouts++
		}
		if loc == nil {
			continue
		}

		d := detection.Detection{
			RuleID:     rule.ID,
			Category:   rule.Category,
			Severity:   rule.Severity,
			Confidence: rule.Confidence,
			Layer:      detection.LayerL1,
			Start:      loc[0],
			End:        loc[1],
		}
		res.Detections = append(res.Detections, d)
		if !res.HasDetections || d.Severity > res.HighestSeverity {
			res.HighestSeverity = d.Severity
		}
		res.HasDetections = true
	}

	res.Duration = time.Since(start)
	return res
}

// matchRule tries each of the rule's patterns and returns the first match
// location. Patterns after the first hit are not evaluated.
func (m *Matcher) matchRule(text string, rule rules.Rule) (loc []int, timedOut bool) {
	for i := range rule.Patterns {
		out := runPattern(text, rule, i)
		if out.timedOut {
			timedOut = true
			redact.Warnf("matcher: pattern timeout rule=%s pattern=%d timeout=%v", rule.ID, i, rule.Patterns[i].Timeout)
			continue
		}
		if out.loc != nil {
			return out.loc, timedOut
		}
	}
	return nil, timedOut
}

// runPattern executes one pattern under its wall-clock budget. The match
// runs on its own goroutine so a pathological pattern can be abandoned;
// the straggler finishes on its own and its result is discarded. A panic
// inside the engine is confined to that goroutine.
func runPattern(text string, rule rules.Rule, idx int) patternOutcome {
	p := rule.Patterns[idx]
	done := make(chan []int, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				redact.Errorf("matcher: pattern panic rule=%s pattern=%d: %v", rule.ID, idx, r)
				done <- nil
			}
		}()
		done <- p.Regex.FindStringIndex(text)
	}()

	timer := time.NewTimer(p.Timeout)
	defer timer.Stop()

	select {
	case loc := <-done:
		return patternOutcome{loc: loc}
	case <-timer.C:
		return patternOutcome{timedOut: true}
	}
}
