package suppress

import (
	"context"
	"time"

	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/redact"
)

// Action is what a suppression entry does to a detection.
type Action string

const (
	ActionSuppress Action = "suppress"
	ActionFlag     Action = "flag"
	ActionLog      Action = "log"
)

// Entry is the policy's answer for one rule id.
type Entry struct {
	Action Action
	Reason string
}

// Policy is the user-controlled override source. Implementations must be
// read-only snapshots for the duration of a scan.
type Policy interface {
	// Check returns the entry for a rule id, or ok=false when the rule
	// has no override.
	Check(ruleID string) (Entry, bool)
}

// StaticPolicy is a map-backed policy; the standard snapshot handed to the
// pipeline after config load.
type StaticPolicy map[string]Entry

func (p StaticPolicy) Check(ruleID string) (Entry, bool) {
	e, ok := p[ruleID]
	return e, ok
}

// AuditRecord describes one LOG-actioned detection, delivered to the sink.
type AuditRecord struct {
	RuleID   string             `json:"rule_id"`
	Category string             `json:"category"`
	Severity detection.Severity `json:"severity"`
	Reason   string             `json:"reason,omitempty"`
	LoggedAt time.Time          `json:"logged_at"`
}

// AuditSink receives audit records. Delivery is best effort; errors are
// logged and never surface into the scan.
type AuditSink interface {
	Audit(ctx context.Context, rec AuditRecord)
}

// Outcome is the filter output: survivors in their original order plus the
// per-action counters.
type Outcome struct {
	Detections      []detection.Detection
	SuppressedCount int
	FlaggedCount    int
	LoggedCount     int
}

// Filter applies suppression entries to detections.
type Filter struct {
	policy Policy
	sink   AuditSink
}

func NewFilter(policy Policy, sink AuditSink) *Filter {
	return &Filter{policy: policy, sink: sink}
}

// Apply consults the policy per detection, independently. No entry passes
// the detection through untouched; suppress drops it; flag keeps it with
// the reason attached; log keeps it unchanged and emits one audit record.
// Survivor order matches input order, and re-applying the same policy to
// an already-filtered set changes nothing further except repeated audit
// records for log entries.
func (f *Filter) Apply(ctx context.Context, ds []detection.Detection) Outcome {
	out := Outcome{}
	if len(ds) == 0 {
		return out
	}
	out.Detections = make([]detection.Detection, 0, len(ds))

	for _, d := range ds {
		entry, ok := f.check(d.RuleID)
		if !ok {
			out.Detections = append(out.Detections, d)
			continue
		}
		switch entry.Action {
		case ActionSuppress:
			out.SuppressedCount++
		case ActionFlag:
			d.FlagReason = entry.Reason
			out.FlaggedCount++
			out.Detections = append(out.Detections, d)
		case ActionLog:
			out.LoggedCount++
			f.audit(ctx, d, entry.Reason)
			out.Detections = append(out.Detections, d)
		default:
			redact.Warnf("suppress: unknown action %q for rule=%s, passing through", entry.Action, d.RuleID)
			out.Detections = append(out.Detections, d)
		}
	}
	return out
}

func (f *Filter) check(ruleID string) (Entry, bool) {
	if f == nil || f.policy == nil {
		return Entry{}, false
	}
	return f.policy.Check(ruleID)
}

func (f *Filter) audit(ctx context.Context, d detection.Detection, reason string) {
	if f.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			redact.Errorf("suppress: audit sink panic: %v", r)
		}
	}()
	f.sink.Audit(ctx, AuditRecord{
		RuleID:   d.RuleID,
		Category: d.Category,
		Severity: d.Severity,
		Reason:   reason,
		LoggedAt: time.Now().UTC(),
	})
}
