package suppress

import (
	"context"
	"reflect"
	"testing"

	"github.com/sentra-ai/sentra/internal/detection"
)

type captureSink struct {
	records []AuditRecord
}

func (s *captureSink) Audit(_ context.Context, rec AuditRecord) {
	s.records = append(s.records, rec)
}

type panicSink struct{}

func (panicSink) Audit(context.Context, AuditRecord) { panic("sink exploded") }

func det(id string) detection.Detection {
	return detection.Detection{
		RuleID:     id,
		Category:   "jailbreak",
		Severity:   detection.SeverityHigh,
		Confidence: 0.9,
		Layer:      detection.LayerL1,
	}
}

func TestApplyActions(t *testing.T) {
	sink := &captureSink{}
	f := NewFilter(StaticPolicy{
		"drop_me": {Action: ActionSuppress, Reason: "known fp"},
		"flag_me": {Action: ActionFlag, Reason: "needs review"},
		"log_me":  {Action: ActionLog, Reason: "watching"},
	}, sink)

	in := []detection.Detection{det("drop_me"), det("flag_me"), det("log_me"), det("untouched")}
	out := f.Apply(context.Background(), in)

	if out.SuppressedCount != 1 || out.FlaggedCount != 1 || out.LoggedCount != 1 {
		t.Fatalf("counts wrong: %+v", out)
	}
	if len(out.Detections) != 3 {
		t.Fatalf("expected 3 survivors, got %d", len(out.Detections))
	}
	// Relative order preserved.
	ids := []string{out.Detections[0].RuleID, out.Detections[1].RuleID, out.Detections[2].RuleID}
	if !reflect.DeepEqual(ids, []string{"flag_me", "log_me", "untouched"}) {
		t.Fatalf("survivor order wrong: %v", ids)
	}
	if out.Detections[0].FlagReason != "needs review" {
		t.Fatalf("flag reason not attached: %+v", out.Detections[0])
	}
	if out.Detections[1].FlagReason != "" {
		t.Fatalf("log action must keep the detection unchanged")
	}
	if len(sink.records) != 1 || sink.records[0].RuleID != "log_me" {
		t.Fatalf("expected one audit record for log_me, got %+v", sink.records)
	}
}

func TestApplyIdempotent(t *testing.T) {
	f := NewFilter(StaticPolicy{
		"drop_me": {Action: ActionSuppress},
		"flag_me": {Action: ActionFlag, Reason: "r"},
	}, nil)

	in := []detection.Detection{det("drop_me"), det("flag_me"), det("plain")}
	first := f.Apply(context.Background(), in)
	second := f.Apply(context.Background(), first.Detections)

	if !reflect.DeepEqual(first.Detections, second.Detections) {
		t.Fatalf("re-applying the same policy must be a no-op on survivors:\n%+v\n%+v", first.Detections, second.Detections)
	}
	if second.SuppressedCount != 0 {
		t.Fatalf("nothing left to suppress on the second pass, got %d", second.SuppressedCount)
	}
}

func TestApplyNoPolicy(t *testing.T) {
	f := NewFilter(nil, nil)
	in := []detection.Detection{det("a"), det("b")}
	out := f.Apply(context.Background(), in)
	if len(out.Detections) != 2 || out.SuppressedCount != 0 {
		t.Fatalf("missing policy must pass everything through: %+v", out)
	}
}

func TestApplySinkPanicIsContained(t *testing.T) {
	f := NewFilter(StaticPolicy{"log_me": {Action: ActionLog}}, panicSink{})
	out := f.Apply(context.Background(), []detection.Detection{det("log_me")})
	if len(out.Detections) != 1 || out.LoggedCount != 1 {
		t.Fatalf("sink panic must not affect filtering: %+v", out)
	}
}

func TestApplyEmpty(t *testing.T) {
	f := NewFilter(StaticPolicy{}, nil)
	out := f.Apply(context.Background(), nil)
	if out.Detections != nil {
		t.Fatalf("expected nil survivors for empty input")
	}
}
