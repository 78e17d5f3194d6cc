package voting

import (
	"reflect"
	"testing"

	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/mlguard"
)

func threatHeads() mlguard.HeadOutputs {
	return mlguard.HeadOutputs{
		BinaryThreat:        0.92,
		Family:              "jailbreak",
		FamilyConfidence:    0.88,
		Severity:            detection.SeverityHigh,
		SeverityConfidence:  0.80,
		Technique:           "roleplay",
		TechniqueConfidence: 0.75,
		HarmMax:             0.60,
	}
}

func safeHeads() mlguard.HeadOutputs {
	return mlguard.HeadOutputs{
		BinaryThreat:       0.05,
		Family:             BenignFamily,
		FamilyConfidence:   0.97,
		Severity:           detection.SeverityInfo,
		SeverityConfidence: 0.90,
		HarmMax:            0.02,
	}
}

func TestVoteThreatBalanced(t *testing.T) {
	res := Vote(threatHeads(), BalancedPreset())
	if res.Decision != DecisionThreat {
		t.Fatalf("expected threat, got %s (ratio %f)", res.Decision, res.WeightedRatio)
	}
	if res.Tally.Threat != 5 {
		t.Fatalf("expected all five voters to vote threat, tally %+v", res.Tally)
	}
	if res.WeightedRatio != 1.0 {
		t.Fatalf("expected ratio 1.0, got %f", res.WeightedRatio)
	}
	if res.Preset != "balanced" {
		t.Fatalf("preset name not recorded: %s", res.Preset)
	}
}

func TestVoteSafe(t *testing.T) {
	res := Vote(safeHeads(), BalancedPreset())
	if res.Decision != DecisionSafe {
		t.Fatalf("expected safe, got %s", res.Decision)
	}
	if res.Tally.Threat != 0 {
		t.Fatalf("no voter should vote threat on benign heads: %+v", res.Tally)
	}
}

func TestVoteReviewBand(t *testing.T) {
	// Only the harm voter leans threat; family leans safe, binary abstains.
	h := mlguard.HeadOutputs{
		BinaryThreat:     0.45, // abstains under balanced (0.6 floor both ways)
		Family:           BenignFamily,
		FamilyConfidence: 0.60,
		HarmMax:          0.55,
	}
	p := BalancedPreset()
	p.MinConfidence.Harm = 0.50
	res := Vote(h, p)
	// harm weight 0.08 vs family safe weight 0.25: ratio ~0.242 -> safe.
	if res.Decision != DecisionSafe {
		t.Fatalf("expected safe, got %s (ratio %f)", res.Decision, res.WeightedRatio)
	}

	// Push the ratio into the review band with a threat-leaning severity.
	h.Severity = detection.SeverityMedium
	h.SeverityConfidence = 0.70
	res = Vote(h, p)
	ratio := (0.08 + 0.15) / (0.08 + 0.15 + 0.25)
	if res.WeightedRatio < ratio-1e-9 || res.WeightedRatio > ratio+1e-9 {
		t.Fatalf("unexpected ratio %f, want %f", res.WeightedRatio, ratio)
	}
	if res.Decision != DecisionReview {
		t.Fatalf("expected review at ratio %f, got %s", res.WeightedRatio, res.Decision)
	}
}

func TestVoteAllAbstainIsSafe(t *testing.T) {
	h := mlguard.HeadOutputs{BinaryThreat: 0.5, FamilyConfidence: 0.1, SeverityConfidence: 0.1, HarmMax: 0.5}
	p := BalancedPreset()
	p.MinConfidence.Harm = 0.6
	res := Vote(h, p)
	if res.Tally.Abstain != 5 {
		t.Fatalf("expected full abstention, got %+v", res.Tally)
	}
	if res.Decision != DecisionSafe {
		t.Fatalf("full abstention must be safe, got %s", res.Decision)
	}
	if res.WeightedRatio != 0 {
		t.Fatalf("ratio should be 0 with no votes, got %f", res.WeightedRatio)
	}
}

func TestVoteDeniedFamilyOverride(t *testing.T) {
	h := safeHeads()
	h.Family = "self_harm_instructions"
	h.FamilyConfidence = 0.40 // below the family voter floor

	p := BalancedPreset()
	p.DeniedFamilies = []string{"self_harm_instructions"}

	res := Vote(h, p)
	if res.Decision != DecisionThreat {
		t.Fatalf("denied family must force threat, got %s", res.Decision)
	}
	if res.TriggeredRule != "family_denylist:self_harm_instructions" {
		t.Fatalf("override not recorded for audit: %q", res.TriggeredRule)
	}
}

func TestVoteFamilyDisagreementOverride(t *testing.T) {
	h := mlguard.HeadOutputs{
		BinaryThreat:     0.20, // binary leans safe
		Family:           "prompt_injection",
		FamilyConfidence: 0.95,
	}
	res := Vote(h, BalancedPreset())
	if res.Decision != DecisionThreat {
		t.Fatalf("high-confidence family disagreement must force threat, got %s", res.Decision)
	}
	if res.TriggeredRule != "family_override:prompt_injection" {
		t.Fatalf("override label missing: %q", res.TriggeredRule)
	}
}

func TestVoteDeterministic(t *testing.T) {
	h := threatHeads()
	p := HighSecurityPreset()
	r1 := Vote(h, p)
	r2 := Vote(h, p)
	if !reflect.DeepEqual(r1, r2) {
		t.Fatalf("vote is not deterministic:\n%+v\n%+v", r1, r2)
	}
}

func TestPresetRecallOrdering(t *testing.T) {
	// A borderline input: high_security should flag it, low_fp should not.
	h := mlguard.HeadOutputs{
		BinaryThreat:       0.55,
		Family:             "prompt_injection",
		FamilyConfidence:   0.50,
		Severity:           detection.SeverityMedium,
		SeverityConfidence: 0.45,
	}
	hs := Vote(h, HighSecurityPreset())
	lf := Vote(h, LowFPPreset())
	if hs.Decision != DecisionThreat {
		t.Fatalf("high_security should call threat on borderline input, got %s", hs.Decision)
	}
	if lf.Decision == DecisionThreat {
		t.Fatalf("low_fp should not call threat on borderline input")
	}
}

func TestPresetValidate(t *testing.T) {
	for name, p := range DefaultPresets() {
		if err := p.Validate(); err != nil {
			t.Fatalf("builtin preset %s invalid: %v", name, err)
		}
	}

	bad := BalancedPreset()
	bad.ReviewThreshold = 0.9
	if err := bad.Validate(); err == nil {
		t.Fatalf("review threshold above threat threshold must fail validation")
	}

	bad = BalancedPreset()
	bad.Weights = Weights{}
	if err := bad.Validate(); err == nil {
		t.Fatalf("zero weights must fail validation")
	}
}
