package merge

import (
	"github.com/sentra-ai/sentra/internal/mlguard"
	"github.com/sentra-ai/sentra/internal/voting"
)

// DecisionStrategy turns the classifier heads into a decision. The two
// implementations are not equivalent and are never branched on inline;
// configuration picks one at startup.
type DecisionStrategy interface {
	Name() string
	Decide(h mlguard.HeadOutputs) voting.Result
}

// VotingStrategy delegates to the weighted ensemble.
type VotingStrategy struct {
	Preset voting.Preset
}

func (s VotingStrategy) Name() string { return "voting" }

func (s VotingStrategy) Decide(h mlguard.HeadOutputs) voting.Result {
	return voting.Vote(h, s.Preset)
}

// LegacyBoostStrategy is the pre-ensemble decision rule: the binary score
// carries the verdict, nudged upward when the family or harm heads agree.
// Kept for deployments that tuned thresholds against it.
type LegacyBoostStrategy struct {
	BlockThreshold float64
	WarnThreshold  float64
	FamilyBoost    float64
	HarmBoost      float64
}

// DefaultLegacyBoost mirrors the historical defaults.
func DefaultLegacyBoost() LegacyBoostStrategy {
	return LegacyBoostStrategy{
		BlockThreshold: 0.80,
		WarnThreshold:  0.60,
		FamilyBoost:    0.10,
		HarmBoost:      0.05,
	}
}

func (s LegacyBoostStrategy) Name() string { return "legacy_boost" }

func (s LegacyBoostStrategy) Decide(h mlguard.HeadOutputs) voting.Result {
	score := h.BinaryThreat
	if h.Family != "" && h.Family != voting.BenignFamily && h.FamilyConfidence >= 0.5 {
		score += s.FamilyBoost
	}
	if h.HarmMax >= 0.5 {
		score += s.HarmBoost
	}
	if score > 1 {
		score = 1
	}

	res := voting.Result{Preset: "legacy_boost", Confidence: score, WeightedRatio: score}
	switch {
	case score >= s.BlockThreshold:
		res.Decision = voting.DecisionThreat
	case score >= s.WarnThreshold:
		res.Decision = voting.DecisionReview
	default:
		res.Decision = voting.DecisionSafe
		res.Confidence = 1 - score
	}
	return res
}
