package voting

import (
	"fmt"
	"slices"

	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/mlguard"
)

// Decision is the ensemble's verdict for one text.
type Decision string

const (
	DecisionThreat Decision = "threat"
	DecisionReview Decision = "review"
	DecisionSafe   Decision = "safe"
)

// BenignFamily is the family label the guard model emits for harmless text.
const BenignFamily = "benign"

// Weights assigns ensemble weight to each voter. The binary head carries
// the baseline signal and the highest weight; the multilabel harm head is
// the least precise and the lowest.
type Weights struct {
	Binary    float64 `yaml:"binary"`
	Family    float64 `yaml:"family"`
	Severity  float64 `yaml:"severity"`
	Technique float64 `yaml:"technique"`
	Harm      float64 `yaml:"harm"`
}

// MinConfidence is the per-voter floor below which a voter abstains.
type MinConfidence struct {
	Binary    float64 `yaml:"binary"`
	Family    float64 `yaml:"family"`
	Severity  float64 `yaml:"severity"`
	Technique float64 `yaml:"technique"`
	Harm      float64 `yaml:"harm"`
}

// Preset is one named voting configuration. Presets are immutable,
// process-lifetime configuration; Vote never mutates one.
type Preset struct {
	Name            string        `yaml:"name"`
	ThreatThreshold float64       `yaml:"threat_threshold"`
	ReviewThreshold float64       `yaml:"review_threshold"`
	Weights         Weights       `yaml:"weights"`
	MinConfidence   MinConfidence `yaml:"min_confidence"`
	// DeniedFamilies force a THREAT decision whenever the family head
	// predicts one of them, regardless of the weighted score.
	DeniedFamilies []string `yaml:"denied_families"`
	// FamilyOverrideConfidence: a family prediction at or above this
	// confidence that disagrees with a safe-leaning binary head forces
	// THREAT.
	FamilyOverrideConfidence float64 `yaml:"family_override_confidence"`
}

// Tally records how the voters split.
type Tally struct {
	Threat       int     `json:"threat"`
	Safe         int     `json:"safe"`
	Abstain      int     `json:"abstain"`
	ThreatWeight float64 `json:"threat_weight"`
	SafeWeight   float64 `json:"safe_weight"`
}

// Result is the ensemble outcome. Equal HeadOutputs and Preset always
// produce an equal Result.
type Result struct {
	Decision      Decision `json:"decision"`
	Confidence    float64  `json:"confidence"`
	Preset        string   `json:"preset"`
	TriggeredRule string   `json:"triggered_rule,omitempty"`
	Tally         Tally    `json:"tally"`
	WeightedRatio float64  `json:"weighted_ratio"`
}

type ballot int

const (
	voteAbstain ballot = iota
	voteThreat
	voteSafe
)

// Vote turns the classifier heads into a decision under the given preset.
// Pure: no I/O, no clock, no randomness.
func Vote(h mlguard.HeadOutputs, p Preset) Result {
	res := Result{Preset: p.Name}

	casts := []struct {
		name   string
		weight float64
		vote   ballot
	}{
		{"binary", p.Weights.Binary, binaryVote(h.BinaryThreat, p.MinConfidence.Binary)},
		{"family", p.Weights.Family, familyVote(h, p.MinConfidence.Family)},
		{"severity", p.Weights.Severity, severityVote(h, p.MinConfidence.Severity)},
		{"technique", p.Weights.Technique, techniqueVote(h, p.MinConfidence.Technique)},
		{"harm", p.Weights.Harm, binaryVote(h.HarmMax, p.MinConfidence.Harm)},
	}

	for _, c := range casts {
		switch c.vote {
		case voteThreat:
			res.Tally.Threat++
			res.Tally.ThreatWeight += c.weight
		case voteSafe:
			res.Tally.Safe++
			res.Tally.SafeWeight += c.weight
		default:
			res.Tally.Abstain++
		}
	}

	total := res.Tally.ThreatWeight + res.Tally.SafeWeight
	if total > 0 {
		res.WeightedRatio = res.Tally.ThreatWeight / total
	}

	switch {
	case total > 0 && res.WeightedRatio >= p.ThreatThreshold:
		res.Decision = DecisionThreat
		res.Confidence = res.WeightedRatio
	case total > 0 && res.WeightedRatio >= p.ReviewThreshold:
		res.Decision = DecisionReview
		res.Confidence = res.WeightedRatio
	default:
		res.Decision = DecisionSafe
		res.Confidence = 1 - res.WeightedRatio
	}

	// Overrides run after scoring so the tally stays auditable; each one
	// records the label that fired.
	if h.Family != "" && slices.Contains(p.DeniedFamilies, h.Family) {
		res.Decision = DecisionThreat
		res.Confidence = detection.ClampConfidence(h.FamilyConfidence)
		res.TriggeredRule = fmt.Sprintf("family_denylist:%s", h.Family)
		return res
	}
	if p.FamilyOverrideConfidence > 0 &&
		h.Family != "" && h.Family != BenignFamily &&
		h.FamilyConfidence >= p.FamilyOverrideConfidence &&
		h.BinaryThreat < 0.5 &&
		res.Decision != DecisionThreat {
		res.Decision = DecisionThreat
		res.Confidence = detection.ClampConfidence(h.FamilyConfidence)
		res.TriggeredRule = fmt.Sprintf("family_override:%s", h.Family)
	}

	return res
}

// binaryVote treats prob as a threat probability: confident high values
// vote threat, confident low values vote safe, the middle abstains.
func binaryVote(prob, minConf float64) ballot {
	if prob >= minConf {
		return voteThreat
	}
	if 1-prob >= minConf {
		return voteSafe
	}
	return voteAbstain
}

func familyVote(h mlguard.HeadOutputs, minConf float64) ballot {
	if h.Family == "" || h.FamilyConfidence < minConf {
		return voteAbstain
	}
	if h.Family == BenignFamily {
		return voteSafe
	}
	return voteThreat
}

func severityVote(h mlguard.HeadOutputs, minConf float64) ballot {
	if h.SeverityConfidence < minConf {
		return voteAbstain
	}
	if h.Severity >= detection.SeverityMedium {
		return voteThreat
	}
	return voteSafe
}

func techniqueVote(h mlguard.HeadOutputs, minConf float64) ballot {
	if h.Technique == "" || h.Technique == "none" || h.TechniqueConfidence < minConf {
		return voteAbstain
	}
	return voteThreat
}
