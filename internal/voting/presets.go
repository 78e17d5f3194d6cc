package voting

import "fmt"

// Default preset values. These are starting points, not law: deployments
// override them through the presets section of the config file.

func defaultWeights() Weights {
	return Weights{Binary: 0.40, Family: 0.25, Severity: 0.15, Technique: 0.12, Harm: 0.08}
}

// BalancedPreset trades recall against precision evenly.
func BalancedPreset() Preset {
	return Preset{
		Name:            "balanced",
		ThreatThreshold: 0.50,
		ReviewThreshold: 0.30,
		Weights:         defaultWeights(),
		MinConfidence: MinConfidence{
			Binary: 0.60, Family: 0.55, Severity: 0.50, Technique: 0.50, Harm: 0.50,
		},
		FamilyOverrideConfidence: 0.90,
	}
}

// HighSecurityPreset lowers thresholds for more recall.
func HighSecurityPreset() Preset {
	return Preset{
		Name:            "high_security",
		ThreatThreshold: 0.40,
		ReviewThreshold: 0.20,
		Weights:         defaultWeights(),
		MinConfidence: MinConfidence{
			Binary: 0.50, Family: 0.45, Severity: 0.40, Technique: 0.40, Harm: 0.40,
		},
		FamilyOverrideConfidence: 0.85,
	}
}

// LowFPPreset raises thresholds for fewer false positives.
func LowFPPreset() Preset {
	return Preset{
		Name:            "low_fp",
		ThreatThreshold: 0.70,
		ReviewThreshold: 0.50,
		Weights:         defaultWeights(),
		MinConfidence: MinConfidence{
			Binary: 0.75, Family: 0.70, Severity: 0.65, Technique: 0.65, Harm: 0.65,
		},
		FamilyOverrideConfidence: 0.95,
	}
}

// DefaultPresets returns the built-in presets keyed by name.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"balanced":      BalancedPreset(),
		"high_security": HighSecurityPreset(),
		"low_fp":        LowFPPreset(),
	}
}

// Validate rejects presets that cannot produce a sane decision.
func (p Preset) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("preset missing name")
	}
	if p.ThreatThreshold < 0 || p.ThreatThreshold > 1 {
		return fmt.Errorf("preset %s: threat_threshold %f outside [0,1]", p.Name, p.ThreatThreshold)
	}
	if p.ReviewThreshold < 0 || p.ReviewThreshold > p.ThreatThreshold {
		return fmt.Errorf("preset %s: review_threshold %f must be in [0, threat_threshold]", p.Name, p.ReviewThreshold)
	}
	total := p.Weights.Binary + p.Weights.Family + p.Weights.Severity + p.Weights.Technique + p.Weights.Harm
	if total <= 0 {
		return fmt.Errorf("preset %s: voter weights sum to zero", p.Name)
	}
	return nil
}
