package merge

import (
	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/mlguard"
	"github.com/sentra-ai/sentra/internal/voting"
)

// Bands map a prediction confidence to a synthetic-detection severity.
// The defaults are overridable configuration, not fixed law.
type Bands struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
	Low      float64 `yaml:"low"`
}

func DefaultBands() Bands {
	return Bands{Critical: 0.95, High: 0.85, Medium: 0.70, Low: 0.50}
}

// SeverityFor bands a confidence value.
func (b Bands) SeverityFor(conf float64) detection.Severity {
	switch {
	case conf >= b.Critical:
		return detection.SeverityCritical
	case conf >= b.High:
		return detection.SeverityHigh
	case conf >= b.Medium:
		return detection.SeverityMedium
	case conf >= b.Low:
		return detection.SeverityLow
	default:
		return detection.SeverityInfo
	}
}

// L2Outcome bundles the ML analysis with the decision reached over it.
type L2Outcome struct {
	Analysis *mlguard.Analysis
	Decision voting.Result
}

// Merger combines filtered L1 detections with the L2 outcome. Merge is a
// pure function of its inputs: no I/O, identical output for identical input.
type Merger struct {
	bands Bands
}

func NewMerger(bands Bands) *Merger {
	return &Merger{bands: bands}
}

// Merge maps each L2 prediction to a synthetic detection (when the decision
// is not safe), appends them after the surviving L1 set, and computes the
// combined severity as the max over everything that survived. A nil l2 and
// an empty l2 are equivalent.
func (m *Merger) Merge(l1 []detection.Detection, l2 *L2Outcome) detection.CombinedScanResult {
	out := detection.CombinedScanResult{}

	for _, d := range l1 {
		out.Detections = append(out.Detections, d)
		switch d.Layer {
		case detection.LayerPlugin:
			out.PluginCount++
		default:
			out.L1Count++
		}
	}

	if l2 != nil && l2.Analysis != nil && l2.Decision.Decision != voting.DecisionSafe {
		for _, pred := range l2.Analysis.Predictions {
			out.Detections = append(out.Detections, m.synthetic(pred))
			out.L2Count++
		}
	}

	if sev, ok := detection.MaxSeverity(out.Detections); ok {
		out.CombinedSeverity = &sev
	}
	return out
}

// synthetic builds the L2-mapped detection. It carries no text offsets:
// the ML layer sees the whole input, so there is nothing to point at, and
// the privacy invariant forbids carrying the text itself.
func (m *Merger) synthetic(pred mlguard.Prediction) detection.Detection {
	family := pred.ThreatType
	if family == "" {
		family = "unknown"
	}
	conf := detection.ClampConfidence(pred.Confidence)
	return detection.Detection{
		RuleID:     "l2-" + family,
		Category:   family,
		Severity:   m.bands.SeverityFor(conf),
		Confidence: conf,
		Layer:      detection.LayerL2,
	}
}
