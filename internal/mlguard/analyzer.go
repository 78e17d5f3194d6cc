package mlguard

import (
	"context"
	"time"

	"github.com/sentra-ai/sentra/internal/detection"
)

// HeadOutputs is the raw signal from the classifier heads for one text.
// Confidences are post-softmax (or post-sigmoid for the harm head) and
// always in [0,1].
type HeadOutputs struct {
	// BinaryThreat is the probability of the text being a threat from the
	// binary head, the baseline signal.
	BinaryThreat float64 `json:"binary_threat"`

	Family           string  `json:"family"`
	FamilyConfidence float64 `json:"family_confidence"`

	Severity           detection.Severity `json:"severity"`
	SeverityConfidence float64            `json:"severity_confidence"`

	Technique           string  `json:"technique"`
	TechniqueConfidence float64 `json:"technique_confidence"`

	// HarmMax is the maximum probability over the multilabel harm head;
	// HarmLabels are the labels whose probability crossed the head's own
	// activation cutoff.
	HarmMax    float64  `json:"harm_max"`
	HarmLabels []string `json:"harm_labels,omitempty"`
}

// Prediction is one threat hypothesis from the ML layer.
type Prediction struct {
	ThreatType string      `json:"threat_type"`
	Confidence float64     `json:"confidence"`
	Heads      HeadOutputs `json:"heads"`
}

// Analysis is the complete L2 output for one scan.
type Analysis struct {
	Predictions    []Prediction  `json:"predictions"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Analyzer is the ML capability boundary. Implementations must be safe for
// concurrent use and must respect ctx cancellation; the orchestrator treats
// any returned error as a degradation, never a scan failure.
type Analyzer interface {
	Analyze(ctx context.Context, text string, l1 *detection.L1Result) (*Analysis, error)
}

// Fake is a deterministic analyzer for tests and for running the pipeline
// without a model bundle. It returns the same canned analysis for every
// input unless a Func is supplied.
type Fake struct {
	Result *Analysis
	Err    error
	// Func, when set, overrides Result per input.
	Func func(text string) (*Analysis, error)
}

func (f *Fake) Analyze(ctx context.Context, text string, l1 *detection.L1Result) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Func != nil {
		return f.Func(text)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result != nil {
		return f.Result, nil
	}
	return &Analysis{}, nil
}
