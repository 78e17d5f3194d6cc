package detection

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity is the ordinal risk level attached to a detection.
// The set is closed; never compare severities by string.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"info", "low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityInfo || s > SeverityCritical {
		return "unknown"
	}
	return severityNames[s]
}

// ParseSeverity maps a config/rule-pack severity string to the enum.
func ParseSeverity(name string) (Severity, bool) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), true
		}
	}
	return SeverityInfo, false
}

// Severity travels as its name on the wire, as an ordinal in memory.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := ParseSeverity(name)
	if !ok {
		return fmt.Errorf("unknown severity %q", name)
	}
	*s = v
	return nil
}

// Layer identifies which detection layer produced a detection.
type Layer string

const (
	LayerL1     Layer = "l1"
	LayerL2     Layer = "l2"
	LayerPlugin Layer = "plugin"
)

// Action is the response a policy maps a detection to.
// Ordered by priority: a higher value always wins during resolution.
type Action int

const (
	ActionAllow Action = iota
	ActionLog
	ActionFlag
	ActionBlock
)

var actionNames = [...]string{"allow", "log", "flag", "block"}

func (a Action) String() string {
	if a < ActionAllow || a > ActionBlock {
		return "unknown"
	}
	return actionNames[a]
}

// ParseAction maps a policy-table action string to the enum.
func ParseAction(name string) (Action, bool) {
	for i, n := range actionNames {
		if n == name {
			return Action(i), true
		}
	}
	return ActionAllow, false
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := ParseAction(name)
	if !ok {
		return fmt.Errorf("unknown action %q", name)
	}
	*a = v
	return nil
}

// Detection is one evidence unit emitted by a layer during a single scan.
// It never carries the matched text itself, only byte offsets; raw input
// must not outlive the scan (see redact).
type Detection struct {
	RuleID     string   `json:"rule_id"`
	Category   string   `json:"category"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`
	Layer      Layer    `json:"layer"`
	Start      int      `json:"start,omitempty"`
	End        int      `json:"end,omitempty"`
	FlagReason string   `json:"flag_reason,omitempty"`
}

// ClampConfidence forces c into [0,1]. Detections created from external
// inputs (plugins, ML metadata) go through this before entering the pipeline.
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// L1Result is the RuleMatcher's output for one scan.
type L1Result struct {
	Detections      []Detection
	RulesChecked    int
	PatternTimeouts int
	HighestSeverity Severity
	HasDetections   bool
	Duration        time.Duration
}

// MaxSeverity returns the highest severity across ds, and false when ds is
// empty (combined severity is "null" with no survivors).
func MaxSeverity(ds []Detection) (Severity, bool) {
	if len(ds) == 0 {
		return SeverityInfo, false
	}
	max := ds[0].Severity
	for _, d := range ds[1:] {
		if d.Severity > max {
			max = d.Severity
		}
	}
	return max, true
}

// CombinedScanResult merges surviving L1 and L2 evidence.
type CombinedScanResult struct {
	Detections       []Detection `json:"detections"`
	CombinedSeverity *Severity   `json:"combined_severity,omitempty"`
	L1Count          int         `json:"l1_count"`
	L2Count          int         `json:"l2_count"`
	PluginCount      int         `json:"plugin_count"`
	SuppressedCount  int         `json:"suppressed_count"`
	FlaggedCount     int         `json:"flagged_count"`
	LoggedCount      int         `json:"logged_count"`
}

// PolicyDecision is the resolved response for a whole scan.
type PolicyDecision struct {
	Action      Action `json:"action"`
	ShouldBlock bool   `json:"should_block"`
	// TriggeredBy is the rule_id that settled the action, when one did.
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// ScanPipelineResult is the artifact returned to the caller. Created per
// call, owned by the caller, discarded after telemetry emission.
type ScanPipelineResult struct {
	ScanID   string             `json:"scan_id"`
	Combined CombinedScanResult `json:"combined"`
	Decision PolicyDecision     `json:"decision"`
	Duration time.Duration      `json:"duration"`
	// TextHash is a one-way SHA-256 of the input, the only trace of the
	// scanned text that leaves the pipeline.
	TextHash string       `json:"text_hash"`
	Metadata ScanMetadata `json:"metadata"`
}

// ScanMetadata records how the scan degraded or short-circuited.
type ScanMetadata struct {
	Mode          string `json:"mode"`
	L1Enabled     bool   `json:"l1_enabled"`
	L2Enabled     bool   `json:"l2_enabled"`
	L2Skipped     bool   `json:"l2_skipped"`
	L2SkipReason  string `json:"l2_skip_reason,omitempty"`
	L1TimedOut    bool   `json:"l1_timed_out,omitempty"`
	L2TimedOut    bool   `json:"l2_timed_out,omitempty"`
	VotingDecided string `json:"voting_decided,omitempty"`
}
