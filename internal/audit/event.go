package audit

import (
	"time"

	"github.com/sentra-ai/sentra/internal/detection"
)

// Kind discriminates event payloads on the wire.
type Kind string

const (
	KindScan            Kind = "scan"
	KindSuppressionLog  Kind = "suppression_log"
	KindThreatDetection Kind = "threat_detection"
)

// ScanSummary is the per-scan payload. It carries the one-way text hash and
// counts only; the scanned text never appears in an event.
type ScanSummary struct {
	TextHash         string  `json:"text_hash"`
	Mode             string  `json:"mode"`
	Action           string  `json:"action"`
	ShouldBlock      bool    `json:"should_block"`
	CombinedSeverity string  `json:"combined_severity,omitempty"`
	L1Count          int     `json:"l1_count"`
	L2Count          int     `json:"l2_count"`
	PluginCount      int     `json:"plugin_count"`
	SuppressedCount  int     `json:"suppressed_count"`
	L2Skipped        bool    `json:"l2_skipped"`
	DurationMs       float64 `json:"duration_ms"`
}

// SuppressionLog is the payload for a LOG-actioned detection.
type SuppressionLog struct {
	RuleID   string `json:"rule_id"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Reason   string `json:"reason,omitempty"`
}

// Event is the canonical audit payload delivered to sinks.
type Event struct {
	Version     string          `json:"version"`
	Kind        Kind            `json:"kind"`
	EventID     string          `json:"event_id"`
	ScanID      string          `json:"scan_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Scan        *ScanSummary    `json:"scan,omitempty"`
	Suppression *SuppressionLog `json:"suppression,omitempty"`
}

// EventVersion is bumped when the payload shape changes.
const EventVersion = "1"

// NewScanEvent builds a scan event from a pipeline result.
func NewScanEvent(eventID string, res *detection.ScanPipelineResult) *Event {
	summary := &ScanSummary{
		TextHash:        res.TextHash,
		Mode:            res.Metadata.Mode,
		Action:          res.Decision.Action.String(),
		ShouldBlock:     res.Decision.ShouldBlock,
		L1Count:         res.Combined.L1Count,
		L2Count:         res.Combined.L2Count,
		PluginCount:     res.Combined.PluginCount,
		SuppressedCount: res.Combined.SuppressedCount,
		L2Skipped:       res.Metadata.L2Skipped,
		DurationMs:      float64(res.Duration.Microseconds()) / 1000.0,
	}
	if res.Combined.CombinedSeverity != nil {
		summary.CombinedSeverity = res.Combined.CombinedSeverity.String()
	}
	return &Event{
		Version:   EventVersion,
		Kind:      KindScan,
		EventID:   eventID,
		ScanID:    res.ScanID,
		Timestamp: time.Now().UTC(),
		Scan:      summary,
	}
}

// NewSuppressionEvent records one LOG-actioned detection.
func NewSuppressionEvent(eventID string, log SuppressionLog) *Event {
	return &Event{
		Version:     EventVersion,
		Kind:        KindSuppressionLog,
		EventID:     eventID,
		Timestamp:   time.Now().UTC(),
		Suppression: &log,
	}
}
