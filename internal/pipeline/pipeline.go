package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/sentra-ai/sentra/internal/audit"
	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/matcher"
	"github.com/sentra-ai/sentra/internal/merge"
	"github.com/sentra-ai/sentra/internal/mlguard"
	"github.com/sentra-ai/sentra/internal/redact"
	"github.com/sentra-ai/sentra/internal/respolicy"
	"github.com/sentra-ai/sentra/internal/rules"
	"github.com/sentra-ai/sentra/internal/suppress"
	"github.com/sentra-ai/sentra/internal/telemetry"
	"github.com/sentra-ai/sentra/internal/voting"
)

// Mode selects how much of the pipeline runs.
type Mode string

const (
	// ModeFast runs L1 only. Target latency <3ms.
	ModeFast Mode = "fast"
	// ModeBalanced honors the caller's layer flags. Target <10ms.
	ModeBalanced Mode = "balanced"
	// ModeThorough forces both layers. Target <100ms.
	ModeThorough Mode = "thorough"
)

// Validation failures are the only errors a scan surfaces; everything else
// degrades into result metadata.
var (
	ErrEmptyText   = errors.New("scan text is empty")
	ErrInvalidMode = errors.New("invalid scan mode")
)

// PluginDetector contributes detections under the same contract as L1:
// bounded work, detections with offsets only, errors isolated per plugin.
type PluginDetector interface {
	Name() string
	Detect(ctx context.Context, text string) ([]detection.Detection, error)
}

// Request describes one scan.
type Request struct {
	Text string
	Mode Mode
	// L1Enabled/L2Enabled apply in balanced mode; fast and thorough
	// override them.
	L1Enabled bool
	L2Enabled bool
	// ConfidenceThreshold drops L1 detections below it before suppression.
	// Zero defers to the configured default; a negative value explicitly
	// disables the filter even when a default is configured.
	ConfidenceThreshold float64
	// Context is optional caller metadata, attached to the scan span
	// after sensitive-key filtering.
	Context map[string]interface{}
}

// Config tunes the orchestrator. All fields are read once at construction.
type Config struct {
	SkipThreshold float64
	// DefaultConfidence applies when a request does not set its own
	// confidence threshold. Zero means no filtering.
	DefaultConfidence float64
	Parallel          bool
	L1Timeout         time.Duration
	L2Timeout         time.Duration
	DefaultMode       Mode
}

// Orchestrator sequences the scan layers. It holds only immutable,
// process-lifetime collaborators, so any number of scans may run
// concurrently against one instance; a scan's outcome depends only on its
// own input and this shared read-only configuration.
type Orchestrator struct {
	registry *rules.Registry
	matcher  *matcher.Matcher
	analyzer mlguard.Analyzer
	strategy merge.DecisionStrategy
	merger   *merge.Merger
	filter   *suppress.Filter
	resolver *respolicy.Resolver
	plugins  []PluginDetector
	pctx     *Context
	cfg      Config
}

// New assembles the orchestrator. analyzer may be nil (L2 requests then
// degrade to L1-only); pctx may be nil (no observability).
func New(
	registry *rules.Registry,
	analyzer mlguard.Analyzer,
	strategy merge.DecisionStrategy,
	merger *merge.Merger,
	filter *suppress.Filter,
	resolver *respolicy.Resolver,
	plugins []PluginDetector,
	pctx *Context,
	cfg Config,
) *Orchestrator {
	if cfg.SkipThreshold == 0 {
		cfg.SkipThreshold = 0.7
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeBalanced
	}
	if cfg.L1Timeout <= 0 {
		cfg.L1Timeout = 50 * time.Millisecond
	}
	if cfg.L2Timeout <= 0 {
		cfg.L2Timeout = 200 * time.Millisecond
	}
	return &Orchestrator{
		registry: registry,
		matcher:  matcher.New(),
		analyzer: analyzer,
		strategy: strategy,
		merger:   merger,
		filter:   filter,
		resolver: resolver,
		plugins:  plugins,
		pctx:     pctx,
		cfg:      cfg,
	}
}

// Scan runs the full pipeline over one text. The caller always receives a
// structured result or one of the two validation errors; no other failure
// escapes.
func (o *Orchestrator) Scan(ctx context.Context, req Request) (*detection.ScanPipelineResult, error) {
	start := time.Now()

	mode := req.Mode
	if mode == "" {
		mode = o.cfg.DefaultMode
	}
	l1Enabled, l2Enabled, err := resolveMode(mode, req.L1Enabled, req.L2Enabled)
	if err != nil {
		return nil, err
	}
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	scanID := uuid.NewString()
	meta := detection.ScanMetadata{
		Mode:      string(mode),
		L1Enabled: l1Enabled,
		L2Enabled: l2Enabled,
	}

	ctx, span := o.startSpan(ctx, req)
	defer span.End()
	o.pctx.fireStart(ctx, scanID)

	var l1 detection.L1Result
	var l2 *merge.L2Outcome

	if o.cfg.Parallel && l1Enabled && l2Enabled {
		l1, l2 = o.runParallel(ctx, req.Text, &meta)
		o.runPlugins(ctx, req.Text, &l1)
	} else {
		if l1Enabled {
			l1 = o.matcher.Match(ctx, req.Text, o.snapshot())
		}
		o.runPlugins(ctx, req.Text, &l1)

		switch {
		case !l2Enabled:
		case o.shouldSkipL2(l1):
			meta.L2Skipped = true
			meta.L2SkipReason = "l1_critical"
		default:
			l2 = o.runL2(ctx, req.Text, &l1, &meta)
		}
	}

	threshold := req.ConfidenceThreshold
	switch {
	case threshold < 0:
		threshold = 0
	case threshold == 0:
		threshold = o.cfg.DefaultConfidence
	}
	survivors := o.applyFilters(ctx, l1.Detections, threshold)
	combined := o.merger.Merge(survivors.Detections, l2)
	combined.SuppressedCount = survivors.SuppressedCount
	combined.FlaggedCount = survivors.FlaggedCount
	combined.LoggedCount = survivors.LoggedCount

	decision := o.resolver.Resolve(combined.Detections)
	if l2 != nil {
		meta.VotingDecided = string(l2.Decision.Decision)
	}

	res := &detection.ScanPipelineResult{
		ScanID:   scanID,
		Combined: combined,
		Decision: decision,
		Duration: time.Since(start),
		TextHash: HashText(req.Text),
		Metadata: meta,
	}

	o.emit(ctx, res, l2)
	return res, nil
}

// ScanBatch scans each text with the same request settings. One bad entry
// fails the whole batch before any scanning happens, keeping the batch
// all-or-nothing on validation.
func (o *Orchestrator) ScanBatch(ctx context.Context, texts []string, req Request) ([]*detection.ScanPipelineResult, error) {
	if _, _, err := resolveMode(orDefault(req.Mode, o.cfg.DefaultMode), req.L1Enabled, req.L2Enabled); err != nil {
		return nil, err
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("batch entry %d: %w", i, ErrEmptyText)
		}
	}

	out := make([]*detection.ScanPipelineResult, 0, len(texts))
	for _, t := range texts {
		r := req
		r.Text = t
		res, err := o.Scan(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

// HashText is the one-way hash attached to results and telemetry.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func orDefault(m, def Mode) Mode {
	if m == "" {
		return def
	}
	return m
}

func resolveMode(mode Mode, l1, l2 bool) (bool, bool, error) {
	switch mode {
	case ModeFast:
		return true, false, nil
	case ModeThorough:
		return true, true, nil
	case ModeBalanced:
		return l1, l2, nil
	default:
		return false, false, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func (o *Orchestrator) snapshot() *rules.Snapshot {
	if o.registry == nil {
		return nil
	}
	return o.registry.Snapshot()
}

// shouldSkipL2 is the fail-fast check: once a deterministic rule reached
// ceiling severity with enough confidence, ML inference adds latency but
// no decision value.
func (o *Orchestrator) shouldSkipL2(l1 detection.L1Result) bool {
	if !l1.HasDetections || l1.HighestSeverity != detection.SeverityCritical {
		return false
	}
	for _, d := range l1.Detections {
		if d.Layer == detection.LayerL1 && d.Severity == detection.SeverityCritical && d.Confidence >= o.cfg.SkipThreshold {
			return true
		}
	}
	return false
}

// runPlugins merges plugin detections into the L1 set under the L1
// contract. Each plugin is individually error-boundaried.
func (o *Orchestrator) runPlugins(ctx context.Context, text string, l1 *detection.L1Result) {
	for _, p := range o.plugins {
		ds := o.runPlugin(ctx, p, text)
		for _, d := range ds {
			d.Layer = detection.LayerPlugin
			d.Confidence = detection.ClampConfidence(d.Confidence)
			l1.Detections = append(l1.Detections, d)
			if !l1.HasDetections || d.Severity > l1.HighestSeverity {
				l1.HighestSeverity = d.Severity
			}
			l1.HasDetections = true
		}
	}
}

func (o *Orchestrator) runPlugin(ctx context.Context, p PluginDetector, text string) (ds []detection.Detection) {
	defer func() {
		if r := recover(); r != nil {
			redact.Errorf("pipeline: plugin %s panicked: %v", p.Name(), r)
			ds = nil
		}
	}()
	ds, err := p.Detect(ctx, text)
	if err != nil {
		redact.Warnf("pipeline: plugin %s failed: %v", p.Name(), err)
		return nil
	}
	return ds
}

// runL2 performs ML analysis and the decision strategy. Inference errors
// degrade the scan to L1-only and are recorded in metadata.
func (o *Orchestrator) runL2(ctx context.Context, text string, l1 *detection.L1Result, meta *detection.ScanMetadata) *merge.L2Outcome {
	if o.analyzer == nil {
		meta.L2Skipped = true
		meta.L2SkipReason = "analyzer_unavailable"
		return nil
	}
	analysis, err := o.analyzer.Analyze(ctx, text, l1)
	if err != nil {
		redact.Warnf("pipeline: l2 inference failed, degrading to l1-only: %v", err)
		meta.L2Skipped = true
		meta.L2SkipReason = "inference_error"
		return nil
	}
	return &merge.L2Outcome{
		Analysis: analysis,
		Decision: o.decide(analysis),
	}
}

func (o *Orchestrator) decide(analysis *mlguard.Analysis) voting.Result {
	if analysis == nil || len(analysis.Predictions) == 0 {
		return voting.Result{Decision: voting.DecisionSafe, Confidence: 1}
	}
	return o.strategy.Decide(analysis.Predictions[0].Heads)
}

// applyFilters runs the confidence filter then the suppression filter over
// the L1 ∪ plugin set. Order is preserved throughout.
func (o *Orchestrator) applyFilters(ctx context.Context, ds []detection.Detection, confidenceThreshold float64) suppress.Outcome {
	if confidenceThreshold > 0 {
		kept := ds[:0:0]
		for _, d := range ds {
			if d.Confidence >= confidenceThreshold {
				kept = append(kept, d)
			}
		}
		ds = kept
	}
	if o.filter == nil {
		return suppress.Outcome{Detections: ds}
	}
	return o.filter.Apply(ctx, ds)
}

// startSpan opens the scan span. Without telemetry it hands back a noop
// span, never one pulled from the caller's ctx: ending a span the caller
// owns is not this package's call to make.
func (o *Orchestrator) startSpan(ctx context.Context, req Request) (context.Context, trace.Span) {
	if o.pctx == nil || o.pctx.Telemetry == nil {
		return ctx, tracenoop.Span{}
	}
	ctx, span := o.pctx.Telemetry.Tracer().Start(ctx, "sentra.scan")
	span.SetAttributes(telemetry.SafeAttributes(req.Context)...)
	return ctx, span
}

// emit sends telemetry, audit events, and hooks. All best effort: nothing
// here can change or delay the returned result beyond the calls themselves,
// and every failure path only logs.
func (o *Orchestrator) emit(ctx context.Context, res *detection.ScanPipelineResult, l2 *merge.L2Outcome) {
	if o.pctx == nil {
		return
	}
	if o.pctx.Telemetry != nil {
		sample := telemetry.ScanSample{
			TextHash:   res.TextHash,
			Mode:       res.Metadata.Mode,
			Action:     res.Decision.Action.String(),
			L1Count:    res.Combined.L1Count,
			L2Count:    res.Combined.L2Count,
			L2Skipped:  res.Metadata.L2Skipped,
			DurationMs: float64(res.Duration.Microseconds()) / 1000.0,
		}
		if l2 != nil && l2.Analysis != nil {
			sample.L2LatencyMs = float64(l2.Analysis.ProcessingTime.Microseconds()) / 1000.0
		}
		if res.Combined.CombinedSeverity != nil {
			sample.Severity = res.Combined.CombinedSeverity.String()
		}
		o.pctx.Telemetry.TrackScan(sample)
	}
	if o.pctx.Audit != nil {
		o.pctx.Audit.Emit(audit.NewScanEvent(uuid.NewString(), res))
	}
	o.pctx.fireComplete(ctx, res)
}
