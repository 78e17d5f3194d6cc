package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sentra-ai/sentra/internal/audit"
	"github.com/sentra-ai/sentra/internal/config"
	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/merge"
	"github.com/sentra-ai/sentra/internal/mlguard"
	"github.com/sentra-ai/sentra/internal/pipeline"
	"github.com/sentra-ai/sentra/internal/plugins"
	"github.com/sentra-ai/sentra/internal/redact"
	"github.com/sentra-ai/sentra/internal/respolicy"
	"github.com/sentra-ai/sentra/internal/rules"
	"github.com/sentra-ai/sentra/internal/suppress"
	"github.com/sentra-ai/sentra/internal/telemetry"
)

// runtime is the assembled pipeline plus everything that needs a Close.
type runtime struct {
	cfg   *config.Config
	orch  *pipeline.Orchestrator
	pctx  *pipeline.Context
	model *mlguard.GuardModel
}

// buildRuntime loads config and wires the whole pipeline. withWatch also
// starts the rule-pack hot reloader; one-shot commands skip it.
func buildRuntime(ctx context.Context, cfgPath string, withWatch bool) (*runtime, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := redact.NewLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	redact.SetLogger(logger)

	registry, err := rules.NewRegistry(cfg.Rules.PackPath)
	if err != nil {
		return nil, fmt.Errorf("load rule pack: %w", err)
	}
	if withWatch && cfg.Rules.Watch {
		// Watch blocks until ctx cancellation; it gets its own goroutine
		// so startup proceeds to the listener.
		go func() {
			if err := registry.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				redact.Warnf("rule pack hot reload disabled: %v", err)
			}
		}()
	}

	var analyzer mlguard.Analyzer
	var model *mlguard.GuardModel
	if cfg.ML.Enabled {
		model, err = mlguard.LoadGuardModel(cfg.ML.BundleDir, mlguard.Options{
			SeqLen:   cfg.ML.SeqLen,
			PoolSize: cfg.ML.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("load guard model: %w", err)
		}
		analyzer = model
	}

	strategy, err := buildStrategy(cfg)
	if err != nil {
		return nil, err
	}

	bands := merge.DefaultBands()
	if b := cfg.Pipeline.Bands; b != nil {
		bands = merge.Bands{Critical: b.Critical, High: b.High, Medium: b.Medium, Low: b.Low}
	}

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "sentra",
		Version:  Version,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	emitter := buildEmitter(cfg)

	var sink suppress.AuditSink
	if emitter != nil {
		sink = audit.NewSuppressionRecorder(emitter)
	}

	ruleActions, categoryActions := cfg.PolicyTable()
	pctx := pipeline.NewContext(tel, emitter, nil)

	orch := pipeline.New(
		registry,
		analyzer,
		strategy,
		merge.NewMerger(bands),
		suppress.NewFilter(cfg.SuppressionPolicy(), sink),
		respolicy.NewResolver(respolicy.StaticTable{Rules: ruleActions, Categories: categoryActions}),
		buildPlugins(cfg),
		pctx,
		pipeline.Config{
			SkipThreshold:     cfg.Pipeline.SkipThreshold,
			DefaultConfidence: cfg.Pipeline.ConfidenceThreshold,
			Parallel:          cfg.Pipeline.Parallel,
			L1Timeout:         time.Duration(cfg.Pipeline.L1TimeoutMs) * time.Millisecond,
			L2Timeout:         time.Duration(cfg.Pipeline.L2TimeoutMs) * time.Millisecond,
			DefaultMode:       pipeline.Mode(cfg.Pipeline.DefaultMode),
		},
	)

	return &runtime{cfg: cfg, orch: orch, pctx: pctx, model: model}, nil
}

func buildStrategy(cfg *config.Config) (merge.DecisionStrategy, error) {
	switch cfg.Pipeline.Strategy {
	case "voting":
		presets := cfg.ResolvePresets()
		preset, ok := presets[cfg.Pipeline.Preset]
		if !ok {
			return nil, fmt.Errorf("unknown voting preset %q", cfg.Pipeline.Preset)
		}
		return merge.VotingStrategy{Preset: preset}, nil
	case "legacy_boost":
		return merge.DefaultLegacyBoost(), nil
	default:
		return nil, fmt.Errorf("unknown decision strategy %q", cfg.Pipeline.Strategy)
	}
}

func buildPlugins(cfg *config.Config) []pipeline.PluginDetector {
	var out []pipeline.PluginDetector
	if cfg.Plugins.CredentialPaths {
		out = append(out, plugins.CredentialPaths{})
	}
	for _, kw := range cfg.Plugins.Keywords {
		sev, _ := detection.ParseSeverity(kw.Severity)
		out = append(out, plugins.Keywords{
			RuleID:     kw.RuleID,
			Category:   kw.Category,
			Severity:   sev,
			Confidence: kw.Confidence,
			Terms:      kw.Terms,
		})
	}
	return out
}

func buildEmitter(cfg *config.Config) *audit.Emitter {
	var sinks []audit.Sink
	if cfg.Audit.FilePath != "" {
		fs, err := audit.NewFileSink(cfg.Audit.FilePath)
		if err != nil {
			redact.Warnf("audit file sink disabled: %v", err)
		} else {
			sinks = append(sinks, fs)
		}
	}
	if cfg.Audit.WebhookURL != "" {
		ws, err := audit.NewWebhookSink(cfg.Audit.WebhookURL, cfg.Audit.Headers, 0)
		if err != nil {
			redact.Warnf("audit webhook sink disabled: %v", err)
		} else {
			sinks = append(sinks, ws)
		}
	}
	if len(sinks) == 0 {
		return nil
	}
	return audit.NewEmitter(audit.EmitterConfig{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
	}, sinks)
}

func (rt *runtime) Close(ctx context.Context) {
	if rt.pctx != nil {
		rt.pctx.Close(ctx)
	}
	if rt.model != nil {
		rt.model.Close()
	}
}
