package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sentra-ai/sentra/internal/detection"
	"github.com/sentra-ai/sentra/internal/suppress"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}

	switch cfg.Pipeline.DefaultMode {
	case "fast", "balanced", "thorough":
	default:
		return fmt.Errorf("pipeline.default_mode %q must be fast, balanced, or thorough", cfg.Pipeline.DefaultMode)
	}

	if cfg.Pipeline.SkipThreshold < 0 || cfg.Pipeline.SkipThreshold > 1 {
		return fmt.Errorf("pipeline.skip_threshold %f outside [0,1]", cfg.Pipeline.SkipThreshold)
	}
	if cfg.Pipeline.ConfidenceThreshold < 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold %f outside [0,1]", cfg.Pipeline.ConfidenceThreshold)
	}

	switch cfg.Pipeline.Strategy {
	case "voting", "legacy_boost":
	default:
		return fmt.Errorf("pipeline.strategy %q must be voting or legacy_boost", cfg.Pipeline.Strategy)
	}

	presets := cfg.ResolvePresets()
	if _, ok := presets[cfg.Pipeline.Preset]; !ok {
		return fmt.Errorf("pipeline.preset %q not defined", cfg.Pipeline.Preset)
	}
	for name, p := range presets {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
	}

	if b := cfg.Pipeline.Bands; b != nil {
		if !(b.Critical >= b.High && b.High >= b.Medium && b.Medium >= b.Low) {
			return fmt.Errorf("pipeline.bands must be non-increasing critical>=high>=medium>=low")
		}
	}

	for ruleID, action := range cfg.Policy.Rules {
		if _, ok := detection.ParseAction(action); !ok {
			return fmt.Errorf("policy.rules[%s]: unknown action %q", ruleID, action)
		}
	}
	for category, action := range cfg.Policy.Categories {
		if _, ok := detection.ParseAction(action); !ok {
			return fmt.Errorf("policy.categories[%s]: unknown action %q", category, action)
		}
	}
	for ruleID, entry := range cfg.Policy.Suppressions {
		switch suppress.Action(entry.Action) {
		case suppress.ActionSuppress, suppress.ActionFlag, suppress.ActionLog:
		default:
			return fmt.Errorf("policy.suppressions[%s]: unknown action %q", ruleID, entry.Action)
		}
	}

	for i, kw := range cfg.Plugins.Keywords {
		if strings.TrimSpace(kw.RuleID) == "" {
			return fmt.Errorf("plugins.keywords[%d]: rule_id must be set", i)
		}
		if kw.Severity != "" {
			if _, ok := detection.ParseSeverity(kw.Severity); !ok {
				return fmt.Errorf("plugins.keywords[%d]: unknown severity %q", i, kw.Severity)
			}
		}
		if len(kw.Terms) == 0 {
			return fmt.Errorf("plugins.keywords[%d]: terms must not be empty", i)
		}
	}

	if cfg.ML.Enabled && strings.TrimSpace(cfg.ML.BundleDir) == "" {
		return errors.New("ml.bundle_dir must be set when ml.enabled")
	}

	if cfg.Telemetry.Enabled {
		if strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
			return errors.New("telemetry.endpoint must be set when telemetry.enabled")
		}
		switch strings.ToLower(cfg.Telemetry.Protocol) {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol %q must be grpc or http", cfg.Telemetry.Protocol)
		}
	}

	return nil
}

// PolicyTable converts the config's string actions to a resolver table.
func (c *Config) PolicyTable() (map[string]detection.Action, map[string]detection.Action) {
	rules := make(map[string]detection.Action, len(c.Policy.Rules))
	for id, name := range c.Policy.Rules {
		if a, ok := detection.ParseAction(name); ok {
			rules[id] = a
		}
	}
	categories := make(map[string]detection.Action, len(c.Policy.Categories))
	for id, name := range c.Policy.Categories {
		if a, ok := detection.ParseAction(name); ok {
			categories[id] = a
		}
	}
	return rules, categories
}

// SuppressionPolicy converts config suppression entries to a policy snapshot.
func (c *Config) SuppressionPolicy() suppress.StaticPolicy {
	out := make(suppress.StaticPolicy, len(c.Policy.Suppressions))
	for id, e := range c.Policy.Suppressions {
		out[id] = suppress.Entry{Action: suppress.Action(e.Action), Reason: e.Reason}
	}
	return out
}
