package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sentra-ai/sentra/internal/detection"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr wrong: %s", cfg.Server.Addr)
	}
	if cfg.Pipeline.SkipThreshold != 0.7 {
		t.Fatalf("default skip threshold wrong: %f", cfg.Pipeline.SkipThreshold)
	}
	if cfg.Pipeline.Strategy != "voting" || cfg.Pipeline.Preset != "balanced" {
		t.Fatalf("default strategy/preset wrong: %s/%s", cfg.Pipeline.Strategy, cfg.Pipeline.Preset)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadAndValidate(t *testing.T) {
	content := `
server:
  addr: ":9090"
pipeline:
  default_mode: thorough
  skip_threshold: 0.8
  strategy: legacy_boost
  preset: low_fp
policy:
  rules:
    instruction_override_v1: block
  categories:
    jailbreak: flag
  suppressions:
    noisy_rule:
      action: suppress
      reason: known fp
telemetry:
  enabled: true
  endpoint: localhost:4317
  protocol: grpc
`
	path := filepath.Join(t.TempDir(), "sentra.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}

	rules, categories := cfg.PolicyTable()
	if rules["instruction_override_v1"] != detection.ActionBlock {
		t.Fatalf("policy rule not parsed: %+v", rules)
	}
	if categories["jailbreak"] != detection.ActionFlag {
		t.Fatalf("policy category not parsed: %+v", categories)
	}

	sp := cfg.SuppressionPolicy()
	if e, ok := sp.Check("noisy_rule"); !ok || e.Reason != "known fp" {
		t.Fatalf("suppression entry not converted: %+v", e)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Pipeline.DefaultMode = "turbo" },
		func(c *Config) { c.Pipeline.SkipThreshold = 1.5 },
		func(c *Config) { c.Pipeline.Strategy = "coinflip" },
		func(c *Config) { c.Pipeline.Preset = "nonexistent" },
		func(c *Config) { c.Policy.Rules = map[string]string{"r": "explode"} },
		func(c *Config) {
			c.Policy.Suppressions = map[string]SuppressionEntry{"r": {Action: "whatever"}}
		},
		func(c *Config) { c.ML.Enabled = true },
		func(c *Config) { c.Telemetry.Enabled = true },
		func(c *Config) {
			c.Pipeline.Bands = &BandsConfig{Critical: 0.5, High: 0.9, Medium: 0.7, Low: 0.5}
		},
	}
	for i, mutate := range cases {
		cfg := defaultConfig()
		mutate(cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestResolvePresetsOverride(t *testing.T) {
	content := `
pipeline:
  preset: strict
  presets:
    strict:
      threat_threshold: 0.6
      review_threshold: 0.4
      weights:
        binary: 0.5
        family: 0.5
`
	path := filepath.Join(t.TempDir(), "sentra.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	presets := cfg.ResolvePresets()
	p, ok := presets["strict"]
	if !ok {
		t.Fatalf("custom preset missing")
	}
	if p.Name != "strict" || p.ThreatThreshold != 0.6 {
		t.Fatalf("custom preset not filled: %+v", p)
	}
	if _, ok := presets["balanced"]; !ok {
		t.Fatalf("built-in presets must survive override merge")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
