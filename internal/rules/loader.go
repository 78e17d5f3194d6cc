package rules

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentra-ai/sentra/internal/redact"
)

// Rule pack file layout. The pack is authored externally; this loader only
// compiles it into an immutable snapshot.
type rawPack struct {
	Pack    string    `yaml:"pack"`
	Version string    `yaml:"version"`
	Rules   []rawRule `yaml:"rules"`
}

type rawRule struct {
	ID         string       `yaml:"id"`
	Version    string       `yaml:"version"`
	Family     string       `yaml:"family"`
	SubFamily  string       `yaml:"sub_family"`
	Category   string       `yaml:"category"`
	Severity   string       `yaml:"severity"`
	Confidence float64      `yaml:"confidence"`
	Patterns   []rawPattern `yaml:"patterns"`
	Examples   []string     `yaml:"examples"`
}

type rawPattern struct {
	Pattern   string `yaml:"pattern"`
	Flags     string `yaml:"flags"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// LoadPack reads and compiles a YAML rule pack into a snapshot. A rule that
// fails to compile is skipped and logged; one bad rule must not take down
// the whole pack.
func LoadPack(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule pack: %w", err)
	}
	return ParsePack(data)
}

// ParsePack compiles rule pack bytes into a snapshot.
func ParsePack(data []byte) (*Snapshot, error) {
	var raw rawPack
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rule pack: %w", err)
	}
	if len(raw.Rules) == 0 {
		return nil, fmt.Errorf("rule pack %q has no rules", raw.Pack)
	}

	compiled := make([]Rule, 0, len(raw.Rules))
	for _, rr := range raw.Rules {
		rule, err := compileRule(rr)
		if err != nil {
			redact.Warnf("rules: skipping rule: %v", err)
			continue
		}
		compiled = append(compiled, rule)
	}
	if len(compiled) == 0 {
		return nil, fmt.Errorf("rule pack %q: no rule compiled", raw.Pack)
	}

	return &Snapshot{
		PackID:      raw.Pack,
		PackVersion: raw.Version,
		Rules:       compiled,
		LoadedAt:    time.Now(),
	}, nil
}
