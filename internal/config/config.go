package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentra-ai/sentra/internal/voting"
)

// Config holds Sentra configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Rules     RulesConfig     `yaml:"rules"`
	ML        MLConfig        `yaml:"ml"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Policy    PolicyConfig    `yaml:"policy"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Audit     AuditConfig     `yaml:"audit"`
	Plugins   PluginsConfig   `yaml:"plugins"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // HTTP listen address, e.g. ":8080"

	// APIKeys, when non-empty, are the accepted bearer tokens for the
	// scan endpoints. Empty means no auth (local/dev deployments).
	APIKeys []string `yaml:"api_keys"`

	MaxRequestBodyBytes int64 `yaml:"max_request_body_bytes"`
	MaxBatchSize        int   `yaml:"max_batch_size"`
	MaxInFlightRequests int   `yaml:"max_in_flight_requests"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

type RulesConfig struct {
	PackPath string `yaml:"pack_path"`
	// Watch reloads the pack when the file changes (server mode only).
	Watch bool `yaml:"watch"`
}

type MLConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BundleDir string `yaml:"bundle_dir"`
	SeqLen    int    `yaml:"seq_len"`
	PoolSize  int    `yaml:"pool_size"`
}

// PipelineConfig tunes the scan orchestrator.
type PipelineConfig struct {
	// DefaultMode when a caller does not name one: fast | balanced | thorough.
	DefaultMode string `yaml:"default_mode"`
	// SkipThreshold: L1 critical detections at or above this confidence
	// skip L2 in sequential mode.
	SkipThreshold float64 `yaml:"skip_threshold"`
	// ConfidenceThreshold drops L1 detections below it before suppression.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// Strategy picks the decision rule: voting | legacy_boost.
	Strategy string `yaml:"strategy"`
	// Preset names the voting preset: balanced | high_security | low_fp,
	// or one defined under presets.
	Preset string `yaml:"preset"`
	// Presets overrides/extends the built-in voting presets.
	Presets map[string]voting.Preset `yaml:"presets"`
	// Bands override the confidence→severity mapping for synthetic L2
	// detections.
	Bands *BandsConfig `yaml:"bands"`
	// Parallel runs L1 and L2 concurrently with per-layer timeouts.
	Parallel    bool `yaml:"parallel"`
	L1TimeoutMs int  `yaml:"l1_timeout_ms"`
	L2TimeoutMs int  `yaml:"l2_timeout_ms"`
}

type BandsConfig struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
	Low      float64 `yaml:"low"`
}

// PolicyConfig is the response policy table plus suppression overrides.
type PolicyConfig struct {
	// Rules maps rule_id -> allow|log|flag|block.
	Rules map[string]string `yaml:"rules"`
	// Categories is the fallback by detection category.
	Categories map[string]string `yaml:"categories"`
	// Suppressions maps rule_id -> {action, reason}.
	Suppressions map[string]SuppressionEntry `yaml:"suppressions"`
}

type SuppressionEntry struct {
	Action string `yaml:"action"` // suppress | flag | log
	Reason string `yaml:"reason"`
}

// PluginsConfig enables the built-in plugin detectors.
type PluginsConfig struct {
	CredentialPaths bool            `yaml:"credential_paths"`
	Keywords        []KeywordPlugin `yaml:"keywords"`
}

type KeywordPlugin struct {
	RuleID     string   `yaml:"rule_id"`
	Category   string   `yaml:"category"`
	Severity   string   `yaml:"severity"` // info | low | medium | high | critical
	Confidence float64  `yaml:"confidence"`
	Terms      []string `yaml:"terms"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
}

type AuditConfig struct {
	FilePath   string            `yaml:"file_path"`
	WebhookURL string            `yaml:"webhook_url"`
	Headers    map[string]string `yaml:"headers"`
	QueueSize  int               `yaml:"queue_size"`
	Workers    int               `yaml:"workers"`
}

// Load reads configuration from a YAML file. A missing file yields the
// default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.MaxRequestBodyBytes == 0 {
		cfg.Server.MaxRequestBodyBytes = 1 << 20
	}
	if cfg.Server.MaxBatchSize == 0 {
		cfg.Server.MaxBatchSize = 100
	}
	if cfg.Server.MaxInFlightRequests == 0 {
		cfg.Server.MaxInFlightRequests = 256
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Rules.PackPath == "" {
		cfg.Rules.PackPath = "configs/rulepack.yaml"
	}
	if cfg.Pipeline.DefaultMode == "" {
		cfg.Pipeline.DefaultMode = "balanced"
	}
	if cfg.Pipeline.SkipThreshold == 0 {
		cfg.Pipeline.SkipThreshold = 0.7
	}
	if cfg.Pipeline.Strategy == "" {
		cfg.Pipeline.Strategy = "voting"
	}
	if cfg.Pipeline.Preset == "" {
		cfg.Pipeline.Preset = "balanced"
	}
	if cfg.Pipeline.L1TimeoutMs == 0 {
		cfg.Pipeline.L1TimeoutMs = 50
	}
	if cfg.Pipeline.L2TimeoutMs == 0 {
		cfg.Pipeline.L2TimeoutMs = 200
	}
	if cfg.ML.SeqLen == 0 {
		cfg.ML.SeqLen = 256
	}
	if cfg.ML.PoolSize == 0 {
		cfg.ML.PoolSize = 1
	}
	if cfg.Audit.QueueSize == 0 {
		cfg.Audit.QueueSize = 1000
	}
	if cfg.Audit.Workers == 0 {
		cfg.Audit.Workers = 1
	}
}

// ResolvePresets merges the built-in presets with config overrides; a
// config preset with a known name replaces the built-in one.
func (c *Config) ResolvePresets() map[string]voting.Preset {
	presets := voting.DefaultPresets()
	for name, p := range c.Pipeline.Presets {
		if p.Name == "" {
			p.Name = name
		}
		presets[name] = p
	}
	return presets
}
