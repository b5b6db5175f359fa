package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/No-Gas-Labs/sui-flash-loan-dapp/gateway/ratelimit"
	"github.com/No-Gas-Labs/sui-flash-loan-dapp/ledger"
)

// Config captures the runtime settings for the flash-loan gateway.
type Config struct {
	ListenAddress string       `yaml:"listen"`
	Environment   string       `yaml:"environment"`
	DatabasePath  string       `yaml:"database_path"`
	Ledger        LedgerConfig `yaml:"ledger"`
	Gas           GasConfig    `yaml:"gas"`
	Limits        LimitsConfig `yaml:"limits"`
}

// LedgerConfig lists the node endpoints in priority order plus the retry
// policy applied to every ledger call.
type LedgerConfig struct {
	Endpoints        []string    `yaml:"endpoints"`
	RequestTimeoutMS int         `yaml:"request_timeout_ms"`
	Retry            RetryConfig `yaml:"retry"`
}

// RetryConfig mirrors ledger.RetryConfig in configuration form.
type RetryConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelayMS int     `yaml:"base_delay_ms"`
	MaxDelayMS  int     `yaml:"max_delay_ms"`
	Multiplier  float64 `yaml:"multiplier"`
	Jitter      *bool   `yaml:"jitter"`
}

// GasConfig bounds what the gateway will submit.
type GasConfig struct {
	Ceiling       uint64 `yaml:"ceiling"`
	MarginPercent uint64 `yaml:"margin_percent"`
}

// LimitsConfig carries the three admission gate tiers.
type LimitsConfig struct {
	Global    WindowLimit `yaml:"global"`
	Operation WindowLimit `yaml:"operation"`
	Identity  WindowLimit `yaml:"identity"`
}

// WindowLimit is one fixed window/limit pair.
type WindowLimit struct {
	Max           int64 `yaml:"max"`
	WindowSeconds int   `yaml:"window_seconds"`
}

// LoadConfig reads the YAML configuration from disk and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8080",
		DatabasePath:  "flash-gateway.db",
		Ledger: LedgerConfig{
			RequestTimeoutMS: 10_000,
		},
		Gas: GasConfig{
			Ceiling:       100_000,
			MarginPercent: 120,
		},
		Limits: LimitsConfig{
			Global:    WindowLimit{Max: 100, WindowSeconds: 60},
			Operation: WindowLimit{Max: 10, WindowSeconds: 60},
			Identity:  WindowLimit{Max: 5, WindowSeconds: 60},
		},
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	cfg.DatabasePath = strings.TrimSpace(cfg.DatabasePath)
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "flash-gateway.db"
	}
	cleaned := cfg.Ledger.Endpoints[:0]
	for _, endpoint := range cfg.Ledger.Endpoints {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	cfg.Ledger.Endpoints = cleaned
	if cfg.Ledger.RequestTimeoutMS <= 0 {
		cfg.Ledger.RequestTimeoutMS = 10_000
	}
	if cfg.Gas.MarginPercent == 0 {
		cfg.Gas.MarginPercent = 120
	}
}

func (cfg *Config) validate() error {
	if len(cfg.Ledger.Endpoints) == 0 {
		return fmt.Errorf("config: at least one ledger endpoint required")
	}
	if cfg.Gas.Ceiling == 0 {
		return fmt.Errorf("config: gas ceiling required")
	}
	if cfg.Gas.MarginPercent < 100 {
		return fmt.Errorf("config: gas margin below 100%% would under-budget submissions")
	}
	return nil
}

// RequestTimeout returns the per-call HTTP timeout.
func (cfg LedgerConfig) RequestTimeout() time.Duration {
	return time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
}

// RetryPolicy converts the configured retry settings into executor form.
func (cfg LedgerConfig) RetryPolicy() ledger.RetryConfig {
	policy := ledger.DefaultRetryConfig()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond
	}
	if cfg.Retry.MaxDelayMS > 0 {
		policy.MaxDelay = time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond
	}
	if cfg.Retry.Multiplier >= 1 {
		policy.Multiplier = cfg.Retry.Multiplier
	}
	if cfg.Retry.Jitter != nil {
		policy.Jitter = *cfg.Retry.Jitter
	}
	return policy
}

// GateConfig converts the configured windows into admission gate form.
func (cfg LimitsConfig) GateConfig() ratelimit.Config {
	return ratelimit.Config{
		Global:    cfg.Global.limit(),
		Operation: cfg.Operation.limit(),
		Identity:  cfg.Identity.limit(),
	}
}

func (w WindowLimit) limit() ratelimit.Limit {
	return ratelimit.Limit{
		Max:    w.Max,
		Window: time.Duration(w.WindowSeconds) * time.Second,
	}
}
