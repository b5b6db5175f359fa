package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the node's runtime settings.
type Config struct {
	RPCAddress    string        `toml:"RPCAddress"`
	DataDir       string        `toml:"DataDir"`
	NetworkName   string        `toml:"NetworkName"`
	FeeCeilingBps uint64        `toml:"FeeCeilingBps"`
	GenesisPools  []GenesisPool `toml:"GenesisPools"`
}

// GenesisPool seeds a pool at first boot so a fresh network starts with
// usable liquidity.
type GenesisPool struct {
	ID            string `toml:"ID"`
	Owner         string `toml:"Owner"`
	Deposit       string `toml:"Deposit"`
	FeeRateBps    uint64 `toml:"FeeRateBps"`
	MaxLoanAmount string `toml:"MaxLoanAmount"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:  ":8645",
		DataDir:     "./data",
		NetworkName: "flashnet-local",
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.RPCAddress = strings.TrimSpace(cfg.RPCAddress)
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.NetworkName = strings.TrimSpace(cfg.NetworkName)
	if cfg.RPCAddress == "" {
		cfg.RPCAddress = ":8645"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
}

// Validate checks the configuration for values the node cannot start with.
func (cfg *Config) Validate() error {
	for i := range cfg.GenesisPools {
		pool := &cfg.GenesisPools[i]
		if strings.TrimSpace(pool.Owner) == "" {
			return fmt.Errorf("config: genesis pool %d: owner required", i)
		}
		deposit, ok := new(big.Int).SetString(strings.TrimSpace(pool.Deposit), 10)
		if !ok || deposit.Sign() <= 0 {
			return fmt.Errorf("config: genesis pool %d: invalid deposit %q", i, pool.Deposit)
		}
		if trimmed := strings.TrimSpace(pool.MaxLoanAmount); trimmed != "" {
			if _, ok := new(big.Int).SetString(trimmed, 10); !ok {
				return fmt.Errorf("config: genesis pool %d: invalid max loan %q", i, pool.MaxLoanAmount)
			}
		}
	}
	return nil
}
