// Package config loads and validates the node configuration. The on-disk
// format keeps every amount as a decimal wei string (scientific notation
// allowed) so operators never encode 1e18-scaled mantissas by hand in TOML
// integer fields.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Config is the on-disk TOML layout.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	DataDir        string `toml:"DataDir"`
	Environment    string `toml:"Environment"`
	VerboseLogging bool   `toml:"VerboseLogging"`

	Controller ControllerConfig `toml:"Controller"`
	Markets    []MarketConfig   `toml:"Markets"`
}

// ControllerConfig seeds the risk-control core on first boot. It is ignored
// when a persisted snapshot exists.
type ControllerConfig struct {
	Address              string `toml:"Address"`
	Admin                string `toml:"Admin"`
	Guardian             string `toml:"Guardian"`
	CreditLimitManager   string `toml:"CreditLimitManager"`
	CloseFactor          string `toml:"CloseFactor"`
	LiquidationIncentive string `toml:"LiquidationIncentive"`
}

// MarketConfig seeds one market listing on first boot.
type MarketConfig struct {
	Address          string `toml:"Address"`
	CollateralFactor string `toml:"CollateralFactor"`
	Version          string `toml:"Version"`
	SupplyCap        string `toml:"SupplyCap"`
	BorrowCap        string `toml:"BorrowCap"`
}

// Load reads and decodes the configuration file. Unknown keys are rejected so
// a typo never silently disables a guardrail.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	return cfg.Normalise(), nil
}

// Normalise trims whitespace and applies defaults to a defensive copy.
func (c *Config) Normalise() *Config {
	cfg := *c
	cfg.ListenAddress = strings.TrimSpace(c.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8660"
	}
	cfg.DataDir = strings.TrimSpace(c.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "./bankcore-data"
	}
	cfg.Environment = strings.TrimSpace(c.Environment)
	cfg.Controller = c.Controller.normalise()
	cfg.Markets = make([]MarketConfig, 0, len(c.Markets))
	for _, m := range c.Markets {
		cfg.Markets = append(cfg.Markets, MarketConfig{
			Address:          strings.TrimSpace(m.Address),
			CollateralFactor: strings.TrimSpace(m.CollateralFactor),
			Version:          strings.ToLower(strings.TrimSpace(m.Version)),
			SupplyCap:        strings.TrimSpace(m.SupplyCap),
			BorrowCap:        strings.TrimSpace(m.BorrowCap),
		})
	}
	return &cfg
}

func (cc ControllerConfig) normalise() ControllerConfig {
	return ControllerConfig{
		Address:              strings.TrimSpace(cc.Address),
		Admin:                strings.TrimSpace(cc.Admin),
		Guardian:             strings.TrimSpace(cc.Guardian),
		CreditLimitManager:   strings.TrimSpace(cc.CreditLimitManager),
		CloseFactor:          strings.TrimSpace(cc.CloseFactor),
		LiquidationIncentive: strings.TrimSpace(cc.LiquidationIncentive),
	}
}

func parseAddress(field, value string, required bool) (common.Address, error) {
	if value == "" {
		if required {
			return common.Address{}, fmt.Errorf("config: %s is required", field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("config: %s is not a hex address: %q", field, value)
	}
	return common.HexToAddress(value), nil
}
