package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/shellgame/internal/shuffle"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Game   GameSettings   `hcl:"game,block"`
	Wager  WagerSettings  `hcl:"wager,block"`
}

// ServerSettings contains listener-level configuration.
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
}

// GameSettings tunes the shuffle rounds.
type GameSettings struct {
	SlotCount        int    `hcl:"slot_count,optional"`
	SwapCount        int    `hcl:"swap_count,optional"`
	SwapDurationMs   int    `hcl:"swap_duration_ms,optional"`
	RevealDurationMs int    `hcl:"reveal_duration_ms,optional"`
	ResultDurationMs int    `hcl:"result_duration_ms,optional"`
	MarkPolicy       string `hcl:"mark_policy,optional"`
}

// WagerSettings tunes the wagering store and house payout.
type WagerSettings struct {
	StartingBalance  float64 `hcl:"starting_balance,optional"`
	Currency         string  `hcl:"currency,optional"`
	MinBetStep       float64 `hcl:"min_bet_step,optional"`
	PayoutMultiplier float64 `hcl:"payout_multiplier,optional"`
}

// DefaultConfig returns the standard three-cup, even-money game.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Game: GameSettings{
			SlotCount:        3,
			SwapCount:        8,
			SwapDurationMs:   300,
			RevealDurationMs: 900,
			ResultDurationMs: 1200,
			MarkPolicy:       "persist",
		},
		Wager: WagerSettings{
			StartingBalance:  1000,
			Currency:         "USD",
			MinBetStep:       10,
			PayoutMultiplier: 2,
		},
	}
}

// LoadConfig loads configuration from an HCL file over the defaults. An
// empty filename returns the defaults unchanged.
func LoadConfig(filename string) (*Config, error) {
	config := DefaultConfig()
	if filename == "" {
		return config, nil
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", filename)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config file: %s", diags.Error())
	}

	diags = gohcl.DecodeBody(file.Body, nil, config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode config file: %s", diags.Error())
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration for impossible values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Wager.StartingBalance < 0 {
		return fmt.Errorf("starting balance must not be negative, got %v", c.Wager.StartingBalance)
	}
	if c.Wager.MinBetStep <= 0 {
		return fmt.Errorf("min bet step must be positive, got %v", c.Wager.MinBetStep)
	}
	if c.Wager.PayoutMultiplier <= 0 {
		return fmt.Errorf("payout multiplier must be positive, got %v", c.Wager.PayoutMultiplier)
	}
	if _, err := c.GameConfig(); err != nil {
		return err
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// GameConfig converts the game settings into a shuffle.Config.
func (c *Config) GameConfig() (shuffle.Config, error) {
	policy, err := shuffle.ParseMarkPolicy(c.Game.MarkPolicy)
	if err != nil {
		return shuffle.Config{}, err
	}
	cfg := shuffle.Config{
		SlotCount:      c.Game.SlotCount,
		SwapCount:      c.Game.SwapCount,
		SwapDuration:   time.Duration(c.Game.SwapDurationMs) * time.Millisecond,
		RevealDuration: time.Duration(c.Game.RevealDurationMs) * time.Millisecond,
		ResultDuration: time.Duration(c.Game.ResultDurationMs) * time.Millisecond,
		MarkPolicy:     policy,
	}
	if err := cfg.Validate(); err != nil {
		return shuffle.Config{}, err
	}
	return cfg, nil
}
