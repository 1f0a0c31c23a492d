package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// StrategyFile is the optional YAML overlay for strategy and candidate parameters.
// Unset keys keep the value loaded from the environment.
type StrategyFile struct {
	ReferenceSymbol     *string  `yaml:"reference_symbol"`
	ReferenceInterval   *string  `yaml:"reference_interval"`
	CandidateInterval   *string  `yaml:"candidate_interval"`
	MinQuoteVolume      *float64 `yaml:"min_quote_volume"`
	MaxCandidates       *int     `yaml:"max_candidates"`
	Blacklist           []string `yaml:"blacklist"`
	CooldownMinutes     *int     `yaml:"cooldown_minutes"`
	MaxOpenPositions    *int     `yaml:"max_open_positions"`
	NotionalPerEntry    *float64 `yaml:"notional_per_entry"`
	EntrySpreadPct      *float64 `yaml:"entry_spread_pct"`
	StopLossPct         *float64 `yaml:"stop_loss_pct"`
	TakeProfitPct       *float64 `yaml:"take_profit_pct"`
	MaxHoldBars         *int     `yaml:"max_hold_bars"`
	BatchSize           *int     `yaml:"batch_size"`
	EMAPeriod           *int     `yaml:"ema_period"`
	GlobalMode          *string  `yaml:"global_mode"`
	RSIPeriod           *int     `yaml:"rsi_period"`
	RSIOverbought       *float64 `yaml:"rsi_overbought"`
	RSIOversold         *float64 `yaml:"rsi_oversold"`
	RequireGlobalSignal *bool    `yaml:"require_global_signal"`
}

// LoadStrategyFile reads and parses a strategy YAML file.
func LoadStrategyFile(path string) (*StrategyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file StrategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func applyStrategyFile(cfg *Config, path string) error {
	file, err := LoadStrategyFile(path)
	if err != nil {
		return fmt.Errorf("invalid STRATEGY_CONFIG '%s': %v", path, err)
	}
	file.Apply(cfg)
	return nil
}

// Apply copies every set field onto cfg.
func (f *StrategyFile) Apply(cfg *Config) {
	setString(&cfg.ReferenceSymbol, f.ReferenceSymbol)
	setString(&cfg.ReferenceInterval, f.ReferenceInterval)
	setString(&cfg.CandidateInterval, f.CandidateInterval)
	setFloat(&cfg.MinQuoteVolume, f.MinQuoteVolume)
	setInt(&cfg.MaxCandidates, f.MaxCandidates)
	if f.Blacklist != nil {
		cfg.Blacklist = splitList(strings.Join(f.Blacklist, ","))
	}
	setInt(&cfg.CooldownMinutes, f.CooldownMinutes)
	setInt(&cfg.MaxOpenPositions, f.MaxOpenPositions)
	setFloat(&cfg.NotionalPerEntry, f.NotionalPerEntry)
	setFloat(&cfg.EntrySpreadPct, f.EntrySpreadPct)
	setFloat(&cfg.StopLossPct, f.StopLossPct)
	setFloat(&cfg.TakeProfitPct, f.TakeProfitPct)
	setInt(&cfg.MaxHoldBars, f.MaxHoldBars)
	setInt(&cfg.BatchSize, f.BatchSize)
	setInt(&cfg.StrategyEMAPeriod, f.EMAPeriod)
	if f.GlobalMode != nil {
		cfg.StrategyGlobalMode = strings.ToLower(*f.GlobalMode)
	}
	setInt(&cfg.StrategyRSIPeriod, f.RSIPeriod)
	setFloat(&cfg.StrategyRSIOverbought, f.RSIOverbought)
	setFloat(&cfg.StrategyRSIOversold, f.RSIOversold)
	if f.RequireGlobalSignal != nil {
		cfg.RequireGlobalSignal = *f.RequireGlobalSignal
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
