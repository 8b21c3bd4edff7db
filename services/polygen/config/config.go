// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates polygen run configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/polygen/services/polygen/budget"
	"github.com/AleutianAI/polygen/services/polygen/mcts"
	"github.com/AleutianAI/polygen/services/polygen/oracle"
	"github.com/AleutianAI/polygen/services/polygen/payload"
	"github.com/AleutianAI/polygen/services/polygen/strategy"
	"github.com/AleutianAI/polygen/services/polygen/tokens"
)

// ErrNeverTerminates is returned when neither simulations nor oracle calls
// are bounded.
var ErrNeverTerminates = errors.New("simulations_per_action and call_budget cannot both be infinite")

const (
	OracleLocal  = "local"
	OracleRemote = "remote"
)

// DefaultCallBudget bounds oracle calls per try, since simulations are
// unbounded by default.
const DefaultCallBudget = 10000

// RunConfig is the full configuration of a discovery run.
type RunConfig struct {
	Strategy string `json:"strategy" yaml:"strategy" validate:"required"`

	// Grammar is a built-in grammar name or a grammar file path.
	Grammar string `json:"grammar" yaml:"grammar" validate:"required"`

	Terminal string `json:"terminal" yaml:"terminal" validate:"required"`
	Win      string `json:"win" yaml:"win" validate:"required"`

	MaxGenerationTries int `json:"max_generation_tries" yaml:"max_generation_tries" validate:"min=1"`
	MaxRootDepth       int `json:"max_root_depth" yaml:"max_root_depth" validate:"min=1"`
	MaxPayloadLength   int `json:"max_payload_length" yaml:"max_payload_length" validate:"min=1"`

	SimulationsPerAction budget.Limit `json:"simulations_per_action" yaml:"simulations_per_action"`
	CallBudget           budget.Limit `json:"call_budget" yaml:"call_budget"`

	Exploration       float64 `json:"exploration" yaml:"exploration" validate:"gt=0"`
	RolloutCandidates int     `json:"rollout_candidates" yaml:"rollout_candidates" validate:"min=1"`

	// Seed seeds the random source. Zero seeds from the clock.
	Seed int64 `json:"seed" yaml:"seed"`

	QLearning     strategy.QParams    `json:"q_learning" yaml:"q_learning"`
	Oracle        OracleConfig        `json:"oracle" yaml:"oracle"`
	Store         StoreConfig         `json:"store" yaml:"store"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// OracleConfig selects and tunes the oracle.
type OracleConfig struct {
	Kind          string        `json:"kind" yaml:"kind" validate:"oneof=local remote"`
	BaseURL       string        `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Concurrency   int           `json:"concurrency" yaml:"concurrency" validate:"min=1"`
	RatePerSecond float64       `json:"rate_per_second" yaml:"rate_per_second" validate:"gte=0"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
}

// StoreConfig locates the run store.
type StoreConfig struct {
	// Path is the badger directory. Empty keeps runs in memory only.
	Path string `json:"path" yaml:"path"`
}

// ObservabilityConfig contains logging, tracing and metrics settings.
type ObservabilityConfig struct {
	TracingEnabled bool   `json:"tracing_enabled" yaml:"tracing_enabled"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	LogLevel       string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string `json:"log_format" yaml:"log_format" validate:"oneof=text json"`
	ServiceName    string `json:"service_name" yaml:"service_name" validate:"required"`
}

// Default returns the configuration used when nothing is overridden.
func Default() RunConfig {
	return RunConfig{
		Strategy:             string(strategy.KindMCTS),
		Grammar:              tokens.GrammarXSS,
		Terminal:             payload.StringLength.String(),
		Win:                  payload.WinSum.String(),
		MaxGenerationTries:   10,
		MaxRootDepth:         12,
		MaxPayloadLength:     400,
		SimulationsPerAction: budget.Unbounded,
		CallBudget:           budget.Of(DefaultCallBudget),
		Exploration:          math.Sqrt2,
		RolloutCandidates:    payload.DefaultCandidates,
		QLearning:            strategy.DefaultQParams(),
		Oracle: OracleConfig{
			Kind:        OracleLocal,
			Concurrency: 4,
			Timeout:     10 * time.Second,
		},
		Observability: ObservabilityConfig{
			TracingEnabled: false,
			MetricsEnabled: true,
			LogLevel:       "info",
			LogFormat:      "text",
			ServiceName:    "polygen",
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//
//	path - YAML or JSON config file. Empty or missing uses defaults.
//
// Outputs:
//
//	RunConfig - Merged configuration.
//	error - Non-nil if the file is invalid or validation fails.
func Load(path string) (RunConfig, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *RunConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// loadEnv applies POLYGEN_* overrides. Malformed numbers are ignored,
// malformed limits are errors.
func loadEnv(cfg *RunConfig) error {
	setString("POLYGEN_STRATEGY", &cfg.Strategy)
	setString("POLYGEN_GRAMMAR", &cfg.Grammar)
	setString("POLYGEN_TERMINAL", &cfg.Terminal)
	setString("POLYGEN_WIN", &cfg.Win)
	setInt("POLYGEN_MAX_GENERATION_TRIES", &cfg.MaxGenerationTries)
	setInt("POLYGEN_MAX_ROOT_DEPTH", &cfg.MaxRootDepth)
	setInt("POLYGEN_MAX_PAYLOAD_LENGTH", &cfg.MaxPayloadLength)
	setInt("POLYGEN_ROLLOUT_CANDIDATES", &cfg.RolloutCandidates)
	setFloat("POLYGEN_EXPLORATION", &cfg.Exploration)

	if v := os.Getenv("POLYGEN_SEED"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = i
		}
	}

	for name, l := range map[string]*budget.Limit{
		"POLYGEN_SIMULATIONS_PER_ACTION": &cfg.SimulationsPerAction,
		"POLYGEN_CALL_BUDGET":            &cfg.CallBudget,
	} {
		if v := os.Getenv(name); v != "" {
			parsed, err := budget.ParseLimit(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*l = parsed
		}
	}

	// Oracle
	setString("POLYGEN_ORACLE", &cfg.Oracle.Kind)
	setString("POLYGEN_ORACLE_URL", &cfg.Oracle.BaseURL)
	setInt("POLYGEN_ORACLE_CONCURRENCY", &cfg.Oracle.Concurrency)
	setFloat("POLYGEN_ORACLE_RATE", &cfg.Oracle.RatePerSecond)
	if v := os.Getenv("POLYGEN_ORACLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Oracle.Timeout = d
		}
	}

	setString("POLYGEN_STORE_PATH", &cfg.Store.Path)

	// Observability
	setBool("POLYGEN_TRACING_ENABLED", &cfg.Observability.TracingEnabled)
	setBool("POLYGEN_METRICS_ENABLED", &cfg.Observability.MetricsEnabled)
	setString("POLYGEN_LOG_LEVEL", &cfg.Observability.LogLevel)
	setString("POLYGEN_LOG_FORMAT", &cfg.Observability.LogFormat)
	return nil
}

func setString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func setFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		*dst = v == "true" || v == "1"
	}
}

var validate = validator.New()

// Validate checks field ranges and names.
//
// Outputs:
//
//	error - The first problem found, or nil.
func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := strategy.ParseKind(c.Strategy); err != nil {
		return err
	}
	if _, err := payload.ParseTerminalCondition(c.Terminal); err != nil {
		return err
	}
	if _, err := payload.ParseWinCalculation(c.Win); err != nil {
		return err
	}
	if c.SimulationsPerAction.Unbounded() && c.CallBudget.Unbounded() {
		return ErrNeverTerminates
	}
	if c.Oracle.Kind == OracleRemote && c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.base_url is required for the remote oracle")
	}
	return nil
}

// CompileGrammar resolves and compiles the configured grammar.
func (c RunConfig) CompileGrammar() (*tokens.Compiled, error) {
	g, err := tokens.Resolve(c.Grammar)
	if err != nil {
		return nil, err
	}
	return tokens.Compile(g)
}

// StrategyConfig converts the configuration into what strategy.New needs.
//
// Inputs:
//
//	grammar - The compiled grammar.
//	logger - Logger for the strategy. Nil uses slog.Default().
//	tracer - Tracer for the strategy. Nil disables tracing.
//
// Outputs:
//
//	strategy.Config - Ready for strategy.New.
//	error - Non-nil if an enum field does not parse.
func (c RunConfig) StrategyConfig(grammar *tokens.Compiled, logger *slog.Logger, tracer *mcts.Tracer) (strategy.Config, error) {
	terminal, err := payload.ParseTerminalCondition(c.Terminal)
	if err != nil {
		return strategy.Config{}, err
	}
	win, err := payload.ParseWinCalculation(c.Win)
	if err != nil {
		return strategy.Config{}, err
	}

	exploration := c.Exploration
	cfg := strategy.Config{
		Grammar:              grammar,
		Terminal:             terminal,
		Win:                  win,
		MaxPayloadLength:     c.MaxPayloadLength,
		MaxRootDepth:         c.MaxRootDepth,
		SimulationsPerAction: c.SimulationsPerAction,
		CallBudget:           c.CallBudget,
		Exploration:          &exploration,
		RolloutCandidates:    c.RolloutCandidates,
		QParams:              c.QLearning,
		Logger:               logger,
		Tracer:               tracer,
	}
	if c.Seed != 0 {
		cfg.Rand = rand.New(rand.NewSource(c.Seed))
	}
	return cfg, nil
}

// RemoteConfig returns the settings for oracle.NewRemote.
func (o OracleConfig) RemoteConfig(logger *slog.Logger) oracle.RemoteConfig {
	return oracle.RemoteConfig{
		BaseURL:       o.BaseURL,
		Concurrency:   o.Concurrency,
		RatePerSecond: o.RatePerSecond,
		Timeout:       o.Timeout,
		Logger:        logger,
	}
}
