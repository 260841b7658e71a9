/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads and validates the healer's YAML configuration.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	cherrors "github.com/codeheals/codeheal/pkg/shared/errors"
)

// HealerConfig is the top-level configuration document.
type HealerConfig struct {
	Server   ServerConfig   `yaml:"server" validate:"required"`
	Policy   PolicyConfig   `yaml:"policy" validate:"required"`
	Taxonomy TaxonomyConfig `yaml:"taxonomy" validate:"required"`
	Storage  StorageConfig  `yaml:"storage" validate:"required"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig carries the listen port. cmd/healer starts no HTTP
// server, so the port is validated but not used.
type ServerConfig struct {
	Port string `yaml:"port" validate:"required"`
}

// PolicyConfig is the healer's gating policy (spec.md §6 "Configurable
// policy").
type PolicyConfig struct {
	SyntaxConfFloor       float64       `yaml:"syntax_conf_floor" validate:"gte=0,lte=1"`
	LogicConfFloor        float64       `yaml:"logic_conf_floor" validate:"gte=0,lte=1"`
	MaxSyntaxAttempts     int           `yaml:"max_syntax_attempts" validate:"gte=1"`
	MaxLogicAttempts      int           `yaml:"max_logic_attempts" validate:"gte=1"`
	SyntaxErrorBudget     float64       `yaml:"syntax_error_budget" validate:"gte=0,lte=1"`
	LogicErrorBudget      float64       `yaml:"logic_error_budget" validate:"gte=0,lte=1"`
	RateLimitPerMin       int           `yaml:"rate_limit_per_min" validate:"gte=1"`
	SandboxIsolation      string        `yaml:"sandbox_isolation" validate:"oneof=full partial none"`
	RequireHumanOnRisky   bool          `yaml:"require_human_on_risky"`
	RiskyKeywords         []string      `yaml:"risky_keywords"`
	SandboxWallClock      time.Duration `yaml:"sandbox_wall_clock"`
	SandboxMemoryMB       int           `yaml:"sandbox_memory_mb" validate:"gte=1"`
	SandboxCPUPercent     int           `yaml:"sandbox_cpu_percent" validate:"gte=1,lte=100"`
	ClassifierSubprocess  time.Duration `yaml:"classifier_subprocess_timeout"`
	OutcomeHistorySize    int           `yaml:"outcome_history_size" validate:"gte=1"`
	CalibrationMinSamples int           `yaml:"calibration_min_samples" validate:"gte=1"`
}

// TaxonomyConfig points the classifier at its detector taxonomy file.
type TaxonomyConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig configures the knowledge base's two tiers.
type StorageConfig struct {
	PostgresDSN  string `yaml:"postgres_dsn"`
	RedisAddr    string `yaml:"redis_addr"`
	HotTierSize  int    `yaml:"hot_tier_size" validate:"gte=1"`
}

// LoggingConfig configures the zap logger constructed in cmd/healer.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultPolicy returns the policy defaults named in spec.md §6.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		SyntaxConfFloor:       0.98,
		LogicConfFloor:        0.80,
		MaxSyntaxAttempts:     3,
		MaxLogicAttempts:      10,
		SyntaxErrorBudget:     0.03,
		LogicErrorBudget:      0.10,
		RateLimitPerMin:       10,
		SandboxIsolation:      "full",
		RequireHumanOnRisky:   true,
		RiskyKeywords:         []string{"database_schema_change", "authentication_bypass", "production_data_modification"},
		SandboxWallClock:      30 * time.Second,
		SandboxMemoryMB:       500,
		SandboxCPUPercent:     80,
		ClassifierSubprocess:  10 * time.Second,
		OutcomeHistorySize:    1000,
		CalibrationMinSamples: 10,
	}
}

var validate = validator.New()

// Load reads and validates a HealerConfig document from path. Policy
// fields absent from the document keep their DefaultPolicy values, and
// any numeric, string or list policy field set to its zero value is
// also reset to its default.
func Load(path string) (*HealerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cherrors.FailedToWithDetails("read config file", "config", path, err)
	}

	cfg := HealerConfig{Policy: DefaultPolicy()}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, cherrors.ParseError(path, "YAML", err)
	}

	applyPolicyDefaults(&cfg.Policy)

	if err := validate.Struct(&cfg); err != nil {
		return nil, cherrors.ConfigurationError(path, err.Error())
	}
	return &cfg, nil
}

func applyPolicyDefaults(p *PolicyConfig) {
	d := DefaultPolicy()
	if p.SyntaxConfFloor == 0 {
		p.SyntaxConfFloor = d.SyntaxConfFloor
	}
	if p.LogicConfFloor == 0 {
		p.LogicConfFloor = d.LogicConfFloor
	}
	if p.MaxSyntaxAttempts == 0 {
		p.MaxSyntaxAttempts = d.MaxSyntaxAttempts
	}
	if p.MaxLogicAttempts == 0 {
		p.MaxLogicAttempts = d.MaxLogicAttempts
	}
	if p.SyntaxErrorBudget == 0 {
		p.SyntaxErrorBudget = d.SyntaxErrorBudget
	}
	if p.LogicErrorBudget == 0 {
		p.LogicErrorBudget = d.LogicErrorBudget
	}
	if p.RateLimitPerMin == 0 {
		p.RateLimitPerMin = d.RateLimitPerMin
	}
	if p.SandboxIsolation == "" {
		p.SandboxIsolation = d.SandboxIsolation
	}
	if len(p.RiskyKeywords) == 0 {
		p.RiskyKeywords = d.RiskyKeywords
	}
	if p.SandboxWallClock == 0 {
		p.SandboxWallClock = d.SandboxWallClock
	}
	if p.SandboxMemoryMB == 0 {
		p.SandboxMemoryMB = d.SandboxMemoryMB
	}
	if p.SandboxCPUPercent == 0 {
		p.SandboxCPUPercent = d.SandboxCPUPercent
	}
	if p.ClassifierSubprocess == 0 {
		p.ClassifierSubprocess = d.ClassifierSubprocess
	}
	if p.OutcomeHistorySize == 0 {
		p.OutcomeHistorySize = d.OutcomeHistorySize
	}
	if p.CalibrationMinSamples == 0 {
		p.CalibrationMinSamples = d.CalibrationMinSamples
	}
}
