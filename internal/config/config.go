// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the pipeline's YAML configuration into a
// process-wide singleton, creating a sane default on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Global is the process-wide singleton, populated by Load.
	Global MDAPConfig
	once   sync.Once
)

// MDAPConfig is the full on-disk configuration for an mdap run.
type MDAPConfig struct {
	// Backend selects which LLM provider votes are generated against.
	Backend BackendConfig `yaml:"backend" validate:"required"`

	// Vote tunes the voting loop's stopping conditions.
	Vote VoteConfig `yaml:"vote" validate:"required"`

	// Budget bounds resource spend for a run. Zero fields are unbounded.
	Budget BudgetConfig `yaml:"budget"`

	// Logging controls where and how structured logs are written.
	Logging LoggingConfig `yaml:"logging"`

	// Checkpoint controls where pause/resume state is persisted.
	Checkpoint CheckpointConfig `yaml:"checkpoint"`

	// API controls the optional HTTP status server.
	API APIConfig `yaml:"api"`
}

// BackendConfig selects and configures the LLM backend.
type BackendConfig struct {
	// Type is "anthropic" or "openai".
	Type  string `yaml:"type" validate:"required,oneof=anthropic openai"`
	Model string `yaml:"model" validate:"required"`
}

// VoteConfig mirrors vote.Config, expressed as on-disk defaults that
// seed every phase executor's voting loop.
type VoteConfig struct {
	K           int     `yaml:"k" validate:"required,min=1"`
	MaxSamples  int     `yaml:"max_samples" validate:"required,min=1"`
	Parallelism int     `yaml:"parallelism" validate:"required,min=1"`
	MaxDepth    int     `yaml:"max_depth" validate:"min=0"`
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	MaxTokensResponse int `yaml:"max_tokens_response" validate:"min=0"`
}

// BudgetConfig bounds resource spend for a run.
type BudgetConfig struct {
	MaxTokens   int           `yaml:"max_tokens"`
	MaxCalls    int           `yaml:"max_calls"`
	MaxDuration time.Duration `yaml:"max_duration"`
	MaxCostUSD  float64       `yaml:"max_cost_usd"`
}

// LoggingConfig controls the structured logger's verbosity and
// destination.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
	File   string `yaml:"file,omitempty"`
}

// CheckpointConfig controls where badger persists pause/resume state.
type CheckpointConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// APIConfig controls the optional status server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

var validate = validator.New()

// Load ensures Global is populated exactly once per process,
// creating a default config file on first run.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		fmt.Printf("mdap: first run detected, writing default config to %s\n", path)
		if err := createDefault(path); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg MDAPConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid %s: %w", path, err)
	}
	Global = cfg
	return nil
}

// DefaultPath returns ~/.mdap/mdap.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: find home directory: %w", err)
	}
	return filepath.Join(home, ".mdap", "mdap.yaml"), nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultConfig returns the configuration a fresh install starts with.
func DefaultConfig() MDAPConfig {
	return MDAPConfig{
		Backend: BackendConfig{
			Type:  "anthropic",
			Model: "claude-3-5-sonnet-20240620",
		},
		Vote: VoteConfig{
			K:                 2,
			MaxSamples:        10,
			Parallelism:       1,
			MaxDepth:          3,
			Temperature:       0.7,
			CallTimeout:       60 * time.Second,
			MaxTokensResponse: 500,
		},
		Budget: BudgetConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Checkpoint: CheckpointConfig{
			Dir: defaultCheckpointDir(),
		},
		API: APIConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8085",
		},
	}
}

func defaultCheckpointDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mdap/checkpoint"
	}
	return filepath.Join(home, ".mdap", "checkpoint")
}
