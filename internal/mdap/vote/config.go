// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vote implements the first-to-ahead-by-k voting algorithm:
// sample candidates, classify each into a semantic equivalence group
// via a discriminator, and stop once a group leads the runner-up by a
// fixed margin k.
package vote

import "time"

// Config parameterizes one voting round. Zero values are invalid;
// use DefaultConfig and override fields as needed.
type Config struct {
	// K is the margin a group must lead the runner-up by to win.
	K int `yaml:"k" validate:"required,min=1"`

	// MaxSamples bounds how many accepted (non-red-flagged) candidates
	// a vote will generate before giving up with MAX_SAMPLES.
	MaxSamples int `yaml:"max_samples" validate:"required,min=1"`

	// Parallelism bounds how many candidates may be generated
	// concurrently. 1 means fully sequential generation. Classification
	// always proceeds strictly in completion order regardless of this
	// value.
	Parallelism int `yaml:"parallelism" validate:"min=1"`

	// MaxDepth bounds nested sub-function generation recursion in the
	// Generate phase.
	MaxDepth int `yaml:"max_depth" validate:"min=0"`

	// Temperature is passed through to every candidate-generation call.
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`

	// CallTimeout bounds each batch of candidate-generation calls (one
	// call when Parallelism is 1). Zero means no bound. Discriminator
	// calls are not bounded by it.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// MaxTokensResponse is the red-flag filter's length threshold, a
	// char-count proxy for a response token budget. Zero means the
	// filter falls back to its own default.
	MaxTokensResponse int `yaml:"max_tokens_response" validate:"min=0"`
}

// DefaultConfig returns the voting defaults used when a CLI invocation
// or config file does not override them.
func DefaultConfig() Config {
	return Config{
		K:                 2,
		MaxSamples:        10,
		Parallelism:       1,
		MaxDepth:          3,
		Temperature:       0.7,
		CallTimeout:       60 * time.Second,
		MaxTokensResponse: 500,
	}
}

// rejectionBudget is the multiple of MaxSamples that bounds red-flag
// rejections before a vote is forced to BUDGET_EXHAUSTED.
const rejectionBudget = 3
