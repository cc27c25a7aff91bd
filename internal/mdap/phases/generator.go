// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phases implements the four vote-backed phase executors —
// Expand, Decompose, Generate, Validate — each a thin, phase-specific
// wrapper around the shared Voter: only the prompt template, response
// parser, and output shape differ between them.
package phases

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/prompts"
	"github.com/aleutian-oss/mdap/internal/mdap/step"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

// VarsFunc builds the template substitution map for one candidate
// generation call from the snapshot and step.
type VarsFunc func(snap mdapcontext.Snapshot, s step.Step) prompts.Vars

// templatedGenerator implements vote.Generator by rendering a fixed
// template with phase-specific vars and sampling one completion.
type templatedGenerator struct {
	client   llm.Client
	model    string
	template prompts.Name
	vars     VarsFunc
	maxTokens int
	temperature float64
}

func (g *templatedGenerator) Generate(ctx context.Context, snap mdapcontext.Snapshot, s step.Step, launchIndex int) (step.Candidate, error) {
	prompt, err := prompts.Render(g.template, g.vars(snap, s))
	if err != nil {
		return step.Candidate{}, fmt.Errorf("phases: render %s: %w", g.template, err)
	}

	resp, err := g.client.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return step.Candidate{}, err
	}

	return step.Candidate{
		ID:           uuid.NewString(),
		Text:         resp.Text,
		LaunchIndex:  launchIndex,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
