// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/discriminate"
	"github.com/aleutian-oss/mdap/internal/mdap/prompts"
	"github.com/aleutian-oss/mdap/internal/mdap/step"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

// Expander runs the EXPAND phase: turn a bare task description into a
// numbered list of concrete requirements.
type Expander struct {
	Voter  *vote.Voter
	Client llm.Client
	Model  string
	Config vote.Config
}

// Expand runs one vote and returns the winning requirements text
// along with the full vote record.
func (e *Expander) Expand(ctx context.Context, snap mdapcontext.Snapshot, interrupts vote.Interrupts) (string, *vote.Result, error) {
	s := step.Step{
		ID:          uuid.NewString(),
		Type:        step.TypeExpand,
		Description: "expand task into requirements",
		OutputShape: step.ShapeFreeformText,
	}

	gen := &templatedGenerator{
		client:      e.Client,
		model:       e.Model,
		template:    prompts.Expand,
		temperature: e.Config.Temperature,
		maxTokens:   2048,
		vars: func(snap mdapcontext.Snapshot, s step.Step) prompts.Vars {
			return prompts.Vars{"task": snap.Task, "context": snap.PromptContext()}
		},
	}
	disc := discriminate.New(e.Client, e.Model)

	result, err := e.Voter.Vote(ctx, snap, s, gen, disc, e.Config, interrupts)
	if err != nil {
		return "", result, err
	}
	if result.Winner == nil {
		return "", result, fmt.Errorf("phases: expand produced no winner (%s)", result.Outcome)
	}
	return result.Winner.Representative.Text, result, nil
}
