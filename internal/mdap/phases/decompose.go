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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/discriminate"
	"github.com/aleutian-oss/mdap/internal/mdap/prompts"
	"github.com/aleutian-oss/mdap/internal/mdap/step"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

// Decomposer runs the DECOMPOSE phase: turn requirements into a set
// of functions to implement.
type Decomposer struct {
	Voter  *vote.Voter
	Client llm.Client
	Model  string
	Config vote.Config
}

// Decompose runs one vote and returns the winning function list,
// after checking it for dependency cycles. Only the winner is checked,
// after the vote: a winner whose dependency graph contains a cycle
// makes Decompose return an error. Cyclic candidates are not
// red-flagged during the vote.
func (d *Decomposer) Decompose(ctx context.Context, snap mdapcontext.Snapshot, requirements string, interrupts vote.Interrupts) ([]mdapcontext.FunctionRecord, *vote.Result, error) {
	s := step.Step{
		ID:          uuid.NewString(),
		Type:        step.TypeDecompose,
		Description: "decompose requirements into functions",
		Language:    step.Language(snap.Language),
		OutputShape: step.ShapeJSONArray,
	}

	gen := &templatedGenerator{
		client:      d.Client,
		model:       d.Model,
		template:    prompts.Decompose,
		temperature: d.Config.Temperature,
		maxTokens:   4096,
		vars: func(snap mdapcontext.Snapshot, s step.Step) prompts.Vars {
			return prompts.Vars{
				"language":     snap.Language,
				"requirements": requirements,
				"context":      snap.PromptContext(),
			}
		},
	}
	disc := discriminate.New(d.Client, d.Model)

	result, err := d.Voter.Vote(ctx, snap, s, gen, disc, d.Config, interrupts)
	if err != nil {
		return nil, result, err
	}
	if result.Winner == nil {
		return nil, result, fmt.Errorf("phases: decompose produced no winner (%s)", result.Outcome)
	}

	functions, err := parseFunctionList(result.Winner.Representative.Text)
	if err != nil {
		return nil, result, fmt.Errorf("phases: decompose: %w", err)
	}
	if cycle := findDependencyCycle(functions); cycle != "" {
		return nil, result, fmt.Errorf("phases: decompose: dependency cycle detected at %s", cycle)
	}
	return functions, result, nil
}

type functionJSON struct {
	Signature    string   `json:"signature"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	Requirements []string `json:"requirements"`
}

func parseFunctionList(text string) ([]mdapcontext.FunctionRecord, error) {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	trimmed = trimmed[start : end+1]

	var raw []functionJSON
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("parse function list: %w", err)
	}

	out := make([]mdapcontext.FunctionRecord, len(raw))
	for i, r := range raw {
		out[i] = mdapcontext.FunctionRecord{
			Signature:    r.Signature,
			Description:  r.Description,
			Dependencies: r.Dependencies,
			Requirements: r.Requirements,
		}
	}
	return out, nil
}

// findDependencyCycle returns the signature at which a cycle was
// detected via depth-first search, or "" if the dependency graph is
// acyclic.
func findDependencyCycle(functions []mdapcontext.FunctionRecord) string {
	byName := make(map[string]mdapcontext.FunctionRecord, len(functions))
	for _, fn := range functions {
		byName[fn.Signature] = fn
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(functions))

	var visit func(sig string) string
	visit = func(sig string) string {
		switch state[sig] {
		case visiting:
			return sig
		case done:
			return ""
		}
		state[sig] = visiting
		for _, dep := range byName[sig].Dependencies {
			if _, ok := byName[dep]; !ok {
				continue
			}
			if cycle := visit(dep); cycle != "" {
				return cycle
			}
		}
		state[sig] = done
		return ""
	}

	for _, fn := range functions {
		if cycle := visit(fn.Signature); cycle != "" {
			return cycle
		}
	}
	return ""
}
