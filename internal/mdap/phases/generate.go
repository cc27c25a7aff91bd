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
	"regexp"

	"github.com/google/uuid"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/discriminate"
	"github.com/aleutian-oss/mdap/internal/mdap/prompts"
	"github.com/aleutian-oss/mdap/internal/mdap/step"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

// Generator runs the GENERATE phase: implement one function body, and
// recursively implement any function it calls that has not been
// generated yet, up to Config.MaxDepth.
//
// There is no precedent for the nested sub-function pass in the
// system this package is modeled on, which only ever generates one
// function at a time; the frontier/depth bookkeeping here is this
// project's own addition to keep that recursion terminating.
type CodeGenerator struct {
	Voter  *vote.Voter
	Client llm.Client
	Model  string
	Config vote.Config
}

// Generate implements fn (and transitively, anything it calls that is
// not already generated), returning the winning code for fn itself.
// The context passed in is mutated: every function generated along
// the way, including sub-functions, is recorded via AddCode.
func (g *CodeGenerator) Generate(ctx context.Context, mctx *mdapcontext.Context, fn mdapcontext.FunctionRecord, interrupts vote.Interrupts) (string, []*vote.Result, error) {
	return g.generate(ctx, mctx, fn, map[string]bool{fn.Signature: true}, interrupts)
}

func (g *CodeGenerator) generate(ctx context.Context, mctx *mdapcontext.Context, fn mdapcontext.FunctionRecord, frontier map[string]bool, interrupts vote.Interrupts) (string, []*vote.Result, error) {
	snap := mctx.Snapshot()
	lang := step.Language(snap.Language)

	s := step.Step{
		ID:          uuid.NewString(),
		Type:        step.TypeGenerate,
		Description: fmt.Sprintf("implement %s", fn.Signature),
		Language:    lang,
		OutputShape: step.ShapeFunctionDef,
		Depth:       snap.Depth,
	}

	gen := &templatedGenerator{
		client:      g.Client,
		model:       g.Model,
		template:    prompts.Generate,
		temperature: g.Config.Temperature,
		maxTokens:   2048,
		vars: func(snap mdapcontext.Snapshot, s step.Step) prompts.Vars {
			return prompts.Vars{
				"language":    snap.Language,
				"signature":   fn.Signature,
				"description": fn.Description,
				"context":     snap.PromptContext(),
			}
		},
	}
	disc := discriminate.New(g.Client, g.Model)

	result, err := g.Voter.Vote(ctx, snap, s, gen, disc, g.Config, interrupts)
	if err != nil {
		return "", []*vote.Result{result}, err
	}
	if result.Winner == nil {
		return "", []*vote.Result{result}, fmt.Errorf("phases: generate produced no winner for %s (%s)", fn.Signature, result.Outcome)
	}

	winningCode := result.Winner.Representative.Text
	results := []*vote.Result{result}

	known := make(map[string]bool, len(snap.Code)+1)
	for sig := range snap.Code {
		known[signatureName(sig)] = true
	}
	known[signatureName(fn.Signature)] = true

	if snap.Depth < g.Config.MaxDepth {
		for _, name := range UndefinedCalls(lang, winningCode, known) {
			if frontier[name] {
				continue // already being generated somewhere on this call stack
			}
			frontier[name] = true

			mctx.EnterSubGeneration()
			subFn := mdapcontext.FunctionRecord{
				Signature:   fmt.Sprintf("func %s(...)", name),
				Description: fmt.Sprintf("helper called by %s but not yet defined", fn.Signature),
			}
			subCode, subResults, err := g.generate(ctx, mctx, subFn, frontier, interrupts)
			mctx.ExitSubGeneration()
			results = append(results, subResults...)
			if err != nil {
				return "", results, fmt.Errorf("phases: sub-generate %s: %w", name, err)
			}
			mctx.AddCode(subFn.Signature, subCode)
		}
	}

	mctx.AddCode(fn.Signature, winningCode)
	return winningCode, results, nil
}

// signatureNamePattern pulls the bare function name out of a signature
// string such as "func Foo(x int) string", so it can be compared
// against the bare call names UndefinedCalls reports.
var signatureNamePattern = regexp.MustCompile(`\bfunc\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)

func signatureName(sig string) string {
	m := signatureNamePattern.FindStringSubmatch(sig)
	if m == nil {
		return sig
	}
	return m[1]
}
