// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package integration exercises the voting engine and the pipeline
// orchestrator together, end to end, against a scripted fake LLM
// client rather than mocking any one package's collaborators in
// isolation.
package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aleutian-oss/mdap/internal/mdap/cancel"
	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/phases"
	"github.com/aleutian-oss/mdap/internal/mdap/pipeline"
	"github.com/aleutian-oss/mdap/internal/mdap/redflag"
	"github.com/aleutian-oss/mdap/internal/mdap/resource"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

// fakeClient adapts a plain function to llm.Client, letting each
// scenario script its own responses without a new named type.
type fakeClient struct {
	fn func(req llm.CompletionRequest) (llm.CompletionResponse, error)
}

func (c *fakeClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	return c.fn(req)
}

// sameCandidateText reports whether a discriminate prompt's two
// embedded candidates are byte-identical, so a scenario can script
// equivalence purely by choosing what text its generator returns.
func sameCandidateText(prompt string) bool {
	aStart := strings.Index(prompt, "Candidate A:\n")
	bStart := strings.Index(prompt, "Candidate B:\n")
	if aStart < 0 || bStart < 0 {
		return false
	}
	a := strings.TrimSpace(prompt[aStart+len("Candidate A:\n") : bStart])
	b := prompt[bStart+len("Candidate B:\n"):]
	if i := strings.Index(b, "\nAnswer"); i >= 0 {
		b = b[:i]
	}
	return a == strings.TrimSpace(b)
}

func newExpander(client llm.Client, cfg vote.Config) *phases.Expander {
	filter := redflag.NewFilter(redflag.DefaultParsers())
	return &phases.Expander{
		Voter:  vote.New(filter, nil),
		Client: client,
		Model:  "test-model",
		Config: cfg,
	}
}

// TestScenarioFastConsensus is S1: two candidates judged equivalent
// end the vote at samples=2, groups=1, winning_margin=2, AHEAD_BY_K.
func TestScenarioFastConsensus(t *testing.T) {
	client := &fakeClient{fn: func(req llm.CompletionRequest) (llm.CompletionResponse, error) {
		if req.MaxTokens <= 16 {
			if sameCandidateText(req.Prompt) {
				return llm.CompletionResponse{Text: "YES", InputTokens: 2, OutputTokens: 1}, nil
			}
			return llm.CompletionResponse{Text: "NO", InputTokens: 2, OutputTokens: 1}, nil
		}
		return llm.CompletionResponse{Text: "1. Accept an email and a password field.", InputTokens: 10, OutputTokens: 10}, nil
	}}

	e := newExpander(client, vote.Config{K: 2, MaxSamples: 5, Parallelism: 1})
	_, result, err := e.Expand(context.Background(), mdapcontext.Snapshot{Task: "build a login form"}, nil)
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if result.Outcome != vote.OutcomeAheadByK {
		t.Fatalf("Outcome = %v, want AHEAD_BY_K", result.Outcome)
	}
	if result.Samples != 2 || len(result.Groups) != 1 || result.WinningMargin != 2 {
		t.Fatalf("samples=%d groups=%d margin=%d, want samples=2 groups=1 margin=2",
			result.Samples, len(result.Groups), result.WinningMargin)
	}
}

// TestScenarioExhaustionTie is S2: candidates fall into groups
// [A,A,B,B] under k=3, max_samples=4; the vote exhausts MaxSamples
// with a tied plurality and the earliest group (A) wins by tie-break.
func TestScenarioExhaustionTie(t *testing.T) {
	texts := []string{"func A() {}", "func A() {}", "func B() {}", "func B() {}"}
	var mu sync.Mutex
	calls := 0
	client := &fakeClient{fn: func(req llm.CompletionRequest) (llm.CompletionResponse, error) {
		if req.MaxTokens <= 16 {
			if sameCandidateText(req.Prompt) {
				return llm.CompletionResponse{Text: "YES", InputTokens: 2, OutputTokens: 1}, nil
			}
			return llm.CompletionResponse{Text: "NO", InputTokens: 2, OutputTokens: 1}, nil
		}
		mu.Lock()
		text := texts[calls%len(texts)]
		calls++
		mu.Unlock()
		return llm.CompletionResponse{Text: text, InputTokens: 10, OutputTokens: 10}, nil
	}}

	e := newExpander(client, vote.Config{K: 3, MaxSamples: 4, Parallelism: 1})
	winnerText, result, err := e.Expand(context.Background(), mdapcontext.Snapshot{Task: "build a thing"}, nil)
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if result.Outcome != vote.OutcomeMaxSamples {
		t.Fatalf("Outcome = %v, want MAX_SAMPLES", result.Outcome)
	}
	if result.Samples != 4 || result.WinningMargin != 0 {
		t.Fatalf("samples=%d margin=%d, want samples=4 margin=0", result.Samples, result.WinningMargin)
	}
	if winnerText != "func A() {}" {
		t.Fatalf("winner = %q, want the earliest group (func A() {})", winnerText)
	}
}

// TestScenarioRedFlagPressure is S3: six candidates are rejected by
// the red-flag filter before two equivalent candidates arrive; the
// vote still succeeds, with samples=2 and a rejection counter of 6.
func TestScenarioRedFlagPressure(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	client := &fakeClient{fn: func(req llm.CompletionRequest) (llm.CompletionResponse, error) {
		if req.MaxTokens <= 16 {
			if sameCandidateText(req.Prompt) {
				return llm.CompletionResponse{Text: "YES", InputTokens: 2, OutputTokens: 1}, nil
			}
			return llm.CompletionResponse{Text: "NO", InputTokens: 2, OutputTokens: 1}, nil
		}
		mu.Lock()
		n := calls
		calls++
		mu.Unlock()
		if n < 6 {
			return llm.CompletionResponse{Text: "x", InputTokens: 5, OutputTokens: 1}, nil
		}
		return llm.CompletionResponse{Text: "1. Accept a numeric range.", InputTokens: 10, OutputTokens: 10}, nil
	}}

	e := newExpander(client, vote.Config{K: 2, MaxSamples: 5, Parallelism: 1})
	_, result, err := e.Expand(context.Background(), mdapcontext.Snapshot{Task: "build a thing"}, nil)
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if result.Outcome != vote.OutcomeAheadByK {
		t.Fatalf("Outcome = %v, want AHEAD_BY_K", result.Outcome)
	}
	if result.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", result.Samples)
	}
	if result.Rejections != 6 {
		t.Fatalf("Rejections = %d, want 6", result.Rejections)
	}
}

func newOrchestrator(client llm.Client, cfg vote.Config, budget resource.Budget) *pipeline.Orchestrator {
	return pipeline.New(pipeline.Deps{
		Client: client,
		Model:  "test-model",
		Config: cfg,
		Budget: budget,
		Prices: resource.DefaultPriceTable(),
	})
}

// TestScenarioCancelMidVote is S4: cancel is observed after two
// candidates have already been accepted into the EXPAND vote. The run
// aborts with vote.ErrCancelled and the decision tracker's last
// record shows a CANCELLED vote outcome with the two accepted samples
// preserved.
func TestScenarioCancelMidVote(t *testing.T) {
	var (
		mu            sync.Mutex
		generateCalls int
		controller    *cancel.Controller
	)
	client := &fakeClient{fn: func(req llm.CompletionRequest) (llm.CompletionResponse, error) {
		if req.MaxTokens <= 16 {
			return llm.CompletionResponse{Text: "NO", InputTokens: 2, OutputTokens: 1}, nil
		}
		mu.Lock()
		generateCalls++
		n := generateCalls
		mu.Unlock()
		if n == 3 {
			controller.Cancel()
		}
		return llm.CompletionResponse{Text: fmt.Sprintf("candidate %d", n), InputTokens: 10, OutputTokens: 10}, nil
	}}

	orch := newOrchestrator(client, vote.Config{K: 3, MaxSamples: 10, Parallelism: 1}, resource.Budget{})
	controller = orch.Controller()

	_, err := orch.Run(context.Background(), "build a thing", "")
	if err != vote.ErrCancelled {
		t.Fatalf("Run() error = %v, want vote.ErrCancelled", err)
	}

	records := orch.Tracker().All()
	if len(records) == 0 {
		t.Fatal("Tracker().All() is empty, want at least the cancelled vote's record")
	}
	last := records[len(records)-1]
	if last.VoteResult == nil || last.VoteResult.Outcome != vote.OutcomeCancelled {
		t.Fatalf("last record's vote outcome = %v, want CANCELLED", last.VoteResult)
	}
	if last.VoteResult.Samples != 2 {
		t.Fatalf("last record's samples = %d, want 2 (cancellation observed after the 2nd)", last.VoteResult.Samples)
	}
}

// TestScenarioBudgetBreach is S5: a token budget too small to survive
// even the EXPAND phase's single call causes the run to stop with the
// pipeline in ERROR, while the completed EXPAND phase's requirements
// remain in the decision log.
func TestScenarioBudgetBreach(t *testing.T) {
	client := &fakeClient{fn: func(req llm.CompletionRequest) (llm.CompletionResponse, error) {
		if req.MaxTokens <= 16 {
			return llm.CompletionResponse{Text: "YES", InputTokens: 1, OutputTokens: 1}, nil
		}
		return llm.CompletionResponse{Text: "1. Accept a single integer argument.", InputTokens: 30, OutputTokens: 30}, nil
	}}

	orch := newOrchestrator(client, vote.Config{K: 1, MaxSamples: 5, Parallelism: 1}, resource.Budget{MaxTokens: 50})
	_, err := orch.Run(context.Background(), "build a thing", "")
	if err == nil || !strings.Contains(err.Error(), "budget") {
		t.Fatalf("Run() error = %v, want a budget-exceeded error", err)
	}
	if orch.State() != pipeline.StateError {
		t.Fatalf("State() = %v, want ERROR", orch.State())
	}

	records := orch.Tracker().All()
	var sawExpandAccepted bool
	for _, r := range records {
		if r.Phase == "EXPAND" && r.ToState == "DECOMPOSING" {
			sawExpandAccepted = true
		}
	}
	if !sawExpandAccepted {
		t.Fatal("decision log has no record of the EXPAND phase completing before the budget breach")
	}
}

// TestScenarioNestedGenerate is S6: GENERATE for Outer produces code
// calling an undefined helper; the sub-function is generated and
// stored, and Outer's own winning code is preserved in the final
// result.
func TestScenarioNestedGenerate(t *testing.T) {
	client := &fakeClient{fn: func(req llm.CompletionRequest) (llm.CompletionResponse, error) {
		p := req.Prompt
		switch {
		case req.MaxTokens <= 16:
			return llm.CompletionResponse{Text: "YES", InputTokens: 1, OutputTokens: 1}, nil
		case strings.Contains(p, "Produce a numbered list of concrete requirements"):
			return llm.CompletionResponse{Text: "1. Return a friendly greeting string.", InputTokens: 10, OutputTokens: 10}, nil
		case strings.Contains(p, "Return a JSON array of objects"):
			return llm.CompletionResponse{Text: `[{"signature":"func Outer() string","description":"returns a greeting","dependencies":[],"requirements":["1. Return a friendly greeting string."]}]`, InputTokens: 10, OutputTokens: 10}, nil
		case strings.Contains(p, "Signature: func Outer() string"):
			return llm.CompletionResponse{Text: "func Outer() string {\n\treturn helper()\n}\n", InputTokens: 10, OutputTokens: 10}, nil
		case strings.Contains(p, "Signature: func helper(...)"):
			return llm.CompletionResponse{Text: "func helper() string {\n\treturn \"hello\"\n}\n", InputTokens: 10, OutputTokens: 10}, nil
		case strings.Contains(p, "Respond in exactly this format"):
			return llm.CompletionResponse{Text: "VALID: yes\nERRORS: none\nWARNINGS: none\nSUGGESTIONS: none", InputTokens: 10, OutputTokens: 10}, nil
		default:
			return llm.CompletionResponse{}, fmt.Errorf("unscripted prompt: %s", p)
		}
	}}

	orch := newOrchestrator(client, vote.Config{K: 1, MaxSamples: 5, Parallelism: 1, MaxDepth: 1}, resource.Budget{})
	result, err := orch.Run(context.Background(), "build a greeter", "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if orch.State() != pipeline.StateCompleted {
		t.Fatalf("State() = %v, want COMPLETED", orch.State())
	}
	if len(result.Functions) != 1 {
		t.Fatalf("len(Functions) = %d, want 1 (only Outer was decomposed)", len(result.Functions))
	}
	if len(result.Code) != 2 {
		t.Fatalf("len(Code) = %d, want 2 (Outer plus the nested helper)", len(result.Code))
	}
	if !strings.Contains(result.Code["func Outer() string"], "helper()") {
		t.Fatalf("Outer's code = %q, want it to still call helper()", result.Code["func Outer() string"])
	}
	if _, ok := result.Code["func helper(...)"]; !ok {
		t.Fatalf("Code map = %v, want an entry for the nested helper", result.Code)
	}
}
