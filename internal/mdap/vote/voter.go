// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vote

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/redflag"
	"github.com/aleutian-oss/mdap/internal/mdap/step"
)

var tracer = otel.Tracer("github.com/aleutian-oss/mdap/internal/mdap/vote")

// Generator produces one sampled candidate for a step, given the
// immutable snapshot every candidate in a vote is built from.
type Generator interface {
	Generate(ctx context.Context, snap mdapcontext.Snapshot, s step.Step, launchIndex int) (step.Candidate, error)
}

// Discriminator answers whether two candidates are semantically
// equivalent responses to the same step.
type Discriminator interface {
	Equivalent(ctx context.Context, snap mdapcontext.Snapshot, s step.Step, a, b step.Candidate) (bool, error)
}

// Interrupts exposes the two checkpoints a vote observes: before
// issuing a new generation call, and after a candidate arrives.
// A nil Interrupts is treated as never paused and never cancelled.
type Interrupts interface {
	// ShouldCancel reports whether the vote must stop immediately,
	// discarding any in-flight classification.
	ShouldCancel() bool
	// AwaitResume blocks while the controller is paused, returning
	// immediately once resumed or if the vote is cancelled while
	// parked.
	AwaitResume(ctx context.Context)
}

// Voter runs the first-to-ahead-by-k algorithm: generate a candidate,
// red-flag filter it, classify it into a semantic group via the
// discriminator, and repeat until one group leads the runner-up by K,
// or a termination condition (MaxSamples, red-flag rejection budget,
// or cancellation) is hit. Resource budgets (tokens, calls, time,
// cost) are not checked during a vote.
type Voter struct {
	Filter *redflag.Filter
	Logger *slog.Logger
}

// New returns a Voter using the given red-flag filter. Pass a logger
// or nil for slog.Default().
func New(filter *redflag.Filter, logger *slog.Logger) *Voter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Voter{Filter: filter, Logger: logger}
}

// Vote runs one voting round for s, using snap as the fixed input
// every candidate and comparison in this round is built from. It
// opens one span covering the whole round, tagged with the step and
// (once known) the terminal outcome.
func (v *Voter) Vote(ctx context.Context, snap mdapcontext.Snapshot, s step.Step, gen Generator, disc Discriminator, cfg Config, interrupts Interrupts) (*Result, error) {
	ctx, span := tracer.Start(ctx, "vote.Vote", trace.WithAttributes(
		attribute.String("mdap.step_id", s.ID),
		attribute.String("mdap.step_type", string(s.Type)),
		attribute.Int("mdap.depth", s.Depth),
		attribute.Int("mdap.k", cfg.K),
		attribute.Int("mdap.max_samples", cfg.MaxSamples),
	))
	defer span.End()

	result, err := v.voteLoop(ctx, snap, s, gen, disc, cfg, interrupts)
	if result != nil {
		span.SetAttributes(
			attribute.String("mdap.outcome", string(result.Outcome)),
			attribute.Int("mdap.samples", result.Samples),
			attribute.Int("mdap.rejections", result.Rejections),
			attribute.Int("mdap.winning_margin", result.WinningMargin),
		)
	}
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

// voteLoop is the first-to-ahead-by-k algorithm itself, split out of
// Vote so the span above covers every return path with one defer.
func (v *Voter) voteLoop(ctx context.Context, snap mdapcontext.Snapshot, s step.Step, gen Generator, disc Discriminator, cfg Config, interrupts Interrupts) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("vote: %w", err)
	}

	var (
		groups     []step.Group
		samples    int
		rejections int
		nextGroup  int
		nextLaunch int
	)

	rejectBudget := redflagBudget(cfg.MaxSamples)

	classify := func(c step.Candidate) error {
		rf := v.Filter.Check(c, s)
		if !rf.Passed {
			rejections++
			v.Logger.Debug("vote: candidate rejected by red-flag filter",
				"step_id", s.ID, "reason", rf.Reason, "rejections", rejections)
			return nil
		}
		samples++

		sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
		for i := range groups {
			equivalent, err := disc.Equivalent(ctx, snap, s, c, groups[i].Representative)
			if err != nil {
				return fmt.Errorf("vote: discriminate: %w", err)
			}
			if equivalent {
				groups[i].Add(c)
				return nil
			}
		}
		groups = append(groups, step.Group{
			ID:             nextGroup,
			Representative: c,
			Members:        []step.Candidate{c},
		})
		nextGroup++
		return nil
	}

	for {
		if interrupts != nil {
			interrupts.AwaitResume(ctx)
			if interrupts.ShouldCancel() {
				return &Result{StepID: s.ID, Outcome: OutcomeCancelled, Groups: groups, Samples: samples, Rejections: rejections}, ErrCancelled
			}
		}
		if ctx.Err() != nil {
			return &Result{StepID: s.ID, Outcome: OutcomeCancelled, Groups: groups, Samples: samples, Rejections: rejections}, ctx.Err()
		}

		if margin := winningMargin(groups); margin >= cfg.K && samples > 0 {
			winner := topGroup(groups)
			return &Result{
				StepID: s.ID, Outcome: OutcomeAheadByK, Winner: winner,
				Groups: groups, Samples: samples, Rejections: rejections, WinningMargin: margin,
			}, nil
		}
		if samples >= cfg.MaxSamples {
			winner := plurality(groups)
			return &Result{
				StepID: s.ID, Outcome: OutcomeMaxSamples, Winner: winner,
				Groups: groups, Samples: samples, Rejections: rejections, WinningMargin: winningMargin(groups),
			}, nil
		}
		if rejections >= rejectBudget {
			return &Result{StepID: s.ID, Outcome: OutcomeBudgetExhausted, Groups: groups, Samples: samples, Rejections: rejections}, nil
		}

		batch := cfg.Parallelism
		if batch < 1 {
			batch = 1
		}
		remaining := cfg.MaxSamples - samples
		if batch > remaining {
			batch = remaining
		}

		genCtx, cancelGen := ctx, context.CancelFunc(func() {})
		if cfg.CallTimeout > 0 {
			genCtx, cancelGen = context.WithTimeout(ctx, cfg.CallTimeout)
		}
		candidates, err := v.generateBatch(genCtx, snap, s, gen, batch, &nextLaunch)
		cancelGen()
		if err != nil {
			return nil, fmt.Errorf("vote: generate: %w", err)
		}

		for _, c := range candidates {
			if interrupts != nil && interrupts.ShouldCancel() {
				return &Result{StepID: s.ID, Outcome: OutcomeCancelled, Groups: groups, Samples: samples, Rejections: rejections}, ErrCancelled
			}
			if err := classify(c); err != nil {
				return nil, err
			}
		}
	}
}

// generateBatch launches up to n candidates concurrently (or
// sequentially when n == 1), returning them sorted by launch index so
// classification proceeds deterministically given a fixed launch
// plan, regardless of which goroutine happened to finish first.
func (v *Voter) generateBatch(ctx context.Context, snap mdapcontext.Snapshot, s step.Step, gen Generator, n int, nextLaunch *int) ([]step.Candidate, error) {
	type indexed struct {
		idx int
		c   step.Candidate
	}

	if n <= 1 {
		idx := *nextLaunch
		*nextLaunch++
		c, err := v.generateOne(ctx, snap, s, gen, idx)
		if err != nil {
			return nil, err
		}
		return []step.Candidate{c}, nil
	}

	results := make([]indexed, n)
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		idx := *nextLaunch
		*nextLaunch++
		slot := i
		g.Go(func() error {
			c, err := v.generateOne(gctx, snap, s, gen, idx)
			if err != nil {
				return err
			}
			mu.Lock()
			results[slot] = indexed{idx: idx, c: c}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].idx < results[j].idx })
	out := make([]step.Candidate, len(results))
	for i, r := range results {
		out[i] = r.c
	}
	return out, nil
}

// generateOne wraps a single candidate generation call in its own
// span, tagged with the launch index so a trace viewer can line up
// concurrent candidates within one batch.
func (v *Voter) generateOne(ctx context.Context, snap mdapcontext.Snapshot, s step.Step, gen Generator, launchIndex int) (step.Candidate, error) {
	ctx, span := tracer.Start(ctx, "vote.generate", trace.WithAttributes(
		attribute.String("mdap.step_id", s.ID),
		attribute.Int("mdap.launch_index", launchIndex),
	))
	defer span.End()

	c, err := gen.Generate(ctx, snap, s, launchIndex)
	if err != nil {
		span.RecordError(err)
		return step.Candidate{}, err
	}
	span.SetAttributes(
		attribute.Int("mdap.input_tokens", c.InputTokens),
		attribute.Int("mdap.output_tokens", c.OutputTokens),
	)
	return c, nil
}

func topGroup(groups []step.Group) *step.Group {
	return plurality(groups)
}

func redflagBudget(maxSamples int) int {
	return redflag.RejectionBudget(maxSamples)
}
