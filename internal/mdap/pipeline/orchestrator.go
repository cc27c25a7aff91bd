// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/cancel"
	"github.com/aleutian-oss/mdap/internal/mdap/decision"
	"github.com/aleutian-oss/mdap/internal/mdap/phases"
	"github.com/aleutian-oss/mdap/internal/mdap/redflag"
	"github.com/aleutian-oss/mdap/internal/mdap/resource"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

var tracer = otel.Tracer("github.com/aleutian-oss/mdap/internal/mdap/pipeline")

// maxValidateRetries bounds how many times VALIDATING sends a
// function back to GENERATING before the run gives up on it.
const maxValidateRetries = 2

// Result is the document persisted when a run reaches COMPLETED: the
// task, the configuration it ran under, everything it produced, and
// the resource metrics it spent getting there.
type Result struct {
	Task         string                       `json:"task"`
	Config       vote.Config                  `json:"config"`
	Requirements []string                     `json:"requirements"`
	Functions    []mdapcontext.FunctionRecord `json:"functions"`
	Code         map[string]string            `json:"code"`
	Metrics      Metrics                      `json:"metrics"`
}

// Metrics summarizes what a run cost.
type Metrics struct {
	Iterations int           `json:"iterations"`
	APICalls   int           `json:"api_calls"`
	TotalTime  time.Duration `json:"total_time"`
	Tokens     int           `json:"tokens"`
	CostUSD    float64       `json:"cost_usd"`
}

// Orchestrator drives the phase executors through the pipeline state
// graph for a single run, recording every transition and vote to a
// Tracker and every LLM call's cost to a resource.Manager.
type Orchestrator struct {
	sm      *StateMachine
	control *cancel.Controller
	tracker *decision.Tracker
	res     *resource.Manager
	store   *Store
	log     *slog.Logger

	expander   *phases.Expander
	decomposer *phases.Decomposer
	generator  *phases.CodeGenerator
	validator  *phases.Validator

	mu          sync.RWMutex
	state       State
	predecessor State
	mctx        *mdapcontext.Context
	started     time.Time
}

// Deps bundles everything an Orchestrator needs to construct its
// phase executors.
type Deps struct {
	Client  llm.Client
	Model   string
	Config  vote.Config
	Budget  resource.Budget
	Prices  *resource.PriceTable
	Store   *Store
	Logger  *slog.Logger
}

// New builds an Orchestrator wired to fresh phase executors, all
// sharing one resource-tracked LLM client.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := resource.New(deps.Budget, deps.Prices)
	tracked := &resource.TrackingClient{Inner: deps.Client, Manager: res}

	filter := redflag.NewFilterWithMaxLength(redflag.DefaultParsers(), deps.Config.MaxTokensResponse)
	voter := vote.New(filter, logger)

	return &Orchestrator{
		sm:      DefaultStateMachine,
		control: cancel.NewController(),
		tracker: decision.New(),
		res:     res,
		store:   deps.Store,
		log:     logger,
		state:   StateIdle,

		expander:   &phases.Expander{Voter: voter, Client: tracked, Model: deps.Model, Config: deps.Config},
		decomposer: &phases.Decomposer{Voter: voter, Client: tracked, Model: deps.Model, Config: deps.Config},
		generator:  &phases.CodeGenerator{Voter: voter, Client: tracked, Model: deps.Model, Config: deps.Config},
		validator:  &phases.Validator{Voter: voter, Client: tracked, Model: deps.Model, Config: deps.Config, Parsers: redflag.DefaultParsers()},
	}
}

// Controller exposes the interrupt controller so a CLI or API layer
// can Pause/Resume/Cancel a running orchestrator from another
// goroutine.
func (o *Orchestrator) Controller() *cancel.Controller { return o.control }

// Tracker exposes the decision log for introspection commands.
func (o *Orchestrator) Tracker() *decision.Tracker { return o.tracker }

// Resources exposes the resource manager for introspection commands.
func (o *Orchestrator) Resources() *resource.Manager { return o.res }

// State returns the orchestrator's current pipeline state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) transition(to State, why string) error {
	o.mu.Lock()
	from := o.state
	if err := o.sm.Transition(from, to); err != nil {
		o.mu.Unlock()
		return err
	}
	o.state = to
	o.mu.Unlock()

	o.tracker.RecordTransition(string(from), string(to), why)
	o.log.Info("pipeline: transition", "from", from, "to", to, "reason", why)
	return nil
}

// Pause requests the run suspend at its next checkpoint and, when a
// Store is configured, saves a Checkpoint of the run. Resume does not
// read that checkpoint back; it continues the run held in this process.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	pred := o.state
	o.mu.Unlock()

	if err := o.transition(StatePaused, "user requested pause"); err != nil {
		return err
	}
	o.mu.Lock()
	o.predecessor = pred
	o.mu.Unlock()
	o.control.Pause()

	if o.store != nil && o.mctx != nil {
		return o.checkpoint()
	}
	return nil
}

// Resume returns the run to whichever state it was paused from.
func (o *Orchestrator) Resume() error {
	o.mu.RLock()
	pred := o.predecessor
	o.mu.RUnlock()

	if !o.sm.CanResumeTo(pred) {
		return fmt.Errorf("%w: cannot resume to %s", ErrInvalidTransition, pred)
	}
	if err := o.transition(pred, "user requested resume"); err != nil {
		return err
	}
	o.control.Resume()
	return nil
}

// Cancel stops the run and returns it to IDLE without persisting a
// final result. Context is left exactly as it was at the moment of
// cancellation.
func (o *Orchestrator) Cancel() error {
	o.control.Cancel()
	if err := o.transition(StateIdle, "user requested cancel"); err != nil {
		return err
	}
	if o.store != nil {
		return o.store.Clear()
	}
	return nil
}

func (o *Orchestrator) checkpoint() error {
	functions, err := json.Marshal(o.mctx.Snapshot().Functions)
	if err != nil {
		return err
	}
	snap := o.mctx.Snapshot()
	return o.store.Save(Checkpoint{
		State:        o.State(),
		Predecessor:  o.predecessor,
		Task:         snap.Task,
		Language:     snap.Language,
		Requirements: snap.Requirements,
		Functions:    functions,
		Code:         snap.Code,
	})
}

// Run drives task through EXPAND -> DECOMPOSE -> GENERATE -> VALIDATE
// to COMPLETED, or returns an error and leaves the orchestrator in
// ERROR if a phase fails unrecoverably or the resource budget is
// exhausted.
func (o *Orchestrator) Run(ctx context.Context, task, language string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	o.started = time.Now()
	o.mctx = mdapcontext.New(task, language)

	if err := o.transition(StateExpanding, "run started"); err != nil {
		return nil, err
	}

	requirements, expandResult, err := o.expander.Expand(ctx, o.mctx.Snapshot(), o.control)
	if err != nil {
		return o.fail(expandResult, decision.PhaseExpand, err)
	}
	o.tracker.Record(decision.PhaseExpand, string(StateExpanding), string(StateDecomposing), expandResult, "requirements accepted")
	o.mctx.AddRequirement(requirements)
	if err := o.checkBudget(); err != nil {
		return nil, err
	}

	if err := o.transition(StateDecomposing, "requirements accepted"); err != nil {
		return nil, err
	}
	functions, decomposeResult, err := o.decomposer.Decompose(ctx, o.mctx.Snapshot(), requirements, o.control)
	if err != nil {
		return o.fail(decomposeResult, decision.PhaseDecompose, err)
	}
	o.tracker.Record(decision.PhaseDecompose, string(StateDecomposing), string(StateGenerating), decomposeResult, "function list accepted")
	for _, fn := range functions {
		o.mctx.AddFunction(fn)
	}
	if err := o.checkBudget(); err != nil {
		return nil, err
	}

	if err := o.transition(StateGenerating, "functions accepted"); err != nil {
		return nil, err
	}

	for i, fn := range functions {
		last := i == len(functions)-1
		if err := o.generateAndValidate(ctx, fn, last); err != nil {
			return nil, err
		}
		if err := o.checkBudget(); err != nil {
			return nil, err
		}
	}

	snap := o.mctx.Snapshot()
	usage := o.res.Usage()
	return &Result{
		Task:         snap.Task,
		Config:       o.expander.Config,
		Requirements: snap.Requirements,
		Functions:    snap.Functions,
		Code:         snap.Code,
		Metrics: Metrics{
			Iterations: o.tracker.Count(),
			APICalls:   usage.APICalls,
			TotalTime:  time.Since(o.started),
			Tokens:     usage.TokensTotal(),
			CostUSD:    usage.CostUSD,
		},
	}, nil
}

// ExpandOnly runs just the EXPAND phase, for the CLI's `expand`
// command. It leaves the orchestrator in StateDecomposing on success
// so a caller can inspect the requirements before committing to a
// full Run.
func (o *Orchestrator) ExpandOnly(ctx context.Context, task, language string) (string, *vote.Result, error) {
	o.started = time.Now()
	o.mctx = mdapcontext.New(task, language)

	if err := o.transition(StateExpanding, "expand-only run started"); err != nil {
		return "", nil, err
	}
	requirements, result, err := o.expander.Expand(ctx, o.mctx.Snapshot(), o.control)
	if err != nil {
		_, failErr := o.fail(result, decision.PhaseExpand, err)
		return "", result, failErr
	}
	o.tracker.Record(decision.PhaseExpand, string(StateExpanding), string(StateDecomposing), result, "requirements accepted")
	o.mctx.AddRequirement(requirements)
	if err := o.transition(StateDecomposing, "requirements accepted"); err != nil {
		return "", result, err
	}
	return requirements, result, nil
}

func (o *Orchestrator) generateAndValidate(ctx context.Context, fn mdapcontext.FunctionRecord, last bool) error {
	var prevCode string
	for attempt := 0; attempt <= maxValidateRetries; attempt++ {
		code, genResults, err := o.generator.Generate(ctx, o.mctx, fn, o.control)
		var lastID string
		for _, r := range genResults {
			lastID = o.tracker.Record(decision.PhaseGenerate, string(StateGenerating), string(StateValidating), r, fmt.Sprintf("generated %s", fn.Signature))
		}
		if err != nil {
			_, failErr := o.fail(nil, decision.PhaseGenerate, err)
			return failErr
		}
		if attempt > 0 && prevCode != "" && prevCode != code && lastID != "" {
			if diffText, diffErr := decision.UnifiedDiff(prevCode, code, fn.Signature); diffErr == nil {
				o.tracker.SetDiff(lastID, diffText)
			} else {
				o.log.Warn("pipeline: render diff failed", "function", fn.Signature, "error", diffErr)
			}
		}
		prevCode = code

		if err := o.transition(StateValidating, "code generated"); err != nil {
			return err
		}
		report, validateResult, err := o.validator.Validate(ctx, o.mctx.Snapshot(), fn, code, o.control)
		if err != nil {
			_, failErr := o.fail(validateResult, decision.PhaseValidate, err)
			return failErr
		}
		nextState := StateGenerating
		if last && report.Passed() {
			nextState = StateCompleted
		}
		o.tracker.Record(decision.PhaseValidate, string(StateValidating), string(nextState), validateResult,
			fmt.Sprintf("validate %s: passed=%v", fn.Signature, report.Passed()))

		if report.Passed() {
			if last {
				return o.transition(StateCompleted, "all functions validated")
			}
			return o.transition(StateGenerating, "validation passed")
		}

		o.log.Warn("pipeline: validation failed, retrying", "function", fn.Signature, "attempt", attempt, "errors", report.Errors)
		if err := o.transition(StateGenerating, "validation failed, retrying"); err != nil {
			return err
		}
	}
	_, failErr := o.fail(nil, decision.PhaseValidate, fmt.Errorf("pipeline: %s failed validation after %d attempts", fn.Signature, maxValidateRetries+1))
	return failErr
}

func (o *Orchestrator) checkBudget() error {
	check := o.res.CheckBudget()
	if check.Status == resource.StatusExceeded {
		_, err := o.fail(nil, "", fmt.Errorf("pipeline: resource budget exceeded: %s", check.Reason))
		return err
	}
	return nil
}

func (o *Orchestrator) fail(result *vote.Result, phase decision.Phase, cause error) (*Result, error) {
	from := o.State()
	if errors.Is(cause, vote.ErrCancelled) {
		// A user cancel ends the run in IDLE, not ERROR; the cancelled
		// vote is recorded after the transition so it is the last entry.
		if from != StateIdle {
			if err := o.transition(StateIdle, "run cancelled"); err != nil {
				o.log.Error("pipeline: failed to transition to IDLE", "error", err)
			}
		}
		o.tracker.Record(phase, string(from), string(StateIdle), result, cause.Error())
		return nil, cause
	}
	o.tracker.Record(phase, string(from), string(StateError), result, cause.Error())
	if err := o.transition(StateError, cause.Error()); err != nil {
		o.log.Error("pipeline: failed to transition to ERROR", "error", err)
	}
	return nil, cause
}
