// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package context holds the mutable accumulator a pipeline run builds
// up across phases, and the immutable snapshot taken of it at the
// start of every vote.
//
// Context itself is mutated only between votes, by the orchestrator.
// Within a single vote every candidate and every discriminator call
// must see the exact same inputs, so Vote always works from a deep
// copy (Snapshot), never from the live Context.
package context

import (
	"sort"
	"sync"
)

// FunctionRecord describes one decomposed function awaiting generation.
type FunctionRecord struct {
	Signature    string   `json:"signature"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	Requirements []string `json:"requirements"`
}

// Result records one phase's accepted output, in the order produced.
type Result struct {
	Phase string `json:"phase"`
	Value string `json:"value"`
}

// Context is the mutable state a pipeline run accumulates as it moves
// through EXPANDING -> DECOMPOSING -> GENERATING -> VALIDATING.
//
// Thread Safety: all mutating methods take the internal mutex. Reads
// go through Snapshot, which takes a consistent deep copy under the
// same lock.
type Context struct {
	mu sync.RWMutex

	Task         string
	Language     string
	Requirements []string
	Functions    []FunctionRecord
	Code         map[string]string // function signature -> generated source
	History      []Result
	Depth        int // current nested sub-function generation depth
}

// New creates an empty Context for the given task and language.
func New(task, language string) *Context {
	return &Context{
		Task:     task,
		Language: language,
		Code:     make(map[string]string),
	}
}

// AddRequirement appends a requirement discovered during EXPAND.
func (c *Context) AddRequirement(req string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requirements = append(c.Requirements, req)
}

// AddFunction appends a function record discovered during DECOMPOSE.
func (c *Context) AddFunction(fn FunctionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Functions = append(c.Functions, fn)
}

// AddCode records generated source for a function signature, replacing
// any prior generation for the same signature (a Validate failure may
// send Generate back for the same function).
func (c *Context) AddCode(signature, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Code[signature] = source
}

// AddResult appends an accepted phase result to the run history.
func (c *Context) AddResult(phase, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.History = append(c.History, Result{Phase: phase, Value: value})
}

// EnterSubGeneration increments the nested sub-function generation
// depth and returns the new depth, so callers can compare it against
// MDAPConfig.MaxDepth before recursing.
func (c *Context) EnterSubGeneration() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Depth++
	return c.Depth
}

// ExitSubGeneration decrements the nested sub-function generation
// depth. It is always paired with a prior EnterSubGeneration.
func (c *Context) ExitSubGeneration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Depth > 0 {
		c.Depth--
	}
}

// Snapshot takes an immutable deep copy of the current state. Every
// candidate generation and discriminator call within one vote must be
// built from the same Snapshot value, never from the live Context,
// so concurrent mutation by a later phase can never leak into an
// in-flight vote.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	requirements := make([]string, len(c.Requirements))
	copy(requirements, c.Requirements)

	functions := make([]FunctionRecord, len(c.Functions))
	for i, fn := range c.Functions {
		deps := make([]string, len(fn.Dependencies))
		copy(deps, fn.Dependencies)
		reqs := make([]string, len(fn.Requirements))
		copy(reqs, fn.Requirements)
		functions[i] = FunctionRecord{
			Signature:    fn.Signature,
			Description:  fn.Description,
			Dependencies: deps,
			Requirements: reqs,
		}
	}

	code := make(map[string]string, len(c.Code))
	for k, v := range c.Code {
		code[k] = v
	}

	history := make([]Result, len(c.History))
	copy(history, c.History)

	return Snapshot{
		Task:         c.Task,
		Language:     c.Language,
		Requirements: requirements,
		Functions:    functions,
		Code:         code,
		History:      history,
		Depth:        c.Depth,
	}
}

// Snapshot is an immutable, deep-copied view of Context taken at the
// start of a vote. Nothing in this package mutates a Snapshot after
// it is returned from Context.Snapshot; callers must not mutate it
// either.
type Snapshot struct {
	Task         string
	Language     string
	Requirements []string
	Functions    []FunctionRecord
	Code         map[string]string
	History      []Result
	Depth        int
}

// PromptContext renders the snapshot into the text prompt templates
// substitute as {context}: the task, the requirements gathered so
// far, and the signatures already generated.
func (s Snapshot) PromptContext() string {
	out := "Task: " + s.Task + "\n"
	if len(s.Requirements) > 0 {
		out += "Requirements:\n"
		for _, r := range s.Requirements {
			out += "- " + r + "\n"
		}
	}
	if len(s.Code) > 0 {
		out += "Generated so far:\n"
		sigs := make([]string, 0, len(s.Code))
		for sig := range s.Code {
			sigs = append(sigs, sig)
		}
		sort.Strings(sigs)
		for _, sig := range sigs {
			out += "- " + sig + "\n"
		}
	}
	return out
}
