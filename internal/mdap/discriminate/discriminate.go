// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discriminate asks an LLM whether two candidates are
// semantically equivalent, one pair at a time.
//
// The comparison is asymmetric-safe: Equivalent(a, b) is not assumed
// to agree with Equivalent(b, a), and callers must always query in
// the defined (new candidate, existing representative) order rather
// than inferring the reverse from a cached result.
package discriminate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aleutian-oss/mdap/internal/mdap/step"
	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/prompts"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

// Discriminator answers one question per call: are these two
// candidates semantically equivalent responses to the same step.
type Discriminator struct {
	client llm.Client
	model  string

	// cache memoizes (a.ID, b.ID) -> answer for the lifetime of a
	// single vote only. It is never shared across votes: sharing it
	// would let an earlier vote's classification leak into a later
	// one's supposedly independent sample, which the fresh-snapshot
	// fairness guarantee forbids.
	mu    sync.Mutex
	cache map[pairKey]bool
}

type pairKey struct {
	a, b string
}

// New returns a Discriminator bound to one client and model, with an
// empty per-vote cache. Callers should construct one per vote.
func New(client llm.Client, model string) *Discriminator {
	return &Discriminator{
		client: client,
		model:  model,
		cache:  make(map[pairKey]bool),
	}
}

// Equivalent asks whether candidate a is a semantically equivalent
// response to representative b, for the given step and context
// snapshot. The direction of comparison matters: callers must pass
// (new candidate, group representative), never the reverse.
func (d *Discriminator) Equivalent(ctx context.Context, snap mdapcontext.Snapshot, s step.Step, a, b step.Candidate) (bool, error) {
	key := pairKey{a: a.ID, b: b.ID}

	d.mu.Lock()
	if cached, ok := d.cache[key]; ok {
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	prompt, err := prompts.Render(prompts.Discriminate, prompts.Vars{
		"context":   snap.PromptContext(),
		"step_type": string(s.Type),
		"a":         a.Text,
		"b":         b.Text,
	})
	if err != nil {
		return false, fmt.Errorf("discriminate: render prompt: %w", err)
	}

	resp, err := d.client.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		Model:       d.model,
		Temperature: 0,
		MaxTokens:   16,
	})
	if err != nil {
		return false, fmt.Errorf("discriminate: %w", err)
	}

	equivalent := parseYesNo(resp.Text)

	d.mu.Lock()
	d.cache[key] = equivalent
	d.mu.Unlock()

	return equivalent, nil
}

// parseYesNo reads the leading token of the discriminator's reply.
// An unparseable reply defaults to NO: an uncertain discriminator
// must never silently merge two candidates that might differ.
func parseYesNo(text string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(text))
	return strings.HasPrefix(trimmed, "YES")
}
