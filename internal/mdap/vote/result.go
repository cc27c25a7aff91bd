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
	"errors"

	"github.com/aleutian-oss/mdap/internal/mdap/step"
)

// Outcome is the terminal classification of a completed vote.
type Outcome string

const (
	// OutcomeAheadByK means a group reached a lead of K over the runner-up.
	OutcomeAheadByK Outcome = "AHEAD_BY_K"
	// OutcomeMaxSamples means MaxSamples accepted candidates were spent
	// without any group reaching a lead of K; the plurality group wins.
	OutcomeMaxSamples Outcome = "MAX_SAMPLES"
	// OutcomeCancelled means the vote was cooperatively cancelled before
	// a winner was reached; Context is left unmutated by the caller.
	OutcomeCancelled Outcome = "CANCELLED"
	// OutcomeBudgetExhausted means the red-flag rejection budget was
	// spent before a winner was reached. A resource budget breach does
	// not produce this outcome; it is detected between phases.
	OutcomeBudgetExhausted Outcome = "BUDGET_EXHAUSTED"
)

// ErrCancelled is returned by Vote when the interrupt controller's
// cancel flag was observed at a checkpoint.
var ErrCancelled = errors.New("vote: cancelled")

// Result is the full record of one vote: every candidate seen, the
// resulting groups, and the terminal outcome.
type Result struct {
	StepID        string        `json:"step_id"`
	Outcome       Outcome       `json:"outcome"`
	Winner        *step.Group   `json:"winner,omitempty"`
	Groups        []step.Group  `json:"groups"`
	Samples       int           `json:"samples"`
	Rejections    int           `json:"rejections"`
	WinningMargin int           `json:"winning_margin"`
}

// winningMargin returns the lead of the top group over the runner-up,
// or the top group's own vote count if it is alone.
func winningMargin(groups []step.Group) int {
	if len(groups) == 0 {
		return 0
	}
	best, second := 0, 0
	for _, g := range groups {
		v := g.Votes()
		if v > best {
			second = best
			best = v
		} else if v > second {
			second = v
		}
	}
	return best - second
}

// plurality returns the group with the most votes, first group wins
// ties (lowest group ID, matching ascending classification order).
func plurality(groups []step.Group) *step.Group {
	if len(groups) == 0 {
		return nil
	}
	winner := groups[0]
	for _, g := range groups[1:] {
		if g.Votes() > winner.Votes() {
			winner = g
		}
	}
	return &winner
}
