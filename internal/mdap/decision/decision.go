// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decision is the pipeline's append-only audit log: every
// vote and every state transition is recorded here, queryable by
// phase, by ID, or as an aggregate summary.
package decision

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aleutian-oss/mdap/internal/mdap/vote"
)

// Phase names the pipeline phase a Record belongs to.
type Phase string

const (
	PhaseExpand    Phase = "EXPAND"
	PhaseDecompose Phase = "DECOMPOSE"
	PhaseGenerate  Phase = "GENERATE"
	PhaseValidate  Phase = "VALIDATE"
)

// ConfidenceLevel is a coarse heuristic derived from a vote's winning
// margin, used to prioritize which decisions a human should review
// first.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Confidence buckets a winning margin into a level: >=5 is high, >=3
// is medium, anything smaller is low.
func Confidence(margin int) ConfidenceLevel {
	switch {
	case margin >= 5:
		return ConfidenceHigh
	case margin >= 3:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Record is one entry in the decision log: a vote outcome, or a bare
// state transition when no vote was involved (e.g. a pause/resume).
type Record struct {
	ID          string          `json:"id"`
	Phase       Phase           `json:"phase"`
	Timestamp   time.Time       `json:"timestamp"`
	FromState   string          `json:"from_state"`
	ToState     string          `json:"to_state"`
	VoteResult  *vote.Result    `json:"vote_result,omitempty"`
	Confidence  ConfidenceLevel `json:"confidence,omitempty"`
	Explanation string          `json:"explanation"`
	Diff        string          `json:"diff,omitempty"`
}

// Summary returns a one-line human-readable summary of the record.
func (r Record) Summary() string {
	if r.VoteResult == nil {
		return fmt.Sprintf("[%s] %s -> %s: %s", r.Phase, r.FromState, r.ToState, r.Explanation)
	}
	winner := "none"
	if r.VoteResult.Winner != nil {
		winner = fmt.Sprintf("group %d", r.VoteResult.Winner.ID)
	}
	return fmt.Sprintf("[%s] %s (samples=%d margin=%d winner=%s confidence=%s)",
		r.Phase, r.VoteResult.Outcome, r.VoteResult.Samples, r.VoteResult.WinningMargin, winner, r.Confidence)
}

// Tracker is the append-only, mutex-guarded decision log for one
// pipeline run. The Python original this is grounded on ran
// single-threaded under asyncio and needed no locking; this port adds
// a mutex because votes may run candidate generation across multiple
// goroutines and record concurrently.
type Tracker struct {
	mu      sync.RWMutex
	records []Record
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

// Record appends a vote-backed decision and returns its ID.
func (t *Tracker) Record(phase Phase, from, to string, result *vote.Result, explanation string) string {
	rec := Record{
		ID:          uuid.NewString(),
		Phase:       phase,
		Timestamp:   time.Now(),
		FromState:   from,
		ToState:     to,
		VoteResult:  result,
		Explanation: explanation,
	}
	if result != nil {
		rec.Confidence = Confidence(result.WinningMargin)
	}
	t.mu.Lock()
	t.records = append(t.records, rec)
	t.mu.Unlock()
	return rec.ID
}

// SetDiff attaches a unified diff to an already-recorded decision,
// for the case where a regeneration replaces a prior winning code for
// the same function signature. No-op if id is unknown.
func (t *Tracker) SetDiff(id, diffText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.records {
		if t.records[i].ID == id {
			t.records[i].Diff = diffText
			return
		}
	}
}

// RecordTransition appends a bare state transition with no vote.
func (t *Tracker) RecordTransition(from, to string, explanation string) string {
	return t.Record("", from, to, nil, explanation)
}

// GetByID returns the record with the given ID, if present.
func (t *Tracker) GetByID(id string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// ByPhase returns every record for the given phase, in insertion
// order.
func (t *Tracker) ByPhase(phase Phase) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Record
	for _, r := range t.records {
		if r.Phase == phase {
			out = append(out, r)
		}
	}
	return out
}

// All returns every record in insertion order.
func (t *Tracker) All() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Last returns the n most recent records, oldest first.
func (t *Tracker) Last(n int) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n > len(t.records) {
		n = len(t.records)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Record, n)
	copy(out, t.records[len(t.records)-n:])
	return out
}

// Count returns the total number of recorded decisions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Explain renders a fuller, multi-line explanation of one decision,
// suitable for the CLI's `explain` command.
func (t *Tracker) Explain(id string) (string, error) {
	rec, ok := t.GetByID(id)
	if !ok {
		return "", fmt.Errorf("decision: no record with id %q", id)
	}
	out := fmt.Sprintf("Decision %s\nPhase: %s\nTransition: %s -> %s\nTime: %s\n",
		rec.ID, rec.Phase, rec.FromState, rec.ToState, rec.Timestamp.Format(time.RFC3339))
	if rec.VoteResult != nil {
		out += fmt.Sprintf("Outcome: %s\nSamples: %d\nRejections: %d\nWinning margin: %d\nConfidence: %s\n",
			rec.VoteResult.Outcome, rec.VoteResult.Samples, rec.VoteResult.Rejections, rec.VoteResult.WinningMargin, rec.Confidence)
	}
	out += "Explanation: " + rec.Explanation + "\n"
	if rec.Diff != "" {
		out += "Diff (replaces prior winner for this signature):\n" + rec.Diff
	}
	return out, nil
}
