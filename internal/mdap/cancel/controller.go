// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cancel implements cooperative pause/resume/cancel for a
// running pipeline. Suspension is observed at two checkpoints only:
// before issuing a new LLM request, and after a candidate arrives.
// An in-flight request is always allowed to finish; its result is
// discarded if the controller has moved to cancelled by the time it
// lands.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
)

// State reports the controller's current suspension state.
type State int

const (
	StateRunning State = iota
	StatePaused
	StateCancelled
)

// Controller holds the pause/cancel flags a Voter checks at its two
// checkpoints. One Controller is shared by an entire pipeline run;
// pausing it suspends every in-progress vote at its next checkpoint.
type Controller struct {
	cancelled atomic.Bool

	mu      sync.Mutex
	paused  bool
	resume  chan struct{}
}

// NewController returns a running, unpaused, uncancelled controller.
func NewController() *Controller {
	return &Controller{resume: make(chan struct{})}
}

// Pause suspends any vote at its next checkpoint. Safe to call
// multiple times; a second Pause while already paused is a no-op.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume releases any vote parked at AwaitResume.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resume)
	c.resume = make(chan struct{})
}

// Cancel sets the cancellation flag. A paused run is also woken so it
// can observe the cancellation rather than staying parked forever.
func (c *Controller) Cancel() {
	c.cancelled.Store(true)
	c.mu.Lock()
	if c.paused {
		c.paused = false
		close(c.resume)
		c.resume = make(chan struct{})
	}
	c.mu.Unlock()
}

// Reset clears cancellation and pause state, for starting a fresh run
// on a reused controller.
func (c *Controller) Reset() {
	c.cancelled.Store(false)
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// ShouldCancel implements vote.Interrupts.
func (c *Controller) ShouldCancel() bool {
	return c.cancelled.Load()
}

// AwaitResume implements vote.Interrupts: it blocks while paused,
// and returns immediately if not paused, if the context is done, or
// once Resume or Cancel is called.
func (c *Controller) AwaitResume(ctx context.Context) {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	ch := c.resume
	c.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
	}
}

// State reports the controller's current high-level state.
func (c *Controller) State() State {
	if c.cancelled.Load() {
		return StateCancelled
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return StatePaused
	}
	return StateRunning
}
