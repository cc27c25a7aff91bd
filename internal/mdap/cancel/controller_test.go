// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cancel

import (
	"context"
	"testing"
	"time"
)

func TestControllerPauseResume(t *testing.T) {
	c := NewController()
	if c.State() != StateRunning {
		t.Fatalf("new controller state = %v, want StateRunning", c.State())
	}

	c.Pause()
	if c.State() != StatePaused {
		t.Fatalf("state after Pause = %v, want StatePaused", c.State())
	}

	done := make(chan struct{})
	go func() {
		c.AwaitResume(context.Background())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("AwaitResume returned before Resume was called")
	case <-time.After(20 * time.Millisecond):
	}

	c.Resume()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitResume did not return after Resume")
	}

	if c.State() != StateRunning {
		t.Fatalf("state after Resume = %v, want StateRunning", c.State())
	}
}

func TestControllerAwaitResumeReturnsImmediatelyWhenNotPaused(t *testing.T) {
	c := NewController()
	done := make(chan struct{})
	go func() {
		c.AwaitResume(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitResume blocked despite controller not being paused")
	}
}

func TestControllerCancelWakesPausedAwaiter(t *testing.T) {
	c := NewController()
	c.Pause()

	done := make(chan struct{})
	go func() {
		c.AwaitResume(context.Background())
		close(done)
	}()

	c.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Cancel did not wake a paused AwaitResume")
	}

	if !c.ShouldCancel() {
		t.Fatal("ShouldCancel() = false after Cancel()")
	}
	if c.State() != StateCancelled {
		t.Fatalf("state after Cancel = %v, want StateCancelled", c.State())
	}
}

func TestControllerReset(t *testing.T) {
	c := NewController()
	c.Pause()
	c.Cancel()
	c.Reset()

	if c.ShouldCancel() {
		t.Fatal("ShouldCancel() = true after Reset()")
	}
	if c.State() != StateRunning {
		t.Fatalf("state after Reset = %v, want StateRunning", c.State())
	}
}

func TestControllerAwaitResumeRespectsContextCancellation(t *testing.T) {
	c := NewController()
	c.Pause()

	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.AwaitResume(ctx)
		close(done)
	}()

	cancelCtx()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitResume did not respect context cancellation")
	}
}
