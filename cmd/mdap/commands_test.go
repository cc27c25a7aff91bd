// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"testing"
)

func TestExitCodeForMapsExitErr(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&exitErr{exitError, errors.New("boom")}, 1},
		{&exitErr{exitCancelled, errors.New("cancelled")}, 2},
		{&exitErr{exitBudget, errors.New("budget exceeded")}, 3},
		{errors.New("plain error, not an exitErr"), 1},
	}
	for _, tt := range tests {
		if got := exitCodeFor(tt.err); got != tt.want {
			t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExitErrUnwrapsToUnderlyingError(t *testing.T) {
	inner := errors.New("root cause")
	wrapped := &exitErr{exitError, inner}
	if !errors.Is(wrapped, inner) {
		t.Fatal("errors.Is(wrapped, inner) = false, want true")
	}
	if wrapped.Error() != "root cause" {
		t.Fatalf("Error() = %q, want %q", wrapped.Error(), "root cause")
	}
}
