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
	"os"

	"github.com/mattn/go-isatty"
)

// colorEnabled reports whether stdout is an interactive terminal, so
// piped or redirected output (CI logs, `| tee`) never carries escape
// codes.
var colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

const (
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiReset  = "\x1b[0m"
)

// colorizeState wraps a pipeline state string in a color matching its
// severity, for the `status` command's terminal output.
func colorizeState(state string) string {
	if !colorEnabled {
		return state
	}
	switch state {
	case "COMPLETED":
		return ansiGreen + state + ansiReset
	case "ERROR":
		return ansiRed + state + ansiReset
	case "PAUSED", "AWAITING_DECISION":
		return ansiYellow + state + ansiReset
	default:
		return state
	}
}

// colorizeBudget wraps a budget status string (OK/WARNING/EXCEEDED)
// for the `resources` command's terminal output.
func colorizeBudget(status string) string {
	if !colorEnabled {
		return status
	}
	switch status {
	case "OK":
		return ansiGreen + status + ansiReset
	case "WARNING":
		return ansiYellow + status + ansiReset
	case "EXCEEDED":
		return ansiRed + status + ansiReset
	default:
		return status
	}
}
