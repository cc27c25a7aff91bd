// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package redflag implements the cheap, local pre-filter applied to
// every candidate before it reaches the discriminator: a short
// circuiting chain of length, shape, and parse checks that rejects
// obviously-unusable candidates without spending an LLM call.
package redflag

import (
	"regexp"
	"strings"

	"github.com/aleutian-oss/mdap/internal/mdap/step"
)

// Reason names which check rejected a candidate. Empty means the
// candidate passed every check.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonEmpty         Reason = "empty_or_whitespace"
	ReasonTooShort      Reason = "too_short"
	ReasonTooLong       Reason = "too_long"
	ReasonWrongShape    Reason = "wrong_shape"
	ReasonParseError    Reason = "parse_error"
	ReasonLooksLikeProse Reason = "looks_like_explanation"
)

// Result is the outcome of running Filter.Check against one candidate.
type Result struct {
	Passed bool   `json:"passed"`
	Reason Reason `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// LanguageParser checks whether source text parses as valid code in
// one language. It reports the first parse error found, if any.
type LanguageParser interface {
	Parse(source string) (ok bool, detail string)
}

// Filter runs the length, format, and parse checks in sequence,
// returning on the first failure (matching the original check()'s
// short-circuit order: length, then format, then syntax).
type Filter struct {
	MinLength int
	MaxLength int
	Parsers   map[step.Language]LanguageParser
}

// DefaultMaxLength is the red-flag length threshold used when a
// caller does not have a configured max_tokens_response to pass to
// NewFilterWithMaxLength.
const DefaultMaxLength = 500

// NewFilter returns a Filter with the default length bounds and the
// given per-language parser registry. A language absent from the
// registry simply skips the parse sub-check, per the governing
// invariant that an unsupported language must not block a vote.
func NewFilter(parsers map[step.Language]LanguageParser) *Filter {
	return NewFilterWithMaxLength(parsers, DefaultMaxLength)
}

// NewFilterWithMaxLength returns a Filter whose length check is capped
// at maxLength, the char-count proxy for the configured
// max_tokens_response. A non-positive maxLength falls back to
// DefaultMaxLength.
func NewFilterWithMaxLength(parsers map[step.Language]LanguageParser, maxLength int) *Filter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Filter{
		MinLength: 3,
		MaxLength: maxLength,
		Parsers:   parsers,
	}
}

var explanationPattern = regexp.MustCompile(`(?i)^(here'?s|i (will|would|can)|let me|this (function|code|implementation))\b`)

// Check runs the three-stage red-flag pipeline against one candidate's
// text for the given step. Rejections returned here do not count
// against a vote's MaxSamples counter; callers track them separately.
func (f *Filter) Check(c step.Candidate, s step.Step) Result {
	if r := f.checkLength(c.Text); !r.Passed {
		return r
	}
	if r := f.checkFormat(c.Text, s.OutputShape); !r.Passed {
		return r
	}
	if r := f.checkSyntax(c.Text, s.Language); !r.Passed {
		return r
	}
	return Result{Passed: true}
}

func (f *Filter) checkLength(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Passed: false, Reason: ReasonEmpty}
	}
	if len(trimmed) < f.MinLength {
		return Result{Passed: false, Reason: ReasonTooShort, Detail: trimmed}
	}
	if f.MaxLength > 0 && len(trimmed) > f.MaxLength {
		return Result{Passed: false, Reason: ReasonTooLong}
	}
	return Result{Passed: true}
}

func (f *Filter) checkFormat(text string, shape step.OutputShape) Result {
	trimmed := strings.TrimSpace(text)
	switch shape {
	case step.ShapeJSONArray:
		if !strings.HasPrefix(trimmed, "[") {
			return Result{Passed: false, Reason: ReasonWrongShape, Detail: "expected a JSON array"}
		}
	case step.ShapeYesNo:
		upper := strings.ToUpper(trimmed)
		if !strings.HasPrefix(upper, "YES") && !strings.HasPrefix(upper, "NO") {
			return Result{Passed: false, Reason: ReasonWrongShape, Detail: "expected YES or NO"}
		}
	case step.ShapeFunctionDef:
		if explanationPattern.MatchString(trimmed) {
			return Result{Passed: false, Reason: ReasonLooksLikeProse}
		}
	}
	return Result{Passed: true}
}

func (f *Filter) checkSyntax(text string, lang step.Language) Result {
	if lang == step.LanguageUnknown {
		return Result{Passed: true}
	}
	parser, ok := f.Parsers[lang]
	if !ok {
		return Result{Passed: true}
	}
	code := extractCode(text)
	if ok, detail := parser.Parse(code); !ok {
		return Result{Passed: false, Reason: ReasonParseError, Detail: detail}
	}
	return Result{Passed: true}
}

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n(.*?)```")

// extractCode strips a single markdown fenced block if present,
// otherwise returns the text unchanged.
func extractCode(text string) string {
	if m := fencePattern.FindStringSubmatch(text); len(m) == 2 {
		return m[1]
	}
	return text
}

// RejectionBudget returns the maximum number of consecutive red-flag
// rejections a vote tolerates before forcing BUDGET_EXHAUSTED, given
// the vote's MaxSamples.
func RejectionBudget(maxSamples int) int {
	return 3 * maxSamples
}
