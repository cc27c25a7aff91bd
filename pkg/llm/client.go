// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm defines the completion-backend contract the voting
// engine samples candidates through, plus concrete Anthropic and
// OpenAI implementations.
package llm

import (
	"context"
	"errors"
)

// FailureKind classifies why a Complete call failed, so a caller can
// decide whether to retry, back off, or surface a transport error
// immediately. The Voter does not retry: a failed generation call
// ends the vote with an error.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureTimeout        FailureKind = "timeout"
	FailureRateLimited    FailureKind = "rate_limited"
	FailureTransportError FailureKind = "transport_error"
	FailureMalformed      FailureKind = "malformed_response"
)

// Failure wraps a backend error with its classification.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string { return f.Kind.String() + ": " + f.Err.Error() }
func (f *Failure) Unwrap() error { return f.Err }

func (k FailureKind) String() string { return string(k) }

// Retryable reports whether the failure is transient (a timeout or a
// rate limit), so that a retry after a backoff could succeed.
func (f *Failure) Retryable() bool {
	return f.Kind == FailureTimeout || f.Kind == FailureRateLimited
}

// CompletionRequest is one sampling call: a fully-rendered prompt plus
// the sampling parameters a phase executor's Config translates into.
type CompletionRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// CompletionResponse is one backend's answer, with token accounting
// the resource manager needs to track cost.
type CompletionResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client is the contract every candidate-generation and discriminator
// call is made through. Implementations must be safe for concurrent
// use: the Voter may call Complete from multiple goroutines when
// Config.Parallelism > 1.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// ErrEmptyPrompt is returned by backends that reject an empty prompt
// before making a network call.
var ErrEmptyPrompt = errors.New("llm: prompt must not be empty")
