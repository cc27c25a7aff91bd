// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package phases

import (
	"context"

	"github.com/aleutian-oss/mdap/pkg/llm"
)

// scriptedClient returns one fixed completion text per call, cycling
// through texts if there are more calls than scripted responses. It
// never inspects the request, so it is unsuitable for tests that need
// the discriminator and the generator to answer differently -- those
// tests use routedClient instead.
type scriptedClient struct {
	texts []string
	calls int
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	text := c.texts[c.calls%len(c.texts)]
	c.calls++
	return llm.CompletionResponse{Text: text, InputTokens: 10, OutputTokens: 10}, nil
}

// routedClient dispatches to generate or discriminate based on the
// rendered prompt's content, since templatedGenerator and
// discriminate.Discriminator share the same llm.Client but need
// different canned answers in these tests (a candidate's code text
// vs. a YES/NO equivalence verdict).
type routedClient struct {
	generate      string
	discriminate  string
	generateCalls int
}

func (c *routedClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	if req.MaxTokens <= 16 {
		return llm.CompletionResponse{Text: c.discriminate, InputTokens: 5, OutputTokens: 1}, nil
	}
	c.generateCalls++
	return llm.CompletionResponse{Text: c.generate, InputTokens: 10, OutputTokens: 10}, nil
}
