// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient implements Client against the OpenAI chat-completions
// API via the community go-openai SDK, so the Voter can sample
// candidates from either backend behind the same interface.
type OpenAIClient struct {
	inner   *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClient reads OPENAI_API_KEY and constructs a client for the
// given model (empty defaults to gpt-4o-mini).
func NewOpenAIClient(model string) (*OpenAIClient, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("llm: OPENAI_API_KEY is not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		inner:   openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return CompletionResponse{}, ErrEmptyPrompt
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return CompletionResponse{}, &Failure{Kind: FailureTimeout, Err: err}
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	resp, err := c.inner.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		kind := FailureTransportError
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
			kind = FailureRateLimited
		}
		if ctx.Err() != nil {
			kind = FailureTimeout
		}
		return CompletionResponse{}, &Failure{Kind: kind, Err: err}
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, &Failure{Kind: FailureMalformed, Err: fmt.Errorf("openai: no choices returned")}
	}

	return CompletionResponse{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

var _ Client = (*OpenAIClient)(nil)
