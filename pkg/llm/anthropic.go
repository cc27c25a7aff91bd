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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/time/rate"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient implements Client against the Anthropic Messages API.
//
// The API key is held inside a memguard enclave rather than a plain
// string for the lifetime of the client, so a heap dump or accidental
// log of the struct does not leak it; it is only decrypted into a
// locked buffer for the duration of one Complete call.
type AnthropicClient struct {
	httpClient *http.Client
	key        *memguard.Enclave
	model      string
	baseURL    string
	limiter    *rate.Limiter
}

// NewAnthropicClient reads ANTHROPIC_API_KEY (falling back to a
// mounted secrets file, matching common container secret-injection
// conventions) and wraps it in a memguard enclave.
func NewAnthropicClient(model string) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		if content, err := os.ReadFile("/run/secrets/anthropic_api_key"); err == nil {
			apiKey = strings.TrimSpace(string(content))
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY is not set")
	}
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}

	buf := memguard.NewBufferFromBytes([]byte(apiKey))
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		key:        buf.Seal(),
		model:      model,
		baseURL:    anthropicBaseURL,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

// Complete implements Client.
func (a *AnthropicClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return CompletionResponse{}, ErrEmptyPrompt
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return CompletionResponse{}, &Failure{Kind: FailureTimeout, Err: err}
	}

	keyBuf, err := a.key.Open()
	if err != nil {
		return CompletionResponse{}, &Failure{Kind: FailureTransportError, Err: err}
	}
	defer keyBuf.Destroy()

	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temp := float32(req.Temperature)

	payload := anthropicRequest{
		Model:       model,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: &temp,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResponse{}, &Failure{Kind: FailureMalformed, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, &Failure{Kind: FailureTransportError, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("x-api-key", string(keyBuf.Bytes()))

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		kind := FailureTransportError
		if ctx.Err() != nil {
			kind = FailureTimeout
		}
		return CompletionResponse{}, &Failure{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, &Failure{Kind: FailureTransportError, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return CompletionResponse{}, &Failure{Kind: FailureRateLimited, Err: fmt.Errorf("anthropic: rate limited")}
	}
	if resp.StatusCode >= 500 {
		return CompletionResponse{}, &Failure{Kind: FailureTransportError, Err: fmt.Errorf("anthropic: status %d", resp.StatusCode)}
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CompletionResponse{}, &Failure{Kind: FailureMalformed, Err: err}
	}
	if parsed.Error != nil {
		if resp.StatusCode == http.StatusBadRequest {
			return CompletionResponse{}, &Failure{Kind: FailureMalformed, Err: fmt.Errorf("anthropic: %s", parsed.Error.Message)}
		}
		return CompletionResponse{}, &Failure{Kind: FailureTransportError, Err: fmt.Errorf("anthropic: %s", parsed.Error.Message)}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		slog.Warn("anthropic response had no text content blocks")
	}

	return CompletionResponse{
		Text:         text.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

var _ Client = (*AnthropicClient)(nil)
