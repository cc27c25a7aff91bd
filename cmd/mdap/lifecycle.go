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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aleutian-oss/mdap/internal/config"
	"github.com/aleutian-oss/mdap/internal/logging"
	"github.com/aleutian-oss/mdap/internal/mdap/api"
	"github.com/aleutian-oss/mdap/internal/mdap/pipeline"
	"github.com/aleutian-oss/mdap/internal/mdap/resource"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

func loadConfig() error {
	return config.Load()
}

// buildClient constructs the LLM backend config.Global.Backend names.
func buildClient() (llm.Client, error) {
	switch config.Global.Backend.Type {
	case "openai":
		return llm.NewOpenAIClient(config.Global.Backend.Model)
	default:
		return llm.NewAnthropicClient(config.Global.Backend.Model)
	}
}

// buildOrchestrator wires a fresh Orchestrator from the loaded
// config, for commands that run the pipeline synchronously
// (`run`, `expand`, `serve`). The returned cleanup closes the
// checkpoint store.
func buildOrchestrator() (*pipeline.Orchestrator, func(), error) {
	client, err := buildClient()
	if err != nil {
		return nil, nil, fmt.Errorf("mdap: build llm client: %w", err)
	}

	store, err := pipeline.OpenStore(config.Global.Checkpoint.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("mdap: open checkpoint store: %w", err)
	}

	v := config.Global.Vote
	orch := pipeline.New(pipeline.Deps{
		Client: client,
		Model:  config.Global.Backend.Model,
		Config: vote.Config{
			K:                 v.K,
			MaxSamples:        v.MaxSamples,
			Parallelism:       v.Parallelism,
			MaxDepth:          v.MaxDepth,
			Temperature:       v.Temperature,
			CallTimeout:       v.CallTimeout,
			MaxTokensResponse: v.MaxTokensResponse,
		},
		Budget: resource.Budget{
			MaxTokens:   config.Global.Budget.MaxTokens,
			MaxCalls:    config.Global.Budget.MaxCalls,
			MaxDuration: config.Global.Budget.MaxDuration,
			MaxCostUSD:  config.Global.Budget.MaxCostUSD,
		},
		Prices: resource.DefaultPriceTable(),
		Store:  store,
		Logger: logging.New(logging.Config{
			Level:   logging.ParseLevel(config.Global.Logging.Level),
			Service: "mdap",
			JSON:    config.Global.Logging.Format == "json",
		}).Slog(),
	})

	return orch, func() { _ = store.Close() }, nil
}

// runWithServer runs task through the full pipeline while also
// serving the status API, so an operator can watch progress and
// pause/resume/cancel it from another terminal.
func runWithServer(cmd *cobra.Command, task string) error {
	orch, cleanup, err := buildOrchestrator()
	if err != nil {
		return &exitErr{exitError, err}
	}
	defer cleanup()

	server := api.New(orch, nil)
	go func() {
		if err := server.Run(serveAddr); err != nil {
			fmt.Println("mdap: status api stopped:", err)
		}
	}()

	result, err := orch.Run(cmd.Context(), task, language)
	if err != nil {
		if orch.Resources().CheckBudget().Status == resource.StatusExceeded {
			return &exitErr{exitBudget, err}
		}
		if orch.Controller().ShouldCancel() {
			return &exitErr{exitCancelled, err}
		}
		return &exitErr{exitError, err}
	}
	fmt.Printf("completed: %d functions, %d tokens, $%.4f\n",
		len(result.Functions), result.Metrics.Tokens, result.Metrics.CostUSD)
	return nil
}
