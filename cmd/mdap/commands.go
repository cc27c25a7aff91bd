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
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aleutian-oss/mdap/internal/mdap/resource"
)

// exitCode classifies a run's outcome per the CLI's documented exit
// code contract: 0 COMPLETED, 1 ERROR, 2 cancelled by user, 3 budget
// exhausted.
type exitCode int

const (
	exitCompleted exitCode = 0
	exitError     exitCode = 1
	exitCancelled exitCode = 2
	exitBudget    exitCode = 3
)

// exitErr lets a command communicate a specific exit code back to
// main without main having to re-inspect error types.
type exitErr struct {
	code exitCode
	err  error
}

func (e *exitErr) Error() string { return e.err.Error() }
func (e *exitErr) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee *exitErr
	if errors.As(err, &ee) {
		return int(ee.code)
	}
	return int(exitError)
}

var language string

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Run the full pipeline for a task, from expand through validate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := buildOrchestrator()
		if err != nil {
			return &exitErr{exitError, err}
		}
		defer cleanup()

		result, err := orch.Run(cmd.Context(), args[0], language)
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
	},
}

var expandCmd = &cobra.Command{
	Use:   "expand [task]",
	Short: "Run only the EXPAND phase and print the resulting requirements",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, cleanup, err := buildOrchestrator()
		if err != nil {
			return &exitErr{exitError, err}
		}
		defer cleanup()

		requirements, _, err := orch.ExpandOnly(cmd.Context(), args[0], language)
		if err != nil {
			return &exitErr{exitError, err}
		}
		fmt.Println(requirements)
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the active run at its next checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveOrchestrator(func(client *daemonClient) error {
			return client.Pause()
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveOrchestrator(func(client *daemonClient) error {
			return client.Resume()
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active run and discard its checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveOrchestrator(func(client *daemonClient) error {
			return client.Cancel()
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the active run's current pipeline state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveOrchestrator(func(client *daemonClient) error {
			state, err := client.Status()
			if err != nil {
				return err
			}
			fmt.Println(colorizeState(state))
			return nil
		})
	},
}

var explainID string

var explainCmd = &cobra.Command{
	Use:   "explain [id]",
	Short: "Print a full explanation of one recorded decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveOrchestrator(func(client *daemonClient) error {
			explanation, err := client.Explain(args[0])
			if err != nil {
				return err
			}
			fmt.Println(explanation)
			return nil
		})
	},
}

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history [n]",
	Short: "Print the last n recorded decisions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n := historyN
		if len(args) == 1 {
			parsed, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("history: invalid count %q: %w", args[0], err)
			}
			n = parsed
		}
		return withActiveOrchestrator(func(client *daemonClient) error {
			records, err := client.History(n)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Println(r)
			}
			return nil
		})
	},
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Print current token/call/cost usage against budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveOrchestrator(func(client *daemonClient) error {
			report, err := client.Resources()
			if err != nil {
				return err
			}
			fmt.Printf("usage=%v status=%s reason=%s\n", report.Usage, colorizeBudget(report.Status), report.Reason)
			return nil
		})
	},
}

var budgetCmd = &cobra.Command{
	Use:   "budget [kind] [value]",
	Short: "Set a budget limit: kind is one of tokens, cost, time",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withActiveOrchestrator(func(client *daemonClient) error {
			return client.SetBudget(args[0], args[1])
		})
	},
}

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve [task]",
	Short: "Run the pipeline and serve its status API until completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithServer(cmd, args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&language, "language", "go", "target language for generated code")
	expandCmd.Flags().StringVar(&language, "language", "go", "target language for generated code")
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of decisions to print")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8085", "address for the status API")
	serveCmd.Flags().StringVar(&language, "language", "go", "target language for generated code")
}
