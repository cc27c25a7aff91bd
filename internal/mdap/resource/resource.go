// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resource tracks token, call, time, and cost usage against
// optional budgets, and reports OK/WARNING/EXCEEDED status so the
// orchestrator can stop a run before it overspends.
package resource

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BudgetStatus classifies how close a run is to its configured limits.
type BudgetStatus string

const (
	StatusOK       BudgetStatus = "OK"
	StatusWarning  BudgetStatus = "WARNING"
	StatusExceeded BudgetStatus = "EXCEEDED"
)

// warningThreshold is the fraction of a budget at which status moves
// from OK to WARNING.
const warningThreshold = 0.8

// PriceTable maps a model identifier to its per-1000-token cost. The
// one Anthropic price point seeded by DefaultPriceTable is the one this
// project has concrete cost data for; callers extend the table via
// SetPrice for any other model.
type PriceTable struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice
}

// ModelPrice is the per-1000-token cost for one model.
type ModelPrice struct {
	InputPer1K  float64
	OutputPer1K float64
}

// DefaultPriceTable returns a table seeded with Claude 3.5 Sonnet
// pricing, extendable for any other backend via SetPrice.
func DefaultPriceTable() *PriceTable {
	pt := &PriceTable{prices: make(map[string]ModelPrice)}
	pt.SetPrice("claude-3-5-sonnet-20240620", ModelPrice{InputPer1K: 0.003, OutputPer1K: 0.015})
	return pt
}

// SetPrice registers or overrides the price for a model.
func (pt *PriceTable) SetPrice(model string, price ModelPrice) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.prices[model] = price
}

// Cost estimates the USD cost of a call given its token counts. An
// unregistered model returns 0: an unknown price should not silently
// masquerade as a budget breach.
func (pt *PriceTable) Cost(model string, inputTokens, outputTokens int) float64 {
	pt.mu.RLock()
	price, ok := pt.prices[model]
	pt.mu.RUnlock()
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*price.InputPer1K + float64(outputTokens)/1000*price.OutputPer1K
}

// Usage is a running total of resources spent so far.
type Usage struct {
	InputTokens  int
	OutputTokens int
	APICalls     int
	Elapsed      time.Duration
	CostUSD      float64
}

// TokensTotal is the sum of input and output tokens.
func (u Usage) TokensTotal() int { return u.InputTokens + u.OutputTokens }

// Budget bounds one or more resource dimensions. A zero field means
// that dimension is unbounded.
type Budget struct {
	MaxTokens   int
	MaxCalls    int
	MaxDuration time.Duration
	MaxCostUSD  float64
}

// IsEmpty reports whether no limit is set on any dimension.
func (b Budget) IsEmpty() bool {
	return b.MaxTokens == 0 && b.MaxCalls == 0 && b.MaxDuration == 0 && b.MaxCostUSD == 0
}

// Check is the result of comparing Usage against a Budget.
type Check struct {
	Status  BudgetStatus
	Reason  string
	Fraction float64 // highest fraction-of-budget across all bounded dimensions
}

// Manager tracks usage for one pipeline run and checks it against an
// optional budget. Safe for concurrent use: multiple in-flight LLM
// calls from a parallel vote may report usage simultaneously.
type Manager struct {
	mu     sync.Mutex
	usage  Usage
	budget Budget
	prices *PriceTable
	start  time.Time

	metrics *metrics
}

type metrics struct {
	inputTokens  prometheus.Counter
	outputTokens prometheus.Counter
	apiCalls     prometheus.Counter
	costUSD      prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		inputTokens: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "mdap", Subsystem: "resource", Name: "input_tokens_total",
			Help: "Total input tokens spent across all votes.",
		}),
		outputTokens: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "mdap", Subsystem: "resource", Name: "output_tokens_total",
			Help: "Total output tokens spent across all votes.",
		}),
		apiCalls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "mdap", Subsystem: "resource", Name: "api_calls_total",
			Help: "Total LLM API calls made.",
		}),
		costUSD: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "mdap", Subsystem: "resource", Name: "cost_usd_total",
			Help: "Total estimated cost in USD.",
		}),
	}
}

// sharedMetrics is registered once with the default Prometheus
// registry; every Manager in the process adds to the same counters.
var sharedMetrics = newMetrics()

// New returns a Manager tracking against budget, using prices for
// cost estimation. Pass a zero Budget for unbounded tracking.
func New(budget Budget, prices *PriceTable) *Manager {
	if prices == nil {
		prices = DefaultPriceTable()
	}
	return &Manager{budget: budget, prices: prices, start: time.Now(), metrics: sharedMetrics}
}

// Track records one completed LLM call's token usage against a model.
func (m *Manager) Track(model string, inputTokens, outputTokens int) {
	cost := m.prices.Cost(model, inputTokens, outputTokens)

	m.mu.Lock()
	m.usage.InputTokens += inputTokens
	m.usage.OutputTokens += outputTokens
	m.usage.APICalls++
	m.usage.CostUSD += cost
	m.usage.Elapsed = time.Since(m.start)
	m.mu.Unlock()

	m.metrics.inputTokens.Add(float64(inputTokens))
	m.metrics.outputTokens.Add(float64(outputTokens))
	m.metrics.apiCalls.Inc()
	m.metrics.costUSD.Add(cost)
}

// Usage returns a copy of the current running totals.
func (m *Manager) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.usage
	u.Elapsed = time.Since(m.start)
	return u
}

// CheckBudget compares current usage against the configured budget
// and returns the worst status across all bounded dimensions.
func (m *Manager) CheckBudget() Check {
	if m.budget.IsEmpty() {
		return Check{Status: StatusOK, Reason: "no budget configured"}
	}
	u := m.Usage()

	worst := Check{Status: StatusOK}
	consider := func(fraction float64, reason string) {
		if fraction > worst.Fraction {
			worst.Fraction = fraction
			worst.Reason = reason
		}
	}

	if m.budget.MaxTokens > 0 {
		consider(float64(u.TokensTotal())/float64(m.budget.MaxTokens), "token budget")
	}
	if m.budget.MaxCalls > 0 {
		consider(float64(u.APICalls)/float64(m.budget.MaxCalls), "call budget")
	}
	if m.budget.MaxDuration > 0 {
		consider(float64(u.Elapsed)/float64(m.budget.MaxDuration), "time budget")
	}
	if m.budget.MaxCostUSD > 0 {
		consider(u.CostUSD/m.budget.MaxCostUSD, "cost budget")
	}

	switch {
	case worst.Fraction >= 1.0:
		worst.Status = StatusExceeded
	case worst.Fraction >= warningThreshold:
		worst.Status = StatusWarning
	default:
		worst.Status = StatusOK
	}
	return worst
}

// SetBudget sets one budget dimension by name, for the CLI/API's
// `budget <kind> <value>` command. kind is one of "tokens", "cost",
// "time"; value is parsed according to kind (an integer token count,
// a dollar amount, or a Go duration string like "10m").
func (m *Manager) SetBudget(kind, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case "tokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("resource: invalid token budget %q: %w", value, err)
		}
		m.budget.MaxTokens = n
	case "cost":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("resource: invalid cost budget %q: %w", value, err)
		}
		m.budget.MaxCostUSD = f
	case "time":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("resource: invalid time budget %q: %w", value, err)
		}
		m.budget.MaxDuration = d
	default:
		return fmt.Errorf("resource: unknown budget kind %q (want tokens, cost, or time)", kind)
	}
	return nil
}

// Summary renders a short human-readable usage report for the CLI's
// `resources` command.
func (m *Manager) Summary() string {
	u := m.Usage()
	check := m.CheckBudget()
	return fmt.Sprintf(
		"tokens=%d (in=%d out=%d) calls=%d cost=$%.4f elapsed=%s status=%s",
		u.TokensTotal(), u.InputTokens, u.OutputTokens, u.APICalls, u.CostUSD, u.Elapsed.Round(time.Second), check.Status,
	)
}
