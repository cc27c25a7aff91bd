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
	"fmt"
	"strings"

	"github.com/google/uuid"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/discriminate"
	"github.com/aleutian-oss/mdap/internal/mdap/prompts"
	"github.com/aleutian-oss/mdap/internal/mdap/redflag"
	"github.com/aleutian-oss/mdap/internal/mdap/step"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
	"github.com/aleutian-oss/mdap/pkg/llm"
)

// Report is the parsed result of one VALIDATE vote.
type Report struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// Passed reports whether the code cleared validation with no errors.
func (r Report) Passed() bool { return r.Valid && len(r.Errors) == 0 }

// Validator runs the VALIDATE phase: review generated code against
// its requirements, and independently re-check it with a language
// parser so an LLM's optimistic "VALID: yes" cannot mask a syntax
// error the same parser registry used by the red-flag filter would
// have caught.
type Validator struct {
	Voter   *vote.Voter
	Client  llm.Client
	Model   string
	Config  vote.Config
	Parsers map[step.Language]redflag.LanguageParser
}

// Validate runs one vote and returns the winning report for the given
// function's generated code.
func (v *Validator) Validate(ctx context.Context, snap mdapcontext.Snapshot, fn mdapcontext.FunctionRecord, code string, interrupts vote.Interrupts) (Report, *vote.Result, error) {
	lang := step.Language(snap.Language)

	if parser, ok := v.Parsers[lang]; ok {
		if ok, detail := parser.Parse(code); !ok {
			return Report{Valid: false, Errors: []string{"syntax error: " + detail}}, nil, nil
		}
	}

	s := step.Step{
		ID:          uuid.NewString(),
		Type:        step.TypeValidate,
		Description: fmt.Sprintf("validate %s", fn.Signature),
		Language:    lang,
		OutputShape: step.ShapeFreeformText,
	}

	requirements := strings.Join(fn.Requirements, "\n- ")

	gen := &templatedGenerator{
		client:      v.Client,
		model:       v.Model,
		template:    prompts.Validate,
		temperature: v.Config.Temperature,
		maxTokens:   1024,
		vars: func(snap mdapcontext.Snapshot, s step.Step) prompts.Vars {
			return prompts.Vars{
				"language":     snap.Language,
				"requirements": requirements,
				"code":         code,
				"context":      snap.PromptContext(),
			}
		},
	}
	disc := discriminate.New(v.Client, v.Model)

	result, err := v.Voter.Vote(ctx, snap, s, gen, disc, v.Config, interrupts)
	if err != nil {
		return Report{}, result, err
	}
	if result.Winner == nil {
		return Report{}, result, fmt.Errorf("phases: validate produced no winner (%s)", result.Outcome)
	}

	return parseReport(result.Winner.Representative.Text), result, nil
}

func parseReport(text string) Report {
	var report Report
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(strings.ToUpper(line), "VALID:"):
			v := strings.TrimSpace(line[len("VALID:"):])
			report.Valid = strings.EqualFold(v, "yes")
		case strings.HasPrefix(strings.ToUpper(line), "ERRORS:"):
			report.Errors = splitList(line[len("ERRORS:"):])
		case strings.HasPrefix(strings.ToUpper(line), "WARNINGS:"):
			report.Warnings = splitList(line[len("WARNINGS:"):])
		case strings.HasPrefix(strings.ToUpper(line), "SUGGESTIONS:"):
			report.Suggestions = splitList(line[len("SUGGESTIONS:"):])
		}
	}
	return report
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
