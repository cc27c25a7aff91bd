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
	"reflect"
	"testing"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/redflag"
	"github.com/aleutian-oss/mdap/internal/mdap/step"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
)

func TestParseReportParsesAllFields(t *testing.T) {
	text := "VALID: yes\nERRORS: none\nWARNINGS: unused variable x\nSUGGESTIONS: add a doc comment, rename y"
	report := parseReport(text)

	if !report.Valid {
		t.Error("Valid = false, want true")
	}
	if report.Errors != nil {
		t.Errorf("Errors = %v, want nil", report.Errors)
	}
	if !reflect.DeepEqual(report.Warnings, []string{"unused variable x"}) {
		t.Errorf("Warnings = %v", report.Warnings)
	}
	if !reflect.DeepEqual(report.Suggestions, []string{"add a doc comment", "rename y"}) {
		t.Errorf("Suggestions = %v", report.Suggestions)
	}
}

func TestReportPassed(t *testing.T) {
	if (Report{Valid: true, Errors: []string{"oops"}}).Passed() {
		t.Error("Passed() = true with a non-empty Errors slice, want false")
	}
	if !(Report{Valid: true}).Passed() {
		t.Error("Passed() = false for a valid report with no errors, want true")
	}
	if (Report{Valid: false}).Passed() {
		t.Error("Passed() = true for Valid: false, want false")
	}
}

func TestValidatorValidateSyntaxCheckShortCircuitsVote(t *testing.T) {
	client := &scriptedClient{texts: []string{"VALID: yes"}}
	v := &Validator{
		Voter:   vote.New(redflag.NewFilter(nil), nil),
		Client:  client,
		Model:   "test-model",
		Config:  oneShotConfig(),
		Parsers: map[step.Language]redflag.LanguageParser{step.LanguageGo: failingParser{}},
	}

	report, result, err := v.Validate(context.Background(), mdapcontext.Snapshot{Language: "go"}, mdapcontext.FunctionRecord{Signature: "func F()"}, "not valid go", nil)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if report.Valid {
		t.Fatal("report.Valid = true, want false (syntax parser rejected it)")
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil (no vote should run when syntax check fails)", result)
	}
	if client.calls != 0 {
		t.Fatalf("client.calls = %d, want 0 (vote must not run)", client.calls)
	}
}

func TestValidatorValidateRunsVoteWhenSyntaxPasses(t *testing.T) {
	client := &scriptedClient{texts: []string{"VALID: yes\nERRORS: none"}}
	v := &Validator{
		Voter:   vote.New(redflag.NewFilter(nil), nil),
		Client:  client,
		Model:   "test-model",
		Config:  oneShotConfig(),
		Parsers: map[step.Language]redflag.LanguageParser{step.LanguageGo: passingParser{}},
	}

	report, result, err := v.Validate(context.Background(), mdapcontext.Snapshot{Language: "go"}, mdapcontext.FunctionRecord{Signature: "func F()"}, "func F() {}", nil)
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if !report.Valid {
		t.Fatal("report.Valid = false, want true")
	}
	if result.Outcome != vote.OutcomeAheadByK {
		t.Fatalf("Outcome = %s, want AHEAD_BY_K", result.Outcome)
	}
}

type failingParser struct{}

func (failingParser) Parse(source string) (bool, string) { return false, "unexpected token" }

type passingParser struct{}

func (passingParser) Parse(source string) (bool, string) { return true, "" }
