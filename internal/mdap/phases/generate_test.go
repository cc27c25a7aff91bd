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
	"testing"

	mdapcontext "github.com/aleutian-oss/mdap/internal/mdap/context"
	"github.com/aleutian-oss/mdap/internal/mdap/redflag"
	"github.com/aleutian-oss/mdap/internal/mdap/vote"
)

func TestSignatureNameExtractsBareIdentifier(t *testing.T) {
	tests := []struct{ sig, want string }{
		{"func Add(a, b int) int", "Add"},
		{"func   Spaced (x int)", "Spaced"},
		{"not a signature at all", "not a signature at all"},
	}
	for _, tt := range tests {
		if got := signatureName(tt.sig); got != tt.want {
			t.Errorf("signatureName(%q) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestCodeGeneratorGenerateNoUndefinedCallsStopsAtDepthZero(t *testing.T) {
	client := &scriptedClient{texts: []string{"func Leaf() int {\n\treturn 1\n}"}}
	g := &CodeGenerator{
		Voter:  vote.New(redflag.NewFilter(nil), nil),
		Client: client,
		Model:  "test-model",
		Config: oneShotConfig(),
	}
	mctx := mdapcontext.New("task", "go")
	fn := mdapcontext.FunctionRecord{Signature: "func Leaf() int", Description: "returns one"}

	code, results, err := g.Generate(context.Background(), mctx, fn, nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if code != "func Leaf() int {\n\treturn 1\n}" {
		t.Fatalf("Generate() code = %q", code)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (no sub-generation triggered)", len(results))
	}
	if mctx.Snapshot().Code["func Leaf() int"] == "" {
		t.Fatal("winning code was not recorded via AddCode")
	}
}

func TestCodeGeneratorGenerateRecursesIntoUndefinedCalls(t *testing.T) {
	// Outer calls "helper", which is not already known, so the
	// generator must recurse once (MaxDepth allows depth 1) before
	// returning the outer function's own winning code.
	client := &scriptedClient{texts: []string{
		"func Outer() int {\n\treturn helper()\n}",
		"func helper() int {\n\treturn 2\n}",
	}}
	cfg := oneShotConfig()
	cfg.MaxDepth = 1
	g := &CodeGenerator{
		Voter:  vote.New(redflag.NewFilter(nil), nil),
		Client: client,
		Model:  "test-model",
		Config: cfg,
	}
	mctx := mdapcontext.New("task", "go")
	fn := mdapcontext.FunctionRecord{Signature: "func Outer() int", Description: "calls helper"}

	code, results, err := g.Generate(context.Background(), mctx, fn, nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if code != "func Outer() int {\n\treturn helper()\n}" {
		t.Fatalf("Generate() code = %q", code)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (outer vote + one sub-generation vote)", len(results))
	}

	snap := mctx.Snapshot()
	if snap.Code["func Outer() int"] == "" {
		t.Fatal("outer function's code was not recorded")
	}
	found := false
	for sig, code := range snap.Code {
		if sig != "func Outer() int" && code == "func helper() int {\n\treturn 2\n}" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sub-generated helper was not recorded in context: %+v", snap.Code)
	}
	if snap.Depth != 0 {
		t.Fatalf("Depth after Generate returns = %d, want 0 (EnterSubGeneration/ExitSubGeneration must balance)", snap.Depth)
	}
}

func TestCodeGeneratorGenerateDoesNotRecurseBeyondMaxDepth(t *testing.T) {
	client := &scriptedClient{texts: []string{"func Outer() int {\n\treturn helper()\n}"}}
	cfg := oneShotConfig()
	cfg.MaxDepth = 0
	g := &CodeGenerator{
		Voter:  vote.New(redflag.NewFilter(nil), nil),
		Client: client,
		Model:  "test-model",
		Config: cfg,
	}
	mctx := mdapcontext.New("task", "go")
	fn := mdapcontext.FunctionRecord{Signature: "func Outer() int", Description: "calls helper"}

	_, results, err := g.Generate(context.Background(), mctx, fn, nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (MaxDepth=0 must prevent recursion)", len(results))
	}
}
