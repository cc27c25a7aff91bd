// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package context

import (
	"strings"
	"testing"
)

func TestContextSnapshotIsADeepCopy(t *testing.T) {
	c := New("build a thing", "go")
	c.AddRequirement("req one")
	c.AddFunction(FunctionRecord{Signature: "func F()", Dependencies: []string{"func G()"}})
	c.AddCode("func F()", "func F() {}")

	snap := c.Snapshot()

	c.AddRequirement("req two")
	c.Functions[0].Dependencies[0] = "mutated"
	c.AddCode("func F()", "func F() { /* changed */ }")

	if len(snap.Requirements) != 1 || snap.Requirements[0] != "req one" {
		t.Fatalf("snapshot requirements mutated by later writes: %v", snap.Requirements)
	}
	if snap.Functions[0].Dependencies[0] != "func G()" {
		t.Fatalf("snapshot function deps mutated by later writes: %v", snap.Functions[0].Dependencies)
	}
	if snap.Code["func F()"] != "func F() {}" {
		t.Fatalf("snapshot code mutated by later AddCode: %q", snap.Code["func F()"])
	}
}

func TestContextEnterExitSubGenerationBalances(t *testing.T) {
	c := New("task", "go")
	if d := c.EnterSubGeneration(); d != 1 {
		t.Fatalf("EnterSubGeneration() = %d, want 1", d)
	}
	if d := c.EnterSubGeneration(); d != 2 {
		t.Fatalf("EnterSubGeneration() = %d, want 2", d)
	}
	c.ExitSubGeneration()
	c.ExitSubGeneration()
	if c.Snapshot().Depth != 0 {
		t.Fatalf("Depth = %d, want 0", c.Snapshot().Depth)
	}
}

func TestContextExitSubGenerationNeverGoesNegative(t *testing.T) {
	c := New("task", "go")
	c.ExitSubGeneration()
	c.ExitSubGeneration()
	if c.Snapshot().Depth != 0 {
		t.Fatalf("Depth = %d, want 0 (must clamp at zero)", c.Snapshot().Depth)
	}
}

func TestContextAddCodeReplacesExistingSignature(t *testing.T) {
	c := New("task", "go")
	c.AddCode("func F()", "v1")
	c.AddCode("func F()", "v2")
	if got := c.Snapshot().Code["func F()"]; got != "v2" {
		t.Fatalf("Code[\"func F()\"] = %q, want v2 (regeneration replaces)", got)
	}
}

func TestSnapshotPromptContextIncludesTaskRequirementsAndCode(t *testing.T) {
	c := New("build a thing", "go")
	c.AddRequirement("must validate input")
	c.AddCode("func F()", "func F() {}")

	out := c.Snapshot().PromptContext()

	for _, want := range []string{"Task: build a thing", "must validate input", "func F()"} {
		if !strings.Contains(out, want) {
			t.Errorf("PromptContext() missing %q:\n%s", want, out)
		}
	}
}

func TestSnapshotPromptContextOmitsEmptySections(t *testing.T) {
	c := New("build a thing", "go")
	out := c.Snapshot().PromptContext()
	if strings.Contains(out, "Requirements:") {
		t.Errorf("PromptContext() included a Requirements section with none added:\n%s", out)
	}
	if strings.Contains(out, "Generated so far:") {
		t.Errorf("PromptContext() included a Generated section with no code added:\n%s", out)
	}
}
