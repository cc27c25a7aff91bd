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

func oneShotConfig() vote.Config {
	return vote.Config{K: 1, MaxSamples: 5, Parallelism: 1, MaxDepth: 2}
}

func TestExpanderExpandReturnsWinningRequirements(t *testing.T) {
	client := &scriptedClient{texts: []string{"1. Parse input\n2. Validate bounds"}}
	e := &Expander{
		Voter:  vote.New(redflag.NewFilter(nil), nil),
		Client: client,
		Model:  "test-model",
		Config: oneShotConfig(),
	}

	text, result, err := e.Expand(context.Background(), mdapcontext.Snapshot{Task: "build a thing"}, nil)
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if text != "1. Parse input\n2. Validate bounds" {
		t.Fatalf("Expand() text = %q", text)
	}
	if result.Outcome != vote.OutcomeAheadByK {
		t.Fatalf("Outcome = %s, want AHEAD_BY_K", result.Outcome)
	}
}
