// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package step defines the unit of work a voting round decides on,
// and the candidate/group shapes the voter classifies it into.
package step

import "fmt"

// Type identifies which pipeline phase produced a Step.
type Type string

const (
	TypeExpand     Type = "EXPAND"
	TypeDecompose  Type = "DECOMPOSE"
	TypeGenerate   Type = "GENERATE"
	TypeValidate   Type = "VALIDATE"
	TypeDiscriminate Type = "DISCRIMINATE"
)

// Language identifies the target language of generated or validated code.
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageUnknown    Language = ""
)

// OutputShape names the expected shape of a candidate's text so the
// red-flag filter's format check knows what to look for.
type OutputShape string

const (
	ShapeJSONArray    OutputShape = "json_array"
	ShapeFunctionDef  OutputShape = "function_definition"
	ShapeYesNo        OutputShape = "yes_no"
	ShapeFreeformText OutputShape = "freeform_text"
)

// Step is one unit of work submitted to a Voter: a prompt-ready
// description of what candidates must answer, plus the metadata the
// red-flag filter and discriminator need to judge them.
type Step struct {
	ID          string      `json:"id"`
	Type        Type        `json:"type"`
	Description string      `json:"description"`
	Language    Language    `json:"language,omitempty"`
	OutputShape OutputShape `json:"output_shape"`
	Depth       int         `json:"depth"`
}

// Candidate is one sampled response to a Step, before or after
// classification into a Group.
type Candidate struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	LaunchIndex int    `json:"launch_index"`
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
}

// Group is a semantic equivalence class of candidates, keyed by the
// first candidate classified into it (its representative).
type Group struct {
	ID             int         `json:"id"`
	Representative Candidate   `json:"representative"`
	Members        []Candidate `json:"members"`
}

// Votes returns the number of candidates classified into this group.
func (g Group) Votes() int {
	return len(g.Members)
}

// Add appends a candidate to the group's member list.
func (g *Group) Add(c Candidate) {
	g.Members = append(g.Members, c)
}

func (t Type) String() string { return string(t) }

// Validate reports whether the step carries the minimum fields a
// Voter needs to run.
func (s Step) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("step: id must not be empty")
	}
	if s.Description == "" {
		return fmt.Errorf("step %s: description must not be empty", s.ID)
	}
	return nil
}
