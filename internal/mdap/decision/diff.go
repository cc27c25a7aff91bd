// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decision

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// UnifiedDiff renders the change from oldCode to newCode as a unified
// diff, using go-diff's formatter for the canonical "--- a/path" /
// "+++ b/path" / "@@ ... @@" framing. go-diff itself only parses and
// prints FileDiff/Hunk values; it has no diff algorithm, so the hunk
// body below is computed with a small LCS-based line matcher before
// handing the result to diff.PrintFileDiff.
func UnifiedDiff(oldCode, newCode, path string) (string, error) {
	oldLines := splitLines(oldCode)
	newLines := splitLines(newCode)

	var body bytes.Buffer
	for _, op := range lineDiff(oldLines, newLines) {
		switch op.kind {
		case opEqual:
			body.WriteString(" " + op.text + "\n")
		case opDelete:
			body.WriteString("-" + op.text + "\n")
		case opInsert:
			body.WriteString("+" + op.text + "\n")
		}
	}

	fd := &diff.FileDiff{
		OrigName: "a/" + path,
		NewName:  "b/" + path,
		Hunks: []*diff.Hunk{{
			OrigStartLine: 1,
			OrigLines:     int32(len(oldLines)),
			NewStartLine:  1,
			NewLines:      int32(len(newLines)),
			Body:          body.Bytes(),
		}},
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("decision: render diff for %s: %w", path, err)
	}
	return string(out), nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

type opKind int

const (
	opEqual opKind = iota
	opDelete
	opInsert
)

type editOp struct {
	kind opKind
	text string
}

// lineDiff computes a minimal line-level edit script between a and b
// from the standard longest-common-subsequence table. Generated
// function bodies are small enough that the O(len(a)*len(b)) table is
// cheap to build.
func lineDiff(a, b []string) []editOp {
	n, m := len(a), len(b)
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			switch {
			case a[i] == b[j]:
				table[i][j] = table[i+1][j+1] + 1
			case table[i+1][j] >= table[i][j+1]:
				table[i][j] = table[i+1][j]
			default:
				table[i][j] = table[i][j+1]
			}
		}
	}

	var ops []editOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, editOp{opEqual, a[i]})
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			ops = append(ops, editOp{opDelete, a[i]})
			i++
		default:
			ops = append(ops, editOp{opInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, editOp{opDelete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, editOp{opInsert, b[j]})
	}
	return ops
}
