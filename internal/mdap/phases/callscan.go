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
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"

	"github.com/aleutian-oss/mdap/internal/mdap/step"
)

// goBuiltins holds identifiers a called-name scan must never flag as
// an undefined dependency: language builtins and the handful of
// standard library entry points generated code commonly calls
// directly without an explicit import binding being visible in a
// single-function snippet.
var goBuiltins = map[string]bool{
	"len": true, "cap": true, "make": true, "new": true, "append": true,
	"copy": true, "delete": true, "panic": true, "recover": true,
	"print": true, "println": true, "close": true, "int": true, "string": true,
	"float64": true, "float32": true, "bool": true, "error": true, "byte": true, "rune": true,
	"fmt": true, "errors": true, "strings": true, "strconv": true, "sort": true,
	"Sprintf": true, "Errorf": true, "Println": true, "Printf": true,
}

// callPattern matches a bare identifier immediately followed by "(",
// the shape of a function call, used as the cross-language fallback
// scanner for languages without an AST-based scanner registered.
var callPattern = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)

// UndefinedCalls returns the set of identifiers called in source that
// are not present in known (already-generated signatures) and are not
// language builtins, in first-seen order. This is the scan Generate
// uses to decide which sub-functions must themselves be generated
// before the outer function's code is considered complete.
func UndefinedCalls(lang step.Language, source string, known map[string]bool) []string {
	switch lang {
	case step.LanguageGo:
		return undefinedCallsGo(source, known)
	default:
		return undefinedCallsRegex(source, known)
	}
}

func undefinedCallsGo(source string, known map[string]bool) []string {
	wrapped := "package mdapcandidate\n\n" + source
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "candidate.go", wrapped, 0)
	if err != nil {
		return undefinedCallsRegex(source, known)
	}

	seen := make(map[string]bool)
	var out []string
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		ident, ok := call.Fun.(*ast.Ident)
		if !ok {
			return true
		}
		name := ident.Name
		if goBuiltins[name] || known[name] || seen[name] {
			return true
		}
		seen[name] = true
		out = append(out, name)
		return true
	})
	return out
}

func undefinedCallsRegex(source string, known map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range callPattern.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if goBuiltins[name] || known[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
