// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package redflag

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/aleutian-oss/mdap/internal/mdap/step"
)

// treeSitterParser checks a single language via tree-sitter, walking
// the parsed tree for ERROR/MISSING nodes. It is stateless and safe
// for concurrent use; tree-sitter parsers themselves are created
// per-call since *sitter.Parser is not safe to share across goroutines.
type treeSitterParser struct {
	lang *sitter.Language
}

func (p *treeSitterParser) Parse(source string) (bool, string) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(p.lang)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil {
		return false, err.Error()
	}
	defer tree.Close()

	root := tree.RootNode()
	if node := findFirstError(root); node != nil {
		return false, fmt.Sprintf("syntax error near line %d", node.StartPoint().Row+1)
	}
	return true, ""
}

func findFirstError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := uint32(0); i < node.ChildCount(); i++ {
		if err := findFirstError(node.Child(int(i))); err != nil {
			return err
		}
	}
	return nil
}

// goParser checks Go source via go/parser rather than tree-sitter: Go
// candidates are the one language this module itself can compile, so
// the standard library's own parser is the precise tool, not an
// approximation of one.
type goParser struct{}

func (goParser) Parse(source string) (bool, string) {
	fset := token.NewFileSet()
	wrapped := "package mdapcandidate\n\n" + source
	if _, err := parser.ParseFile(fset, "candidate.go", wrapped, parser.AllErrors); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// DefaultParsers returns the language-parser registry used by
// production pipelines: Go via go/parser, Python/JavaScript/TypeScript
// via tree-sitter grammars.
func DefaultParsers() map[step.Language]LanguageParser {
	return map[step.Language]LanguageParser{
		step.LanguageGo:         goParser{},
		step.LanguagePython:     &treeSitterParser{lang: python.GetLanguage()},
		step.LanguageJavaScript: &treeSitterParser{lang: javascript.GetLanguage()},
		step.LanguageTypeScript: &treeSitterParser{lang: typescript.GetLanguage()},
	}
}
