// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompts loads and renders the text/template files each
// phase executor and the discriminator fill in with a context
// snapshot. Templates are embedded from templates/ at build time; a
// Registry can additionally watch a directory via WatchDir, reloading
// a template from disk when its file is written or created.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"log/slog"
	"sync"
	"text/template"

	"github.com/fsnotify/fsnotify"
)

// Name identifies one of the fixed template slots the pipeline fills.
type Name string

const (
	Expand       Name = "expand"
	Decompose    Name = "decompose"
	Generate     Name = "generate"
	Validate     Name = "validate"
	Discriminate Name = "discriminate"
	DecideNext   Name = "decide_next"
)

// Vars is the substitution map passed to a template.
type Vars map[string]string

//go:embed templates/*.tmpl
var embedded embed.FS

// Registry holds the parsed templates and optionally watches a
// directory on disk for edits, reparsing on change.
type Registry struct {
	mu        sync.RWMutex
	templates map[Name]*template.Template
	watcher   *fsnotify.Watcher
}

var defaultRegistry = mustLoad()

func mustLoad() *Registry {
	r := &Registry{templates: make(map[Name]*template.Template)}
	names := []Name{Expand, Decompose, Generate, Validate, Discriminate, DecideNext}
	for _, n := range names {
		data, err := embedded.ReadFile(fmt.Sprintf("templates/%s.tmpl", n))
		if err != nil {
			panic(fmt.Sprintf("prompts: missing embedded template %q: %v", n, err))
		}
		tmpl, err := template.New(string(n)).Parse(string(data))
		if err != nil {
			panic(fmt.Sprintf("prompts: invalid template %q: %v", n, err))
		}
		r.templates[n] = tmpl
	}
	return r
}

// WatchDir watches dir and reparses a template whenever its file is
// written or created there, overriding the embedded version; removals
// and renames are ignored.
func (r *Registry) WatchDir(dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prompts: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("prompts: watch %s: %w", dir, err)
	}
	r.watcher = watcher

	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.reload(dir, event.Name); err != nil {
				slog.Warn("prompts: reload failed", "file", event.Name, "error", err)
			}
		}
	}()
	return nil
}

func (r *Registry) reload(dir, path string) error {
	name := Name(templateBaseName(path))
	data, err := readFile(path)
	if err != nil {
		return err
	}
	tmpl, err := template.New(string(name)).Parse(string(data))
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.templates[name] = tmpl
	r.mu.Unlock()
	slog.Info("prompts: reloaded template", "name", name)
	return nil
}

// Render fills the named template with vars using the default,
// process-wide registry.
func Render(name Name, vars Vars) (string, error) {
	return defaultRegistry.Render(name, vars)
}

// Render fills the named template with vars.
func (r *Registry) Render(name Name, vars Vars) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("prompts: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("prompts: render %q: %w", name, err)
	}
	return buf.String(), nil
}
