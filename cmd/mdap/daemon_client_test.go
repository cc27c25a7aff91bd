// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, mux *http.ServeMux) (*daemonClient, func()) {
	t.Helper()
	ts := httptest.NewServer(mux)
	c := &daemonClient{baseURL: ts.URL, http: &http.Client{Timeout: 5 * time.Second}}
	return c, ts.Close
}

func TestDaemonClientStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"state": "GENERATING"})
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	state, err := c.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if state != "GENERATING" {
		t.Fatalf("Status() = %q, want GENERATING", state)
	}
}

func TestDaemonClientPauseResumeCancel(t *testing.T) {
	var paused, resumed, cancelled bool
	mux := http.NewServeMux()
	mux.HandleFunc("/pause", func(w http.ResponseWriter, r *http.Request) {
		paused = true
		json.NewEncoder(w).Encode(map[string]string{"state": "PAUSED"})
	})
	mux.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		resumed = true
		json.NewEncoder(w).Encode(map[string]string{"state": "GENERATING"})
	})
	mux.HandleFunc("/cancel", func(w http.ResponseWriter, r *http.Request) {
		cancelled = true
		json.NewEncoder(w).Encode(map[string]string{"state": "IDLE"})
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	if err := c.Pause(); err != nil || !paused {
		t.Fatalf("Pause() error=%v paused=%v", err, paused)
	}
	if err := c.Resume(); err != nil || !resumed {
		t.Fatalf("Resume() error=%v resumed=%v", err, resumed)
	}
	if err := c.Cancel(); err != nil || !cancelled {
		t.Fatalf("Cancel() error=%v cancelled=%v", err, cancelled)
	}
}

func TestDaemonClientExplain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/explain/abc", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("decision abc: accepted on AHEAD_BY_K"))
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	out, err := c.Explain("abc")
	if err != nil {
		t.Fatalf("Explain() error: %v", err)
	}
	if !strings.Contains(out, "AHEAD_BY_K") {
		t.Fatalf("Explain() = %q", out)
	}
}

func TestDaemonClientExplainNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/explain/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "decision not found"})
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	_, err := c.Explain("missing")
	if err == nil || !strings.Contains(err.Error(), "decision not found") {
		t.Fatalf("err = %v, want it to mention \"decision not found\"", err)
	}
}

func TestDaemonClientHistoryFormatsRecords(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]string{
			{"phase": "GENERATE", "from_state": "GENERATING", "to_state": "VALIDATING", "explanation": "generated Foo"},
		})
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	lines, err := c.History(10)
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "generated Foo") {
		t.Fatalf("History() = %v", lines)
	}
}

func TestDaemonClientResources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/resources", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"usage":  map[string]any{"tokens": 100},
			"status": "OK",
			"reason": "",
		})
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	report, err := c.Resources()
	if err != nil {
		t.Fatalf("Resources() error: %v", err)
	}
	if report.Status != "OK" {
		t.Fatalf("report.Status = %q, want OK", report.Status)
	}
}

func TestDaemonClientSetBudget(t *testing.T) {
	var gotKind, gotValue string
	mux := http.NewServeMux()
	mux.HandleFunc("/budget", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Kind, Value string }
		json.NewDecoder(r.Body).Decode(&body)
		gotKind, gotValue = body.Kind, body.Value
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	c, closeFn := testClient(t, mux)
	defer closeFn()

	if err := c.SetBudget("tokens", "5000"); err != nil {
		t.Fatalf("SetBudget() error: %v", err)
	}
	if gotKind != "tokens" || gotValue != "5000" {
		t.Fatalf("server received kind=%q value=%q", gotKind, gotValue)
	}
}

func TestDaemonClientGetConnectionRefusedWrapsError(t *testing.T) {
	c := &daemonClient{baseURL: "http://127.0.0.1:1", http: &http.Client{Timeout: time.Second}}
	_, err := c.Status()
	if err == nil || !strings.Contains(err.Error(), "connect to") {
		t.Fatalf("err = %v, want a connect-to wrapped error", err)
	}
}
