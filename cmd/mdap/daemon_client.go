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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aleutian-oss/mdap/internal/config"
)

// daemonClient talks to a running `mdap serve` process's status API
// over HTTP. The CLI's introspection and control commands
// (pause/resume/cancel/status/explain/history/resources/budget) are
// thin wrappers over this client, since the pipeline itself only runs
// inside the `run`/`serve` process.
type daemonClient struct {
	baseURL string
	http    *http.Client
}

func newDaemonClient() *daemonClient {
	return &daemonClient{
		baseURL: "http://" + config.Global.API.Addr,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// withActiveOrchestrator loads config and runs fn against a client
// pointed at the configured status API address. It returns a plain
// error (exit code 1) on any transport or server-side failure.
func withActiveOrchestrator(fn func(*daemonClient) error) error {
	if err := loadConfig(); err != nil {
		return &exitErr{exitError, err}
	}
	if err := fn(newDaemonClient()); err != nil {
		return &exitErr{exitError, err}
	}
	return nil
}

func (c *daemonClient) get(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("mdap: connect to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func (c *daemonClient) post(path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("mdap: connect to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp, out)
}

func decodeOrError(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("mdap: %s", body.Error)
		}
		return fmt.Errorf("mdap: request failed with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *daemonClient) Pause() error {
	var status struct {
		State string `json:"state"`
	}
	return c.post("/pause", nil, &status)
}

func (c *daemonClient) Resume() error {
	var status struct {
		State string `json:"state"`
	}
	return c.post("/resume", nil, &status)
}

func (c *daemonClient) Cancel() error {
	var status struct {
		State string `json:"state"`
	}
	return c.post("/cancel", nil, &status)
}

func (c *daemonClient) Status() (string, error) {
	var status struct {
		State string `json:"state"`
	}
	if err := c.get("/status", &status); err != nil {
		return "", err
	}
	return status.State, nil
}

func (c *daemonClient) Explain(id string) (string, error) {
	resp, err := c.http.Get(c.baseURL + "/explain/" + id)
	if err != nil {
		return "", fmt.Errorf("mdap: connect to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeOrError(resp, nil)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *daemonClient) History(n int) ([]string, error) {
	var records []struct {
		Phase       string `json:"phase"`
		FromState   string `json:"from_state"`
		ToState     string `json:"to_state"`
		Explanation string `json:"explanation"`
	}
	if err := c.get(fmt.Sprintf("/history?n=%d", n), &records); err != nil {
		return nil, err
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = fmt.Sprintf("[%s] %s -> %s: %s", r.Phase, r.FromState, r.ToState, r.Explanation)
	}
	return out, nil
}

type resourcesReport struct {
	Usage  map[string]any
	Status string
	Reason string
}

func (c *daemonClient) Resources() (resourcesReport, error) {
	var body struct {
		Usage  map[string]any `json:"usage"`
		Status string         `json:"status"`
		Reason string         `json:"reason"`
	}
	if err := c.get("/resources", &body); err != nil {
		return resourcesReport{}, err
	}
	return resourcesReport{Usage: body.Usage, Status: body.Status, Reason: body.Reason}, nil
}

func (c *daemonClient) SetBudget(kind, value string) error {
	return c.post("/budget", map[string]string{"kind": kind, "value": value}, nil)
}
