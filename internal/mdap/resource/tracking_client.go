// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resource

import (
	"context"

	"github.com/aleutian-oss/mdap/pkg/llm"
)

// TrackingClient wraps an llm.Client so every completion's token
// usage is reported to a Manager, without the Voter or phase
// executors needing to know resource tracking is happening.
type TrackingClient struct {
	Inner   llm.Client
	Manager *Manager
}

// Complete implements llm.Client.
func (c *TrackingClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, err := c.Inner.Complete(ctx, req)
	if err != nil {
		return resp, err
	}
	model := req.Model
	c.Manager.Track(model, resp.InputTokens, resp.OutputTokens)
	return resp, nil
}

var _ llm.Client = (*TrackingClient)(nil)
