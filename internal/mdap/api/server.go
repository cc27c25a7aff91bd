// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves a small HTTP+websocket status surface over a
// running pipeline: current state, resource usage, decision history,
// and a live feed of transitions as they happen.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/aleutian-oss/mdap/internal/logging"
	"github.com/aleutian-oss/mdap/internal/mdap/decision"
	"github.com/aleutian-oss/mdap/internal/mdap/pipeline"
)

// upgrader accepts any origin: this server is meant to run bound to
// localhost for a single operator's CLI/browser, not as a public
// multi-tenant endpoint.
var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Server exposes introspection endpoints and pause/resume/cancel/budget
// control endpoints for one Orchestrator.
type Server struct {
	orch   *pipeline.Orchestrator
	log    *logging.Logger
	engine *gin.Engine
}

// New builds a Server wired to orch. Call Run to start listening.
func New(orch *pipeline.Orchestrator, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	s := &Server{orch: orch, log: log, engine: engine}
	s.registerRoutes()
	return s
}

// registerRoutes wires the full control surface the CLI's
// pause/resume/cancel/status/explain/history/resources/budget
// commands talk to over HTTP, plus a websocket progress feed.
//
//	GET  /status        - current pipeline state
//	GET  /resources     - token/call/cost usage against budget
//	GET  /history       - the last n decision records
//	GET  /explain/:id   - full explanation of one decision
//	GET  /ws            - live feed of state transitions
//	POST /pause         - pause the active run
//	POST /resume        - resume a paused run
//	POST /cancel        - cancel the active run
//	POST /budget        - set a budget limit
func (s *Server) registerRoutes() {
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/resources", s.handleResources)
	s.engine.GET("/history", s.handleHistory)
	s.engine.GET("/explain/:id", s.handleExplain)
	s.engine.GET("/ws", s.handleWebSocket)
	s.engine.POST("/pause", s.handlePause)
	s.engine.POST("/resume", s.handleResume)
	s.engine.POST("/cancel", s.handleCancel)
	s.engine.POST("/budget", s.handleBudget)
}

// Run starts the HTTP server and blocks until it exits.
func (s *Server) Run(addr string) error {
	s.log.Info("api: listening", "addr", addr)
	return s.engine.Run(addr)
}

type statusResponse struct {
	State string `json:"state"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{State: string(s.orch.State())})
}

func (s *Server) handleResources(c *gin.Context) {
	usage := s.orch.Resources().Usage()
	check := s.orch.Resources().CheckBudget()
	c.JSON(http.StatusOK, gin.H{
		"usage":  usage,
		"status": check.Status,
		"reason": check.Reason,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	n := 20
	if q := c.Query("n"); q != "" {
		if parsed, err := parsePositiveInt(q); err == nil {
			n = parsed
		}
	}
	c.JSON(http.StatusOK, s.orch.Tracker().Last(n))
}

func (s *Server) handleExplain(c *gin.Context) {
	explanation, err := s.orch.Tracker().Explain(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, explanation)
}

func (s *Server) handlePause(c *gin.Context) {
	if err := s.orch.Pause(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusResponse{State: string(s.orch.State())})
}

func (s *Server) handleResume(c *gin.Context) {
	if err := s.orch.Resume(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusResponse{State: string(s.orch.State())})
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.orch.Cancel(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusResponse{State: string(s.orch.State())})
}

type budgetRequest struct {
	Kind  string `json:"kind" binding:"required"`
	Value string `json:"value" binding:"required"`
}

func (s *Server) handleBudget(c *gin.Context) {
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orch.Resources().SetBudget(req.Kind, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleWebSocket streams a status.State snapshot every time the
// pipeline's decision count changes, so a client sees a live view of
// progress without polling /status.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastCount := -1
	for range ticker.C {
		count := s.orch.Tracker().Count()
		if count == lastCount {
			continue
		}
		lastCount = count

		var last *decision.Record
		if recent := s.orch.Tracker().Last(1); len(recent) == 1 {
			last = &recent[0]
		}
		msg := wsUpdate{State: string(s.orch.State()), DecisionCount: count, Last: last}
		if err := conn.WriteJSON(msg); err != nil {
			s.log.Info("api: websocket client disconnected", "error", err)
			return
		}
	}
}

type wsUpdate struct {
	State         string           `json:"state"`
	DecisionCount int              `json:"decision_count"`
	Last          *decision.Record `json:"last,omitempty"`
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscan(s, &n)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("api: invalid count %q", s)
	}
	return n, nil
}
