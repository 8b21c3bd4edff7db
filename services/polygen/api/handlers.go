// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves stored runs and metrics over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/polygen/services/polygen/runner"
	"github.com/AleutianAI/polygen/services/polygen/store"
	"github.com/AleutianAI/polygen/services/polygen/telemetry"
)

// Version is reported by /healthz.
const Version = "0.1.0"

const requestIDHeader = "X-Request-ID"

// RunReader is the read side of the run store.
type RunReader interface {
	GetRun(ctx context.Context, id string) (store.Run, error)
	ListRuns(ctx context.Context) ([]store.Run, error)
	Tries(ctx context.Context, runID string) ([]runner.TryRecord, error)
	Polyglots(ctx context.Context, runID string) ([]string, error)
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// RunsResponse lists runs.
type RunsResponse struct {
	Runs  []store.Run `json:"runs"`
	Count int         `json:"count"`
}

// RunResponse is one run with its tries and polyglots.
type RunResponse struct {
	Run       store.Run          `json:"run"`
	Tries     []runner.TryRecord `json:"tries"`
	Polyglots []string           `json:"polyglots"`
}

// Handlers serves the run endpoints.
type Handlers struct {
	runs   RunReader
	logger *slog.Logger
}

// NewHandlers creates handlers over runs. Nil logger uses slog.Default().
func NewHandlers(runs RunReader, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{runs: runs, logger: logger}
}

// NewRouter returns a gin engine with tracing, recovery and every route.
func NewRouter(runs RunReader, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("polygen"), requestID())

	h := NewHandlers(runs, logger)
	router.GET("/healthz", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	RegisterRoutes(router.Group("/v1"), h)
	return router
}

// RegisterRoutes mounts the run endpoints on group.
func RegisterRoutes(group *gin.RouterGroup, h *Handlers) {
	group.GET("/runs", h.HandleListRuns)
	group.GET("/runs/:id", h.HandleGetRun)
	group.GET("/runs/:id/polyglots", h.HandlePolyglots)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With(slog.String("request_id", c.GetString("request_id")), slog.String("handler", handler))
}

// HandleHealth answers GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: Version})
}

// HandleListRuns answers GET /v1/runs.
func (h *Handlers) HandleListRuns(c *gin.Context) {
	runs, err := h.runs.ListRuns(c.Request.Context())
	if err != nil {
		h.fail(c, "HandleListRuns", err)
		return
	}
	c.JSON(http.StatusOK, RunsResponse{Runs: runs, Count: len(runs)})
}

// HandleGetRun answers GET /v1/runs/:id.
func (h *Handlers) HandleGetRun(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	run, err := h.runs.GetRun(ctx, id)
	if err != nil {
		h.fail(c, "HandleGetRun", err)
		return
	}
	tries, err := h.runs.Tries(ctx, id)
	if err != nil {
		h.fail(c, "HandleGetRun", err)
		return
	}
	polyglots, err := h.runs.Polyglots(ctx, id)
	if err != nil {
		h.fail(c, "HandleGetRun", err)
		return
	}
	c.JSON(http.StatusOK, RunResponse{Run: run, Tries: tries, Polyglots: polyglots})
}

// HandlePolyglots answers GET /v1/runs/:id/polyglots.
func (h *Handlers) HandlePolyglots(c *gin.Context) {
	polyglots, err := h.runs.Polyglots(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "HandlePolyglots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"polyglots": polyglots})
}

func (h *Handlers) fail(c *gin.Context, handler string, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "run not found", Code: "RUN_NOT_FOUND"})
		return
	}
	h.requestLogger(c, handler).Error("Store read failed", slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: "STORE_FAILED"})
}
