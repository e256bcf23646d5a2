// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http is the Control API: submit/status/cancel/query_events/
// set_variable as Hertz handlers over a single internal/engine.Engine.
package http

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/noetl/noetl/internal/engine"
	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/pkg/metrics"
)

// Handler is the Control API's HTTP surface over one Engine.
type Handler struct {
	engine *engine.Engine
}

// NewHandler wires a Handler over eng.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

// HealthCheck answers GET /api/health.
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "noetl-api",
	})
}

// Metrics answers GET /api/metrics in the Prometheus text exposition
// format.
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(ctx, "WritePrometheus: %v", err)
		c.AbortWithStatus(consts.StatusInternalServerError)
		return
	}
	c.Header("Content-Type", "text/plain; version=0.0.4")
	c.Write(buf.Bytes())
}

// SubmitRequest is the POST /api/executions request body.
type SubmitRequest struct {
	CatalogID         string         `json:"catalog_id" binding:"required"`
	Workload          map[string]any `json:"workload"`
	ParentExecutionID string         `json:"parent_execution_id"`
}

// Submit implements the submit control-plane operation: it starts a new
// execution of the named catalog entry and returns its execution_id.
func (h *Handler) Submit(ctx context.Context, c *app.RequestContext) {
	var req SubmitRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	executionID, err := h.engine.Submit(ctx, req.CatalogID, req.Workload, req.ParentExecutionID)
	if err != nil {
		hlog.CtxErrorf(ctx, "Submit %s: %v", req.CatalogID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "submit failed"})
		return
	}
	c.JSON(consts.StatusAccepted, map[string]interface{}{
		"execution_id": executionID,
		"status":       "accepted",
	})
}

// Status implements the status control-plane operation: GET
// /api/executions/:id returns the execution's current projected state.
func (h *Handler) Status(ctx context.Context, c *app.RequestContext) {
	executionID := c.Param("id")
	state, err := h.engine.Status(ctx, executionID)
	if err != nil {
		hlog.CtxErrorf(ctx, "Status %s: %v", executionID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "status lookup failed"})
		return
	}
	if state.Version == 0 {
		c.JSON(consts.StatusNotFound, map[string]string{"error": "execution not found"})
		return
	}
	c.JSON(consts.StatusOK, state)
}

// CancelRequest is the POST /api/executions/:id/cancel request body.
type CancelRequest struct {
	Cascade bool   `json:"cascade"`
	Reason  string `json:"reason"`
}

// Cancel implements the cancel control-plane operation.
func (h *Handler) Cancel(ctx context.Context, c *app.RequestContext) {
	executionID := c.Param("id")
	var req CancelRequest
	_ = c.BindJSON(&req) // an empty body is a valid non-cascading cancel
	if err := h.engine.Cancel(ctx, executionID, req.Cascade, req.Reason); err != nil {
		hlog.CtxErrorf(ctx, "Cancel %s: %v", executionID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "cancel failed"})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"execution_id": executionID,
		"status":       "cancelling",
	})
}

// QueryEvents implements the query_events control-plane operation. Query
// parameters: type (comma-separated event type filter), node_ref, limit,
// offset, since/until (RFC3339).
func (h *Handler) QueryEvents(ctx context.Context, c *app.RequestContext) {
	executionID := c.Param("id")

	q := eventlog.Query{NodeRef: c.Query("node_ref")}
	if typesParam := c.Query("type"); typesParam != "" {
		for _, t := range strings.Split(typesParam, ",") {
			q.Types = append(q.Types, eventlog.Type(strings.TrimSpace(t)))
		}
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "0")); err == nil {
		q.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		q.Offset = offset
	}
	if s := c.Query("since"); s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			q.Since = ts
		}
	}
	if s := c.Query("until"); s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			q.Until = ts
		}
	}

	events, err := h.engine.QueryEvents(ctx, executionID, q)
	if err != nil {
		hlog.CtxErrorf(ctx, "QueryEvents %s: %v", executionID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"execution_id": executionID,
		"events":       events,
		"total":        len(events),
	})
}

// SetVariableRequest is the POST /api/executions/:id/variables request body.
type SetVariableRequest struct {
	Name  string `json:"name" binding:"required"`
	Value any    `json:"value"`
}

// SetVariable implements the set_variable control-plane operation.
func (h *Handler) SetVariable(ctx context.Context, c *app.RequestContext) {
	executionID := c.Param("id")
	var req SetVariableRequest
	if err := c.BindJSON(&req); err != nil || req.Name == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.engine.SetVariable(ctx, executionID, req.Name, req.Value); err != nil {
		hlog.CtxErrorf(ctx, "SetVariable %s.%s: %v", executionID, req.Name, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "set_variable failed"})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"execution_id": executionID,
		"variable":     req.Name,
		"status":       "ok",
	})
}
