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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"github.com/noetl/noetl/internal/engine"
	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/queue"
)

const noopPlaybookYAML = `
name: noop
version: "1"
start: [only]
steps:
  - id: only
    node_type: http
    with:
      url: "https://example.com"
`

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "noop.yaml"), []byte(noopPlaybookYAML), 0644); err != nil {
		t.Fatalf("write playbook: %v", err)
	}
	eng := engine.New(eventlog.NewMemoryStore(), queue.NewMemoryQueue(), playbook.NewFileCatalog(dir))
	t.Cleanup(eng.Close)
	return NewHandler(eng)
}

func TestHealthCheck(t *testing.T) {
	handler := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/health", func(ctx context.Context, c *app.RequestContext) {
		handler.HealthCheck(ctx, c)
	})
	w := ut.PerformRequest(h.Engine, "GET", "/api/health", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	resp := w.Result()
	if resp.StatusCode() != 200 {
		t.Errorf("HealthCheck status: got %d", resp.StatusCode())
	}
	if !bytes.Contains(resp.Body(), []byte("ok")) {
		t.Errorf("HealthCheck body: %s", resp.Body())
	}
}

func TestSubmitAndStatus(t *testing.T) {
	handler := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/executions", func(ctx context.Context, c *app.RequestContext) {
		handler.Submit(ctx, c)
	})
	h.GET("/api/executions/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.Status(ctx, c)
	})

	body := []byte(`{"catalog_id":"noop","workload":{"x":1}}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/executions", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	resp := w.Result()
	if resp.StatusCode() != 202 {
		t.Fatalf("Submit status: got %d body %s", resp.StatusCode(), resp.Body())
	}
	if !bytes.Contains(resp.Body(), []byte("execution_id")) {
		t.Fatalf("Submit body missing execution_id: %s", resp.Body())
	}

	var submitted struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := json.Unmarshal(resp.Body(), &submitted); err != nil || submitted.ExecutionID == "" {
		t.Fatalf("Submit body not decodable: %v %s", err, resp.Body())
	}
	w = ut.PerformRequest(h.Engine, "GET", "/api/executions/"+submitted.ExecutionID, &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if w.Result().StatusCode() != 200 {
		t.Errorf("Status after submit: got %d body %s", w.Result().StatusCode(), w.Result().Body())
	}
}

func TestStatus_UnknownExecutionReturns404(t *testing.T) {
	handler := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.GET("/api/executions/:id", func(ctx context.Context, c *app.RequestContext) {
		handler.Status(ctx, c)
	})
	w := ut.PerformRequest(h.Engine, "GET", "/api/executions/does-not-exist", &ut.Body{Body: bytes.NewReader(nil), Len: 0})
	if w.Result().StatusCode() != 404 {
		t.Errorf("Status unknown execution: got %d", w.Result().StatusCode())
	}
}

func TestSetVariable_MissingNameReturns400(t *testing.T) {
	handler := newTestHandler(t)
	h := server.Default(server.WithHostPorts(":0"))
	h.POST("/api/executions/:id/variables", func(ctx context.Context, c *app.RequestContext) {
		handler.SetVariable(ctx, c)
	})
	body := []byte(`{"value":1}`)
	w := ut.PerformRequest(h.Engine, "POST", "/api/executions/e1/variables", &ut.Body{Body: bytes.NewReader(body), Len: len(body)})
	if w.Result().StatusCode() != 400 {
		t.Errorf("SetVariable missing name: got %d body %s", w.Result().StatusCode(), w.Result().Body())
	}
}
