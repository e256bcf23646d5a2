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

// Package tool is the executor contract: execute(node_type, payload) ->
// result|error, against an open set of node_type implementations
// (httptool, sqltool, shelltool, scripttool, playbooktool, ...).
package tool

import "context"

// Result is what a Tool returns for a single invocation.
type Result struct {
	Output       any
	OutputSelect string // JSONPath-style expression; the worker runner does not read it and applies only the step's output_select
}

type contextKey string

const executionIDContextKey contextKey = "tool.execution_id"

// WithExecutionID attaches the calling step's execution_id to ctx. The
// worker sets this before invoking a Tool so node_type implementations
// that need to address the engine on their caller's behalf (playbooktool's
// sub-playbook dispatch, so the child's parent_execution_id is recorded)
// can read it back without the Tool interface itself growing a
// NoETL-specific parameter.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDContextKey, executionID)
}

// ExecutionIDFromContext returns the execution_id set by WithExecutionID,
// or "" if none was set.
func ExecutionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(executionIDContextKey).(string); ok {
		return s
	}
	return ""
}

// Tool is implemented by every node_type handler.
type Tool interface {
	// Name is the node_type string this Tool handles.
	Name() string
	// Execute runs the tool against input (already template-rendered) and
	// returns its result, or an error (see ErrorKind for classification).
	Execute(ctx context.Context, input map[string]any) (Result, error)
}
