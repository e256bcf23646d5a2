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

// Package playbooktool implements the "playbook" node_type: a step that
// submits a sub-execution and waits for it to finish, so a playbook can
// compose other playbooks instead of inlining them.
package playbooktool

import (
	"context"
	"fmt"

	"github.com/noetl/noetl/internal/tool"
)

// Submitter is the narrow slice of the engine a sub-playbook invocation
// needs: submit a child execution, and block until it reaches a terminal
// state. Depending on this interface (rather than the engine package
// directly) keeps tool -> engine import-free; the concrete *engine.Engine
// is wired in to satisfy it at process start.
type Submitter interface {
	Submit(ctx context.Context, playbookName string, vars map[string]any) (executionID string, err error)
	Await(ctx context.Context, executionID string) (output any, err error)
}

// Tool executes a sub-playbook described by a step's `with` block:
// {playbook, vars}.
type Tool struct {
	submitter Submitter
}

// New wraps submitter for recursive sub-playbook dispatch.
func New(submitter Submitter) *Tool {
	return &Tool{submitter: submitter}
}

func (t *Tool) Name() string { return "playbook" }

func (t *Tool) Execute(ctx context.Context, input map[string]any) (tool.Result, error) {
	name, _ := input["playbook"].(string)
	if name == "" {
		return tool.Result{}, tool.Permanent(t.Name(), fmt.Errorf("playbooktool: missing playbook name"))
	}
	vars, _ := input["vars"].(map[string]any)

	execID, err := t.submitter.Submit(ctx, name, vars)
	if err != nil {
		return tool.Result{}, tool.Retryable(t.Name(), err)
	}
	output, err := t.submitter.Await(ctx, execID)
	if err != nil {
		return tool.Result{}, tool.Retryable(t.Name(), err)
	}
	return tool.Result{Output: map[string]any{"execution_id": execID, "output": output}}, nil
}

var _ tool.Tool = (*Tool)(nil)
