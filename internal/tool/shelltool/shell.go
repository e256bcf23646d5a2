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

// Package shelltool implements the "shell" node_type directly on os/exec.
// No repo in the example pack wraps untrusted subprocess execution in a
// third-party library, so this is the one node_type built on the standard
// library alone; see DESIGN.md.
package shelltool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/noetl/noetl/internal/tool"
)

// Tool runs a command described by a step's `with` block: {command, args,
// env}. Nothing here restricts which steps may use it, and cmd/worker
// registers it unconditionally.
type Tool struct{}

// New returns a shelltool.Tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "shell" }

func (t *Tool) Execute(ctx context.Context, input map[string]any) (tool.Result, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return tool.Result{}, tool.Permanent(t.Name(), fmt.Errorf("shelltool: missing command"))
	}
	var args []string
	if raw, ok := input["args"].([]any); ok {
		for _, a := range raw {
			args = append(args, fmt.Sprintf("%v", a))
		}
	}

	cmd := exec.CommandContext(ctx, command, args...)
	if env, ok := input["env"].(map[string]any); ok {
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%v", k, v))
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := tool.Result{Output: map[string]any{
		"stdout": stdout.String(),
		"stderr": stderr.String(),
	}}
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return result, tool.Retryable(t.Name(), ctx.Err())
	}
	return result, tool.Permanent(t.Name(), err)
}

var _ tool.Tool = (*Tool)(nil)
