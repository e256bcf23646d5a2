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

// Package scripttool implements the "script" node_type: a sandboxed goja
// runtime per invocation, one interpreter instance never shared across
// steps, interrupted via context the same way internal/template is.
package scripttool

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/noetl/noetl/internal/tool"
)

// Tool executes a user-supplied JavaScript snippet described by a step's
// `with` block: {source, params}.
type Tool struct{}

// New returns a scripttool.Tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "script" }

func (t *Tool) Execute(ctx context.Context, input map[string]any) (tool.Result, error) {
	source, _ := input["source"].(string)
	if source == "" {
		return tool.Result{}, tool.Permanent(t.Name(), fmt.Errorf("scripttool: missing source"))
	}
	params, _ := input["params"].(map[string]any)

	rt := goja.New()
	if err := rt.Set("params", params); err != nil {
		return tool.Result{}, tool.Permanent(t.Name(), err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	defer close(done)

	v, err := rt.RunString("(function(){\n" + source + "\n})()")
	if err != nil {
		if ctx.Err() != nil {
			return tool.Result{}, tool.Retryable(t.Name(), ctx.Err())
		}
		return tool.Result{}, tool.Permanent(t.Name(), err)
	}

	return tool.Result{Output: v.Export()}, nil
}

var _ tool.Tool = (*Tool)(nil)
