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

package template

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderString_PlainSubstitution(t *testing.T) {
	out, err := RenderString(context.Background(), "{{ vars.name }}", Scope{Vars: map[string]any{"name": "noetl"}})
	require.NoError(t, err)
	assert.Equal(t, "noetl", out)
}

func TestRenderString_MixedText(t *testing.T) {
	out, err := RenderString(context.Background(), "hello {{ vars.name }}!", Scope{Vars: map[string]any{"name": "world"}})
	require.NoError(t, err)
	assert.Equal(t, "hello world!", out)
}

func TestEval_DefaultFilter(t *testing.T) {
	out, err := Eval(context.Background(), "vars.missing | default('fallback')", Scope{Vars: map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, "fallback", out)
}

func TestEval_LengthFilterWithComparison(t *testing.T) {
	scope := Scope{Vars: map[string]any{}, Steps: map[string]any{
		"fetch": map[string]any{"output": map[string]any{"items": []any{"a", "b"}}},
	}}
	out, err := Eval(context.Background(), "steps.fetch.output.items | length > 0", scope)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestEval_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := Eval(ctx, "while(true) {}", Scope{})
	assert.Error(t, err)
}
