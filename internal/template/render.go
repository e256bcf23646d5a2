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

// Package template evaluates the Jinja-style "{{ }}" expressions a
// playbook's with/when/loop/retry fields carry. Each call gets its own
// sandboxed goja.Runtime, the same isolation pattern a tee-style script
// executor uses for untrusted user code: no shared interpreter state leaks
// between steps, and a run can be interrupted from outside via ctx.
package template

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// Scope is the variable namespace an expression is evaluated against:
// playbook vars, prior step outputs, the current loop item, and secrets
// (this package never logs scope values).
type Scope struct {
	Vars    map[string]any
	Steps   map[string]any // stepID -> that step's recorded output
	Item    any            // current loop item, if inside a Loop
	Result  any            // the current step's own in-flight result, for output_select
	Secrets map[string]any
}

var exprPattern = regexp.MustCompile(`\{\{(.*?)\}\}`)

// RenderString substitutes every "{{ expr }}" occurrence in s with the
// string form of expr evaluated against scope. A template containing
// exactly one "{{ }}" and nothing else returns the expression's native
// value (so "{{ fetch.output.items }}" yields a list, not "[object]").
func RenderString(ctx context.Context, s string, scope Scope) (any, error) {
	matches := exprPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 1 && strings.TrimSpace(s[matches[0][0]:matches[0][1]]) == s {
		return Eval(ctx, s[matches[0][2]:matches[0][3]], scope)
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(s[last:m[0]])
		val, err := Eval(ctx, s[m[2]:m[3]], scope)
		if err != nil {
			return nil, err
		}
		sb.WriteString(toDisplayString(val))
		last = m[1]
	}
	sb.WriteString(s[last:])
	return sb.String(), nil
}

// Eval evaluates a single expression (without surrounding "{{ }}") against
// scope and returns its native Go value.
func Eval(ctx context.Context, expr string, scope Scope) (val any, err error) {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	must := func(name string, v any) {
		if err == nil {
			err = rt.Set(name, v)
		}
	}
	must("vars", scope.Vars)
	must("steps", scope.Steps)
	must("item", scope.Item)
	must("result", scope.Result)
	must("secrets", scope.Secrets)
	if err != nil {
		return nil, err
	}
	registerFilters(rt)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	defer close(done)

	v, err := rt.RunString(rewritePipes(expr))
	if err != nil {
		return nil, fmt.Errorf("template: eval %q: %w", expr, err)
	}
	return v.Export(), nil
}

func toDisplayString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", t)
	}
}
