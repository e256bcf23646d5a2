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
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// registerFilters installs the Jinja-style filter functions ("|default",
// "|int", "|tojson", "|lower", "|length") as globals, and rewrites
// "expr | filter(args)" pipe chains into ordinary JS calls before they ever
// reach the runtime's parser, since goja evaluates JavaScript, not Jinja.
func registerFilters(rt *goja.Runtime) {
	rt.Set("default", func(v goja.Value, fallback goja.Value) goja.Value {
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return fallback
		}
		return v
	})
	rt.Set("int", func(v goja.Value) goja.Value {
		s := strings.TrimSpace(v.String())
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return rt.ToValue(0)
		}
		return rt.ToValue(n)
	})
	rt.Set("tojson", func(v goja.Value) goja.Value {
		b, err := json.Marshal(v.Export())
		if err != nil {
			return rt.ToValue("")
		}
		return rt.ToValue(string(b))
	})
	rt.Set("lower", func(v goja.Value) goja.Value {
		return rt.ToValue(strings.ToLower(v.String()))
	})
	rt.Set("length", func(v goja.Value) goja.Value {
		exported := v.Export()
		switch t := exported.(type) {
		case string:
			return rt.ToValue(len(t))
		case []any:
			return rt.ToValue(len(t))
		case map[string]any:
			return rt.ToValue(len(t))
		default:
			return rt.ToValue(0)
		}
	})
}

// filterCallPattern matches one "filter(args) trailing" pipe segment.
// rewritePipes is unexported; Eval runs every expression through it before
// RunString.
var filterCallPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(\(([^()]*)\))?(.*)$`)

func rewritePipes(expr string) string {
	segments := splitTopLevel(expr, '|')
	if len(segments) == 1 {
		return expr
	}
	out := strings.TrimSpace(segments[0])
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		m := filterCallPattern.FindStringSubmatch(seg)
		if m == nil {
			// Not a recognizable "filter(args) trailing" shape; leave as-is
			// rather than guess wrong.
			out = out + " | " + seg
			continue
		}
		name, args, trailing := m[1], strings.TrimSpace(m[3]), strings.TrimSpace(m[4])
		if args != "" {
			out = name + "(" + out + ", " + args + ")"
		} else {
			out = name + "(" + out + ")"
		}
		if trailing != "" {
			out = out + " " + trailing
		}
	}
	return out
}

// splitTopLevel splits s on sep, ignoring occurrences inside (), [], or
// string literals.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inString := byte(0)
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inString != 0:
			if c == inString && (i == 0 || s[i-1] != '\\') {
				inString = 0
			}
		case c == '\'' || c == '"':
			inString = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
