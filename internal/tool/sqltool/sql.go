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

// Package sqltool implements the "sql" node_type via pgx.
package sqltool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noetl/noetl/internal/tool"
)

// Tool executes parameterized SQL statements described by a step's `with`
// block: {query, args}.
type Tool struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool (the engine owns connection lifecycle and
// shares a single pool across step invocations).
func New(pool *pgxpool.Pool) *Tool {
	return &Tool{pool: pool}
}

func (t *Tool) Name() string { return "sql" }

func (t *Tool) Execute(ctx context.Context, input map[string]any) (tool.Result, error) {
	query, _ := input["query"].(string)
	if query == "" {
		return tool.Result{}, tool.Permanent(t.Name(), fmt.Errorf("sqltool: missing query"))
	}
	var args []any
	if raw, ok := input["args"].([]any); ok {
		args = raw
	}

	rows, err := t.pool.Query(ctx, query, args...)
	if err != nil {
		return tool.Result{}, tool.Retryable(t.Name(), err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return tool.Result{}, tool.Permanent(t.Name(), err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return tool.Result{}, tool.Retryable(t.Name(), err)
	}

	return tool.Result{Output: map[string]any{"rows": out, "row_count": len(out)}}, nil
}

var _ tool.Tool = (*Tool)(nil)
