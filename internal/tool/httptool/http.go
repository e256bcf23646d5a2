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

// Package httptool implements the "http" node_type via resty.
package httptool

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/noetl/noetl/internal/tool"
)

// Tool executes HTTP requests described by a step's `with` block:
// {method, url, headers, query, body}.
type Tool struct {
	client *resty.Client
}

// New returns an httptool.Tool using a shared resty client.
func New() *Tool {
	return &Tool{client: resty.New()}
}

func (t *Tool) Name() string { return "http" }

func (t *Tool) Execute(ctx context.Context, input map[string]any) (tool.Result, error) {
	method, _ := input["method"].(string)
	if method == "" {
		method = "GET"
	}
	url, _ := input["url"].(string)
	if url == "" {
		return tool.Result{}, tool.Permanent(t.Name(), fmt.Errorf("httptool: missing url"))
	}

	req := t.client.R().SetContext(ctx)
	if headers, ok := input["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.SetHeader(k, fmt.Sprintf("%v", v))
		}
	}
	if query, ok := input["query"].(map[string]any); ok {
		for k, v := range query {
			req.SetQueryParam(k, fmt.Sprintf("%v", v))
		}
	}
	if body, ok := input["body"]; ok {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		return tool.Result{}, tool.Retryable(t.Name(), err)
	}
	if resp.StatusCode() == 429 || resp.StatusCode() >= 500 {
		return tool.Result{}, tool.Retryable(t.Name(), fmt.Errorf("httptool: status %d", resp.StatusCode()))
	}
	if resp.StatusCode() >= 400 {
		return tool.Result{}, tool.Permanent(t.Name(), fmt.Errorf("httptool: status %d", resp.StatusCode()))
	}

	return tool.Result{Output: map[string]any{
		"status":  resp.StatusCode(),
		"headers": resp.Header(),
		"body":    string(resp.Body()),
	}}, nil
}

var _ tool.Tool = (*Tool)(nil)
