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

package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/queue"
)

// StepInvocation is the shape of a Command's Payload: everything a worker
// needs to render templates and invoke a step's tool, beyond the step
// definition it already has from the playbook it fetched by CatalogID.
type StepInvocation struct {
	Step     string            `json:"step"`
	NodeType string            `json:"node_type"`
	With     map[string]any    `json:"with"`
	Auth     string            `json:"auth,omitempty"`
	Pipe     []playbook.PipeTask `json:"pipe,omitempty"`
	Attempt  int               `json:"attempt"`
	Timeout  time.Duration     `json:"timeout,omitempty"`
	// Vars names scalars to extract from this call's result into
	// ExecutionState.Variables, each value a template expression evaluated
	// by the worker with "result" bound to the tool's output.
	Vars map[string]string `json:"vars,omitempty"`

	// Loop context, zero-valued outside a loop.
	LoopID   string `json:"loop_id,omitempty"`
	IterVar  string `json:"iter_var,omitempty"`
	Item     any    `json:"item,omitempty"`
	Index    int    `json:"index,omitempty"`

	// Output externalization policy.
	OutputSelect   string        `json:"output_select,omitempty"`
	OutputScope    string        `json:"output_scope,omitempty"`
	OutputTTL      time.Duration `json:"output_ttl,omitempty"`
	InlineMaxBytes int64         `json:"inline_max_bytes,omitempty"`
}

// buildCommand encodes a StepInvocation into a queue.Command ready to
// enqueue, applying the step's target_pool/required_capabilities/dedupe_key
// declarations.
func buildCommand(executionID string, step playbook.Step, inv StepInvocation, dedupeSuffix string) queue.Command {
	payload, _ := json.Marshal(inv)
	class := queue.Class(step.TargetPool)
	if class == "" {
		class = queue.ClassDefault
	}
	dedupe := step.DedupeKey
	if dedupe == "" {
		dedupe = step.ID
	}
	dedupe = fmt.Sprintf("%s:%d", dedupe, inv.Attempt)
	if dedupeSuffix != "" {
		dedupe = fmt.Sprintf("%s:%s", dedupe, dedupeSuffix)
	}
	return queue.Command{
		ExecutionID:          executionID,
		StepID:               step.ID,
		NodeType:             step.NodeType,
		Payload:              payload,
		Status:               queue.StatusPending,
		Class:                class,
		DedupeKey:            dedupe,
		Attempt:              inv.Attempt,
		RequiredCapabilities: step.RequiredCapabilities,
	}
}
