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

// Package playbook is the declarative workflow definition an execution is
// launched from: a DAG of steps, each carrying a tool invocation, routing,
// looping and retry policy. The node/edge shape generalizes the task graph
// a planner would otherwise compute at runtime, since NoETL steps declare
// their own successors instead of being planned.
package playbook

import "time"

// LoopMode controls how Loop.Over is expanded into child step invocations.
type LoopMode string

const (
	LoopSequential LoopMode = "sequential"
	LoopAsync      LoopMode = "async"
	LoopChunked    LoopMode = "chunked"
	LoopFanout     LoopMode = "fanout"
)

// Loop expands a single step into one invocation per item of Over.
type Loop struct {
	Over        string   `yaml:"over"`        // template expression yielding a list
	Mode        LoopMode `yaml:"mode"`
	As          string   `yaml:"as"`          // variable name bound to the current item
	ChunkSize   int      `yaml:"chunk_size"`  // only meaningful for LoopChunked
	Concurrency int      `yaml:"concurrency"` // parsed but not enforced: async/fanout enqueue every item at once
	// AllowPartial controls the fan-in policy for LoopFanout: false (default,
	// "fail_fast") aborts the parent step as soon as one shard fails; true
	// ("allow_partial") lets the parent proceed once every shard has reached
	// a terminal state, succeeded or not.
	AllowPartial bool `yaml:"allow_partial"`
	// Reduce names a downstream step that reads the fan-out manifest instead
	// of the parent step's own Next routing picking it up implicitly.
	Reduce string `yaml:"reduce"`
}

// Backoff is the delay schedule between retry attempts.
type Backoff struct {
	Base       time.Duration `yaml:"base"`
	Multiplier float64       `yaml:"multiplier"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Jitter     float64       `yaml:"jitter"` // fraction of the computed delay to randomize, 0..1
}

// OnSuccess drives pagination-style repetition: keep invoking the step
// while ContinueWhile evaluates true, merging each page's result into the
// accumulated output via MergeStrategy.
type OnSuccess struct {
	ContinueWhile string            `yaml:"continue_while"` // template expression
	MergeStrategy string            `yaml:"merge_strategy"` // "append" | "extend" | "replace" | "collect"
	MergePath     string            `yaml:"merge_path"`     // JSONPath-style location within the result to merge
	NextPage      map[string]string `yaml:"next_page"`      // param name -> template expression computing the next page's "with" override
	MaxPages      int               `yaml:"max_pages"`      // caps total pagination attempts
}

// Retry is a step's failure/repetition policy.
type Retry struct {
	MaxAttempts int        `yaml:"max_attempts"`
	Backoff     Backoff    `yaml:"backoff"`
	OnError     []string   `yaml:"on_error"`   // error kinds considered retryable; empty means use the tool's own classification
	RetryWhen   string     `yaml:"retry_when"` // template expression over "result"/"error"; empty means defer to OnError/tool classification
	StopWhen    string     `yaml:"stop_when"`  // template expression; truthy stops retrying even if RetryWhen/OnError would retry
	OnSuccess   *OnSuccess `yaml:"on_success"`
}

// Output configures how a step's result is externalized and retained.
type Output struct {
	Scope          string        `yaml:"scope"`            // "step" | "execution" | "workflow" | "permanent"
	TTL            time.Duration `yaml:"ttl"`
	InlineMaxBytes int64         `yaml:"inline_max_bytes"` // 0 means resultstore.InlineMaxBytes default
}

// Step is one node of the playbook graph.
type Step struct {
	ID                   string            `yaml:"id"`
	NodeType             string            `yaml:"node_type"` // tool name, e.g. "http", "sql", "script", "playbook"
	With                 map[string]any    `yaml:"with"`      // tool invocation arguments, template-rendered
	When                 string            `yaml:"when"`      // template expression guarding execution; "" means always
	Then                 []string          `yaml:"then"`      // commands to emit on success, e.g. "emit:event_name"
	Next                 []string          `yaml:"next"`      // step IDs to evaluate once this step finishes
	Loop                 *Loop             `yaml:"loop"`
	Retry                *Retry            `yaml:"retry"`
	OutputSelect         string            `yaml:"output_select"` // JSONPath-style expression selecting the value kept as step output
	Output               Output            `yaml:"output"`
	TargetPool           string            `yaml:"target_pool"`   // queue.Class as a string
	RequiredCapabilities []string          `yaml:"required_capabilities"`
	DedupeKey            string            `yaml:"dedupe_key"` // literal key prefix, not template-rendered; empty means the step ID
	Timeout              time.Duration     `yaml:"timeout"`
	// Vars extracts named scalars from this step's result into
	// ExecutionState.Variables, keyed by name, each value a template
	// expression evaluated with "result" bound to the step's output.
	Vars map[string]string `yaml:"vars"`
	// CaseElse names a step to route to when this step terminally fails
	// and its retry policy is exhausted, instead of failing the execution.
	CaseElse string `yaml:"case_else"`
	// Auth names a credential scope to resolve before invoking the tool;
	// empty means no credential is required.
	Auth string `yaml:"auth"`
	// Pipe, if set, threads a sequence of sub-task node types through a
	// single worker-side invocation, each stage's result bound to "_prev"
	// for the next. Steps with Pipe ignore NodeType/With.
	Pipe []PipeTask `yaml:"pipe"`
}

// PipeTask is one stage of a Step.Pipe sequence.
type PipeTask struct {
	NodeType string         `yaml:"node_type"`
	With     map[string]any `yaml:"with"`
}

// Playbook is the parsed, top-level workflow definition.
type Playbook struct {
	Name    string         `yaml:"name"`
	Version string         `yaml:"version"`
	Vars    map[string]any `yaml:"vars"`
	Start   []string       `yaml:"start"` // step IDs with no predecessor
	Steps   []Step         `yaml:"steps"`
}

// StepByID returns the step with the given ID, or ok=false.
func (p *Playbook) StepByID(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}
