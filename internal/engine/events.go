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

import "github.com/noetl/noetl/internal/resultstore"

// Payload shapes for every eventlog.Type the engine appends or projects.
// Each is JSON-marshalled into Event.Payload.

type ExecutionStartedPayload struct {
	CatalogID          string         `json:"catalog_id"`
	ParentExecutionID  string         `json:"parent_execution_id,omitempty"`
	Workload           map[string]any `json:"workload"`
}

type ExecutionCompletedPayload struct{}

type ExecutionFailedPayload struct {
	Step  string    `json:"step"`
	Error CallError `json:"error"`
}

type ExecutionCancelledPayload struct {
	Reason string `json:"reason,omitempty"`
	Cascade bool  `json:"cascade,omitempty"`
}

type StepEnterPayload struct {
	Step string `json:"step"`
}

type StepExitPayload struct {
	Step string `json:"step"`
}

type CallStartedPayload struct {
	Step     string `json:"step"`
	Attempt  int    `json:"attempt"`
	NodeType string `json:"node_type"`
}

type CallDonePayload struct {
	Step    string                 `json:"step"`
	Attempt int                    `json:"attempt"`
	Index   *int                   `json:"index,omitempty"` // set when Step is a loop body invocation
	Inline  any                    `json:"inline,omitempty"`
	Ref     *resultstore.ResultRef `json:"ref,omitempty"`
	Vars    map[string]any         `json:"vars,omitempty"`
}

type CallFailedPayload struct {
	Step    string    `json:"step"`
	Attempt int       `json:"attempt"`
	Index   *int      `json:"index,omitempty"`
	Error   CallError `json:"error"`
}

type RetryScheduledPayload struct {
	Step         string  `json:"step"`
	NextAttempt  int     `json:"next_attempt"`
	DelaySeconds float64 `json:"delay_seconds"`
}

type CommandCancelledPayload struct {
	Step    string `json:"step"`
	Attempt int    `json:"attempt"`
}

type VariableSetPayload struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type IteratorStartedPayload struct {
	Step           string `json:"step"`
	CollectionSize int    `json:"collection_size"`
	Mode           string `json:"mode"`
	IteratorName   string `json:"iterator_name"`
}

type IterationStartedPayload struct {
	Step  string `json:"step"`
	Index int    `json:"index"`
}

type IterationCompletedPayload struct {
	Step   string `json:"step"`
	Index  int    `json:"index"`
	Result any    `json:"result"`
}

type IteratorCompletedPayload struct {
	Step string `json:"step"`
}

type IteratorFailedPayload struct {
	Step  string    `json:"step"`
	Error CallError `json:"error"`
}

type FanoutStartedPayload struct {
	Step         string `json:"step"`
	LoopID       string `json:"loop_id"`
	Total        int    `json:"total"`
	AllowPartial bool   `json:"allow_partial"`
}

type ShardCompletedPayload struct {
	Step   string                 `json:"step"`
	LoopID string                 `json:"loop_id"`
	Index  int                    `json:"index"`
	Ref    *resultstore.ResultRef `json:"ref,omitempty"`
}

type ShardFailedPayload struct {
	Step   string    `json:"step"`
	LoopID string    `json:"loop_id"`
	Index  int       `json:"index"`
	Error  CallError `json:"error"`
}

type FaninCompletedPayload struct {
	Step      string `json:"step"`
	LoopID    string `json:"loop_id"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Status    string `json:"status"` // "success" | "partial" | "failed"
}

type PaginationPageFetchedPayload struct {
	Step           string                 `json:"step"`
	Attempt        int                    `json:"attempt"`
	Page           int                    `json:"page"`
	AccumulatorRef *resultstore.ResultRef `json:"accumulator_ref,omitempty"`
	StoppedBy      string                 `json:"stopped_by,omitempty"`
}
