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

// Package engine is the orchestrator: it folds an execution's event log
// into ExecutionState and evaluates the decision function that turns each
// new event into zero or more follow-up actions.
package engine

import (
	"time"

	"github.com/noetl/noetl/internal/resultstore"
)

// Status is an Execution's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// StepResult is the lightweight metadata kept in ExecutionState for a
// step's output: a ResultRef for an externalized payload, or a small inline
// value. Scalars pulled out by the step's `vars:` extraction are folded
// into ExecutionState.Variables, not kept here.
type StepResult struct {
	Ref       *resultstore.ResultRef
	Inline    any // set instead of Ref when the result was small enough to stay inline
	Attempt   int
	Status    string // "done" | "failed"
	Error     *CallError
}

// Value returns the step's result value for template rendering: for a
// ref-backed result, a map of the ref's URI, byte size, extracted fields and
// preview (never the full externalized payload); otherwise the inline value.
func (r StepResult) Value() any {
	if r.Ref != nil {
		return map[string]any{
			"ref":       r.Ref.Ref,
			"bytes":     r.Ref.Bytes,
			"extracted": r.Ref.Extracted,
			"preview":   r.Ref.Preview,
		}
	}
	return r.Inline
}

// CallError is the terminal error payload recorded against a failed call.
type CallError struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Retryable   bool      `json:"retryable"`
	Code        string    `json:"code,omitempty"`
	HTTPStatus  int       `json:"http_status,omitempty"`
}

// LoopState is the projection of a step's loop progress.
type LoopState struct {
	CollectionSize int
	Mode           string
	IteratorName   string
	CompletedCount int
	Results        []any // index-ordered; async preserves input order, not completion order

	// Fan-out fields, only meaningful when Mode == "fanout".
	LoopID        string
	TotalExpected int
	AllowPartial  bool
	ShardStatus   map[int]string // shard index -> "pending"|"done"|"failed"
	ShardRefs     map[int]*resultstore.ResultRef
}

// Done reports whether the loop has reached a terminal state. For a fan-out
// loop that is when every shard has reached done or failed, under fail_fast
// and allow_partial alike; for other modes, when CompletedCount reaches
// CollectionSize.
func (l *LoopState) Done() bool {
	if l.Mode == "fanout" {
		if l.ShardStatus == nil {
			return l.TotalExpected == 0
		}
		for i := 0; i < l.TotalExpected; i++ {
			if l.ShardStatus[i] == "" || l.ShardStatus[i] == "pending" {
				return false
			}
		}
		return true
	}
	return l.CompletedCount >= l.CollectionSize
}

// FailedCount reports how many fan-out shards terminally failed.
func (l *LoopState) FailedCount() int {
	n := 0
	for _, st := range l.ShardStatus {
		if st == "failed" {
			n++
		}
	}
	return n
}

// RetryState is the active retry bookkeeping for one (step, attempt).
type RetryState struct {
	Attempt     int
	NextDelay   time.Duration
	LastError   *CallError
}

// PaginationState tracks an on-success/pagination loop's accumulator.
type PaginationState struct {
	Page        int
	AccumulatorRef *resultstore.ResultRef
	Accumulator    []any
	StoppedBy      string // "" | "max_iterations"
}

// FaninTracker counts terminal shard outcomes for a fan-out loop, keyed by
// loop ID (== step ID for this implementation, one fan-out per step).
type FaninTracker struct {
	Succeeded int
	Failed    int
	Total     int
}

// ExecutionState is the pure projection of an execution's event log:
// reconstructable by folding events left-to-right, equal for equal event
// prefixes.
type ExecutionState struct {
	ExecutionID   string
	CatalogID     string
	ParentExecID  string
	Status        Status
	Variables     map[string]any
	StepResults   map[string]StepResult
	LoopState     map[string]*LoopState
	Pagination    map[string]*PaginationState
	ActiveRetries map[string]*RetryState // key: step
	FaninTrackers map[string]*FaninTracker
	StepAttempt   map[string]int // step -> highest attempt number a call.started carried
	EnteredSteps  map[string]bool
	StepDoneSteps map[string]bool
	Cancelled     bool
	StartedAt     time.Time
	EndedAt       time.Time
	FailureError  *CallError
	FailingStep   string
	Version       int // number of events folded so far
}

// NewExecutionState returns an empty, zero-value ExecutionState ready to
// fold events into.
func NewExecutionState(executionID string) *ExecutionState {
	return &ExecutionState{
		ExecutionID:   executionID,
		Status:        StatusPending,
		Variables:     map[string]any{},
		StepResults:   map[string]StepResult{},
		LoopState:     map[string]*LoopState{},
		Pagination:    map[string]*PaginationState{},
		ActiveRetries: map[string]*RetryState{},
		FaninTrackers: map[string]*FaninTracker{},
		StepAttempt:   map[string]int{},
		EnteredSteps:  map[string]bool{},
		StepDoneSteps: map[string]bool{},
	}
}

// Clone returns a deep-enough copy for callers that mutate a projection
// without disturbing the original.
func (s *ExecutionState) Clone() *ExecutionState {
	out := NewExecutionState(s.ExecutionID)
	out.CatalogID = s.CatalogID
	out.ParentExecID = s.ParentExecID
	out.Status = s.Status
	out.Cancelled = s.Cancelled
	out.StartedAt = s.StartedAt
	out.EndedAt = s.EndedAt
	out.FailureError = s.FailureError
	out.FailingStep = s.FailingStep
	out.Version = s.Version
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	for k, v := range s.StepResults {
		out.StepResults[k] = v
	}
	for k, v := range s.LoopState {
		cp := *v
		out.LoopState[k] = &cp
	}
	for k, v := range s.Pagination {
		cp := *v
		out.Pagination[k] = &cp
	}
	for k, v := range s.ActiveRetries {
		cp := *v
		out.ActiveRetries[k] = &cp
	}
	for k, v := range s.FaninTrackers {
		cp := *v
		out.FaninTrackers[k] = &cp
	}
	for k, v := range s.StepAttempt {
		out.StepAttempt[k] = v
	}
	for k, v := range s.EnteredSteps {
		out.EnteredSteps[k] = v
	}
	for k, v := range s.StepDoneSteps {
		out.StepDoneSteps[k] = v
	}
	return out
}
