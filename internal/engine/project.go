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

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/resultstore"
)

// Project folds events left-to-right into a fresh ExecutionState. It is a
// pure function of events: projecting the same prefix twice yields equal
// state, and unknown event types are ignored rather than erroring, so
// forward/backward-compatible event producers never break replay.
func Project(executionID string, events []eventlog.Event) *ExecutionState {
	s := NewExecutionState(executionID)
	for _, e := range events {
		Fold(s, e)
	}
	return s
}

// Fold applies a single event to state in place. Exported so the engine's
// live dispatch path can incrementally update a cached projection instead
// of refolding the whole log on every new event.
func Fold(s *ExecutionState, e eventlog.Event) {
	s.Version++
	switch e.Type {
	case eventlog.ExecutionStarted:
		var p ExecutionStartedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.CatalogID = p.CatalogID
			s.ParentExecID = p.ParentExecutionID
			s.Variables = mergeMaps(map[string]any{}, p.Workload)
		}
		s.Status = StatusRunning
		s.StartedAt = e.CreatedAt

	case eventlog.VariableSet:
		var p VariableSetPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.Variables[p.Name] = p.Value
		}

	case eventlog.StepEnter:
		var p StepEnterPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.EnteredSteps[p.Step] = true
		}

	case eventlog.StepExit:
		var p StepExitPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.StepDoneSteps[p.Step] = true
		}

	case eventlog.CallStarted:
		var p CallStartedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.StepAttempt[p.Step] = p.Attempt
		}

	case eventlog.CallDone:
		var p CallDonePayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			if p.Index == nil {
				s.StepResults[p.Step] = StepResult{Ref: p.Ref, Inline: p.Inline, Attempt: p.Attempt, Status: "done"}
			}
			s.Variables = mergeMaps(s.Variables, p.Vars)
			delete(s.ActiveRetries, p.Step)
		}

	case eventlog.CallFailed:
		var p CallFailedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			if p.Index == nil {
				s.StepResults[p.Step] = StepResult{Attempt: p.Attempt, Status: "failed", Error: &p.Error}
			}
		}

	case eventlog.RetryScheduled:
		var p RetryScheduledPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.ActiveRetries[p.Step] = &RetryState{Attempt: p.NextAttempt}
		}

	case eventlog.IteratorStarted:
		var p IteratorStartedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.LoopState[p.Step] = &LoopState{
				CollectionSize: p.CollectionSize,
				Mode:           p.Mode,
				IteratorName:   p.IteratorName,
				Results:        make([]any, p.CollectionSize),
			}
		}

	case eventlog.IterationCompleted:
		var p IterationCompletedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			ls := s.LoopState[p.Step]
			if ls != nil {
				if p.Index >= 0 && p.Index < len(ls.Results) {
					ls.Results[p.Index] = p.Result
				}
				ls.CompletedCount++
			}
		}

	case eventlog.IteratorCompleted, eventlog.IteratorFailed:
		// No additional state beyond what iteration_completed already
		// recorded; these mark the loop terminal for routing purposes and
		// are observed directly off the raw event stream by callers that
		// need to react to completion (the decision function, not
		// projection, drives the follow-up action).

	case eventlog.FanoutStarted:
		var p FanoutStartedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.LoopState[p.Step] = &LoopState{
				Mode:          "fanout",
				LoopID:        p.LoopID,
				TotalExpected: p.Total,
				AllowPartial:  p.AllowPartial,
				ShardStatus:   map[int]string{},
				ShardRefs:     map[int]*resultstore.ResultRef{},
			}
			s.FaninTrackers[p.Step] = &FaninTracker{Total: p.Total}
		}

	case eventlog.ShardCompleted:
		var p ShardCompletedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			ls := s.LoopState[p.Step]
			if ls != nil {
				ls.ShardStatus[p.Index] = "done"
				ls.ShardRefs[p.Index] = p.Ref
			}
			if ft := s.FaninTrackers[p.Step]; ft != nil {
				ft.Succeeded++
			}
		}

	case eventlog.ShardFailed:
		var p ShardFailedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			ls := s.LoopState[p.Step]
			if ls != nil {
				ls.ShardStatus[p.Index] = "failed"
			}
			if ft := s.FaninTrackers[p.Step]; ft != nil {
				ft.Failed++
			}
		}

	case eventlog.FaninCompleted:
		// Terminal marker for the fan-out loop; routing reacts to it
		// directly from the event stream, same as IteratorCompleted.

	case eventlog.PaginationPageFetched:
		var p PaginationPageFetchedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.Pagination[p.Step] = &PaginationState{
				Page:           p.Page,
				AccumulatorRef: p.AccumulatorRef,
				StoppedBy:      p.StoppedBy,
			}
		}

	case eventlog.ExecutionCompleted:
		s.Status = StatusCompleted
		s.EndedAt = e.CreatedAt

	case eventlog.ExecutionFailed:
		var p ExecutionFailedPayload
		if err := json.Unmarshal(e.Payload, &p); err == nil {
			s.FailureError = &p.Error
			s.FailingStep = p.Step
		}
		s.Status = StatusFailed
		s.EndedAt = e.CreatedAt

	case eventlog.ExecutionCancelled:
		s.Cancelled = true
		s.Status = StatusCancelled
		s.EndedAt = e.CreatedAt

	default:
		// Unknown event type: ignored for forward/backward compatibility.
	}
}

func mergeMaps(base map[string]any, extra map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}
