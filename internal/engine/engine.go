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
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/kvstore"
	"github.com/noetl/noetl/internal/queue"
)

// Engine is the orchestrator's public surface: the control-plane API
// (internal/api/http) and the worker runtime drive executions through this
// type rather than touching the event log or command queue directly.
type Engine struct {
	events    eventlog.Store
	cmds      queue.Queue
	scheduler *Scheduler
	queries   *eventlog.QueryEngine

	childrenMu sync.Mutex
	children   map[string][]string // parent_execution_id -> child execution_ids, for cascade cancel
}

// New wires an Engine over its event log, command queue and playbook
// catalog.
func New(events eventlog.Store, cmds queue.Queue, playbooks PlaybookProvider) *Engine {
	return &Engine{
		events:    events,
		cmds:      cmds,
		scheduler: NewScheduler(events, cmds, playbooks),
		queries:   eventlog.NewQueryEngine(events),
		children:  map[string][]string{},
	}
}

// Close releases the engine's background resources (the scheduler's delay
// queue).
func (e *Engine) Close() { e.scheduler.Close() }

// SetKVMirror attaches the distributed KV store loop progress is mirrored
// into. Call before the engine starts accepting submissions; nil disables
// mirroring.
func (e *Engine) SetKVMirror(kv kvstore.Store) { e.scheduler.SetKVMirror(kv) }

// Submit starts a new execution of catalogID with workload bound as its
// initial variables, returning the new execution's ID. parentExecutionID is
// empty for a top-level submission, set for a sub-playbook invocation.
func (e *Engine) Submit(ctx context.Context, catalogID string, workload map[string]any, parentExecutionID string) (string, error) {
	executionID := uuid.NewString()
	payload, err := json.Marshal(ExecutionStartedPayload{
		CatalogID: catalogID, ParentExecutionID: parentExecutionID, Workload: workload,
	})
	if err != nil {
		return "", err
	}
	if _, err := e.events.Append(ctx, executionID, 0, eventlog.Event{
		ExecutionID: executionID, Type: eventlog.ExecutionStarted, Payload: payload, CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("engine: submit %s: %w", executionID, err)
	}
	if parentExecutionID != "" {
		e.childrenMu.Lock()
		e.children[parentExecutionID] = append(e.children[parentExecutionID], executionID)
		e.childrenMu.Unlock()
	}
	if err := e.scheduler.Advance(ctx, executionID); err != nil {
		return executionID, fmt.Errorf("engine: advance %s after submit: %w", executionID, err)
	}
	return executionID, nil
}

// Advance re-runs the decision function over an execution's unprocessed
// events. The control plane calls this after any externally observed
// change (a worker's call.done/call.failed, a Watch notification); it is
// always safe to call redundantly.
func (e *Engine) Advance(ctx context.Context, executionID string) error {
	return e.scheduler.Advance(ctx, executionID)
}

// Status returns the execution's current projected state.
func (e *Engine) Status(ctx context.Context, executionID string) (*ExecutionState, error) {
	events, _, err := e.events.ListEvents(ctx, executionID)
	if err != nil {
		return nil, err
	}
	return Project(executionID, events), nil
}

// QueryEvents runs q against executionID's raw event log (the query_events
// control-plane operation).
func (e *Engine) QueryEvents(ctx context.Context, executionID string, q eventlog.Query) ([]eventlog.Event, error) {
	return e.queries.Run(ctx, executionID, q)
}

// Await blocks until executionID reaches a terminal status, waking on the
// event log's subscription rather than busy-polling: the "playbook"
// node_type calls the engine's submit API and awaits completion this way.
// It returns the child's final variables as the sub-playbook tool's
// output, or an error if the child failed or was cancelled.
func (e *Engine) Await(ctx context.Context, executionID string) (any, error) {
	for {
		state, err := e.Status(ctx, executionID)
		if err != nil {
			return nil, err
		}
		switch state.Status {
		case StatusCompleted:
			return state.Variables, nil
		case StatusFailed:
			msg := "sub-execution failed"
			if state.FailureError != nil {
				msg = state.FailureError.Message
			}
			return nil, fmt.Errorf("engine: sub-execution %s failed at step %q: %s", executionID, state.FailingStep, msg)
		case StatusCancelled:
			return nil, fmt.Errorf("engine: sub-execution %s was cancelled", executionID)
		}

		ch, err := e.events.Watch(ctx, executionID)
		if err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, ok := <-ch:
			if !ok {
				continue
			}
		}
	}
}

// SetVariable appends a variable.set event and re-advances the execution,
// so a step whose When guard depends on the new value is (re)evaluated on
// its next routing pass.
func (e *Engine) SetVariable(ctx context.Context, executionID, name string, value any) error {
	_, version, err := e.events.ListEvents(ctx, executionID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(VariableSetPayload{Name: name, Value: value})
	if err != nil {
		return err
	}
	if _, err := e.events.Append(ctx, executionID, version, eventlog.Event{
		ExecutionID: executionID, Type: eventlog.VariableSet, Payload: payload, CreatedAt: time.Now(),
	}); err != nil {
		return err
	}
	return e.scheduler.Advance(ctx, executionID)
}

// ReportCallStarted appends a call.started event marking the beginning of
// one attempt, before the worker invokes the tool. Purely observational:
// it does not re-advance the execution, since no Decide rule reacts to
// call.started (routing happens off call.done/call.failed), but it is the
// event the "at most one terminal event per call.started" and "strictly
// increasing attempt_number" invariants are checked against.
func (e *Engine) ReportCallStarted(ctx context.Context, executionID string, payload CallStartedPayload) error {
	_, version, err := e.events.ListEvents(ctx, executionID)
	if err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := e.events.Append(ctx, executionID, version, eventlog.Event{
		ExecutionID: executionID, Type: eventlog.CallStarted, Payload: b, CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("engine: report call.started for %s: %w", executionID, err)
	}
	return nil
}

// ReportCallDone appends a call.done event for a worker's successful
// invocation and re-advances the execution. Workers call this (rather than
// touching the event log directly) so the control plane stays the single
// place that knows how to fence/advance an execution.
func (e *Engine) ReportCallDone(ctx context.Context, executionID string, payload CallDonePayload) error {
	return e.reportCall(ctx, executionID, eventlog.CallDone, payload)
}

// ReportCallFailed appends a call.failed event for a worker's failed
// invocation and re-advances the execution.
func (e *Engine) ReportCallFailed(ctx context.Context, executionID string, payload CallFailedPayload) error {
	return e.reportCall(ctx, executionID, eventlog.CallFailed, payload)
}

// ReportCommandCancelled appends a command.cancelled event for a command the
// worker observed as cancel-requested before executing it.
func (e *Engine) ReportCommandCancelled(ctx context.Context, executionID string, payload CommandCancelledPayload) error {
	return e.reportCall(ctx, executionID, eventlog.CommandCancelled, payload)
}

func (e *Engine) reportCall(ctx context.Context, executionID string, typ eventlog.Type, payload any) error {
	_, version, err := e.events.ListEvents(ctx, executionID)
	if err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := e.events.Append(ctx, executionID, version, eventlog.Event{
		ExecutionID: executionID, Type: typ, Payload: b, CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("engine: report %s for %s: %w", typ, executionID, err)
	}
	return e.scheduler.Advance(ctx, executionID)
}

// Cancel appends an execution.cancelled event; when cascade is true every
// outstanding command for the execution is also marked cancel-requested so
// workers holding a lease observe it on their next check, and every
// descendant execution (reached by traversing parent_execution_id) is
// cancelled the same way. Cancellation is final: no further call.done/
// call.failed for this execution changes its terminal outcome once
// recorded.
func (e *Engine) Cancel(ctx context.Context, executionID string, cascade bool, reason string) error {
	_, version, err := e.events.ListEvents(ctx, executionID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ExecutionCancelledPayload{Reason: reason, Cascade: cascade})
	if err != nil {
		return err
	}
	if _, err := e.events.Append(ctx, executionID, version, eventlog.Event{
		ExecutionID: executionID, Type: eventlog.ExecutionCancelled, Payload: payload, CreatedAt: time.Now(),
	}); err != nil {
		return err
	}
	if cascade {
		if err := e.cmds.RequestCancelExecution(ctx, executionID); err != nil {
			return fmt.Errorf("engine: cascade cancel %s: %w", executionID, err)
		}
		e.childrenMu.Lock()
		kids := append([]string{}, e.children[executionID]...)
		e.childrenMu.Unlock()
		for _, childID := range kids {
			if err := e.Cancel(ctx, childID, true, reason); err != nil {
				return fmt.Errorf("engine: cascade cancel child %s of %s: %w", childID, executionID, err)
			}
		}
	}
	return nil
}
