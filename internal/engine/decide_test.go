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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/playbook"
)

func linearPlaybook() *playbook.Playbook {
	return &playbook.Playbook{
		Name:  "linear",
		Start: []string{"fetch"},
		Steps: []playbook.Step{
			{ID: "fetch", NodeType: "http", With: map[string]any{"url": "https://example.com"}, Next: []string{"notify"}},
			{ID: "notify", NodeType: "http", With: map[string]any{"url": "https://hooks.example.com"}},
		},
	}
}

func foldAll(t *testing.T, state *ExecutionState, events ...eventlog.Event) {
	t.Helper()
	for _, e := range events {
		Fold(state, e)
	}
}

func TestDecide_ExecutionStartedEntersStartSteps(t *testing.T) {
	pb := linearPlaybook()
	state := NewExecutionState("exec-1")
	started := mustEvent(t, eventlog.ExecutionStarted, ExecutionStartedPayload{CatalogID: "cat-1"})
	foldAll(t, state, started)

	actions := Decide(context.Background(), state, pb, started)
	require.Len(t, actions, 1)
	ae, ok := actions[0].(AppendEvent)
	require.True(t, ok)
	require.Equal(t, eventlog.StepEnter, ae.Type)
	require.Equal(t, StepEnterPayload{Step: "fetch"}, ae.Payload)
}

func TestDecide_StepEnterEnqueuesCommand(t *testing.T) {
	pb := linearPlaybook()
	state := NewExecutionState("exec-1")
	enter := mustEvent(t, eventlog.StepEnter, StepEnterPayload{Step: "fetch"})
	foldAll(t, state, enter)

	actions := Decide(context.Background(), state, pb, enter)
	require.Len(t, actions, 1)
	ec, ok := actions[0].(EnqueueCommand)
	require.True(t, ok)
	require.Equal(t, "fetch", ec.Command.StepID)
	require.Equal(t, "http", ec.Command.NodeType)
}

func TestDecide_CallDoneExitsThenRoutesToNext(t *testing.T) {
	pb := linearPlaybook()
	state := NewExecutionState("exec-1")
	callDone := mustEvent(t, eventlog.CallDone, CallDonePayload{Step: "fetch", Attempt: 1, Inline: "ok"})
	foldAll(t, state,
		mustEvent(t, eventlog.ExecutionStarted, ExecutionStartedPayload{CatalogID: "cat-1"}),
		mustEvent(t, eventlog.StepEnter, StepEnterPayload{Step: "fetch"}),
		callDone,
	)

	actions := Decide(context.Background(), state, pb, callDone)
	require.Len(t, actions, 1)
	ae := actions[0].(AppendEvent)
	require.Equal(t, eventlog.StepExit, ae.Type)

	stepExit := mustEvent(t, eventlog.StepExit, StepExitPayload{Step: "fetch"})
	Fold(state, stepExit)
	actions = Decide(context.Background(), state, pb, stepExit)
	require.Len(t, actions, 1)
	next := actions[0].(AppendEvent)
	require.Equal(t, eventlog.StepEnter, next.Type)
	require.Equal(t, StepEnterPayload{Step: "notify"}, next.Payload)
}

func TestDecide_LastStepExitCompletesExecution(t *testing.T) {
	pb := linearPlaybook()
	state := NewExecutionState("exec-1")
	foldAll(t, state,
		mustEvent(t, eventlog.ExecutionStarted, ExecutionStartedPayload{CatalogID: "cat-1"}),
		mustEvent(t, eventlog.StepEnter, StepEnterPayload{Step: "fetch"}),
		mustEvent(t, eventlog.StepExit, StepExitPayload{Step: "fetch"}),
		mustEvent(t, eventlog.StepEnter, StepEnterPayload{Step: "notify"}),
	)
	lastExit := mustEvent(t, eventlog.StepExit, StepExitPayload{Step: "notify"})
	Fold(state, lastExit)

	actions := Decide(context.Background(), state, pb, lastExit)
	require.Len(t, actions, 1)
	ae := actions[0].(AppendEvent)
	require.Equal(t, eventlog.ExecutionCompleted, ae.Type)
}

// A retryable failure schedules a retry instead of failing
// the execution outright.
func TestDecide_CallFailedSchedulesRetryWithinBudget(t *testing.T) {
	pb := &playbook.Playbook{
		Start: []string{"fetch"},
		Steps: []playbook.Step{{
			ID: "fetch", NodeType: "http",
			Retry: &playbook.Retry{MaxAttempts: 3, Backoff: playbook.Backoff{}},
		}},
	}
	state := NewExecutionState("exec-1")
	failed := mustEvent(t, eventlog.CallFailed, CallFailedPayload{
		Step: "fetch", Attempt: 1, Error: CallError{Kind: ErrServer, Retryable: true},
	})
	foldAll(t, state, failed)

	actions := Decide(context.Background(), state, pb, failed)
	require.Len(t, actions, 2)
	ae, ok := actions[0].(AppendEvent)
	require.True(t, ok)
	require.Equal(t, eventlog.RetryScheduled, ae.Type)
	_, ok = actions[1].(ScheduleAt)
	require.True(t, ok)
}

func TestDecide_CallFailedExhaustedFailsExecution(t *testing.T) {
	pb := &playbook.Playbook{
		Start: []string{"fetch"},
		Steps: []playbook.Step{{
			ID: "fetch", NodeType: "http",
			Retry: &playbook.Retry{MaxAttempts: 1},
		}},
	}
	state := NewExecutionState("exec-1")
	failed := mustEvent(t, eventlog.CallFailed, CallFailedPayload{
		Step: "fetch", Attempt: 1, Error: CallError{Kind: ErrServer, Retryable: true},
	})
	foldAll(t, state, failed)

	actions := Decide(context.Background(), state, pb, failed)
	require.Len(t, actions, 1)
	ae := actions[0].(AppendEvent)
	require.Equal(t, eventlog.ExecutionFailed, ae.Type)
}

func TestDecide_CaseElseRoutesInsteadOfFailing(t *testing.T) {
	pb := &playbook.Playbook{
		Start: []string{"fetch"},
		Steps: []playbook.Step{
			{ID: "fetch", NodeType: "http", CaseElse: "fallback"},
			{ID: "fallback", NodeType: "http"},
		},
	}
	state := NewExecutionState("exec-1")
	failed := mustEvent(t, eventlog.CallFailed, CallFailedPayload{
		Step: "fetch", Attempt: 1, Error: CallError{Kind: ErrNotFound},
	})
	foldAll(t, state, failed)
	actions := Decide(context.Background(), state, pb, failed)
	require.Len(t, actions, 1)
	ae := actions[0].(AppendEvent)
	require.Equal(t, eventlog.StepExit, ae.Type)

	stepExit := mustEvent(t, eventlog.StepExit, StepExitPayload{Step: "fetch"})
	Fold(state, stepExit)
	actions = Decide(context.Background(), state, pb, stepExit)
	require.Len(t, actions, 1)
	next := actions[0].(AppendEvent)
	require.Equal(t, StepEnterPayload{Step: "fallback"}, next.Payload)
}
