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
	"strconv"
	"time"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/resultstore"
	"github.com/noetl/noetl/internal/template"
)

// Decide is the decision function: given the projection folded through and
// including event, it returns the follow-up actions that event triggers.
// The caller (the scheduler's actor loop) is responsible
// for carrying out each action; AppendEvent actions are folded and fed back
// into Decide before any EnqueueCommand/ScheduleAt action from the same
// call runs, so multi-step cascades (loop start -> first shard,
// shard.completed -> fanin_completed -> step.exit -> next step.enter)
// unfold as a deterministic sequence of single-event decisions rather than
// one function trying to reason about the whole chain at once.
func Decide(ctx context.Context, state *ExecutionState, pb *playbook.Playbook, event eventlog.Event) []Action {
	switch event.Type {
	case eventlog.ExecutionStarted:
		var actions []Action
		for _, id := range pb.Start {
			actions = append(actions, tryEnter(ctx, state, pb, id)...)
		}
		return actions

	case eventlog.StepEnter:
		var p StepEnterPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil
		}
		step, ok := pb.StepByID(p.Step)
		if !ok {
			return nil
		}
		scope := buildScope(state)
		if step.Loop != nil {
			itemsVal, err := template.Eval(ctx, step.Loop.Over, scope)
			if err != nil {
				return []Action{AppendEvent{Type: eventlog.ExecutionFailed, Payload: ExecutionFailedPayload{
					Step: step.ID, Error: CallError{Kind: ErrParse, Message: err.Error(), Retryable: false},
				}}}
			}
			return StartLoop(state.ExecutionID, step, toSlice(itemsVal))
		}
		with, _ := renderMap(ctx, step.With, scope)
		inv := StepInvocation{
			Step: step.ID, NodeType: step.NodeType, With: with, Auth: step.Auth, Pipe: step.Pipe,
			Attempt: 1, Timeout: step.Timeout, OutputSelect: step.OutputSelect, Vars: step.Vars,
			OutputScope: step.Output.Scope, OutputTTL: step.Output.TTL, InlineMaxBytes: step.Output.InlineMaxBytes,
		}
		return []Action{EnqueueCommand{Command: buildCommand(state.ExecutionID, step, inv, "")}}

	case eventlog.CallDone:
		return decideCallDone(ctx, state, pb, event)

	case eventlog.CallFailed:
		return decideCallFailed(ctx, state, pb, event)

	case eventlog.IterationCompleted:
		return decideIterationCompleted(ctx, state, pb, event)

	case eventlog.ShardCompleted, eventlog.ShardFailed:
		return decideShardTerminal(state, pb, event)

	case eventlog.IteratorCompleted, eventlog.IteratorFailed, eventlog.FaninCompleted:
		step := stepForLoopTerminal(pb, event)
		return routeFromStep(ctx, state, pb, step, terminalFailed(event))

	case eventlog.StepExit:
		var p StepExitPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil
		}
		step, ok := pb.StepByID(p.Step)
		if !ok {
			return nil
		}
		failed := false
		if res, ok := state.StepResults[step.ID]; ok {
			failed = res.Status == "failed"
		}
		return routeFromStep(ctx, state, pb, step, failed)

	case eventlog.PaginationPageFetched:
		return nil // informational; the next page's command was already enqueued alongside it

	default:
		return nil
	}
}

func decideCallDone(ctx context.Context, state *ExecutionState, pb *playbook.Playbook, event eventlog.Event) []Action {
	var p CallDonePayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return nil
	}
	step, ok := pb.StepByID(p.Step)
	if !ok {
		return nil
	}
	if p.Index != nil {
		if ls := state.LoopState[step.ID]; ls != nil && ls.Mode == string(playbook.LoopFanout) {
			return []Action{AppendEvent{Type: eventlog.ShardCompleted, Payload: ShardCompletedPayload{
				Step: step.ID, LoopID: step.ID, Index: *p.Index, Ref: p.Ref,
			}}}
		}
		return []Action{AppendEvent{Type: eventlog.IterationCompleted, Payload: IterationCompletedPayload{
			Step: step.ID, Index: *p.Index, Result: resultValue(p.Inline, p.Ref),
		}}}
	}

	if step.Retry != nil && step.Retry.OnSuccess != nil {
		os := step.Retry.OnSuccess
		scope := buildScope(state)
		scope.Result = resultValue(p.Inline, p.Ref)
		cont, err := template.Eval(ctx, os.ContinueWhile, scope)
		page := paginationPage(state, step.ID)
		if err == nil && truthy(cont) && (os.MaxPages <= 0 || page < os.MaxPages) {
			with, _ := renderMap(ctx, step.With, scope)
			for k, expr := range os.NextPage {
				v, err := template.Eval(ctx, expr, scope)
				if err == nil {
					with[k] = v
				}
			}
			inv := StepInvocation{
				Step: step.ID, NodeType: step.NodeType, With: with, Auth: step.Auth,
				Attempt: p.Attempt + 1, Timeout: step.Timeout, OutputSelect: step.OutputSelect, Vars: step.Vars,
				OutputScope: step.Output.Scope, OutputTTL: step.Output.TTL, InlineMaxBytes: step.Output.InlineMaxBytes,
			}
			return []Action{
				AppendEvent{Type: eventlog.PaginationPageFetched, Payload: PaginationPageFetchedPayload{
					Step: step.ID, Attempt: p.Attempt, Page: page + 1,
				}},
				EnqueueCommand{Command: buildCommand(state.ExecutionID, step, inv, "")},
			}
		}
		stoppedBy := ""
		if os.MaxPages > 0 && page >= os.MaxPages {
			stoppedBy = "max_iterations"
		}
		return []Action{
			AppendEvent{Type: eventlog.PaginationPageFetched, Payload: PaginationPageFetchedPayload{
				Step: step.ID, Attempt: p.Attempt, Page: page, StoppedBy: stoppedBy,
			}},
			AppendEvent{Type: eventlog.StepExit, Payload: StepExitPayload{Step: step.ID}},
		}
	}

	return []Action{AppendEvent{Type: eventlog.StepExit, Payload: StepExitPayload{Step: step.ID}}}
}

func decideCallFailed(ctx context.Context, state *ExecutionState, pb *playbook.Playbook, event eventlog.Event) []Action {
	var p CallFailedPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return nil
	}
	step, ok := pb.StepByID(p.Step)
	if !ok {
		return nil
	}
	scope := buildScope(state)
	scope.Result = map[string]any{"error": map[string]any{"kind": string(p.Error.Kind), "message": p.Error.Message}}

	stopWhenTruthy := false
	if step.Retry != nil && step.Retry.StopWhen != "" {
		if v, err := template.Eval(ctx, step.Retry.StopWhen, scope); err == nil {
			stopWhenTruthy = truthy(v)
		}
	}
	retryOK := false
	if step.Retry != nil && step.Retry.RetryWhen != "" {
		if v, err := template.Eval(ctx, step.Retry.RetryWhen, scope); err == nil {
			retryOK = truthy(v) && !stopWhenTruthy && p.Attempt < step.Retry.MaxAttempts
		}
	} else {
		retryOK = ShouldRetry(step.Retry, p.Attempt, p.Error.Kind, stopWhenTruthy)
	}

	if retryOK {
		delay := ComputeBackoff(step.Retry.Backoff, p.Attempt)
		nextAttempt := p.Attempt + 1
		inv := StepInvocation{
			Step: step.ID, NodeType: step.NodeType, With: step.With, Auth: step.Auth, Pipe: step.Pipe,
			Attempt: nextAttempt, Timeout: step.Timeout, Index: zeroOrIndex(p.Index), Vars: step.Vars,
			OutputSelect: step.OutputSelect, OutputScope: step.Output.Scope, OutputTTL: step.Output.TTL,
			InlineMaxBytes: step.Output.InlineMaxBytes,
		}
		cmd := buildCommand(state.ExecutionID, step, inv, dedupeSuffixFor(p.Index))
		cmd.AvailableAt = time.Now().Add(delay)
		return []Action{
			AppendEvent{Type: eventlog.RetryScheduled, Payload: RetryScheduledPayload{
				Step: step.ID, NextAttempt: nextAttempt, DelaySeconds: delay.Seconds(),
			}},
			ScheduleAt{At: cmd.AvailableAt, Command: cmd},
		}
	}

	if p.Index != nil {
		if ls := state.LoopState[step.ID]; ls != nil && ls.Mode == string(playbook.LoopFanout) {
			return []Action{AppendEvent{Type: eventlog.ShardFailed, Payload: ShardFailedPayload{
				Step: step.ID, LoopID: step.ID, Index: *p.Index, Error: p.Error,
			}}}
		}
		return []Action{AppendEvent{Type: eventlog.IteratorFailed, Payload: IteratorFailedPayload{
			Step: step.ID, Error: p.Error,
		}}}
	}

	if step.CaseElse != "" {
		return []Action{AppendEvent{Type: eventlog.StepExit, Payload: StepExitPayload{Step: step.ID}}}
	}
	return []Action{AppendEvent{Type: eventlog.ExecutionFailed, Payload: ExecutionFailedPayload{Step: step.ID, Error: p.Error}}}
}

// decideIterationCompleted reacts to one sequential/async/chunked loop
// iteration finishing: it re-renders the loop's collection expression (the
// same one step.enter evaluated to start the loop; ExecutionState carries
// no copy of the rendered items, only each iteration's result) and hands
// it to AdvanceSequentialOrAsync, which enqueues the next item or, once
// every index has reported in, returns the iterator_completed action.
func decideIterationCompleted(ctx context.Context, state *ExecutionState, pb *playbook.Playbook, event eventlog.Event) []Action {
	var p IterationCompletedPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return nil
	}
	step, ok := pb.StepByID(p.Step)
	if !ok || step.Loop == nil {
		return nil
	}
	ls := state.LoopState[step.ID]
	if ls == nil || ls.Mode == string(playbook.LoopFanout) {
		return nil
	}
	scope := buildScope(state)
	itemsVal, err := template.Eval(ctx, step.Loop.Over, scope)
	if err != nil {
		return []Action{AppendEvent{Type: eventlog.ExecutionFailed, Payload: ExecutionFailedPayload{
			Step: step.ID, Error: CallError{Kind: ErrParse, Message: err.Error(), Retryable: false},
		}}}
	}
	items := toSlice(itemsVal)
	if step.Loop.Mode == playbook.LoopChunked {
		items = chunkToAny(chunk(items, step.Loop.ChunkSize))
	}
	return AdvanceSequentialOrAsync(state.ExecutionID, step, ls, items, p.Index)
}

func decideShardTerminal(state *ExecutionState, pb *playbook.Playbook, event eventlog.Event) []Action {
	var stepID string
	switch event.Type {
	case eventlog.ShardCompleted:
		var p ShardCompletedPayload
		json.Unmarshal(event.Payload, &p)
		stepID = p.Step
	case eventlog.ShardFailed:
		var p ShardFailedPayload
		json.Unmarshal(event.Payload, &p)
		stepID = p.Step
	}
	step, ok := pb.StepByID(stepID)
	if !ok {
		return nil
	}
	ls := state.LoopState[stepID]
	ft := state.FaninTrackers[stepID]
	if ls == nil || ft == nil {
		return nil
	}
	return AdvanceFanout(step, ls, ft)
}

func stepForLoopTerminal(pb *playbook.Playbook, event eventlog.Event) playbook.Step {
	var stepID string
	switch event.Type {
	case eventlog.IteratorCompleted:
		var p IteratorCompletedPayload
		json.Unmarshal(event.Payload, &p)
		stepID = p.Step
	case eventlog.IteratorFailed:
		var p IteratorFailedPayload
		json.Unmarshal(event.Payload, &p)
		stepID = p.Step
	case eventlog.FaninCompleted:
		var p FaninCompletedPayload
		json.Unmarshal(event.Payload, &p)
		stepID = p.Step
	}
	step, _ := pb.StepByID(stepID)
	return step
}

func terminalFailed(event eventlog.Event) bool {
	switch event.Type {
	case eventlog.IteratorFailed:
		return true
	case eventlog.FaninCompleted:
		var p FaninCompletedPayload
		json.Unmarshal(event.Payload, &p)
		return p.Status == "failed"
	default:
		return false
	}
}

// routeFromStep evaluates step's follow-up: its case_else step when it
// terminally failed and one is declared, otherwise every declared Next (and
// Loop.Reduce, for a fan-out) whose When guard passes; an unguarded step
// with no successors that leaves nothing else in flight completes the
// execution.
func routeFromStep(ctx context.Context, state *ExecutionState, pb *playbook.Playbook, step playbook.Step, failed bool) []Action {
	if step.ID == "" {
		return nil
	}
	if failed {
		if step.CaseElse != "" {
			return tryEnter(ctx, state, pb, step.CaseElse)
		}
		return []Action{AppendEvent{Type: eventlog.ExecutionFailed, Payload: ExecutionFailedPayload{Step: step.ID}}}
	}

	next := append([]string{}, step.Next...)
	if step.Loop != nil && step.Loop.Reduce != "" {
		next = append(next, step.Loop.Reduce)
	}
	var actions []Action
	for _, id := range next {
		actions = append(actions, tryEnter(ctx, state, pb, id)...)
	}
	if len(actions) == 0 && allWorkDone(state, pb) {
		actions = append(actions, AppendEvent{Type: eventlog.ExecutionCompleted, Payload: ExecutionCompletedPayload{}})
	}
	return actions
}

func tryEnter(ctx context.Context, state *ExecutionState, pb *playbook.Playbook, stepID string) []Action {
	step, ok := pb.StepByID(stepID)
	if !ok {
		return nil
	}
	if step.When != "" {
		v, err := template.Eval(ctx, step.When, buildScope(state))
		if err != nil || !truthy(v) {
			return nil
		}
	}
	return []Action{AppendEvent{Type: eventlog.StepEnter, Payload: StepEnterPayload{Step: step.ID}}}
}

// allWorkDone reports whether every step entered so far has exited, no
// retries or loops remain active: the condition under which a StepExit
// with no further Next routing means the execution itself is finished
// rather than merely one of several parallel branches finishing early.
func allWorkDone(state *ExecutionState, pb *playbook.Playbook) bool {
	if len(state.ActiveRetries) > 0 {
		return false
	}
	for step := range state.EnteredSteps {
		if state.StepDoneSteps[step] {
			continue
		}
		if ls, hasLoop := state.LoopState[step]; hasLoop && ls.Done() {
			continue
		}
		return false
	}
	return true
}

func buildScope(state *ExecutionState) template.Scope {
	steps := make(map[string]any, len(state.StepResults))
	for id, r := range state.StepResults {
		steps[id] = r.Value()
	}
	return template.Scope{Vars: state.Variables, Steps: steps}
}

func renderMap(ctx context.Context, m map[string]any, scope template.Scope) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case string:
			rv, err := template.RenderString(ctx, t, scope)
			if err != nil {
				return out, err
			}
			out[k] = rv
		case map[string]any:
			rv, err := renderMap(ctx, t, scope)
			if err != nil {
				return out, err
			}
			out[k] = rv
		default:
			out[k] = v
		}
	}
	return out, nil
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	default:
		return []any{t}
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}

func resultValue(inline any, ref *resultstore.ResultRef) any {
	if ref != nil {
		return map[string]any{"ref": ref.Ref, "extracted": ref.Extracted, "preview": ref.Preview}
	}
	return inline
}

func paginationPage(state *ExecutionState, step string) int {
	if p := state.Pagination[step]; p != nil {
		return p.Page
	}
	return 0
}

func zeroOrIndex(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func dedupeSuffixFor(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}
