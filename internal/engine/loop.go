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
	"fmt"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/playbook"
)

// chunk splits items into slices of at most size, size <= 0 meaning one
// chunk holding everything.
func chunk(items []any, size int) [][]any {
	if size <= 0 {
		return [][]any{items}
	}
	var out [][]any
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

// chunkToAny widens chunk's [][]any into []any so each chunk can be
// indexed the same way AdvanceSequentialOrAsync indexes a plain item
// collection.
func chunkToAny(units [][]any) []any {
	out := make([]any, len(units))
	for i, u := range units {
		out[i] = u
	}
	return out
}

// StartLoop expands step's loop over the already-rendered items slice into
// the iterator_started/fanout_started event plus every shard's command.
// items has already been through template evaluation of
// Loop.Over by the caller. Async and fan-out modes dispatch every shard's
// command up front. Loop.Concurrency is not read here or by the queue:
// nothing caps how many of those commands workers claim at once.
// Sequential and chunked modes dispatch one item at a time, advanced by
// AdvanceSequentialOrAsync as each completes.
func StartLoop(executionID string, step playbook.Step, items []any) []Action {
	l := step.Loop
	switch l.Mode {
	case playbook.LoopFanout:
		units := chunk(items, l.ChunkSize)
		actions := []Action{
			AppendEvent{Type: eventlog.FanoutStarted, Payload: FanoutStartedPayload{
				Step: step.ID, LoopID: step.ID, Total: len(units), AllowPartial: l.AllowPartial,
			}},
		}
		for i, u := range units {
			actions = append(actions, enqueueLoopItem(executionID, step, u, i, 1))
		}
		if len(units) == 0 {
			actions = append(actions, AppendEvent{Type: eventlog.FaninCompleted, Payload: FaninCompletedPayload{
				Step: step.ID, LoopID: step.ID, Status: "success",
			}})
		}
		return actions

	case playbook.LoopChunked:
		units := chunk(items, l.ChunkSize)
		actions := []Action{
			AppendEvent{Type: eventlog.IteratorStarted, Payload: IteratorStartedPayload{
				Step: step.ID, CollectionSize: len(units), Mode: string(l.Mode), IteratorName: l.As,
			}},
		}
		if len(units) > 0 {
			actions = append(actions, enqueueLoopItem(executionID, step, units[0], 0, 1))
		} else {
			actions = append(actions, AppendEvent{Type: eventlog.IteratorCompleted, Payload: IteratorCompletedPayload{Step: step.ID}})
		}
		return actions

	case playbook.LoopAsync:
		actions := []Action{
			AppendEvent{Type: eventlog.IteratorStarted, Payload: IteratorStartedPayload{
				Step: step.ID, CollectionSize: len(items), Mode: string(l.Mode), IteratorName: l.As,
			}},
		}
		for i, it := range items {
			actions = append(actions, enqueueLoopItem(executionID, step, it, i, 1))
		}
		if len(items) == 0 {
			actions = append(actions, AppendEvent{Type: eventlog.IteratorCompleted, Payload: IteratorCompletedPayload{Step: step.ID}})
		}
		return actions

	default: // LoopSequential
		actions := []Action{
			AppendEvent{Type: eventlog.IteratorStarted, Payload: IteratorStartedPayload{
				Step: step.ID, CollectionSize: len(items), Mode: string(playbook.LoopSequential), IteratorName: l.As,
			}},
		}
		if len(items) > 0 {
			actions = append(actions, enqueueLoopItem(executionID, step, items[0], 0, 1))
		} else {
			actions = append(actions, AppendEvent{Type: eventlog.IteratorCompleted, Payload: IteratorCompletedPayload{Step: step.ID}})
		}
		return actions
	}
}

func enqueueLoopItem(executionID string, step playbook.Step, item any, index int, attempt int) Action {
	inv := StepInvocation{
		Step: step.ID, NodeType: step.NodeType, With: step.With, Auth: step.Auth, Pipe: step.Pipe,
		Attempt: attempt, Timeout: step.Timeout,
		LoopID: step.ID, IterVar: step.Loop.As, Item: item, Index: index,
		OutputSelect: step.OutputSelect, OutputScope: step.Output.Scope, OutputTTL: step.Output.TTL,
		InlineMaxBytes: step.Output.InlineMaxBytes,
	}
	return EnqueueCommand{Command: buildCommand(executionID, step, inv, fmt.Sprintf("%d", index))}
}

// AdvanceSequentialOrAsync reacts to one iteration_completed event for a
// sequential or chunked loop: it enqueues the next item (async/fanout
// already issued every shard up front in StartLoop, so nothing to do
// there). Returns the iterator_completed action once every index has
// reported in.
func AdvanceSequentialOrAsync(executionID string, step playbook.Step, ls *LoopState, items []any, completedIndex int) []Action {
	if ls.CompletedCount >= ls.CollectionSize {
		return []Action{AppendEvent{Type: eventlog.IteratorCompleted, Payload: IteratorCompletedPayload{Step: step.ID}}}
	}
	if step.Loop.Mode == playbook.LoopAsync {
		return nil
	}
	next := completedIndex + 1
	if next < len(items) {
		return []Action{enqueueLoopItem(executionID, step, items[next], next, 1)}
	}
	return nil
}

// AdvanceFanout reacts to one shard terminal event (shard.completed or
// shard.failed): short-circuits to fan-in failure under fail_fast as soon
// as the first shard fails, or emits fanin_completed once every shard has
// reached a terminal state.
func AdvanceFanout(step playbook.Step, ls *LoopState, ft *FaninTracker) []Action {
	if !step.Loop.AllowPartial && ft.Failed > 0 && !ls.Done() {
		return []Action{AppendEvent{Type: eventlog.FaninCompleted, Payload: FaninCompletedPayload{
			Step: step.ID, LoopID: step.ID, Succeeded: ft.Succeeded, Failed: ft.Failed, Status: "failed",
		}}}
	}
	if ls.Done() {
		status := "success"
		if ft.Failed > 0 {
			status = "partial"
			if !step.Loop.AllowPartial {
				status = "failed"
			}
		}
		return []Action{AppendEvent{Type: eventlog.FaninCompleted, Payload: FaninCompletedPayload{
			Step: step.ID, LoopID: step.ID, Succeeded: ft.Succeeded, Failed: ft.Failed, Status: status,
		}}}
	}
	return nil
}
