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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/playbook"
)

func TestStartLoop_SequentialIssuesOnlyFirstItem(t *testing.T) {
	step := playbook.Step{ID: "each", NodeType: "http", Loop: &playbook.Loop{Mode: playbook.LoopSequential, As: "item"}}
	actions := StartLoop("exec-1", step, []any{"a", "b", "c"})
	require.Len(t, actions, 2)
	require.Equal(t, eventlog.IteratorStarted, actions[0].(AppendEvent).Type)
	cmd := actions[1].(EnqueueCommand).Command
	require.Equal(t, "each", cmd.StepID)
}

// Async mode emits iterator_started and a command for every item at once,
// rather than one item at a time.
func TestStartLoop_AsyncIssuesEverythingUpFront(t *testing.T) {
	step := playbook.Step{ID: "each", NodeType: "http", Loop: &playbook.Loop{Mode: playbook.LoopAsync, As: "item"}}
	actions := StartLoop("exec-1", step, []any{"a", "b", "c"})
	require.Len(t, actions, 4) // iterator_started + 3 commands
}

func TestLoopState_Done_OrderIndependentCompletion(t *testing.T) {
	ls := &LoopState{CollectionSize: 3, Results: make([]any, 3)}
	require.False(t, ls.Done())
	ls.Results[2] = "late"
	ls.CompletedCount++
	ls.Results[0] = "first"
	ls.CompletedCount++
	require.False(t, ls.Done())
	ls.Results[1] = "middle"
	ls.CompletedCount++
	require.True(t, ls.Done())
	require.Equal(t, []any{"first", "middle", "late"}, ls.Results)
}

func TestAdvanceFanout_FailFastStopsOnFirstFailure(t *testing.T) {
	step := playbook.Step{ID: "shard", Loop: &playbook.Loop{Mode: playbook.LoopFanout, AllowPartial: false}}
	ls := &LoopState{Mode: "fanout", TotalExpected: 3, ShardStatus: map[int]string{0: "done", 1: "failed"}}
	ft := &FaninTracker{Total: 3, Succeeded: 1, Failed: 1}

	actions := AdvanceFanout(step, ls, ft)
	require.Len(t, actions, 1)
	ae := actions[0].(AppendEvent)
	require.Equal(t, eventlog.FaninCompleted, ae.Type)
	require.Equal(t, "failed", ae.Payload.(FaninCompletedPayload).Status)
}

func TestAdvanceFanout_AllowPartialWaitsForEveryShard(t *testing.T) {
	step := playbook.Step{ID: "shard", Loop: &playbook.Loop{Mode: playbook.LoopFanout, AllowPartial: true}}
	ls := &LoopState{Mode: "fanout", TotalExpected: 3, ShardStatus: map[int]string{0: "done", 1: "failed"}}
	ft := &FaninTracker{Total: 3, Succeeded: 1, Failed: 1}

	require.Nil(t, AdvanceFanout(step, ls, ft))

	ls.ShardStatus[2] = "done"
	ft.Succeeded = 2
	actions := AdvanceFanout(step, ls, ft)
	require.Len(t, actions, 1)
	require.Equal(t, "partial", actions[0].(AppendEvent).Payload.(FaninCompletedPayload).Status)
}

func TestAdvanceSequentialOrAsync_EnqueuesNextThenCompletes(t *testing.T) {
	step := playbook.Step{ID: "each", Loop: &playbook.Loop{Mode: playbook.LoopSequential}}
	ls := &LoopState{CollectionSize: 2, CompletedCount: 1}
	items := []any{"a", "b"}

	actions := AdvanceSequentialOrAsync("exec-1", step, ls, items, 0)
	require.Len(t, actions, 1)
	_, ok := actions[0].(EnqueueCommand)
	require.True(t, ok)

	ls.CompletedCount = 2
	actions = AdvanceSequentialOrAsync("exec-1", step, ls, items, 1)
	require.Len(t, actions, 1)
	ae := actions[0].(AppendEvent)
	require.Equal(t, eventlog.IteratorCompleted, ae.Type)
}
