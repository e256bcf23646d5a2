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

// Cancellation marks the execution terminal and requests cancellation of
// whatever is outstanding in the queue.
func TestEngine_CancelCascadesToQueue(t *testing.T) {
	pb := linearPlaybook()
	e, _, q := newTestEngine(pb)
	defer e.Close()

	executionID, err := e.Submit(context.Background(), "cat-1", nil, "")
	require.NoError(t, err)

	require.NoError(t, e.Cancel(context.Background(), executionID, true, "user requested"))

	status, err := e.Status(context.Background(), executionID)
	require.NoError(t, err)
	require.True(t, status.Cancelled)
	require.Equal(t, StatusCancelled, status.Status)

	cmd, err := q.ClaimNext(context.Background(), "worker-1", nil, 0)
	require.NoError(t, err)
	require.NotNil(t, cmd.CancelRequestedAt)
}

// Cancelling a parent execution cascades to its children (sub-playbook
// invocations reached via parent_execution_id).
func TestEngine_CancelCascadesToChildren(t *testing.T) {
	pb := linearPlaybook()
	e, _, q := newTestEngine(pb)
	defer e.Close()

	parentID, err := e.Submit(context.Background(), "cat-1", nil, "")
	require.NoError(t, err)
	childID, err := e.Submit(context.Background(), "cat-1", nil, parentID)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(context.Background(), parentID, true, "parent cancelled"))

	parentStatus, err := e.Status(context.Background(), parentID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, parentStatus.Status)

	childStatus, err := e.Status(context.Background(), childID)
	require.NoError(t, err)
	require.True(t, childStatus.Cancelled)
	require.Equal(t, StatusCancelled, childStatus.Status)

	cancelled := 0
	for {
		cmd, err := q.ClaimNext(context.Background(), "worker-1", nil, 0)
		if err != nil {
			break
		}
		require.NoError(t, q.Ack(context.Background(), "worker-1", cmd.ID))
		if cmd.CancelRequestedAt != nil {
			cancelled++
		}
	}
	require.Equal(t, 2, cancelled)
}

// Cancellation is final: a call.done arriving after execution.cancelled
// must not resurrect the execution or enqueue further work, even though the
// in-flight iteration's own iteration_completed/shard-advance bookkeeping
// still folds normally.
func TestEngine_CancelIsFinalAgainstLateCallDone(t *testing.T) {
	pb := &playbook.Playbook{
		Start: []string{"process"},
		Steps: []playbook.Step{{
			ID: "process", NodeType: "http",
			Loop: &playbook.Loop{Over: "[10,20,30]", Mode: playbook.LoopSequential, As: "item"},
		}},
	}
	e, store, q := newTestEngine(pb)
	defer e.Close()

	executionID, err := e.Submit(context.Background(), "cat-1", nil, "")
	require.NoError(t, err)

	cmd, err := q.ClaimNext(context.Background(), "worker-1", nil, 0)
	require.NoError(t, err)
	require.NoError(t, q.Ack(context.Background(), "worker-1", cmd.ID))

	require.NoError(t, e.Cancel(context.Background(), executionID, true, "user requested"))
	status, err := e.Status(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, status.Status)

	index := 0
	appendEvent(t, store, executionID, eventlog.CallDone, CallDonePayload{
		Step: "process", Attempt: 1, Index: &index, Inline: "ok0",
	})
	require.NoError(t, e.Advance(context.Background(), executionID))

	status, err = e.Status(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, status.Status, "a late call.done must not un-cancel the execution")

	_, err = q.ClaimNext(context.Background(), "worker-1", nil, 0)
	require.Error(t, err, "the next loop iteration must not be enqueued once cancelled")
}
