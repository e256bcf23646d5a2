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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/queue"
)

type staticPlaybooks struct{ pb *playbook.Playbook }

func (s staticPlaybooks) Get(ctx context.Context, catalogID string) (*playbook.Playbook, error) {
	return s.pb, nil
}

func newTestEngine(pb *playbook.Playbook) (*Engine, *eventlog.MemoryStore, *queue.MemoryQueue) {
	store := eventlog.NewMemoryStore()
	q := queue.NewMemoryQueue()
	e := New(store, q, staticPlaybooks{pb: pb})
	return e, store, q
}

func completeCommand(t *testing.T, e *Engine, store *eventlog.MemoryStore, q *queue.MemoryQueue, executionID string) {
	t.Helper()
	cmd, err := q.ClaimNext(context.Background(), "worker-1", nil, 0)
	require.NoError(t, err)
	require.NoError(t, q.Ack(context.Background(), "worker-1", cmd.ID))

	var inv StepInvocation
	require.NoError(t, json.Unmarshal(cmd.Payload, &inv))

	_, version, err := store.ListEvents(context.Background(), executionID)
	require.NoError(t, err)
	payload, _ := json.Marshal(CallDonePayload{Step: inv.Step, Attempt: inv.Attempt, Inline: "ok"})
	_, err = store.Append(context.Background(), executionID, version, eventlog.Event{
		ExecutionID: executionID, Type: eventlog.CallDone, Payload: payload,
	})
	require.NoError(t, err)
	require.NoError(t, e.Advance(context.Background(), executionID))
}

// Scenario: a linear two-step playbook runs to completion.
func TestEngine_LinearSuccessScenario(t *testing.T) {
	pb := linearPlaybook()
	e, store, q := newTestEngine(pb)
	defer e.Close()

	executionID, err := e.Submit(context.Background(), "cat-1", nil, "")
	require.NoError(t, err)

	completeCommand(t, e, store, q, executionID)
	completeCommand(t, e, store, q, executionID)

	status, err := e.Status(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, status.Status)
}

func TestEngine_QueryEventsFiltersByType(t *testing.T) {
	pb := linearPlaybook()
	e, store, q := newTestEngine(pb)
	defer e.Close()

	executionID, err := e.Submit(context.Background(), "cat-1", nil, "")
	require.NoError(t, err)
	completeCommand(t, e, store, q, executionID)
	completeCommand(t, e, store, q, executionID)

	events, err := e.QueryEvents(context.Background(), executionID, eventlog.Query{Types: []eventlog.Type{eventlog.ExecutionCompleted}})
	require.NoError(t, err)
	require.Len(t, events, 1)
}
