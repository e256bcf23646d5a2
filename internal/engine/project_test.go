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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/resultstore"
)

func mustEvent(t *testing.T, typ eventlog.Type, payload any) eventlog.Event {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return eventlog.Event{Type: typ, Payload: b, CreatedAt: time.Now()}
}

func sampleEvents(t *testing.T) []eventlog.Event {
	t.Helper()
	return []eventlog.Event{
		mustEvent(t, eventlog.ExecutionStarted, ExecutionStartedPayload{CatalogID: "cat-1", Workload: map[string]any{"x": float64(1)}}),
		mustEvent(t, eventlog.StepEnter, StepEnterPayload{Step: "fetch"}),
		mustEvent(t, eventlog.CallDone, CallDonePayload{Step: "fetch", Attempt: 1, Inline: "ok"}),
		mustEvent(t, eventlog.StepExit, StepExitPayload{Step: "fetch"}),
		mustEvent(t, eventlog.ExecutionCompleted, ExecutionCompletedPayload{}),
	}
}

// Projecting the same prefix twice yields equal state.
func TestProject_Deterministic(t *testing.T) {
	events := sampleEvents(t)
	s1 := Project("exec-1", events)
	s2 := Project("exec-1", events)
	require.Equal(t, s1.Status, s2.Status)
	require.Equal(t, s1.Variables, s2.Variables)
	require.Equal(t, s1.StepResults, s2.StepResults)
	require.Equal(t, s1.Version, s2.Version)
}

// Folding events one at a time produces the same state as folding the
// whole slice at once (replay idempotence).
func TestProject_IncrementalEqualsBatch(t *testing.T) {
	events := sampleEvents(t)

	batch := Project("exec-1", events)

	incremental := NewExecutionState("exec-1")
	for _, e := range events {
		Fold(incremental, e)
	}

	require.Equal(t, batch.Status, incremental.Status)
	require.Equal(t, batch.StepResults, incremental.StepResults)
	require.Equal(t, batch.Version, incremental.Version)
}

func TestProject_UnknownEventTypeIgnored(t *testing.T) {
	events := append(sampleEvents(t), eventlog.Event{Type: "some_future_event", Payload: []byte(`{}`), CreatedAt: time.Now()})
	require.NotPanics(t, func() {
		s := Project("exec-1", events)
		require.Equal(t, StatusCompleted, s.Status)
	})
}

func TestStepResult_ValueNeverExposesFullPayload(t *testing.T) {
	ref := &resultstore.ResultRef{
		Ref: "kv://exec-1/fetch", Store: resultstore.TierKV, Scope: resultstore.ScopeStep,
		Bytes: 2_000_000, Preview: "{\"items\": [...]", Extracted: map[string]any{"count": float64(42)},
	}
	r := StepResult{Ref: ref}
	v := r.Value().(map[string]any)
	_, hasFullBody := v["body"]
	require.False(t, hasFullBody)
	require.Contains(t, v, "preview")
	require.Contains(t, v, "ref")
}
