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

package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendOptimisticConcurrency(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	v, err := s.Append(ctx, "exec-1", 0, Event{Type: ExecutionStarted, Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = s.Append(ctx, "exec-1", 0, Event{Type: StepEnter, Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrVersionMismatch)

	v, err = s.Append(ctx, "exec-1", 1, Event{Type: StepEnter, Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	events, version, err := s.ListEvents(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	require.Len(t, events, 2)
	require.NoError(t, ValidateChain(events))
}

func TestMemoryStore_ClaimAndHeartbeat(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Append(ctx, "exec-1", 0, Event{Type: ExecutionQueued, Payload: []byte(`{}`)})
	require.NoError(t, err)

	execID, version, attemptID, err := s.Claim(ctx, "worker-a")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", execID)
	assert.Equal(t, 1, version)
	assert.NotEmpty(t, attemptID)

	_, _, _, err = s.Claim(ctx, "worker-b")
	assert.ErrorIs(t, err, ErrNoExecution)

	require.NoError(t, s.Heartbeat(ctx, "worker-a", "exec-1"))
	assert.ErrorIs(t, s.Heartbeat(ctx, "worker-b", "exec-1"), ErrClaimNotFound)
}

func TestMemoryStore_StaleAttemptFenced(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Append(ctx, "exec-1", 0, Event{Type: ExecutionQueued, Payload: []byte(`{}`)})
	require.NoError(t, err)

	execID, version, attemptID, err := s.Claim(ctx, "worker-a")
	require.NoError(t, err)

	staleCtx := WithAttemptID(ctx, "not-the-real-attempt")
	_, err = s.Append(staleCtx, execID, version, Event{Type: ExecutionRunning, Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrStaleAttempt)

	goodCtx := WithAttemptID(ctx, attemptID)
	_, err = s.Append(goodCtx, execID, version, Event{Type: ExecutionRunning, Payload: []byte(`{}`)})
	assert.NoError(t, err)
}

func TestMemoryStore_Snapshots(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateSnapshot(ctx, "exec-1", 5, []byte(`{"phase":"executing"}`)))
	require.NoError(t, s.CreateSnapshot(ctx, "exec-1", 10, []byte(`{"phase":"executing"}`)))

	snap, err := s.GetLatestSnapshot(ctx, "exec-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 10, snap.Version)

	require.NoError(t, s.DeleteSnapshotsBefore(ctx, "exec-1", 10))
	snap, err = s.GetLatestSnapshot(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Version)
}
