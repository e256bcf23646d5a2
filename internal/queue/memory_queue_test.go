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

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDedupe(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	cmd := Command{ExecutionID: "exec-1", StepID: "step-1", DedupeKey: "k1", Class: ClassDefault}
	require.NoError(t, q.Enqueue(ctx, cmd))
	assert.ErrorIs(t, q.Enqueue(ctx, cmd), ErrDuplicate)
}

func TestMemoryQueue_ClaimPriorityOrder(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Command{ExecutionID: "e", StepID: "bg", Class: ClassBackground}))
	require.NoError(t, q.Enqueue(ctx, Command{ExecutionID: "e", StepID: "rt", Class: ClassRealtime}))

	claimed, err := q.ClaimNext(ctx, "worker-1", nil, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "rt", claimed.StepID)
}

func TestMemoryQueue_CapabilityFilter(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Command{ExecutionID: "e", StepID: "gpu-step", RequiredCapabilities: []string{"gpu"}}))

	_, err := q.ClaimNext(ctx, "worker-1", []string{"cpu"}, time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)

	claimed, err := q.ClaimNext(ctx, "worker-1", []string{"cpu", "gpu"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "gpu-step", claimed.StepID)
}

func TestMemoryQueue_ReclaimExpiredRequeuesLapsedLease(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Command{ExecutionID: "e", StepID: "s1"}))

	claimed, err := q.ClaimNext(ctx, "worker-1", nil, time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	reclaimed, err := q.ReclaimExpired(ctx)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, 1, reclaimed[0].Attempt)
	assert.Equal(t, claimed.ID, reclaimed[0].ID)
}
