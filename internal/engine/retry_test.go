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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/playbook"
)

func TestComputeBackoff_ExponentialWithCap(t *testing.T) {
	b := playbook.Backoff{Base: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	require.Equal(t, 100*time.Millisecond, ComputeBackoff(b, 1))
	require.Equal(t, 200*time.Millisecond, ComputeBackoff(b, 2))
	require.Equal(t, 400*time.Millisecond, ComputeBackoff(b, 3))
	require.Equal(t, time.Second, ComputeBackoff(b, 10)) // capped by MaxDelay
}

func TestComputeBackoff_JitterStaysInBounds(t *testing.T) {
	b := playbook.Backoff{Base: time.Second, Multiplier: 1, Jitter: 1}
	for i := 0; i < 50; i++ {
		d := ComputeBackoff(b, 1)
		require.GreaterOrEqual(t, d, 500*time.Millisecond)
		require.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

// Retry never exceeds max_attempts.
func TestShouldRetry_RespectsMaxAttempts(t *testing.T) {
	r := &playbook.Retry{MaxAttempts: 3}
	require.True(t, ShouldRetry(r, 1, ErrServer, false))
	require.True(t, ShouldRetry(r, 2, ErrServer, false))
	require.False(t, ShouldRetry(r, 3, ErrServer, false))
}

func TestShouldRetry_OnErrorAllowlist(t *testing.T) {
	r := &playbook.Retry{MaxAttempts: 5, OnError: []string{"timeout", "rate_limit"}}
	require.True(t, ShouldRetry(r, 1, ErrTimeout, false))
	require.False(t, ShouldRetry(r, 1, ErrAuth, false))
}

func TestShouldRetry_DefaultClassification(t *testing.T) {
	r := &playbook.Retry{MaxAttempts: 5}
	require.True(t, ShouldRetry(r, 1, ErrConnection, false))
	require.False(t, ShouldRetry(r, 1, ErrNotFound, false))
	require.False(t, ShouldRetry(r, 1, ErrSchema, false))
}

func TestShouldRetry_StopWhenVetoes(t *testing.T) {
	r := &playbook.Retry{MaxAttempts: 5}
	require.False(t, ShouldRetry(r, 1, ErrServer, true))
}

func TestShouldRetry_NilRetryNeverRetries(t *testing.T) {
	require.False(t, ShouldRetry(nil, 1, ErrServer, false))
}
