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

package kvstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAtSequential(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AppendAt(ctx, "shard-1", 0, []byte("a")))
	require.NoError(t, s.AppendAt(ctx, "shard-1", 1, []byte("b")))

	vals, err := s.Get(ctx, "shard-1")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, vals)
}

func TestMemoryStore_AppendAtConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AppendAt(ctx, "shard-1", 0, []byte("a")))
	err := s.AppendAt(ctx, "shard-1", 0, []byte("duplicate"))
	assert.ErrorIs(t, err, ErrIndexConflict)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.AppendAt(ctx, "shard-1", 0, []byte("a")))
	require.NoError(t, s.Delete(ctx, "shard-1"))
	n, err := s.Len(ctx, "shard-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAppendAtWithRetry_ConcurrentWritersAllLand(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const writers = 8
	var wg sync.WaitGroup
	indices := make([]int, writers)
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := AppendAtWithRetry(ctx, s, "fanout-exec-1", []byte("shard-result"))
			indices[i] = idx
			errs[i] = err
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for i, err := range errs {
		require.NoError(t, err)
		assert.False(t, seen[indices[i]], "index %d claimed twice", indices[i])
		seen[indices[i]] = true
	}

	n, err := s.Len(ctx, "fanout-exec-1")
	require.NoError(t, err)
	assert.Equal(t, writers, n)
}
