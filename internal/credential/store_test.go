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

package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetDeleteList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "db.password")
	require.Error(t, err)

	require.NoError(t, s.Set(ctx, "db.password", "hunter2"))
	v, err := s.Get(ctx, "db.password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)

	require.NoError(t, s.Set(ctx, "db.user", "svc"))
	keys, err := s.List(ctx, "db.")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"db.password", "db.user"}, keys)

	require.NoError(t, s.Delete(ctx, "db.password"))
	_, err = s.Get(ctx, "db.password")
	require.Error(t, err)
}

func TestEnvStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewEnvStore()

	const key = "NOETL_TEST_CREDENTIAL_VALUE"
	require.NoError(t, s.Set(ctx, key, "topsecret"))
	v, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "topsecret", v)

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.Error(t, err)
}

// countingStore wraps a memoryStore and counts backing Get calls, so tests
// can assert the Cache actually avoids re-fetching until refresh is due.
type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) (string, error) {
	c.gets++
	return c.Store.Get(ctx, key)
}

func TestCache_ServesFromCacheUntilRefreshDue(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: NewMemoryStore()}
	require.NoError(t, backing.Set(ctx, "api.token", "v1"))

	cache := NewCache(backing, time.Hour).WithRefreshThreshold(time.Millisecond)

	v, err := cache.Get(ctx, "api.token")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, 1, backing.gets)

	v, err = cache.Get(ctx, "api.token")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, 1, backing.gets, "second Get within TTL should be served from cache")
}

func TestCache_ProactiveRefreshNearExpiry(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: NewMemoryStore()}
	require.NoError(t, backing.Set(ctx, "api.token", "v1"))

	// TTL shorter than the refresh threshold forces every Get to refresh.
	cache := NewCache(backing, 10*time.Millisecond).WithRefreshThreshold(time.Hour)

	_, err := cache.Get(ctx, "api.token")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.gets)

	require.NoError(t, backing.Set(ctx, "api.token", "v2"))
	v, err := cache.Get(ctx, "api.token")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 2, backing.gets, "entry within refresh threshold of expiry should refetch")
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: NewMemoryStore()}
	require.NoError(t, backing.Set(ctx, "api.token", "v1"))

	cache := NewCache(backing, time.Hour)
	_, err := cache.Get(ctx, "api.token")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.gets)

	cache.Invalidate("api.token")

	_, err = cache.Get(ctx, "api.token")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.gets, "Get after Invalidate must refetch")
}

func TestNewStore_UnsupportedProvider(t *testing.T) {
	_, err := NewStore(Config{Provider: "bogus"})
	assert.Error(t, err)
}

func TestNewStore_DefaultsToMemory(t *testing.T) {
	s, err := NewStore(Config{})
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", "v"))
}
