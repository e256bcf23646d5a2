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

// Package kvstore is the loop-state mirror: a small distributed list keyed
// by execution+step, appended to by-index under optimistic concurrency so
// two shard workers racing to record a fan-out result never silently
// overwrite one another's slot.
package kvstore

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// ErrIndexConflict is returned when AppendAt's expected index no longer
// matches the key's current length — another writer appended first.
var ErrIndexConflict = errors.New("kvstore: index conflict")

// Store is an append-by-index distributed list: AppendAt(key, 0, ...),
// AppendAt(key, 1, ...), ... Each call states the index it expects to land
// at, so concurrent writers detect collisions instead of clobbering state.
type Store interface {
	AppendAt(ctx context.Context, key string, index int, value []byte) error
	Get(ctx context.Context, key string) ([][]byte, error)
	Len(ctx context.Context, key string) (int, error)
	Delete(ctx context.Context, key string) error
}

// retryConfig bounds how many times AppendAtWithRetry reattempts on
// ErrIndexConflict and how long it waits between attempts.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
}

var defaultRetry = retryConfig{maxRetries: 5, baseDelay: 10 * time.Millisecond}

// AppendAtWithRetry re-reads the current length and retries AppendAt up to
// 5 times with jittered backoff starting at 10ms, for callers that want to
// append "the next slot" rather than a specific pinned index.
func AppendAtWithRetry(ctx context.Context, s Store, key string, value []byte) (int, error) {
	delay := defaultRetry.baseDelay
	var lastErr error
	for attempt := 0; attempt < defaultRetry.maxRetries; attempt++ {
		n, err := s.Len(ctx, key)
		if err != nil {
			return 0, err
		}
		err = s.AppendAt(ctx, key, n, value)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, ErrIndexConflict) {
			return 0, err
		}
		lastErr = err
		jitter := time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return 0, lastErr
}

// memoryStore is an in-process Store used by tests and single-node runs.
type memoryStore struct {
	mu   sync.Mutex
	data map[string][][]byte
}

// NewMemoryStore returns an in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string][][]byte)}
}

func (m *memoryStore) AppendAt(ctx context.Context, key string, index int, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.data[key]
	if len(cur) != index {
		return ErrIndexConflict
	}
	m.data[key] = append(cur, value)
	return nil
}

func (m *memoryStore) Get(ctx context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.data[key]))
	copy(out, m.data[key])
	return out, nil
}

func (m *memoryStore) Len(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[key]), nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

var _ Store = (*memoryStore)(nil)
