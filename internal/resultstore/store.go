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

package resultstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Backend is one ResultRef tier: put/get/delete/list over opaque byte
// payloads addressed by key.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (uri string, err error)
	Get(ctx context.Context, uri string) ([]byte, error)
	Delete(ctx context.Context, uri string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Store dispatches ResultRef creation/resolution across the memory/kv/
// object/cloud tiers by a size+scope auto-selection rule.
type Store struct {
	mu       sync.Mutex
	backends map[Tier]Backend
	seq      int64
}

// NewStore builds a Store over the given tier backends. A nil entry for a
// tier means that tier is unavailable; Put falls back to the next tier up.
func NewStore(backends map[Tier]Backend) *Store {
	return &Store{backends: backends}
}

// Put stores data under the tier selected by SelectTier(len(data), scope),
// extracting the named JSON fields (already resolved scalars, not paths —
// callers extract before calling Put) into the ref for cheap engine-side
// reads without a round trip to the backend.
func (s *Store) Put(ctx context.Context, scope Scope, data []byte, contentType string, extracted map[string]any, ttl time.Duration) (ResultRef, error) {
	tier := SelectTier(int64(len(data)), scope)
	for {
		backend, ok := s.backends[tier]
		if ok && backend != nil {
			break
		}
		next, ok := nextTier(tier)
		if !ok {
			return ResultRef{}, fmt.Errorf("resultstore: no backend configured for tier %q or above", tier)
		}
		tier = next
	}

	key := s.nextKey(scope)
	backend := s.backends[tier]
	uri, err := backend.Put(ctx, key, data, contentType)
	if err != nil {
		return ResultRef{}, fmt.Errorf("resultstore: put to tier %s: %w", tier, err)
	}

	sum := sha256.Sum256(data)
	ref := ResultRef{
		Ref:         uri,
		Store:       tier,
		Scope:       scope,
		Bytes:       int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		Extracted:   extracted,
		Preview:     preview(data),
		ContentType: contentType,
	}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		ref.ExpiresAt = &exp
	}
	return ref, nil
}

// Get resolves a ResultRef back to its payload bytes.
func (s *Store) Get(ctx context.Context, ref ResultRef) ([]byte, error) {
	backend, ok := s.backends[ref.Store]
	if !ok || backend == nil {
		return nil, fmt.Errorf("resultstore: no backend configured for tier %q", ref.Store)
	}
	return backend.Get(ctx, ref.Ref)
}

// Delete removes a ResultRef's underlying payload. Scope == ScopePermanent
// refs should only reach this via an explicit administrative call, never
// the scope finalizer.
func (s *Store) Delete(ctx context.Context, ref ResultRef) error {
	backend, ok := s.backends[ref.Store]
	if !ok || backend == nil {
		return fmt.Errorf("resultstore: no backend configured for tier %q", ref.Store)
	}
	return backend.Delete(ctx, ref.Ref)
}

func (s *Store) nextKey(scope Scope) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s/%d", scope, s.seq)
}

func nextTier(t Tier) (Tier, bool) {
	switch t {
	case TierMemory:
		return TierKV, true
	case TierKV:
		return TierObject, true
	case TierObject:
		return TierCloud, true
	default:
		return "", false
	}
}

func preview(data []byte) string {
	const maxPreview = 256
	if len(data) <= maxPreview {
		return string(data)
	}
	return string(data[:maxPreview])
}
