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
	"sync"
)

// Index is an in-process registry of every ResultRef a Store has produced,
// satisfying Lister for Sweeper. A deployment with several worker
// processes sharing one Store would back this with a shared table instead;
// this tree's Backends are themselves process-local (memory) or
// externally durable (kv/object), so an in-memory index loses nothing a
// restart wouldn't already lose for the memory tier.
type Index struct {
	mu   sync.Mutex
	refs map[string]Ref
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{refs: make(map[string]Ref)}
}

// Record adds ref to the index, or replaces it if already present.
func (i *Index) Record(ref ResultRef) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.refs[ref.Ref] = Ref{URI: ref.Ref, Tier: ref.Store, Scope: ref.Scope, ExpiresAt: ref.ExpiresAt}
}

// Forget removes uri from the index, typically after Sweep reaps it.
func (i *Index) Forget(uri string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.refs, uri)
}

// ListRefs implements Lister.
func (i *Index) ListRefs(ctx context.Context) ([]Ref, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Ref, 0, len(i.refs))
	for _, r := range i.refs {
		out = append(out, r)
	}
	return out, nil
}
