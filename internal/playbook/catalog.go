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

package playbook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileCatalog resolves a catalog_id to a parsed Playbook by reading
// "<dir>/<catalog_id>.yaml" off disk, caching the parse result so a
// hot-looping scheduler doesn't re-read and re-validate the same file on
// every Advance call. It implements engine.PlaybookProvider.
type FileCatalog struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*Playbook
}

// NewFileCatalog creates a catalog rooted at dir. dir is not read until a
// catalog ID is first requested.
func NewFileCatalog(dir string) *FileCatalog {
	return &FileCatalog{dir: dir, cache: make(map[string]*Playbook)}
}

// Get returns the parsed playbook for catalogID, reading and caching it on
// first use. Subsequent calls for the same ID return the cached value
// without touching the filesystem again.
func (c *FileCatalog) Get(ctx context.Context, catalogID string) (*Playbook, error) {
	c.mu.RLock()
	pb, ok := c.cache[catalogID]
	c.mu.RUnlock()
	if ok {
		return pb, nil
	}

	path := filepath.Join(c.dir, catalogID+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("playbook: catalog: read %s: %w", catalogID, err)
	}
	pb, err = Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("playbook: catalog: %s: %w", catalogID, err)
	}

	c.mu.Lock()
	c.cache[catalogID] = pb
	c.mu.Unlock()
	return pb, nil
}

// Invalidate drops catalogID from the cache, so the next Get re-reads it
// from disk. Useful for tests and for an operator reloading a playbook
// in place.
func (c *FileCatalog) Invalidate(catalogID string) {
	c.mu.Lock()
	delete(c.cache, catalogID)
	c.mu.Unlock()
}
