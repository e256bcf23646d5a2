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

// Package credential is the keychain contract every tool invocation that
// needs a secret goes through: a scoped Store with TTL-based proactive
// refresh, so a worker renews a credential before it expires mid-step
// rather than discovering the expiry as a failed call.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// defaultRefreshThreshold is how far ahead of expiry a cached credential is
// proactively refreshed.
const defaultRefreshThreshold = 300 * time.Second

// Store is a secret/credential backend: get, set, delete, list by prefix.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config selects and configures a Store.
type Config struct {
	Provider string            // "memory" | "env" | "vault"
	Options  map[string]string // provider-specific options
}

// NewStore constructs a Store per cfg.Provider.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryStore(), nil
	case "env":
		return NewEnvStore(), nil
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    opt(cfg.Options, "address", "http://localhost:8200"),
			Token:      opt(cfg.Options, "token", ""),
			PathPrefix: opt(cfg.Options, "path_prefix", "secret"),
		})
	default:
		return nil, fmt.Errorf("credential: unsupported provider %q", cfg.Provider)
	}
}

func opt(options map[string]string, key, fallback string) string {
	if v, ok := options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// cachedCredential is a Store value plus when it was fetched, so Cache can
// decide whether it needs proactive refresh.
type cachedCredential struct {
	value     string
	fetchedAt time.Time
	ttl       time.Duration
}

func (c cachedCredential) needsRefresh(threshold time.Duration) bool {
	return time.Since(c.fetchedAt)+threshold >= c.ttl
}

// Cache wraps a Store with scope-keyed TTL caching and proactive refresh:
// a lookup within refreshThreshold of the cached value's TTL triggers a
// fresh Get instead of returning the stale value.
type Cache struct {
	mu               sync.Mutex
	backing          Store
	ttl              time.Duration
	refreshThreshold time.Duration
	entries          map[string]cachedCredential
}

// NewCache wraps backing with a default TTL per entry and a default
// refresh threshold (300s). The cache key is the scope string passed to
// Get and nothing else; there is no cache_type setting, and every entry
// lives in this process's memory.
func NewCache(backing Store, ttl time.Duration) *Cache {
	return &Cache{
		backing:          backing,
		ttl:              ttl,
		refreshThreshold: defaultRefreshThreshold,
		entries:          make(map[string]cachedCredential),
	}
}

// WithRefreshThreshold overrides the default 300s proactive-refresh window.
func (c *Cache) WithRefreshThreshold(d time.Duration) *Cache {
	c.refreshThreshold = d
	return c
}

// Get returns the credential for scope, refreshing it from the backing
// Store if it is missing or within refreshThreshold of expiring.
func (c *Cache) Get(ctx context.Context, scope string) (string, error) {
	c.mu.Lock()
	entry, ok := c.entries[scope]
	c.mu.Unlock()

	if ok && !entry.needsRefresh(c.refreshThreshold) {
		return entry.value, nil
	}

	value, err := c.backing.Get(ctx, scope)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.entries[scope] = cachedCredential{value: value, fetchedAt: time.Now(), ttl: c.ttl}
	c.mu.Unlock()
	return value, nil
}

// Invalidate drops scope's cached entry, forcing the next Get to refresh.
func (c *Cache) Invalidate(scope string) {
	c.mu.Lock()
	delete(c.entries, scope)
	c.mu.Unlock()
}

// Set writes through to the backing store and invalidates any cached entry
// for key, so the next Get observes the new value instead of a stale one.
func (c *Cache) Set(ctx context.Context, key, value string) error {
	if err := c.backing.Set(ctx, key, value); err != nil {
		return err
	}
	c.Invalidate(key)
	return nil
}

// Delete writes through to the backing store and drops key's cached entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.backing.Delete(ctx, key); err != nil {
		return err
	}
	c.Invalidate(key)
	return nil
}

// List delegates to the backing store; listing is not cached.
func (c *Cache) List(ctx context.Context, prefix string) ([]string, error) {
	return c.backing.List(ctx, prefix)
}

var _ Store = (*Cache)(nil)
