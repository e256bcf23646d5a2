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
	"fmt"
	"time"
)

// Ref is the narrow slice of a ResultRef the retention sweep needs: enough
// to decide whether to reap it without the caller handing over every field.
type Ref struct {
	URI       string
	Tier      Tier
	Scope     Scope
	ExpiresAt *time.Time
}

// Lister is the source of truth for which refs currently exist: an
// execution index (or a bucket listing) the sweep consults before
// deleting. Implementations outside this package decide how refs map to
// executions/scopes; the sweep only needs to enumerate and expire them.
type Lister interface {
	ListRefs(ctx context.Context) ([]Ref, error)
}

// RetentionConfig bounds the sweep's own behavior, separate from each
// ref's per-put TTL: Scope == ScopePermanent never expires regardless of
// SweepInterval.
type RetentionConfig struct {
	SweepInterval time.Duration // how often Sweep is invoked by Run
	BatchLimit    int           // 0 means unbounded per sweep
}

// Sweeper runs the ResultRef scope finalizer: each scope (step/execution/
// workflow) garbage-collects on its own TTL; Scope == permanent is never
// collected here.
type Sweeper struct {
	store  *Store
	lister Lister
	cfg    RetentionConfig
}

// NewSweeper builds a Sweeper over store's tiers, consulting lister for
// the set of refs currently known to exist.
func NewSweeper(store *Store, lister Lister, cfg RetentionConfig) *Sweeper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Sweeper{store: store, lister: lister, cfg: cfg}
}

// Sweep deletes every non-permanent ref whose ExpiresAt has passed,
// returning how many were reaped and the first error encountered (sweeping
// continues past individual delete failures so one bad ref doesn't stall
// the rest of the batch).
func (s *Sweeper) Sweep(ctx context.Context) (reaped int, err error) {
	refs, lerr := s.lister.ListRefs(ctx)
	if lerr != nil {
		return 0, fmt.Errorf("resultstore: retention list refs: %w", lerr)
	}
	now := time.Now()
	for _, ref := range refs {
		if s.cfg.BatchLimit > 0 && reaped >= s.cfg.BatchLimit {
			break
		}
		if ref.Scope == ScopePermanent {
			continue
		}
		if ref.ExpiresAt == nil || ref.ExpiresAt.After(now) {
			continue
		}
		backend, ok := s.store.backends[ref.Tier]
		if !ok || backend == nil {
			continue
		}
		if derr := backend.Delete(ctx, ref.URI); derr != nil {
			if err == nil {
				err = fmt.Errorf("resultstore: retention delete %s: %w", ref.URI, derr)
			}
			continue
		}
		reaped++
	}
	return reaped, err
}

// Run sweeps on cfg.SweepInterval until ctx is cancelled. onError, if
// non-nil, is called with each sweep's error (logging is the caller's
// concern, not this package's).
func (s *Sweeper) Run(ctx context.Context, onError func(error)) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && onError != nil {
				onError(err)
			}
		}
	}
}
