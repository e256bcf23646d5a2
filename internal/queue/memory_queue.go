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
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noetl/noetl/pkg/metrics"
)

type leaseInfo struct {
	workerID  string
	expiresAt time.Time
}

// MemoryQueue is an in-process Queue, guarded by a mutex. It is the default
// for single-node deployments and the reference implementation for tests.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  map[string]Command
	leased   map[string]Command
	leases   map[string]leaseInfo
	dedupe   map[string]string // (executionID|dedupeKey) -> commandID
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		pending: make(map[string]Command),
		leased:  make(map[string]Command),
		leases:  make(map[string]leaseInfo),
		dedupe:  make(map[string]string),
	}
}

func dedupeKeyFor(cmd Command) string {
	if cmd.DedupeKey == "" {
		return ""
	}
	return cmd.ExecutionID + "|" + cmd.DedupeKey
}

func (q *MemoryQueue) Enqueue(ctx context.Context, cmd Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if key := dedupeKeyFor(cmd); key != "" {
		if _, exists := q.dedupe[key]; exists {
			return ErrDuplicate
		}
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.Status == "" {
		cmd.Status = StatusPending
	}
	if cmd.AvailableAt.IsZero() {
		cmd.AvailableAt = time.Now()
	}
	q.pending[cmd.ID] = cmd
	if key := dedupeKeyFor(cmd); key != "" {
		q.dedupe[key] = cmd.ID
	}
	return nil
}

func (q *MemoryQueue) ClaimNext(ctx context.Context, workerID string, workerCaps []string, leaseDuration time.Duration) (Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var candidates []Command
	for _, cmd := range q.pending {
		if cmd.AvailableAt.After(now) {
			continue
		}
		if !cmd.MatchesCapabilities(workerCaps) {
			continue
		}
		candidates = append(candidates, cmd)
	}
	if len(candidates) == 0 {
		return Command{}, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if PriorityForClass(candidates[i].Class) != PriorityForClass(candidates[j].Class) {
			return PriorityForClass(candidates[i].Class) > PriorityForClass(candidates[j].Class)
		}
		return candidates[i].AvailableAt.Before(candidates[j].AvailableAt)
	})

	cmd := candidates[0]
	cmd.Status = StatusLeased
	delete(q.pending, cmd.ID)
	q.leased[cmd.ID] = cmd
	q.leases[cmd.ID] = leaseInfo{workerID: workerID, expiresAt: now.Add(leaseDuration)}
	return cmd, nil
}

func (q *MemoryQueue) Heartbeat(ctx context.Context, workerID, commandID string, leaseDuration time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	lease, ok := q.leases[commandID]
	if !ok || lease.workerID != workerID {
		return ErrNotFound
	}
	lease.expiresAt = time.Now().Add(leaseDuration)
	q.leases[commandID] = lease
	return nil
}

func (q *MemoryQueue) Ack(ctx context.Context, workerID, commandID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd, ok := q.leased[commandID]
	if !ok {
		return ErrNotFound
	}
	delete(q.leased, commandID)
	delete(q.leases, commandID)
	if key := dedupeKeyFor(cmd); key != "" {
		delete(q.dedupe, key)
	}
	return nil
}

func (q *MemoryQueue) Nack(ctx context.Context, workerID, commandID string, availableAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd, ok := q.leased[commandID]
	if !ok {
		return ErrNotFound
	}
	delete(q.leased, commandID)
	delete(q.leases, commandID)
	cmd.Status = StatusPending
	cmd.Attempt++
	if availableAt.IsZero() {
		availableAt = time.Now()
	}
	cmd.AvailableAt = availableAt
	q.pending[cmd.ID] = cmd
	return nil
}

func (q *MemoryQueue) RequestCancel(ctx context.Context, commandID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	if cmd, ok := q.pending[commandID]; ok {
		cmd.CancelRequestedAt = &now
		q.pending[commandID] = cmd
		return nil
	}
	if cmd, ok := q.leased[commandID]; ok {
		cmd.CancelRequestedAt = &now
		q.leased[commandID] = cmd
		return nil
	}
	return ErrNotFound
}

func (q *MemoryQueue) RequestCancelExecution(ctx context.Context, executionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for id, cmd := range q.pending {
		if cmd.ExecutionID == executionID {
			cmd.CancelRequestedAt = &now
			q.pending[id] = cmd
		}
	}
	for id, cmd := range q.leased {
		if cmd.ExecutionID == executionID {
			cmd.CancelRequestedAt = &now
			q.leased[id] = cmd
		}
	}
	return nil
}

func (q *MemoryQueue) ReclaimExpired(ctx context.Context) ([]Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	var reclaimed []Command
	for id, lease := range q.leases {
		if lease.expiresAt.After(now) {
			continue
		}
		cmd := q.leased[id]
		delete(q.leased, id)
		delete(q.leases, id)
		cmd.Status = StatusPending
		cmd.Attempt++
		cmd.AvailableAt = now
		q.pending[id] = cmd
		reclaimed = append(reclaimed, cmd)
	}
	return reclaimed, nil
}

var _ Queue = (*MemoryQueue)(nil)
