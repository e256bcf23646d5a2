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

package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLeaseDuration = 30 * time.Second

type claimRecord struct {
	WorkerID  string
	ExpiresAt time.Time
	AttemptID string
}

type execRecord struct {
	events    []Event
	claim     *claimRecord
	snapshots []Snapshot
	watchers  []chan Event
}

// MemoryStore is an in-process Store, used by single-node deployments and
// tests. All state lives in memory and is lost on restart.
type MemoryStore struct {
	mu            sync.Mutex
	execs         map[string]*execRecord
	leaseDuration time.Duration
	pendingIDs    []string // FIFO of execution IDs awaiting a first claim
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		execs:         make(map[string]*execRecord),
		leaseDuration: defaultLeaseDuration,
	}
}

func (s *MemoryStore) record(execID string) *execRecord {
	r, ok := s.execs[execID]
	if !ok {
		r = &execRecord{}
		s.execs[execID] = r
		s.pendingIDs = append(s.pendingIDs, execID)
	}
	return r
}

func (s *MemoryStore) ListEvents(ctx context.Context, execID string) ([]Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.execs[execID]
	if !ok {
		return nil, 0, nil
	}
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out, len(r.events), nil
}

func (s *MemoryStore) Append(ctx context.Context, execID string, expectedVersion int, event Event) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.record(execID)
	if attemptID := AttemptIDFromContext(ctx); attemptID != "" {
		if r.claim == nil || r.claim.AttemptID != attemptID {
			return 0, ErrStaleAttempt
		}
	}
	if len(r.events) != expectedVersion {
		return 0, ErrVersionMismatch
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.ExecutionID = execID
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if len(r.events) > 0 {
		event.PrevHash = r.events[len(r.events)-1].Hash
	}
	event.Hash = ComputeHash(event)

	r.events = append(r.events, event)
	s.notifyWatchersLocked(r, event)
	return len(r.events), nil
}

func (s *MemoryStore) notifyWatchersLocked(r *execRecord, event Event) {
	for _, ch := range r.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *MemoryStore) Claim(ctx context.Context, workerID string) (string, int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i, execID := range s.pendingIDs {
		r := s.execs[execID]
		if r.claim != nil && r.claim.ExpiresAt.After(now) {
			continue
		}
		attemptID := uuid.New().String()
		r.claim = &claimRecord{WorkerID: workerID, ExpiresAt: now.Add(s.leaseDuration), AttemptID: attemptID}
		s.pendingIDs = append(s.pendingIDs[:i], s.pendingIDs[i+1:]...)
		return execID, len(r.events), attemptID, nil
	}
	return "", 0, "", ErrNoExecution
}

func (s *MemoryStore) ClaimExecution(ctx context.Context, workerID, execID string) (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.execs[execID]
	if !ok {
		return 0, "", ErrNoExecution
	}
	now := time.Now()
	if r.claim != nil && r.claim.ExpiresAt.After(now) && r.claim.WorkerID != workerID {
		return 0, "", ErrNoExecution
	}
	attemptID := uuid.New().String()
	r.claim = &claimRecord{WorkerID: workerID, ExpiresAt: now.Add(s.leaseDuration), AttemptID: attemptID}
	for i, id := range s.pendingIDs {
		if id == execID {
			s.pendingIDs = append(s.pendingIDs[:i], s.pendingIDs[i+1:]...)
			break
		}
	}
	return len(r.events), attemptID, nil
}

func (s *MemoryStore) Heartbeat(ctx context.Context, workerID, execID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.execs[execID]
	if !ok || r.claim == nil || r.claim.WorkerID != workerID {
		return ErrClaimNotFound
	}
	r.claim.ExpiresAt = time.Now().Add(s.leaseDuration)
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, execID string) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(execID)
	ch := make(chan Event, 32)
	r.watchers = append(r.watchers, ch)
	return ch, nil
}

func (s *MemoryStore) ListExecutionIDsWithExpiredClaim(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []string
	for id, r := range s.execs {
		if r.claim != nil && r.claim.ExpiresAt.Before(now) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetCurrentAttemptID(ctx context.Context, execID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.execs[execID]
	if !ok || r.claim == nil || r.claim.ExpiresAt.Before(time.Now()) {
		return "", nil
	}
	return r.claim.AttemptID, nil
}

func (s *MemoryStore) CreateSnapshot(ctx context.Context, execID string, upToVersion int, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record(execID)
	r.snapshots = append(r.snapshots, Snapshot{ExecutionID: execID, Version: upToVersion, State: state, CreatedAt: time.Now()})
	return nil
}

func (s *MemoryStore) GetLatestSnapshot(ctx context.Context, execID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.execs[execID]
	if !ok || len(r.snapshots) == 0 {
		return nil, nil
	}
	latest := r.snapshots[len(r.snapshots)-1]
	return &latest, nil
}

func (s *MemoryStore) DeleteSnapshotsBefore(ctx context.Context, execID string, beforeVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.execs[execID]
	if !ok {
		return nil
	}
	kept := r.snapshots[:0]
	for _, snap := range r.snapshots {
		if snap.Version >= beforeVersion {
			kept = append(kept, snap)
		}
	}
	r.snapshots = kept
	return nil
}

var _ Store = (*MemoryStore)(nil)
