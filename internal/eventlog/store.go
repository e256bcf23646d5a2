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
	"errors"
)

var (
	// ErrNoExecution is returned by Claim when nothing is available to lease.
	ErrNoExecution = errors.New("eventlog: no execution available to claim")
	// ErrVersionMismatch is returned by Append when expectedVersion does not
	// match the current version (optimistic concurrency failure).
	ErrVersionMismatch = errors.New("eventlog: version mismatch on append")
	// ErrClaimNotFound is returned by Heartbeat when the claim has expired or
	// never existed.
	ErrClaimNotFound = errors.New("eventlog: claim not found or expired")
	// ErrStaleAttempt is returned by Append when the context's attempt ID no
	// longer matches the execution's current lease.
	ErrStaleAttempt = errors.New("eventlog: stale attempt, cannot append")
)

type contextKey string

const attemptIDContextKey contextKey = "eventlog.attempt_id"

// WithAttemptID attaches the current lease's attempt ID to ctx. The worker
// injects this after a successful Claim; Append validates it to fence off
// writes from a worker whose lease has since expired and been reclaimed.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, attemptIDContextKey, attemptID)
}

// AttemptIDFromContext returns the attempt ID set by WithAttemptID, or "".
func AttemptIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(attemptIDContextKey).(string); ok {
		return s
	}
	return ""
}

// Store is the event log: append-only writes with optimistic concurrency,
// lease-based claiming, live subscription, and snapshot compaction.
type Store interface {
	// ListEvents returns the full ordered event list for execID and its
	// current version (event count; 0 means no events yet).
	ListEvents(ctx context.Context, execID string) ([]Event, int, error)
	// Append writes event only if expectedVersion equals the current
	// version, returning the new version. Returns ErrVersionMismatch
	// otherwise. If ctx carries an attempt ID (WithAttemptID), it must match
	// the execution's current lease or ErrStaleAttempt is returned.
	Append(ctx context.Context, execID string, expectedVersion int, event Event) (newVersion int, err error)
	// Claim leases the next available execution for workerID, returning its
	// ID, current version and a fencing attempt ID. ErrNoExecution if none
	// are available.
	Claim(ctx context.Context, workerID string) (execID string, version int, attemptID string, err error)
	// ClaimExecution leases a specific execID (used by capability-aware
	// dispatch once the queue has already picked a candidate).
	ClaimExecution(ctx context.Context, workerID, execID string) (version int, attemptID string, err error)
	// Heartbeat extends the lease, only if execID is still held by workerID.
	Heartbeat(ctx context.Context, workerID, execID string) error
	// Watch subscribes to new events appended to execID.
	Watch(ctx context.Context, execID string) (<-chan Event, error)
	// ListExecutionIDsWithExpiredClaim returns executions whose lease has
	// expired, for reclaim.
	ListExecutionIDsWithExpiredClaim(ctx context.Context) ([]string, error)
	// GetCurrentAttemptID returns the attempt ID holding the lease on execID,
	// or "" if there is none (used for write fencing outside Append, e.g. by
	// the result store when externalizing a payload).
	GetCurrentAttemptID(ctx context.Context, execID string) (string, error)

	// CreateSnapshot stores a compacted state covering events 0..upToVersion.
	CreateSnapshot(ctx context.Context, execID string, upToVersion int, state []byte) error
	// GetLatestSnapshot returns the newest snapshot, or nil, nil if none.
	GetLatestSnapshot(ctx context.Context, execID string) (*Snapshot, error)
	// DeleteSnapshotsBefore removes snapshots older than beforeVersion
	// (compaction).
	DeleteSnapshotsBefore(ctx context.Context, execID string, beforeVersion int) error
}
