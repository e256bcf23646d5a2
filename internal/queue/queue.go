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
	"errors"
	"time"
)

// ErrNotFound is returned when a Command referenced by ID does not exist.
var ErrNotFound = errors.New("queue: command not found")

// ErrDuplicate is returned by Enqueue when a Command with the same
// (ExecutionID, DedupeKey) is already pending or leased.
var ErrDuplicate = errors.New("queue: duplicate dedupe key")

// Queue is the command queue contract: enqueue, lease-based claim per
// priority class and worker capabilities, ack/nack, and orphan reclaim.
type Queue interface {
	// Enqueue adds cmd, visible to claimers once AvailableAt has passed.
	// Returns ErrDuplicate if (ExecutionID, DedupeKey) already has a
	// pending or leased command.
	Enqueue(ctx context.Context, cmd Command) error
	// ClaimNext leases the highest-priority visible command whose
	// RequiredCapabilities workerCaps satisfies, for leaseDuration.
	// Returns ErrNotFound if nothing is claimable right now.
	ClaimNext(ctx context.Context, workerID string, workerCaps []string, leaseDuration time.Duration) (Command, error)
	// Heartbeat extends a claimed command's lease.
	Heartbeat(ctx context.Context, workerID, commandID string, leaseDuration time.Duration) error
	// Ack marks a leased command committed and removes it from the queue.
	Ack(ctx context.Context, workerID, commandID string) error
	// Nack returns a leased command to pending, optionally delaying its next
	// visibility (retry backoff) via availableAt.
	Nack(ctx context.Context, workerID, commandID string, availableAt time.Time) error
	// RequestCancel marks cmd for cancellation; a worker holding its lease
	// observes this on its next cancellation check.
	RequestCancel(ctx context.Context, commandID string) error
	// RequestCancelExecution marks every pending or leased command belonging
	// to executionID for cancellation, for a cascading execution cancel.
	RequestCancelExecution(ctx context.Context, executionID string) error
	// ReclaimExpired returns leased commands whose lease has expired to
	// pending, for the caller to log as execution_requeued.
	ReclaimExpired(ctx context.Context) ([]Command, error)
}

// WakeupQueue lets a dispatcher sleep until a command becomes enqueued or
// visible, instead of polling continuously.
type WakeupQueue interface {
	// NotifyReady signals that class has at least one newly-visible command.
	NotifyReady(class Class)
	// Receive blocks until NotifyReady is called for any class, ctx is
	// cancelled, or the timeout elapses.
	Receive(ctx context.Context, timeout time.Duration) (Class, bool)
}
