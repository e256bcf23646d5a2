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

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/kvstore"
	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/queue"
)

// PlaybookProvider resolves the playbook an execution is running, by the
// catalog ID recorded in its execution.started event.
type PlaybookProvider interface {
	Get(ctx context.Context, catalogID string) (*playbook.Playbook, error)
}

// Scheduler is the single-writer-per-execution actor loop: it drains an
// execution's unprocessed events through Decide, one at a time, appending
// whatever new events that produces and folding them back in before moving
// on, so a single call to Advance exhausts every cascade the triggering
// event set off. One actor per unit of work, never two goroutines mutating
// the same execution concurrently.
type Scheduler struct {
	events    eventlog.Store
	cmds      queue.Queue
	playbooks PlaybookProvider
	delay     *DelayQueue
	kv        kvstore.Store // optional; mirrors loop_state so a remote reader needn't replay the whole log

	mu     sync.Mutex
	cursor map[string]int // executionID -> index of the next unprocessed event
}

// NewScheduler wires a Scheduler over the event log, command queue and
// playbook catalog a running engine needs.
func NewScheduler(events eventlog.Store, cmds queue.Queue, playbooks PlaybookProvider) *Scheduler {
	return &Scheduler{
		events:    events,
		cmds:      cmds,
		playbooks: playbooks,
		delay:     NewDelayQueue(),
		cursor:    map[string]int{},
	}
}

// SetKVMirror attaches the distributed KV store that loop progress is
// mirrored into; nil (the default) disables mirroring without affecting
// correctness, since ExecutionState folded from the event log is always
// authoritative.
func (s *Scheduler) SetKVMirror(kv kvstore.Store) { s.kv = kv }

// loopKVKey is the "exec:{execution_id}:loop:{step}" key for the
// distributed mirror of one step's loop_state.
func loopKVKey(executionID, step string) string {
	return fmt.Sprintf("exec:%s:loop:%s", executionID, step)
}

// mirrorLoopEvent pushes a loop-touching event's per-index result to the KV
// mirror, retrying a handful of times (bounded retry, exponential backoff)
// on a lost race against another writer at the same index. Mirror
// failures are dropped without being reported and are never fatal: the
// event log already holds the authoritative record.
func (s *Scheduler) mirrorLoopEvent(ctx context.Context, executionID string, e eventlog.Event) {
	if s.kv == nil {
		return
	}
	var step string
	var index int
	var value []byte
	switch e.Type {
	case eventlog.IterationCompleted:
		var p IterationCompletedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return
		}
		step, index = p.Step, p.Index
		value, _ = json.Marshal(p.Result)
	case eventlog.ShardCompleted:
		var p ShardCompletedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return
		}
		step, index = p.Step, p.Index
		value, _ = json.Marshal(map[string]any{"status": "done", "ref": p.Ref})
	case eventlog.ShardFailed:
		var p ShardFailedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return
		}
		step, index = p.Step, p.Index
		value, _ = json.Marshal(map[string]any{"status": "failed", "error": p.Error})
	default:
		return
	}
	key := loopKVKey(executionID, step)
	delay := 10 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		if err := s.kv.AppendAt(ctx, key, index, value); err == nil || err != kvstore.ErrIndexConflict {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Close stops the scheduler's delay queue.
func (s *Scheduler) Close() { s.delay.Stop() }

// Advance drains every not-yet-decided event for executionID, applying
// Decide's actions until no new event is produced. It is idempotent and
// safe to call repeatedly (e.g. once per Watch notification) since it
// tracks its own cursor and a fresh Append race is surfaced as
// eventlog.ErrVersionMismatch for the caller to retry.
func (s *Scheduler) Advance(ctx context.Context, executionID string) error {
	events, _, err := s.events.ListEvents(ctx, executionID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var pb *playbook.Playbook
	for _, e := range events {
		if e.Type == eventlog.ExecutionStarted {
			var p ExecutionStartedPayload
			if err := json.Unmarshal(e.Payload, &p); err == nil {
				pb, err = s.playbooks.Get(ctx, p.CatalogID)
				if err != nil {
					return err
				}
			}
			break
		}
	}
	if pb == nil {
		return nil // execution.started not yet appended or catalog unresolved
	}

	state := NewExecutionState(executionID)
	for _, e := range events {
		Fold(state, e)
	}

	s.mu.Lock()
	i := s.cursor[executionID]
	s.mu.Unlock()
	if i > len(events) {
		i = 0
	}

	for i < len(events) {
		e := events[i]
		actions := Decide(ctx, state, pb, e)
		for _, a := range actions {
			switch act := a.(type) {
			case AppendEvent:
				payload, merr := json.Marshal(act.Payload)
				if merr != nil {
					return merr
				}
				newEvent := eventlog.Event{
					ExecutionID: executionID,
					Type:        act.Type,
					Payload:     payload,
					CreatedAt:   time.Now(),
				}
				if _, aerr := s.events.Append(ctx, executionID, len(events), newEvent); aerr != nil {
					return aerr
				}
				newEvent.CreatedAt = time.Now()
				events = append(events, newEvent)
				Fold(state, newEvent)
				s.mirrorLoopEvent(ctx, executionID, newEvent)

			case EnqueueCommand:
				// Once cancellation is recorded, the engine stops enqueueing
				// new commands; terminal events for work already in flight
				// are still folded above, but routing must not hand out a
				// fresh attempt or next-step command.
				if state.Cancelled {
					continue
				}
				if qerr := s.cmds.Enqueue(ctx, act.Command); qerr != nil && qerr != queue.ErrDuplicate {
					return qerr
				}

			case ScheduleAt:
				if state.Cancelled {
					continue
				}
				cmd := act.Command
				s.delay.Schedule(act.At, func() {
					_ = s.cmds.Enqueue(context.Background(), cmd)
				})

			case RequestCancel:
				// Carried out by Engine.Cancel directly against the queue;
				// Decide does not currently emit this action itself.
			}
		}
		i++
	}

	s.mu.Lock()
	s.cursor[executionID] = i
	s.mu.Unlock()
	return nil
}
