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
	"time"

	"github.com/noetl/noetl/internal/eventlog"
	"github.com/noetl/noetl/internal/queue"
)

// Action is one side effect the decision function asks the scheduler to
// carry out. Decide itself never touches the event log or the command
// queue directly, so it stays a pure function of (state, event) testable
// without any infrastructure.
type Action interface{ isAction() }

// AppendEvent asks the scheduler to append a new event to the log.
type AppendEvent struct {
	Type    eventlog.Type
	Payload any
}

func (AppendEvent) isAction() {}

// EnqueueCommand asks the scheduler to enqueue a command for a worker.
type EnqueueCommand struct {
	Command queue.Command
}

func (EnqueueCommand) isAction() {}

// ScheduleAt asks the scheduler to enqueue Command no earlier than At (via
// the DelayQueue), used for retry backoff and continue_while pagination
// delay so a failed attempt's next try doesn't flood the queue with an
// immediately-visible command.
type ScheduleAt struct {
	At      time.Time
	Command queue.Command
}

func (ScheduleAt) isAction() {}

// RequestCancel asks the scheduler to mark outstanding commands for a step
// (or the whole execution, when Step == "") as cancel-requested.
type RequestCancel struct {
	Step   string
	Reason string
}

func (RequestCancel) isAction() {}
