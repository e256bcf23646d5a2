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

// Package queue is the command queue a worker leases from: one entry per
// pending step invocation, with scheduled visibility and dedupe.
package queue

import "time"

// Status is a Command's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusLeased    Status = "leased"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Class is the priority lane a Command is routed through, mirroring the
// execution's target_pool declaration.
type Class string

const (
	ClassRealtime   Class = "realtime"
	ClassDefault    Class = "default"
	ClassBackground Class = "background"
	ClassHeavy      Class = "heavy"
)

// PriorityForClass maps a Class to a numeric priority used for dequeue
// ordering (higher dequeues first).
func PriorityForClass(c Class) int {
	switch c {
	case ClassRealtime:
		return 3
	case ClassDefault:
		return 2
	case ClassBackground:
		return 1
	case ClassHeavy:
		return 0
	default:
		return 2
	}
}

// Command is a single queued step invocation.
type Command struct {
	ID                   string
	ExecutionID          string
	StepID               string
	NodeType             string
	Payload              []byte
	Status               Status
	Class                Class
	AvailableAt          time.Time // not visible to claimers until this time
	DedupeKey            string    // same key within an execution claims only once
	Attempt              int
	RequiredCapabilities []string
	CancelRequestedAt    *time.Time
}

// MatchesCapabilities reports whether workerCaps satisfies every capability
// c.RequiredCapabilities names.
func (c Command) MatchesCapabilities(workerCaps []string) bool {
	if len(c.RequiredCapabilities) == 0 {
		return true
	}
	has := make(map[string]bool, len(workerCaps))
	for _, cap := range workerCaps {
		has[cap] = true
	}
	for _, need := range c.RequiredCapabilities {
		if !has[need] {
			return false
		}
	}
	return true
}
