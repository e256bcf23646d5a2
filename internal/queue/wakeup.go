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
	"time"
)

// WakeupQueueMem is a buffered-channel WakeupQueue: a caller that enqueues
// work calls NotifyReady so a dispatch loop can block on Receive instead of
// polling the queue on a tight ticker. MemoryQueue itself does not call
// NotifyReady.
type WakeupQueueMem struct {
	ch chan Class
}

// NewWakeupQueueMem returns a WakeupQueue with room for 8 pending
// notifications; extra notifications are dropped since a dispatcher only
// needs to know "something is ready", not how many times.
func NewWakeupQueueMem() *WakeupQueueMem {
	return &WakeupQueueMem{ch: make(chan Class, 8)}
}

func (w *WakeupQueueMem) NotifyReady(class Class) {
	select {
	case w.ch <- class:
	default:
	}
}

func (w *WakeupQueueMem) Receive(ctx context.Context, timeout time.Duration) (Class, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c := <-w.ch:
		return c, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

var _ WakeupQueue = (*WakeupQueueMem)(nil)
