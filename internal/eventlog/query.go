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
	"time"
)

// Query filters an execution's event list for the control-plane
// query_events operation.
type Query struct {
	Types     []Type
	Since     time.Time
	Until     time.Time
	NodeRef   string // matches events whose payload carries this node/step id
	Limit     int
	Offset    int
}

// QueryEngine runs Query against a Store without requiring callers to know
// about replay or projection internals.
type QueryEngine struct {
	store Store
}

// NewQueryEngine wraps store for ad hoc event querying.
func NewQueryEngine(store Store) *QueryEngine {
	return &QueryEngine{store: store}
}

// Run executes q against execID's event log.
func (qe *QueryEngine) Run(ctx context.Context, execID string, q Query) ([]Event, error) {
	events, _, err := qe.store.ListEvents(ctx, execID)
	if err != nil {
		return nil, err
	}

	var matched []Event
	for _, e := range events {
		if !q.Since.IsZero() && e.CreatedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && e.CreatedAt.After(q.Until) {
			continue
		}
		if len(q.Types) > 0 && !containsType(q.Types, e.Type) {
			continue
		}
		if q.NodeRef != "" && !payloadMentionsNode(e.Payload, q.NodeRef) {
			continue
		}
		matched = append(matched, e)
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func containsType(types []Type, t Type) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// payloadMentionsNode does a cheap substring check on the raw JSON payload;
// callers that need structural matching should decode the payload
// themselves via a Type-specific struct instead.
func payloadMentionsNode(payload []byte, nodeRef string) bool {
	return len(nodeRef) > 0 && indexOf(payload, nodeRef) >= 0
}

func indexOf(haystack []byte, needle string) int {
	n := []byte(needle)
	if len(n) == 0 || len(n) > len(haystack) {
		return -1
	}
	for i := 0; i+len(n) <= len(haystack); i++ {
		match := true
		for j := range n {
			if haystack[i+j] != n[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
