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

// Package resultstore holds large step/tool outputs outside the event log:
// the log carries a ResultRef plus a handful of extracted scalars, never
// the payload itself.
package resultstore

import "time"

// Tier names a ResultRef backend.
type Tier string

const (
	TierMemory Tier = "memory"
	TierKV     Tier = "kv"
	TierObject Tier = "object"
	TierCloud  Tier = "cloud"
)

// Scope bounds a ResultRef's lifetime; only Scope == ScopePermanent survives
// garbage collection.
type Scope string

const (
	ScopeStep      Scope = "step"
	ScopeExecution Scope = "execution"
	ScopeWorkflow  Scope = "workflow"
	ScopePermanent Scope = "permanent"
)

// Size thresholds for the "auto" tier-selection rule.
const (
	AutoMemoryMaxBytes = 10 * 1024        // 10 KiB
	AutoKVMaxBytes     = 1024 * 1024      // 1 MiB
	AutoObjectMaxBytes = 10 * 1024 * 1024 // 10 MiB
	InlineMaxBytes     = 64 * 1024        // 64 KiB — below this, no ref at all
)

// ResultRef is an opaque pointer to a payload held in one of the tiers: the
// engine passes this plus extracted scalars, never the full value.
type ResultRef struct {
	Ref         string            `json:"ref"`
	Store       Tier              `json:"store"`
	Scope       Scope             `json:"scope"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Bytes       int64             `json:"bytes"`
	SHA256      string            `json:"sha256"`
	Compression string            `json:"compression,omitempty"`
	Extracted   map[string]any    `json:"extracted,omitempty"`
	Preview     string            `json:"preview,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SelectTier applies the default auto-selection rule: small step-scoped
// payloads stay in memory, then kv, then object, then cloud.
func SelectTier(size int64, scope Scope) Tier {
	switch {
	case size < AutoMemoryMaxBytes && scope == ScopeStep:
		return TierMemory
	case size < AutoKVMaxBytes:
		return TierKV
	case size < AutoObjectMaxBytes:
		return TierObject
	default:
		return TierCloud
	}
}
