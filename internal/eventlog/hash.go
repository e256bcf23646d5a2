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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeHash computes the tamper-evident chain hash for a single event:
// Hash = SHA256(ExecutionID|Type|Payload|Timestamp|PrevHash).
func ComputeHash(e Event) string {
	h := sha256.New()
	h.Write([]byte(e.ExecutionID))
	h.Write([]byte("|"))
	h.Write([]byte(e.Type))
	h.Write([]byte("|"))
	h.Write(e.Payload)
	h.Write([]byte("|"))
	h.Write([]byte(e.CreatedAt.Format("2006-01-02T15:04:05.999999999Z07:00")))
	h.Write([]byte("|"))
	h.Write([]byte(e.PrevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateChain verifies that every event's Hash matches ComputeHash and
// that PrevHash links correctly to the previous event's Hash.
func ValidateChain(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	if events[0].PrevHash != "" {
		return fmt.Errorf("eventlog: first event prev_hash should be empty, got %q", events[0].PrevHash)
	}
	if expected := ComputeHash(events[0]); expected != events[0].Hash {
		return fmt.Errorf("eventlog: event 0 hash mismatch: expected %s, got %s", expected, events[0].Hash)
	}
	for i := 1; i < len(events); i++ {
		if events[i].PrevHash != events[i-1].Hash {
			return fmt.Errorf("eventlog: hash chain broken at event %d: prev_hash=%s, expected=%s",
				i, events[i].PrevHash, events[i-1].Hash)
		}
		if expected := ComputeHash(events[i]); expected != events[i].Hash {
			return fmt.Errorf("eventlog: event %d hash mismatch: expected %s, got %s", i, expected, events[i].Hash)
		}
	}
	return nil
}
