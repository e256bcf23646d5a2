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

package playbook

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse decodes raw YAML into a Playbook and validates its structural
// invariants (unique step IDs, Next/Start referencing existing steps).
func Parse(raw []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(raw, &pb); err != nil {
		return nil, fmt.Errorf("playbook: parse: %w", err)
	}
	if err := Validate(&pb); err != nil {
		return nil, err
	}
	return &pb, nil
}

// Validate checks structural invariants that yaml.Unmarshal cannot enforce.
func Validate(pb *Playbook) error {
	if pb.Name == "" {
		return fmt.Errorf("playbook: name is required")
	}
	seen := make(map[string]bool, len(pb.Steps))
	for _, s := range pb.Steps {
		if s.ID == "" {
			return fmt.Errorf("playbook: step with empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("playbook: duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
		if s.NodeType == "" {
			return fmt.Errorf("playbook: step %q missing node_type", s.ID)
		}
		if s.Loop != nil {
			switch s.Loop.Mode {
			case LoopSequential, LoopAsync, LoopChunked, LoopFanout, "":
			default:
				return fmt.Errorf("playbook: step %q has unknown loop mode %q", s.ID, s.Loop.Mode)
			}
			if s.Loop.Mode == LoopChunked && s.Loop.ChunkSize <= 0 {
				return fmt.Errorf("playbook: step %q loop mode chunked requires chunk_size > 0", s.ID)
			}
		}
	}
	for _, start := range pb.Start {
		if !seen[start] {
			return fmt.Errorf("playbook: start references unknown step %q", start)
		}
	}
	for _, s := range pb.Steps {
		for _, next := range s.Next {
			if !seen[next] {
				return fmt.Errorf("playbook: step %q next references unknown step %q", s.ID, next)
			}
		}
	}
	return nil
}
