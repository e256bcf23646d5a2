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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: fetch-and-store
version: "1"
vars:
  base_url: https://api.example.com
start: [fetch]
steps:
  - id: fetch
    node_type: http
    with:
      url: "{{ vars.base_url }}/items"
    retry:
      max_attempts: 3
      backoff:
        base: 200ms
        multiplier: 2.0
        jitter: 0.2
    next: [store]
  - id: store
    node_type: sql
    when: "{{ fetch.output.items | default([]) | length > 0 }}"
    with:
      query: "insert into items values ({{ item }})"
    loop:
      over: "{{ fetch.output.items }}"
      mode: chunked
      chunk_size: 10
      as: item
`

func TestParse_Valid(t *testing.T) {
	pb, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	assert.Equal(t, "fetch-and-store", pb.Name)
	require.Len(t, pb.Steps, 2)
	step, ok := pb.StepByID("store")
	require.True(t, ok)
	assert.Equal(t, LoopChunked, step.Loop.Mode)
}

func TestParse_DuplicateStepID(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - id: a
    node_type: http
  - id: a
    node_type: sql
`))
	assert.ErrorContains(t, err, "duplicate step id")
}

func TestParse_UnknownNextReference(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - id: a
    node_type: http
    next: [missing]
`))
	assert.ErrorContains(t, err, "unknown step")
}

func TestParse_ChunkedLoopRequiresChunkSize(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - id: a
    node_type: http
    loop:
      over: "{{ x }}"
      mode: chunked
`))
	assert.ErrorContains(t, err, "chunk_size")
}
