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

package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetl/noetl/internal/engine"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/internal/tool"
)

// fakeReporter records every call so a test can assert on the exact
// sequence of events a Runner reported, without a real event log.
type fakeReporter struct {
	mu        sync.Mutex
	started   []engine.CallStartedPayload
	done      []engine.CallDonePayload
	failed    []engine.CallFailedPayload
	cancelled []engine.CommandCancelledPayload
}

func (f *fakeReporter) ReportCallStarted(ctx context.Context, executionID string, payload engine.CallStartedPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, payload)
	return nil
}

func (f *fakeReporter) ReportCallDone(ctx context.Context, executionID string, payload engine.CallDonePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, payload)
	return nil
}

func (f *fakeReporter) ReportCallFailed(ctx context.Context, executionID string, payload engine.CallFailedPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, payload)
	return nil
}

func (f *fakeReporter) ReportCommandCancelled(ctx context.Context, executionID string, payload engine.CommandCancelledPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, payload)
	return nil
}

// fakeStatus lets a test drive StatusChecker.Status without a full engine.
type fakeStatus struct {
	state *engine.ExecutionState
}

func (f *fakeStatus) Status(ctx context.Context, executionID string) (*engine.ExecutionState, error) {
	return f.state, nil
}

// echoTool returns whatever "value" its input carries, recording every
// execution_id it observed via ctx so a test can assert the worker attached
// one before invoking the tool.
type echoTool struct {
	mu  sync.Mutex
	ctx []string
}

func (t *echoTool) Name() string { return "echo" }

func (t *echoTool) Execute(ctx context.Context, input map[string]any) (tool.Result, error) {
	t.mu.Lock()
	t.ctx = append(t.ctx, tool.ExecutionIDFromContext(ctx))
	t.mu.Unlock()
	return tool.Result{Output: input["value"]}, nil
}

func newTestRunner(t *testing.T, reporter *fakeReporter, status *fakeStatus, echo *echoTool) (*Runner, *queue.MemoryQueue) {
	t.Helper()
	q := queue.NewMemoryQueue()
	tools := tool.NewRegistry()
	tools.Register(echo)
	r := New(q, tools, nil, nil, reporter, status, Config{PollInterval: 5 * time.Millisecond})
	return r, q
}

func TestRunner_ProcessReportsStartedThenDone(t *testing.T) {
	reporter := &fakeReporter{}
	status := &fakeStatus{state: &engine.ExecutionState{}}
	echo := &echoTool{}
	r, q := newTestRunner(t, reporter, status, echo)

	payload, err := json.Marshal(engine.StepInvocation{
		Step: "s1", NodeType: "echo", With: map[string]any{"value": "ok"}, Attempt: 1,
	})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), queue.Command{
		ID: "cmd-1", ExecutionID: "exec-1", StepID: "s1", NodeType: "echo", Payload: payload, Attempt: 1,
	}))

	cmd, err := q.ClaimNext(context.Background(), "worker-1", nil, time.Minute)
	require.NoError(t, err)
	r.process(context.Background(), cmd)

	require.Len(t, reporter.started, 1)
	assert.Equal(t, "s1", reporter.started[0].Step)
	require.Len(t, reporter.done, 1)
	assert.Equal(t, "s1", reporter.done[0].Step)
	assert.Equal(t, "ok", reporter.done[0].Inline)
	assert.Empty(t, reporter.failed)

	require.Len(t, echo.ctx, 1)
	assert.Equal(t, "exec-1", echo.ctx[0])
}

func TestRunner_ProcessSkipsCancelledCommand(t *testing.T) {
	reporter := &fakeReporter{}
	status := &fakeStatus{state: &engine.ExecutionState{}}
	echo := &echoTool{}
	r, q := newTestRunner(t, reporter, status, echo)

	payload, err := json.Marshal(engine.StepInvocation{
		Step: "s1", NodeType: "echo", With: map[string]any{"value": "ok"},
	})
	require.NoError(t, err)
	cancelledAt := time.Now()
	require.NoError(t, q.Enqueue(context.Background(), queue.Command{
		ID: "cmd-1", ExecutionID: "exec-1", StepID: "s1", NodeType: "echo", Payload: payload,
		CancelRequestedAt: &cancelledAt,
	}))

	cmd, err := q.ClaimNext(context.Background(), "worker-1", nil, time.Minute)
	require.NoError(t, err)
	r.process(context.Background(), cmd)

	assert.Empty(t, reporter.started)
	assert.Empty(t, reporter.done)
	require.Len(t, reporter.cancelled, 1)
	assert.Equal(t, "s1", reporter.cancelled[0].Step)
	assert.Empty(t, echo.ctx)
}
