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

// Package worker is the runtime that leases commands from the engine's
// command queue, invokes the named tool, and reports the outcome back as a
// call.done/call.failed event: lease -> cancellation check -> resolve auth
// -> render -> invoke -> externalize -> emit -> ack.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/noetl/noetl/internal/credential"
	"github.com/noetl/noetl/internal/engine"
	"github.com/noetl/noetl/internal/playbook"
	"github.com/noetl/noetl/internal/queue"
	"github.com/noetl/noetl/internal/resultstore"
	"github.com/noetl/noetl/internal/template"
	"github.com/noetl/noetl/internal/tool"
)

// EventReporter is the narrow slice of *engine.Engine a worker needs to
// publish outcomes, kept as an interface so tests can stub it without a
// full engine/eventlog/queue wiring.
type EventReporter interface {
	ReportCallStarted(ctx context.Context, executionID string, payload engine.CallStartedPayload) error
	ReportCallDone(ctx context.Context, executionID string, payload engine.CallDonePayload) error
	ReportCallFailed(ctx context.Context, executionID string, payload engine.CallFailedPayload) error
	ReportCommandCancelled(ctx context.Context, executionID string, payload engine.CommandCancelledPayload) error
}

// StatusChecker lets the worker ask whether an execution has been cancelled
// before spending a lease on it.
type StatusChecker interface {
	Status(ctx context.Context, executionID string) (*engine.ExecutionState, error)
}

// Config configures a Runner.
type Config struct {
	WorkerID     string
	Capabilities []string
	LeaseTime    time.Duration // defaults to 30s
	PollInterval time.Duration // defaults to 200ms
}

// Runner is one worker process's command-processing loop. Multiple Runners
// (goroutines or processes) may share a Queue safely: ClaimNext is the
// queue's exclusivity boundary.
type Runner struct {
	cfg         Config
	queue       queue.Queue
	tools       *tool.Registry
	credentials credential.Store
	results     *resultstore.Store
	index       *resultstore.Index
	reporter    EventReporter
	status      StatusChecker
}

// SetResultIndex attaches an Index that records every ResultRef this
// Runner creates, so a resultstore.Sweeper has something to list. Nil is
// a valid no-op (the default), matching the results==nil inline-always
// behavior.
func (r *Runner) SetResultIndex(index *resultstore.Index) {
	r.index = index
}

// New builds a Runner over its dependencies.
func New(q queue.Queue, tools *tool.Registry, credentials credential.Store, results *resultstore.Store, reporter EventReporter, status StatusChecker, cfg Config) *Runner {
	if cfg.LeaseTime <= 0 {
		cfg.LeaseTime = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	return &Runner{cfg: cfg, queue: q, tools: tools, credentials: credentials, results: results, reporter: reporter, status: status}
}

// Run polls the queue until ctx is cancelled, processing one command at a
// time. Callers wanting worker-pool concurrency run several Runners, one
// per goroutine, over the same Queue.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cmd, err := r.queue.ClaimNext(ctx, r.cfg.WorkerID, r.cfg.Capabilities, r.cfg.LeaseTime)
		if err != nil {
			if err == queue.ErrNotFound {
				select {
				case <-ctx.Done():
					return
				case <-time.After(r.cfg.PollInterval):
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.cfg.PollInterval):
			}
			continue
		}

		r.process(ctx, cmd)
	}
}

func (r *Runner) process(ctx context.Context, cmd queue.Command) {
	hb := newHeartbeat(r.queue, r.cfg.WorkerID, cmd.ID, r.cfg.LeaseTime)
	hb.Start(ctx)
	defer hb.Stop()

	if r.cancelled(ctx, cmd) {
		_ = r.reporter.ReportCommandCancelled(ctx, cmd.ExecutionID, engine.CommandCancelledPayload{
			Step: cmd.StepID, Attempt: cmd.Attempt,
		})
		_ = r.queue.Ack(ctx, r.cfg.WorkerID, cmd.ID)
		return
	}

	var inv engine.StepInvocation
	if err := json.Unmarshal(cmd.Payload, &inv); err != nil {
		_ = r.reportFailure(ctx, cmd, inv, engine.CallError{
			Kind: engine.ErrSchema, Message: fmt.Sprintf("worker: decode command payload: %v", err),
		})
		_ = r.queue.Ack(ctx, r.cfg.WorkerID, cmd.ID)
		return
	}

	_ = r.reporter.ReportCallStarted(ctx, cmd.ExecutionID, engine.CallStartedPayload{
		Step: inv.Step, Attempt: inv.Attempt, NodeType: inv.NodeType,
	})

	callCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	output, outErr := r.invoke(callCtx, cmd.ExecutionID, inv)
	if outErr != nil {
		if err := r.reportFailure(ctx, cmd, inv, classify(inv.NodeType, outErr)); err != nil {
			_ = r.queue.Nack(ctx, r.cfg.WorkerID, cmd.ID, time.Now())
			return
		}
		_ = r.queue.Ack(ctx, r.cfg.WorkerID, cmd.ID)
		return
	}

	payload, err := r.buildCallDone(ctx, inv, output)
	if err != nil {
		if err := r.reportFailure(ctx, cmd, inv, engine.CallError{Kind: engine.ErrParse, Message: err.Error()}); err != nil {
			_ = r.queue.Nack(ctx, r.cfg.WorkerID, cmd.ID, time.Now())
			return
		}
		_ = r.queue.Ack(ctx, r.cfg.WorkerID, cmd.ID)
		return
	}
	if err := r.reporter.ReportCallDone(ctx, cmd.ExecutionID, payload); err != nil {
		_ = r.queue.Nack(ctx, r.cfg.WorkerID, cmd.ID, time.Now())
		return
	}
	_ = r.queue.Ack(ctx, r.cfg.WorkerID, cmd.ID)
}

// cancelled reports whether execution has already been cancelled, so the
// worker can skip invoking the tool entirely.
func (r *Runner) cancelled(ctx context.Context, cmd queue.Command) bool {
	if cmd.CancelRequestedAt != nil {
		return true
	}
	if r.status == nil {
		return false
	}
	state, err := r.status.Status(ctx, cmd.ExecutionID)
	if err != nil {
		return false
	}
	return state.Cancelled
}

// invoke resolves the step's credential (if any), renders a loop body's
// still-raw "with" templates (non-loop steps arrive pre-rendered by the
// engine's decide.go), then runs the step's pipeline or single tool call.
func (r *Runner) invoke(ctx context.Context, executionID string, inv engine.StepInvocation) (any, error) {
	ctx = tool.WithExecutionID(ctx, executionID)
	var cred string
	if inv.Auth != "" && r.credentials != nil {
		c, err := r.credentials.Get(ctx, inv.Auth)
		if err != nil {
			return nil, tool.Retryable(inv.NodeType, fmt.Errorf("worker: resolve credential %q: %w", inv.Auth, err))
		}
		cred = c
	}

	with := inv.With
	if inv.LoopID != "" {
		rendered, err := renderLoopWith(ctx, r.status, executionID, inv)
		if err != nil {
			return nil, tool.Permanent(inv.NodeType, fmt.Errorf("worker: render loop body: %w", err))
		}
		with = rendered
	}

	if len(inv.Pipe) > 0 {
		return r.invokePipe(ctx, inv.Pipe, cred)
	}
	return r.invokeOne(ctx, inv.NodeType, withCredential(with, cred))
}

// renderLoopWith builds the per-iteration template scope (the loop's bound
// item plus the execution's current variables/step outputs) and renders a
// loop body's "with" block against it, since StartLoop enqueues loop
// commands with the step's raw With rather than pre-rendering it (the item
// binding only exists once the command reaches a worker).
func renderLoopWith(ctx context.Context, status StatusChecker, executionID string, inv engine.StepInvocation) (map[string]any, error) {
	scope := template.Scope{Item: inv.Item}
	if status != nil {
		if state, err := status.Status(ctx, executionID); err == nil {
			scope.Vars = state.Variables
			steps := make(map[string]any, len(state.StepResults))
			for id, res := range state.StepResults {
				steps[id] = res.Value()
			}
			scope.Steps = steps
		}
	}
	out := make(map[string]any, len(inv.With))
	for k, v := range inv.With {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		rv, err := template.RenderString(ctx, s, scope)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func (r *Runner) invokeOne(ctx context.Context, nodeType string, input map[string]any) (any, error) {
	t, err := r.tools.MustGet(nodeType)
	if err != nil {
		return nil, tool.Permanent(nodeType, err)
	}
	res, err := t.Execute(ctx, input)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// invokePipe runs a step's pipe stages in sequence, threading each stage's
// result into the next as "_prev".
func (r *Runner) invokePipe(ctx context.Context, stages []playbook.PipeTask, cred string) (any, error) {
	var prev any
	for _, stage := range stages {
		input := withCredential(stage.With, cred)
		input["_prev"] = prev
		out, err := r.invokeOne(ctx, stage.NodeType, input)
		if err != nil {
			return nil, err
		}
		prev = out
	}
	return prev, nil
}

func withCredential(with map[string]any, cred string) map[string]any {
	out := make(map[string]any, len(with)+1)
	for k, v := range with {
		out[k] = v
	}
	if cred != "" {
		out["_credential"] = cred
	}
	return out
}

// buildCallDone selects the kept output via output_select, extracts
// declared vars, and externalizes the result if it's over the inline
// threshold, producing the payload a call.done event carries.
func (r *Runner) buildCallDone(ctx context.Context, inv engine.StepInvocation, output any) (engine.CallDonePayload, error) {
	selected := output
	if inv.OutputSelect != "" {
		selected = selectPath(output, inv.OutputSelect)
	}

	vars, err := extractVars(ctx, inv.Vars, selected)
	if err != nil {
		return engine.CallDonePayload{}, err
	}

	payload := engine.CallDonePayload{Step: inv.Step, Attempt: inv.Attempt, Vars: vars}
	if inv.LoopID != "" {
		idx := inv.Index
		payload.Index = &idx
	}

	ref, inline, err := r.externalize(ctx, inv, selected)
	if err != nil {
		return engine.CallDonePayload{}, err
	}
	payload.Ref = ref
	payload.Inline = inline
	return payload, nil
}

// externalize stores selected in the resultstore when it is larger than the
// step's inline threshold, returning a ResultRef; otherwise it is returned
// inline and no ref is created. A Runner built without a resultstore
// (results == nil) returns every result inline, whatever its size.
func (r *Runner) externalize(ctx context.Context, inv engine.StepInvocation, selected any) (*resultstore.ResultRef, any, error) {
	raw, err := json.Marshal(selected)
	if err != nil {
		return nil, nil, fmt.Errorf("worker: marshal result: %w", err)
	}
	threshold := inv.InlineMaxBytes
	if threshold <= 0 {
		threshold = resultstore.InlineMaxBytes
	}
	if int64(len(raw)) <= threshold || r.results == nil {
		return nil, selected, nil
	}

	scope := resultstore.Scope(inv.OutputScope)
	if scope == "" {
		scope = resultstore.ScopeStep
	}
	ref, err := r.results.Put(ctx, scope, raw, "application/json", extractPreviewFields(selected), inv.OutputTTL)
	if err != nil {
		return nil, nil, err
	}
	if r.index != nil {
		r.index.Record(ref)
	}
	return &ref, nil, nil
}

// extractVars evaluates each declared vars expression against result,
// producing the name -> value map a call.done event carries for the engine
// to merge into ExecutionState.Variables.
func extractVars(ctx context.Context, exprs map[string]string, result any) (map[string]any, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	scope := template.Scope{Result: result}
	out := make(map[string]any, len(exprs))
	for name, expr := range exprs {
		v, err := template.Eval(ctx, expr, scope)
		if err != nil {
			return nil, fmt.Errorf("worker: extract var %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// selectPath applies a gjson path to v's JSON form, returning the decoded
// sub-value, or v itself if the path doesn't resolve.
func selectPath(v any, path string) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(res.Raw), &decoded); err != nil {
		return res.Value()
	}
	return decoded
}

// extractPreviewFields pulls a handful of top-level scalar fields out of a
// map result so a ResultRef.Extracted carries something useful without a
// round trip to the backend; non-map results extract nothing.
func extractPreviewFields(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		switch val.(type) {
		case string, float64, bool, int, int64:
			out[k] = val
		}
	}
	return out
}

func (r *Runner) reportFailure(ctx context.Context, cmd queue.Command, inv engine.StepInvocation, callErr engine.CallError) error {
	idx := indexPtr(inv)
	return r.reporter.ReportCallFailed(ctx, cmd.ExecutionID, engine.CallFailedPayload{
		Step: cmd.StepID, Attempt: cmd.Attempt, Index: idx, Error: callErr,
	})
}

func indexPtr(inv engine.StepInvocation) *int {
	if inv.LoopID == "" {
		return nil
	}
	idx := inv.Index
	return &idx
}

// classify turns a tool error into the engine's richer CallError taxonomy.
// tool.Error already carries a coarse retryable/permanent split; classify
// maps that onto the closest ErrorKind so the engine's default
// retry-classification table (DefaultRetryable) still applies sensibly to
// tools that don't bother distinguishing kinds any further themselves.
func classify(nodeType string, err error) engine.CallError {
	retryable := tool.IsRetryable(err)
	kind := engine.ErrClient
	if retryable {
		kind = engine.ErrConnection
	}
	return engine.CallError{Kind: kind, Message: err.Error(), Retryable: retryable}
}
