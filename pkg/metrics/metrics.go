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

// Package metrics holds the core execution/queue Prometheus series plus the
// scheduler/queue internals that feed them, registered against a single
// process-wide Registry the API and worker binaries both expose on /metrics.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultRegistry is the process-wide registry the API and worker mains
// expose on /metrics.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		EventsAppendedTotal,
		CommandsInFlight,
		QueueLeaseLatencySeconds,
		StepRetriesTotal,
		IteratorIterationsTotal,
		ExecutionDurationSeconds,
		SchedulerTickDurationSeconds,
		LeaseAcquireTotal,
	)
}

// EventsAppendedTotal is noetl_events_appended_total: event log writes, by
// event type.
var EventsAppendedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "noetl_events_appended_total",
		Help: "Total events appended to the event log, by event type.",
	},
	[]string{"event_type"},
)

// CommandsInFlight is noetl_commands_in_flight: commands currently leased
// by a worker, by priority class.
var CommandsInFlight = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "noetl_commands_in_flight",
		Help: "Commands currently leased by a worker, by priority class.",
	},
	[]string{"class"},
)

// QueueLeaseLatencySeconds is noetl_queue_lease_latency_seconds: time from
// Enqueue to ClaimNext for a command.
var QueueLeaseLatencySeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "noetl_queue_lease_latency_seconds",
		Help:    "Time from a command's Enqueue to its ClaimNext, by priority class.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"class"},
)

// StepRetriesTotal is noetl_step_retries_total: retry attempts scheduled
// by a step's on-error policy, by step and error kind.
var StepRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "noetl_step_retries_total",
		Help: "Retry attempts scheduled for a step, by step and error kind.",
	},
	[]string{"step", "error_kind"},
)

// IteratorIterationsTotal is noetl_iterator_iterations_total: loop
// iterations completed, by step and loop mode.
var IteratorIterationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "noetl_iterator_iterations_total",
		Help: "Loop iterations completed, by step and loop mode.",
	},
	[]string{"step", "mode"},
)

// ExecutionDurationSeconds is noetl_execution_duration_seconds: wall time
// from execution.started to its terminal event, by final status.
var ExecutionDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "noetl_execution_duration_seconds",
		Help:    "Execution wall time from started to terminal, by final status.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	},
	[]string{"status"},
)

// SchedulerTickDurationSeconds times one Scheduler.Advance call.
var SchedulerTickDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "noetl_scheduler_tick_duration_seconds",
		Help:    "Duration of one Scheduler.Advance call.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"execution_status"},
)

// LeaseAcquireTotal counts ClaimNext outcomes.
var LeaseAcquireTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "noetl_lease_acquire_total",
		Help: "ClaimNext outcomes, by result (claimed|empty).",
	},
	[]string{"result"},
)

// WritePrometheus renders DefaultRegistry in the Prometheus text exposition
// format to w, for the /metrics HTTP handler.
func WritePrometheus(w io.Writer) error {
	families, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
