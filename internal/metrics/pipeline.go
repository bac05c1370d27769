// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfy_uploads_total",
		Help: "Upload pipeline runs by kind and terminal outcome",
	}, []string{"kind", "outcome"})

	pipelineStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skyfy_pipeline_step_duration_seconds",
		Help:    "Duration of individual upload pipeline steps",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.5, 12),
	}, []string{"step", "outcome"})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfy_pipeline_rollbacks_total",
		Help: "Compensations executed after a failed pipeline step",
	}, []string{"failed_step"})

	compensationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfy_pipeline_compensation_errors_total",
		Help: "Compensating actions that themselves failed (advisory cleanup)",
	}, []string{"step"})

	remoteOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfy_remote_operations_total",
		Help: "SFTP store operations by op and outcome",
	}, []string{"op", "outcome"})

	remoteBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfy_remote_bytes_total",
		Help: "Bytes moved to and from the SFTP store",
	}, []string{"direction"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfy_deliveries_total",
		Help: "Playlist, segment and cover reads by outcome",
	}, []string{"kind", "outcome"})

	playEventFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skyfy_play_event_failures_total",
		Help: "Play events that could not be recorded",
	})

	stagingSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skyfy_staging_swept_total",
		Help: "Stale staging entries removed by the sweeper",
	})
)

// ObserveUpload records the terminal outcome of an upload run ("ok" or an error kind).
func ObserveUpload(kind, outcome string) {
	uploadsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveStep records one pipeline step.
func ObserveStep(step string, d time.Duration, err error) {
	pipelineStepDuration.WithLabelValues(step, outcome(err)).Observe(d.Seconds())
}

// IncRollback counts a saga rollback keyed by the step that failed.
func IncRollback(failedStep string) {
	rollbacksTotal.WithLabelValues(failedStep).Inc()
}

// IncCompensationError counts a compensating action that returned an error.
func IncCompensationError(step string) {
	compensationErrors.WithLabelValues(step).Inc()
}

// ObserveRemoteOp counts one remote store operation.
func ObserveRemoteOp(op string, err error) {
	remoteOps.WithLabelValues(op, outcome(err)).Inc()
}

// AddRemoteBytes adds transferred bytes; direction is "upload" or "download".
func AddRemoteBytes(direction string, n int64) {
	if n > 0 {
		remoteBytes.WithLabelValues(direction).Add(float64(n))
	}
}

// ObserveDelivery counts one read-path request.
func ObserveDelivery(kind, outcome string) {
	deliveriesTotal.WithLabelValues(kind, outcome).Inc()
}

// IncPlayEventFailure counts a play event that was dropped.
func IncPlayEventFailure() {
	playEventFailures.Inc()
}

// AddStagingSwept counts stale staging entries removed.
func AddStagingSwept(n int) {
	stagingSwept.Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
