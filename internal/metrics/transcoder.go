// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TranscodeDuration tracks wall time of a single ffmpeg invocation
	TranscodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skyfy_transcode_duration_seconds",
		Help:    "Duration of ffmpeg HLS transcodes",
		Buckets: prometheus.ExponentialBuckets(0.25, 2.0, 12), // 250ms to ~8.5min
	}, []string{"outcome"})

	// TranscodeSegments tracks how many segments each transcode produced
	TranscodeSegments = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skyfy_transcode_segments",
		Help:    "Number of HLS segments produced per transcode",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// TranscodeErrors tracks failed transcodes by reason
	TranscodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyfy_transcode_errors_total",
		Help: "Total failed transcodes",
	}, []string{"reason"})
)
