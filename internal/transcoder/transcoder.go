// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package transcoder converts one audio file into a VOD HLS rendition
// (playlist.m3u8 plus seg%05d.ts) with ffmpeg.
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/skyfy/skyfy/internal/hls"
	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/metrics"
	"github.com/skyfy/skyfy/internal/telemetry"
)

// DefaultSegmentSeconds is used when the caller passes a non-positive duration.
const DefaultSegmentSeconds = 5

// SegmentPattern is the ffmpeg output pattern for segment files.
const SegmentPattern = "seg%05d.ts"

// Config configures the transcoder.
type Config struct {
	Bin          string
	AudioBitrate string
	Timeout      time.Duration
}

// Transcoder runs ffmpeg through a Runner.
type Transcoder struct {
	cfg    Config
	runner Runner
	logger zerolog.Logger
}

// New returns a Transcoder. A nil runner means ExecRunner.
func New(cfg Config, runner Runner) *Transcoder {
	if cfg.Bin == "" {
		cfg.Bin = "ffmpeg"
	}
	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = "192k"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Transcoder{cfg: cfg, runner: runner, logger: log.WithComponent("transcoder")}
}

// Args builds the ffmpeg argument list for one transcode.
func Args(inputPath, outputDir string, segmentSeconds int, bitrate string) []string {
	return []string{
		"-y", "-nostdin", "-hide_banner",
		"-i", inputPath,
		"-vn",
		"-c:a", "aac",
		"-b:a", bitrate,
		"-hls_time", strconv.Itoa(segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outputDir, SegmentPattern),
		filepath.Join(outputDir, hls.ManifestName),
	}
}

// Transcode converts inputPath into outputDir and returns the manifest path.
// On success the manifest exists and so does every segment it references.
// Failures are *FailedError; nothing is cleaned up or retried.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputDir string, segmentSeconds int) (manifestPath string, err error) {
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}
	logger := log.WithContext(ctx, t.logger)

	ctx, span := telemetry.StartSpan(ctx, "transcoder.transcode")
	span.SetAttributes(telemetry.TranscodeAttributes(segmentSeconds, t.cfg.AudioBitrate)...)
	start := time.Now()
	defer func() {
		outcome := "success"
		var fe *FailedError
		if errors.As(err, &fe) {
			outcome = "failure"
			metrics.TranscodeErrors.WithLabelValues(fe.Reason).Inc()
		}
		metrics.TranscodeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		telemetry.EndSpan(span, err)
	}()

	info, statErr := os.Stat(inputPath)
	switch {
	case statErr != nil:
		return "", &FailedError{Reason: ReasonInput, Err: statErr}
	case !info.Mode().IsRegular():
		return "", &FailedError{Reason: ReasonInput, Err: fmt.Errorf("%s is not a regular file", inputPath)}
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return "", &FailedError{Reason: ReasonOutput, Err: fmt.Errorf("create output dir: %w", err)}
	}

	runCtx := ctx
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	args := Args(inputPath, outputDir, segmentSeconds, t.cfg.AudioBitrate)
	logger.Debug().
		Str(log.FieldEvent, "transcode.start").
		Str("bin", t.cfg.Bin).
		Strs("args", args).
		Msg("starting transcode")

	stderr, runErr := t.runner.Run(runCtx, t.cfg.Bin, args)
	if runErr != nil {
		reason := ReasonExit
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			reason = ReasonTimeout
		case errors.Is(runCtx.Err(), context.Canceled):
			reason = ReasonCanceled
		}
		logger.Warn().
			Err(runErr).
			Str(log.FieldEvent, "transcode.failed").
			Str("reason", reason).
			Str("stderr_tail", lastLines(stderr, 5)).
			Msg("transcoder exited with error")
		return "", &FailedError{Reason: reason, Stderr: stderr, Err: runErr}
	}

	manifestPath = filepath.Join(outputDir, hls.ManifestName)
	summary, err := verifyOutput(manifestPath, outputDir)
	if err != nil {
		return "", &FailedError{Reason: ReasonOutput, Stderr: stderr, Err: err}
	}
	metrics.TranscodeSegments.Observe(float64(summary.Segments))
	span.SetAttributes(attribute.Int(telemetry.TranscodeSegmentsKey, summary.Segments))

	logger.Info().
		Str(log.FieldEvent, "transcode.done").
		Str(log.FieldPlaylistPath, manifestPath).
		Int(log.FieldSegments, summary.Segments).
		Dur("media_duration", summary.TotalDuration).
		Dur(log.FieldDuration, time.Since(start)).
		Msg("transcode complete")
	return manifestPath, nil
}

// verifyOutput checks that the manifest exists, is a finished VOD playlist
// with a positive duration, and that each referenced segment is a regular
// file inside outputDir.
func verifyOutput(manifestPath, outputDir string) (hls.Summary, error) {
	// #nosec G304 -- manifestPath is inside the staging output dir
	f, err := os.Open(manifestPath)
	if err != nil {
		return hls.Summary{}, fmt.Errorf("manifest missing: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := hls.ParseManifest(f)
	if err != nil {
		return hls.Summary{}, err
	}
	summary, err := m.Summarize()
	if err != nil {
		return hls.Summary{}, err
	}
	if summary.Segments == 0 {
		return hls.Summary{}, errors.New("manifest references no segments")
	}
	// ffmpeg writes the end tag last; without it the rendition is truncated
	if !summary.VOD {
		return hls.Summary{}, errors.New("manifest is not a finished VOD playlist")
	}
	if summary.TotalDuration <= 0 {
		return hls.Summary{}, errors.New("manifest has zero total duration")
	}
	for _, seg := range m.Segments() {
		if seg != filepath.Base(seg) {
			return hls.Summary{}, fmt.Errorf("segment %q is not a bare file name", seg)
		}
		info, err := os.Stat(filepath.Join(outputDir, seg))
		if err != nil {
			return hls.Summary{}, fmt.Errorf("segment %s missing: %w", seg, err)
		}
		if !info.Mode().IsRegular() {
			return hls.Summary{}, fmt.Errorf("segment %s is not a regular file", seg)
		}
	}
	return summary, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
