// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used across pipeline spans.
const (
	ContentIDKey = "content.id"
	OwnerIDKey   = "content.owner_id"

	PipelineStepKey = "pipeline.step"
	PipelineOpKey   = "pipeline.op"

	RemoteOpKey   = "remote.op"
	RemotePathKey = "remote.path"

	TranscodeSegmentSecondsKey = "transcode.segment_seconds"
	TranscodeSegmentsKey       = "transcode.segments"
	TranscodeBitrateKey        = "transcode.bitrate"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ContentAttributes identifies the content item a span works on.
// Zero ids are omitted.
func ContentAttributes(contentID, ownerID int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if contentID > 0 {
		attrs = append(attrs, attribute.Int64(ContentIDKey, contentID))
	}
	if ownerID > 0 {
		attrs = append(attrs, attribute.Int64(OwnerIDKey, ownerID))
	}
	return attrs
}

// StepAttributes describes one orchestrator step.
func StepAttributes(op, step string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PipelineOpKey, op),
		attribute.String(PipelineStepKey, step),
	}
}

// RemoteAttributes describes a remote store operation.
func RemoteAttributes(op, path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RemoteOpKey, op),
		attribute.String(RemotePathKey, path),
	}
}

// TranscodeAttributes describes a transcoder run.
func TranscodeAttributes(segmentSeconds int, bitrate string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(TranscodeSegmentSecondsKey, segmentSeconds),
		attribute.String(TranscodeBitrateKey, bitrate),
	}
}

// ErrorAttributes creates error span attributes; nil yields none.
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, fmt.Sprintf("%T", err)),
	}
}
