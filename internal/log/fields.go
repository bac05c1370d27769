// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldContentID = "content_id"
	FieldUserID    = "user_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStep      = "step"
	FieldState     = "state"

	// Remote store fields
	FieldRemotePath = "remote_path"
	FieldRemoteOp   = "remote_op"

	// Path / URL fields
	FieldPath         = "path"
	FieldBaseURL      = "base_url"
	FieldStagingPath  = "staging_path"
	FieldPlaylistPath = "playlist_path"

	// Media fields
	FieldSegments = "segments"
	FieldDuration = "duration_ms"
)
