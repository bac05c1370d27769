// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/pipeline"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

var kindStatus = map[pipeline.Kind]int{
	pipeline.KindEmptyUpload:            http.StatusBadRequest,
	pipeline.KindInvalidCoverFormat:     http.StatusBadRequest,
	pipeline.KindInvalidRequest:         http.StatusBadRequest,
	pipeline.KindMissingPlaybackContext: http.StatusBadRequest,
	pipeline.KindForbidden:              http.StatusForbidden,
	pipeline.KindContentNotFound:        http.StatusNotFound,
	pipeline.KindNotProcessed:           http.StatusNotFound,
	pipeline.KindSegmentNotFound:        http.StatusNotFound,
	pipeline.KindCoverNotFound:          http.StatusNotFound,
	pipeline.KindRemoteNotFound:         http.StatusNotFound,
	pipeline.KindRemoteConflict:         http.StatusConflict,
	pipeline.KindTranscodeFailed:        http.StatusUnprocessableEntity,
	pipeline.KindMetadataCommitFailed:   http.StatusInternalServerError,
	pipeline.KindInternal:               http.StatusInternalServerError,
	pipeline.KindRemoteStoreUnavailable: http.StatusServiceUnavailable,
}

// statusFor maps a pipeline kind to its HTTP status.
func statusFor(k pipeline.Kind) int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Message:   msg,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}

// writeError renders err. Only the kind's fixed message reaches the client;
// the wrapped cause is logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := pipeline.KindOf(err)
	status := statusFor(kind)

	logger := log.WithContext(r.Context(), s.logger)
	ev := logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).
		Str(log.FieldEvent, "request.failed").
		Str("kind", string(kind)).
		Int("status", status).
		Msg("request failed")

	writeProblem(w, r, status, string(kind), kind.Message())
}

// writeBadRequest reports a malformed request that never reached the pipeline.
func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeProblem(w, r, http.StatusBadRequest, string(pipeline.KindInvalidRequest), msg)
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	// multipart parsing does not always keep the error chain
	return err != nil && strings.Contains(err.Error(), "request body too large")
}
