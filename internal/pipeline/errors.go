// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"errors"
	"fmt"

	"github.com/skyfy/skyfy/internal/cover"
	"github.com/skyfy/skyfy/internal/metadata"
	"github.com/skyfy/skyfy/internal/remotestore"
	"github.com/skyfy/skyfy/internal/staging"
	"github.com/skyfy/skyfy/internal/transcoder"
)

// Kind classifies a pipeline failure for callers.
type Kind string

const (
	KindEmptyUpload            Kind = "EmptyUpload"
	KindInvalidCoverFormat     Kind = "InvalidCoverFormat"
	KindTranscodeFailed        Kind = "TranscodeFailed"
	KindRemoteStoreUnavailable Kind = "RemoteStoreUnavailable"
	KindRemoteConflict         Kind = "RemoteConflict"
	KindRemoteNotFound         Kind = "RemoteNotFound"
	KindSegmentNotFound        Kind = "SegmentNotFound"
	KindMissingPlaybackContext Kind = "MissingPlaybackContext"
	KindMetadataCommitFailed   Kind = "MetadataCommitFailed"
	KindNotProcessed           Kind = "NotProcessed"
	KindContentNotFound        Kind = "ContentNotFound"
	KindCoverNotFound          Kind = "CoverNotFound"
	KindForbidden              Kind = "Forbidden"
	KindInvalidRequest         Kind = "InvalidRequest"
	KindInternal               Kind = "Internal"
)

var messages = map[Kind]string{
	KindEmptyUpload:            "uploaded file is empty",
	KindInvalidCoverFormat:     "cover must be a JPEG image (.jpg or .jpeg)",
	KindTranscodeFailed:        "audio could not be converted",
	KindRemoteStoreUnavailable: "content store is unavailable, try again later",
	KindRemoteConflict:         "content already exists in the content store",
	KindRemoteNotFound:         "content not found in the content store",
	KindSegmentNotFound:        "segment not found",
	KindMissingPlaybackContext: "playback context requires an authenticated caller and a numeric context code",
	KindMetadataCommitFailed:   "content metadata could not be saved",
	KindNotProcessed:           "not processed yet",
	KindContentNotFound:        "content not found",
	KindCoverNotFound:          "cover not found",
	KindForbidden:              "content belongs to another user",
	KindInvalidRequest:         "invalid request",
	KindInternal:               "internal error",
}

// Message is the human readable text for k.
func (k Kind) Message() string {
	if m, ok := messages[k]; ok {
		return m
	}
	return messages[KindInternal]
}

// Error is the structured failure returned by every pipeline operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Message())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.Message(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a pipeline error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// remoteKind maps remote store errors.
func remoteKind(err error) Kind {
	switch {
	case errors.Is(err, remotestore.ErrConflict):
		return KindRemoteConflict
	case errors.Is(err, remotestore.ErrNotFound):
		return KindRemoteNotFound
	default:
		return KindRemoteStoreUnavailable
	}
}

// classify turns a leaf error into a pipeline error. fallback is used when no
// leaf sentinel matches.
func classify(op string, err error, fallback Kind) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	kind := fallback
	switch {
	case errors.Is(err, staging.ErrEmptyPayload):
		kind = KindEmptyUpload
	case errors.Is(err, cover.ErrInvalidFormat):
		kind = KindInvalidCoverFormat
	case errors.Is(err, transcoder.ErrTranscodeFailed):
		kind = KindTranscodeFailed
	case errors.Is(err, remotestore.ErrUnavailable),
		errors.Is(err, remotestore.ErrConflict),
		errors.Is(err, remotestore.ErrNotFound):
		kind = remoteKind(err)
	case errors.Is(err, metadata.ErrNotFound):
		kind = KindContentNotFound
	case errors.Is(err, metadata.ErrInvalidName):
		kind = KindInvalidRequest
	}
	return newError(kind, op, err)
}
