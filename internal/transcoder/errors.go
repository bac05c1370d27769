// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"errors"
	"fmt"
)

// ErrTranscodeFailed matches every transcode failure.
var ErrTranscodeFailed = errors.New("transcode failed")

// Failure reasons, also used as metric labels.
const (
	ReasonInput    = "input"
	ReasonExit     = "exit"
	ReasonTimeout  = "timeout"
	ReasonCanceled = "canceled"
	ReasonOutput   = "output"
)

// FailedError describes why a transcode failed. Stderr holds the tail of the
// tool's diagnostic output when a process was run.
type FailedError struct {
	Reason string
	Stderr string
	Err    error
}

func (e *FailedError) Error() string {
	msg := fmt.Sprintf("transcode failed (%s)", e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FailedError) Unwrap() error { return e.Err }

// Is makes every FailedError match ErrTranscodeFailed.
func (e *FailedError) Is(target error) bool { return target == ErrTranscodeFailed }
