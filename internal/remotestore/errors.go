// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remotestore

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrUnavailable covers transport, protocol and timeout failures.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrConflict is returned when an upload without overwrite targets an existing file.
	ErrConflict = errors.New("remote file already exists")
	// ErrNotFound is returned when a download source does not exist.
	ErrNotFound = errors.New("remote path not found")
)

// OpError records the failed operation, the remote path and its class.
type OpError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("remotestore %s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("remotestore %s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(op, path string, err error) error {
	return &OpError{Op: op, Path: path, Kind: ErrUnavailable, Err: err}
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
