// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingHandler is returned when no HTTP handler is configured.
	ErrMissingHandler = errors.New("daemon: http handler is required")
	// ErrMissingManager is returned by App.Run without a manager.
	ErrMissingManager = errors.New("daemon: manager is required")
	// ErrManagerNotStarted is returned when shutting down a manager that never started.
	ErrManagerNotStarted = errors.New("daemon: manager not started")
	// ErrAlreadyStarted is returned on a second Start.
	ErrAlreadyStarted = errors.New("daemon: manager already started")
)
