// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// CleanStaleResult contains the outcome of a stale entry sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes staging entries (files and directories) older than maxAge.
// Entries are normally removed by their owning operation; this sweep only
// catches leftovers from a crashed process.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger zerolog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		path := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logger.Warn().
				Err(err).
				Str("event", "staging.cleanup_failed").
				Str("path", path).
				Msg("failed to remove stale staging entry")
			continue
		}
		result.Removed = append(result.Removed, path)
		logger.Info().
			Str("event", "staging.cleanup").
			Str("path", path).
			Dur("age", time.Since(info.ModTime())).
			Msg("removed stale staging entry")
	}
	return result
}
