// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metadata

import (
	"context"
	"fmt"

	"github.com/skyfy/skyfy/internal/config"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS content (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id    INTEGER  NOT NULL,
		name        TEXT     NOT NULL,
		committed   BOOLEAN  NOT NULL DEFAULT FALSE,
		reserved_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS streams (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		content_id   INTEGER NOT NULL REFERENCES content(id) ON DELETE CASCADE,
		user_id      INTEGER NOT NULL,
		context_code INTEGER NOT NULL,
		streamed_at  DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_pending ON content(committed, reserved_at)`,
	`CREATE INDEX IF NOT EXISTS idx_streams_context_day ON streams(context_code, streamed_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS content (
		id          BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		owner_id    BIGINT  NOT NULL,
		name        TEXT    NOT NULL,
		committed   BOOLEAN NOT NULL DEFAULT FALSE,
		reserved_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS streams (
		id           BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		content_id   BIGINT  NOT NULL REFERENCES content(id) ON DELETE CASCADE,
		user_id      BIGINT  NOT NULL,
		context_code INTEGER NOT NULL,
		streamed_at  TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_pending ON content(committed, reserved_at)`,
	`CREATE INDEX IF NOT EXISTS idx_streams_context_day ON streams(context_code, streamed_at)`,
}

// Migrate creates the content and streams tables if they are missing.
// Content rows carry a committed flag; rows still being uploaded are
// invisible to every read.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.driver == config.DriverPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("metadata: migrate: %w", err)
		}
	}
	return nil
}
