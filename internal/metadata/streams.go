// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metadata

import (
	"context"
	"fmt"
	"time"
)

// PlayEvent is one playlist read made with a context code.
type PlayEvent struct {
	ContentID   int64
	UserID      int64
	ContextCode int
	StreamedAt  time.Time
}

// RankedItem is a content row with its play count.
type RankedItem struct {
	ContentItem
	Plays int64
}

// RecordStream appends a play event. StreamedAt defaults to now, stored in UTC.
func (s *Store) RecordStream(ctx context.Context, ev PlayEvent) error {
	at := ev.StreamedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO streams (content_id, user_id, context_code, streamed_at) VALUES (?, ?, ?, ?)"),
		ev.ContentID, ev.UserID, ev.ContextCode, at.UTC().Truncate(time.Second),
	)
	if err != nil {
		return fmt.Errorf("metadata: record stream for %d: %w", ev.ContentID, err)
	}
	return nil
}

// TopByContext ranks content by play events with code during the UTC day
// containing day.
func (s *Store) TopByContext(ctx context.Context, code int, day time.Time, limit int) ([]RankedItem, error) {
	if limit <= 0 {
		return []RankedItem{}, nil
	}
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT c.id, c.owner_id, c.name, COUNT(s.id) AS plays
		FROM streams s
		JOIN content c ON c.id = s.content_id AND c.committed = TRUE
		WHERE s.context_code = ? AND s.streamed_at >= ? AND s.streamed_at < ?
		GROUP BY c.id, c.owner_id, c.name
		ORDER BY plays DESC, c.id ASC
		LIMIT ?`),
		code, start, end, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("metadata: top by context %d: %w", code, err)
	}
	defer func() { _ = rows.Close() }()

	out := []RankedItem{}
	for rows.Next() {
		var r RankedItem
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Plays); err != nil {
			return nil, fmt.Errorf("metadata: scan ranked content: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata: iterate ranked content: %w", err)
	}
	return out, nil
}
