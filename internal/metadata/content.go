// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/skyfy/skyfy/internal/log"
)

// ContentItem is one uploaded piece of content. ID is also its remote folder name.
type ContentItem struct {
	ID      int64
	OwnerID int64
	Name    string
}

// NormalizeName trims and NFC-normalises a display name.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContent(r rowScanner) (ContentItem, error) {
	var c ContentItem
	err := r.Scan(&c.ID, &c.OwnerID, &c.Name)
	return c, err
}

// Reservation is an inserted but uncommitted content row. The row exists
// with committed = false, so readers never see it, and no transaction or
// write lock is held while the caller works.
// Exactly one of Commit or Rollback takes effect.
type Reservation struct {
	Item ContentItem

	store *Store
	mu    sync.Mutex
	done  bool
}

// ID returns the assigned content id.
func (r *Reservation) ID() int64 { return r.Item.ID }

// Commit makes the row visible.
func (r *Reservation) Commit(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return ErrReservationClosed
	}
	r.done = true
	res, err := r.store.db.ExecContext(ctx,
		r.store.rebind("UPDATE content SET committed = TRUE WHERE id = ? AND committed = FALSE"),
		r.Item.ID,
	)
	if err != nil {
		return fmt.Errorf("metadata: commit reservation %d: %w", r.Item.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("metadata: commit reservation %d: %w", r.Item.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("metadata: commit reservation %d: %w", r.Item.ID, ErrNotFound)
	}
	return nil
}

// Rollback deletes the uncommitted row. It is a no-op after Commit or a
// prior Rollback.
func (r *Reservation) Rollback(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	r.done = true
	if _, err := r.store.deleteUncommitted(ctx, "id = ?", r.Item.ID); err != nil {
		return fmt.Errorf("metadata: rollback reservation %d: %w", r.Item.ID, err)
	}
	return nil
}

// Reserve inserts an uncommitted content row in its own short statement and
// returns its id. Concurrent reservations never wait on each other beyond
// that insert.
func (s *Store) Reserve(ctx context.Context, ownerID int64, name string) (*Reservation, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("INSERT INTO content (owner_id, name, committed, reserved_at) VALUES (?, ?, FALSE, ?) RETURNING id"),
		ownerID, name, time.Now().UTC().Truncate(time.Second),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("metadata: insert content: %w", err)
	}
	l := log.WithContext(ctx, s.logger)
	l.Debug().
		Str(log.FieldEvent, "metadata.reserved").
		Int64(log.FieldContentID, id).
		Msg("content row reserved")
	return &Reservation{Item: ContentItem{ID: id, OwnerID: ownerID, Name: name}, store: s}, nil
}

// PurgeAbandoned deletes reservations made before cutoff that were never
// committed, which only happens when the process died mid-upload. It
// returns the purged ids so their remote folders can be reported.
func (s *Store) PurgeAbandoned(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return s.deleteUncommitted(ctx, "reserved_at < ?", cutoff.UTC())
}

// deleteUncommitted removes uncommitted rows matching where, together with
// any play events recorded against them, and returns their ids.
func (s *Store) deleteUncommitted(ctx context.Context, where string, args ...any) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		s.rebind("SELECT id FROM content WHERE committed = FALSE AND "+where), args...)
	if err != nil {
		return nil, fmt.Errorf("select uncommitted: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan uncommitted: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM streams WHERE content_id = ?"), id); err != nil {
			return nil, fmt.Errorf("delete streams of %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM content WHERE id = ? AND committed = FALSE"), id); err != nil {
			return nil, fmt.Errorf("delete %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

// Get returns the committed row for id.
func (s *Store) Get(ctx context.Context, id int64) (ContentItem, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT id, owner_id, name FROM content WHERE id = ? AND committed = TRUE"), id)
	c, err := scanContent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ContentItem{}, ErrNotFound
		}
		return ContentItem{}, fmt.Errorf("metadata: get %d: %w", id, err)
	}
	return c, nil
}

// Delete removes the committed row for id and its play events.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metadata: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM streams WHERE content_id = ?"), id); err != nil {
		return fmt.Errorf("metadata: delete streams of %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM content WHERE id = ? AND committed = TRUE"), id)
	if err != nil {
		return fmt.Errorf("metadata: delete %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("metadata: delete %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("metadata: delete %d: commit: %w", id, err)
	}
	return nil
}

// List returns every committed row ordered by id.
func (s *Store) List(ctx context.Context) ([]ContentItem, error) {
	return s.queryContent(ctx, "SELECT id, owner_id, name FROM content WHERE committed = TRUE ORDER BY id")
}

// Search returns up to limit rows whose name contains query, case-insensitively.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]ContentItem, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.ToLower(NormalizeName(query))) + "%"
	return s.queryContent(ctx,
		`SELECT id, owner_id, name FROM content
		 WHERE committed = TRUE AND LOWER(name) LIKE ? ESCAPE '\'
		 ORDER BY id LIMIT ?`,
		pattern, limit)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) queryContent(ctx context.Context, query string, args ...any) ([]ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("metadata: query content: %w", err)
	}
	defer func() { _ = rows.Close() }()

	items := []ContentItem{}
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("metadata: scan content: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadata: iterate content: %w", err)
	}
	return items, nil
}
