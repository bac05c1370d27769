// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metadata

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfy/skyfy/internal/config"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.DriverSQLite, filepath.Join(t.TempDir(), "meta.db"), DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x", DefaultOptions())
	require.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: config.DriverPostgres}
	lite := &Store{driver: config.DriverSQLite}
	q := "SELECT 1 FROM t WHERE a = ? AND b = ? LIMIT ?"

	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b = $2 LIMIT $3", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file:x.db?mode=ro", sqliteDSN("file:x.db?mode=ro", 0))
	assert.Contains(t, sqliteDSN("x.db", 2*time.Second), "busy_timeout(2000)")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Check(context.Background()))
}

func TestReserve_InvisibleUntilCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Reserve(ctx, 10, "  Song  ")
	require.NoError(t, err)
	assert.Positive(t, res.ID())
	assert.Equal(t, "Song", res.Item.Name)

	_, err = s.Get(ctx, res.ID())
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, res.Commit(ctx))
	got, err := s.Get(ctx, res.ID())
	require.NoError(t, err)
	assert.Equal(t, ContentItem{ID: res.ID(), OwnerID: 10, Name: "Song"}, got)

	// rollback after commit is a no-op, a second commit is rejected
	require.NoError(t, res.Rollback(ctx))
	require.ErrorIs(t, res.Commit(ctx), ErrReservationClosed)
}

func TestReserve_Rollback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.Reserve(ctx, 1, "gone")
	require.NoError(t, err)
	require.NoError(t, res.Rollback(ctx))
	require.NoError(t, res.Rollback(ctx))

	_, err = s.Get(ctx, res.ID())
	require.ErrorIs(t, err, ErrNotFound)
	items, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReserve_EmptyName(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Reserve(context.Background(), 1, " \t ")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestNormalizeName_NFC(t *testing.T) {
	// "e" + combining acute accent composes to "é"
	assert.Equal(t, "caf\u00e9", NormalizeName("cafe\u0301"))
}

func commit(t *testing.T, s *Store, owner int64, name string) ContentItem {
	t.Helper()
	ctx := context.Background()
	res, err := s.Reserve(ctx, owner, name)
	require.NoError(t, err)
	require.NoError(t, res.Commit(ctx))
	return res.Item
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	item := commit(t, s, 1, "a")
	require.NoError(t, s.RecordStream(ctx, PlayEvent{ContentID: item.ID, UserID: 2, ContextCode: 61}))

	require.NoError(t, s.Delete(ctx, item.ID))
	_, err := s.Get(ctx, item.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, item.ID), ErrNotFound)
}

func TestListAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := commit(t, s, 1, "Rainy Day Blues")
	b := commit(t, s, 1, "Sunny side")
	c := commit(t, s, 2, "100% rain")

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ContentItem{a, b, c}, all)

	got, err := s.Search(ctx, "RAIN", 20)
	require.NoError(t, err)
	assert.Equal(t, []ContentItem{a, c}, got)

	got, err = s.Search(ctx, "0%", 20)
	require.NoError(t, err)
	assert.Equal(t, []ContentItem{c}, got)

	got, err = s.Search(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Search(ctx, "nothing", 20)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTopByContext(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := commit(t, s, 1, "a")
	b := commit(t, s, 1, "b")

	today := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	yesterday := today.Add(-24 * time.Hour)
	events := []PlayEvent{
		{ContentID: a.ID, UserID: 5, ContextCode: 61, StreamedAt: today},
		{ContentID: b.ID, UserID: 5, ContextCode: 61, StreamedAt: today.Add(time.Hour)},
		{ContentID: b.ID, UserID: 6, ContextCode: 61, StreamedAt: today.Add(2 * time.Hour)},
		{ContentID: a.ID, UserID: 6, ContextCode: 61, StreamedAt: yesterday},
		{ContentID: a.ID, UserID: 6, ContextCode: 61, StreamedAt: yesterday.Add(time.Minute)},
		{ContentID: a.ID, UserID: 6, ContextCode: 3, StreamedAt: today},
	}
	for _, ev := range events {
		require.NoError(t, s.RecordStream(ctx, ev))
	}

	top, err := s.TopByContext(ctx, 61, today, 10)
	require.NoError(t, err)
	assert.Equal(t, []RankedItem{{ContentItem: b, Plays: 2}, {ContentItem: a, Plays: 1}}, top)

	top, err = s.TopByContext(ctx, 61, today, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, b.ID, top[0].ID)

	top, err = s.TopByContext(ctx, 99, today, 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	top, err = s.TopByContext(ctx, 61, today, 0)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestReserve_OpenReservationDoesNotBlockWriters(t *testing.T) {
	s := openTestStore(t)
	held, err := s.Reserve(context.Background(), 1, "held")
	require.NoError(t, err)

	// Well under busy_timeout: a held write lock would make these time out.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	other, err := s.Reserve(ctx, 2, "other")
	require.NoError(t, err)
	require.NoError(t, other.Commit(ctx))
	require.NoError(t, s.RecordStream(ctx, PlayEvent{ContentID: other.ID(), UserID: 2, ContextCode: 61}))

	done := commit(t, s, 3, "done")
	require.NoError(t, s.Delete(ctx, done.ID))

	require.NoError(t, held.Commit(ctx))
	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []int64{held.ID(), other.ID()}, []int64{items[0].ID, items[1].ID})
}

func TestReserve_PendingRowsHiddenFromReads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	visible := commit(t, s, 1, "rain one")
	pending, err := s.Reserve(ctx, 1, "rain two")
	require.NoError(t, err)
	require.NoError(t, s.RecordStream(ctx, PlayEvent{ContentID: pending.ID(), UserID: 1, ContextCode: 61}))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ContentItem{visible}, all)

	found, err := s.Search(ctx, "rain", 20)
	require.NoError(t, err)
	assert.Equal(t, []ContentItem{visible}, found)

	top, err := s.TopByContext(ctx, 61, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	require.ErrorIs(t, s.Delete(ctx, pending.ID()), ErrNotFound)

	// rollback also drops the play event recorded against the pending row
	require.NoError(t, pending.Rollback(ctx))
	var n int
	require.NoError(t, s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM streams").Scan(&n))
	assert.Zero(t, n)
}

func TestReserve_CommitAfterPurgeFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	res, err := s.Reserve(ctx, 1, "late")
	require.NoError(t, err)

	ids, err := s.PurgeAbandoned(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []int64{res.ID()}, ids)

	require.ErrorIs(t, res.Commit(ctx), ErrNotFound)
}

func TestPurgeAbandoned_KeepsRecentAndCommitted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	kept := commit(t, s, 1, "kept")
	recent, err := s.Reserve(ctx, 1, "recent")
	require.NoError(t, err)

	ids, err := s.PurgeAbandoned(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, recent.Commit(ctx))
	ids, err = s.PurgeAbandoned(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []int64{kept.ID, recent.ID()}, []int64{all[0].ID, all[1].ID})
}
