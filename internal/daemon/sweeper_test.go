// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfy/skyfy/internal/config"
)

func TestSweeper_SweepOnce(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp3")
	fresh := filepath.Join(dir, "fresh.mp3")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	s := NewSweeper(config.StagingConfig{Dir: dir, MaxAge: time.Hour})
	res := s.SweepOnce(context.Background())

	assert.Equal(t, []string{old}, res.Removed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	s := NewSweeper(config.StagingConfig{Dir: t.TempDir(), MaxAge: time.Hour, SweepInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type fakePurger struct {
	calls int
	ids   []int64
	err   error
}

func (p *fakePurger) PurgeAbandoned(context.Context) ([]int64, error) {
	p.calls++
	return p.ids, p.err
}

func TestSweeper_PurgesReservations(t *testing.T) {
	p := &fakePurger{ids: []int64{4, 9}}
	s := NewSweeper(config.StagingConfig{Dir: t.TempDir(), MaxAge: time.Hour}).WithReservationPurge(p)

	s.SweepOnce(context.Background())
	assert.Equal(t, 1, p.calls)

	// a failing purge does not stop the staging sweep
	p.err = errors.New("database is locked")
	dir := t.TempDir()
	old := filepath.Join(dir, "old.ts")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	s = NewSweeper(config.StagingConfig{Dir: dir, MaxAge: time.Hour}).WithReservationPurge(p)
	res := s.SweepOnce(context.Background())
	assert.Equal(t, 2, p.calls)
	assert.Equal(t, []string{old}, res.Removed)
}
