// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package staging

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArea(t *testing.T) *Area {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	return a
}

func TestNew_RejectsEmptyRoot(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

func TestStage_CopiesPayload(t *testing.T) {
	a := newArea(t)

	f, n, err := a.Stage(strings.NewReader("audio-bytes"), "mp3")
	require.NoError(t, err)
	defer func() { _ = f.Remove() }()

	assert.EqualValues(t, len("audio-bytes"), n)
	assert.Equal(t, ".mp3", filepath.Ext(f.Path))
	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestStage_EmptyPayloadLeavesNothing(t *testing.T) {
	a := newArea(t)

	_, _, err := a.Stage(bytes.NewReader(nil), ".wav")
	require.ErrorIs(t, err, ErrEmptyPayload)

	entries, err := os.ReadDir(a.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileRemove_Idempotent(t *testing.T) {
	a := newArea(t)
	f, err := a.WriteFile(".jpg", []byte{0xff, 0xd8})
	require.NoError(t, err)

	require.NoError(t, f.Remove())
	require.NoError(t, f.Remove())
	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))

	var nilFile *File
	assert.NoError(t, nilFile.Remove())
}

func TestDir_FilesAndRemove(t *testing.T) {
	a := newArea(t)
	d, err := a.NewDir("hls")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(d.Path), "hls_"))

	require.NoError(t, os.WriteFile(filepath.Join(d.Path, "seg00001.ts"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(d.Path, "playlist.m3u8"), []byte("a"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(d.Path, "nested"), 0o750))

	files, err := d.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(d.Path, "playlist.m3u8"),
		filepath.Join(d.Path, "seg00001.ts"),
	}, files)

	require.NoError(t, d.Remove())
	require.NoError(t, d.Remove())
	_, err = os.Stat(d.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenEphemeral_RemovesOnceOnClose(t *testing.T) {
	a := newArea(t)
	f, err := a.WriteFile(".ts", []byte("segment-data"))
	require.NoError(t, err)

	rc, size, err := f.OpenEphemeral()
	require.NoError(t, err)
	assert.EqualValues(t, len("segment-data"), size)

	buf := make([]byte, 4)
	_, err = io.ReadFull(rc, buf)
	require.NoError(t, err)

	// early termination still removes the file
	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())
	_, err = os.Stat(f.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenEphemeral_MissingFile(t *testing.T) {
	a := newArea(t)
	f := &File{Path: filepath.Join(a.Root(), "gone.ts")}

	_, _, err := f.OpenEphemeral()
	require.Error(t, err)
}

func TestCleanStale(t *testing.T) {
	a := newArea(t)

	old, err := a.WriteFile(".mp3", []byte("x"))
	require.NoError(t, err)
	oldDir, err := a.NewDir("hls")
	require.NoError(t, err)
	fresh, err := a.WriteFile(".mp3", []byte("y"))
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.Path, past, past))
	require.NoError(t, os.Chtimes(oldDir.Path, past, past))

	res := CleanStale(context.Background(), a.Root(), time.Hour, zerolog.Nop())
	assert.ElementsMatch(t, []string{old.Path, oldDir.Path}, res.Removed)
	assert.Empty(t, res.Errors)

	_, err = os.Stat(fresh.Path)
	assert.NoError(t, err)
}

func TestCleanStale_MissingDir(t *testing.T) {
	res := CleanStale(context.Background(), filepath.Join(t.TempDir(), "nope"), time.Hour, zerolog.Nop())
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Errors)
}
