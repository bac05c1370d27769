// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRunner emits a manifest and n segments into the directory named by the
// last ffmpeg argument.
type fakeRunner struct {
	segments    int
	skipSegment int // index of a segment not written; -1 for none
	err         error
	stderr      string
	block       bool
	unfinished  bool   // omit the VOD type and end tags
	extinf      string // EXTINF value; "5.000000" when empty
	gotArgs     []string
	gotBin      string
}

func (f *fakeRunner) Run(ctx context.Context, bin string, args []string) (string, error) {
	f.gotBin, f.gotArgs = bin, args
	if f.block {
		<-ctx.Done()
		return f.stderr, ctx.Err()
	}
	if f.err != nil {
		return f.stderr, f.err
	}
	manifest := args[len(args)-1]
	dir := filepath.Dir(manifest)
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-TARGETDURATION:5\n")
	if !f.unfinished {
		b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	}
	extinf := f.extinf
	if extinf == "" {
		extinf = "5.000000"
	}
	for i := 0; i < f.segments; i++ {
		name := fmt.Sprintf("seg%05d.ts", i)
		fmt.Fprintf(&b, "#EXTINF:%s,\n%s\n", extinf, name)
		if i == f.skipSegment {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte{0x47}, 0o600); err != nil {
			return "", err
		}
	}
	if !f.unfinished {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return f.stderr, os.WriteFile(manifest, []byte(b.String()), 0o600)
}

func inputFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "in.mp3")
	require.NoError(t, os.WriteFile(p, []byte("ID3"), 0o600))
	return p
}

func TestArgs(t *testing.T) {
	got := Args("/in.mp3", "/out", 5, "192k")
	want := []string{
		"-y", "-nostdin", "-hide_banner",
		"-i", "/in.mp3",
		"-vn",
		"-c:a", "aac",
		"-b:a", "192k",
		"-hls_time", "5",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", "/out/seg%05d.ts",
		"/out/playlist.m3u8",
	}
	assert.Equal(t, want, got)
}

func TestTranscode_Success(t *testing.T) {
	runner := &fakeRunner{segments: 5, skipSegment: -1}
	tr := New(Config{Bin: "/usr/bin/ffmpeg"}, runner)
	out := filepath.Join(t.TempDir(), "hls", "nested")

	manifest, err := tr.Transcode(context.Background(), inputFile(t), out, 0)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "playlist.m3u8"), manifest)
	assert.Equal(t, "/usr/bin/ffmpeg", runner.gotBin)
	assert.Contains(t, strings.Join(runner.gotArgs, " "), "-hls_time 5")
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 6)
}

func TestTranscode_MissingInput(t *testing.T) {
	tr := New(Config{}, &fakeRunner{segments: 1, skipSegment: -1})

	_, err := tr.Transcode(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"), t.TempDir(), 5)
	require.ErrorIs(t, err, ErrTranscodeFailed)
	var fe *FailedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ReasonInput, fe.Reason)
}

func TestTranscode_InputIsDirectory(t *testing.T) {
	tr := New(Config{}, &fakeRunner{segments: 1, skipSegment: -1})

	_, err := tr.Transcode(context.Background(), t.TempDir(), t.TempDir(), 5)
	var fe *FailedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ReasonInput, fe.Reason)
}

func TestTranscode_NonZeroExitCarriesStderr(t *testing.T) {
	runner := &fakeRunner{err: errors.New("exit status 1"), stderr: "Invalid data found when processing input\n"}
	tr := New(Config{}, runner)

	_, err := tr.Transcode(context.Background(), inputFile(t), t.TempDir(), 5)
	var fe *FailedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ReasonExit, fe.Reason)
	assert.Contains(t, fe.Stderr, "Invalid data")
	assert.ErrorIs(t, err, ErrTranscodeFailed)
}

func TestTranscode_Timeout(t *testing.T) {
	tr := New(Config{Timeout: 20 * time.Millisecond}, &fakeRunner{block: true})

	_, err := tr.Transcode(context.Background(), inputFile(t), t.TempDir(), 5)
	var fe *FailedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ReasonTimeout, fe.Reason)
}

func TestTranscode_MissingSegment(t *testing.T) {
	tr := New(Config{}, &fakeRunner{segments: 3, skipSegment: 1})

	_, err := tr.Transcode(context.Background(), inputFile(t), t.TempDir(), 5)
	var fe *FailedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ReasonOutput, fe.Reason)
	assert.Contains(t, fe.Error(), "seg00001.ts")
}

func TestTranscode_RejectsUnfinishedOrEmptyManifest(t *testing.T) {
	cases := map[string]*fakeRunner{
		"no end tag":    {segments: 2, skipSegment: -1, unfinished: true},
		"zero duration": {segments: 2, skipSegment: -1, extinf: "0"},
		"bad EXTINF":    {segments: 2, skipSegment: -1, extinf: "abc"},
	}
	for name, runner := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(Config{}, runner).Transcode(context.Background(), inputFile(t), t.TempDir(), 5)
			var fe *FailedError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, ReasonOutput, fe.Reason)
		})
	}
}

func TestTranscode_NoManifest(t *testing.T) {
	runner := runnerFunc(func(context.Context, string, []string) (string, error) { return "", nil })
	tr := New(Config{}, runner)

	_, err := tr.Transcode(context.Background(), inputFile(t), t.TempDir(), 5)
	var fe *FailedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ReasonOutput, fe.Reason)
}

type runnerFunc func(ctx context.Context, bin string, args []string) (string, error)

func (f runnerFunc) Run(ctx context.Context, bin string, args []string) (string, error) {
	return f(ctx, bin, args)
}

func TestExecRunner_CapturesStderr(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	stderr, err := ExecRunner{}.Run(context.Background(), "/bin/sh", []string{"-c", "echo boom >&2; exit 3"})
	require.Error(t, err)
	assert.Equal(t, "boom\n", stderr)
}

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}

func TestLastLines(t *testing.T) {
	assert.Equal(t, "c\nd", lastLines("a\nb\nc\nd\n", 2))
	assert.Equal(t, "a", lastLines("a", 3))
}
