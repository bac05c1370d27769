// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalYAML = `
remote:
  host: files.internal
  username: skyfy
  password: secret
`

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
ffmpeg:
  timeout: 90s
server:
  publicBaseUrl: https://cdn.example.com/content
auth:
  tokens:
    tok-1: 7
`)

	cfg, err := NewLoader(path, "v-test").Load()
	require.NoError(t, err)

	assert.Equal(t, "v-test", cfg.Version)
	assert.Equal(t, "files.internal", cfg.Remote.Host)
	assert.Equal(t, 22, cfg.Remote.Port)
	assert.Equal(t, 90*time.Second, cfg.FFmpeg.Timeout)
	assert.Equal(t, 5, cfg.FFmpeg.SegmentDuration)
	assert.Equal(t, 250, cfg.Pipeline.CoverMaxDim)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "https://cdn.example.com/content", cfg.Server.PublicBaseURL)
	assert.Equal(t, int64(7), cfg.Auth.Tokens["tok-1"])
	assert.True(t, filepath.IsAbs(cfg.Staging.Dir))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	t.Setenv("SKYFY_REMOTE_HOST", "sftp.override")
	t.Setenv("SKYFY_SEGMENT_DURATION", "6")
	t.Setenv("SKYFY_REMOTE_OP_TIMEOUT", "45s")
	t.Setenv("SKYFY_DB_DRIVER", "postgres")
	t.Setenv("SKYFY_DB_DSN", "postgres://u:p@db/skyfy?sslmode=disable")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, "sftp.override", cfg.Remote.Host)
	assert.Equal(t, 6, cfg.FFmpeg.SegmentDuration)
	assert.Equal(t, 45*time.Second, cfg.Remote.OpTimeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
}

func TestLoad_InvalidEnvFallsBackToDefault(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	t.Setenv("SKYFY_SEGMENT_DURATION", "five")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.FFmpeg.SegmentDuration)
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	path := writeConfig(t, minimalYAML+"\nbogus: true\n")

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_MultipleDocumentsRejected(t *testing.T) {
	path := writeConfig(t, minimalYAML+"\n---\nlogLevel: debug\n")

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestLoad_BadDurationInFile(t *testing.T) {
	path := writeConfig(t, minimalYAML+"\npipeline:\n  timeout: soon\n")

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.timeout")
}

func TestLoad_RejectsNonYAMLExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only YAML supported")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Driver = "mysql"
	cfg.FFmpeg.Timeout = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))

	fields := map[string]bool{}
	for _, f := range verr.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"database.driver", "ffmpeg.timeout", "remote.host", "remote.username", "remote.password"} {
		assert.True(t, fields[want], "expected error for %s", want)
	}
}

func TestValidate_PublicBaseURL(t *testing.T) {
	cfg := Defaults()
	cfg.Remote.Host = "h"
	cfg.Remote.Username = "u"
	cfg.Remote.Password = "p"

	cfg.Server.PublicBaseURL = "ftp://example.com"
	require.Error(t, Validate(cfg))

	cfg.Server.PublicBaseURL = "http://example.com/content"
	require.NoError(t, Validate(cfg))
}

func TestLoad_PlayEventTimeout(t *testing.T) {
	path := writeConfig(t, minimalYAML+"\npipeline:\n  playEventTimeout: 3s\n")
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.PlayEventTimeout)

	t.Setenv("SKYFY_PLAY_EVENT_TIMEOUT", "750ms")
	cfg, err = NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Pipeline.PlayEventTimeout)

	assert.Equal(t, 10*time.Second, Defaults().Pipeline.PlayEventTimeout)
}
