// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the skyfy runtime configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// DefaultMaxUploadBytes caps a multipart upload request.
const DefaultMaxUploadBytes int64 = 500_000_000

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   "info",
		LogService: "skyfy",
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     5 * time.Minute,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  DefaultMaxUploadBytes,
			UploadRateLimit: 30,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "skyfy.db",
		},
		Remote: RemoteConfig{
			Port:        22,
			DialTimeout: 10 * time.Second,
			OpTimeout:   2 * time.Minute,
		},
		FFmpeg: FFmpegConfig{
			Bin:             "ffmpeg",
			AudioBitrate:    "192k",
			SegmentDuration: 5,
			Timeout:         10 * time.Minute,
		},
		Staging: StagingConfig{
			Dir:           filepath.Join(os.TempDir(), "skyfy-staging"),
			MaxAge:        6 * time.Hour,
			SweepInterval: 30 * time.Minute,
		},
		Pipeline: PipelineConfig{
			Timeout:          20 * time.Minute,
			PlayEventTimeout: 10 * time.Second,
			CoverMaxDim:      250,
		},
		Auth: AuthConfig{Tokens: map[string]int64{}},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}

// Load loads configuration: defaults, then the YAML file (strict), then the
// environment, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if abs, err := filepath.Abs(cfg.Staging.Dir); err == nil {
		cfg.Staging.Dir = abs
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile loads configuration from a YAML file with strict parsing.
// Unknown fields cause a fatal error to prevent silent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.LogService, f.LogService)

	setString(&cfg.Server.ListenAddr, f.Server.ListenAddr)
	setString(&cfg.Server.PublicBaseURL, f.Server.PublicBaseURL)
	if f.Server.MaxUploadBytes > 0 {
		cfg.Server.MaxUploadBytes = f.Server.MaxUploadBytes
	}
	if f.Server.UploadRateLimit > 0 {
		cfg.Server.UploadRateLimit = f.Server.UploadRateLimit
	}

	setString(&cfg.Database.Driver, f.Database.Driver)
	setString(&cfg.Database.DSN, f.Database.DSN)

	setString(&cfg.Remote.Host, f.Remote.Host)
	if f.Remote.Port != 0 {
		cfg.Remote.Port = f.Remote.Port
	}
	setString(&cfg.Remote.Username, f.Remote.Username)
	setString(&cfg.Remote.Password, f.Remote.Password)
	setString(&cfg.Remote.PrivateKeyPath, f.Remote.PrivateKeyPath)
	setString(&cfg.Remote.KnownHostsPath, f.Remote.KnownHostsPath)
	setString(&cfg.Remote.Root, f.Remote.Root)

	setString(&cfg.FFmpeg.Bin, f.FFmpeg.Bin)
	setString(&cfg.FFmpeg.AudioBitrate, f.FFmpeg.AudioBitrate)
	if f.FFmpeg.SegmentDuration != 0 {
		cfg.FFmpeg.SegmentDuration = f.FFmpeg.SegmentDuration
	}

	setString(&cfg.Staging.Dir, f.Staging.Dir)
	if f.Pipeline.CoverMaxDim != 0 {
		cfg.Pipeline.CoverMaxDim = f.Pipeline.CoverMaxDim
	}

	if len(f.Auth.Tokens) > 0 {
		cfg.Auth.Tokens = make(map[string]int64, len(f.Auth.Tokens))
		for k, v := range f.Auth.Tokens {
			cfg.Auth.Tokens[k] = v
		}
	}

	if f.Telemetry.Enabled != nil {
		cfg.Telemetry.Enabled = *f.Telemetry.Enabled
	}
	setString(&cfg.Telemetry.Exporter, f.Telemetry.Exporter)
	setString(&cfg.Telemetry.Endpoint, f.Telemetry.Endpoint)
	setString(&cfg.Telemetry.Environment, f.Telemetry.Environment)
	if f.Telemetry.SamplingRate != 0 {
		cfg.Telemetry.SamplingRate = f.Telemetry.SamplingRate
	}

	durations := []struct {
		dst   *time.Duration
		field string
		raw   string
	}{
		{&cfg.Server.ReadTimeout, "server.readTimeout", f.Server.ReadTimeout},
		{&cfg.Server.WriteTimeout, "server.writeTimeout", f.Server.WriteTimeout},
		{&cfg.Server.ShutdownTimeout, "server.shutdownTimeout", f.Server.ShutdownTimeout},
		{&cfg.Remote.DialTimeout, "remote.dialTimeout", f.Remote.DialTimeout},
		{&cfg.Remote.OpTimeout, "remote.opTimeout", f.Remote.OpTimeout},
		{&cfg.FFmpeg.Timeout, "ffmpeg.timeout", f.FFmpeg.Timeout},
		{&cfg.Staging.MaxAge, "staging.maxAge", f.Staging.MaxAge},
		{&cfg.Staging.SweepInterval, "staging.sweepInterval", f.Staging.SweepInterval},
		{&cfg.Pipeline.Timeout, "pipeline.timeout", f.Pipeline.Timeout},
		{&cfg.Pipeline.PlayEventTimeout, "pipeline.playEventTimeout", f.Pipeline.PlayEventTimeout},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.field, d.raw); err != nil {
			return err
		}
	}
	return nil
}

func mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = ParseString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString(EnvPrefix+"LOG_SERVICE", cfg.LogService)

	cfg.Server.ListenAddr = ParseString(EnvPrefix+"LISTEN", cfg.Server.ListenAddr)
	cfg.Server.PublicBaseURL = ParseString(EnvPrefix+"PUBLIC_BASE_URL", cfg.Server.PublicBaseURL)
	cfg.Server.ReadTimeout = ParseDuration(EnvPrefix+"READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = ParseDuration(EnvPrefix+"WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = ParseDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.MaxUploadBytes = ParseInt64(EnvPrefix+"MAX_UPLOAD_BYTES", cfg.Server.MaxUploadBytes)
	cfg.Server.UploadRateLimit = ParseInt(EnvPrefix+"UPLOAD_RATE_LIMIT", cfg.Server.UploadRateLimit)

	cfg.Database.Driver = ParseString(EnvPrefix+"DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = ParseString(EnvPrefix+"DB_DSN", cfg.Database.DSN)

	cfg.Remote.Host = ParseString(EnvPrefix+"REMOTE_HOST", cfg.Remote.Host)
	cfg.Remote.Port = ParseInt(EnvPrefix+"REMOTE_PORT", cfg.Remote.Port)
	cfg.Remote.Username = ParseString(EnvPrefix+"REMOTE_USERNAME", cfg.Remote.Username)
	cfg.Remote.Password = ParseString(EnvPrefix+"REMOTE_PASSWORD", cfg.Remote.Password)
	cfg.Remote.PrivateKeyPath = ParseString(EnvPrefix+"REMOTE_PRIVATE_KEY", cfg.Remote.PrivateKeyPath)
	cfg.Remote.KnownHostsPath = ParseString(EnvPrefix+"REMOTE_KNOWN_HOSTS", cfg.Remote.KnownHostsPath)
	cfg.Remote.Root = ParseString(EnvPrefix+"REMOTE_ROOT", cfg.Remote.Root)
	cfg.Remote.DialTimeout = ParseDuration(EnvPrefix+"REMOTE_DIAL_TIMEOUT", cfg.Remote.DialTimeout)
	cfg.Remote.OpTimeout = ParseDuration(EnvPrefix+"REMOTE_OP_TIMEOUT", cfg.Remote.OpTimeout)

	cfg.FFmpeg.Bin = ParseString(EnvPrefix+"FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.AudioBitrate = ParseString(EnvPrefix+"FFMPEG_AUDIO_BITRATE", cfg.FFmpeg.AudioBitrate)
	cfg.FFmpeg.SegmentDuration = ParseInt(EnvPrefix+"SEGMENT_DURATION", cfg.FFmpeg.SegmentDuration)
	cfg.FFmpeg.Timeout = ParseDuration(EnvPrefix+"FFMPEG_TIMEOUT", cfg.FFmpeg.Timeout)

	cfg.Staging.Dir = ParseString(EnvPrefix+"STAGING_DIR", cfg.Staging.Dir)
	cfg.Staging.MaxAge = ParseDuration(EnvPrefix+"STAGING_MAX_AGE", cfg.Staging.MaxAge)
	cfg.Staging.SweepInterval = ParseDuration(EnvPrefix+"STAGING_SWEEP_INTERVAL", cfg.Staging.SweepInterval)

	cfg.Pipeline.Timeout = ParseDuration(EnvPrefix+"PIPELINE_TIMEOUT", cfg.Pipeline.Timeout)
	cfg.Pipeline.PlayEventTimeout = ParseDuration(EnvPrefix+"PLAY_EVENT_TIMEOUT", cfg.Pipeline.PlayEventTimeout)
	cfg.Pipeline.CoverMaxDim = ParseInt(EnvPrefix+"COVER_MAX_DIM", cfg.Pipeline.CoverMaxDim)

	cfg.Telemetry.Enabled = ParseBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
