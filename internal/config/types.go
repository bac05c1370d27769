// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Supported metadata database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// FileConfig represents the YAML configuration structure.
// Durations are strings in Go duration format (e.g. "30s").
type FileConfig struct {
	LogLevel   string `yaml:"logLevel,omitempty"`
	LogService string `yaml:"logService,omitempty"`

	Server    ServerFileConfig    `yaml:"server,omitempty"`
	Database  DatabaseFileConfig  `yaml:"database,omitempty"`
	Remote    RemoteFileConfig    `yaml:"remote,omitempty"`
	FFmpeg    FFmpegFileConfig    `yaml:"ffmpeg,omitempty"`
	Staging   StagingFileConfig   `yaml:"staging,omitempty"`
	Pipeline  PipelineFileConfig  `yaml:"pipeline,omitempty"`
	Auth      AuthFileConfig      `yaml:"auth,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

// ServerFileConfig holds HTTP listener settings.
type ServerFileConfig struct {
	ListenAddr      string `yaml:"listenAddr,omitempty"`
	PublicBaseURL   string `yaml:"publicBaseUrl,omitempty"`
	ReadTimeout     string `yaml:"readTimeout,omitempty"`
	WriteTimeout    string `yaml:"writeTimeout,omitempty"`
	ShutdownTimeout string `yaml:"shutdownTimeout,omitempty"`
	MaxUploadBytes  int64  `yaml:"maxUploadBytes,omitempty"`
	UploadRateLimit int    `yaml:"uploadRateLimit,omitempty"` // requests per minute per IP
}

// DatabaseFileConfig selects and configures the metadata store.
type DatabaseFileConfig struct {
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
}

// RemoteFileConfig configures the SFTP content store.
type RemoteFileConfig struct {
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	Username       string `yaml:"username,omitempty"`
	Password       string `yaml:"password,omitempty"`
	PrivateKeyPath string `yaml:"privateKeyPath,omitempty"`
	KnownHostsPath string `yaml:"knownHostsPath,omitempty"`
	Root           string `yaml:"root,omitempty"`
	DialTimeout    string `yaml:"dialTimeout,omitempty"`
	OpTimeout      string `yaml:"opTimeout,omitempty"`
}

// FFmpegFileConfig configures the transcoder subprocess.
type FFmpegFileConfig struct {
	Bin             string `yaml:"bin,omitempty"`
	AudioBitrate    string `yaml:"audioBitrate,omitempty"`
	SegmentDuration int    `yaml:"segmentDuration,omitempty"`
	Timeout         string `yaml:"timeout,omitempty"`
}

// StagingFileConfig configures the local staging area.
type StagingFileConfig struct {
	Dir           string `yaml:"dir,omitempty"`
	MaxAge        string `yaml:"maxAge,omitempty"`
	SweepInterval string `yaml:"sweepInterval,omitempty"`
}

// PipelineFileConfig bounds a whole orchestrator run.
type PipelineFileConfig struct {
	Timeout          string `yaml:"timeout,omitempty"`
	PlayEventTimeout string `yaml:"playEventTimeout,omitempty"`
	CoverMaxDim      int    `yaml:"coverMaxDim,omitempty"`
}

// AuthFileConfig maps static bearer tokens to user ids.
type AuthFileConfig struct {
	Tokens map[string]int64 `yaml:"tokens,omitempty"`
}

// TelemetryFileConfig configures OpenTelemetry tracing.
type TelemetryFileConfig struct {
	Enabled      *bool   `yaml:"enabled,omitempty"`
	Exporter     string  `yaml:"exporter,omitempty"`
	Endpoint     string  `yaml:"endpoint,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty"`
	Environment  string  `yaml:"environment,omitempty"`
}

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version    string
	LogLevel   string
	LogService string

	Server    ServerConfig
	Database  DatabaseConfig
	Remote    RemoteConfig
	FFmpeg    FFmpegConfig
	Staging   StagingConfig
	Pipeline  PipelineConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	ListenAddr      string
	PublicBaseURL   string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	UploadRateLimit int
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type RemoteConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	KnownHostsPath string
	Root           string
	DialTimeout    time.Duration
	OpTimeout      time.Duration
}

type FFmpegConfig struct {
	Bin             string
	AudioBitrate    string
	SegmentDuration int
	Timeout         time.Duration
}

type StagingConfig struct {
	Dir           string
	MaxAge        time.Duration
	SweepInterval time.Duration
}

type PipelineConfig struct {
	Timeout          time.Duration
	PlayEventTimeout time.Duration
	CoverMaxDim      int
}

type AuthConfig struct {
	Tokens map[string]int64
}

type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
	Environment  string
}
