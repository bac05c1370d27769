// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, format string, args ...any) {
	v.fields = append(v.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) notEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "value cannot be empty")
	}
}

func (v *validator) oneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.add(field, "value must be one of %v, got %q", allowed, value)
}

func (v *validator) port(field string, port int) {
	if port <= 0 || port > 65535 {
		v.add(field, "port must be between 1 and 65535, got %d", port)
	}
}

func (v *validator) positive(field string, value int64) {
	if value <= 0 {
		v.add(field, "value must be positive, got %d", value)
	}
}

func (v *validator) positiveDuration(field string, d time.Duration) {
	if d <= 0 {
		v.add(field, "duration must be positive, got %s", d)
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

// Validate checks a resolved AppConfig and reports every problem at once.
func Validate(cfg AppConfig) error {
	v := &validator{}

	v.oneOf("logLevel", cfg.LogLevel, "debug", "info", "warn", "error")
	v.notEmpty("server.listenAddr", cfg.Server.ListenAddr)
	if base := strings.TrimSpace(cfg.Server.PublicBaseURL); base != "" {
		u, err := url.Parse(base)
		switch {
		case err != nil:
			v.add("server.publicBaseUrl", "invalid URL: %v", err)
		case u.Scheme != "http" && u.Scheme != "https":
			v.add("server.publicBaseUrl", "unsupported URL scheme %q", u.Scheme)
		case u.Host == "":
			v.add("server.publicBaseUrl", "URL must have a host")
		}
	}
	v.positive("server.maxUploadBytes", cfg.Server.MaxUploadBytes)
	v.positive("server.uploadRateLimit", int64(cfg.Server.UploadRateLimit))
	v.positiveDuration("server.shutdownTimeout", cfg.Server.ShutdownTimeout)

	v.oneOf("database.driver", cfg.Database.Driver, DriverSQLite, DriverPostgres)
	v.notEmpty("database.dsn", cfg.Database.DSN)

	v.notEmpty("remote.host", cfg.Remote.Host)
	if strings.Contains(cfg.Remote.Host, "://") || strings.Contains(cfg.Remote.Host, "/") {
		v.add("remote.host", "host must not contain a scheme or path")
	}
	v.port("remote.port", cfg.Remote.Port)
	v.notEmpty("remote.username", cfg.Remote.Username)
	if cfg.Remote.Password == "" && cfg.Remote.PrivateKeyPath == "" {
		v.add("remote.password", "either password or privateKeyPath is required")
	}
	v.positiveDuration("remote.dialTimeout", cfg.Remote.DialTimeout)
	v.positiveDuration("remote.opTimeout", cfg.Remote.OpTimeout)

	v.notEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)
	v.positive("ffmpeg.segmentDuration", int64(cfg.FFmpeg.SegmentDuration))
	v.positiveDuration("ffmpeg.timeout", cfg.FFmpeg.Timeout)

	v.notEmpty("staging.dir", cfg.Staging.Dir)
	v.positiveDuration("staging.maxAge", cfg.Staging.MaxAge)
	v.positiveDuration("staging.sweepInterval", cfg.Staging.SweepInterval)

	v.positiveDuration("pipeline.timeout", cfg.Pipeline.Timeout)
	v.positiveDuration("pipeline.playEventTimeout", cfg.Pipeline.PlayEventTimeout)
	v.positive("pipeline.coverMaxDim", int64(cfg.Pipeline.CoverMaxDim))

	for token, uid := range cfg.Auth.Tokens {
		if strings.TrimSpace(token) == "" {
			v.add("auth.tokens", "empty token")
		}
		if uid <= 0 {
			v.add("auth.tokens", "user id must be positive")
		}
	}

	if cfg.Telemetry.Enabled {
		v.oneOf("telemetry.exporter", cfg.Telemetry.Exporter, "grpc", "http")
		v.notEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
	}

	return v.err()
}
