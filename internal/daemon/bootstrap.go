// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skyfy/skyfy/internal/api"
	"github.com/skyfy/skyfy/internal/auth"
	"github.com/skyfy/skyfy/internal/config"
	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/metadata"
	"github.com/skyfy/skyfy/internal/pipeline"
	"github.com/skyfy/skyfy/internal/remotestore"
	"github.com/skyfy/skyfy/internal/staging"
	"github.com/skyfy/skyfy/internal/telemetry"
	"github.com/skyfy/skyfy/internal/transcoder"
)

type options struct {
	remote pipeline.Remote
	runner transcoder.Runner
}

// Option overrides a collaborator built by Build.
type Option func(*options)

// WithRemote replaces the SSH-backed remote store.
func WithRemote(r pipeline.Remote) Option { return func(o *options) { o.remote = r } }

// WithRunner replaces the ffmpeg subprocess runner.
func WithRunner(r transcoder.Runner) Option { return func(o *options) { o.runner = r } }

// Services are the wired pipeline collaborators shared by the server and
// the one-shot CLI commands.
type Services struct {
	Metadata     *metadata.Store
	Staging      *staging.Area
	Orchestrator *pipeline.Orchestrator
	Reads        *pipeline.Pipeline

	telemetry      *telemetry.Provider
	remote         pipeline.Remote
	reservationTTL time.Duration
}

// PurgeAbandoned deletes reservations older than twice the pipeline timeout,
// which no live run can still own, and then their remote folders. Folder
// removal is best effort; purged ids are never reused.
func (s *Services) PurgeAbandoned(ctx context.Context) ([]int64, error) {
	if s.reservationTTL <= 0 {
		return nil, nil
	}
	ids, err := s.Metadata.PurgeAbandoned(ctx, time.Now().Add(-s.reservationTTL))
	if err != nil {
		return nil, err
	}
	logger := log.WithComponent("daemon")
	for _, id := range ids {
		err := s.remote.WithSession(ctx, func(sess *remotestore.Session) error {
			return sess.DeleteRecursive(ctx, remotestore.ContentDir(id))
		})
		if err != nil {
			logger.Warn().Err(err).
				Str(log.FieldEvent, "metadata.purge_remote_failed").
				Int64(log.FieldContentID, id).
				Msg("remote folder of abandoned upload not removed")
		}
	}
	return ids, nil
}

// Close drains play events and releases the database and tracer.
func (s *Services) Close(ctx context.Context) error {
	return errors.Join(
		waitWithContext(ctx, s.Reads.Wait),
		s.Metadata.Close(),
		s.telemetry.Shutdown(ctx),
	)
}

// NewServices opens the metadata store (migrating it), the staging area and
// the remote store, and wires the pipeline over them.
func NewServices(ctx context.Context, cfg config.AppConfig, opts ...Option) (_ *Services, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var cleanup []func(context.Context) error
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i](context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.FromAppConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	cleanup = append(cleanup, tp.Shutdown)

	store, err := metadata.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, metadata.DefaultOptions())
	if err != nil {
		return nil, err
	}
	cleanup = append(cleanup, func(context.Context) error { return store.Close() })
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	area, err := staging.New(cfg.Staging.Dir)
	if err != nil {
		return nil, fmt.Errorf("staging: %w", err)
	}

	remote := o.remote
	if remote == nil {
		rs, err := remotestore.New(remotestore.FromAppConfig(cfg.Remote))
		if err != nil {
			return nil, fmt.Errorf("remote store: %w", err)
		}
		remote = rs
	}

	pcfg := pipeline.Config{
		SegmentSeconds:   cfg.FFmpeg.SegmentDuration,
		CoverMaxDim:      cfg.Pipeline.CoverMaxDim,
		Timeout:          cfg.Pipeline.Timeout,
		PlayEventTimeout: cfg.Pipeline.PlayEventTimeout,
	}
	deps := pipeline.Deps{
		Staging: area,
		Transcoder: transcoder.New(transcoder.Config{
			Bin:          cfg.FFmpeg.Bin,
			AudioBitrate: cfg.FFmpeg.AudioBitrate,
			Timeout:      cfg.FFmpeg.Timeout,
		}, o.runner),
		Remote:   remote,
		Metadata: pipeline.FromMetadataStore(store),
	}
	return &Services{
		Metadata:       store,
		Staging:        area,
		Orchestrator:   pipeline.NewOrchestrator(pcfg, deps),
		Reads:          pipeline.New(pcfg, deps),
		telemetry:      tp,
		remote:         remote,
		reservationTTL: 2 * cfg.Pipeline.Timeout,
	}, nil
}

// Build wires the whole service from cfg. Resources opened here are released
// by the manager's shutdown hooks, or immediately if Build fails.
func Build(ctx context.Context, cfg config.AppConfig, opts ...Option) (*App, error) {
	logger := log.WithComponent("daemon")

	svc, err := NewServices(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}

	resolver := auth.NewResolver(cfg.Auth.Tokens)
	if resolver.Len() == 0 {
		logger.Warn().Str(log.FieldEvent, "auth.no_tokens").Msg("no API tokens configured; authenticated routes will reject every request")
	}
	srv := api.New(api.FromAppConfig(cfg), api.Deps{
		Writer:   svc.Orchestrator,
		Reader:   svc.Reads,
		Resolver: resolver,
		Health:   svc.Metadata,
	})

	mgr, err := NewManager(cfg.Server, Deps{Logger: logger, Handler: srv.Handler()})
	if err != nil {
		_ = svc.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	mgr.RegisterShutdownHook("services", svc.Close)

	logger.Info().
		Str(log.FieldEvent, "daemon.built").
		Str("driver", svc.Metadata.Driver()).
		Str("staging", svc.Staging.Root()).
		Int("tokens", resolver.Len()).
		Msg("service wired")
	return NewApp(logger, mgr, NewSweeper(cfg.Staging).WithReservationPurge(svc)), nil
}

// waitWithContext runs wait and gives up when ctx ends.
func waitWithContext(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("gave up waiting"), ctx.Err())
	}
}
