// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline sequences ingestion (stage, reserve, transcode, remote
// commit, finalize) and serves playlists, segments and covers back.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyfy/skyfy/internal/cover"
	"github.com/skyfy/skyfy/internal/hls"
	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/metadata"
	"github.com/skyfy/skyfy/internal/metrics"
	"github.com/skyfy/skyfy/internal/remotestore"
	"github.com/skyfy/skyfy/internal/saga"
	"github.com/skyfy/skyfy/internal/staging"
	"github.com/skyfy/skyfy/internal/telemetry"
)

// State is a position in the upload state machine.
type State string

const (
	StateStaged            State = "staged"
	StateMetadataReserved  State = "metadata_reserved"
	StateTranscoded        State = "transcoded"
	StateRemoteCommitted   State = "remote_committed"
	StateMetadataFinalized State = "metadata_finalized"
	StateRolledBack        State = "rolled_back"
)

// Step names, also used as metric and log labels.
const (
	stepReserve      = "reserve"
	stepTranscode    = "transcode"
	stepRemoteCommit = "remote_commit"
	stepFinalize     = "finalize"
	stepEnsureFolder = "ensure_folder"
	stepClearHLS     = "clear_hls"
	stepUploadHLS    = "upload_hls"
)

// UploadRequest is one full ingestion.
type UploadRequest struct {
	OwnerID       int64
	Name          string
	Audio         io.Reader
	AudioFilename string
	// Cover is optional unless RequireCover is set.
	Cover         io.Reader
	CoverFilename string
	RequireCover  bool
}

// UploadResult describes a finished ingestion.
type UploadResult struct {
	Item     metadata.ContentItem
	State    State
	Uploaded int
}

// Orchestrator runs the write paths.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// NewOrchestrator wires the write paths.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: log.WithComponent("orchestrator"),
	}
}

// workContext detaches from caller cancellation and bounds the run with the
// pipeline timeout.
func (o *Orchestrator) workContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Timeout)
}

type stepObserver struct{}

func (stepObserver) StepDone(name string, d time.Duration, err error) {
	metrics.ObserveStep(name, d, err)
}

func (stepObserver) Compensated(name string, err error) {
	if err != nil {
		metrics.IncCompensationError(name)
	}
}

// stagedUpload is the local input of one run. Remove is safe on partial values.
type stagedUpload struct {
	audio *staging.File
	cover *staging.File
}

func (s *stagedUpload) Remove() {
	_ = s.audio.Remove()
	_ = s.cover.Remove()
}

func (o *Orchestrator) stage(req UploadRequest) (*stagedUpload, error) {
	const op = "upload.stage"
	out := &stagedUpload{}
	if req.Audio == nil {
		return out, newError(KindEmptyUpload, op, staging.ErrEmptyPayload)
	}
	if req.Cover == nil && req.RequireCover {
		return out, newError(KindInvalidCoverFormat, op, errors.New("cover is required"))
	}
	if req.Cover != nil {
		if err := cover.ValidateExtension(req.CoverFilename); err != nil {
			return out, classify(op, err, KindInvalidCoverFormat)
		}
	}

	audio, _, err := o.deps.Staging.Stage(req.Audio, filepath.Ext(req.AudioFilename))
	if err != nil {
		return out, classify(op, err, KindInvalidRequest)
	}
	out.audio = audio

	if req.Cover != nil {
		processed, err := cover.Process(req.Cover, o.cfg.CoverMaxDim)
		if err != nil {
			return out, classify(op, err, KindInvalidCoverFormat)
		}
		f, err := o.deps.Staging.WriteFile(".jpg", processed)
		if err != nil {
			return out, classify(op, err, KindInternal)
		}
		out.cover = f
	}
	return out, nil
}

// reserveStep inserts the row and compensates by rolling the transaction back
// first and then removing the remote folder. Remote cleanup is best effort.
func (o *Orchestrator) reserveStep(ownerID int64, name string, res *Reservation) saga.Step[State] {
	return saga.Step[State]{
		Name:    stepReserve,
		Reached: StateMetadataReserved,
		Forward: func(ctx context.Context) error {
			r, err := o.deps.Metadata.Reserve(ctx, ownerID, name)
			if err != nil {
				return classify("upload.reserve", err, KindMetadataCommitFailed)
			}
			*res = r
			return nil
		},
		Compensate: func(ctx context.Context) error {
			r := *res
			rbErr := r.Rollback(ctx)
			o.cleanupRemote(ctx, remotestore.ContentDir(r.ID()), r.ID())
			return rbErr
		},
	}
}

func (o *Orchestrator) cleanupRemote(ctx context.Context, remotePath string, id int64) {
	err := o.deps.Remote.WithSession(ctx, func(s *remotestore.Session) error {
		return s.DeleteRecursive(ctx, remotePath)
	})
	logger := log.WithContext(ctx, o.logger)
	if err != nil {
		metrics.IncCompensationError("remote_cleanup")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "upload.remote_cleanup_failed").
			Int64(log.FieldContentID, id).
			Str(log.FieldRemotePath, remotePath).
			Msg("best-effort remote cleanup failed")
		return
	}
	logger.Debug().
		Str(log.FieldEvent, "upload.remote_cleanup").
		Int64(log.FieldContentID, id).
		Str(log.FieldRemotePath, remotePath).
		Msg("remote folder removed")
}

func (o *Orchestrator) finalizeStep(res *Reservation) saga.Step[State] {
	return saga.Step[State]{
		Name:    stepFinalize,
		Reached: StateMetadataFinalized,
		Forward: func(ctx context.Context) error {
			if err := (*res).Commit(ctx); err != nil {
				return newError(KindMetadataCommitFailed, "upload.finalize", err)
			}
			return nil
		},
	}
}

// UploadAll stages the audio (and cover), reserves a row, transcodes,
// uploads the rendition and cover, then commits the row. Any failure rolls
// the row back and removes the remote folder; staging is always removed.
func (o *Orchestrator) UploadAll(ctx context.Context, req UploadRequest) (result UploadResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.upload_all")
	span.SetAttributes(telemetry.ContentAttributes(0, req.OwnerID)...)
	defer func() {
		metrics.ObserveUpload("all", outcome(err))
		telemetry.EndSpan(span, err)
	}()

	staged, err := o.stage(req)
	defer staged.Remove()
	if err != nil {
		o.logFailure(ctx, "upload_all", StateStaged, "stage", 0, err)
		return UploadResult{State: StateRolledBack}, err
	}

	workCtx, cancel := o.workContext(ctx)
	defer cancel()

	var (
		res      Reservation
		hlsDir   *staging.Dir
		uploaded int
	)
	defer func() { _ = hlsDir.Remove() }()

	steps := []saga.Step[State]{
		o.reserveStep(req.OwnerID, req.Name, &res),
		{
			Name:    stepTranscode,
			Reached: StateTranscoded,
			Forward: func(ctx context.Context) error {
				var err error
				if hlsDir, err = o.deps.Staging.NewDir("hls"); err != nil {
					return newError(KindTranscodeFailed, "upload.transcode", err)
				}
				_, err = o.deps.Transcoder.Transcode(ctx, staged.audio.Path, hlsDir.Path, o.cfg.SegmentSeconds)
				if err != nil {
					return classify("upload.transcode", err, KindTranscodeFailed)
				}
				return nil
			},
		},
		{
			Name:    stepRemoteCommit,
			Reached: StateRemoteCommitted,
			Forward: func(ctx context.Context) error {
				n, err := o.commitRemote(ctx, res.ID(), hlsDir, staged.cover)
				uploaded = n
				if err != nil {
					return classify("upload.remote_commit", err, KindRemoteStoreUnavailable)
				}
				return nil
			},
		},
		o.finalizeStep(&res),
	}

	result, err = o.run(ctx, workCtx, "upload_all", steps, func() int64 {
		if res == nil {
			return 0
		}
		return res.ID()
	})
	if err != nil {
		return result, err
	}
	result.Item = metadata.ContentItem{ID: res.ID(), OwnerID: req.OwnerID, Name: metadata.NormalizeName(req.Name)}
	result.Uploaded = uploaded
	l := log.WithContext(ctx, o.logger)
	l.Info().
		Str(log.FieldEvent, "upload.completed").
		Int64(log.FieldContentID, res.ID()).
		Int64(log.FieldUserID, req.OwnerID).
		Int("uploaded", uploaded).
		Msg("content ingested")
	return result, nil
}

// commitRemote uploads every file of dir into {id}/hls and the cover into
// {id}/cover.jpg within one session. It returns the number of uploads.
func (o *Orchestrator) commitRemote(ctx context.Context, id int64, dir *staging.Dir, coverFile *staging.File) (int, error) {
	files, err := dir.Files()
	if err != nil {
		return 0, err
	}
	// segments before the manifest: a visible manifest implies its segments
	sort.SliceStable(files, func(i, j int) bool {
		return filepath.Base(files[j]) == hls.ManifestName && filepath.Base(files[i]) != hls.ManifestName
	})
	uploaded := 0
	err = o.deps.Remote.WithSession(ctx, func(s *remotestore.Session) error {
		if err := s.EnsureDirectory(ctx, remotestore.ContentDir(id)); err != nil {
			return err
		}
		if err := s.EnsureDirectory(ctx, remotestore.HLSDir(id)); err != nil {
			return err
		}
		for _, f := range files {
			if err := s.Upload(ctx, f, remotestore.SegmentPath(id, filepath.Base(f)), true); err != nil {
				return err
			}
			uploaded++
		}
		if coverFile != nil {
			if err := s.Upload(ctx, coverFile.Path, remotestore.CoverPath(id), true); err != nil {
				return err
			}
			uploaded++
		}
		return nil
	})
	return uploaded, err
}

// run executes steps as a saga on workCtx and logs the outcome.
func (o *Orchestrator) run(ctx, workCtx context.Context, op string, steps []saga.Step[State], id func() int64) (UploadResult, error) {
	sg, err := saga.New(StateStaged, StateRolledBack, steps...)
	if err != nil {
		return UploadResult{State: StateStaged}, newError(KindInternal, op, err)
	}
	// Compensations must still run when the failure was workCtx expiring.
	res := sg.Observe(stepObserver{}).Run(workCtx, context.WithoutCancel(workCtx))
	if res.Err == nil {
		return UploadResult{State: res.State}, nil
	}

	metrics.IncRollback(res.FailedStep)
	for _, cerr := range res.CompensationErrs {
		l := log.WithContext(ctx, o.logger)
		l.Warn().Err(cerr).
			Str(log.FieldEvent, "upload.compensation_failed").
			Str(log.FieldStep, res.FailedStep).
			Msg("compensation failed")
	}
	o.logFailure(ctx, op, res.State, res.FailedStep, id(), res.Err)
	return UploadResult{State: res.State}, classify(op, res.Err, KindInternal)
}

func (o *Orchestrator) logFailure(ctx context.Context, op string, state State, step string, id int64, err error) {
	l := log.WithContext(ctx, o.logger)
	ev := l.Warn().Err(err).
		Str(log.FieldEvent, "upload.rolled_back").
		Str("op", op).
		Str(log.FieldState, string(state)).
		Str(log.FieldStep, step).
		Str("kind", string(KindOf(err)))
	if id > 0 {
		ev = ev.Int64(log.FieldContentID, id)
	}
	ev.Msg("pipeline run failed")
}

// Create records a metadata-only item: row first, then folder, then commit.
func (o *Orchestrator) Create(ctx context.Context, ownerID int64, name string) (item metadata.ContentItem, err error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.create")
	defer func() {
		metrics.ObserveUpload("create", outcome(err))
		telemetry.EndSpan(span, err)
	}()

	workCtx, cancel := o.workContext(ctx)
	defer cancel()

	var res Reservation
	steps := []saga.Step[State]{
		o.reserveStep(ownerID, name, &res),
		{
			Name:    stepEnsureFolder,
			Reached: StateRemoteCommitted,
			Forward: func(ctx context.Context) error {
				err := o.deps.Remote.WithSession(ctx, func(s *remotestore.Session) error {
					return s.EnsureDirectory(ctx, remotestore.ContentDir(res.ID()))
				})
				if err != nil {
					return classify("create.ensure_folder", err, KindRemoteStoreUnavailable)
				}
				return nil
			},
		},
		o.finalizeStep(&res),
	}
	if _, err := o.run(ctx, workCtx, "create", steps, func() int64 {
		if res == nil {
			return 0
		}
		return res.ID()
	}); err != nil {
		return metadata.ContentItem{}, err
	}
	return metadata.ContentItem{ID: res.ID(), OwnerID: ownerID, Name: metadata.NormalizeName(name)}, nil
}

// owned loads id and checks that callerID owns it.
func (o *Orchestrator) owned(ctx context.Context, op string, callerID, id int64) (metadata.ContentItem, error) {
	item, err := o.deps.Metadata.Get(ctx, id)
	if err != nil {
		return metadata.ContentItem{}, classify(op, err, KindInternal)
	}
	if item.OwnerID != callerID {
		return metadata.ContentItem{}, newError(KindForbidden, op, nil)
	}
	return item, nil
}

// UploadAudio replaces the HLS rendition of an existing item owned by the
// caller. If the remote side fails after it started writing, {id}/hls is
// removed so no partial segment set is served.
func (o *Orchestrator) UploadAudio(ctx context.Context, callerID, id int64, audio io.Reader, filename string) (result UploadResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.upload_audio")
	span.SetAttributes(telemetry.ContentAttributes(id, callerID)...)
	defer func() {
		metrics.ObserveUpload("audio", outcome(err))
		telemetry.EndSpan(span, err)
	}()
	ctx = log.ContextWithContentID(ctx, id)

	item, err := o.owned(ctx, "upload_audio", callerID, id)
	if err != nil {
		return UploadResult{}, err
	}
	staged, err := o.stage(UploadRequest{OwnerID: callerID, Audio: audio, AudioFilename: filename})
	defer staged.Remove()
	if err != nil {
		return UploadResult{State: StateRolledBack}, err
	}

	workCtx, cancel := o.workContext(ctx)
	defer cancel()

	var (
		hlsDir   *staging.Dir
		uploaded int
	)
	defer func() { _ = hlsDir.Remove() }()

	steps := []saga.Step[State]{
		{
			Name:    stepTranscode,
			Reached: StateTranscoded,
			Forward: func(ctx context.Context) error {
				var err error
				if hlsDir, err = o.deps.Staging.NewDir("hls"); err != nil {
					return newError(KindTranscodeFailed, "upload_audio.transcode", err)
				}
				if _, err = o.deps.Transcoder.Transcode(ctx, staged.audio.Path, hlsDir.Path, o.cfg.SegmentSeconds); err != nil {
					return classify("upload_audio.transcode", err, KindTranscodeFailed)
				}
				return nil
			},
		},
		{
			Name:    stepClearHLS,
			Reached: StateTranscoded,
			Forward: func(ctx context.Context) error {
				// manifest first, so a partial clear never leaves a
				// manifest pointing at deleted segments
				err := o.deps.Remote.WithSession(ctx, func(s *remotestore.Session) error {
					if err := s.DeleteRecursive(ctx, remotestore.ManifestPath(id)); err != nil {
						return err
					}
					return s.DeleteRecursive(ctx, remotestore.HLSDir(id))
				})
				if err != nil {
					return classify("upload_audio.clear_hls", err, KindRemoteStoreUnavailable)
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				o.cleanupRemote(ctx, remotestore.HLSDir(id), id)
				return nil
			},
		},
		{
			Name:    stepUploadHLS,
			Reached: StateRemoteCommitted,
			Forward: func(ctx context.Context) error {
				n, err := o.commitRemote(ctx, id, hlsDir, nil)
				uploaded = n
				if err != nil {
					return classify("upload_audio.upload_hls", err, KindRemoteStoreUnavailable)
				}
				return nil
			},
		},
	}
	result, err = o.run(ctx, workCtx, "upload_audio", steps, func() int64 { return id })
	if err != nil {
		return result, err
	}
	result.Item = item
	result.Uploaded = uploaded
	return result, nil
}

// UploadCover replaces {id}/cover.jpg of an item owned by the caller with a
// normalised copy of r. Nothing is written remotely unless the image decodes.
func (o *Orchestrator) UploadCover(ctx context.Context, callerID, id int64, r io.Reader, filename string) (err error) {
	const op = "upload_cover"
	ctx, span := telemetry.StartSpan(ctx, "pipeline.upload_cover")
	span.SetAttributes(telemetry.ContentAttributes(id, callerID)...)
	defer func() {
		metrics.ObserveUpload("cover", outcome(err))
		telemetry.EndSpan(span, err)
	}()
	ctx = log.ContextWithContentID(ctx, id)

	if _, err := o.owned(ctx, op, callerID, id); err != nil {
		return err
	}
	if r == nil {
		return newError(KindEmptyUpload, op, staging.ErrEmptyPayload)
	}
	if err := cover.ValidateExtension(filename); err != nil {
		return classify(op, err, KindInvalidCoverFormat)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return classify(op, err, KindInvalidRequest)
	}
	if len(raw) == 0 {
		return newError(KindEmptyUpload, op, staging.ErrEmptyPayload)
	}
	processed, err := cover.Process(bytes.NewReader(raw), o.cfg.CoverMaxDim)
	if err != nil {
		return classify(op, err, KindInvalidCoverFormat)
	}
	staged, err := o.deps.Staging.WriteFile(".jpg", processed)
	if err != nil {
		return classify(op, err, KindInternal)
	}
	defer func() { _ = staged.Remove() }()

	workCtx, cancel := o.workContext(ctx)
	defer cancel()
	err = o.deps.Remote.WithSession(workCtx, func(s *remotestore.Session) error {
		if err := s.EnsureDirectory(workCtx, remotestore.ContentDir(id)); err != nil {
			return err
		}
		return s.Upload(workCtx, staged.Path, remotestore.CoverPath(id), true)
	})
	if err != nil {
		err = classify(op+".remote", err, KindRemoteStoreUnavailable)
		o.logFailure(ctx, op, StateRolledBack, "remote_commit", id, err)
		return err
	}
	l := log.WithContext(ctx, o.logger)
	l.Info().
		Str(log.FieldEvent, "cover.replaced").
		Int64(log.FieldContentID, id).
		Int("bytes", len(processed)).
		Msg("cover replaced")
	return nil
}

// Delete removes the remote folder, then the row. A crash in between is
// repaired by retrying the delete.
func (o *Orchestrator) Delete(ctx context.Context, callerID, id int64) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "pipeline.delete")
	span.SetAttributes(telemetry.ContentAttributes(id, callerID)...)
	defer func() { telemetry.EndSpan(span, err) }()
	ctx = log.ContextWithContentID(ctx, id)

	if _, err := o.owned(ctx, "delete", callerID, id); err != nil {
		return err
	}
	workCtx, cancel := o.workContext(ctx)
	defer cancel()

	err = o.deps.Remote.WithSession(workCtx, func(s *remotestore.Session) error {
		return s.DeleteRecursive(workCtx, remotestore.ContentDir(id))
	})
	if err != nil {
		return classify("delete.remote", err, KindRemoteStoreUnavailable)
	}
	if err := o.deps.Metadata.Delete(workCtx, id); err != nil {
		return classify("delete.metadata", err, KindMetadataCommitFailed)
	}
	l := log.WithContext(ctx, o.logger)
	l.Info().
		Str(log.FieldEvent, "content.deleted").
		Int64(log.FieldContentID, id).
		Int64(log.FieldUserID, callerID).
		Msg("content deleted")
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}

// readAll is used for small remote objects (covers).
func readAll(ctx context.Context, s *remotestore.Session, remotePath string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Download(ctx, remotePath, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
