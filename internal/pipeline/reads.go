// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/skyfy/skyfy/internal/hls"
	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/metadata"
	"github.com/skyfy/skyfy/internal/metrics"
	"github.com/skyfy/skyfy/internal/remotestore"
	"github.com/skyfy/skyfy/internal/staging"
	"github.com/skyfy/skyfy/internal/telemetry"
)

// SearchLimit caps catalogue search results.
const SearchLimit = 20

// Pipeline serves the read paths. Nothing is cached across requests.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time

	// play events outlive their request
	events sync.WaitGroup
}

// New wires the read paths.
func New(cfg Config, deps Deps) *Pipeline {
	return &Pipeline{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		logger: log.WithComponent("pipeline"),
		now:    time.Now,
	}
}

// Wait blocks until in-flight play-event inserts finish.
func (p *Pipeline) Wait() { p.events.Wait() }

// PlaylistRequest asks for the rebased manifest of one item.
type PlaylistRequest struct {
	ContentID int64
	BaseURL   string
	// CallerID is zero for anonymous callers.
	CallerID int64
	// ContextSupplied is set when the caller sent a context code at all,
	// even an empty one.
	ContextSupplied bool
	ContextCode     string
}

// Playlist downloads the stored manifest into staging and returns it with
// segment references rebased onto req.BaseURL.
func (p *Pipeline) Playlist(ctx context.Context, req PlaylistRequest) (body string, err error) {
	const op = "playlist"
	ctx, span := telemetry.StartSpan(ctx, "pipeline.playlist")
	span.SetAttributes(telemetry.ContentAttributes(req.ContentID, 0)...)
	defer func() {
		metrics.ObserveDelivery("playlist", outcome(err))
		telemetry.EndSpan(span, err)
	}()
	ctx = log.ContextWithContentID(ctx, req.ContentID)

	var code int
	if req.ContextSupplied {
		if req.CallerID <= 0 {
			return "", newError(KindMissingPlaybackContext, op, fmt.Errorf("no authenticated caller"))
		}
		code, err = strconv.Atoi(strings.TrimSpace(req.ContextCode))
		if err != nil {
			return "", newError(KindMissingPlaybackContext, op, fmt.Errorf("context code %q: %w", req.ContextCode, err))
		}
	}

	if _, err := p.deps.Metadata.Get(ctx, req.ContentID); err != nil {
		return "", classify(op, err, KindInternal)
	}

	var lines []string
	err = p.deps.Remote.WithSession(ctx, func(s *remotestore.Session) error {
		manifestPath := remotestore.ManifestPath(req.ContentID)
		ok, err := s.Exists(ctx, manifestPath)
		if err != nil {
			return err
		}
		if !ok {
			return newError(KindNotProcessed, op, nil)
		}
		lines, err = p.fetchManifest(ctx, s, manifestPath)
		return err
	})
	if err != nil {
		return "", classify(op, err, KindRemoteStoreUnavailable)
	}

	if req.ContextSupplied {
		p.recordPlay(ctx, metadata.PlayEvent{
			ContentID:   req.ContentID,
			UserID:      req.CallerID,
			ContextCode: code,
			StreamedAt:  p.now(),
		})
	}
	return hls.Rewrite(lines, req.BaseURL, req.ContentID), nil
}

func (p *Pipeline) fetchManifest(ctx context.Context, s *remotestore.Session, remotePath string) ([]string, error) {
	f, fh, err := p.deps.Staging.NewFile(".m3u8")
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Remove() }()

	dlErr := s.Download(ctx, remotePath, fh)
	if cerr := fh.Close(); dlErr == nil && cerr != nil {
		dlErr = cerr
	}
	if dlErr != nil {
		return nil, dlErr
	}

	// #nosec G304 -- staging path
	in, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()
	m, err := hls.ParseManifest(in)
	if err != nil {
		return nil, err
	}
	return m.Lines(), nil
}

// recordPlay inserts a play event in the background. Failures are logged and
// counted; they never affect the playlist response.
func (p *Pipeline) recordPlay(ctx context.Context, ev metadata.PlayEvent) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PlayEventTimeout)
	p.events.Add(1)
	go func() {
		defer p.events.Done()
		defer cancel()
		if err := p.deps.Metadata.RecordStream(bg, ev); err != nil {
			metrics.IncPlayEventFailure()
			l := log.WithContext(bg, p.logger)
			l.Warn().Err(err).
				Str(log.FieldEvent, "playlist.play_event_failed").
				Int64(log.FieldUserID, ev.UserID).
				Int("context_code", ev.ContextCode).
				Msg("recording play event failed")
		}
	}()
}

// ValidSegmentName reports whether name is a bare segment file name.
func ValidSegmentName(name string) bool {
	if name == "" || name != strings.TrimSpace(name) {
		return false
	}
	if strings.ContainsAny(name, `/\`) || name != path.Base(name) || strings.HasPrefix(name, ".") {
		return false
	}
	return hls.IsSegmentRef(name)
}

// Segment fetches one segment into staging. Closing the returned reader
// removes the staging file exactly once, whether or not it was drained.
// A missing segment leaves nothing behind.
func (p *Pipeline) Segment(ctx context.Context, id int64, name string) (rc io.ReadCloser, size int64, err error) {
	const op = "segment"
	ctx, span := telemetry.StartSpan(ctx, "pipeline.segment")
	span.SetAttributes(telemetry.ContentAttributes(id, 0)...)
	defer func() {
		metrics.ObserveDelivery("segment", outcome(err))
		telemetry.EndSpan(span, err)
	}()

	if !ValidSegmentName(name) {
		return nil, 0, newError(KindSegmentNotFound, op, fmt.Errorf("invalid segment name %q", name))
	}

	var staged *staging.File
	err = p.deps.Remote.WithSession(ctx, func(s *remotestore.Session) error {
		remotePath := remotestore.SegmentPath(id, name)
		ok, err := s.Exists(ctx, remotePath)
		if err != nil {
			return err
		}
		if !ok {
			return newError(KindSegmentNotFound, op, nil)
		}
		f, fh, err := p.deps.Staging.NewFile(".ts")
		if err != nil {
			return err
		}
		dlErr := s.Download(ctx, remotePath, fh)
		if cerr := fh.Close(); dlErr == nil && cerr != nil {
			dlErr = cerr
		}
		if dlErr != nil {
			_ = f.Remove()
			return dlErr
		}
		staged = f
		return nil
	})
	if err != nil {
		if IsKind(err, KindSegmentNotFound) {
			return nil, 0, err
		}
		e := classify(op, err, KindRemoteStoreUnavailable)
		if e.Kind == KindRemoteNotFound {
			e.Kind = KindSegmentNotFound
		}
		return nil, 0, e
	}

	rc, size, err = staged.OpenEphemeral()
	if err != nil {
		return nil, 0, newError(KindInternal, op, err)
	}
	return rc, size, nil
}

// Cover returns the stored cover image of id.
func (p *Pipeline) Cover(ctx context.Context, id int64) (data []byte, err error) {
	const op = "cover"
	defer func() { metrics.ObserveDelivery("cover", outcome(err)) }()

	err = p.deps.Remote.WithSession(ctx, func(s *remotestore.Session) error {
		var err error
		data, err = readAll(ctx, s, remotestore.CoverPath(id))
		return err
	})
	if err != nil {
		e := classify(op, err, KindRemoteStoreUnavailable)
		if e.Kind == KindRemoteNotFound {
			e.Kind = KindCoverNotFound
		}
		return nil, e
	}
	return data, nil
}

// List returns every committed item.
func (p *Pipeline) List(ctx context.Context) ([]metadata.ContentItem, error) {
	items, err := p.deps.Metadata.List(ctx)
	if err != nil {
		return nil, classify("list", err, KindInternal)
	}
	return items, nil
}

// Search matches names case-insensitively, up to SearchLimit items.
func (p *Pipeline) Search(ctx context.Context, query string) ([]metadata.ContentItem, error) {
	items, err := p.deps.Metadata.Search(ctx, query, SearchLimit)
	if err != nil {
		return nil, classify("search", err, KindInternal)
	}
	return items, nil
}

// TopByContext ranks today's (UTC) plays with code.
func (p *Pipeline) TopByContext(ctx context.Context, code, limit int) ([]metadata.RankedItem, error) {
	if limit < 0 {
		return nil, newError(KindInvalidRequest, "top_by_context", fmt.Errorf("negative limit %d", limit))
	}
	items, err := p.deps.Metadata.TopByContext(ctx, code, p.now().UTC(), limit)
	if err != nil {
		return nil, classify("top_by_context", err, KindInternal)
	}
	return items, nil
}
