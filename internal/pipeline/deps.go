// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"time"

	"github.com/skyfy/skyfy/internal/cover"
	"github.com/skyfy/skyfy/internal/metadata"
	"github.com/skyfy/skyfy/internal/remotestore"
	"github.com/skyfy/skyfy/internal/staging"
)

// Transcoder converts a staged audio file into an HLS directory.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputDir string, segmentSeconds int) (string, error)
}

// Remote hands out scoped remote store sessions.
type Remote interface {
	WithSession(ctx context.Context, fn func(*remotestore.Session) error) error
}

// Reservation is an uncommitted content row. Holding one blocks no other
// writer.
type Reservation interface {
	ID() int64
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Metadata is the relational store used by the pipeline.
type Metadata interface {
	Reserve(ctx context.Context, ownerID int64, name string) (Reservation, error)
	Get(ctx context.Context, id int64) (metadata.ContentItem, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]metadata.ContentItem, error)
	Search(ctx context.Context, query string, limit int) ([]metadata.ContentItem, error)
	RecordStream(ctx context.Context, ev metadata.PlayEvent) error
	TopByContext(ctx context.Context, code int, day time.Time, limit int) ([]metadata.RankedItem, error)
}

// FromMetadataStore adapts *metadata.Store to Metadata.
func FromMetadataStore(s *metadata.Store) Metadata {
	return metadataStore{s}
}

type metadataStore struct {
	*metadata.Store
}

func (m metadataStore) Reserve(ctx context.Context, ownerID int64, name string) (Reservation, error) {
	r, err := m.Store.Reserve(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Config tunes the pipeline.
type Config struct {
	SegmentSeconds int
	CoverMaxDim    int
	// Timeout bounds a whole write operation, including work that continues
	// after the caller went away.
	Timeout time.Duration
	// PlayEventTimeout bounds the detached play-event insert.
	PlayEventTimeout time.Duration
}

// Deps are the collaborators shared by the orchestrator and the read paths.
type Deps struct {
	Staging    *staging.Area
	Transcoder Transcoder
	Remote     Remote
	Metadata   Metadata
}

func (c Config) withDefaults() Config {
	if c.SegmentSeconds <= 0 {
		c.SegmentSeconds = 5
	}
	if c.CoverMaxDim <= 0 {
		c.CoverMaxDim = cover.DefaultMaxDim
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Minute
	}
	if c.PlayEventTimeout <= 0 {
		c.PlayEventTimeout = 10 * time.Second
	}
	return c
}
