// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skyfy/skyfy/internal/auth"
	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/pipeline"
)

// HeaderPlaybackContext carries the caller's weather code with a playlist
// request. Sending it, even empty, asks for a play event to be recorded.
const HeaderPlaybackContext = "X-Weather-Code"

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(r)
	if !ok {
		writeBadRequest(w, r, "content id must be a positive integer")
		return
	}
	req := pipeline.PlaylistRequest{
		ContentID: id,
		BaseURL:   s.baseURL(r),
		CallerID:  auth.UserID(r.Context()),
	}
	if vals := r.Header.Values(HeaderPlaybackContext); len(vals) > 0 {
		req.ContextSupplied = true
		req.ContextCode = vals[0]
	}

	body, err := s.deps.Reader.Playlist(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, body)
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(r)
	if !ok {
		writeBadRequest(w, r, "content id must be a positive integer")
		return
	}
	rc, size, err := s.deps.Reader.Segment(r.Context(), id, chi.URLParam(r, "segment"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if n, err := io.Copy(w, rc); err != nil {
		// client went away mid-stream; the staging file is still removed by Close
		log.FromContext(r.Context()).Debug().Err(err).
			Str(log.FieldEvent, "segment.copy_aborted").
			Int64(log.FieldContentID, id).
			Int64("bytes", n).
			Msg("segment stream aborted")
	}
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(r)
	if !ok {
		writeBadRequest(w, r, "content id must be a positive integer")
		return
	}
	data, err := s.deps.Reader.Cover(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
