// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/metadata"
)

type contentView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	UserID   int64  `json:"user_id"`
	CoverArt string `json:"cover_art"`
}

type rankedView struct {
	contentView
	Plays int64 `json:"plays"`
}

func (s *Server) view(r *http.Request, it metadata.ContentItem) contentView {
	return contentView{
		ID:       it.ID,
		Name:     it.Name,
		UserID:   it.OwnerID,
		CoverArt: s.coverURL(r, it.ID),
	}
}

func (s *Server) views(r *http.Request, items []metadata.ContentItem) []contentView {
	out := make([]contentView, 0, len(items))
	for _, it := range items {
		out = append(out, s.view(r, it))
	}
	return out
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Reader.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.views(r, items))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Reader.Search(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.views(r, items))
}

func (s *Server) handleTopByContext(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil {
		writeBadRequest(w, r, "weather code must be an integer")
		return
	}
	limit, err := strconv.Atoi(chi.URLParam(r, "limit"))
	if err != nil || limit < 0 {
		writeBadRequest(w, r, "limit must be a non-negative integer")
		return
	}
	items, err := s.deps.Reader.TopByContext(r.Context(), code, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]rankedView, 0, len(items))
	for _, it := range items {
		out = append(out, rankedView{contentView: s.view(r, it.ContentItem), Plays: it.Plays})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Check(ctx); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldEvent, "health.failed").Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
