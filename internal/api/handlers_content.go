// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skyfy/skyfy/internal/auth"
	"github.com/skyfy/skyfy/internal/log"
	"github.com/skyfy/skyfy/internal/pipeline"
)

// multipartMemory is how much of a form is buffered before spilling to disk.
const multipartMemory = 32 << 20

type createRequest struct {
	Name string `json:"name"`
}

type createdResponse struct {
	ID       int64  `json:"id"`
	Message  string `json:"message"`
	Playlist string `json:"playlist,omitempty"`
}

type playlistResponse struct {
	Playlist string `json:"playlist"`
}

// pipelineUpload is the full ingestion request; the cover is mandatory here.
func pipelineUpload(owner int64, name string, audio io.Reader, filename string) pipeline.UploadRequest {
	return pipeline.UploadRequest{
		OwnerID:       owner,
		Name:          name,
		Audio:         audio,
		AudioFilename: filename,
		RequireCover:  true,
	}
}

func contentID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) playlistURL(r *http.Request, id int64) string {
	return fmt.Sprintf("%s/%d/playlist.m3u8", s.baseURL(r), id)
}

func (s *Server) coverURL(r *http.Request, id int64) string {
	return fmt.Sprintf("%s/%d/Cover", s.baseURL(r), id)
}

// parseMultipart bounds the body and parses the form. It writes the error
// response itself and reports false on failure.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeProblem(w, r, http.StatusRequestEntityTooLarge, "PayloadTooLarge",
				fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes))
			return false
		}
		writeBadRequest(w, r, "expected a multipart/form-data body")
		return false
	}
	return true
}

// formFile returns the named part, or nil when it was not sent.
func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, error) {
	f, h, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	return f, h, err
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, r, "expected a JSON body with a name")
		return
	}
	item, err := s.deps.Writer.Create(r.Context(), auth.UserID(r.Context()), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: item.ID, Message: "Created successfully"})
}

func (s *Server) handleUploadAll(w http.ResponseWriter, r *http.Request) {
	if !s.parseMultipart(w, r) {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	song, songHdr, err := formFile(r, "song")
	if err != nil {
		writeBadRequest(w, r, "unreadable song part")
		return
	}
	if song == nil {
		writeBadRequest(w, r, "song is required")
		return
	}
	defer func() { _ = song.Close() }()

	coverFile, coverHdr, err := formFile(r, "cover")
	if err != nil {
		writeBadRequest(w, r, "unreadable cover part")
		return
	}
	req := pipelineUpload(auth.UserID(r.Context()), r.FormValue("name"), song, songHdr.Filename)
	if coverFile != nil {
		defer func() { _ = coverFile.Close() }()
		req.Cover = coverFile
		req.CoverFilename = coverHdr.Filename
	}

	res, err := s.deps.Writer.UploadAll(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{
		ID:       res.Item.ID,
		Message:  "Uploaded successfully",
		Playlist: s.playlistURL(r, res.Item.ID),
	})
}

func (s *Server) handleUploadAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(r)
	if !ok {
		writeBadRequest(w, r, "content id must be a positive integer")
		return
	}
	if !s.parseMultipart(w, r) {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := formFile(r, "file")
	if err != nil {
		writeBadRequest(w, r, "unreadable file part")
		return
	}
	if file == nil {
		writeBadRequest(w, r, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	ctx := log.ContextWithContentID(r.Context(), id)
	if _, err := s.deps.Writer.UploadAudio(ctx, auth.UserID(ctx), id, file, hdr.Filename); err != nil {
		s.writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, playlistResponse{Playlist: s.playlistURL(r, id)})
}

type coverResponse struct {
	CoverArt string `json:"cover_art"`
}

func (s *Server) handleUploadCover(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(r)
	if !ok {
		writeBadRequest(w, r, "content id must be a positive integer")
		return
	}
	if !s.parseMultipart(w, r) {
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, hdr, err := formFile(r, "file")
	if err != nil {
		writeBadRequest(w, r, "unreadable file part")
		return
	}
	if file == nil {
		writeBadRequest(w, r, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	ctx := log.ContextWithContentID(r.Context(), id)
	if err := s.deps.Writer.UploadCover(ctx, auth.UserID(ctx), id, file, hdr.Filename); err != nil {
		s.writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, coverResponse{CoverArt: s.coverURL(r, id)})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := contentID(r)
	if !ok {
		writeBadRequest(w, r, "content id must be a positive integer")
		return
	}
	if err := s.deps.Writer.Delete(r.Context(), auth.UserID(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
