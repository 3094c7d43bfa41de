package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/auth"
	"github.com/clipforge/clipforge/internal/events"
	"github.com/clipforge/clipforge/internal/log"
	"github.com/clipforge/clipforge/internal/pipeline"
	"github.com/clipforge/clipforge/internal/store"
	"github.com/clipforge/clipforge/internal/video"
)

// allowedUploadTypes maps accepted file extensions to their canonical
// MIME type.
var allowedUploadTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

// handleUpload receives a multipart upload, stores the raw file,
// creates the record and schedules the processing pipeline. The request
// returns as soon as the work is scheduled.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing video file")
		return
	}
	defer func() { _ = file.Close() }()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	mimeType, allowed := allowedUploadTypes[ext]
	if !allowed {
		writeError(w, http.StatusBadRequest, "unsupported media type")
		return
	}

	id := uuid.NewString()
	rawPath := filepath.Join(s.cfg.UploadDir(), id+ext)
	size, err := saveUpload(file, rawPath)
	if err != nil {
		log.FromContext(r.Context()).Error().Err(err).Msg("failed to store upload")
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}
	visibility := video.Visibility(r.FormValue("visibility"))
	switch visibility {
	case video.VisibilityPrivate, video.VisibilityOrganization, video.VisibilityPublic:
	default:
		visibility = video.VisibilityPrivate
	}

	v := &video.Video{
		ID:             id,
		OwnerID:        principal.ID,
		OrganizationID: principal.OrganizationID,
		Title:          title,
		Description:    r.FormValue("description"),
		Tags:           splitTags(r.FormValue("tags")),
		Visibility:     visibility,
		FilePath:       rawPath,
		FileSize:       size,
		MimeType:       mimeType,
		Status:         video.StatusUploading,
		Sensitivity:    video.Sensitivity{Status: video.SensitivityPending},
		IsActive:       true,
	}
	if err := s.store.Create(r.Context(), v); err != nil {
		_ = os.Remove(rawPath)
		log.FromContext(r.Context()).Error().Err(err).Msg("failed to create video record")
		writeError(w, http.StatusInternalServerError, "failed to create video record")
		return
	}

	log.FromContext(r.Context()).Info().
		Str(log.FieldVideoID, id).
		Str(log.FieldOwnerID, principal.ID).
		Str(log.FieldOrgID, principal.OrganizationID).
		Int64("size", size).
		Msg("upload stored")

	s.broadcaster.Publish(principal.ID, events.UploadComplete, id, map[string]any{
		"title": v.Title,
		"size":  size,
	})

	// Snapshot before handing v to the pipeline: from here on the run
	// goroutine owns the record and mutates it.
	resp := *v
	s.scheduleProcessing(v)

	writeJSON(w, http.StatusAccepted, &resp)
}

// scheduleProcessing starts the background pipeline detached from any
// request context: a client disconnect after the record exists must not
// leave it stranded without a terminal state.
func (s *Server) scheduleProcessing(v *video.Video) {
	s.orchestrator.Schedule(context.Background(), v)
}

func saveUpload(src multipart.File, dest string) (int64, error) {
	out, err := os.Create(dest) // #nosec G304 -- dest is built from a fresh uuid
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dest)
		return 0, err
	}
	return size, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// handleGet returns a single video the caller may view.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, v, done := s.loadAuthorized(w, r)
	if done {
		return
	}
	_ = principal
	writeJSON(w, http.StatusOK, v)
}

// updateRequest carries the caller-editable record fields. Pointers
// distinguish "leave unchanged" from "set to zero value".
type updateRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
	Visibility  *string  `json:"visibility"`
}

// handleUpdate edits the descriptive fields of a video. Lifecycle
// status, paths and sensitivity are owned by the pipeline and cannot be
// changed here.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	v, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if v.OwnerID != principal.ID && !(principal.IsAdmin() && principal.OrganizationID == v.OrganizationID) {
		writeForbidden(w)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title != nil {
		v.Title = *req.Title
	}
	if req.Description != nil {
		v.Description = *req.Description
	}
	if req.Tags != nil {
		v.Tags = req.Tags
	}
	if req.Visibility != nil {
		vis := video.Visibility(*req.Visibility)
		switch vis {
		case video.VisibilityPrivate, video.VisibilityOrganization, video.VisibilityPublic:
			v.Visibility = vis
		default:
			writeError(w, http.StatusBadRequest, "unknown visibility")
			return
		}
	}

	if err := s.store.Update(r.Context(), v); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleList returns videos visible to the caller, optionally filtered
// by a substring query.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	opts := store.SearchOptions{
		Query: r.URL.Query().Get("q"),
		Limit: queryInt(r, "limit", 50),
	}
	opts.Offset = queryInt(r, "offset", 0)
	if r.URL.Query().Get("mine") == "true" {
		opts.OwnerID = principal.ID
	} else {
		opts.OrganizationID = principal.OrganizationID
	}

	results, err := s.store.Search(r.Context(), opts)
	if err != nil {
		log.FromContext(r.Context()).Error().Err(err).Msg("search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	visible := make([]*video.Video, 0, len(results))
	for _, v := range results {
		if auth.CanView(principal, v) {
			visible = append(visible, v)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": visible})
}

// handleDelete archives a video: the record stays queryable, the file
// is not removed.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	v, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if v.OwnerID != principal.ID && !(principal.IsAdmin() && principal.OrganizationID == v.OrganizationID) {
		writeForbidden(w)
		return
	}
	if err := s.store.Archive(r.Context(), v.ID); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(video.StatusArchived)})
}

// handleReanalyze triggers a fresh sensitivity pass for a video.
func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	v, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	if v.OwnerID != principal.ID && !(principal.IsAdmin() && principal.OrganizationID == v.OrganizationID) {
		writeForbidden(w)
		return
	}

	if _, err := s.orchestrator.Reanalyze(r.Context(), v); err != nil {
		if errors.Is(err, pipeline.ErrAnalysisInFlight) {
			writeError(w, http.StatusConflict, "analysis already in progress")
			return
		}
		log.FromContext(r.Context()).Error().Err(err).Msg("reanalyze failed")
		writeError(w, http.StatusInternalServerError, "reanalyze failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": string(video.SensitivityProcessing)})
}

// handleThumbnail serves the poster frame.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	_, v, done := s.loadAuthorized(w, r)
	if done {
		return
	}
	if v.ThumbnailPath == "" {
		writeNotFound(w, "no thumbnail")
		return
	}
	f, err := os.Open(v.ThumbnailPath) // #nosec G304 -- path written by the pipeline, not the client
	if err != nil {
		writeNotFound(w, "no thumbnail")
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		writeNotFound(w, "no thumbnail")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// loadAuthorized fetches the requested video and applies the view
// check. It writes the error response itself and reports done=true.
func (s *Server) loadAuthorized(w http.ResponseWriter, r *http.Request) (auth.Principal, *video.Video, bool) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return auth.Principal{}, nil, true
	}
	id := chi.URLParam(r, "id")
	if isPathTraversal(id) {
		writeNotFound(w, "")
		return principal, nil, true
	}
	v, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, err)
		return principal, nil, true
	}
	if !auth.CanView(principal, v) {
		writeForbidden(w)
		return principal, nil, true
	}
	return principal, v, false
}

func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeNotFound(w, "")
		return
	}
	log.FromContext(r.Context()).Error().Err(err).Msg("store error")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
