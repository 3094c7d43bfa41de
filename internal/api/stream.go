package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge/internal/auth"
	"github.com/clipforge/clipforge/internal/log"
	"github.com/clipforge/clipforge/internal/metrics"
	"github.com/clipforge/clipforge/internal/store"
	"github.com/clipforge/clipforge/internal/video"
)

// streamChunkSize bounds how much of the artifact is buffered in memory
// while serving.
const streamChunkSize = 64 << 10

// handleStream serves video playback with byte-range support. The
// artifact is read positionally and never mutated after transcoding, so
// concurrent range requests are safe.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFromContext(r.Context())
	if !ok {
		metrics.IncStreamRequest("401")
		writeUnauthorized(w)
		return
	}

	id := chi.URLParam(r, "id")
	if isPathTraversal(id) {
		metrics.IncStreamRequest("404")
		writeNotFound(w, "")
		return
	}

	v, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.IncStreamRequest("404")
			writeNotFound(w, "")
			return
		}
		log.FromContext(r.Context()).Error().Err(err).Msg("store error")
		metrics.IncStreamRequest("500")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if !v.Streamable() {
		// Stating the current status here is intentional: clients poll
		// this endpoint while processing runs.
		metrics.IncStreamRequest("404")
		writeNotFound(w, fmt.Sprintf("video not ready: status is %s", v.Status))
		return
	}

	if !auth.CanView(principal, v) {
		metrics.IncStreamRequest("403")
		writeForbidden(w)
		return
	}

	artifact := v.ArtifactPath()
	f, err := os.Open(artifact) // #nosec G304 -- path written by the pipeline, not the client
	if err != nil {
		log.FromContext(r.Context()).Error().Err(err).Str(log.FieldPath, artifact).Msg("artifact missing")
		metrics.IncStreamRequest("500")
		writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		metrics.IncStreamRequest("500")
		writeError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentTypeFor(v))

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		metrics.IncStreamRequest("200")
		copyChunks(w, f, size)
		return
	}

	start, end, ok := parseByteRange(rangeHeader, size)
	if !ok {
		// Malformed range specs are ignored per RFC 9110: serve the
		// full representation.
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		metrics.IncStreamRequest("200")
		copyChunks(w, f, size)
		return
	}
	if start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		metrics.IncStreamRequest("416")
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	metrics.IncStreamRequest("206")

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return
	}
	copyChunks(w, f, length)
}

// parseByteRange parses a single "bytes=start-end" specifier. Start is
// required; a missing end defaults to the last byte. End is clamped to
// the file size.
func parseByteRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	// Only the first range of a multi-range request is honored.
	if i := strings.IndexByte(spec, ','); i >= 0 {
		spec = spec[:i]
	}
	startStr, endStr, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found || startStr == "" {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end, true
}

// copyChunks streams length bytes from f to w in bounded chunks, never
// loading the artifact into memory.
func copyChunks(w io.Writer, f *os.File, length int64) {
	buf := make([]byte, streamChunkSize)
	_, _ = io.CopyBuffer(w, io.LimitReader(f, length), buf)
}

func contentTypeFor(v *video.Video) string {
	if v.OptimizedPath != "" {
		return "video/mp4"
	}
	if v.MimeType != "" {
		return v.MimeType
	}
	return "application/octet-stream"
}
