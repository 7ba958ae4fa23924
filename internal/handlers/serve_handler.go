package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/gallery"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/agjmills/gallery/internal/media"
	"github.com/agjmills/gallery/internal/metrics"
	"github.com/go-chi/chi/v5"
)

const cacheForever = "public, max-age=31536000"

var errUnsatisfiableRange = errors.New("unsatisfiable range")

type ServeHandler struct {
	svc *gallery.Service
}

func NewServeHandler(svc *gallery.Service) *ServeHandler {
	return &ServeHandler{svc: svc}
}

// ServeChunked answers GET /serve/{sessionId}/{filename} by reconstructing
// the file from its chunks. Videos honor single byte ranges.
func (h *ServeHandler) ServeChunked(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	filename := chi.URLParam(r, "filename")

	file, backing, err := h.svc.OpenChunked(r.Context(), sessionID, filename)
	if err != nil {
		switch {
		case errors.Is(err, gallery.ErrNotChunkedFile):
			respondError(w, http.StatusBadRequest, "File is not a chunked file")
		case errors.Is(err, gallery.ErrNotChunked), errors.Is(err, gallery.ErrMalformedMetadata):
			respondError(w, http.StatusNotFound, "File not found")
		default:
			respondServiceError(w, r, err, http.StatusInternalServerError)
		}
		return
	}

	content, err := h.svc.Reconstruct(r.Context(), file, backing)
	if err != nil {
		respondServiceError(w, r, err, http.StatusInternalServerError)
		return
	}

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" || !isVideo(file) {
		writeMediaHeaders(w, file)
		if isVideo(file) {
			w.Header().Set("Accept-Ranges", "bytes")
		}
		writeFull(w, content)
		return
	}

	size := int64(len(content))
	start, end, err := parseRange(rangeHeader, size)
	if err != nil {
		logger.Debug("rejecting range", "range", rangeHeader, "size", size, "error", err)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		respondError(w, http.StatusRequestedRangeNotSatisfiable, "Requested range not satisfiable")
		return
	}

	writeMediaHeaders(w, file)
	part := content[start : end+1]
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.Itoa(len(part)))
	w.WriteHeader(http.StatusPartialContent)
	n, _ := w.Write(part)
	metrics.RecordServed("partial", n)
}

// ServeMedia streams a directly stored object for backends without public
// URLs. Range handling is left to http.ServeContent.
func (h *ServeHandler) ServeMedia(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.FindByFilename(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		respondServiceError(w, r, err, http.StatusInternalServerError)
		return
	}

	content, err := h.svc.Content(r.Context(), file)
	if err != nil {
		respondServiceError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeMediaHeaders(w, file)
	http.ServeContent(w, r, file.OriginalName, file.CreatedAt, bytes.NewReader(content))
	metrics.RecordServed("media", len(content))
}

func writeMediaHeaders(w http.ResponseWriter, file *models.MediaFile) {
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", dispositionName(file.OriginalName)))
	w.Header().Set("Cache-Control", cacheForever)
}

func writeFull(w http.ResponseWriter, content []byte) {
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	n, _ := w.Write(content)
	metrics.RecordServed("full", n)
}

func isVideo(file *models.MediaFile) bool {
	return file.MediaType == media.TypeVideo || media.IsVideo(file.MimeType)
}

// dispositionName drops characters that would break a quoted header value.
func dispositionName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
}

// parseRange parses a single "bytes=start-end" range against a body of size
// bytes. A missing end means the last byte and an end past the body is
// clamped. Suffix ranges and multiple ranges are not supported.
func parseRange(header string, size int64) (start, end int64, err error) {
	byteRange, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("%w: unsupported unit in %q", errUnsatisfiableRange, header)
	}
	if strings.Contains(byteRange, ",") {
		return 0, 0, fmt.Errorf("%w: multiple ranges", errUnsatisfiableRange)
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(byteRange), "-")
	if !ok || startStr == "" {
		return 0, 0, fmt.Errorf("%w: malformed range %q", errUnsatisfiableRange, byteRange)
	}

	start, err = strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("%w: malformed start %q", errUnsatisfiableRange, startStr)
	}
	if start >= size {
		return 0, 0, fmt.Errorf("%w: start %d beyond %d bytes", errUnsatisfiableRange, start, size)
	}

	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, fmt.Errorf("%w: malformed end %q", errUnsatisfiableRange, endStr)
		}
		end = min(end, size-1)
	}
	return start, end, nil
}
