package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/agjmills/gallery/internal/gallery"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/agjmills/gallery/internal/storage"
)

// maxJSONBody bounds request bodies of the JSON endpoints.
const maxJSONBody = 1 << 20

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Message: message})
}

// respondServiceError maps a service error onto a status code. Chunk transfer
// failures are answered with chunkStatus, which differs between the upload
// endpoints (502) and the serving endpoint (500).
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, chunkStatus int) {
	var verr *gallery.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Message: verr.Message, Field: verr.Field})
		return
	}

	var chunkErr *chunking.ChunkError
	switch {
	case errors.As(err, &chunkErr):
		respondError(w, chunkStatus, chunkMessage(chunkErr))
	case errors.Is(err, gallery.ErrTooLarge), errors.Is(err, storage.ErrObjectTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, gallery.ErrUnsupportedMedia),
		errors.Is(err, gallery.ErrNotChunked),
		errors.Is(err, gallery.ErrNotChunkedFile),
		errors.Is(err, gallery.ErrMalformedMetadata),
		errors.Is(err, gallery.ErrFolderExists),
		errors.Is(err, gallery.ErrNotPublic):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gallery.ErrNotFound):
		respondError(w, http.StatusNotFound, "Media file not found")
	case errors.Is(err, gallery.ErrFolderNotFound):
		respondError(w, http.StatusNotFound, "Folder not found")
	case errors.Is(err, storage.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "Storage is temporarily unavailable")
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func chunkMessage(err *chunking.ChunkError) string {
	return fmt.Sprintf("Failed to %s chunk %d: %v", err.Op, err.Index, err.Err)
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.Debug("invalid JSON body", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
