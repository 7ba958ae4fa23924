package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agjmills/gallery/internal/gallery"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/go-chi/chi/v5"
)

type ShareHandler struct {
	svc *gallery.Service
}

func NewShareHandler(svc *gallery.Service) *ShareHandler {
	return &ShareHandler{svc: svc}
}

type shareResponse struct {
	Success bool `json:"success"`
	*gallery.ShareLink
}

// Share creates a share link for public images or folders.
func (h *ShareHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req gallery.ShareRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	link, err := h.svc.CreateShareLink(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, shareResponse{Success: true, ShareLink: link})
}

type resolveResponse struct {
	Success bool                 `json:"success"`
	Data    *gallery.SharedItems `json:"data"`
}

// Resolve answers GET /api/share/{type}/{ids} where ids is comma separated.
func (h *ShareHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(chi.URLParam(r, "ids"), ",")

	items, err := h.svc.ResolveShare(r.Context(), chi.URLParam(r, "type"), ids)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, resolveResponse{Success: true, Data: items})
}

type downloadResponse struct {
	Success bool `json:"success"`
	*gallery.DownloadPlan
}

// Download links a single image, streams a zip of several images, or
// describes the requested folders.
func (h *ShareHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req gallery.ShareRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	plan, err := h.svc.PlanDownload(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	if plan.Kind != gallery.DownloadArchive {
		respondJSON(w, http.StatusOK, downloadResponse{Success: true, DownloadPlan: plan})
		return
	}

	name := gallery.ArchiveName(time.Now())
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)

	written, err := h.svc.WriteArchive(r.Context(), w, plan.Files)
	if err != nil {
		// Headers are already sent; the client sees a truncated archive.
		logger.Error("archive download failed", "archive", name, "written", written, "error", err)
		return
	}
	logger.Info("archive downloaded", "archive", name, "files", written, "requested", len(plan.Files))
}
