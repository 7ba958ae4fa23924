package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/gallery"
	"github.com/go-chi/chi/v5"
)

type ImageHandler struct {
	svc *gallery.Service
}

func NewImageHandler(svc *gallery.Service) *ImageHandler {
	return &ImageHandler{svc: svc}
}

type imagesResponse struct {
	Success bool               `json:"success"`
	Data    []models.MediaFile `json:"data"`
}

type imageResponse struct {
	Success bool              `json:"success"`
	Data    *models.MediaFile `json:"data"`
}

type countResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// List answers GET /api/images?folder_id=&public_only=.
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	publicOnly, _ := strconv.ParseBool(r.URL.Query().Get("public_only"))

	files, err := h.svc.ListImages(r.Context(), gallery.ImageFilter{
		FolderID:   r.URL.Query().Get("folder_id"),
		PublicOnly: publicOnly,
	})
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, imagesResponse{Success: true, Data: files})
}

func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.GetImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, imageResponse{Success: true, Data: file})
}

type visibilityRequest struct {
	ImageIDs []string `json:"image_ids"`
	IsPublic bool     `json:"is_public"`
}

// TogglePublic sets the visibility of several images.
func (h *ImageHandler) TogglePublic(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.svc.SetVisibility(r.Context(), req.ImageIDs, req.IsPublic)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	state := "private"
	if req.IsPublic {
		state = "public"
	}
	respondJSON(w, http.StatusOK, countResponse{
		Success: true,
		Message: fmt.Sprintf("%d image(s) made %s", n, state),
		Count:   n,
	})
}

type moveRequest struct {
	ImageIDs []string `json:"image_ids"`
	FolderID *string  `json:"folder_id"`
}

// MoveFolder re-parents images. A null or empty folder_id moves them to the
// root.
func (h *ImageHandler) MoveFolder(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.svc.MoveToFolder(r.Context(), req.ImageIDs, req.FolderID)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, countResponse{
		Success: true,
		Message: fmt.Sprintf("%d image(s) moved", n),
		Count:   n,
	})
}

type deleteRequest struct {
	ImageIDs []string `json:"image_ids"`
}

type deleteResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Report  gallery.DeleteReport `json:"report"`
}

// Delete removes images and their backing objects. Object deletion is best
// effort; the report says what could not be removed.
func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	report, err := h.svc.DeleteImages(r.Context(), req.ImageIDs)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, deleteResponse{
		Success: true,
		Message: fmt.Sprintf("%d image(s) deleted", report.Files),
		Report:  report,
	})
}
