package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/gallery"
	"github.com/go-chi/chi/v5"
)

type FolderHandler struct {
	svc *gallery.Service
}

func NewFolderHandler(svc *gallery.Service) *FolderHandler {
	return &FolderHandler{svc: svc}
}

type foldersResponse struct {
	Success bool            `json:"success"`
	Data    []models.Folder `json:"data"`
}

type folderResponse struct {
	Success bool           `json:"success"`
	Data    *models.Folder `json:"data"`
}

// List answers GET /api/folders?public_only=&sort=newest|name.
func (h *FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	publicOnly, _ := strconv.ParseBool(r.URL.Query().Get("public_only"))

	order := gallery.SortNewest
	if gallery.FolderSort(r.URL.Query().Get("sort")) == gallery.SortName {
		order = gallery.SortName
	}

	folders, err := h.svc.ListFolders(r.Context(), publicOnly, order)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, foldersResponse{Success: true, Data: folders})
}

func (h *FolderHandler) Get(w http.ResponseWriter, r *http.Request) {
	folder, err := h.svc.GetFolder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, folderResponse{Success: true, Data: folder})
}

type createFolderRequest struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
}

func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	folder, err := h.svc.CreateFolder(r.Context(), req.Name, req.IsPublic)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusCreated, folderResponse{Success: true, Data: folder})
}

func (h *FolderHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req gallery.FolderUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	folder, err := h.svc.UpdateFolder(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}
	respondJSON(w, http.StatusOK, folderResponse{Success: true, Data: folder})
}

// Delete removes a folder. Its images are kept and moved to the root.
func (h *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	moved, err := h.svc.DeleteFolder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, countResponse{
		Success: true,
		Message: fmt.Sprintf("Folder deleted, %d image(s) moved to the root", moved),
		Count:   moved,
	})
}
