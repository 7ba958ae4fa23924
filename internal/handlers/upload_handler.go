package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/agjmills/gallery/internal/config"
	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/gallery"
	"github.com/agjmills/gallery/internal/logger"
)

// maxUploadFiles caps the number of files in one multipart image upload.
const maxUploadFiles = 20

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

type UploadHandler struct {
	svc *gallery.Service
	cfg *config.Config
}

func NewUploadHandler(svc *gallery.Service, cfg *config.Config) *UploadHandler {
	return &UploadHandler{
		svc: svc,
		cfg: cfg,
	}
}

type chunkResponse struct {
	Success bool `json:"success"`
	gallery.ChunkReceipt
}

// UploadChunk receives one chunk as multipart form data with the fields
// chunk, chunk_info (JSON) and session_id.
func (h *UploadHandler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	// Room for the chunk itself plus the form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxObjectSize+maxJSONBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondMultipartError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	var info chunking.ChunkInfo
	if err := json.Unmarshal([]byte(r.FormValue("chunk_info")), &info); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid chunk_info")
		return
	}

	data, ok := readChunkPart(w, r, sessionID)
	if !ok {
		return
	}

	receipt, err := h.svc.StoreChunk(r.Context(), gallery.ChunkUpload{
		SessionID: sessionID,
		Info:      info,
		Data:      data,
	})
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, chunkResponse{Success: true, ChunkReceipt: receipt})
}

// readChunkPart returns the chunk bytes. A part sent without a filename is
// parsed as a plain form value rather than a file.
func readChunkPart(w http.ResponseWriter, r *http.Request, sessionID string) ([]byte, bool) {
	file, _, err := r.FormFile("chunk")
	if errors.Is(err, http.ErrMissingFile) {
		if values := r.MultipartForm.Value["chunk"]; len(values) > 0 {
			return []byte(values[0]), true
		}
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "chunk is required")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("failed to read chunk", "session_id", sessionID, "error", err)
		respondError(w, http.StatusBadRequest, "Failed to read chunk")
		return nil, false
	}
	return data, true
}

type assembleResponse struct {
	Success bool `json:"success"`
	*gallery.AssembleResult
}

// Assemble finalizes an uploaded chunk set.
func (h *UploadHandler) Assemble(w http.ResponseWriter, r *http.Request) {
	var req gallery.AssembleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Assemble(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err, http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, assembleResponse{Success: true, AssembleResult: result})
}

type uploadFailure struct {
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

type uploadResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Data    []models.MediaFile `json:"data"`
	Skipped []uploadFailure    `json:"skipped,omitempty"`
}

// UploadImages stores small files directly. Files that fail validation or
// storage are skipped and reported; the request fails only when nothing was
// uploaded.
func (h *UploadHandler) UploadImages(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadFiles*h.cfg.MaxObjectSize+maxJSONBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondMultipartError(w, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		respondError(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	if len(headers) > maxUploadFiles {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("At most %d files can be uploaded at once", maxUploadFiles))
		return
	}

	var folderID *string
	if id := r.FormValue("folder_id"); id != "" {
		folderID = &id
	}
	isPublic, _ := strconv.ParseBool(r.FormValue("is_public"))

	resp := uploadResponse{Data: []models.MediaFile{}}
	for _, fh := range headers {
		file, err := h.uploadOne(r, fh, folderID, isPublic)
		if err != nil {
			logger.Warn("skipping uploaded file", "filename", fh.Filename, "error", err)
			resp.Skipped = append(resp.Skipped, uploadFailure{Filename: fh.Filename, Message: err.Error()})
			// A missing folder fails every file the same way.
			if errors.Is(err, gallery.ErrFolderNotFound) {
				respondServiceError(w, r, err, http.StatusBadGateway)
				return
			}
			continue
		}
		resp.Data = append(resp.Data, *file)
	}

	if len(resp.Data) == 0 {
		resp.Message = "No valid files were uploaded"
		respondJSON(w, http.StatusBadRequest, resp)
		return
	}

	resp.Success = true
	resp.Message = fmt.Sprintf("%d file(s) uploaded successfully", len(resp.Data))
	respondJSON(w, http.StatusOK, resp)
}

func (h *UploadHandler) uploadOne(r *http.Request, fh *multipart.FileHeader, folderID *string, isPublic bool) (*models.MediaFile, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	return h.svc.UploadDirect(r.Context(), gallery.DirectUpload{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Content:  content,
		FolderID: folderID,
		IsPublic: isPublic,
	})
}

func respondMultipartError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	respondError(w, http.StatusBadRequest, "Invalid multipart form")
}
