package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/gallery"
)

func TestUploadChunk(t *testing.T) {
	env := setupHandlerTest(t)
	handler := NewUploadHandler(env.svc, env.cfg)

	data := bytes.Repeat([]byte("test"), 128)
	info := chunking.ChunkInfo{
		ChunkID:          "clip.mp4_chunk_1",
		ChunkIndex:       1,
		TotalChunks:      2,
		ChunkSize:        int64(len(data)),
		OriginalFileName: "clip.mp4",
		MimeType:         "video/mp4",
	}

	w := httptest.NewRecorder()
	handler.UploadChunk(w, chunkRequest(t, "session_1", info, data))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success    bool   `json:"success"`
		ChunkID    string `json:"chunk_id"`
		ChunkIndex int    `json:"chunk_index"`
	}
	decodeBody(t, w, &resp)
	if !resp.Success || resp.ChunkID != "session_1_chunk_0001" || resp.ChunkIndex != 1 {
		t.Errorf("Unexpected response: %+v", resp)
	}

	stored, err := env.mem.Get(t.Context(), "temp_chunks/session_1/session_1_chunk_0001")
	if err != nil {
		t.Fatalf("Chunk not stored: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Errorf("Chunk content mismatch: expected %d bytes, got %d bytes", len(data), len(stored))
	}
}

func TestUploadChunk_Errors(t *testing.T) {
	env := setupHandlerTest(t)
	handler := NewUploadHandler(env.svc, env.cfg)

	valid := chunking.ChunkInfo{ChunkID: "s_chunk_0", ChunkIndex: 0, TotalChunks: 1, ChunkSize: 4, MimeType: "video/mp4"}

	t.Run("missing session", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.UploadChunk(w, chunkRequest(t, "", valid, []byte("data")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("bad session id", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.UploadChunk(w, chunkRequest(t, "../x", valid, []byte("data")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.UploadChunk(w, chunkRequest(t, "s1", valid, []byte("toolong")))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "chunk is 7 bytes but chunk_info declares 4") {
			t.Errorf("Expected a size mismatch message, got %s", w.Body.String())
		}
	})

	t.Run("chunk sent as a plain field", func(t *testing.T) {
		unnamed := valid
		unnamed.ChunkID = ""
		w := httptest.NewRecorder()
		handler.UploadChunk(w, chunkRequest(t, "s3", unnamed, []byte("data")))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if _, err := env.mem.Get(t.Context(), "temp_chunks/s3/s3_chunk_0000"); err != nil {
			t.Errorf("Chunk not stored: %v", err)
		}
	})

	t.Run("chunk missing", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("session_id", "s4")
		mw.WriteField("chunk_info", `{"chunk_index":0,"total_chunks":1}`)
		mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/upload/chunk", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		w := httptest.NewRecorder()
		handler.UploadChunk(w, req)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "chunk is required") {
			t.Errorf("Expected 400 chunk is required, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("not multipart", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.UploadChunk(w, httptest.NewRequest(http.MethodPost, "/api/upload/chunk", strings.NewReader("raw")))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400, got %d", w.Code)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		env.store.FailPut("s2_chunk_0000")
		defer env.store.Reset()

		w := httptest.NewRecorder()
		handler.UploadChunk(w, chunkRequest(t, "s2", valid, []byte("data")))
		if w.Code != http.StatusBadGateway {
			t.Fatalf("Expected 502, got %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), "chunk 0") {
			t.Errorf("Error should name the chunk: %s", w.Body.String())
		}
	})
}

func TestAssemble(t *testing.T) {
	env := setupHandlerTest(t)

	content := pattern(1000)
	result := env.uploadVideo(t, "session_assemble", "movie.mp4", content, 300)

	if !strings.HasPrefix(result.DownloadURL, "/serve/session_assemble/") || !strings.HasSuffix(result.DownloadURL, ".mp4") {
		t.Errorf("Unexpected download URL %q", result.DownloadURL)
	}
	if result.Image == nil || result.Image.Size != 1000 || result.Image.OriginalName != "movie.mp4" {
		t.Fatalf("Unexpected image: %+v", result.Image)
	}

	var file models.MediaFile
	if err := env.db.First(&file, "id = ?", result.Image.ID).Error; err != nil {
		t.Fatalf("Record not created: %v", err)
	}
	b, err := file.Backing()
	if err != nil {
		t.Fatalf("Backing failed: %v", err)
	}
	if b != (models.ChunkedBacking{SessionID: "session_assemble", TotalChunks: 4, ChunkSize: 300}) {
		t.Errorf("Unexpected manifest: %#v", b)
	}
}

func TestAssemble_MissingChunk(t *testing.T) {
	env := setupHandlerTest(t)
	handler := NewUploadHandler(env.svc, env.cfg)

	w := httptest.NewRecorder()
	handler.Assemble(w, jsonRequest(t, http.MethodPost, "/api/upload/assemble", gallery.AssembleRequest{
		SessionID:        "never_uploaded",
		OriginalFileName: "a.mp4",
		TotalChunks:      2,
		MimeType:         "video/mp4",
	}))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "chunk 0") {
		t.Errorf("Error should name the missing chunk: %s", w.Body.String())
	}

	var count int64
	env.db.Model(&models.MediaFile{}).Count(&count)
	if count != 0 {
		t.Errorf("No record should be written, found %d", count)
	}
}

func TestAssemble_Validation(t *testing.T) {
	env := setupHandlerTest(t)
	handler := NewUploadHandler(env.svc, env.cfg)

	missingFolder := "nope"
	tests := []struct {
		name       string
		req        gallery.AssembleRequest
		wantStatus int
	}{
		{
			name:       "zero chunks",
			req:        gallery.AssembleRequest{SessionID: "s", OriginalFileName: "a.mp4", MimeType: "video/mp4"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unsupported type",
			req:        gallery.AssembleRequest{SessionID: "s", OriginalFileName: "a.pdf", TotalChunks: 1, MimeType: "application/pdf"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown folder",
			req:        gallery.AssembleRequest{SessionID: "s", OriginalFileName: "a.mp4", TotalChunks: 1, MimeType: "video/mp4", FolderID: &missingFolder},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Assemble(w, jsonRequest(t, http.MethodPost, "/api/upload/assemble", tt.req))
			if w.Code != tt.wantStatus {
				t.Errorf("Expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}

	w := httptest.NewRecorder()
	handler.Assemble(w, httptest.NewRequest(http.MethodPost, "/api/upload/assemble", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", w.Code)
	}
}

func TestUploadImages(t *testing.T) {
	env := setupHandlerTest(t)
	handler := NewUploadHandler(env.svc, env.cfg)

	folder, err := env.svc.CreateFolder(t.Context(), "Trips", false)
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}

	req := filesRequest(t, []formFile{
		{name: "a.png", contentType: "image/png", data: pattern(64)},
		{name: "notes.txt", contentType: "text/plain", data: []byte("hello")},
		{name: "empty.jpg", contentType: "image/jpeg"},
	}, map[string]string{"folder_id": folder.ID, "is_public": "true"})

	w := httptest.NewRecorder()
	handler.UploadImages(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool               `json:"success"`
		Data    []models.MediaFile `json:"data"`
		Skipped []uploadFailure    `json:"skipped"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Data) != 1 || len(resp.Skipped) != 2 {
		t.Fatalf("Expected 1 upload and 2 skipped, got %d and %d", len(resp.Data), len(resp.Skipped))
	}
	got := resp.Data[0]
	if !got.IsPublic || got.FolderID == nil || *got.FolderID != folder.ID {
		t.Errorf("Form fields not applied: %+v", got)
	}
	if got.Path != "/media/"+got.Filename {
		t.Errorf("Expected app-served path, got %q", got.Path)
	}
	if !env.mem.Exists("Gallery/" + got.Filename) {
		t.Error("Object not written to the media folder")
	}
}

func TestUploadImages_NothingValid(t *testing.T) {
	env := setupHandlerTest(t)
	handler := NewUploadHandler(env.svc, env.cfg)

	w := httptest.NewRecorder()
	handler.UploadImages(w, filesRequest(t, []formFile{
		{name: "big.png", contentType: "image/png", data: pattern(10*mb + 1)},
	}, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.UploadImages(w, filesRequest(t, nil, nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 with no files, got %d", w.Code)
	}
}
