package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/agjmills/gallery/internal/config"
	"github.com/agjmills/gallery/internal/gallery"
	"github.com/agjmills/gallery/internal/storage"
	"github.com/agjmills/gallery/internal/testutil"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const mb = 1024 * 1024

type handlerEnv struct {
	db    *gorm.DB
	cfg   *config.Config
	mem   *storage.MemoryBackend
	store *testutil.FailingStore
	svc   *gallery.Service
}

func setupHandlerTest(t *testing.T) *handlerEnv {
	t.Helper()

	cfg := &config.Config{
		PublicBaseURL:          "http://gallery.test",
		MediaFolder:            "Gallery",
		ChunkFolder:            "temp_chunks",
		MaxObjectSize:          25 * mb,
		MaxImageSize:           10 * mb,
		MaxVideoSize:           25 * mb,
		ChunkedUploadThreshold: 25 * mb,
		ReconstructWorkers:     1,
		OrphanMaxAttempts:      3,
	}
	db := testutil.NewTestDB(t)
	mem := storage.NewMemoryBackend()
	store := testutil.NewFailingStore(mem)

	return &handlerEnv{
		db:    db,
		cfg:   cfg,
		mem:   mem,
		store: store,
		svc:   gallery.NewService(db, store, cfg),
	}
}

func withURLParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func chunkRequest(t *testing.T, sessionID string, info chunking.ChunkInfo, data []byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	rawInfo, _ := json.Marshal(info)
	if err := mw.WriteField("session_id", sessionID); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("chunk_info", string(rawInfo)); err != nil {
		t.Fatal(err)
	}
	part, err := mw.CreateFormFile("chunk", info.ChunkID)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload/chunk", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func filesRequest(t *testing.T, files []formFile, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	for _, f := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="files"; filename="` + f.name + `"`}
		h["Content-Type"] = []string{f.contentType}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(f.data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/images/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*13 + i/97)
	}
	return b
}

// uploadVideo pushes content through the chunk and assemble endpoints and
// returns the assembled file's serving path.
func (e *handlerEnv) uploadVideo(t *testing.T, sessionID, name string, content []byte, chunkSize int64) *gallery.AssembleResult {
	t.Helper()

	h := NewUploadHandler(e.svc, e.cfg)
	chunks, err := chunking.Split(bytes.NewReader(content), chunking.FileInfo{
		Name: name, Size: int64(len(content)), MimeType: "video/mp4",
	}, chunkSize)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	for _, c := range chunks {
		data := make([]byte, c.Data.Size())
		if _, err := c.Data.ReadAt(data, 0); err != nil {
			t.Fatalf("Reading chunk failed: %v", err)
		}
		w := httptest.NewRecorder()
		h.UploadChunk(w, chunkRequest(t, sessionID, c.Info, data))
		if w.Code != http.StatusOK {
			t.Fatalf("Chunk %d: expected 200, got %d: %s", c.Info.ChunkIndex, w.Code, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	h.Assemble(w, jsonRequest(t, http.MethodPost, "/api/upload/assemble", gallery.AssembleRequest{
		SessionID:        sessionID,
		OriginalFileName: name,
		TotalChunks:      len(chunks),
		MimeType:         "video/mp4",
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("Assemble: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp gallery.AssembleResult
	decodeBody(t, w, &resp)
	return &resp
}
