package gallery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/agjmills/gallery/internal/config"
	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/storage"
	"github.com/agjmills/gallery/internal/testutil"
	"gorm.io/gorm"
)

const mb = 1024 * 1024

type testEnv struct {
	svc   *Service
	db    *gorm.DB
	mem   *storage.MemoryBackend
	store *testutil.FailingStore
	cfg   *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
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
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	db := testutil.NewTestDB(t)
	mem := storage.NewMemoryBackend()
	store := testutil.NewFailingStore(mem)

	return &testEnv{
		svc:   NewService(db, store, cfg),
		db:    db,
		mem:   mem,
		store: store,
		cfg:   cfg,
	}
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + i/251)
	}
	return b
}

// uploadChunks splits content and stores every chunk through the service.
func (e *testEnv) uploadChunks(t *testing.T, sessionID, name, mimeType string, content []byte, chunkSize int64) int {
	t.Helper()

	chunks, err := chunking.Split(bytes.NewReader(content), chunking.FileInfo{
		Name: name, Size: int64(len(content)), MimeType: mimeType,
	}, chunkSize)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	for _, c := range chunks {
		data, err := io.ReadAll(c.Data)
		if err != nil {
			t.Fatalf("Reading chunk failed: %v", err)
		}
		if _, err := e.svc.StoreChunk(context.Background(), ChunkUpload{SessionID: sessionID, Info: c.Info, Data: data}); err != nil {
			t.Fatalf("StoreChunk(%d) failed: %v", c.Info.ChunkIndex, err)
		}
	}
	return len(chunks)
}

func (e *testEnv) countFiles(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.MediaFile{}).Count(&n).Error; err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

func TestStoreChunk_DeterministicPath(t *testing.T) {
	env := newTestEnv(t)

	receipt, err := env.svc.StoreChunk(context.Background(), ChunkUpload{
		SessionID: "session_abc",
		Info:      chunking.ChunkInfo{ChunkIndex: 3, TotalChunks: 5, ChunkSize: 4, MimeType: "video/mp4"},
		Data:      []byte("data"),
	})
	if err != nil {
		t.Fatalf("StoreChunk failed: %v", err)
	}

	if receipt.ChunkID != "session_abc_chunk_0003" || receipt.ChunkIndex != 3 {
		t.Errorf("Unexpected receipt: %+v", receipt)
	}
	if !env.mem.Exists("temp_chunks/session_abc/session_abc_chunk_0003") {
		t.Error("Chunk was not written at its deterministic path")
	}
}

func TestStoreChunk_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxObjectSize = 8

	tests := []struct {
		name    string
		upload  ChunkUpload
		wantErr error
	}{
		{
			name:   "path traversal session",
			upload: ChunkUpload{SessionID: "../etc", Info: chunking.ChunkInfo{TotalChunks: 1}, Data: []byte("x")},
		},
		{
			name:   "index out of range",
			upload: ChunkUpload{SessionID: "s1", Info: chunking.ChunkInfo{ChunkIndex: 2, TotalChunks: 2}, Data: []byte("x")},
		},
		{
			name:   "empty chunk",
			upload: ChunkUpload{SessionID: "s1", Info: chunking.ChunkInfo{TotalChunks: 1}},
		},
		{
			name:   "declared size mismatch",
			upload: ChunkUpload{SessionID: "s1", Info: chunking.ChunkInfo{TotalChunks: 1, ChunkSize: 3}, Data: []byte("x")},
		},
		{
			name:    "over the object limit",
			upload:  ChunkUpload{SessionID: "s1", Info: chunking.ChunkInfo{TotalChunks: 1}, Data: []byte("123456789")},
			wantErr: ErrTooLarge,
		},
		{
			name:    "unsupported type",
			upload:  ChunkUpload{SessionID: "s1", Info: chunking.ChunkInfo{TotalChunks: 1, MimeType: "application/zip"}, Data: []byte("x")},
			wantErr: ErrUnsupportedMedia,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.StoreChunk(context.Background(), tt.upload)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %T: %v", err, err)
			}
		})
	}

	if env.mem.FileCount() != 0 {
		t.Errorf("Rejected chunks must not reach the store, found %d objects", env.mem.FileCount())
	}
}

func TestStoreChunk_StoreFailureNamesChunk(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailPut("_chunk_0002")

	_, err := env.svc.StoreChunk(context.Background(), ChunkUpload{
		SessionID: "s1",
		Info:      chunking.ChunkInfo{ChunkIndex: 2, TotalChunks: 3},
		Data:      []byte("abc"),
	})

	idx, ok := FailedChunk(err)
	if !ok || idx != 2 {
		t.Errorf("Expected chunk error for index 2, got %v", err)
	}
}

func TestAssemble_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	content := pattern(1000)
	env.uploadChunks(t, "session_rt", "clip.MP4", "video/mp4", content, 300)

	result, err := env.svc.Assemble(ctx, AssembleRequest{
		SessionID:        "session_rt",
		OriginalFileName: "clip.MP4",
		TotalChunks:      4,
		MimeType:         "video/mp4",
		IsPublic:         true,
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	file := result.Image
	if result.DownloadURL != "/serve/session_rt/"+file.Filename || file.Path != result.DownloadURL {
		t.Errorf("Unexpected virtual path %q for %q", result.DownloadURL, file.Filename)
	}
	if !strings.HasSuffix(file.Filename, ".mp4") || file.Filename == "clip.MP4" {
		t.Errorf("Expected a generated .mp4 filename, got %q", file.Filename)
	}
	if file.Size != 1000 || file.MediaType != "video" || !file.IsPublic {
		t.Errorf("Unexpected record: %+v", file)
	}

	b, err := file.Backing()
	if err != nil {
		t.Fatalf("Backing failed: %v", err)
	}
	chunked, ok := b.(models.ChunkedBacking)
	if !ok {
		t.Fatalf("Expected chunked backing, got %T", b)
	}
	if chunked.SessionID != "session_rt" || chunked.TotalChunks != 4 || chunked.ChunkSize != 300 {
		t.Errorf("Unexpected manifest: %+v", chunked)
	}

	for i := range 4 {
		if !env.mem.Exists(env.svc.Layout().ChunkPath("session_rt", i)) {
			t.Errorf("Chunk %d should be kept after assembly", i)
		}
	}

	opened, backing, err := env.svc.OpenChunked(ctx, "session_rt", file.Filename)
	if err != nil {
		t.Fatalf("OpenChunked failed: %v", err)
	}
	got, err := env.svc.Reconstruct(ctx, opened, backing)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("Reconstructed content differs from the upload")
	}
}

// failFolderPreload makes every query that preloads Folder fail.
func failFolderPreload(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Callback().Query().Before("gorm:query").Register("test:fail_folder_preload", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Preloads["Folder"]; ok {
			tx.AddError(errors.New("reload failed"))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestUploadReturnsSavedRecordWhenReloadFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.uploadChunks(t, "session_reload", "clip.mp4", "video/mp4", pattern(600), 300)
	failFolderPreload(t, env.db)

	result, err := env.svc.Assemble(ctx, AssembleRequest{
		SessionID:        "session_reload",
		OriginalFileName: "clip.mp4",
		TotalChunks:      2,
		MimeType:         "video/mp4",
	})
	if err != nil {
		t.Fatalf("Assemble should succeed once the record is saved: %v", err)
	}
	if result.Image == nil || result.Image.ID == "" || result.Image.Size != 600 {
		t.Fatalf("Unexpected image: %+v", result.Image)
	}

	direct, err := env.svc.UploadDirect(ctx, DirectUpload{FileName: "a.png", MimeType: "image/png", Content: pattern(16)})
	if err != nil {
		t.Fatalf("UploadDirect should succeed once the record is saved: %v", err)
	}
	if direct.ID == "" || direct.OriginalName != "a.png" {
		t.Errorf("Unexpected record: %+v", direct)
	}

	var count int64
	env.db.Model(&models.MediaFile{}).Count(&count)
	if count != 2 {
		t.Errorf("Expected 2 saved records, got %d", count)
	}
}

func TestAssemble_MissingChunkCreatesNoRecord(t *testing.T) {
	env := newTestEnv(t)
	env.uploadChunks(t, "session_gap", "v.webm", "video/webm", pattern(900), 300)
	if err := env.mem.Delete(context.Background(), env.svc.Layout().ChunkPath("session_gap", 1), ""); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := env.svc.Assemble(context.Background(), AssembleRequest{
		SessionID:        "session_gap",
		OriginalFileName: "v.webm",
		TotalChunks:      3,
		MimeType:         "video/webm",
	})
	if err == nil {
		t.Fatal("Expected assembly to fail")
	}

	idx, ok := FailedChunk(err)
	if !ok || idx != 1 {
		t.Errorf("Expected failure at chunk 1, got %v", err)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected the cause to be ErrNotFound, got %v", err)
	}
	if n := env.countFiles(t); n != 0 {
		t.Errorf("No record may be created on failure, found %d", n)
	}

	gets := env.store.Gets()
	if len(gets) != 2 {
		t.Errorf("Assembly should stop at the first failure, made %d fetches", len(gets))
	}
}

func TestAssemble_Validation(t *testing.T) {
	env := newTestEnv(t)
	folder := "no-such-folder"

	tests := []struct {
		name    string
		req     AssembleRequest
		wantErr error
	}{
		{name: "missing session", req: AssembleRequest{OriginalFileName: "a.mp4", TotalChunks: 1, MimeType: "video/mp4"}},
		{name: "bad session", req: AssembleRequest{SessionID: "a/b", OriginalFileName: "a.mp4", TotalChunks: 1, MimeType: "video/mp4"}},
		{name: "missing name", req: AssembleRequest{SessionID: "s", TotalChunks: 1, MimeType: "video/mp4"}},
		{name: "zero chunks", req: AssembleRequest{SessionID: "s", OriginalFileName: "a.mp4", MimeType: "video/mp4"}},
		{name: "unsupported", req: AssembleRequest{SessionID: "s", OriginalFileName: "a.txt", TotalChunks: 1, MimeType: "text/plain"}, wantErr: ErrUnsupportedMedia},
		{name: "unknown folder", req: AssembleRequest{SessionID: "s", OriginalFileName: "a.mp4", TotalChunks: 1, MimeType: "video/mp4", FolderID: &folder}, wantErr: ErrFolderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Assemble(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("Expected ValidationError, got %T: %v", err, err)
			}
		})
	}

	if len(env.store.Gets()) != 0 {
		t.Error("Validation failures must not touch the store")
	}
}

func TestLargeVideoScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates 60MB")
	}

	env := newTestEnv(t)
	content := pattern(60 * mb)

	total := env.uploadChunks(t, "session_big", "movie.mp4", "video/mp4", content, 0)
	if total != 3 {
		t.Fatalf("Expected 3 chunks for 60MB, got %d", total)
	}

	result, err := env.svc.Assemble(context.Background(), AssembleRequest{
		SessionID:        "session_big",
		OriginalFileName: "movie.mp4",
		TotalChunks:      total,
		MimeType:         "video/mp4",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	b, _ := result.Image.Backing()
	chunked := b.(models.ChunkedBacking)
	if chunked.TotalChunks != 3 || chunked.ChunkSize != 20*mb {
		t.Errorf("Unexpected manifest: %+v", chunked)
	}
	if result.Image.Size != 60*mb {
		t.Errorf("Expected size 60MB, got %d", result.Image.Size)
	}
}

func TestOpenChunked_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.svc.OpenChunked(ctx, "s1", "missing.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	direct := models.MediaFile{Filename: "d.mp4", OriginalName: "d.mp4", Path: VirtualPath("s2", "d.mp4"), MimeType: "video/mp4", MediaType: "video"}
	env.db.Create(&direct)
	if _, _, err := env.svc.OpenChunked(ctx, "s2", "d.mp4"); !errors.Is(err, ErrNotChunked) {
		t.Errorf("Expected ErrNotChunked, got %v", err)
	}

	unflagged := models.MediaFile{
		Filename: "u.mp4", OriginalName: "u.mp4", Path: VirtualPath("s4", "u.mp4"),
		MimeType: "video/mp4", MediaType: "video", Metadata: []byte(`{"session_id":"s4","total_chunks":2,"chunk_size":10}`),
	}
	env.db.Create(&unflagged)
	if _, _, err := env.svc.OpenChunked(ctx, "s4", "u.mp4"); !errors.Is(err, ErrNotChunkedFile) {
		t.Errorf("Expected ErrNotChunkedFile, got %v", err)
	}

	malformed := models.MediaFile{
		Filename: "m.mp4", OriginalName: "m.mp4", Path: VirtualPath("s3", "m.mp4"),
		MimeType: "video/mp4", MediaType: "video", Metadata: []byte(`{"session_id":"s3","total_chunks":0,"is_chunked_file":true}`),
	}
	env.db.Create(&malformed)
	if _, _, err := env.svc.OpenChunked(ctx, "s3", "m.mp4"); !errors.Is(err, ErrMalformedMetadata) {
		t.Errorf("Expected ErrMalformedMetadata, got %v", err)
	}

	// The path must match the session as well as the filename.
	if _, _, err := env.svc.OpenChunked(ctx, "other", "m.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a mismatched session, got %v", err)
	}
}

func assembleFile(t *testing.T, env *testEnv, sessionID string, content []byte, chunkSize int64) *models.MediaFile {
	t.Helper()
	total := env.uploadChunks(t, sessionID, "clip.mp4", "video/mp4", content, chunkSize)
	result, err := env.svc.Assemble(context.Background(), AssembleRequest{
		SessionID: sessionID, OriginalFileName: "clip.mp4", TotalChunks: total, MimeType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	return result.Image
}

func TestReconstruct_RefetchesOnEveryCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file := assembleFile(t, env, "session_rf", pattern(500), 100)
	env.store.Reset()

	b, _ := file.Backing()
	for range 2 {
		if _, err := env.svc.Reconstruct(ctx, file, b.(models.ChunkedBacking)); err != nil {
			t.Fatalf("Reconstruct failed: %v", err)
		}
	}

	gets := env.store.Gets()
	if len(gets) != 10 {
		t.Fatalf("Expected 10 fetches across two reads, got %d", len(gets))
	}
	for i, p := range gets[:5] {
		if p != env.svc.Layout().ChunkPath("session_rf", i) {
			t.Errorf("Fetch %d was %s, chunks must be fetched in index order", i, p)
		}
	}
}

func TestReconstruct_ChunkFailure(t *testing.T) {
	env := newTestEnv(t)
	file := assembleFile(t, env, "session_cf", pattern(500), 100)
	env.store.FailGet("_chunk_0003")

	b, _ := file.Backing()
	_, err := env.svc.Reconstruct(context.Background(), file, b.(models.ChunkedBacking))

	idx, ok := FailedChunk(err)
	if !ok || idx != 3 {
		t.Errorf("Expected failure at chunk 3, got %v", err)
	}
}

func TestReconstruct_SizeMismatch(t *testing.T) {
	env := newTestEnv(t)
	file := assembleFile(t, env, "session_sm", pattern(500), 100)
	if _, err := env.mem.Put(context.Background(), env.svc.Layout().ChunkPath("session_sm", 4), []byte("short"), ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	b, _ := file.Backing()
	_, err := env.svc.Reconstruct(context.Background(), file, b.(models.ChunkedBacking))
	if !errors.Is(err, ErrCorruptContent) {
		t.Errorf("Expected ErrCorruptContent, got %v", err)
	}
}

func TestReconstruct_ParallelWorkersKeepOrder(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.ReconstructWorkers = 4
	content := pattern(2000)
	file := assembleFile(t, env, "session_par", content, 150)

	b, _ := file.Backing()
	got, err := env.svc.Reconstruct(context.Background(), file, b.(models.ChunkedBacking))
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("Parallel reconstruction changed the byte order")
	}

	env.store.FailGet("_chunk_0007")
	_, err = env.svc.Reconstruct(context.Background(), file, b.(models.ChunkedBacking))
	if _, ok := FailedChunk(err); !ok {
		t.Errorf("Expected a chunk error, got %v", err)
	}
}

func TestUploadDirect_SmallImage(t *testing.T) {
	env := newTestEnv(t)
	content := pattern(2 * mb)

	file, err := env.svc.UploadDirect(context.Background(), DirectUpload{
		FileName: "photo.jpg",
		MimeType: "image/jpeg",
		Content:  content,
	})
	if err != nil {
		t.Fatalf("UploadDirect failed: %v", err)
	}

	if len(file.Metadata) != 0 {
		t.Errorf("Direct files must not carry metadata, got %s", file.Metadata)
	}
	if file.IsChunked() {
		t.Error("Direct file reported as chunked")
	}
	if file.Path != "/media/"+file.Filename {
		t.Errorf("Expected served path for a backend without URLs, got %q", file.Path)
	}
	if env.mem.FileCount() != 1 || !env.mem.Exists("Gallery/"+file.Filename) {
		t.Errorf("Expected exactly one object under Gallery/, have %d", env.mem.FileCount())
	}

	got, err := env.svc.Content(context.Background(), file)
	if err != nil {
		t.Fatalf("Content failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("Direct content mismatch")
	}
}

func TestUploadDirect_Limits(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxImageSize = 100
	env.cfg.MaxVideoSize = 200

	tests := []struct {
		name    string
		upload  DirectUpload
		wantErr error
	}{
		{name: "image over limit", upload: DirectUpload{FileName: "a.png", MimeType: "image/png", Content: pattern(101)}, wantErr: ErrTooLarge},
		{name: "video over limit", upload: DirectUpload{FileName: "a.mp4", MimeType: "video/mp4", Content: pattern(201)}, wantErr: ErrTooLarge},
		{name: "unsupported", upload: DirectUpload{FileName: "a.txt", MimeType: "text/plain", Content: []byte("hello")}, wantErr: ErrUnsupportedMedia},
		{name: "empty", upload: DirectUpload{FileName: "a.png", MimeType: "image/png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.UploadDirect(context.Background(), tt.upload)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := env.svc.UploadDirect(context.Background(), DirectUpload{FileName: "b.mp4", MimeType: "video/mp4", Content: pattern(200)}); err != nil {
		t.Errorf("Video at the limit should be accepted: %v", err)
	}
	if n := env.countFiles(t); n != 1 {
		t.Errorf("Expected one record, got %d", n)
	}
}

func TestDeleteImages_ChunkedBestEffort(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file := assembleFile(t, env, "session_del", pattern(300), 100)
	env.store.FailDelete("_chunk_0001")

	report, err := env.svc.DeleteImages(ctx, []string{file.ID})
	if err != nil {
		t.Fatalf("DeleteImages failed: %v", err)
	}

	if report.Files != 1 || report.Chunked != 1 || report.ChunksAttempted != 3 || report.ChunksFailed != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if n := env.countFiles(t); n != 0 {
		t.Errorf("Record must be deleted even when chunk deletion fails, found %d", n)
	}

	layout := env.svc.Layout()
	if env.mem.Exists(layout.ChunkPath("session_del", 0)) || env.mem.Exists(layout.ChunkPath("session_del", 2)) {
		t.Error("Deletable chunks should be gone")
	}
	if !env.mem.Exists(layout.ChunkPath("session_del", 1)) {
		t.Error("The failed chunk should still exist")
	}

	var orphans []models.OrphanedObject
	env.db.Find(&orphans)
	if len(orphans) != 1 || orphans[0].Path != layout.ChunkPath("session_del", 1) {
		t.Fatalf("Expected the failed chunk to be recorded as orphaned, got %+v", orphans)
	}

	// Sweeping while the store still fails bumps the attempt count.
	res, err := env.svc.SweepOrphans(ctx)
	if err != nil {
		t.Fatalf("SweepOrphans failed: %v", err)
	}
	if res.Failed != 1 || res.Cleaned != 0 {
		t.Errorf("Unexpected sweep result: %+v", res)
	}
	env.db.First(&orphans[0], orphans[0].ID)
	if orphans[0].Attempts != 1 || orphans[0].LastError == "" {
		t.Errorf("Expected attempts=1 with an error, got %+v", orphans[0])
	}

	env.store.Reset()
	res, err = env.svc.SweepOrphans(ctx)
	if err != nil {
		t.Fatalf("SweepOrphans failed: %v", err)
	}
	if res.Cleaned != 1 {
		t.Errorf("Expected the orphan to be cleaned, got %+v", res)
	}
	if pending, _ := env.svc.PendingOrphans(ctx); pending != 0 {
		t.Errorf("Expected no pending orphans, got %d", pending)
	}
	if env.mem.Exists(layout.ChunkPath("session_del", 1)) {
		t.Error("Sweep should have deleted the orphaned chunk")
	}
}

func TestSweepOrphans_RespectsAttemptLimit(t *testing.T) {
	env := newTestEnv(t)
	env.db.Create(&models.OrphanedObject{Path: "temp_chunks/s/s_chunk_0000", Attempts: 3})

	res, err := env.svc.SweepOrphans(context.Background())
	if err != nil {
		t.Fatalf("SweepOrphans failed: %v", err)
	}
	if res.Attempted != 0 {
		t.Errorf("Orphans at the attempt limit must be skipped, attempted %d", res.Attempted)
	}
}

func TestDeleteImages_Direct(t *testing.T) {
	env := newTestEnv(t)
	file, err := env.svc.UploadDirect(context.Background(), DirectUpload{FileName: "p.png", MimeType: "image/png", Content: pattern(64)})
	if err != nil {
		t.Fatalf("UploadDirect failed: %v", err)
	}

	report, err := env.svc.DeleteImages(context.Background(), []string{file.ID, file.ID})
	if err != nil {
		t.Fatalf("DeleteImages failed: %v", err)
	}
	if report.Direct != 1 || report.Files != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if env.mem.FileCount() != 0 {
		t.Error("Direct object should be deleted")
	}

	if _, err := env.svc.DeleteImages(context.Background(), []string{file.ID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for already deleted ids, got %v", err)
	}
	if _, err := env.svc.DeleteImages(context.Background(), nil); err == nil {
		t.Error("Expected an error for an empty selection")
	}
}

func TestSetVisibilityAndMove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, _ := env.svc.UploadDirect(ctx, DirectUpload{FileName: "a.png", MimeType: "image/png", Content: pattern(10)})
	b, _ := env.svc.UploadDirect(ctx, DirectUpload{FileName: "b.png", MimeType: "image/png", Content: pattern(10)})

	n, err := env.svc.SetVisibility(ctx, []string{a.ID, b.ID}, true)
	if err != nil || n != 2 {
		t.Fatalf("SetVisibility = %d, %v", n, err)
	}
	public, _ := env.svc.ListImages(ctx, ImageFilter{PublicOnly: true})
	if len(public) != 2 {
		t.Errorf("Expected 2 public files, got %d", len(public))
	}

	folder, err := env.svc.CreateFolder(ctx, "Trips", false)
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if _, err := env.svc.MoveToFolder(ctx, []string{a.ID}, &folder.ID); err != nil {
		t.Fatalf("MoveToFolder failed: %v", err)
	}
	inFolder, _ := env.svc.ListImages(ctx, ImageFilter{FolderID: folder.ID})
	if len(inFolder) != 1 || inFolder[0].ID != a.ID || inFolder[0].Folder == nil {
		t.Errorf("Expected a in the folder with the folder preloaded, got %+v", inFolder)
	}

	if _, err := env.svc.MoveToFolder(ctx, []string{a.ID}, nil); err != nil {
		t.Fatalf("MoveToFolder(root) failed: %v", err)
	}
	moved, _ := env.svc.GetImage(ctx, a.ID)
	if moved.FolderID != nil {
		t.Errorf("Expected a at the root, got folder %v", *moved.FolderID)
	}

	missing := "missing"
	if _, err := env.svc.MoveToFolder(ctx, []string{a.ID}, &missing); !errors.Is(err, ErrFolderNotFound) {
		t.Errorf("Expected ErrFolderNotFound, got %v", err)
	}
}
