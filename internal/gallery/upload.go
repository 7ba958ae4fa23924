package gallery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/agjmills/gallery/internal/media"
	"github.com/agjmills/gallery/internal/metrics"
	"github.com/agjmills/gallery/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// ChunkUpload is one chunk received from a client.
type ChunkUpload struct {
	SessionID string
	Info      chunking.ChunkInfo
	Data      []byte
}

// ChunkReceipt acknowledges a stored chunk.
type ChunkReceipt struct {
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	UploadURL  string `json:"upload_url"`
}

// StoreChunk writes one chunk at its deterministic path. Re-sending a chunk
// overwrites the previous copy.
func (s *Service) StoreChunk(ctx context.Context, up ChunkUpload) (ChunkReceipt, error) {
	if !ValidSessionID(up.SessionID) {
		return ChunkReceipt{}, invalid("session_id", "session_id may only contain letters, digits, '_' and '-'")
	}
	if err := up.Info.Validate(); err != nil {
		return ChunkReceipt{}, invalid("chunk_info", "invalid chunk_info: %v", err)
	}
	if up.Info.MimeType != "" && !media.IsSupported(up.Info.MimeType) {
		return ChunkReceipt{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, up.Info.MimeType)
	}
	if len(up.Data) == 0 {
		return ChunkReceipt{}, invalid("chunk", "chunk is empty")
	}
	if int64(len(up.Data)) > s.maxObjectSize() {
		return ChunkReceipt{}, fmt.Errorf("%w: chunk is %s, limit is %s", ErrTooLarge,
			humanize.IBytes(uint64(len(up.Data))), humanize.IBytes(uint64(s.maxObjectSize())))
	}
	if up.Info.ChunkSize > 0 && int64(len(up.Data)) != up.Info.ChunkSize {
		return ChunkReceipt{}, invalid("chunk", "chunk is %d bytes but chunk_info declares %d", len(up.Data), up.Info.ChunkSize)
	}

	name := chunking.ChunkName(up.SessionID, up.Info.ChunkIndex)
	start := time.Now()

	res, err := s.store.Put(ctx, s.layout.ChunkPath(up.SessionID, up.Info.ChunkIndex), up.Data, "Upload chunk: "+name)
	if err != nil {
		logger.Error("chunk upload failed",
			"session_id", up.SessionID,
			"chunk", up.Info.ChunkIndex,
			"total_chunks", up.Info.TotalChunks,
			"error", err,
		)
		return ChunkReceipt{}, &chunking.ChunkError{Index: up.Info.ChunkIndex, Op: "upload", Err: err}
	}

	metrics.RecordChunkStored()
	logger.Info("chunk stored",
		"session_id", up.SessionID,
		"chunk", fmt.Sprintf("%d/%d", up.Info.ChunkIndex+1, up.Info.TotalChunks),
		"size", humanize.IBytes(uint64(len(up.Data))),
		"original", up.Info.OriginalFileName,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return ChunkReceipt{
		ChunkID:    name,
		ChunkIndex: up.Info.ChunkIndex,
		UploadURL:  res.URL,
	}, nil
}

// AssembleRequest finalizes an uploaded chunk set into a media file.
type AssembleRequest struct {
	SessionID        string  `json:"session_id" validate:"required,sessionid"`
	OriginalFileName string  `json:"original_file_name" validate:"required,max=255"`
	TotalChunks      int     `json:"total_chunks" validate:"required,min=1,max=9999"`
	MimeType         string  `json:"mime_type" validate:"required"`
	FolderID         *string `json:"folder_id,omitempty"`
	IsPublic         bool    `json:"is_public"`
}

type AssembleResult struct {
	DownloadURL string            `json:"download_url"`
	Image       *models.MediaFile `json:"image"`
}

// VirtualPath is the serving path of a chunked file.
func VirtualPath(sessionID, filename string) string {
	return "/serve/" + sessionID + "/" + filename
}

// Assemble fetches every chunk of the session in index order and records the
// result as one chunked media file. Chunks stay in the store as the file's
// backing. Nothing is written when any chunk is missing.
func (s *Service) Assemble(ctx context.Context, req AssembleRequest) (*AssembleResult, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if !media.IsSupported(req.MimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, req.MimeType)
	}
	folderID, err := s.ensureFolder(ctx, req.FolderID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	parts, err := s.fetchChunks(ctx, req.SessionID, req.TotalChunks, 1)
	if err != nil {
		metrics.RecordAssembly(false)
		logger.Error("assembly failed", "session_id", req.SessionID, "total_chunks", req.TotalChunks, "error", err)
		return nil, err
	}

	var size int64
	for _, p := range parts {
		size += int64(len(p))
	}

	filename := uuid.NewString() + media.Extension(req.OriginalFileName)
	mimeType := media.Normalize(req.MimeType)
	file := &models.MediaFile{
		Filename:     filename,
		OriginalName: req.OriginalFileName,
		Path:         VirtualPath(req.SessionID, filename),
		Size:         size,
		MimeType:     mimeType,
		MediaType:    media.TypeOf(mimeType),
		IsPublic:     req.IsPublic,
		FolderID:     folderID,
	}
	if err := file.SetChunked(models.ChunkedBacking{
		SessionID:   req.SessionID,
		TotalChunks: req.TotalChunks,
		ChunkSize:   int64(len(parts[0])),
	}); err != nil {
		metrics.RecordAssembly(false)
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		metrics.RecordAssembly(false)
		return nil, fmt.Errorf("failed to save media file: %w", err)
	}

	metrics.RecordAssembly(true)
	metrics.RecordFileUpload(file.MediaType)
	logger.Info("chunked file assembled",
		"session_id", req.SessionID,
		"file_id", file.ID,
		"original", req.OriginalFileName,
		"chunks", req.TotalChunks,
		"size", humanize.IBytes(uint64(size)),
		"path", file.Path,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return &AssembleResult{DownloadURL: file.Path, Image: s.withFolder(ctx, file)}, nil
}

// DirectUpload is a file small enough to live in a single object.
type DirectUpload struct {
	FileName string
	MimeType string
	Content  []byte
	FolderID *string
	IsPublic bool
}

// UploadDirect stores a file as one object and records it without chunk
// metadata.
func (s *Service) UploadDirect(ctx context.Context, up DirectUpload) (*models.MediaFile, error) {
	if strings.TrimSpace(up.FileName) == "" {
		return nil, invalid("file", "file name is required")
	}
	if len(up.Content) == 0 {
		return nil, invalid("file", "%s is empty", up.FileName)
	}

	mimeType := media.Detect(up.MimeType, up.Content)
	if !media.IsSupported(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mimeType)
	}
	mediaType := media.TypeOf(mimeType)
	if limit := s.maxDirectSize(mediaType); int64(len(up.Content)) > limit {
		return nil, fmt.Errorf("%w: %s is %s, %s limit is %s", ErrTooLarge, up.FileName,
			humanize.IBytes(uint64(len(up.Content))), mediaType, humanize.IBytes(uint64(limit)))
	}

	folderID, err := s.ensureFolder(ctx, up.FolderID)
	if err != nil {
		return nil, err
	}

	filename := uuid.NewString() + media.Extension(up.FileName)
	res, err := s.store.Put(ctx, s.layout.MediaPath(filename), up.Content, "Upload image: "+filename)
	if err != nil {
		if errors.Is(err, storage.ErrObjectTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrTooLarge, err)
		}
		return nil, fmt.Errorf("failed to store %s: %w", up.FileName, err)
	}

	servePath := res.URL
	if servePath == "" {
		servePath = "/media/" + filename
	}

	file := &models.MediaFile{
		Filename:     filename,
		OriginalName: up.FileName,
		Path:         servePath,
		Size:         int64(len(up.Content)),
		MimeType:     mimeType,
		MediaType:    mediaType,
		IsPublic:     up.IsPublic,
		FolderID:     folderID,
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		s.deleteObject(ctx, s.layout.MediaPath(filename), "Delete image: "+filename, "unsaved upload")
		return nil, fmt.Errorf("failed to save media file: %w", err)
	}

	metrics.RecordFileUpload(mediaType)
	logger.Info("file uploaded",
		"file_id", file.ID,
		"original", up.FileName,
		"media_type", mediaType,
		"size", humanize.IBytes(uint64(len(up.Content))),
	)

	return s.withFolder(ctx, file), nil
}

// withFolder reloads a freshly saved file with its folder. The record is
// already committed, so a failed reload returns file as saved.
func (s *Service) withFolder(ctx context.Context, file *models.MediaFile) *models.MediaFile {
	var loaded models.MediaFile
	if err := s.db.WithContext(ctx).Preload("Folder").First(&loaded, "id = ?", file.ID).Error; err != nil {
		logger.Warn("failed to reload media file", "file_id", file.ID, "error", err)
		return file
	}
	return &loaded
}
