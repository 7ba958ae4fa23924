package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/logger"
	"golang.org/x/sync/errgroup"
)

// OpenChunked finds the chunked file served at /serve/{sessionID}/{filename}.
func (s *Service) OpenChunked(ctx context.Context, sessionID, filename string) (*models.MediaFile, models.ChunkedBacking, error) {
	var file models.MediaFile
	err := s.db.WithContext(ctx).
		Where("filename = ? AND path = ?", filename, VirtualPath(sessionID, filename)).
		First(&file).Error
	if err != nil {
		return nil, models.ChunkedBacking{}, notFound(err, ErrNotFound)
	}

	b, err := file.Backing()
	if errors.Is(err, models.ErrChunkFlagUnset) {
		return &file, models.ChunkedBacking{}, ErrNotChunkedFile
	}
	if err != nil {
		return &file, models.ChunkedBacking{}, fmt.Errorf("%w: %w", ErrMalformedMetadata, err)
	}

	chunked, ok := b.(models.ChunkedBacking)
	if !ok {
		return &file, models.ChunkedBacking{}, ErrNotChunked
	}
	if chunked.SessionID != sessionID {
		return &file, models.ChunkedBacking{}, fmt.Errorf("%w: manifest session %q does not match %q",
			ErrMalformedMetadata, chunked.SessionID, sessionID)
	}

	return &file, chunked, nil
}

// FindByFilename returns the media file with the given stored filename.
func (s *Service) FindByFilename(ctx context.Context, filename string) (*models.MediaFile, error) {
	var file models.MediaFile
	if err := s.db.WithContext(ctx).Where("filename = ?", filename).First(&file).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return &file, nil
}

// Reconstruct re-fetches every chunk of b and concatenates them in index
// order. Nothing is cached between calls.
func (s *Service) Reconstruct(ctx context.Context, file *models.MediaFile, b models.ChunkedBacking) ([]byte, error) {
	parts, err := s.fetchChunks(ctx, b.SessionID, b.TotalChunks, s.cfg.ReconstructWorkers)
	if err != nil {
		logger.Error("reconstruction failed", "file_id", file.ID, "session_id", b.SessionID, "error", err)
		return nil, err
	}

	content := bytes.Join(parts, nil)
	if int64(len(content)) != file.Size {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrCorruptContent, len(content), file.Size)
	}
	return content, nil
}

// fetchChunks returns chunks 0..total-1 of a session. With one worker the
// fetch is sequential and stops at the first failure. More workers fetch
// concurrently; results are still placed by index.
func (s *Service) fetchChunks(ctx context.Context, sessionID string, total, workers int) ([][]byte, error) {
	parts := make([][]byte, total)

	if workers <= 1 || total == 1 {
		for i := range total {
			data, err := s.store.Get(ctx, s.layout.ChunkPath(sessionID, i))
			if err != nil {
				return nil, &chunking.ChunkError{Index: i, Op: "fetch", Err: err}
			}
			parts[i] = data
		}
		return parts, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range total {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &chunking.ChunkError{Index: i, Op: "fetch", Err: err}
			}
			data, err := s.store.Get(gctx, s.layout.ChunkPath(sessionID, i))
			if err != nil {
				return &chunking.ChunkError{Index: i, Op: "fetch", Err: err}
			}
			parts[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// FailedChunk extracts the chunk index from a transfer error.
func FailedChunk(err error) (int, bool) {
	var chunkErr *chunking.ChunkError
	if errors.As(err, &chunkErr) {
		return chunkErr.Index, true
	}
	return 0, false
}
