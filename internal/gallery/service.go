// Package gallery implements the media library: chunk receipt and assembly,
// reconstruction of chunked files, direct uploads, folders, sharing and
// cleanup of the remote objects behind deleted files.
package gallery

import (
	"context"
	"errors"
	"fmt"

	"github.com/agjmills/gallery/internal/config"
	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/media"
	"github.com/agjmills/gallery/internal/storage"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	store  storage.ObjectStore
	layout storage.Layout
	cfg    *config.Config
}

func NewService(db *gorm.DB, store storage.ObjectStore, cfg *config.Config) *Service {
	layout := storage.Layout{MediaFolder: cfg.MediaFolder, ChunkFolder: cfg.ChunkFolder}
	if layout.MediaFolder == "" {
		layout.MediaFolder = storage.DefaultLayout.MediaFolder
	}
	if layout.ChunkFolder == "" {
		layout.ChunkFolder = storage.DefaultLayout.ChunkFolder
	}

	return &Service{
		db:     db,
		store:  store,
		layout: layout,
		cfg:    cfg,
	}
}

// Layout returns where the service places objects in the store.
func (s *Service) Layout() storage.Layout {
	return s.layout
}

func (s *Service) maxObjectSize() int64 {
	if s.cfg.MaxObjectSize > 0 {
		return s.cfg.MaxObjectSize
	}
	return storage.DefaultMaxObjectSize
}

// maxDirectSize is the single-object upload limit for a media type.
func (s *Service) maxDirectSize(mediaType string) int64 {
	limit := s.cfg.MaxImageSize
	if mediaType == media.TypeVideo {
		limit = s.cfg.MaxVideoSize
	}
	if limit <= 0 || limit > s.maxObjectSize() {
		limit = s.maxObjectSize()
	}
	return limit
}

// ensureFolder checks an optional folder reference. Empty ids mean the root.
func (s *Service) ensureFolder(ctx context.Context, folderID *string) (*string, error) {
	if folderID == nil || *folderID == "" {
		return nil, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Folder{}).Where("id = ?", *folderID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to look up folder: %w", err)
	}
	if count == 0 {
		return nil, ErrFolderNotFound
	}
	id := *folderID
	return &id, nil
}

// Content returns the full bytes of a media file, fetching the single object
// of a direct file or reconstructing a chunked one.
func (s *Service) Content(ctx context.Context, file *models.MediaFile) ([]byte, error) {
	b, err := file.Backing()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMetadata, err)
	}

	switch b := b.(type) {
	case models.ChunkedBacking:
		return s.Reconstruct(ctx, file, b)
	case models.DirectBacking:
		content, err := s.store.Get(ctx, s.layout.MediaPath(b.Filename))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: object for %s is missing", ErrNotFound, file.Filename)
			}
			return nil, fmt.Errorf("failed to fetch %s: %w", file.Filename, err)
		}
		return content, nil
	default:
		return nil, fmt.Errorf("%w: unknown backing %T", ErrMalformedMetadata, b)
	}
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
