package gallery

import (
	"context"
	"fmt"

	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/agjmills/gallery/internal/metrics"
	"gorm.io/gorm"
)

// ImageFilter narrows ListImages. An empty FolderID lists every folder.
type ImageFilter struct {
	FolderID   string
	PublicOnly bool
}

// ListImages returns media files newest first.
func (s *Service) ListImages(ctx context.Context, f ImageFilter) ([]models.MediaFile, error) {
	query := s.db.WithContext(ctx).Preload("Folder")
	if f.FolderID != "" {
		query = query.Where("folder_id = ?", f.FolderID)
	}
	if f.PublicOnly {
		query = query.Where("is_public = ?", true)
	}

	var files []models.MediaFile
	if err := query.Order("created_at DESC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to list media files: %w", err)
	}
	return files, nil
}

func (s *Service) GetImage(ctx context.Context, id string) (*models.MediaFile, error) {
	var file models.MediaFile
	if err := s.db.WithContext(ctx).Preload("Folder").First(&file, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return &file, nil
}

// SetVisibility marks the given files public or private and returns how many
// rows changed.
func (s *Service) SetVisibility(ctx context.Context, ids []string, isPublic bool) (int64, error) {
	ids, err := requireIDs(ids)
	if err != nil {
		return 0, err
	}

	result := s.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("id IN ?", ids).
		Update("is_public", isPublic)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update visibility: %w", result.Error)
	}

	logger.Info("visibility updated", "count", result.RowsAffected, "is_public", isPublic)
	return result.RowsAffected, nil
}

// MoveToFolder re-parents files. A nil or empty folderID moves them to the root.
func (s *Service) MoveToFolder(ctx context.Context, ids []string, folderID *string) (int64, error) {
	ids, err := requireIDs(ids)
	if err != nil {
		return 0, err
	}
	target, err := s.ensureFolder(ctx, folderID)
	if err != nil {
		return 0, err
	}

	var value any = gorm.Expr("NULL")
	if target != nil {
		value = *target
	}

	result := s.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("id IN ?", ids).
		Update("folder_id", value)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to move media files: %w", result.Error)
	}

	logger.Info("media files moved", "count", result.RowsAffected, "folder_id", target)
	return result.RowsAffected, nil
}

// DeleteReport summarizes a delete. Object failures never fail the delete;
// they are counted here and recorded for the orphan sweeper.
type DeleteReport struct {
	Files           int `json:"files"`
	Chunked         int `json:"chunked"`
	Direct          int `json:"direct"`
	Malformed       int `json:"malformed"`
	ChunksAttempted int `json:"chunks_attempted"`
	ChunksFailed    int `json:"chunks_failed"`
	ObjectsOrphaned int `json:"objects_orphaned"`
}

// DeleteImages removes the backing objects of each file on a best-effort
// basis, then deletes every record.
func (s *Service) DeleteImages(ctx context.Context, ids []string) (DeleteReport, error) {
	var report DeleteReport

	ids, err := requireIDs(ids)
	if err != nil {
		return report, err
	}

	var files []models.MediaFile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&files).Error; err != nil {
		return report, fmt.Errorf("failed to load media files: %w", err)
	}
	if len(files) == 0 {
		return report, ErrNotFound
	}

	for i := range files {
		file := &files[i]

		b, err := file.Backing()
		if err != nil {
			logger.Warn("skipping object cleanup for malformed metadata", "file_id", file.ID, "error", err)
			report.Malformed++
			metrics.RecordFileDelete("malformed")
			continue
		}

		switch b := b.(type) {
		case models.ChunkedBacking:
			for idx := range b.TotalChunks {
				report.ChunksAttempted++
				p := s.layout.ChunkPath(b.SessionID, idx)
				if !s.deleteObject(ctx, p, "Delete chunk: "+p, "chunk of "+file.ID) {
					report.ChunksFailed++
					report.ObjectsOrphaned++
				}
			}
			report.Chunked++
			metrics.RecordFileDelete("chunked")
		case models.DirectBacking:
			p := s.layout.MediaPath(b.Filename)
			if !s.deleteObject(ctx, p, "Delete image: "+b.Filename, "media of "+file.ID) {
				report.ObjectsOrphaned++
			}
			report.Direct++
			metrics.RecordFileDelete("direct")
		}
	}

	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.MediaFile{})
	if result.Error != nil {
		return report, fmt.Errorf("failed to delete media files: %w", result.Error)
	}
	report.Files = int(result.RowsAffected)

	logger.Info("media files deleted",
		"files", report.Files,
		"chunked", report.Chunked,
		"direct", report.Direct,
		"chunks_failed", report.ChunksFailed,
	)
	return report, nil
}

// deleteObject deletes p and records it as orphaned on failure. It reports
// whether the delete succeeded.
func (s *Service) deleteObject(ctx context.Context, p, message, reason string) bool {
	err := s.store.Delete(ctx, p, message)
	if err == nil {
		return true
	}

	logger.Warn("object delete failed", "path", p, "error", err)
	s.recordOrphan(ctx, p, reason, err)
	return false
}
