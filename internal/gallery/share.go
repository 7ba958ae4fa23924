package gallery

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/logger"
	"gorm.io/gorm"
)

const (
	ItemImages  = "images"
	ItemFolders = "folders"
)

type ShareRequest struct {
	ItemType string   `json:"item_type" validate:"required,oneof=images folders"`
	ItemIDs  []string `json:"item_ids" validate:"required,min=1"`
}

type ShareLink struct {
	URL   string `json:"share_url"`
	Items int    `json:"items"`
}

// CreateShareLink builds a share URL for public items. Every item must exist
// and be public.
func (s *Service) CreateShareLink(ctx context.Context, req ShareRequest) (*ShareLink, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	ids, err := requireIDs(req.ItemIDs)
	if err != nil {
		return nil, err
	}

	var model any = &models.MediaFile{}
	if req.ItemType == ItemFolders {
		model = &models.Folder{}
	}

	var public int64
	err = s.db.WithContext(ctx).Model(model).
		Where("id IN ? AND is_public = ?", ids, true).
		Count(&public).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check shared items: %w", err)
	}
	if public != int64(len(ids)) {
		return nil, ErrNotPublic
	}

	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	return &ShareLink{
		URL:   fmt.Sprintf("%s/share/%s/%s", base, req.ItemType, strings.Join(ids, ",")),
		Items: len(ids),
	}, nil
}

// SharedItems is what a share link resolves to. Private items are never
// included.
type SharedItems struct {
	Type    string             `json:"type"`
	Images  []models.MediaFile `json:"images,omitempty"`
	Folders []models.Folder    `json:"folders,omitempty"`
}

// ResolveShare returns the public items named by a share link.
func (s *Service) ResolveShare(ctx context.Context, itemType string, ids []string) (*SharedItems, error) {
	ids, err := requireIDs(ids)
	if err != nil {
		return nil, err
	}

	out := &SharedItems{Type: itemType}
	switch itemType {
	case ItemImages:
		err = s.db.WithContext(ctx).
			Where("id IN ? AND is_public = ?", ids, true).
			Order("created_at DESC").
			Find(&out.Images).Error
		if err == nil && len(out.Images) == 0 {
			return nil, ErrNotFound
		}
	case ItemFolders:
		err = s.db.WithContext(ctx).
			Preload("Images", func(db *gorm.DB) *gorm.DB {
				return db.Where("is_public = ?", true).Order("created_at DESC")
			}).
			Where("id IN ? AND is_public = ?", ids, true).
			Find(&out.Folders).Error
		if err == nil && len(out.Folders) == 0 {
			return nil, ErrFolderNotFound
		}
		for i := range out.Folders {
			out.Folders[i].ImageCount = int64(len(out.Folders[i].Images))
		}
	default:
		return nil, invalid("item_type", "item_type must be one of: images folders")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve share: %w", err)
	}
	return out, nil
}

const (
	DownloadSingle     = "single"
	DownloadArchive    = "archive"
	DownloadFolderInfo = "folder_info"
)

// DownloadPlan describes how a download request is answered. Single files
// are linked, several files are zipped and folders are described.
type DownloadPlan struct {
	Kind        string             `json:"type"`
	DownloadURL string             `json:"download_url,omitempty"`
	Filename    string             `json:"filename,omitempty"`
	Files       []models.MediaFile `json:"-"`
	Folders     []models.Folder    `json:"data,omitempty"`
}

func (s *Service) PlanDownload(ctx context.Context, req ShareRequest) (*DownloadPlan, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	ids, err := requireIDs(req.ItemIDs)
	if err != nil {
		return nil, err
	}

	if req.ItemType == ItemFolders {
		var folders []models.Folder
		err := s.db.WithContext(ctx).Preload("Images").Where("id IN ?", ids).Find(&folders).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load folders: %w", err)
		}
		if len(folders) == 0 {
			return nil, ErrFolderNotFound
		}
		for i := range folders {
			folders[i].ImageCount = int64(len(folders[i].Images))
		}
		return &DownloadPlan{Kind: DownloadFolderInfo, Folders: folders}, nil
	}

	var files []models.MediaFile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("created_at ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to load media files: %w", err)
	}
	switch len(files) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &DownloadPlan{Kind: DownloadSingle, DownloadURL: files[0].Path, Filename: files[0].OriginalName}, nil
	default:
		return &DownloadPlan{Kind: DownloadArchive, Files: files}, nil
	}
}

// ArchiveName is the attachment name of a zip download.
func ArchiveName(now time.Time) string {
	return fmt.Sprintf("images_%d.zip", now.UnixMilli())
}

// WriteArchive streams a zip of files to w, naming entries by original name.
// Files whose content cannot be fetched are skipped and logged. It returns
// the number of files written.
func (s *Service) WriteArchive(ctx context.Context, w io.Writer, files []models.MediaFile) (int, error) {
	zw := zip.NewWriter(w)
	names := make(map[string]int, len(files))
	written := 0

	for i := range files {
		file := &files[i]

		content, err := s.Content(ctx, file)
		if err != nil {
			logger.Warn("skipping file in archive", "file_id", file.ID, "error", err)
			continue
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     uniqueEntryName(names, file.OriginalName),
			Method:   zip.Store,
			Modified: file.CreatedAt,
		})
		if err != nil {
			return written, fmt.Errorf("failed to add %s to archive: %w", file.OriginalName, err)
		}
		if _, err := entry.Write(content); err != nil {
			return written, fmt.Errorf("failed to write %s to archive: %w", file.OriginalName, err)
		}
		written++
	}

	if err := zw.Close(); err != nil {
		return written, fmt.Errorf("failed to finish archive: %w", err)
	}
	return written, nil
}

// uniqueEntryName appends " (n)" before the extension of repeated names.
func uniqueEntryName(seen map[string]int, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}

	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}

	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if seen[candidate] == 0 {
			seen[candidate] = 1
			seen[name] = n + 1
			return candidate
		}
		n++
	}
}
