package gallery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agjmills/gallery/internal/database/models"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/maruel/natural"
	"gorm.io/gorm"
)

type FolderSort string

const (
	SortNewest FolderSort = "newest"
	SortName   FolderSort = "name"
)

// ListFolders returns folders with their image counts, newest first or in
// natural name order.
func (s *Service) ListFolders(ctx context.Context, publicOnly bool, order FolderSort) ([]models.Folder, error) {
	query := s.db.WithContext(ctx).Model(&models.Folder{})
	if publicOnly {
		query = query.Where("is_public = ?", true)
	}

	var folders []models.Folder
	if err := query.Order("created_at DESC").Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	if err := s.fillImageCounts(ctx, folders); err != nil {
		return nil, err
	}

	if order == SortName {
		sort.SliceStable(folders, func(i, j int) bool {
			return natural.Less(strings.ToLower(folders[i].Name), strings.ToLower(folders[j].Name))
		})
	}
	return folders, nil
}

func (s *Service) fillImageCounts(ctx context.Context, folders []models.Folder) error {
	if len(folders) == 0 {
		return nil
	}

	ids := make([]string, len(folders))
	for i := range folders {
		ids[i] = folders[i].ID
	}

	var rows []struct {
		FolderID string
		Count    int64
	}
	err := s.db.WithContext(ctx).Model(&models.MediaFile{}).
		Select("folder_id, COUNT(*) AS count").
		Where("folder_id IN ?", ids).
		Group("folder_id").
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to count folder images: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.FolderID] = r.Count
	}
	for i := range folders {
		folders[i].ImageCount = counts[folders[i].ID]
	}
	return nil
}

func (s *Service) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	var folder models.Folder
	if err := s.db.WithContext(ctx).First(&folder, "id = ?", id).Error; err != nil {
		return nil, notFound(err, ErrFolderNotFound)
	}

	folders := []models.Folder{folder}
	if err := s.fillImageCounts(ctx, folders); err != nil {
		return nil, err
	}
	return &folders[0], nil
}

func (s *Service) CreateFolder(ctx context.Context, name string, isPublic bool) (*models.Folder, error) {
	name, err := s.checkFolderName(ctx, name, "")
	if err != nil {
		return nil, err
	}

	folder := &models.Folder{Name: name, IsPublic: isPublic}
	if err := s.db.WithContext(ctx).Create(folder).Error; err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	logger.Info("folder created", "folder_id", folder.ID, "name", folder.Name)
	return folder, nil
}

// FolderUpdate holds the optional fields of an update.
type FolderUpdate struct {
	Name     *string `json:"name,omitempty"`
	IsPublic *bool   `json:"is_public,omitempty"`
}

func (s *Service) UpdateFolder(ctx context.Context, id string, u FolderUpdate) (*models.Folder, error) {
	folder, err := s.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if u.Name != nil {
		name, err := s.checkFolderName(ctx, *u.Name, id)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if u.IsPublic != nil {
		updates["is_public"] = *u.IsPublic
	}
	if len(updates) == 0 {
		return folder, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Folder{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update folder: %w", err)
	}
	return s.GetFolder(ctx, id)
}

// DeleteFolder moves the folder's files to the root and removes the folder in
// one transaction. It returns how many files were moved.
func (s *Service) DeleteFolder(ctx context.Context, id string) (int64, error) {
	var moved int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folder models.Folder
		if err := tx.First(&folder, "id = ?", id).Error; err != nil {
			return notFound(err, ErrFolderNotFound)
		}

		result := tx.Model(&models.MediaFile{}).
			Where("folder_id = ?", id).
			Update("folder_id", gorm.Expr("NULL"))
		if result.Error != nil {
			return fmt.Errorf("failed to move folder images: %w", result.Error)
		}
		moved = result.RowsAffected

		if err := tx.Delete(&folder).Error; err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.Info("folder deleted", "folder_id", id, "images_moved", moved)
	return moved, nil
}

func (s *Service) checkFolderName(ctx context.Context, name, excludeID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "folder name must not be empty")
	}
	if len(name) > 255 {
		return "", invalid("name", "folder name must be at most 255 characters")
	}

	query := s.db.WithContext(ctx).Where("name = ?", name)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var existing models.Folder
	err := query.First(&existing).Error
	switch {
	case err == nil:
		return "", ErrFolderExists
	case errors.Is(err, gorm.ErrRecordNotFound):
		return name, nil
	default:
		return "", fmt.Errorf("failed to check folder name: %w", err)
	}
}
