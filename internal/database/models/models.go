package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Folder struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"not null;size:255;uniqueIndex" json:"name"`
	IsPublic  bool      `gorm:"not null;default:false;index" json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ImageCount int64       `gorm:"-" json:"image_count"`
	Images     []MediaFile `gorm:"foreignKey:FolderID;constraint:OnDelete:SET NULL" json:"images,omitempty"`
}

func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// MediaFile is one user-visible image or video. Direct files live in a single
// remote object; chunked files are reconstructed from their chunk set on read
// and carry the chunk manifest in Metadata.
type MediaFile struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	Filename     string         `gorm:"not null;size:255;index" json:"filename"`
	OriginalName string         `gorm:"not null;size:255" json:"original_name"`
	Path         string         `gorm:"not null;size:1024;index" json:"path"`
	Size         int64          `gorm:"not null" json:"size"`
	MimeType     string         `gorm:"size:100" json:"mime_type"`
	MediaType    string         `gorm:"size:10;not null;index" json:"media_type"`
	IsPublic     bool           `gorm:"not null;default:false;index" json:"is_public"`
	FolderID     *string        `gorm:"size:36;index" json:"folder_id"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	Folder *Folder `gorm:"foreignKey:FolderID" json:"folder,omitempty"`
}

// TableName keeps the historical table name used by existing deployments.
func (MediaFile) TableName() string {
	return "images"
}

func (m *MediaFile) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// OrphanedObject records a remote object whose best-effort deletion failed,
// so the sweeper can retry it later.
type OrphanedObject struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Path      string    `gorm:"not null;size:1024;uniqueIndex" json:"path"`
	Reason    string    `gorm:"size:255" json:"reason"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	LastError string    `gorm:"size:1000" json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}
