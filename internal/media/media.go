// Package media classifies uploads into the image and video types the gallery
// accepts.
package media

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	TypeImage = "image"
	TypeVideo = "video"
)

var imageTypes = map[string]struct{}{
	"image/jpeg":    {},
	"image/jpg":     {},
	"image/png":     {},
	"image/gif":     {},
	"image/webp":    {},
	"image/svg+xml": {},
}

// Browsers report some containers under non-registered names, so both forms
// are accepted.
var videoTypes = map[string]struct{}{
	"video/mp4":       {},
	"video/webm":      {},
	"video/ogg":       {},
	"video/avi":       {},
	"video/x-msvideo": {},
	"video/mov":       {},
	"video/quicktime": {},
	"video/wmv":       {},
	"video/x-ms-wmv":  {},
}

// Normalize lowercases a MIME type and drops any parameters.
func Normalize(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func IsImage(mimeType string) bool {
	_, ok := imageTypes[Normalize(mimeType)]
	return ok
}

func IsVideo(mimeType string) bool {
	_, ok := videoTypes[Normalize(mimeType)]
	return ok
}

// IsSupported reports whether the MIME type is an accepted image or video.
func IsSupported(mimeType string) bool {
	return IsImage(mimeType) || IsVideo(mimeType)
}

// TypeOf returns TypeVideo for accepted video types and TypeImage otherwise.
func TypeOf(mimeType string) string {
	if IsVideo(mimeType) {
		return TypeVideo
	}
	return TypeImage
}

// Detect sniffs the MIME type of content. A declared type is kept when it is
// already a supported media type.
func Detect(declared string, content []byte) string {
	if IsSupported(declared) {
		return Normalize(declared)
	}
	return Normalize(mimetype.Detect(content).String())
}

// DetectFile sniffs the MIME type of the file at p.
func DetectFile(p string) (string, error) {
	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return "", err
	}
	return Normalize(mt.String()), nil
}

// Extension returns the lowercase extension of name including the dot, or an
// empty string when there is none.
func Extension(name string) string {
	return strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
}
