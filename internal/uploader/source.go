package uploader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agjmills/gallery/internal/media"
)

var ErrUnsupportedMedia = errors.New("unsupported media type")

// Source is a local file queued for upload.
type Source struct {
	Name      string
	Size      int64
	MimeType  string
	MediaType string
	Content   io.ReaderAt

	closer io.Closer
}

// OpenSource opens the file at path and sniffs its MIME type. Only the image
// and video types the gallery accepts are allowed.
func OpenSource(path string) (*Source, error) {
	mimeType, err := media.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", path, err)
	}
	if !media.IsSupported(mimeType) {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedMedia, path, mimeType)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}

	return &Source{
		Name:      filepath.Base(path),
		Size:      info.Size(),
		MimeType:  mimeType,
		MediaType: media.TypeOf(mimeType),
		Content:   f,
		closer:    f,
	}, nil
}

// NewSource wraps in-memory content.
func NewSource(name, mimeType string, content []byte) *Source {
	return &Source{
		Name:      name,
		Size:      int64(len(content)),
		MimeType:  media.Normalize(mimeType),
		MediaType: media.TypeOf(mimeType),
		Content:   bytes.NewReader(content),
	}
}

func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
