package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedManifest is returned when a file carries chunk metadata that
// cannot be interpreted.
var ErrMalformedManifest = errors.New("malformed chunk manifest")

// ErrChunkFlagUnset marks a manifest without is_chunked_file. It is always
// wrapped together with ErrMalformedManifest.
var ErrChunkFlagUnset = errors.New("is_chunked_file not set")

// Backing describes where a media file's bytes live. It is either
// DirectBacking or ChunkedBacking.
type Backing interface {
	backing()
}

// DirectBacking is a file stored as one remote object.
type DirectBacking struct {
	Filename string
	URL      string
}

// ChunkedBacking is a file reconstructed from an ordered chunk set.
type ChunkedBacking struct {
	SessionID   string
	TotalChunks int
	ChunkSize   int64
}

func (DirectBacking) backing()  {}
func (ChunkedBacking) backing() {}

// ChunkManifest is the persisted form of ChunkedBacking.
type ChunkManifest struct {
	SessionID     string `json:"session_id"`
	TotalChunks   int    `json:"total_chunks"`
	ChunkSize     int64  `json:"chunk_size"`
	IsChunkedFile bool   `json:"is_chunked_file"`
}

// SetChunked stores the chunk manifest on the file.
func (m *MediaFile) SetChunked(b ChunkedBacking) error {
	raw, err := json.Marshal(ChunkManifest{
		SessionID:     b.SessionID,
		TotalChunks:   b.TotalChunks,
		ChunkSize:     b.ChunkSize,
		IsChunkedFile: true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode chunk manifest: %w", err)
	}
	m.Metadata = raw
	return nil
}

// Backing decodes how the file is stored. Files without metadata are direct.
func (m *MediaFile) Backing() (Backing, error) {
	if len(m.Metadata) == 0 || string(m.Metadata) == "null" {
		return DirectBacking{Filename: m.Filename, URL: m.Path}, nil
	}

	var manifest ChunkManifest
	if err := json.Unmarshal(m.Metadata, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	if !manifest.IsChunkedFile {
		return nil, fmt.Errorf("%w: %w", ErrMalformedManifest, ErrChunkFlagUnset)
	}
	if manifest.SessionID == "" || manifest.TotalChunks < 1 || manifest.ChunkSize < 1 {
		return nil, fmt.Errorf("%w: session_id=%q total_chunks=%d chunk_size=%d",
			ErrMalformedManifest, manifest.SessionID, manifest.TotalChunks, manifest.ChunkSize)
	}

	return ChunkedBacking{
		SessionID:   manifest.SessionID,
		TotalChunks: manifest.TotalChunks,
		ChunkSize:   manifest.ChunkSize,
	}, nil
}

// IsChunked reports whether the file is backed by a chunk set. Malformed
// manifests count as chunked since they were written by the chunk pipeline.
func (m *MediaFile) IsChunked() bool {
	b, err := m.Backing()
	if err != nil {
		return true
	}
	_, ok := b.(ChunkedBacking)
	return ok
}
