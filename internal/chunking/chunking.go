// Package chunking splits large media into ordered, size-capped chunks that
// each fit in a single remote object.
package chunking

import (
	"errors"
	"fmt"
	"io"
)

const (
	MB = 1024 * 1024

	// MaxChunkSize is the remote store's per-object ceiling. No policy may
	// produce a chunk larger than this.
	MaxChunkSize = 25 * MB
)

var (
	ErrChunkTooLarge    = errors.New("chunk size exceeds the per-object limit")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
)

// tier maps an upper file size bound to the chunk size used below it.
type tier struct {
	upTo      int64
	chunkSize int64
}

var tiers = []tier{
	{upTo: 50 * MB, chunkSize: 15 * MB},
	{upTo: 100 * MB, chunkSize: 20 * MB},
	{upTo: 200 * MB, chunkSize: 25 * MB},
}

// ChunkSizeFor returns the chunk size for a file of the given size.
func ChunkSizeFor(size int64) int64 {
	for _, t := range tiers {
		if size <= t.upTo {
			return t.chunkSize
		}
	}
	return MaxChunkSize
}

// Range is a half-open byte range [Start, End) of the source file.
type Range struct {
	Index int
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r Range) Len() int64 {
	return r.End - r.Start
}

// Plan returns contiguous, non-overlapping ranges covering [0,size). Only the
// last range may be shorter than chunkSize. An empty file has no ranges.
func Plan(size, chunkSize int64) ([]Range, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrChunkTooLarge, chunkSize, MaxChunkSize)
	}
	if size < 0 {
		return nil, fmt.Errorf("invalid file size %d", size)
	}

	total := TotalChunks(size, chunkSize)
	ranges := make([]Range, 0, total)
	for i := 0; i < total; i++ {
		start := int64(i) * chunkSize
		ranges = append(ranges, Range{
			Index: i,
			Start: start,
			End:   min(start+chunkSize, size),
		})
	}
	return ranges, nil
}

// TotalChunks is ceil(size/chunkSize).
func TotalChunks(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// ChunkName is the object name of chunk index within a session.
func ChunkName(sessionID string, index int) string {
	return fmt.Sprintf("%s_chunk_%04d", sessionID, index)
}

// FileInfo describes the source file being split.
type FileInfo struct {
	Name     string
	Size     int64
	MimeType string
}

// ChunkInfo is the per-chunk descriptor sent alongside chunk bytes.
type ChunkInfo struct {
	ChunkID          string `json:"chunk_id"`
	ChunkIndex       int    `json:"chunk_index"`
	TotalChunks      int    `json:"total_chunks"`
	ChunkSize        int64  `json:"chunk_size"`
	OriginalFileName string `json:"original_file_name"`
	OriginalFileSize int64  `json:"original_file_size"`
	MimeType         string `json:"mime_type"`
}

// Validate checks the descriptor is self-consistent.
func (c ChunkInfo) Validate() error {
	switch {
	case c.TotalChunks < 1:
		return fmt.Errorf("total_chunks must be at least 1, got %d", c.TotalChunks)
	case c.ChunkIndex < 0 || c.ChunkIndex >= c.TotalChunks:
		return fmt.Errorf("chunk_index %d out of range [0,%d)", c.ChunkIndex, c.TotalChunks)
	case c.ChunkSize < 0 || c.ChunkSize > MaxChunkSize:
		return fmt.Errorf("chunk_size %d out of range", c.ChunkSize)
	}
	return nil
}

// Chunk is one planned piece of a file with a reader over its bytes.
type Chunk struct {
	Info ChunkInfo
	Data *io.SectionReader
}

// Split plans the chunks of src. A chunkSize of 0 selects ChunkSizeFor(info.Size).
// Chunk ids are "{name}_chunk_{index}".
func Split(src io.ReaderAt, info FileInfo, chunkSize int64) ([]Chunk, error) {
	if chunkSize == 0 {
		chunkSize = ChunkSizeFor(info.Size)
	}

	ranges, err := Plan(info.Size, chunkSize)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, len(ranges))
	for i, r := range ranges {
		chunks[i] = Chunk{
			Info: ChunkInfo{
				ChunkID:          fmt.Sprintf("%s_chunk_%d", info.Name, r.Index),
				ChunkIndex:       r.Index,
				TotalChunks:      len(ranges),
				ChunkSize:        r.Len(),
				OriginalFileName: info.Name,
				OriginalFileSize: info.Size,
				MimeType:         info.MimeType,
			},
			Data: io.NewSectionReader(src, r.Start, r.Len()),
		}
	}
	return chunks, nil
}

// ChunkError reports a transfer failure of a specific chunk.
type ChunkError struct {
	Index int
	Op    string // "upload", "fetch" or "delete"
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("failed to %s chunk %d: %v", e.Op, e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}
