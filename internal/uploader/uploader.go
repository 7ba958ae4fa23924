// Package uploader drives batches of uploads and maintenance calls against
// the gallery API and reports their progress through a task queue.
//
// Large videos go through the chunk pipeline: split locally, upload the
// chunks one by one in index order, then ask the server to assemble them.
// Everything else is a single direct upload.
package uploader

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/agjmills/gallery/internal/chunking"
	"github.com/agjmills/gallery/internal/client"
	"github.com/agjmills/gallery/internal/logger"
	"github.com/agjmills/gallery/internal/media"
	"github.com/agjmills/gallery/internal/queue"
	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid"
)

// DefaultThreshold is the largest video sent as one direct upload.
const DefaultThreshold = 25 * chunking.MB

// chunkPhase is the share of a chunked file's progress spent on chunk
// transfer. Assembly accounts for the rest.
const chunkPhase = 0.9

// Transport is the subset of the API client the orchestrator needs.
type Transport interface {
	UploadChunks(ctx context.Context, sessionID string, chunks []chunking.Chunk, onChunk func(done, total int)) ([]client.ChunkReceipt, error)
	Assemble(ctx context.Context, req client.AssembleRequest) (client.AssembleResult, error)
	UploadDirect(ctx context.Context, f client.DirectFile) ([]client.Image, error)
	DeleteImages(ctx context.Context, ids []string) (client.DeleteReport, error)
	SetVisibility(ctx context.Context, ids []string, public bool) (int64, error)
	MoveToFolder(ctx context.Context, ids []string, folderID *string) (int64, error)
}

var _ Transport = (*client.Client)(nil)

var ErrNothingToDo = errors.New("nothing to do")

// ShouldChunk reports whether a file must use the chunk pipeline. Only
// videos strictly larger than threshold are chunked.
func ShouldChunk(mediaType string, size, threshold int64) bool {
	return mediaType == media.TypeVideo && size > threshold
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewSessionID returns a fresh chunk session id.
func NewSessionID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return "session_" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

type Options struct {
	FolderID *string
	IsPublic bool
}

// BatchResult lists what a batch produced before it finished or failed.
type BatchResult struct {
	TaskID   string
	Uploaded []client.Image
}

type Orchestrator struct {
	transport Transport
	queue     *queue.Queue
	threshold int64
	chunkSize int64
	now       func() time.Time

	// Serializes tasks; the queue runs one at a time.
	mu sync.Mutex
}

type Option func(*Orchestrator)

func WithThreshold(n int64) Option {
	return func(o *Orchestrator) {
		o.threshold = n
	}
}

// WithChunkSize fixes the chunk size instead of the size-based policy.
func WithChunkSize(n int64) Option {
	return func(o *Orchestrator) {
		o.chunkSize = n
	}
}

func New(t Transport, q *queue.Queue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		transport: t,
		queue:     q,
		threshold: DefaultThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UploadBatch uploads sources one after another as a single task. The first
// error fails the task and stops the batch.
func (o *Orchestrator) UploadBatch(ctx context.Context, sources []*Source, opts Options) (BatchResult, error) {
	if len(sources) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no files to upload", ErrNothingToDo)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	taskID := o.queue.Add(queue.TypeUpload, fmt.Sprintf("Upload %d file(s)", len(sources)))
	o.track(taskID, "start", o.queue.Start(taskID))
	result := BatchResult{TaskID: taskID}

	for i, src := range sources {
		var (
			images []client.Image
			err    error
		)
		if ShouldChunk(src.MediaType, src.Size, o.threshold) {
			var img client.Image
			img, err = o.uploadChunked(ctx, taskID, i, len(sources), src, opts)
			images = []client.Image{img}
		} else {
			images, err = o.uploadDirect(ctx, src, opts)
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", src.Name, err)
			o.track(taskID, "fail", o.queue.Fail(taskID, err))
			logger.Error("upload failed", "task_id", taskID, "file", src.Name, "error", err)
			return result, err
		}

		result.Uploaded = append(result.Uploaded, images...)
		o.track(taskID, "progress", o.queue.Progress(taskID, queue.Progress{Percent: batchPercent(i+1, 0, len(sources))}))
	}

	o.track(taskID, "complete", o.queue.Complete(taskID))
	return result, nil
}

func (o *Orchestrator) uploadDirect(ctx context.Context, src *Source, opts Options) ([]client.Image, error) {
	return o.transport.UploadDirect(ctx, client.DirectFile{
		Name:     src.Name,
		MimeType: src.MimeType,
		Content:  io.NewSectionReader(src.Content, 0, src.Size),
		FolderID: opts.FolderID,
		IsPublic: opts.IsPublic,
	})
}

func (o *Orchestrator) uploadChunked(ctx context.Context, taskID string, index, count int, src *Source, opts Options) (client.Image, error) {
	chunks, err := chunking.Split(src.Content, chunking.FileInfo{
		Name:     src.Name,
		Size:     src.Size,
		MimeType: src.MimeType,
	}, o.chunkSize)
	if err != nil {
		return client.Image{}, err
	}

	sessionID := NewSessionID()
	total := len(chunks)
	title := fmt.Sprintf("Upload video: %s (%s, %d chunks)", src.Name, humanize.IBytes(uint64(src.Size)), total)
	o.track(taskID, "retitle", o.queue.Retitle(taskID, title))
	o.track(taskID, "progress", o.queue.Progress(taskID, queue.Progress{
		Percent:     batchPercent(index, 0, count),
		TotalChunks: total,
	}))
	logger.Info("chunked upload started",
		"task_id", taskID,
		"file", src.Name,
		"size", humanize.IBytes(uint64(src.Size)),
		"chunks", total,
		"session_id", sessionID,
	)

	start := o.now()
	onChunk := func(done, total int) {
		fraction := chunkPhase * float64(done) / float64(total)
		o.track(taskID, "progress", o.queue.Progress(taskID, queue.Progress{
			Percent:      batchPercent(index, fraction, count),
			CurrentChunk: done,
			TotalChunks:  total,
			ETA:          queue.EstimateRemaining(o.now().Sub(start), fraction),
		}))
	}
	if _, err := o.transport.UploadChunks(ctx, sessionID, chunks, onChunk); err != nil {
		return client.Image{}, err
	}

	result, err := o.transport.Assemble(ctx, client.AssembleRequest{
		SessionID:        sessionID,
		OriginalFileName: src.Name,
		TotalChunks:      total,
		MimeType:         src.MimeType,
		FolderID:         opts.FolderID,
		IsPublic:         opts.IsPublic,
	})
	if err != nil {
		return client.Image{}, fmt.Errorf("assemble %s: %w", sessionID, err)
	}

	logger.Info("chunked upload assembled",
		"task_id", taskID,
		"file", src.Name,
		"download_url", result.DownloadURL,
		"duration", o.now().Sub(start),
	)
	return result.Image, nil
}

// Delete removes images one request at a time so progress moves per image.
func (o *Orchestrator) Delete(ctx context.Context, ids []string) (client.DeleteReport, error) {
	var total client.DeleteReport
	if len(ids) == 0 {
		return total, fmt.Errorf("%w: no images to delete", ErrNothingToDo)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	taskID := o.queue.Add(queue.TypeDelete, fmt.Sprintf("Delete %d image(s)", len(ids)))
	o.track(taskID, "start", o.queue.Start(taskID))

	for i, id := range ids {
		report, err := o.transport.DeleteImages(ctx, []string{id})
		if err != nil {
			err = fmt.Errorf("delete image %s: %w", id, err)
			o.track(taskID, "fail", o.queue.Fail(taskID, err))
			return total, err
		}
		total.Files += report.Files
		total.Chunked += report.Chunked
		total.Direct += report.Direct
		total.Malformed += report.Malformed
		total.ChunksAttempted += report.ChunksAttempted
		total.ChunksFailed += report.ChunksFailed
		total.ObjectsOrphaned += report.ObjectsOrphaned

		o.track(taskID, "progress", o.queue.Progress(taskID, queue.Progress{Percent: batchPercent(i+1, 0, len(ids))}))
	}

	o.track(taskID, "complete", o.queue.Complete(taskID))
	return total, nil
}

func (o *Orchestrator) SetVisibility(ctx context.Context, ids []string, public bool) (int64, error) {
	visibility := "private"
	if public {
		visibility = "public"
	}
	title := fmt.Sprintf("Make %d image(s) %s", len(ids), visibility)
	return o.single(queue.TypeTogglePublic, title, ids, func() (int64, error) {
		return o.transport.SetVisibility(ctx, ids, public)
	})
}

// MoveToFolder moves images into folderID, or to the root when it is nil.
func (o *Orchestrator) MoveToFolder(ctx context.Context, ids []string, folderID *string) (int64, error) {
	title := fmt.Sprintf("Move %d image(s) to the root", len(ids))
	if folderID != nil {
		title = fmt.Sprintf("Move %d image(s) to folder %s", len(ids), *folderID)
	}
	return o.single(queue.TypeMoveFolder, title, ids, func() (int64, error) {
		return o.transport.MoveToFolder(ctx, ids, folderID)
	})
}

// single runs one request as its own task.
func (o *Orchestrator) single(typ queue.Type, title string, ids []string, call func() (int64, error)) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no images selected", ErrNothingToDo)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	taskID := o.queue.Add(typ, title)
	o.track(taskID, "start", o.queue.Start(taskID))

	n, err := call()
	if err != nil {
		o.track(taskID, "fail", o.queue.Fail(taskID, err))
		return 0, err
	}
	o.track(taskID, "complete", o.queue.Complete(taskID))
	return n, nil
}

// track logs a task update the queue refused.
func (o *Orchestrator) track(taskID, op string, err error) {
	if err != nil {
		logger.Debug("task update dropped", "task_id", taskID, "op", op, "error", err)
	}
}

// batchPercent is the batch progress after done files plus the fraction of
// the current one.
func batchPercent(done int, current float64, count int) float64 {
	if count == 0 {
		return 0
	}
	return (float64(done) + current) / float64(count) * 100
}
