// Package client talks to the gallery HTTP API: chunk upload, assembly,
// direct upload and the image/folder management endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agjmills/gallery/internal/chunking"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	Field      string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("gallery api: %d %s (field %s)", e.StatusCode, e.Message, e.Field)
	}
	return fmt.Sprintf("gallery api: %d %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client, which has no timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ChunkReceipt struct {
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	UploadURL  string `json:"upload_url"`
}

type AssembleRequest struct {
	SessionID        string  `json:"session_id"`
	OriginalFileName string  `json:"original_file_name"`
	TotalChunks      int     `json:"total_chunks"`
	MimeType         string  `json:"mime_type"`
	FolderID         *string `json:"folder_id,omitempty"`
	IsPublic         bool    `json:"is_public"`
}

type AssembleResult struct {
	DownloadURL string `json:"download_url"`
	Image       Image  `json:"image"`
}

type Image struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	MediaType    string    `json:"media_type"`
	IsPublic     bool      `json:"is_public"`
	FolderID     *string   `json:"folder_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type Folder struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	IsPublic   bool      `json:"is_public"`
	ImageCount int64     `json:"image_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type DeleteReport struct {
	Files           int `json:"files"`
	Chunked         int `json:"chunked"`
	Direct          int `json:"direct"`
	Malformed       int `json:"malformed"`
	ChunksAttempted int `json:"chunks_attempted"`
	ChunksFailed    int `json:"chunks_failed"`
	ObjectsOrphaned int `json:"objects_orphaned"`
}

// DirectFile is a whole image or small video sent in one request.
type DirectFile struct {
	Name     string
	MimeType string
	Content  io.Reader
	FolderID *string
	IsPublic bool
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

// UploadChunk posts one chunk as multipart form data.
func (c *Client) UploadChunk(ctx context.Context, sessionID string, chunk chunking.Chunk) (ChunkReceipt, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	info, err := json.Marshal(chunk.Info)
	if err != nil {
		return ChunkReceipt{}, fmt.Errorf("encode chunk info: %w", err)
	}
	if err := mw.WriteField("session_id", sessionID); err != nil {
		return ChunkReceipt{}, err
	}
	if err := mw.WriteField("chunk_info", string(info)); err != nil {
		return ChunkReceipt{}, err
	}
	part, err := mw.CreateFormFile("chunk", chunk.Info.ChunkID)
	if err != nil {
		return ChunkReceipt{}, err
	}
	if _, err := io.Copy(part, io.NewSectionReader(chunk.Data, 0, chunk.Data.Size())); err != nil {
		return ChunkReceipt{}, fmt.Errorf("read chunk data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return ChunkReceipt{}, err
	}

	var receipt ChunkReceipt
	if err := c.do(ctx, http.MethodPost, "/api/upload/chunk", mw.FormDataContentType(), &body, &receipt); err != nil {
		return ChunkReceipt{}, err
	}
	return receipt, nil
}

// UploadChunks sends chunks one at a time in index order and stops at the
// first failure. onChunk, if set, runs after every stored chunk.
func (c *Client) UploadChunks(ctx context.Context, sessionID string, chunks []chunking.Chunk, onChunk func(done, total int)) ([]ChunkReceipt, error) {
	receipts := make([]ChunkReceipt, 0, len(chunks))
	for i, chunk := range chunks {
		receipt, err := c.UploadChunk(ctx, sessionID, chunk)
		if err != nil {
			return receipts, &chunking.ChunkError{Index: chunk.Info.ChunkIndex, Op: "upload", Err: err}
		}
		receipts = append(receipts, receipt)
		if onChunk != nil {
			onChunk(i+1, len(chunks))
		}
	}
	return receipts, nil
}

func (c *Client) Assemble(ctx context.Context, req AssembleRequest) (AssembleResult, error) {
	var result AssembleResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/upload/assemble", req, &result); err != nil {
		return AssembleResult{}, err
	}
	return result, nil
}

// UploadDirect sends f as a single-file multipart upload.
func (c *Client) UploadDirect(ctx context.Context, f DirectFile) ([]Image, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if f.FolderID != nil && *f.FolderID != "" {
		if err := mw.WriteField("folder_id", *f.FolderID); err != nil {
			return nil, err
		}
	}
	if err := mw.WriteField("is_public", strconv.FormatBool(f.IsPublic)); err != nil {
		return nil, err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
	if f.MimeType != "" {
		h.Set("Content-Type", f.MimeType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f.Content); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp struct {
		Data []Image `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/images/upload", mw.FormDataContentType(), &body, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) DeleteImages(ctx context.Context, ids []string) (DeleteReport, error) {
	var resp struct {
		Report DeleteReport `json:"report"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/images/delete", map[string]any{"image_ids": ids}, &resp)
	return resp.Report, err
}

func (c *Client) SetVisibility(ctx context.Context, ids []string, public bool) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.doJSON(ctx, http.MethodPatch, "/api/images/toggle-public", map[string]any{
		"image_ids": ids,
		"is_public": public,
	}, &resp)
	return resp.Count, err
}

// MoveToFolder re-parents images. A nil folderID moves them to the root.
func (c *Client) MoveToFolder(ctx context.Context, ids []string, folderID *string) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/images/move-folder", map[string]any{
		"image_ids": ids,
		"folder_id": folderID,
	}, &resp)
	return resp.Count, err
}

func (c *Client) ListImages(ctx context.Context, folderID string, publicOnly bool) ([]Image, error) {
	q := url.Values{}
	if folderID != "" {
		q.Set("folder_id", folderID)
	}
	if publicOnly {
		q.Set("public_only", "true")
	}

	var resp struct {
		Data []Image `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/images", q), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) CreateFolder(ctx context.Context, name string, public bool) (Folder, error) {
	var resp struct {
		Data Folder `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/folders", map[string]any{"name": name, "is_public": public}, &resp)
	return resp.Data, err
}

func (c *Client) ListFolders(ctx context.Context, publicOnly, byName bool) ([]Folder, error) {
	q := url.Values{}
	if publicOnly {
		q.Set("public_only", "true")
	}
	if byName {
		q.Set("sort", "name")
	}

	var resp struct {
		Data []Folder `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/folders", q), "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(raw), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			apiErr.Message = env.Message
			apiErr.Field = env.Field
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
