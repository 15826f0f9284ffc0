package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"quicksand/internal/imagetype"
	"quicksand/internal/models"
)

// UploadItem is one file offered for ingestion. Open must return a fresh
// reader over the full content each time it is called.
type UploadItem struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// IngestInput is one ingestion request.
type IngestInput struct {
	OwnerToken string
	Items      []UploadItem
	TTLSeconds int64
	// Short requests an identifier from the compact keyspace. Honored
	// only for single-item uploads; galleries always draw regular ids.
	Short bool
}

// IngestResult reports a committed ingestion.
type IngestResult struct {
	ImageID   string         `json:"id,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	GalleryID string         `json:"gallery_id,omitempty"`
	IsGallery bool           `json:"is_gallery"`
	Images    []models.Image `json:"images"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Ingest validates, classifies, and stores a batch of files as one unit:
// either every file gets a record and a blob, or nothing is kept. Blobs
// written before a failure are removed again; quota eviction happens
// before any new blob is written.
func (s *ImageService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepAndReconcile(ctx)

	items := input.Items
	if len(items) == 0 {
		return nil, badRequestCode(fmt.Errorf("no files attached"), ErrCodeMissingRequired)
	}
	if max := s.policy.MaxFilesPerUpload; max > 0 && len(items) > max {
		// Extra files are dropped, not rejected.
		items = items[:max]
	}

	var total int64
	for _, item := range items {
		if limit := s.policy.MaxFileBytes; limit > 0 && item.Size > limit {
			return nil, badRequestCode(
				fmt.Errorf("file %q of %d bytes exceeds the per-file limit of %d bytes", item.Filename, item.Size, limit),
				ErrCodeFileTooLarge)
		}
		total += item.Size
	}

	if err := s.ensureCapacity(ctx, total); err != nil {
		return nil, err
	}

	ttl := s.policy.Retention.Resolve(input.TTLSeconds)
	now := s.now()
	expiresAt := now.Add(ttl)

	galleryID := ""
	if len(items) > 1 {
		id, err := s.allocateGalleryID(ctx)
		if err != nil {
			return nil, internalError(err)
		}
		galleryID = id
	}

	written := make([]string, 0, len(items))
	rollback := func() {
		for _, id := range written {
			if err := s.blobs.Delete(ctx, id); err != nil {
				s.logger.Warn("ingest rollback: delete blob", "id", id, "error", err)
			}
		}
	}

	records := make([]*models.Image, 0, len(items))
	for _, item := range items {
		record, err := s.ingestOne(ctx, item, input.Short && len(items) == 1)
		if err != nil {
			rollback()
			return nil, err
		}
		record.ExpiresAt = expiresAt
		record.OwnerToken = input.OwnerToken
		record.GalleryID = galleryID
		record.CreatedAt = now
		written = append(written, record.ID)
		records = append(records, record)
	}

	if err := s.images.CreateImages(ctx, records); err != nil {
		rollback()
		return nil, storeFailure(err)
	}

	result := &IngestResult{
		IsGallery: galleryID != "",
		GalleryID: galleryID,
		Images:    make([]models.Image, 0, len(records)),
		ExpiresAt: expiresAt,
	}
	for _, record := range records {
		result.Images = append(result.Images, *record)
	}
	if !result.IsGallery {
		result.ImageID = records[0].ID
		// The declared filename is a display hint for the generated URL.
		result.Filename = records[0].Filename
	}
	return result, nil
}

// ingestOne classifies one file and writes its blob under a freshly
// allocated identifier. The returned record has ID, SizeBytes, Type, and
// Filename populated.
func (s *ImageService) ingestOne(ctx context.Context, item UploadItem, short bool) (*models.Image, error) {
	rc, err := item.Open()
	if err != nil {
		return nil, internalError(fmt.Errorf("open upload %q: %w", item.Filename, err))
	}
	defer rc.Close()

	head := make([]byte, imagetype.SniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, internalError(fmt.Errorf("read upload %q: %w", item.Filename, err))
	}
	head = head[:n]

	imageType, err := imagetype.Detect(head)
	if err != nil {
		return nil, badRequestCode(fmt.Errorf("%q: %w", item.Filename, err), ErrCodeNotAnImage)
	}

	id, err := s.allocateImageID(ctx, short)
	if err != nil {
		return nil, internalError(err)
	}

	size, err := s.blobs.Put(ctx, id, io.MultiReader(bytes.NewReader(head), rc))
	if err != nil {
		return nil, storageIO(fmt.Errorf("store upload %q: %w", item.Filename, err))
	}

	return &models.Image{
		ID:        id,
		SizeBytes: size,
		Type:      string(imageType),
		Filename:  item.Filename,
	}, nil
}
