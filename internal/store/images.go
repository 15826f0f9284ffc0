package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"quicksand/internal/models"
)

const imageColumns = "id, size_bytes, type, expires_at, owner_token, gallery_id, filename, created_at"

// CreateImages inserts a batch of image records inside one transaction.
// Either every record is committed or none is; this is the all-or-nothing
// boundary the ingestion transaction relies on.
func (s *Store) CreateImages(ctx context.Context, images []*models.Image) (err error) {
	if len(images) == 0 {
		return fmt.Errorf("at least one image is required")
	}

	now := time.Now().UTC()
	for _, image := range images {
		if image == nil {
			return fmt.Errorf("image is required")
		}
		if strings.TrimSpace(image.ID) == "" {
			return fmt.Errorf("image id is required")
		}
		if image.SizeBytes < 0 {
			return fmt.Errorf("size_bytes must be >= 0")
		}
		if image.ExpiresAt.IsZero() {
			return fmt.Errorf("expires_at is required")
		}
		if image.CreatedAt.IsZero() {
			image.CreatedAt = now
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, image := range images {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO images (`+imageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, image.ID, image.SizeBytes, image.Type, image.ExpiresAt.Unix(),
			image.OwnerToken, image.GalleryID, nullIfEmpty(image.Filename),
			formatTime(image.CreatedAt)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetImage returns one image record, or nil when the id is unknown.
func (s *Store) GetImage(ctx context.Context, id string) (*models.Image, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	return scanImage(row)
}

// DeleteImage removes one image record. Unknown ids are not an error.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE id = ?", id)
	return err
}

// ListExpired returns records whose expiry instant is before now, oldest
// insertion first.
func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]models.Image, error) {
	return s.listImages(ctx, `SELECT `+imageColumns+` FROM images WHERE expires_at < ? ORDER BY rowid`, now.Unix())
}

// ListOldest returns up to limit records in insertion order. This is the
// FIFO eviction candidate scan.
func (s *Store) ListOldest(ctx context.Context, limit int) ([]models.Image, error) {
	if limit <= 0 {
		return []models.Image{}, nil
	}
	return s.listImages(ctx, `SELECT `+imageColumns+` FROM images ORDER BY rowid LIMIT ?`, limit)
}

// UsedBytes returns the total size of all live records.
func (s *Store) UsedBytes(ctx context.Context) (int64, error) {
	var used int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size_bytes), 0) FROM images").Scan(&used)
	return used, err
}

// ListByGallery lists the member records of one gallery in insertion order.
func (s *Store) ListByGallery(ctx context.Context, galleryID string) ([]models.Image, error) {
	if galleryID == "" {
		return []models.Image{}, nil
	}
	return s.listImages(ctx, `SELECT `+imageColumns+` FROM images WHERE gallery_id = ? ORDER BY rowid`, galleryID)
}

// ListStandaloneByOwner lists an owner's non-gallery uploads, newest first.
func (s *Store) ListStandaloneByOwner(ctx context.Context, ownerToken string) ([]models.Image, error) {
	return s.listImages(ctx, `SELECT `+imageColumns+` FROM images WHERE owner_token = ? AND gallery_id = '' ORDER BY rowid DESC`, ownerToken)
}

// ListGalleriesByOwner summarizes an owner's galleries, newest first.
func (s *Store) ListGalleriesByOwner(ctx context.Context, ownerToken string) ([]models.GallerySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gallery_id, COUNT(*), MAX(expires_at)
		FROM images
		WHERE owner_token = ? AND gallery_id != ''
		GROUP BY gallery_id
		ORDER BY MAX(rowid) DESC
	`, ownerToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	galleries := []models.GallerySummary{}
	for rows.Next() {
		var summary models.GallerySummary
		var expiresAt int64
		if err := rows.Scan(&summary.GalleryID, &summary.ImageCount, &expiresAt); err != nil {
			return nil, err
		}
		summary.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		galleries = append(galleries, summary)
	}
	return galleries, rows.Err()
}

// CountOwned counts every record carrying the owner token, galleries
// included. Zero means the token no longer protects anything.
func (s *Store) CountOwned(ctx context.Context, ownerToken string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images WHERE owner_token = ?", ownerToken).Scan(&count)
	return count, err
}

// OwnsImage reports whether the image exists and carries the owner token.
func (s *Store) OwnsImage(ctx context.Context, id, ownerToken string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images WHERE id = ? AND owner_token = ?", id, ownerToken).Scan(&count)
	return count > 0, err
}

// OwnsGallery reports whether any member of the gallery carries the owner token.
func (s *Store) OwnsGallery(ctx context.Context, galleryID, ownerToken string) (bool, error) {
	if galleryID == "" {
		return false, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images WHERE gallery_id = ? AND owner_token = ?", galleryID, ownerToken).Scan(&count)
	return count > 0, err
}

// ListAllIDs returns every image id in the catalog. Used by reconciliation.
func (s *Store) ListAllIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM images ORDER BY rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Info summarizes catalog contents for the info surfaces.
type Info struct {
	ImageCount   int   `json:"image_count"`
	GalleryCount int   `json:"gallery_count"`
	UsedBytes    int64 `json:"used_bytes"`
}

// StoreInfo returns catalog counters.
func (s *Store) StoreInfo(ctx context.Context) (Info, error) {
	var info Info
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT CASE WHEN gallery_id != '' THEN gallery_id END),
		       COALESCE(SUM(size_bytes), 0)
		FROM images
	`).Scan(&info.ImageCount, &info.GalleryCount, &info.UsedBytes)
	return info, err
}

func (s *Store) listImages(ctx context.Context, query string, args ...any) ([]models.Image, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []models.Image{}
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		if image == nil {
			continue
		}
		images = append(images, *image)
	}
	return images, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*models.Image, error) {
	var image models.Image
	var expiresAt int64
	var filename sql.NullString
	var createdAt string

	err := row.Scan(&image.ID, &image.SizeBytes, &image.Type, &expiresAt,
		&image.OwnerToken, &image.GalleryID, &filename, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	image.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	image.Filename = filename.String
	image.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", image.ID, err)
	}
	return &image, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
