package store

import (
	"context"
	"time"

	"quicksand/internal/models"
)

// ImageStore is the catalog surface consumed by the image service.
type ImageStore interface {
	CreateImages(ctx context.Context, images []*models.Image) error
	GetImage(ctx context.Context, id string) (*models.Image, error)
	DeleteImage(ctx context.Context, id string) error
	ImageExists(ctx context.Context, id string) (bool, error)
	GalleryExists(ctx context.Context, id string) (bool, error)
	ListExpired(ctx context.Context, now time.Time) ([]models.Image, error)
	ListOldest(ctx context.Context, limit int) ([]models.Image, error)
	UsedBytes(ctx context.Context) (int64, error)
	ListByGallery(ctx context.Context, galleryID string) ([]models.Image, error)
	ListStandaloneByOwner(ctx context.Context, ownerToken string) ([]models.Image, error)
	ListGalleriesByOwner(ctx context.Context, ownerToken string) ([]models.GallerySummary, error)
	CountOwned(ctx context.Context, ownerToken string) (int, error)
	OwnsImage(ctx context.Context, id, ownerToken string) (bool, error)
	OwnsGallery(ctx context.Context, galleryID, ownerToken string) (bool, error)
	ListAllIDs(ctx context.Context) ([]string, error)
	StoreInfo(ctx context.Context) (Info, error)
}

var _ ImageStore = (*Store)(nil)
