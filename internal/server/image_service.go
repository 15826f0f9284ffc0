package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"quicksand/internal/blobstore"
	"quicksand/internal/config"
	"quicksand/internal/models"
	"quicksand/internal/store"
)

// ServicePolicy bounds the image lifecycle engine.
type ServicePolicy struct {
	// MaxStorageBytes caps the sum of all stored sizes; 0 disables it.
	MaxStorageBytes int64
	// MaxFileBytes caps one uploaded file; 0 disables it.
	MaxFileBytes int64
	// MaxFilesPerUpload caps one upload's file count; extra files are
	// dropped, not rejected. 0 disables it.
	MaxFilesPerUpload int
	// ReconcileChance runs orphan reconciliation on roughly 1 in N
	// external operations; 0 disables opportunistic runs.
	ReconcileChance int
	IDs             store.IDPolicy
	Retention       config.RetentionPolicy
}

// ImageService is the storage lifecycle engine: it owns identifier
// allocation, expiry sweeping, quota eviction, ingestion, deletion
// authorization, and orphan reconciliation. All maintenance work runs
// synchronously inside the external operation that triggered it.
//
// The mutex serializes the public operations: one ingestion's quota
// check, eviction loop, blob writes, and catalog insert span multiple
// statements across two storage substrates and must not interleave.
type ImageService struct {
	mu     sync.Mutex
	images store.ImageStore
	blobs  blobstore.BlobStore
	policy ServicePolicy
	logger *slog.Logger
	nowFn  func() time.Time
}

// NewImageService constructs an ImageService.
func NewImageService(images store.ImageStore, blobs blobstore.BlobStore, policy ServicePolicy, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	if len(policy.Retention.Options) == 0 {
		policy.Retention = config.DefaultRetentionPolicy()
	}
	if err := policy.IDs.Validate(); err != nil {
		policy.IDs = store.DefaultIDPolicy()
	}
	return &ImageService{
		images: images,
		blobs:  blobs,
		policy: policy,
		logger: logger,
		nowFn:  time.Now,
	}
}

func (s *ImageService) now() time.Time {
	return s.nowFn().UTC()
}

// SweepExpired removes every record whose expiry instant is before now,
// together with its blob. A failure on one record is logged and the sweep
// moves on; the count of removed records is returned.
func (s *ImageService) SweepExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepExpired(ctx)
}

func (s *ImageService) sweepExpired(ctx context.Context) (int, error) {
	expired, err := s.images.ListExpired(ctx, s.now())
	if err != nil {
		return 0, storeFailure(err)
	}

	removed := 0
	for _, image := range expired {
		if err := s.deleteCoupled(ctx, image.ID); err != nil {
			s.logger.Warn("expiry sweep: delete failed", "id", image.ID, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// ensureCapacity evicts the oldest-inserted records until additional bytes
// fit under the storage cap. A single item larger than the cap can never
// fit and is rejected outright. Candidates are fetched in exponentially
// growing batches to bound catalog round trips under pressure; observable
// behavior is strictly oldest-first eviction.
func (s *ImageService) ensureCapacity(ctx context.Context, additional int64) error {
	limit := s.policy.MaxStorageBytes
	if limit == 0 {
		return nil
	}
	if additional > limit {
		return quotaExceeded(fmt.Errorf("upload of %d bytes exceeds the storage size of %d bytes", additional, limit))
	}

	used, err := s.images.UsedBytes(ctx)
	if err != nil {
		return storeFailure(err)
	}
	used += additional

	for n := 1; used > limit; n *= 2 {
		batch, err := s.images.ListOldest(ctx, n)
		if err != nil {
			return storeFailure(err)
		}
		if len(batch) == 0 {
			return nil
		}
		deleted := 0
		for _, victim := range batch {
			if err := s.deleteCoupled(ctx, victim.ID); err != nil {
				s.logger.Warn("quota eviction: delete failed", "id", victim.ID, "error", err)
				continue
			}
			deleted++
			used -= victim.SizeBytes
			if used <= limit {
				return nil
			}
		}
		// Every candidate in the batch failed to delete; the same records
		// would come back on the next round, so bail out instead of looping.
		if deleted == 0 {
			return internalError(fmt.Errorf("quota eviction made no progress over %d candidates", len(batch)))
		}
	}
	return nil
}

// ImageContent is the payload for serving one stored image.
type ImageContent struct {
	Reader    io.ReadCloser
	SizeBytes int64
	Type      models.ImageType
	Filename  string
	ExpiresAt time.Time
	ModTime   time.Time
}

// FetchImage opens the blob for one image id. A record whose blob has
// gone missing is couple-deleted on the spot and reported as not found.
func (s *ImageService) FetchImage(ctx context.Context, id string) (*ImageContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepAndReconcile(ctx)

	image, err := s.images.GetImage(ctx, id)
	if err != nil {
		return nil, storeFailure(err)
	}
	if image == nil {
		return nil, notFoundCode(fmt.Errorf("the file does not exist (anymore)"), ErrCodeImageNotFound)
	}

	info, err := s.blobs.Stat(ctx, id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Leftover record without bytes; close the inconsistency now.
			if delErr := s.deleteCoupled(ctx, id); delErr != nil {
				s.logger.Warn("delete leftover record", "id", id, "error", delErr)
			}
			return nil, notFoundCode(fmt.Errorf("the file does not exist (anymore)"), ErrCodeImageNotFound)
		}
		return nil, storageIO(err)
	}

	rc, err := s.blobs.Open(ctx, id)
	if err != nil {
		return nil, storageIO(err)
	}

	imageType := models.ImageType(image.Type)
	return &ImageContent{
		Reader:    rc,
		SizeBytes: image.SizeBytes,
		Type:      imageType,
		Filename:  id + imageType.Ext(),
		ExpiresAt: image.ExpiresAt,
		ModTime:   info.ModTime,
	}, nil
}

// FetchGallery lists the member records of one gallery.
func (s *ImageService) FetchGallery(ctx context.Context, galleryID string) ([]models.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepAndReconcile(ctx)

	members, err := s.images.ListByGallery(ctx, galleryID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if len(members) == 0 {
		return nil, notFoundCode(fmt.Errorf("the gallery does not exist (anymore)"), ErrCodeGalleryNotFound)
	}
	return members, nil
}

// DeleteOwned removes one image if the owner token matches. Unknown ids
// and wrong tokens collapse into the same "nothing to delete" failure so
// the response leaks no existence information. The returned flag reports
// whether the token still protects any remaining record.
func (s *ImageService) DeleteOwned(ctx context.Context, id, ownerToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepAndReconcile(ctx)

	owns, err := s.images.OwnsImage(ctx, id, ownerToken)
	if err != nil {
		return false, storeFailure(err)
	}
	if !owns {
		return false, notFoundCode(fmt.Errorf("found nothing to delete"), ErrCodeNothingToDelete)
	}
	if err := s.deleteCoupled(ctx, id); err != nil {
		return false, err
	}
	return s.tokenStillUsed(ctx, ownerToken)
}

// DeleteOwnedGallery removes a gallery and all member images if the owner
// token matches.
func (s *ImageService) DeleteOwnedGallery(ctx context.Context, galleryID, ownerToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepAndReconcile(ctx)

	owns, err := s.images.OwnsGallery(ctx, galleryID, ownerToken)
	if err != nil {
		return false, storeFailure(err)
	}
	if !owns {
		return false, notFoundCode(fmt.Errorf("found nothing to delete"), ErrCodeNothingToDelete)
	}
	if err := s.deleteGallery(ctx, galleryID); err != nil {
		return false, err
	}
	return s.tokenStillUsed(ctx, ownerToken)
}

// UploadsList is one owner's visible uploads.
type UploadsList struct {
	Images    []models.Image          `json:"images"`
	Galleries []models.GallerySummary `json:"galleries"`
}

// ListUploads returns the standalone uploads and galleries carrying the
// owner token, newest first.
func (s *ImageService) ListUploads(ctx context.Context, ownerToken string) (UploadsList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepAndReconcile(ctx)

	list := UploadsList{Images: []models.Image{}, Galleries: []models.GallerySummary{}}
	if ownerToken == "" {
		return list, nil
	}

	images, err := s.images.ListStandaloneByOwner(ctx, ownerToken)
	if err != nil {
		return list, storeFailure(err)
	}
	galleries, err := s.images.ListGalleriesByOwner(ctx, ownerToken)
	if err != nil {
		return list, storeFailure(err)
	}
	list.Images = images
	list.Galleries = galleries
	return list, nil
}

// ReconcileResult reports one reconciliation run.
type ReconcileResult struct {
	RemovedRecords int `json:"removed_records"`
	RemovedBlobs   int `json:"removed_blobs"`
}

// Reconcile closes catalog/blob inconsistencies: records with no backing
// blob are deleted, and blobs with no record are removed. Non-id-shaped
// names in the blob directory are never touched.
func (s *ImageService) Reconcile(ctx context.Context) (ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcile(ctx)
}

func (s *ImageService) reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	ids, err := s.images.ListAllIDs(ctx)
	if err != nil {
		return result, storeFailure(err)
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
		_, err := s.blobs.Stat(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("reconcile: stat blob", "id", id, "error", err)
			continue
		}
		if err := s.deleteCoupled(ctx, id); err != nil {
			s.logger.Warn("reconcile: delete record", "id", id, "error", err)
			continue
		}
		result.RemovedRecords++
	}

	blobIDs, err := s.blobs.List(ctx)
	if err != nil {
		return result, storageIO(err)
	}
	for _, id := range blobIDs {
		if _, ok := known[id]; ok {
			continue
		}
		if !store.ValidID(id) {
			continue
		}
		if err := s.deleteCoupled(ctx, id); err != nil {
			s.logger.Warn("reconcile: delete blob", "id", id, "error", err)
			continue
		}
		result.RemovedBlobs++
	}

	return result, nil
}

// sweepAndReconcile is the eager maintenance step at the start of every
// external operation: a synchronous expiry sweep, plus a low-probability
// reconciliation pass. Callers hold the service mutex.
func (s *ImageService) sweepAndReconcile(ctx context.Context) {
	if _, err := s.sweepExpired(ctx); err != nil {
		s.logger.Warn("expiry sweep failed", "error", err)
	}

	chance := s.policy.ReconcileChance
	if chance <= 0 {
		return
	}
	if rand.IntN(chance) != 0 {
		return
	}
	result, err := s.reconcile(ctx)
	if err != nil {
		s.logger.Warn("reconciliation failed", "error", err)
		return
	}
	if result.RemovedRecords > 0 || result.RemovedBlobs > 0 {
		s.logger.Info("reconciliation removed orphans",
			"records", result.RemovedRecords, "blobs", result.RemovedBlobs)
	}
}

// deleteCoupled removes the blob and then the catalog record for one id.
// A missing blob is not an error; the catalog is the source of truth for
// existence, so a blob delete failure is logged and the record is removed
// regardless.
func (s *ImageService) deleteCoupled(ctx context.Context, id string) error {
	if err := s.blobs.Delete(ctx, id); err != nil {
		s.logger.Warn("delete blob", "id", id, "error", err)
	}
	if err := s.images.DeleteImage(ctx, id); err != nil {
		return storeFailure(err)
	}
	return nil
}

// deleteGallery resolves all member ids and couple-deletes each.
func (s *ImageService) deleteGallery(ctx context.Context, galleryID string) error {
	members, err := s.images.ListByGallery(ctx, galleryID)
	if err != nil {
		return storeFailure(err)
	}
	for _, member := range members {
		if err := s.deleteCoupled(ctx, member.ID); err != nil {
			s.logger.Warn("delete gallery member", "gallery_id", galleryID, "id", member.ID, "error", err)
		}
	}
	return nil
}

func (s *ImageService) tokenStillUsed(ctx context.Context, ownerToken string) (bool, error) {
	count, err := s.images.CountOwned(ctx, ownerToken)
	if err != nil {
		return false, storeFailure(err)
	}
	return count > 0, nil
}

func (s *ImageService) allocateImageID(ctx context.Context, short bool) (string, error) {
	return store.AllocateID(ctx, s.policy.IDs, short, func(id string) (bool, error) {
		return s.images.ImageExists(ctx, id)
	})
}

func (s *ImageService) allocateGalleryID(ctx context.Context) (string, error) {
	return store.AllocateID(ctx, s.policy.IDs, false, func(id string) (bool, error) {
		return s.images.GalleryExists(ctx, id)
	})
}
