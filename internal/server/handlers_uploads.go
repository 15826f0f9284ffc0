package server

import (
	"net/http"
	"time"

	"quicksand/internal/models"
)

// OwnedGallery is one gallery entry in an owner's upload listing.
type OwnedGallery struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	ImageCount int       `json:"image_count"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// UploadsResponse lists everything still protected by the caller's token.
type UploadsResponse struct {
	Images    []UploadedImage `json:"images"`
	Galleries []OwnedGallery  `json:"galleries"`
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.ListUploads(r.Context(), s.ownerToken(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := UploadsResponse{
		Images:    make([]UploadedImage, 0, len(list.Images)),
		Galleries: make([]OwnedGallery, 0, len(list.Galleries)),
	}
	for _, image := range list.Images {
		resp.Images = append(resp.Images, UploadedImage{
			ID:        image.ID,
			URL:       s.imageURL(image.ID, models.ImageType(image.Type).Ext()),
			Filename:  image.Filename,
			SizeBytes: image.SizeBytes,
			Type:      image.Type,
		})
	}
	for _, gallery := range list.Galleries {
		resp.Galleries = append(resp.Galleries, OwnedGallery{
			ID:         gallery.GalleryID,
			URL:        s.pageURL("/g/" + gallery.GalleryID),
			ImageCount: gallery.ImageCount,
			ExpiresAt:  gallery.ExpiresAt,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}
