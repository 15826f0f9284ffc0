package server

import (
	"net/http"
	"time"

	"quicksand/internal/models"
)

// GalleryResponse is the JSON payload for one gallery.
type GalleryResponse struct {
	ID         string          `json:"id"`
	ImageCount int             `json:"image_count"`
	Images     []UploadedImage `json:"images"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

func (s *Server) handleGetGallery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	members, err := s.service.FetchGallery(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.galleryResponse(id, members))
}

func (s *Server) handleDeleteGallery(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	stillUsed, err := s.service.DeleteOwnedGallery(r.Context(), id, s.ownerToken(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !stillUsed {
		s.clearOwnerCookie(w)
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "gallery_id": id})
}

func (s *Server) galleryResponse(id string, members []models.Image) GalleryResponse {
	resp := GalleryResponse{
		ID:         id,
		ImageCount: len(members),
		Images:     make([]UploadedImage, 0, len(members)),
	}
	for _, member := range members {
		resp.Images = append(resp.Images, UploadedImage{
			ID:        member.ID,
			URL:       s.imageURL(member.ID, models.ImageType(member.Type).Ext()),
			Filename:  member.Filename,
			SizeBytes: member.SizeBytes,
			Type:      member.Type,
		})
		if member.ExpiresAt.After(resp.ExpiresAt) {
			resp.ExpiresAt = member.ExpiresAt
		}
	}
	return resp
}
