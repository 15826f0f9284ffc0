package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"quicksand/internal/models"
)

const multipartMemoryLimit = 16 << 20

// UploadedImage is one stored file in an upload response.
type UploadedImage struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"size_bytes"`
	Type      string `json:"type"`
}

// UploadResponse is the JSON payload for a committed upload.
type UploadResponse struct {
	ID         string          `json:"id,omitempty"`
	URL        string          `json:"url,omitempty"`
	Filename   string          `json:"filename,omitempty"`
	IsGallery  bool            `json:"is_gallery"`
	GalleryID  string          `json:"gallery_id,omitempty"`
	GalleryURL string          `json:"gallery_url,omitempty"`
	Images     []UploadedImage `json:"images"`
	ExpiresAt  time.Time       `json:"expires_at"`
	OwnerToken string          `json:"owner_token"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.maxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestSize)
	}
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeServiceError(w, r, makeAPIError(http.StatusRequestEntityTooLarge, "quota_exceeded",
				ErrCodeRequestTooLarge, fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)))
			return
		}
		s.writeServiceError(w, r, badRequest(fmt.Errorf("parse multipart form: %w", err)))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := uploadFileHeaders(r.MultipartForm)
	items := make([]UploadItem, 0, len(headers))
	for _, fh := range headers {
		items = append(items, UploadItem{
			Filename: filepath.Base(fh.Filename),
			Size:     fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	rawTTL := r.FormValue("expire")
	if rawTTL == "" {
		rawTTL = r.FormValue("ttl")
	}
	ttl, _ := strconv.ParseInt(rawTTL, 10, 64)
	ownerToken := s.ensureOwnerToken(w, r)

	result, err := s.service.Ingest(r.Context(), IngestInput{
		OwnerToken: ownerToken,
		Items:      items,
		TTLSeconds: ttl,
		Short:      formFlag(r.FormValue("short")),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := UploadResponse{
		IsGallery:  result.IsGallery,
		GalleryID:  result.GalleryID,
		Images:     make([]UploadedImage, 0, len(result.Images)),
		ExpiresAt:  result.ExpiresAt,
		OwnerToken: ownerToken,
	}
	for _, image := range result.Images {
		resp.Images = append(resp.Images, UploadedImage{
			ID:        image.ID,
			URL:       s.imageURL(image.ID, models.ImageType(image.Type).Ext()),
			Filename:  image.Filename,
			SizeBytes: image.SizeBytes,
			Type:      image.Type,
		})
	}
	if result.IsGallery {
		resp.GalleryURL = s.pageURL("/g/" + result.GalleryID)
	} else {
		resp.ID = result.ImageID
		resp.Filename = result.Filename
		resp.URL = resp.Images[0].URL
	}

	// Browser form posts land on the viewer page instead of JSON.
	if r.Pattern == "POST /{$}" {
		target := "/i/" + resp.ID
		if resp.IsGallery {
			target = "/g/" + resp.GalleryID
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleServeImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	content, err := s.service.FetchImage(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	if notModifiedSince(r, content.ModTime) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	remaining := time.Until(content.ExpiresAt)
	if remaining < 0 {
		remaining = 0
	}

	w.Header().Set("Content-Type", content.Type.MIME())
	w.Header().Set("Content-Length", strconv.FormatInt(content.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", content.Filename))
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int64(remaining.Seconds())))
	w.Header().Set("Expires", content.ExpiresAt.UTC().Format(http.TimeFormat))
	w.Header().Set("Last-Modified", content.ModTime.UTC().Format(http.TimeFormat))

	if _, err := io.Copy(w, content.Reader); err != nil {
		s.log().Debug("serve image interrupted", "id", id, "error", err)
	}
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	stillUsed, err := s.service.DeleteOwned(r.Context(), id, s.ownerToken(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !stillUsed {
		s.clearOwnerCookie(w)
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// uploadFileHeaders flattens the multipart file fields into one ordered
// list. Well-known field names come first so mixed forms stay stable.
func uploadFileHeaders(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}

	preferred := []string{"images", "images[]", "image", "file", "file[]", "files"}
	seen := make(map[string]bool, len(preferred))
	var headers []*multipart.FileHeader
	for _, name := range preferred {
		if fhs, ok := form.File[name]; ok {
			headers = append(headers, fhs...)
			seen[name] = true
		}
	}

	var rest []string
	for name := range form.File {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		headers = append(headers, form.File[name]...)
	}
	return headers
}

func formFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func notModifiedSince(r *http.Request, modTime time.Time) bool {
	raw := r.Header.Get("If-Modified-Since")
	if raw == "" {
		return false
	}
	since, err := http.ParseTime(raw)
	if err != nil {
		return false
	}
	return !modTime.Truncate(time.Second).After(since)
}

func (s *Server) imageURL(id, ext string) string {
	return s.pageURL("/v1/images/" + id + ext)
}

func (s *Server) pageURL(path string) string {
	return s.baseURL + path
}
