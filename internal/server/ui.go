package server

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"quicksand/internal/config"
)

//go:embed templates/*.html assets/favicon.ico
var uiFS embed.FS

var pageTemplates = template.Must(template.ParseFS(uiFS, "templates/*.html"))

type indexPageData struct {
	Retention   []config.RetentionOption
	DefaultTTL  int64
	MaxFiles    int
	MaxFileSize string
}

type galleryPageData struct {
	ID         string
	ImageCount int
	Images     []UploadedImage
	Expires    string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	policy := s.service.policy
	maxFileSize := "unlimited"
	if policy.MaxFileBytes > 0 {
		maxFileSize = humanize.IBytes(uint64(policy.MaxFileBytes))
	}

	s.renderPage(w, http.StatusOK, "index.html", indexPageData{
		Retention:   s.retention.Options,
		DefaultTTL:  s.retention.DefaultTTLSeconds,
		MaxFiles:    policy.MaxFilesPerUpload,
		MaxFileSize: maxFileSize,
	})
}

func (s *Server) handleGalleryPage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.renderGone(w)
		return
	}

	members, err := s.service.FetchGallery(r.Context(), id)
	if err != nil {
		if httpStatusFromError(err) == http.StatusNotFound {
			s.renderGone(w)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	resp := s.galleryResponse(id, members)
	s.renderPage(w, http.StatusOK, "gallery.html", galleryPageData{
		ID:         resp.ID,
		ImageCount: resp.ImageCount,
		Images:     resp.Images,
		Expires:    resp.ExpiresAt.UTC().Format(time.RFC1123),
	})
}

func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	icon, err := uiFS.ReadFile("assets/favicon.ico")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/x-icon")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(icon)
}

func (s *Server) renderGone(w http.ResponseWriter) {
	s.renderPage(w, http.StatusNotFound, "gone.html", struct{ Message string }{
		Message: "This does not exist (anymore).",
	})
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		s.log().Error("render page", "template", name, "error", err)
		fmt.Fprintln(w, "render failure")
	}
}
