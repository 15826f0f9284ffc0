package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Images.
	mux.HandleFunc("POST /v1/images", s.handleUpload)
	mux.HandleFunc("GET /v1/images/{id}", s.handleServeImage)
	mux.HandleFunc("DELETE /v1/images/{id}", s.handleDeleteImage)

	// Galleries.
	mux.HandleFunc("GET /v1/galleries/{id}", s.handleGetGallery)
	mux.HandleFunc("DELETE /v1/galleries/{id}", s.handleDeleteGallery)

	// Owner views.
	mux.HandleFunc("GET /v1/uploads", s.handleListUploads)

	// Admin maintenance.
	mux.HandleFunc("POST /v1/admin/sweep", s.handleAdminSweep)
	mux.HandleFunc("POST /v1/admin/reconcile", s.handleAdminReconcile)

	// Browser surface.
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleUpload)
	mux.HandleFunc("GET /favicon.ico", s.handleFavicon)
	mux.HandleFunc("GET /i/{id}", s.handleServeImage)
	mux.HandleFunc("GET /g/{id}", s.handleGalleryPage)

	return s.withRequestLogging(mux)
}
