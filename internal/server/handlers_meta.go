package server

import (
	"net/http"

	"github.com/dustin/go-humanize"

	"quicksand/internal/config"
)

// InfoResponse summarizes the store for operators.
type InfoResponse struct {
	DBPath           string                   `json:"db_path"`
	FilesDir         string                   `json:"files_dir"`
	ImageCount       int                      `json:"image_count"`
	GalleryCount     int                      `json:"gallery_count"`
	UsedBytes        int64                    `json:"used_bytes"`
	Used             string                   `json:"used"`
	MaxStorageBytes  int64                    `json:"max_storage_bytes"`
	MaxStorage       string                   `json:"max_storage"`
	MaxFileBytes     int64                    `json:"max_file_bytes"`
	MaxFilesPerBatch int                      `json:"max_files_per_upload"`
	Retention        []config.RetentionOption `json:"retention"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.images.StoreInfo(r.Context())
	if err != nil {
		s.writeServiceError(w, r, storeFailure(err))
		return
	}

	policy := s.service.policy
	resp := InfoResponse{
		DBPath:           s.dbPath,
		FilesDir:         s.filesDir,
		ImageCount:       info.ImageCount,
		GalleryCount:     info.GalleryCount,
		UsedBytes:        info.UsedBytes,
		Used:             humanize.IBytes(uint64(info.UsedBytes)),
		MaxStorageBytes:  policy.MaxStorageBytes,
		MaxStorage:       humanize.IBytes(uint64(policy.MaxStorageBytes)),
		MaxFileBytes:     policy.MaxFileBytes,
		MaxFilesPerBatch: policy.MaxFilesPerUpload,
		Retention:        s.retention.Options,
	}

	s.writeJSON(w, http.StatusOK, resp)
}
