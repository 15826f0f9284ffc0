package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"quicksand/internal/blobstore"
	"quicksand/internal/config"
	"quicksand/internal/store"
)

const (
	allowRemoteEnvKey = "QUICKSAND_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 120 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server wraps HTTP handlers for the quicksand API.
type Server struct {
	addr           string
	baseURL        string
	images         store.ImageStore
	service        *ImageService
	retention      config.RetentionPolicy
	maxRequestSize int64
	adminTokenHash string
	cookiesEnabled bool
	dbPath         string
	filesDir       string
	logger         *slog.Logger
}

// New creates a new server instance.
func New(addr string, images store.ImageStore, blobs blobstore.BlobStore, cfg *config.Config, retention config.RetentionPolicy, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	policy := ServicePolicy{
		MaxStorageBytes:   cfg.Storage.MaxStorageBytes,
		MaxFileBytes:      cfg.Storage.MaxFileBytes,
		MaxFilesPerUpload: cfg.Storage.MaxFilesPerUpload,
		ReconcileChance:   cfg.Maintenance.ReconcileChance,
		IDs: store.IDPolicy{
			MinLength:     cfg.IDs.MinLength,
			RegularLength: cfg.IDs.RegularLength,
			MaxLength:     cfg.IDs.MaxLength,
		},
		Retention: retention,
	}

	return &Server{
		addr:           addr,
		baseURL:        strings.TrimRight(cfg.APIURL, "/"),
		images:         images,
		service:        NewImageService(images, blobs, policy, logger),
		retention:      retention,
		maxRequestSize: requestSizeLimit(cfg),
		adminTokenHash: cfg.AdminTokenHash,
		cookiesEnabled: cfg.CookiesEnabled,
		dbPath:         cfg.DBPath,
		filesDir:       cfg.FilesDir,
		logger:         logger,
	}
}

// requestSizeLimit bounds one multipart request body. Uploads can never
// legitimately exceed the per-file limit times the file count, plus slack
// for multipart framing. With both size caps disabled there is no bound
// to derive and the limit is 0, meaning unlimited.
func requestSizeLimit(cfg *config.Config) int64 {
	perFile := cfg.Storage.MaxFileBytes
	if perFile <= 0 {
		perFile = cfg.Storage.MaxStorageBytes
	}
	if perFile <= 0 {
		return 0
	}
	files := int64(cfg.Storage.MaxFilesPerUpload)
	if files <= 0 {
		files = 1
	}
	const framingSlack = 1 << 20
	return perFile*files + framingSlack
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
