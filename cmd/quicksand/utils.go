package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"quicksand/internal/blobstore"
	"quicksand/internal/config"
	"quicksand/internal/server"
	"quicksand/internal/store"
)

// openService builds an image service over the configured catalog and
// blob directory for local maintenance commands. The caller closes the
// returned store.
func openService(cfg *config.Config) (*server.ImageService, *store.Store, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("config not initialized")
	}
	if cfg.DBPath == "" {
		return nil, nil, fmt.Errorf("db path is required")
	}

	retention, err := config.LoadRetentionPolicy(cfg.RetentionPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}

	bs, err := blobstore.NewLocalDir(cfg.FilesDir)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	policy := server.ServicePolicy{
		MaxStorageBytes:   cfg.Storage.MaxStorageBytes,
		MaxFileBytes:      cfg.Storage.MaxFileBytes,
		MaxFilesPerUpload: cfg.Storage.MaxFilesPerUpload,
		IDs: store.IDPolicy{
			MinLength:     cfg.IDs.MinLength,
			RegularLength: cfg.IDs.RegularLength,
			MaxLength:     cfg.IDs.MaxLength,
		},
		Retention: retention,
	}
	service := server.NewImageService(st, bs, policy, slog.Default().With("component", "maintenance"))
	return service, st, nil
}

func writeJSONOut(payload any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}
