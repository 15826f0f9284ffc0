package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default api url, got %q", cfg.APIURL)
	}
	if !cfg.CookiesEnabled {
		t.Fatal("cookies should default to enabled")
	}
	if cfg.Storage.MaxStorageBytes != DefaultMaxStorageBytes {
		t.Fatalf("expected default storage cap, got %d", cfg.Storage.MaxStorageBytes)
	}
	if cfg.IDs.MinLength != DefaultIDMinLength || cfg.IDs.RegularLength != DefaultIDRegularLength || cfg.IDs.MaxLength != DefaultIDMaxLength {
		t.Fatalf("unexpected default id schedule: %+v", cfg.IDs)
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUICKSAND_CONFIG_DIR", dir)
	t.Setenv("QUICKSAND_API_URL", "")
	t.Setenv("QUICKSAND_DB", "")
	t.Setenv("QUICKSAND_FILES_DIR", "")
	t.Setenv("QUICKSAND_ADMIN_TOKEN_HASH", "")

	content := `
api_url = "http://127.0.0.1:9000"
files_dir = "/tmp/qsfiles"

[storage]
max_storage_bytes = 1024
`
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9000" {
		t.Fatalf("expected file api url, got %q", cfg.APIURL)
	}
	if cfg.Storage.MaxStorageBytes != 1024 {
		t.Fatalf("expected file storage cap, got %d", cfg.Storage.MaxStorageBytes)
	}
	if cfg.DBPath != filepath.Join("/tmp/qsfiles", DefaultDBFileName) {
		t.Fatalf("expected db path under files dir, got %q", cfg.DBPath)
	}

	// Env overrides the file.
	t.Setenv("QUICKSAND_API_URL", "http://127.0.0.1:9100")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://127.0.0.1:9100" {
		t.Fatalf("expected env api url to win, got %q", cfg.APIURL)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("QUICKSAND_CONFIG_DIR", t.TempDir())
	t.Setenv("QUICKSAND_API_URL", "")
	t.Setenv("QUICKSAND_DB", "")
	t.Setenv("QUICKSAND_FILES_DIR", "")
	t.Setenv("QUICKSAND_ADMIN_TOKEN_HASH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FilesDir == "" || cfg.DBPath == "" {
		t.Fatalf("expected normalized paths, got files=%q db=%q", cfg.FilesDir, cfg.DBPath)
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QUICKSAND_CONFIG_DIR", dir)
	t.Setenv("QUICKSAND_API_URL", "")
	t.Setenv("QUICKSAND_DB", "")
	t.Setenv("QUICKSAND_FILES_DIR", "")
	t.Setenv("QUICKSAND_ADMIN_TOKEN_HASH", "")
	path := filepath.Join(dir, configFileName)

	if err := SetKey(path, "storage.max_file_bytes", "2048"); err != nil {
		t.Fatalf("set nested key: %v", err)
	}
	if err := SetKey(path, "api_url", "http://127.0.0.1:9200"); err != nil {
		t.Fatalf("set key: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.MaxFileBytes != 2048 {
		t.Fatalf("expected max_file_bytes 2048, got %d", cfg.Storage.MaxFileBytes)
	}
	if cfg.APIURL != "http://127.0.0.1:9200" {
		t.Fatalf("expected api url to round-trip, got %q", cfg.APIURL)
	}
}

func TestSetKeyValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)

	if err := SetKey(path, "no_such_key", "x"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if err := SetKey(path, "storage.max_file_bytes", "not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
	if err := SetKey(path, "storage.max_file_bytes", "-5"); err == nil {
		t.Fatal("expected error for negative value")
	}
	if err := SetKey(path, "cookies_enabled", "maybe"); err == nil {
		t.Fatal("expected error for non-boolean value")
	}
}

func TestGetKnownKeys(t *testing.T) {
	cfg := Default()
	cfg.normalizeDefaults()
	for _, key := range AllowedKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Errorf("get %s: %v", key, err)
		}
	}
	if _, err := cfg.Get("no_such_key"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
