package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:7444"
	DefaultFilesDirName = "quicksand_files"
	DefaultDBFileName   = "quicksand.db"

	DefaultMaxStorageBytes   int64 = 64 * 1024 * 1024
	DefaultMaxFileBytes      int64 = 8 * 1024 * 1024
	DefaultMaxFilesPerUpload       = 10
	DefaultIDMinLength             = 3
	DefaultIDRegularLength         = 9
	DefaultIDMaxLength             = 10
	DefaultReconcileChance         = 20

	DefaultLogLevel = "info"

	configDirEnvKey      = "QUICKSAND_CONFIG_DIR"
	apiURLEnvKey         = "QUICKSAND_API_URL"
	dbPathEnvKey         = "QUICKSAND_DB"
	filesDirEnvKey       = "QUICKSAND_FILES_DIR"
	adminTokenHashEnvKey = "QUICKSAND_ADMIN_TOKEN_HASH"

	configFileName = ".quicksand.toml"
)

// StorageConfig bounds the shared storage pool and individual uploads.
type StorageConfig struct {
	// MaxStorageBytes caps the sum of all stored image sizes; the oldest
	// uploads are evicted to stay under it. 0 disables the cap.
	MaxStorageBytes int64 `toml:"max_storage_bytes"`
	// MaxFileBytes caps one uploaded file. 0 disables the cap.
	MaxFileBytes int64 `toml:"max_file_bytes"`
	// MaxFilesPerUpload caps the file count of one upload. 0 disables it.
	MaxFilesPerUpload int `toml:"max_files_per_upload"`
}

// IDConfig is the identifier length schedule.
type IDConfig struct {
	MinLength     int `toml:"min_length"`
	RegularLength int `toml:"regular_length"`
	MaxLength     int `toml:"max_length"`
}

// MaintenanceConfig tunes opportunistic background work.
type MaintenanceConfig struct {
	// ReconcileChance runs orphan reconciliation on roughly 1 in N
	// requests. 0 disables opportunistic reconciliation.
	ReconcileChance int `toml:"reconcile_chance"`
}

// Config defines runtime configuration for quicksand.
type Config struct {
	APIURL         string            `toml:"api_url"`
	FilesDir       string            `toml:"files_dir"`
	DBPath         string            `toml:"db_path"`
	LogLevel       string            `toml:"log_level"`
	AdminTokenHash string            `toml:"admin_token_hash"`
	RetentionPath  string            `toml:"retention_path"`
	CookiesEnabled bool              `toml:"cookies_enabled"`
	Storage        StorageConfig     `toml:"storage"`
	IDs            IDConfig          `toml:"ids"`
	Maintenance    MaintenanceConfig `toml:"maintenance"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:         DefaultAPIURL,
		FilesDir:       "",
		DBPath:         "",
		CookiesEnabled: true,
		Storage: StorageConfig{
			MaxStorageBytes:   DefaultMaxStorageBytes,
			MaxFileBytes:      DefaultMaxFileBytes,
			MaxFilesPerUpload: DefaultMaxFilesPerUpload,
		},
		IDs: IDConfig{
			MinLength:     DefaultIDMinLength,
			RegularLength: DefaultIDRegularLength,
			MaxLength:     DefaultIDMaxLength,
		},
		Maintenance: MaintenanceConfig{
			ReconcileChance: DefaultReconcileChance,
		},
	}
}

var allowedKeys = []string{
	"api_url",
	"files_dir",
	"db_path",
	"log_level",
	"admin_token_hash",
	"retention_path",
	"cookies_enabled",
	"storage.max_storage_bytes",
	"storage.max_file_bytes",
	"storage.max_files_per_upload",
	"ids.min_length",
	"ids.regular_length",
	"ids.max_length",
	"maintenance.reconcile_chance",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "files_dir":
		return c.FilesDir, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "admin_token_hash":
		return c.AdminTokenHash, nil
	case "retention_path":
		return c.RetentionPath, nil
	case "cookies_enabled":
		return strconv.FormatBool(c.CookiesEnabled), nil
	case "storage.max_storage_bytes":
		return strconv.FormatInt(c.Storage.MaxStorageBytes, 10), nil
	case "storage.max_file_bytes":
		return strconv.FormatInt(c.Storage.MaxFileBytes, 10), nil
	case "storage.max_files_per_upload":
		return strconv.Itoa(c.Storage.MaxFilesPerUpload), nil
	case "ids.min_length":
		return strconv.Itoa(c.IDs.MinLength), nil
	case "ids.regular_length":
		return strconv.Itoa(c.IDs.RegularLength), nil
	case "ids.max_length":
		return strconv.Itoa(c.IDs.MaxLength), nil
	case "maintenance.reconcile_chance":
		return strconv.Itoa(c.Maintenance.ReconcileChance), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from the global file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := GlobalPath()
	if err == nil {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if filesDir := os.Getenv(filesDirEnvKey); filesDir != "" {
		cfg.FilesDir = filesDir
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if hash := strings.TrimSpace(os.Getenv(adminTokenHashEnvKey)); hash != "" {
		cfg.AdminTokenHash = hash
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

func (c *Config) normalizeDefaults() {
	if c.FilesDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.FilesDir = filepath.Join(cwd, DefaultFilesDirName)
		} else {
			c.FilesDir = DefaultFilesDirName
		}
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.FilesDir, DefaultDBFileName)
	}
	if c.Storage.MaxStorageBytes < 0 {
		c.Storage.MaxStorageBytes = 0
	}
	if c.Storage.MaxFileBytes < 0 {
		c.Storage.MaxFileBytes = 0
	}
	if c.Storage.MaxFilesPerUpload < 0 {
		c.Storage.MaxFilesPerUpload = 0
	}
	if c.IDs.MinLength <= 0 {
		c.IDs.MinLength = DefaultIDMinLength
	}
	if c.IDs.RegularLength < c.IDs.MinLength {
		c.IDs.RegularLength = DefaultIDRegularLength
	}
	if c.IDs.MaxLength < c.IDs.RegularLength {
		c.IDs.MaxLength = c.IDs.RegularLength + 1
	}
	if c.Maintenance.ReconcileChance < 0 {
		c.Maintenance.ReconcileChance = 0
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "storage.max_storage_bytes", "storage.max_file_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "storage.max_files_per_upload", "maintenance.reconcile_chance":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "ids.min_length", "ids.regular_length", "ids.max_length":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "cookies_enabled":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
